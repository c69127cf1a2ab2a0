// Package converter turns an episode's audio and a still image into a video.
package converter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/kballard/go-shellquote"
)

var execCommandContext = exec.CommandContext

const stderrTailLines = 20

// TranscodeError is returned when ffmpeg exits unsuccessfully.
type TranscodeError struct {
	Err    error
	Stderr string
}

func (e *TranscodeError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("ffmpeg conversion failed: %v", e.Err)
	}
	return fmt.Sprintf("ffmpeg conversion failed: %v: %s", e.Err, e.Stderr)
}

func (e *TranscodeError) Unwrap() error { return e.Err }

// Request describes one episode conversion.
type Request struct {
	AudioURL string
	ImageURL string
	Title    string
	Width    int
	Height   int
	Bitrate  string
}

// Result lists the local files produced by a conversion. Fields stay empty
// for steps that did not complete.
type Result struct {
	AudioPath string
	ImagePath string
	VideoPath string
}

// Paths returns the non-empty paths of r.
func (r Result) Paths() []string {
	var paths []string
	for _, p := range []string{r.AudioPath, r.ImagePath, r.VideoPath} {
		if p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

// Converter downloads assets into a temp directory and runs ffmpeg.
type Converter struct {
	ffmpegPath string
	tempDir    string
	httpClient *http.Client
}

// New creates a Converter, making sure tempDir exists.
func New(ffmpegPath, tempDir string, httpClient *http.Client) (*Converter, error) {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if tempDir == "" {
		tempDir = filepath.Join(os.TempDir(), "pod2tube")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Minute}
	}
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("create temp directory: %w", err)
	}
	return &Converter{ffmpegPath: ffmpegPath, tempDir: tempDir, httpClient: httpClient}, nil
}

// ProcessEpisode downloads the audio, downloads the image and converts both
// into a video. On failure the returned Result still lists the files that
// were produced before the failing step.
func (c *Converter) ProcessEpisode(ctx context.Context, req Request) (Result, error) {
	var res Result

	audioPath, err := c.Download(ctx, req.AudioURL, ".mp3")
	if err != nil {
		return res, fmt.Errorf("download audio: %w", err)
	}
	res.AudioPath = audioPath

	imagePath, err := c.Download(ctx, req.ImageURL, ".jpg")
	if err != nil {
		return res, fmt.Errorf("download image: %w", err)
	}
	res.ImagePath = imagePath

	videoPath, err := c.Convert(ctx, audioPath, imagePath, Params{
		Width:   req.Width,
		Height:  req.Height,
		Bitrate: req.Bitrate,
		Title:   req.Title,
	})
	if err != nil {
		return res, err
	}
	res.VideoPath = videoPath
	return res, nil
}

// Download fetches rawURL into a uniquely named file with extension ext.
// A partially written file is removed on failure.
func (c *Converter) Download(ctx context.Context, rawURL, ext string) (string, error) {
	path := filepath.Join(c.tempDir, uuid.NewString()+ext)
	log.Printf("Downloading %s", rawURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("GET %s: unexpected status %d", rawURL, resp.StatusCode)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("write %s: %w", path, err)
	}

	log.Printf("Downloaded %s to %s", humanize.Bytes(uint64(n)), path)
	return path, nil
}

// Convert runs ffmpeg and returns the path of the produced video.
func (c *Converter) Convert(ctx context.Context, audioPath, imagePath string, p Params) (string, error) {
	output := filepath.Join(c.tempDir, uuid.NewString()+".mp4")
	args := BuildArgs(c.ffmpegPath, imagePath, audioPath, output, p)

	log.Printf("Converting audio to video: %s", shellquote.Join(args...))
	cmd := execCommandContext(ctx, args[0], args[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if rmErr := os.Remove(output); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			log.Printf("Failed to remove partial video %s: %v", output, rmErr)
		}
		return "", &TranscodeError{Err: err, Stderr: tail(stderr.String(), stderrTailLines)}
	}

	log.Printf("Video created at %s", output)
	return output, nil
}

// Cleanup removes temporary files. Failures are logged, never returned.
func (c *Converter) Cleanup(paths ...string) {
	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				log.Printf("Failed to remove temporary file %s: %v", path, err)
			}
			continue
		}
		log.Printf("Removed temporary file: %s", path)
	}
}

func tail(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
