package converter

import (
	"fmt"
	"strings"
)

// Params are the encode settings of one conversion.
type Params struct {
	Width   int
	Height  int
	Bitrate string
	Title   string
}

// BuildArgs constructs the complete ffmpeg argument slice that loops a still
// image over an audio track. The image is scaled to fit and padded to the
// target size, the title is burned in near the bottom edge and encoding
// stops with the shorter input.
func BuildArgs(ffmpegPath, imagePath, audioPath, outputPath string, p Params) []string {
	args := make([]string, 0, 32)
	args = append(args, ffmpegPath, "-hide_banner", "-nostdin", "-loglevel", "error")

	// --- Inputs ---
	args = append(args,
		"-loop", "1",
		"-i", imagePath,
		"-i", audioPath,
	)

	// --- Codecs ---
	args = append(args,
		"-c:v", "libx264",
		"-tune", "stillimage",
		"-c:a", "aac",
		"-b:a", "192k",
		"-b:v", p.Bitrate,
	)

	args = append(args, "-vf", VideoFilter(p))

	// --- Output ---
	args = append(args, "-shortest", "-y", outputPath)
	return args
}

// VideoFilter returns the scale/pad/drawtext filter chain for p.
func VideoFilter(p Params) string {
	filters := []string{
		fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", p.Width, p.Height),
		fmt.Sprintf("pad=%d:%d:(ow-iw)/2:(oh-ih)/2", p.Width, p.Height),
	}
	if p.Title != "" {
		filters = append(filters, fmt.Sprintf(
			"drawtext=expansion=none:text=%s:fontsize=32:fontcolor=white:x=(w-text_w)/2:y=h-40",
			escapeDrawtext(p.Title)))
	}
	filters = append(filters, "format=yuv420p")
	return strings.Join(filters, ",")
}

var (
	// Escaping applied when drawtext parses its key=value options.
	optionEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`, `:`, `\:`)
	// Escaping applied when the filtergraph is split into filters.
	graphEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`, `[`, `\[`, `]`, `\]`, `,`, `\,`, `;`, `\;`)
)

// escapeDrawtext escapes text for both parsing levels it passes through
// before reaching drawtext. Newlines are flattened.
func escapeDrawtext(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	return graphEscaper.Replace(optionEscaper.Replace(text))
}
