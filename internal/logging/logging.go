package logging

import (
	"io"
	"log"
	"os"

	"github.com/mattn/go-isatty"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Configure sets up rotating file logging at the given path. Output is
// mirrored to stderr when it is a terminal. An empty path leaves the
// standard logger alone.
func Configure(path string) io.Closer {
	if path == "" {
		return nopCloser{}
	}
	rotating := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   false,
	}
	if interactive(os.Stderr) {
		log.SetOutput(io.MultiWriter(os.Stderr, rotating))
	} else {
		log.SetOutput(rotating)
	}
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	return rotating
}

func interactive(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
