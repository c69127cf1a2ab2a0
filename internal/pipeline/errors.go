package pipeline

import (
	"errors"
	"fmt"
)

// ErrMissingAudio means neither the job nor the episode detail carries an
// audio URL.
var ErrMissingAudio = errors.New("could not retrieve audio URL for episode")

// ConversionError wraps a failure to download assets or transcode them.
type ConversionError struct {
	Err error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("conversion failed: %v", e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// PublishError wraps a failure to upload the produced video.
type PublishError struct {
	Err error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("upload failed: %v", e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }
