package capture

import "errors"

var (
	// ErrQueueFull is reported when every worker is busy and the queue is full.
	ErrQueueFull = errors.New("capture queue full")

	// ErrTimeout is reported when a capture exceeds its deadline.
	ErrTimeout = errors.New("capture timed out")

	// ErrStopped is reported for requests made after the worker stopped.
	ErrStopped = errors.New("capture stopped")

	// ErrCaptureFailed wraps a failing camera command.
	ErrCaptureFailed = errors.New("capture command failed")

	// ErrEmptyFrame is returned when the camera produced no bytes.
	ErrEmptyFrame = errors.New("capture produced no data")

	// ErrFrameTooLarge is reported when the encoded frame exceeds the bus
	// payload limit.
	ErrFrameTooLarge = errors.New("frame too large to publish")

	// ErrNotJPEG is returned when the output lacks a JPEG start-of-image marker.
	ErrNotJPEG = errors.New("capture output is not a JPEG")
)
