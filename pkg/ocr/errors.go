package ocr

import "errors"

var (
	// ErrEmptyImage is returned when no image bytes were supplied.
	ErrEmptyImage = errors.New("empty image")
	// ErrInvalidImage is returned when the payload is not a decodable image.
	ErrInvalidImage = errors.New("invalid image")
	// ErrEngineClosed is returned by Recognize after Close.
	ErrEngineClosed = errors.New("ocr engine closed")
	// ErrInvalidOptions is returned by Options.Validate.
	ErrInvalidOptions = errors.New("invalid filter options")
)
