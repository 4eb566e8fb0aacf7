package pca9685

import "errors"

var (
	// ErrInvalidChannel is returned for channel indexes outside 0-15.
	ErrInvalidChannel = errors.New("pca9685: invalid channel")

	// ErrClosed is returned when writing through a closed driver.
	ErrClosed = errors.New("pca9685: driver closed")
)
