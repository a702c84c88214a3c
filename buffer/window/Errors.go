package window

import "errors"

// WindowError implements errors unique to a Window
type WindowError struct {
	Op  string
	Err error
}

// Error satisifes the error interface
func (e *WindowError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

// Unwrap returns the underlying error
func (e *WindowError) Unwrap() error {
	return e.Err
}

var errFull = errors.New("window full")

var errIncomplete = errors.New("window not yet full")

// IsFull returns whether or not an error reports that a transition
// was added to a full Window
func IsFull(err error) bool {
	if windowErr, ok := err.(*WindowError); ok {
		err = windowErr.Err
	}
	return err == errFull
}

// IsIncomplete returns whether or not an error reports that a Window
// was read before it was full
func IsIncomplete(err error) bool {
	if windowErr, ok := err.(*WindowError); ok {
		err = windowErr.Err
	}
	return err == errIncomplete
}
