package runtime

import (
	"errors"
	"fmt"
)

var (
	ErrRuntime        = errors.New("runtime error")
	ErrEmptyIndex     = errors.New("empty image index")
	ErrEmptyArchive   = errors.New("archive contains no image")
	ErrMultipleImages = errors.New("archive contains more than one image")
)

// Non-zero exit of the entry command started by [Runtime.Run].
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command exited with code %d", e.Code)
}
