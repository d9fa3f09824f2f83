package buildplan

import (
	"errors"
	"fmt"
)

// ErrInvalidMode indicates the build mode is missing or not recognised
var ErrInvalidMode = errors.New("invalid build mode")

// InvalidModeError carries the rejected mode value
type InvalidModeError struct {
	Mode string
}

func (e *InvalidModeError) Error() string {
	if e.Mode == "" {
		return fmt.Sprintf("%s: mode is required (expected %q or %q)", ErrInvalidMode, Development, Production)
	}
	return fmt.Sprintf("%s: %q (expected %q or %q)", ErrInvalidMode, e.Mode, Development, Production)
}

func (e *InvalidModeError) Is(target error) bool {
	return target == ErrInvalidMode
}
