package devserver

import "errors"

// ErrNotDevelopment indicates the plan carries no dev server extensions
var ErrNotDevelopment = errors.New("dev server requires a development build plan")
