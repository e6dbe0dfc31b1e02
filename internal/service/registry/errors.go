package registry

import "errors"

var ErrUnknownCaller = errors.New("caller address is required")
