package types

import "errors"

// ErrUnavailable is returned instead of calling the loader while a key is
// cooling down after a failure and nothing is cached for it.
var ErrUnavailable = errors.New("resource temporarily unavailable")
