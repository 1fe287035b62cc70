package rooms

import "errors"

// ErrNotFound indicates a missing room record.
var ErrNotFound = errors.New("room: not found")
