package scan

import "errors"

var (
	ErrCancelled    = errors.New("scan: cancelled")
	ErrUnknownWorld = errors.New("scan: unknown world")
)
