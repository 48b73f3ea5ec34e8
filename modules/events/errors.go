package events

import "errors"

// ErrInvalidLogLevel is returned for a log level other than DEBUG or INFO.
var ErrInvalidLogLevel = errors.New("invalid events log level")
