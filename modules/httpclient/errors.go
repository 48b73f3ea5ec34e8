package httpclient

import "errors"

// ErrInvalidConfig is returned by Config.Validate for inconsistent settings.
var ErrInvalidConfig = errors.New("invalid httpclient configuration")
