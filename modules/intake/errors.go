package intake

import "errors"

// ErrTextTooLong is recorded on results rejected for length.
var ErrTextTooLong = errors.New("intake text exceeds the configured limit")
