package intent

import "errors"

var (
	ErrNoJSON          = errors.New("model reply contains no JSON object")
	ErrMalformedOutput = errors.New("model reply is not valid JSON")
	ErrSchemaViolation = errors.New("model reply does not match the intent schema")
	ErrInvalidField    = errors.New("model reply has an invalid field")
	ErrNoCompleter     = errors.New("no completion model configured")
	ErrEmptyCompletion = errors.New("completion model returned no content")
	ErrMissingAPIKey   = errors.New("openai apiKey is required")
)
