package notify

import "errors"

var (
	ErrEmptyPhone       = errors.New("recipient has no phone number")
	ErrEmptyMessage     = errors.New("message text is empty")
	ErrNotConfigured    = errors.New("telnyx transport requires apiKey and profileID")
	ErrUnknownProvider  = errors.New("unknown notify provider")
	ErrMissingSignature = errors.New("webhook signature missing")
	ErrInvalidSignature = errors.New("webhook signature mismatch")
	ErrTransportPanic   = errors.New("transport panicked")
)
