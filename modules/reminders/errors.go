package reminders

import "errors"

var (
	ErrEmptyJobName = errors.New("job name is empty")
	ErrNilJob       = errors.New("job function is nil")
	ErrInvalidSpec  = errors.New("invalid cron expression")
	ErrJobNotFound  = errors.New("job not found")
	ErrJobRunning   = errors.New("job is already running")
	ErrNoPhone      = errors.New("user has no phone number")
)
