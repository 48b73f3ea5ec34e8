package store

import "errors"

// Static error definitions to avoid dynamic error creation (err113 linter)
var (
	// ErrUnsupportedDriver is returned when the configured driver is not compiled in
	ErrUnsupportedDriver = errors.New("unsupported database driver")

	// ErrEmptyDSN is returned when no DSN is configured
	ErrEmptyDSN = errors.New("database DSN cannot be empty")

	// ErrInvalidTableName is returned when an invalid table name is used
	ErrInvalidTableName = errors.New("invalid table name: must start with letter/underscore and contain only alphanumeric/underscore characters")

	// ErrDuplicateUser is returned when an email is already registered
	ErrDuplicateUser = errors.New("user with this email already exists")

	// ErrUnknownLockBackend is returned for a lock backend other than memory or redis
	ErrUnknownLockBackend = errors.New("unknown lock backend")

	// ErrStoreServiceInvalid is returned when the store service has the wrong type
	ErrStoreServiceInvalid = errors.New("store service is not a store.Store")
)
