package settings

import "errors"

// Settings errors.
var (
	// ErrUndeclared is returned when an option was never declared.
	ErrUndeclared = errors.New("option not declared")

	// ErrMalformed is returned when the backing file is not a flat JSON object.
	ErrMalformed = errors.New("settings file malformed")

	// ErrBackupExists is returned when recovery would overwrite a prior backup.
	ErrBackupExists = errors.New("backup file already exists")
)
