package registry

import (
	"errors"
	"fmt"
)

var (
	// ErrRegression means a publish was blocked by the regression gate
	ErrRegression = errors.New("accuracy regression")
	// ErrArtifactMissing means an archived or source artifact file does not exist
	ErrArtifactMissing = errors.New("model artifact missing")
	// ErrVersionNotFound means the model or version is not in the registry
	ErrVersionNotFound = errors.New("model version not found")
	// ErrChecksumMismatch means an archive no longer matches the checksum recorded at publish time
	ErrChecksumMismatch = errors.New("model artifact checksum mismatch")
	// ErrConcurrentUpdate means the current pointer moved while an operation was in flight
	ErrConcurrentUpdate = errors.New("registry updated concurrently")
)

// ModelError reports a registry operation the caller has to handle explicitly
type ModelError struct {
	Op      string
	Model   string
	Version string
	Detail  string
	Err     error
}

func (e *ModelError) Error() string {
	msg := fmt.Sprintf("%s %s", e.Op, e.Model)
	if e.Version != "" {
		msg += " " + e.Version
	}
	msg += ": " + e.Err.Error()
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func (e *ModelError) Unwrap() error {
	return e.Err
}
