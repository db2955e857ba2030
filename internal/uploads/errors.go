package uploads

import (
	"errors"
	"fmt"

	"github.com/maneesh/labuploads/internal/pathguard"
)

var (
	// ErrWrongParameterType is returned when no upload names were supplied
	ErrWrongParameterType = pathguard.ErrWrongParameterType

	// ErrInvalidPath is returned when an upload path escapes the root or does not exist
	ErrInvalidPath = pathguard.ErrInvalidPath

	// ErrNoPrivileges is returned when the caller neither owns the uploads nor is privileged
	ErrNoPrivileges = errors.New("no privileges")

	// ErrNotAssociated is returned when an existing file has no owner
	ErrNotAssociated = errors.New("upload not associated")
)

// OpError reports a failed collaborator call during a lifecycle operation
type OpError struct {
	Op   string // e.g. "index.remove", "files.delete", "posts.dissociate"
	Path string // upload path, when the failure concerns one
	Err  error
}

func (e *OpError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func opErr(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Path: path, Err: err}
}
