package engine

import (
	"errors"
	"fmt"

	"github.com/bamsammich/s3mirror/internal/store"
)

var (
	// ErrUnsupportedStorageClass is returned for source objects stored in a
	// class the restore check cannot handle (e.g. GLACIER).
	ErrUnsupportedStorageClass = errors.New("unsupported storage class")

	// ErrUnsupportedArchiveStatus is returned for intelligent-tiering objects
	// in an archive tier other than ARCHIVE_ACCESS or DEEP_ARCHIVE_ACCESS.
	ErrUnsupportedArchiveStatus = errors.New("unsupported archive status")
)

// ConfigurationError is a per-key failure that retrying cannot fix.
type ConfigurationError struct {
	Err   error
	Key   string
	Value string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("copy %s: %v %q", e.Key, e.Err, e.Value)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// retryable reports whether another attempt could succeed after err. Keys
// that vanish mid-run are not retried either.
func retryable(err error) bool {
	var ce *ConfigurationError
	if errors.As(err, &ce) {
		return false
	}
	if errors.Is(err, store.ErrNotFound) {
		return false
	}
	return !store.IsPermanent(err)
}
