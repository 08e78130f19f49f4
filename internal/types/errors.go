package types

import (
	"errors"
	"fmt"
)

// ConflictError reports committed state that disagrees with what this run
// produced: a manifest entry whose recorded checksum differs for the same
// batch index, or a remote object whose content differs under the same
// key. Both indicate non-determinism upstream and are never auto-resolved.
type ConflictError struct {
	Key        string // object key, set when the conflict is at the store level
	DayKey     string
	BatchIndex int
	Want       string
	Got        string
}

func (e *ConflictError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("object conflict: key %s holds %s, got %s", e.Key, e.Want, e.Got)
	}
	return fmt.Sprintf("manifest conflict: day %s batch %d has checksum %s, got %s",
		e.DayKey, e.BatchIndex, e.Want, e.Got)
}

// ArchiveError reports a file that vanished or changed between enumeration
// and packing. The batch is re-enumerated rather than archived stale.
type ArchiveError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ArchiveError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("archive: %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("archive: %s: %s", e.Path, e.Reason)
}

func (e *ArchiveError) Unwrap() error { return e.Err }

// UploadError wraps a remote store failure. Transient failures are retried
// with backoff, permanent failures abort the day-run immediately.
type UploadError struct {
	Key       string
	Transient bool
	Err       error
}

func (e *UploadError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("upload %s (%s): %v", e.Key, kind, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// Transient wraps err as a retryable upload failure.
func Transient(key string, err error) error {
	return &UploadError{Key: key, Transient: true, Err: err}
}

// Permanent wraps err as a non-retryable upload failure.
func Permanent(key string, err error) error {
	return &UploadError{Key: key, Transient: false, Err: err}
}

// IsTransient reports whether err may succeed on retry.
func IsTransient(err error) bool {
	var ue *UploadError
	return errors.As(err, &ue) && ue.Transient
}

// IsConflict reports whether err is a manifest or upload content conflict.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsArchiveError reports whether err came from a batch whose files changed
// mid-pack, which is recoverable by re-enumerating.
func IsArchiveError(err error) bool {
	var ae *ArchiveError
	return errors.As(err, &ae)
}
