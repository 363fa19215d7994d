package notes

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation indicates malformed caller input; nothing was mutated.
	ErrValidation = errors.New("notes: validation failed")
	// ErrNotFound indicates a mutation against an unknown note or category.
	ErrNotFound = errors.New("notes: not found")
	// ErrAuthenticationRequired indicates a remote operation attempted without a principal.
	ErrAuthenticationRequired = errors.New("notes: authentication required")
	// ErrRemoteTransient indicates a remote call failed after the local mutation was applied.
	ErrRemoteTransient = errors.New("notes: remote write not confirmed")
	// ErrStorageCorruption indicates a cached snapshot failed structural validation.
	ErrStorageCorruption = errors.New("notes: cached snapshot corrupted")
)

// Errors reported by RemoteStore implementations.
var (
	ErrRemoteUnauthenticated = errors.New("remote: no principal")
	ErrRemoteNotFound        = errors.New("remote: document not found")
	ErrRemotePermission      = errors.New("remote: permission denied")
	ErrRemoteQuota           = errors.New("remote: quota exceeded")
	ErrRemoteUnavailable     = errors.New("remote: unavailable")
)

// ServiceError carries a dotted operation.reason code for failures outside the taxonomy.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

const (
	reasonSynced              = "synced"
	reasonRemoteUnconfigured  = "remote_unconfigured"
	reasonAuthRequired        = "auth_required"
	reasonRemoteNotFound      = "not_found"
	reasonPermissionDenied    = "permission_denied"
	reasonQuotaExceeded       = "quota_exceeded"
	reasonTransient           = "transient"
	reasonIDGenerationFailed  = "id_generation_failed"
	reasonIDCollision         = "id_collision"
	reasonMissingIDProvider   = "missing_id_provider"
	reasonMissingRemote       = "missing_remote"
	reasonCacheWriteFailed    = "cache_write_failed"
	reasonCacheReadFailed     = "cache_read_failed"
	reasonSnapshotCorrupted   = "snapshot_corrupted"
	reasonRemoteLoadFailed    = "remote_load_failed"
	reasonRemoteWriteFailed   = "remote_write_failed"
	reasonRemoteDeleteFailed  = "remote_delete_failed"
	reasonSnapshotEncodeError = "snapshot_encode_failed"
)

// classifyRemoteError maps a RemoteStore failure to an outcome reason.
func classifyRemoteError(err error) string {
	switch {
	case errors.Is(err, ErrRemoteUnauthenticated), errors.Is(err, ErrAuthenticationRequired):
		return reasonAuthRequired
	case errors.Is(err, ErrRemoteNotFound):
		return reasonRemoteNotFound
	case errors.Is(err, ErrRemotePermission):
		return reasonPermissionDenied
	case errors.Is(err, ErrRemoteQuota):
		return reasonQuotaExceeded
	default:
		return reasonTransient
	}
}

// remoteFailure lifts a RemoteStore error into the engine taxonomy.
func remoteFailure(err error) error {
	if errors.Is(err, ErrAuthenticationRequired) {
		return err
	}
	if errors.Is(err, ErrRemoteUnauthenticated) {
		return fmt.Errorf("%w: %w", ErrAuthenticationRequired, err)
	}
	return fmt.Errorf("%w: %w", ErrRemoteTransient, err)
}
