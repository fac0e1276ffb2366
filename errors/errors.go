package errors

import "fmt"

var (
	ErrWorkerPanic       = fmt.Errorf("worker panic")
	ErrUnknownAlias      = fmt.Errorf("unknown user alias")
	ErrNotOwner          = fmt.Errorf("only the owner can change this item")
	ErrEmptyMessage      = fmt.Errorf("message is empty")
	ErrInvalidRow        = fmt.Errorf("invalid row")
	ErrInvalidQuery      = fmt.Errorf("invalid query")
	ErrRemote            = fmt.Errorf("remote store error")
	ErrSessionClosed     = fmt.Errorf("session closed")
	ErrBlobExists        = fmt.Errorf("blob already exists")
	ErrBlobNotFound      = fmt.Errorf("blob not found")
	ErrInvalidBlobPath   = fmt.Errorf("invalid blob path")
	ErrUnsupportedBlob   = fmt.Errorf("unsupported blob content type")
	ErrInvalidSignature  = fmt.Errorf("invalid signed url")
	ErrSignedURLExpired  = fmt.Errorf("signed url expired")
	ErrDeliveryFailed    = fmt.Errorf("push delivery failed")
	ErrPermissionDenied  = fmt.Errorf("notification permission denied")
	ErrChannelClosed     = fmt.Errorf("channel closed")
	ErrMissingDeliveryID = fmt.Errorf("missing content or targetUserId")
)
