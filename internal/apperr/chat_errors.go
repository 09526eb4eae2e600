package apperr

var (
	ErrAuthMissing    = Unauthorized("missing credential")
	ErrAuthInvalid    = Unauthorized("invalid credential")
	ErrInvalidPayload = InvalidArg("invalid payload")
	ErrEmptyContent   = InvalidArg("content is required")
	ErrMissingSender  = InvalidArg("senderId is required")
	ErrMissingTarget  = InvalidArg("toUserId is required")
	ErrNotIdentified  = InvalidArg("identify first")
	ErrUserMismatch   = InvalidArg("userId does not match credential")
	ErrForeignHistory = Forbidden("not a participant of this conversation")
	ErrRateLimited    = New(CodeUnavailable, "rate limited")
)

// Persistence wraps a store or cipher failure during a send
func Persistence(cause error) error {
	return Wrap(CodeUnavailable, "send failed", cause)
}

// HistoryUnavailable wraps a store or cipher failure while reading history
func HistoryUnavailable(cause error) error {
	return Wrap(CodeUnavailable, "history unavailable", cause)
}
