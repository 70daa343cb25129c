// internal/i18n/keys.go
package i18n

// Translation keys constants
const (
	// Common
	KeySuccess = "success"
	KeyError   = "error"

	// Authentication
	KeyAuthRequired     = "auth.required"
	KeyAuthInvalidToken = "auth.invalid_token"
	KeyAuthTokenExpired = "auth.token_expired"
	KeyAccessDenied     = "auth.access_denied"
	KeyCronSecret       = "auth.invalid_cron_secret"

	// Validation
	KeyValidationInvalid = "validation.invalid"
	KeyInvalidID         = "validation.invalid_id"

	// Broadcasts
	KeyBroadcastNotFound  = "broadcast.not_found"
	KeyBroadcastCreated   = "broadcast.created"
	KeyBroadcastCancelled = "broadcast.cancelled"
	KeyBroadcastResolved  = "broadcast.resolved"

	// Requests and quotes
	KeyRequestNotFound = "request.not_found"
	KeyQuoteSubmitted  = "request.quote_submitted"
	KeyQuoteRejected   = "request.quote_rejected"
	KeyRequestDeclined = "request.declined"
	KeyInvalidState    = "request.invalid_state"
	KeyTooLateToQuote  = "request.too_late_to_quote"
	KeyStaleQuote      = "request.stale_quote"
	KeyAlreadyResolved = "request.already_resolved"

	// System
	KeyRateLimited   = "system.rate_limited"
	KeyInternalError = "system.internal_error"
	KeySweepComplete = "system.sweep_complete"
)
