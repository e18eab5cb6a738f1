package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Validation errors (100-199)
	ErrCodeInvalidParameter      ErrorCode = 100
	ErrCodeInvalidConfiguration  ErrorCode = 101
	ErrCodeInvalidSignal         ErrorCode = 102
	ErrCodeInvalidOrder          ErrorCode = 103
	ErrCodeInvalidPosition       ErrorCode = 104
	ErrCodeInvalidFill           ErrorCode = 105
	ErrCodeInvalidWindow         ErrorCode = 106
	ErrCodeDestructiveNotAllowed ErrorCode = 107
	ErrCodeInvalidStatusChange   ErrorCode = 108
	ErrCodeUnsupportedOperation  ErrorCode = 109
	ErrCodeIncompatibleVersion   ErrorCode = 110

	// Connection errors (200-299)
	ErrCodeConnectionFailed  ErrorCode = 200
	ErrCodeMalformedURI      ErrorCode = 201
	ErrCodeUnsupportedDriver ErrorCode = 202
	ErrCodeLivenessFailed    ErrorCode = 203

	// Data access errors (300-399)
	ErrCodeQueryFailed       ErrorCode = 300
	ErrCodeWriteFailed       ErrorCode = 301
	ErrCodeTransactionFailed ErrorCode = 302
	ErrCodeDataNotFound      ErrorCode = 303
	ErrCodeSchemaFailed      ErrorCode = 304
	ErrCodeExportFailed      ErrorCode = 305

	// Lifecycle errors (400-499)
	ErrCodeInvalidOrderState ErrorCode = 400

	// Exchange errors (500-599)
	ErrCodeExchangeFailed ErrorCode = 500
)

// Kind groups error codes into the categories callers are expected to handle.
type Kind string

const (
	KindUnknown           Kind = "unknown"
	KindValidation        Kind = "validation"
	KindConnection        Kind = "connection"
	KindDataAccess        Kind = "data_access"
	KindInvalidOrderState Kind = "invalid_order_state"
	KindExchange          Kind = "exchange"
)

// Kind returns the category the code belongs to.
func (c ErrorCode) Kind() Kind {
	switch {
	case c >= 100 && c < 200:
		return KindValidation
	case c >= 200 && c < 300:
		return KindConnection
	case c >= 300 && c < 400:
		return KindDataAccess
	case c >= 400 && c < 500:
		return KindInvalidOrderState
	case c >= 500 && c < 600:
		return KindExchange
	default:
		return KindUnknown
	}
}
