package nodes

// ErrorKind classifies handler failures
type ErrorKind string

const (
	// NodeIOError covers network and database transport failures
	NodeIOError ErrorKind = "NodeIOError"
	// CodeTimeout indicates user code exceeded the sandbox wall clock
	CodeTimeout ErrorKind = "CodeTimeout"
	// CodeRuntimeError indicates user code threw
	CodeRuntimeError ErrorKind = "CodeRuntimeError"
	// ConfigMissing indicates a required credential or setting is absent
	ConfigMissing ErrorKind = "ConfigMissing"
	// UpstreamError indicates a non-2xx response from an external API
	UpstreamError ErrorKind = "UpstreamError"
	// OAuthExchangeFailed indicates the provider rejected an authorization code
	OAuthExchangeFailed ErrorKind = "OAuthExchangeFailed"
	// OAuthRefreshFailed indicates the provider rejected a refresh token
	OAuthRefreshFailed ErrorKind = "OAuthRefreshFailed"
)

// HandlerError is the failure type every handler returns. The scheduler
// only needs the message; the kind is for logs and tests.
type HandlerError struct {
	Kind    ErrorKind
	Message string
}

func (e *HandlerError) Error() string {
	return e.Message
}

// NewHandlerError creates a classified handler failure
func NewHandlerError(kind ErrorKind, message string) *HandlerError {
	return &HandlerError{Kind: kind, Message: message}
}
