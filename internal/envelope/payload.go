package envelope

// AddressPayload answers CONNECT and GET_ADDRESS.
type AddressPayload struct {
	Address string `json:"address"`
}

// SignRequest carries an unsigned transaction.
type SignRequest struct {
	Transaction string `json:"transaction"`
}

// SignResult carries a signed transaction.
type SignResult struct {
	SignedTransaction string `json:"signedTransaction"`
}

// ErrorPayload describes a failure reply.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// LinkPayload is sent when the relay intercepts a crypto URI click.
type LinkPayload struct {
	Scheme string `json:"scheme"`
	URI    string `json:"uri"`
}

// ConfigPayload is the GET_CONFIG reply shape.
type ConfigPayload struct {
	WalletURL      string   `json:"walletUrl"`
	AllowedOrigins []string `json:"allowedOrigins"`
}

// AckPayload is the generic {success, error} reply.
type AckPayload struct {
	Success   bool   `json:"success"`
	Forwarded bool   `json:"forwarded,omitempty"`
	Error     string `json:"error,omitempty"`
}

// TabPayload reports the tab that was opened or focused.
type TabPayload struct {
	URL string `json:"url"`
}

// Error codes carried in ErrorPayload.Code.
const (
	CodeUserRejected      = "USER_REJECTED"
	CodeRelayUnavailable  = "RELAY_UNAVAILABLE"
	CodeOriginNotAllowed  = "ORIGIN_NOT_ALLOWED"
	CodeWalletUnavailable = "WALLET_UNAVAILABLE"
	CodeHandlerFailed     = "HANDLER_FAILED"
	CodeInvalidRequest    = "INVALID_REQUEST"
	CodeRateLimited       = "RATE_LIMITED"
)
