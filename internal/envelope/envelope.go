// Package envelope defines the message unit exchanged between the page
// provider, the content relay and the background broker.
package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind identifies an operation or its reply.
type Kind string

// Request kinds.
const (
	KindConnect         Kind = "CONNECT"
	KindGetAddress      Kind = "GET_ADDRESS"
	KindSignTransaction Kind = "SIGN_TRANSACTION"
	KindDisconnect      Kind = "DISCONNECT"
	KindLinkIntercepted Kind = "LINK_INTERCEPTED"
	KindOpenWalletTab   Kind = "OPEN_WALLET_TAB"
	KindGetConfig       Kind = "GET_CONFIG"
)

const (
	resultSuffix = "_RESULT"
	errorSuffix  = "_ERROR"
)

// Result returns the success reply kind for k.
func (k Kind) Result() Kind {
	return k.Request() + resultSuffix
}

// Error returns the failure reply kind for k.
func (k Kind) Error() Kind {
	return k.Request() + errorSuffix
}

// Request strips a reply suffix, returning the originating request kind.
func (k Kind) Request() Kind {
	s := string(k)
	if r, ok := strings.CutSuffix(s, resultSuffix); ok {
		return Kind(r)
	}
	if r, ok := strings.CutSuffix(s, errorSuffix); ok {
		return Kind(r)
	}
	return k
}

// IsReply reports whether k is a _RESULT or _ERROR tag.
func (k Kind) IsReply() bool {
	return k.IsResult() || k.IsError()
}

// IsResult reports whether k is a success reply.
func (k Kind) IsResult() bool {
	return strings.HasSuffix(string(k), resultSuffix)
}

// IsError reports whether k is a failure reply.
func (k Kind) IsError() bool {
	return strings.HasSuffix(string(k), errorSuffix)
}

// Privileged reports whether k starts a broker action that only the relay
// may request. Pages never send these kinds themselves.
func (k Kind) Privileged() bool {
	switch k.Request() {
	case KindLinkIntercepted, KindOpenWalletTab:
		return true
	default:
		return false
	}
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	return string(k)
}

// Source tags. They are hints only and never authorize a message on their own.
const (
	SourcePage       = "sigil-page"
	SourceContent    = "sigil-content"
	SourceBackground = "sigil-background"
)

// RelayMeta is attached by the content relay when forwarding a page request.
type RelayMeta struct {
	Origin     string    `json:"origin"`
	Frame      string    `json:"frame,omitempty"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// Envelope is the typed unit passed between bridge components.
type Envelope struct {
	Kind          Kind            `json:"type"`
	CorrelationID string          `json:"correlationId,omitempty"`
	Source        string          `json:"source,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Relay         *RelayMeta      `json:"relay,omitempty"`
}

// Errors returned while building or decoding envelopes.
var (
	ErrMissingKind    = errors.New("envelope: missing type")
	ErrInvalidPayload = errors.New("envelope: invalid payload")
)

// NewCorrelationID returns a fresh opaque correlation identifier.
func NewCorrelationID() string {
	return uuid.NewString()
}

// New builds a request envelope with a fresh correlation id. A nil payload
// produces an envelope without one.
func New(kind Kind, source string, payload any) (Envelope, error) {
	env := Envelope{
		Kind:          kind,
		CorrelationID: NewCorrelationID(),
		Source:        source,
	}
	if err := env.SetPayload(payload); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// Reply builds a success reply carrying the request's correlation id.
func Reply(req Envelope, source string, payload any) (Envelope, error) {
	env := Envelope{
		Kind:          req.Kind.Result(),
		CorrelationID: req.CorrelationID,
		Source:        source,
	}
	if err := env.SetPayload(payload); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// ErrorReply builds a <KIND>_ERROR reply for req.
func ErrorReply(req Envelope, source, code, message string) Envelope {
	payload, _ := json.Marshal(ErrorPayload{Code: code, Message: message})
	return Envelope{
		Kind:          req.Kind.Error(),
		CorrelationID: req.CorrelationID,
		Source:        source,
		Payload:       payload,
	}
}

// SetPayload marshals v into the envelope.
func (e *Envelope) SetPayload(v any) error {
	if v == nil {
		e.Payload = nil
		return nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		e.Payload = raw
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	e.Payload = data
	return nil
}

// DecodePayload unmarshals the payload into v.
func (e Envelope) DecodePayload(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%w: empty payload for %s", ErrInvalidPayload, e.Kind)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return nil
}

// ErrorInfo returns the error payload of a _ERROR envelope.
func (e Envelope) ErrorInfo() ErrorPayload {
	var p ErrorPayload
	if err := e.DecodePayload(&p); err != nil {
		return ErrorPayload{Message: string(e.Payload)}
	}
	return p
}

// Clone returns a deep copy so receivers never share payload buffers.
func (e Envelope) Clone() Envelope {
	out := e
	if e.Payload != nil {
		out.Payload = append(json.RawMessage(nil), e.Payload...)
	}
	if e.Relay != nil {
		meta := *e.Relay
		out.Relay = &meta
	}
	return out
}

// Marshal encodes the envelope for the wire.
func Marshal(e Envelope) ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses a wire envelope.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("envelope: decode: %w", err)
	}
	if env.Kind == "" {
		return Envelope{}, ErrMissingKind
	}
	return env, nil
}
