package authcore

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Request describes one outgoing HTTP call. The body is held as bytes so
// the engine can replay the request verbatim after a token refresh.
type Request struct {
	URL    string
	Method string
	Body   []byte
	Header http.Header
}

// Policy controls how the engine executes one request: authentication,
// notification surfacing, body handling, and the optional custom 401 hook.
type Policy struct {
	// RequiresAuth attaches the Authorization header and arms the
	// refresh-and-replay protocol on 401.
	RequiresAuth bool
	// WithDeviceID appends the dg_id query parameter when the session
	// holds a device id.
	WithDeviceID bool
	// ShowClientError surfaces non-2xx "message" fields through the
	// notification sink.
	ShowClientError bool
	// ShowSuccess surfaces the 2xx "message" field through the
	// notification sink.
	ShowSuccess bool
	// IsTextBody skips JSON handling and returns the raw body as text.
	IsTextBody bool
	// ForcedToken overrides the session token for this call. Used when a
	// newly issued token has not yet been committed to the session.
	ForcedToken string
	// On401 takes over 401 handling entirely: no refresh, no logout.
	On401 func(Result)
	// OnError takes over transport-failure handling; when nil a generic
	// connectivity notification is emitted instead.
	OnError func(error)
	// PendingSetter, when set, is flipped true before the call and false
	// in the finally phase regardless of outcome.
	PendingSetter func(bool)
	// OnFinally runs in the finally phase regardless of outcome.
	OnFinally func()
}

// ResultKind tags the terminal outcome of one engine invocation.
type ResultKind int

const (
	// ResultSuccess is a 2xx response with a parsed body.
	ResultSuccess ResultKind = iota
	// ResultAuthFailure is a terminal authorization failure: exhausted
	// retry, rejected refresh token, or a custom-handled 401.
	ResultAuthFailure
	// ResultClientError is any other non-2xx response.
	ResultClientError
	// ResultTransportError is a connectivity or protocol failure below
	// the status-code layer.
	ResultTransportError
)

// Result is the tagged outcome of [Engine.Execute]. Exactly one invocation
// produces exactly one Result; the refresh sub-protocol never surfaces its
// own.
type Result struct {
	Kind       ResultKind
	StatusCode int
	// Body holds the raw response body for success and client-error
	// outcomes.
	Body []byte
	// Text holds the body for text-mode calls.
	Text string
	// Message is the response's "message" field when one was present.
	Message string
	Err     error
}

// OK reports whether the outcome is a success.
func (r Result) OK() bool { return r.Kind == ResultSuccess }

// Failure returns the outcome's error: nil for success, the specific
// cause when one exists, otherwise [ErrRequestFailed] annotated with the
// status code.
func (r Result) Failure() error {
	if r.Kind == ResultSuccess {
		return nil
	}
	if r.Err != nil {
		return r.Err
	}
	return fmt.Errorf("%w: status %d", ErrRequestFailed, r.StatusCode)
}

// Decode unmarshals the JSON body into v.
func (r Result) Decode(v any) error {
	return json.Unmarshal(r.Body, v)
}

// messageBody is the minimal response shape carrying a user-facing
// message.
type messageBody struct {
	Message string `json:"message"`
}
