package authcore

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/digitoon/authcore/internal"
	"github.com/digitoon/authcore/session"
)

// RefreshFunc is the refresh-endpoint collaborator: a call returning the
// raw HTTP response of the refresh exchange. The engine reads the new
// token pair out of its JSON body using the configured field names, so it
// stays agnostic of the endpoint's shape.
type RefreshFunc func(ctx context.Context) (*http.Response, error)

// trialState is the three-state sub-machine governing one authenticated
// call's retry lifecycle.
type trialState int

const (
	trialFirst trialState = iota
	trialRefresh
	trialSecond
)

// Engine executes authenticated HTTP calls under the bounded
// refresh-and-replay protocol. Construct through [Builder.Build].
type Engine struct {
	cfg      Config
	client   *http.Client
	session  *session.Session
	refresh  RefreshFunc
	notifier *notifyDispatcher
	metrics  *Metrics
}

// Session returns the session this engine mutates.
func (e *Engine) Session() *session.Session {
	if e == nil {
		return nil
	}
	return e.session
}

// Metrics returns the engine's counters.
func (e *Engine) Metrics() *Metrics {
	if e == nil {
		return nil
	}
	return e.metrics
}

// MetricsSnapshot copies the engine's counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

// NotificationsDropped reports how many notices the dispatcher discarded.
func (e *Engine) NotificationsDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.notifier.Dropped()
}

// NotificationShown reports whether a notice occupies the pending slot.
func (e *Engine) NotificationShown() bool {
	if e == nil {
		return false
	}
	return e.notifier.Shown()
}

// Notify emits a notice through the engine's dispatcher.
func (e *Engine) Notify(ctx context.Context, n Notification) {
	if e == nil {
		return
	}
	e.notifier.Show(ctx, n)
}

// ClearNotification dismisses the pending notice.
func (e *Engine) ClearNotification(ctx context.Context) {
	if e == nil {
		return
	}
	e.notifier.Clear(ctx)
}

// Close drains and stops the notification dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.notifier.Close()
}

// Execute runs one request to completion under the trial state machine:
// first trial, at most one refresh, at most one replay. The refresh call
// always fully completes before the replay is issued, and the replay
// carries the original method, body, and headers verbatim; only the
// authorization token may differ. The finally phase (pending flag,
// OnFinally) runs regardless of outcome.
func (e *Engine) Execute(ctx context.Context, req Request, pol Policy) Result {
	if e == nil || e.session == nil {
		return Result{Kind: ResultTransportError, Err: ErrCoreNotReady}
	}

	if pol.PendingSetter != nil {
		pol.PendingSetter(true)
	}
	defer func() {
		if pol.PendingSetter != nil {
			pol.PendingSetter(false)
		}
		if pol.OnFinally != nil {
			pol.OnFinally()
		}
	}()

	if pol.RequiresAuth && !e.session.LoggedIn() && pol.ForcedToken == "" {
		e.metrics.Inc(MetricFetchAuthFailure)
		return Result{Kind: ResultAuthFailure, Err: ErrNotAuthenticated}
	}

	url := req.URL
	if len(e.cfg.UTMParams) > 0 {
		url = internal.AddParams(url, e.cfg.UTMParams)
	}
	if pol.WithDeviceID {
		if id := e.session.DeviceID(); id != "" {
			url = internal.AddParam(url, "dg_id", id)
		}
	}

	state := trialFirst
	for {
		switch state {
		case trialFirst, trialSecond:
			res, next := e.runTrial(ctx, url, req, pol, state)
			if next == nil {
				return res
			}
			state = *next

		case trialRefresh:
			res, next := e.runRefresh(ctx)
			if next == nil {
				return res
			}
			state = *next
		}
	}
}

// runTrial issues the request once and classifies the response. A non-nil
// next state means the machine continues (401 on first trial with a
// refresh token available); otherwise the returned Result is terminal.
func (e *Engine) runTrial(ctx context.Context, url string, req Request, pol Policy, state trialState) (Result, *trialState) {
	token := e.callToken(pol)

	resp, err := e.do(ctx, url, req, pol, token)
	if err != nil {
		return e.transportFailure(ctx, pol, err), nil
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return e.transportFailure(ctx, pol, readErr), nil
	}

	if internal.ClassifyStatus(resp.StatusCode) == internal.RangeSuccessful {
		return e.successResult(ctx, resp.StatusCode, body, pol), nil
	}

	if resp.StatusCode == http.StatusUnauthorized {
		res := Result{Kind: ResultAuthFailure, StatusCode: resp.StatusCode, Body: body}

		if pol.On401 != nil {
			pol.On401(res)
			e.metrics.Inc(MetricFetchAuthFailure)
			return res, nil
		}
		if token != "" && e.session.RefreshToken() == "" {
			e.forceLogout(ctx)
			res.Err = ErrRefreshTokenMissing
			e.metrics.Inc(MetricFetchAuthFailure)
			return res, nil
		}
		if token != "" && state == trialFirst {
			next := trialRefresh
			return Result{}, &next
		}
		if state == trialSecond {
			// Second consecutive 401: terminal, never a second refresh.
			res.Err = ErrRetryExhausted
			e.metrics.Inc(MetricFetchAuthFailure)
			return res, nil
		}
		// 401 on an unauthenticated call with no token in play.
		return e.clientErrorResult(ctx, resp.StatusCode, body, pol), nil
	}

	return e.clientErrorResult(ctx, resp.StatusCode, body, pol), nil
}

// runRefresh drives the refresh sub-protocol. On success the machine
// moves to the second trial; every other path is terminal.
func (e *Engine) runRefresh(ctx context.Context) (Result, *trialState) {
	if e.session.RefreshToken() == "" {
		e.forceLogout(ctx)
		e.metrics.Inc(MetricFetchAuthFailure)
		return Result{Kind: ResultAuthFailure, Err: ErrRefreshTokenMissing}, nil
	}
	if e.refresh == nil {
		e.metrics.Inc(MetricRefreshFailure)
		return Result{Kind: ResultTransportError, Err: ErrCoreNotReady}, nil
	}

	e.metrics.Inc(MetricRefreshAttempt)

	resp, err := e.refresh(ctx)
	if err != nil {
		e.metrics.Inc(MetricRefreshFailure)
		return Result{Kind: ResultTransportError, Err: err}, nil
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		e.metrics.Inc(MetricRefreshFailure)
		return Result{Kind: ResultTransportError, Err: readErr}, nil
	}

	switch {
	case internal.ClassifyStatus(resp.StatusCode) == internal.RangeSuccessful:
		var fields map[string]json.RawMessage
		if jsonErr := json.Unmarshal(body, &fields); jsonErr != nil {
			e.metrics.Inc(MetricRefreshFailure)
			return Result{Kind: ResultTransportError, StatusCode: resp.StatusCode, Err: jsonErr}, nil
		}
		token := stringField(fields, e.cfg.Tokens.ResponseTokenKey)
		refresh := stringField(fields, e.cfg.Tokens.ResponseRefreshTokenKey)
		e.session.Login(ctx, token, refresh)
		e.metrics.Inc(MetricRefreshSuccess)
		next := trialSecond
		return Result{}, &next

	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized:
		// The refresh token itself is expired or the device is revoked.
		e.forceLogout(ctx)
		e.metrics.Inc(MetricRefreshFailure)
		return Result{Kind: ResultAuthFailure, StatusCode: resp.StatusCode, Err: ErrRefreshRejected}, nil

	default:
		// Out-of-contract refresh status (e.g. 500): terminal failure,
		// session untouched, no replay.
		e.metrics.Inc(MetricRefreshFailure)
		return Result{
			Kind:       ResultClientError,
			StatusCode: resp.StatusCode,
			Body:       body,
			Err:        ErrRefreshUnavailable,
		}, nil
	}
}

// callToken picks the token for the current attempt. A forced token takes
// precedence over the session token for the whole invocation, replay
// included.
func (e *Engine) callToken(pol Policy) string {
	if pol.ForcedToken != "" {
		return pol.ForcedToken
	}
	if pol.RequiresAuth {
		return e.session.Token()
	}
	return ""
}

// do issues the HTTP call with the client's default headers. Caller
// headers override defaults; the body is re-materialized from the stored
// bytes so every attempt sends identical content.
func (e *Engine) do(ctx context.Context, url string, req Request, pol Policy, token string) (*http.Response, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, body)
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Accept-Language", e.cfg.Messages.AcceptLanguage)
	httpReq.Header.Set("Content-Type", "application/json")
	if token != "" {
		httpReq.Header.Set("Accept-Language", e.cfg.Messages.AuthAcceptLanguage)
		httpReq.Header.Set("Authorization", "Token "+token)
	}
	for name, values := range req.Header {
		httpReq.Header.Del(name)
		for _, v := range values {
			httpReq.Header.Add(name, v)
		}
	}

	return e.client.Do(httpReq)
}

func (e *Engine) successResult(ctx context.Context, status int, body []byte, pol Policy) Result {
	res := Result{Kind: ResultSuccess, StatusCode: status, Body: body}

	// Dismiss any pending notice before a fresh success notice goes up, so
	// the success notice is what stays visible.
	e.notifier.Clear(ctx)

	if pol.IsTextBody {
		res.Text = string(body)
	} else {
		var msg messageBody
		if err := json.Unmarshal(body, &msg); err == nil {
			res.Message = msg.Message
		}
		if pol.ShowSuccess {
			e.notifier.Show(ctx, Notification{Type: NotifSuccess, Message: res.Message})
		}
	}
	e.metrics.Inc(MetricFetchSuccess)
	return res
}

func (e *Engine) clientErrorResult(ctx context.Context, status int, body []byte, pol Policy) Result {
	res := Result{Kind: ResultClientError, StatusCode: status, Body: body}

	var msg messageBody
	if err := json.Unmarshal(body, &msg); err == nil {
		res.Message = msg.Message
	}
	if pol.ShowClientError {
		e.notifier.Show(ctx, Notification{Type: NotifError, Message: res.Message})
	}

	e.metrics.Inc(MetricFetchClientError)
	return res
}

func (e *Engine) transportFailure(ctx context.Context, pol Policy, err error) Result {
	if pol.OnError != nil {
		pol.OnError(err)
	} else {
		e.notifier.Show(ctx, Notification{Type: NotifError, Message: e.cfg.Messages.Connectivity})
	}
	e.metrics.Inc(MetricFetchTransportError)
	return Result{Kind: ResultTransportError, Err: err}
}

func (e *Engine) forceLogout(ctx context.Context) {
	e.session.Logout(ctx)
	e.metrics.Inc(MetricForcedLogout)
}

func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
