package authcore

import "errors"

var (
	// ErrNotAuthenticated is returned when an authenticated call is issued
	// without a valid session token or forced token.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrRefreshTokenMissing is returned when the refresh state is entered
	// with no refresh token available.
	ErrRefreshTokenMissing = errors.New("refresh token missing")
	// ErrRefreshRejected is returned when the refresh endpoint rejects the
	// refresh token (HTTP 400 or 401) and the session is cleared.
	ErrRefreshRejected = errors.New("refresh token rejected")
	// ErrRefreshUnavailable is returned when the refresh endpoint answers
	// with a status outside {2xx, 400, 401}.
	ErrRefreshUnavailable = errors.New("refresh endpoint unavailable")
	// ErrRetryExhausted is returned when the replayed request fails with
	// 401 again after a successful refresh.
	ErrRetryExhausted = errors.New("retry after refresh exhausted")
	// ErrFlowBusy is returned when a login-flow operation is requested
	// while another fetch is still armed.
	ErrFlowBusy = errors.New("login flow busy")
	// ErrFlowStage is returned when a login-flow operation is not valid in
	// the current stage.
	ErrFlowStage = errors.New("operation not valid in current stage")
	// ErrPhoneMomentMalformed is returned when a stored phone moment does
	// not have the expected delimited shape.
	ErrPhoneMomentMalformed = errors.New("phone moment malformed")
	// ErrStoreNotReady is returned when a key-value collaborator is read
	// before it reports readiness.
	ErrStoreNotReady = errors.New("store not ready")
	// ErrWrongCode is returned when the OTP verification endpoint rejects
	// the submitted code.
	ErrWrongCode = errors.New("wrong verification code")
	// ErrRequestFailed is the generic error for a non-2xx outcome that
	// carries no more specific cause.
	ErrRequestFailed = errors.New("request not successful")
	// ErrCoreNotReady is returned when an Engine or LoginFlow is used
	// before initialization through the builder.
	ErrCoreNotReady = errors.New("core not initialized")
)
