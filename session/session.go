package session

import (
	"context"
	"encoding/json"
	"log"
	"sync"
)

// ErrNotReady is returned when Hydrate runs before both stores report
// readiness.
var ErrNotReady = errorNotReady{}

type errorNotReady struct{}

func (errorNotReady) Error() string { return "session stores not ready" }

// minTokenLength is the sole client-side token validity threshold. No
// expiry parsing happens on the client; tokens are opaque.
const minTokenLength = 10

// IsValidToken reports whether token passes the minimum-length validity
// check used to derive the logged-in flag.
func IsValidToken(token string) bool {
	return len(token) > minTokenLength
}

// Session is the single owner of the client's authentication state. All
// mutators are atomic: related fields change together under one lock, and
// each change is mirrored into the appropriate store.
type Session struct {
	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	deviceID     string
	loggedIn     bool
	profile      *Profile

	scope   Store // tokens, device id
	durable Store // profile, phone moment
	keys    Keys
}

// New returns a Session persisting into the given session-scope and
// durable stores under the given key names.
func New(scope, durable Store, keys Keys) *Session {
	return &Session{scope: scope, durable: durable, keys: keys}
}

// Login commits a token pair and recomputes the logged-in flag from the
// new access token. Empty values do not overwrite previously held tokens,
// but the flag always reflects the token passed here. Both values are
// mirrored into the session-scope store.
func (s *Session) Login(ctx context.Context, token, refreshToken string) {
	s.mu.Lock()
	if token != "" {
		s.accessToken = token
	}
	if refreshToken != "" {
		s.refreshToken = refreshToken
	}
	s.loggedIn = IsValidToken(token)
	s.mu.Unlock()

	s.mirror(ctx, s.scope, s.keys.Token, token)
	s.mirror(ctx, s.scope, s.keys.RefreshToken, refreshToken)
}

// Logout clears tokens, the logged-in flag, and the profile, and removes
// their persisted values. The device id survives logout: it correlates the
// device, not the account, and the next login still needs it.
func (s *Session) Logout(ctx context.Context) {
	s.mu.Lock()
	s.accessToken = ""
	s.refreshToken = ""
	s.loggedIn = false
	s.profile = nil
	s.mu.Unlock()

	s.clear(ctx, s.scope, s.keys.Token)
	s.clear(ctx, s.scope, s.keys.RefreshToken)
	s.clear(ctx, s.durable, s.keys.Profile)
}

// SetProfile replaces the profile wholesale and mirrors its JSON form into
// the durable store. A nil profile clears the persisted value.
func (s *Session) SetProfile(ctx context.Context, p *Profile) {
	s.mu.Lock()
	s.profile = p
	s.mu.Unlock()

	if p == nil {
		s.clear(ctx, s.durable, s.keys.Profile)
		return
	}
	data, err := json.Marshal(p)
	if err != nil {
		log.Print("authcore: profile serialization failed")
		return
	}
	s.mirror(ctx, s.durable, s.keys.Profile, string(data))
}

// SetDeviceID commits the device/session correlation id and mirrors it
// into the session-scope store.
func (s *Session) SetDeviceID(ctx context.Context, id string) {
	s.mu.Lock()
	s.deviceID = id
	s.mu.Unlock()

	s.mirror(ctx, s.scope, s.keys.DeviceID, id)
}

// Hydrate loads persisted state at startup: tokens (recomputing the
// logged-in flag), device id, and profile. A malformed persisted profile
// is logged and discarded, never surfaced. Both tokens must be present for
// the pair to be committed.
func (s *Session) Hydrate(ctx context.Context) error {
	if !s.scope.Ready(ctx) || !s.durable.Ready(ctx) {
		return ErrNotReady
	}

	if raw, err := s.durable.Get(ctx, s.keys.Profile); err == nil && raw != "" {
		var p Profile
		if jsonErr := json.Unmarshal([]byte(raw), &p); jsonErr != nil {
			log.Print("authcore: could not parse persisted profile")
			_ = s.durable.Clear(ctx, s.keys.Profile)
		} else {
			s.mu.Lock()
			s.profile = &p
			s.mu.Unlock()
		}
	}

	token, err := s.scope.Get(ctx, s.keys.Token)
	if err != nil {
		return err
	}
	refresh, err := s.scope.Get(ctx, s.keys.RefreshToken)
	if err != nil {
		return err
	}
	if token != "" && refresh != "" {
		s.Login(ctx, token, refresh)
	}

	deviceID, err := s.scope.Get(ctx, s.keys.DeviceID)
	if err != nil {
		return err
	}
	if deviceID != "" {
		s.mu.Lock()
		s.deviceID = deviceID
		s.mu.Unlock()
	}
	return nil
}

// Token returns the current access token.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// RefreshToken returns the current refresh token.
func (s *Session) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}

// DeviceID returns the device/session correlation id, or "" when none has
// been minted yet.
func (s *Session) DeviceID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deviceID
}

// LoggedIn reports whether the session holds a valid access token.
func (s *Session) LoggedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loggedIn
}

// Profile returns the current profile, or nil when none is loaded.
func (s *Session) Profile() *Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile
}

// Durable exposes the durable store for collaborators that persist flow
// markers (the login flow's phone moment).
func (s *Session) Durable() Store { return s.durable }

// StorageKeys returns the key names this session persists under.
func (s *Session) StorageKeys() Keys { return s.keys }

// Persistence is best-effort: a store outage must not block a state
// change that already happened in memory.
func (s *Session) mirror(ctx context.Context, st Store, key, value string) {
	if st == nil {
		return
	}
	if err := st.Set(ctx, key, value); err != nil {
		log.Print("authcore: session store write failed")
	}
}

func (s *Session) clear(ctx context.Context, st Store, key string) {
	if st == nil {
		return
	}
	if err := st.Clear(ctx, key); err != nil {
		log.Print("authcore: session store clear failed")
	}
}
