package authcore

import (
	"errors"
	"time"

	"github.com/digitoon/authcore/session"
)

// Config carries every tunable of the core. Instances are cloned on Build
// and treated as immutable afterwards.
type Config struct {
	Endpoints    EndpointConfig
	Tokens       TokenConfig
	Storage      StorageConfig
	Flow         FlowConfig
	Notification NotificationConfig
	Metrics      MetricsConfig
	Messages     MessageConfig

	// UTMParams are appended to every outgoing URL, the way the web
	// client forwards its UTM cookies. Empty map disables augmentation.
	UTMParams map[string]string
}

/*
====================================
ENDPOINT CONFIG
====================================
*/

// EndpointConfig names the backend URLs the core calls. The refresh
// endpoint is not listed here: it is a collaborator function supplied
// through [Builder.WithRefreshFunc], keeping the engine endpoint-agnostic.
type EndpointConfig struct {
	// DeviceID mints a dg_id from a device fingerprint.
	DeviceID string
	// LoginStep1 submits the mobile number.
	LoginStep1 string
	// LoginStep2 submits the OTP.
	LoginStep2 string
	// ChildrenList returns the family's child accounts.
	ChildrenList string
	// ChildToken mints a token scoped to a selected child.
	ChildToken string
	// ProfileWithSubs returns the profile plus active subscriptions.
	ProfileWithSubs string
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig names the JSON fields carrying tokens in the refresh and
// login responses, so the engine stays agnostic of endpoint shapes.
type TokenConfig struct {
	ResponseTokenKey        string
	ResponseRefreshTokenKey string
}

/*
====================================
STORAGE CONFIG
====================================
*/

// StorageConfig names the key-value slots used by the two stores, plus
// the Redis layout used when the stores are built through
// [Builder.WithRedis].
type StorageConfig struct {
	Keys session.Keys
	// RedisPrefix namespaces both stores' keys.
	RedisPrefix string
	// SessionTTL bounds the session-scope store's values, modeling the
	// browser-session lifetime. Zero means no expiry.
	SessionTTL time.Duration
}

/*
====================================
FLOW CONFIG
====================================
*/

// FlowConfig tunes the login stage orchestrator.
type FlowConfig struct {
	// PhoneMomentWindow is the freshness window inside which a stored
	// phone moment resumes the verify stage.
	PhoneMomentWindow time.Duration
	// ModifyPhonePrefix marks a submitted code as a "change my number"
	// request: the flow resets without a network call.
	ModifyPhonePrefix string
	// ResendPrefix marks a submitted code as a resend request: step 1 is
	// re-issued with the resend flag.
	ResendPrefix string
	// GuestNickname substitutes a missing nickname in the phone moment.
	GuestNickname string
}

/*
====================================
NOTIFICATION CONFIG
====================================
*/

// NotificationConfig tunes the async notification dispatcher.
type NotificationConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull drops notices instead of blocking the caller when the
	// buffer is full.
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig tunes the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

/*
====================================
MESSAGE CONFIG
====================================
*/

// MessageConfig carries the user-facing strings and locale headers the
// core emits. Defaults match the production Persian client.
type MessageConfig struct {
	WrongCode    string
	Connectivity string
	// AcceptLanguage is sent on plain calls, AuthAcceptLanguage on
	// authenticated ones (the web client distinguishes the two).
	AcceptLanguage     string
	AuthAcceptLanguage string
}

// DefaultConfig returns the stock configuration: production key names,
// the 60 second phone-moment window, and Farsi user-facing messages.
// Endpoint URLs start empty and must be filled in by the host.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Tokens: TokenConfig{
			ResponseTokenKey:        "token",
			ResponseRefreshTokenKey: "refresh_token",
		},
		Storage: StorageConfig{
			Keys:        session.DefaultKeys(),
			RedisPrefix: "authcore",
		},
		Flow: FlowConfig{
			PhoneMomentWindow: 60 * time.Second,
			ModifyPhonePrefix: "modify-phone-number",
			ResendPrefix:      "resend-pin-code",
			GuestNickname:     "guest",
		},
		Notification: NotificationConfig{
			Enabled:    true,
			BufferSize: 64,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Messages: MessageConfig{
			WrongCode:          "کد اشتباه است",
			Connectivity:       "خطا در برقراری ارتباط",
			AcceptLanguage:     "fa-ir",
			AuthAcceptLanguage: "fa",
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if cfg.UTMParams != nil {
		out.UTMParams = make(map[string]string, len(cfg.UTMParams))
		for k, v := range cfg.UTMParams {
			out.UTMParams[k] = v
		}
	}
	return out
}

// Validate checks internal consistency. Endpoint URLs are validated by
// Build only for the collaborators that need them.
func (c Config) Validate() error {
	if c.Tokens.ResponseTokenKey == "" || c.Tokens.ResponseRefreshTokenKey == "" {
		return errors.New("token response keys must be set")
	}
	if c.Flow.PhoneMomentWindow <= 0 {
		return errors.New("phone moment window must be positive")
	}
	if c.Flow.ModifyPhonePrefix == "" || c.Flow.ResendPrefix == "" {
		return errors.New("reserved code prefixes must be set")
	}
	if c.Flow.ModifyPhonePrefix == c.Flow.ResendPrefix {
		return errors.New("reserved code prefixes must differ")
	}
	if c.Notification.Enabled && c.Notification.BufferSize <= 0 {
		return errors.New("notification buffer size must be positive")
	}
	k := c.Storage.Keys
	if k.Token == "" || k.RefreshToken == "" || k.DeviceID == "" ||
		k.Profile == "" || k.PhoneMoment == "" {
		return errors.New("storage keys must be set")
	}
	return nil
}
