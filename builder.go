package authcore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/digitoon/authcore/session"
)

// Builder assembles an Engine from a config and its collaborators.
//
// Builder instances are intended to be configured during initialization
// and then treated as immutable. A Builder is single-use: Build returns
// an error on the second call.
type Builder struct {
	config Config
	redis  *redis.Client

	scope   session.Store
	durable session.Store

	httpClient *http.Client
	refreshFn  RefreshFunc
	refreshURL string
	sink       Sink

	built bool
}

// New returns a Builder preloaded with the default config.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the builder's config with a deep copy of cfg.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis wires both stores to a shared Redis client. The
// session-scope store carries Storage.SessionTTL; the durable store
// never expires. Mutually exclusive with WithStores.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithStores supplies custom session-scope and durable stores, for
// hosts that keep session state somewhere other than Redis.
func (b *Builder) WithStores(scope, durable session.Store) *Builder {
	b.scope = scope
	b.durable = durable
	return b
}

// WithHTTPClient overrides the transport. Defaults to
// http.DefaultClient.
func (b *Builder) WithHTTPClient(client *http.Client) *Builder {
	b.httpClient = client
	return b
}

// WithRefreshFunc installs the refresh-endpoint collaborator. Engines
// built without one answer the refresh leg with ErrCoreNotReady.
func (b *Builder) WithRefreshFunc(fn RefreshFunc) *Builder {
	b.refreshFn = fn
	return b
}

// WithRefreshEndpoint builds a stock refresh collaborator: a POST to
// url carrying the held refresh token under the configured response
// key name. Ignored when WithRefreshFunc is also set.
func (b *Builder) WithRefreshEndpoint(url string) *Builder {
	b.refreshURL = url
	return b
}

// WithNotificationSink routes user-facing notifications to sink.
// Defaults to NoOpSink.
func (b *Builder) WithNotificationSink(sink Sink) *Builder {
	b.sink = sink
	return b
}

// WithMetricsEnabled toggles counter collection.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the config, constructs the session over the chosen
// stores and returns a ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	scope, durable := b.scope, b.durable
	if scope == nil || durable == nil {
		if b.redis == nil {
			return nil, errors.New("redis client or explicit stores required")
		}
		scope = session.NewRedisStore(b.redis, cfg.Storage.RedisPrefix+":sess", cfg.Storage.SessionTTL)
		durable = session.NewRedisStore(b.redis, cfg.Storage.RedisPrefix, 0)
	}

	sink := b.sink
	if sink == nil {
		sink = NoOpSink{}
	}

	engine := &Engine{
		cfg:      cfg,
		client:   b.httpClient,
		session:  session.New(scope, durable, cfg.Storage.Keys),
		refresh:  b.refreshFn,
		notifier: newNotifyDispatcher(cfg.Notification, sink),
		metrics:  NewMetrics(cfg.Metrics),
	}
	if engine.client == nil {
		engine.client = http.DefaultClient
	}
	if engine.refresh == nil && b.refreshURL != "" {
		engine.refresh = refreshEndpoint(engine, b.refreshURL)
	}

	b.built = true

	return engine, nil
}

// refreshEndpoint returns the stock refresh collaborator. The request
// body names the refresh token with the same key the response is read
// back under, matching the token service's contract.
func refreshEndpoint(e *Engine, url string) RefreshFunc {
	return func(ctx context.Context) (*http.Response, error) {
		payload, err := json.Marshal(map[string]string{
			e.cfg.Tokens.ResponseRefreshTokenKey: e.session.RefreshToken(),
		})
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept-Language", e.cfg.Messages.AcceptLanguage)
		return e.client.Do(req)
	}
}

// LoginFlowOptions configures a flow produced by NewLoginFlow.
type LoginFlowOptions struct {
	Device    DeviceInfo
	OnSucceed func()
	OnFailed  func()
}

// NewLoginFlow returns a fresh flow at the initial stage, bound to this
// engine's session and config. Flows are independent; building several
// against one engine is allowed but only one should be driven at a
// time.
func (e *Engine) NewLoginFlow(opts LoginFlowOptions) *LoginFlow {
	return &LoginFlow{
		engine:    e,
		cfg:       e.cfg,
		device:    opts.Device,
		onSucceed: opts.OnSucceed,
		onFailed:  opts.OnFailed,
		stage:     StageInitial,
	}
}
