//go:build integration
// +build integration

package test

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"

	authcore "github.com/digitoon/authcore"
)

const testOTP = "482913"

var signingKey = []byte("integration-test-signing-key")

// authBackend is a realistic fake of the production API: it mints real
// JWTs as access and refresh tokens (opaque to the client under test)
// and verifies them on every authenticated route.
type authBackend struct {
	mu          sync.Mutex
	accessTTL   time.Duration
	refreshTTL  time.Duration
	children    []map[string]any
	refreshHits int
}

func newAuthBackend() *authBackend {
	return &authBackend{
		accessTTL:  time.Hour,
		refreshTTL: 24 * time.Hour,
	}
}

func (b *authBackend) mint(subject string, ttl time.Duration) string {
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
	if err != nil {
		panic(fmt.Sprintf("jwt mint: %v", err))
	}
	return token
}

func (b *authBackend) verify(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	const scheme = "Token "
	if len(auth) <= len(scheme) || auth[:len(scheme)] != scheme {
		return "", false
	}
	parsed, err := jwt.ParseWithClaims(auth[len(scheme):], &jwt.RegisteredClaims{}, func(*jwt.Token) (any, error) {
		return signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !parsed.Valid {
		return "", false
	}
	sub, _ := parsed.Claims.GetSubject()
	return sub, true
}

func (b *authBackend) refreshCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refreshHits
}

func (b *authBackend) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/device", func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusOK, map[string]string{"dg_id": "itest-device-1"})
	})

	mux.HandleFunc("/login/step1", func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusOK, map[string]any{"error": 0, "message": "sent", "nickname": "itest-parent"})
	})

	mux.HandleFunc("/login/step2", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Code string `json:"verification_code"`
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		if body.Code != testOTP {
			respond(w, http.StatusUnauthorized, map[string]string{"message": "wrong code"})
			return
		}
		respond(w, http.StatusOK, map[string]any{
			"error":         0,
			"token":         b.mint("parent-1", b.accessTTL),
			"refresh_token": b.mint("parent-1:refresh", b.refreshTTL),
			"nickname":      "itest-parent",
			"user_id":       1,
			"is_parent":     true,
		})
	})

	mux.HandleFunc("/children", func(w http.ResponseWriter, r *http.Request) {
		if _, ok := b.verify(r); !ok {
			respond(w, http.StatusUnauthorized, map[string]string{"message": "unauthorized"})
			return
		}
		b.mu.Lock()
		children := b.children
		b.mu.Unlock()
		if children == nil {
			respond(w, http.StatusNotFound, map[string]string{"message": "no family"})
			return
		}
		respond(w, http.StatusOK, children)
	})

	mux.HandleFunc("/child-token", func(w http.ResponseWriter, r *http.Request) {
		if _, ok := b.verify(r); !ok {
			respond(w, http.StatusUnauthorized, map[string]string{"message": "unauthorized"})
			return
		}
		respond(w, http.StatusOK, map[string]string{
			"token":         b.mint("child-2", b.accessTTL),
			"refresh_token": b.mint("child-2:refresh", b.refreshTTL),
		})
	})

	mux.HandleFunc("/profile", func(w http.ResponseWriter, r *http.Request) {
		sub, ok := b.verify(r)
		if !ok {
			respond(w, http.StatusUnauthorized, map[string]string{"message": "unauthorized"})
			return
		}
		respond(w, http.StatusOK, map[string]any{
			"id": 2, "nickname": sub, "mobile": "09120001122",
			"active_subs": []map[string]any{{"id": 3, "status": "active"}},
		})
	})

	mux.HandleFunc("/token/refresh", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.refreshHits++
		b.mu.Unlock()
		var body struct {
			RefreshToken string `json:"refresh_token"`
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		parsed, err := jwt.ParseWithClaims(body.RefreshToken, &jwt.RegisteredClaims{}, func(*jwt.Token) (any, error) {
			return signingKey, nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil || !parsed.Valid {
			respond(w, http.StatusUnauthorized, map[string]string{"message": "refresh rejected"})
			return
		}
		sub, _ := parsed.Claims.GetSubject()
		respond(w, http.StatusOK, map[string]string{
			"token":         b.mint(sub, b.accessTTL),
			"refresh_token": b.mint(sub+":refresh", b.refreshTTL),
		})
	})

	return mux
}

func respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newIntegrationEngine(t *testing.T, baseURL string) *authcore.Engine {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	cfg := authcore.DefaultConfig()
	cfg.Storage.RedisPrefix = "itest"
	cfg.Endpoints = authcore.EndpointConfig{
		DeviceID:        baseURL + "/device",
		LoginStep1:      baseURL + "/login/step1",
		LoginStep2:      baseURL + "/login/step2",
		ChildrenList:    baseURL + "/children",
		ChildToken:      baseURL + "/child-token",
		ProfileWithSubs: baseURL + "/profile",
	}

	engine, err := authcore.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithRefreshEndpoint(baseURL + "/token/refresh").
		Build()
	if err != nil {
		t.Fatalf("engine build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}
