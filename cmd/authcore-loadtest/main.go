// Command authcore-loadtest drives the fetch engine against an
// in-process fake API and reports latency percentiles for two phases:
// plain authenticated fetches, and fetches under forced token rotation
// where every epoch change costs a 401, a refresh, and a replay.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	authcore "github.com/digitoon/authcore"
)

func main() {
	var (
		ops         = flag.Int("ops", 50000, "operations per phase")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		rotateEvery = flag.Int("rotate-every", 500, "rotate the backend token every N requests in the churn phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "lt", "storage key prefix")
	)
	flag.Parse()

	if *ops <= 0 || *concurrency <= 0 || *rotateEvery <= 0 {
		fmt.Fprintln(os.Stderr, "ops, concurrency, and rotate-every must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var cleanup func()
	var client *redis.Client
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		client = redis.NewClient(&redis.Options{Addr: mr.Addr()})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", mr.Addr())
	} else {
		client = redis.NewClient(&redis.Options{Addr: addr})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	backend := newChurnBackend()
	api := httptest.NewServer(backend.handler())
	defer api.Close()

	cfg := authcore.DefaultConfig()
	cfg.Storage.RedisPrefix = *prefix

	engine, err := authcore.New().
		WithConfig(cfg).
		WithRedis(client).
		WithRefreshEndpoint(api.URL + "/token/refresh").
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build failed: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	engine.Session().Login(ctx, backend.currentToken(), "loadtest-refresh-token")

	fetchStats := runPhase(ctx, engine, api.URL+"/data", *ops, *concurrency, func() {})
	churnStats := runPhase(ctx, engine, api.URL+"/data", *ops, *concurrency, func() {
		backend.maybeRotate(*rotateEvery)
	})

	fmt.Println("---- results ----")
	printStats("fetch", fetchStats)
	printStats("churn", churnStats)

	snap := engine.MetricsSnapshot()
	fmt.Printf("refresh attempts: %d, successes: %d, replays exhausted: %d\n",
		snap.Counters[authcore.MetricRefreshAttempt],
		snap.Counters[authcore.MetricRefreshSuccess],
		snap.Counters[authcore.MetricFetchAuthFailure])
}

func runPhase(ctx context.Context, engine *authcore.Engine, url string, ops, concurrency int, beforeOp func()) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				beforeOp()
				t0 := time.Now()
				res := engine.Execute(ctx, authcore.Request{URL: url, Method: http.MethodGet}, authcore.Policy{RequiresAuth: true})
				d := time.Since(t0)
				if !res.OK() {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

// churnBackend accepts one token at a time and can rotate it, turning
// in-flight requests carrying the old token into 401s.
type churnBackend struct {
	mu    sync.Mutex
	epoch int
	count int64
}

func newChurnBackend() *churnBackend {
	return &churnBackend{}
}

func (b *churnBackend) currentToken() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokenLocked()
}

func (b *churnBackend) tokenLocked() string {
	return fmt.Sprintf("loadtest-token-epoch-%06d", b.epoch)
}

func (b *churnBackend) maybeRotate(every int) {
	if atomic.AddInt64(&b.count, 1)%int64(every) != 0 {
		return
	}
	b.mu.Lock()
	b.epoch++
	b.mu.Unlock()
}

func (b *churnBackend) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/data", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		want := "Token " + b.tokenLocked()
		b.mu.Unlock()
		if r.Header.Get("Authorization") != want {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "stale token"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "ok"})
	})

	mux.HandleFunc("/token/refresh", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		token := b.tokenLocked()
		b.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]string{
			"token":         token,
			"refresh_token": "loadtest-refresh-token",
		})
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	pct := func(p float64) time.Duration {
		idx := int(p * float64(len(samples)-1))
		return samples[idx]
	}
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      pct(0.50),
		p95:      pct(0.95),
		p99:      pct(0.99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%-8s ops=%d failures=%d total=%s p50=%s p95=%s p99=%s ops/s=%.0f\n",
		name, s.ops, s.failures, s.total.Round(time.Millisecond),
		s.p50, s.p95, s.p99, s.opsPerS)
}
