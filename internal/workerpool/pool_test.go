package workerpool

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func serverPoolConfig(t *testing.T, srv *httptest.Server, name string) PoolConfig {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return PoolConfig{
		Name:           name,
		Host:           host,
		Port:           port,
		MaxConnections: 2,
		RequestTimeout: 5 * time.Second,
		RetryAttempts:  3,
		RetryDelay:     10 * time.Millisecond,
	}
}

func decodeRPC(t *testing.T, r *http.Request) rpcRequest {
	t.Helper()
	var req rpcRequest
	require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
	return req
}

func writeJSON(w http.ResponseWriter, body map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(body)
}

func TestExecuteRequestSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, rpcEndpoint, r.URL.Path)
		req := decodeRPC(t, r)
		assert.NotEmpty(t, req.ID, "every request must carry an id")
		assert.Equal(t, "search", req.Method)
		assert.Equal(t, "tls setup", req.Params["query"])
		writeJSON(w, map[string]interface{}{"documents": []interface{}{"doc-1"}})
	}))
	defer srv.Close()

	pool := New(zaptest.NewLogger(t))
	defer pool.CloseAll()
	require.NoError(t, pool.Register(serverPoolConfig(t, srv, "embeddings")))

	result, err := pool.ExecuteRequest(context.Background(), "embeddings", "search",
		map[string]interface{}{"query": "tls setup"})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"doc-1"}, result["documents"])

	stats, err := pool.Stats("embeddings")
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.TotalRequests)
	assert.EqualValues(t, 1, stats.SuccessfulRequests)
	assert.EqualValues(t, 0, stats.FailedRequests)
	assert.Equal(t, float64(100), stats.SuccessRate)
}

func TestExecuteRequestRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]interface{}{"status": "ok"})
	}))
	defer srv.Close()

	pool := New(zaptest.NewLogger(t))
	defer pool.CloseAll()
	require.NoError(t, pool.Register(serverPoolConfig(t, srv, "w")))

	result, err := pool.ExecuteRequest(context.Background(), "w", "ping", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", result["status"])
	assert.EqualValues(t, 3, calls.Load())

	// Two failed attempts and one success, all recorded.
	stats, err := pool.Stats("w")
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.TotalRequests)
	assert.EqualValues(t, 1, stats.SuccessfulRequests)
	assert.EqualValues(t, 2, stats.FailedRequests)
	assert.NotEmpty(t, stats.LastError)
}

func TestExecuteRequestExhaustsRetries(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	pool := New(zaptest.NewLogger(t))
	defer pool.CloseAll()
	require.NoError(t, pool.Register(serverPoolConfig(t, srv, "w")))

	_, err := pool.ExecuteRequest(context.Background(), "w", "ping", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.EqualValues(t, 3, calls.Load())

	stats, err := pool.Stats("w")
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.FailedRequests)
	assert.Equal(t, float64(0), stats.SuccessRate)
}

func TestExecuteRequestOnceDoesNotRetry(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	pool := New(zaptest.NewLogger(t))
	defer pool.CloseAll()
	require.NoError(t, pool.Register(serverPoolConfig(t, srv, "w")))

	_, err := pool.ExecuteRequestOnce(context.Background(), "w", "ping", nil)
	require.Error(t, err)
	assert.EqualValues(t, 1, calls.Load())
}

func TestConcurrencyBound(t *testing.T) {
	var inFlight, maxInFlight atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cur := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			prev := maxInFlight.Load()
			if cur <= prev || maxInFlight.CompareAndSwap(prev, cur) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		writeJSON(w, map[string]interface{}{"status": "ok"})
	}))
	defer srv.Close()

	cfg := serverPoolConfig(t, srv, "w")
	cfg.MaxConnections = 2

	pool := New(zaptest.NewLogger(t))
	defer pool.CloseAll()
	require.NoError(t, pool.Register(cfg))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := pool.ExecuteRequestOnce(context.Background(), "w", "ping", nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, maxInFlight.Load(), int64(2),
		"no more than MaxConnections requests may be in flight")

	stats, err := pool.Stats("w")
	require.NoError(t, err)
	assert.EqualValues(t, 8, stats.TotalRequests)
}

func TestStatsExcludeSlotWaitTime(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		writeJSON(w, map[string]interface{}{"status": "ok"})
	}))
	defer srv.Close()

	cfg := serverPoolConfig(t, srv, "w")
	cfg.MaxConnections = 1

	pool := New(zaptest.NewLogger(t))
	defer pool.CloseAll()
	require.NoError(t, pool.Register(cfg))

	// Three callers share one slot, so the last one queues for ~600ms.
	// Queue time must not show up as request latency.
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := pool.ExecuteRequestOnce(context.Background(), "w", "ping", nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stats, err := pool.Stats("w")
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.TotalRequests)
	assert.Less(t, stats.AverageRequestTime, 500*time.Millisecond,
		"average must reflect the ~300ms request, not time queued for a slot")
}

func TestWithClientReleasesSlotOnContextCancel(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		writeJSON(w, map[string]interface{}{"status": "ok"})
	}))
	defer srv.Close()
	defer close(release)

	cfg := serverPoolConfig(t, srv, "w")
	cfg.MaxConnections = 1

	pool := New(zaptest.NewLogger(t))
	defer pool.CloseAll()
	require.NoError(t, pool.Register(cfg))

	// Occupy the only slot.
	go pool.ExecuteRequestOnce(context.Background(), "w", "ping", nil)
	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := pool.ExecuteRequestOnce(ctx, "w", "ping", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHealthCheck(t *testing.T) {
	var status atomic.Value
	status.Store("ok")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeRPC(t, r)
		assert.Equal(t, statusMethod, req.Method)
		writeJSON(w, map[string]interface{}{"status": status.Load().(string)})
	}))
	defer srv.Close()

	pool := New(zaptest.NewLogger(t))
	defer pool.CloseAll()
	require.NoError(t, pool.Register(serverPoolConfig(t, srv, "w")))

	res, err := pool.HealthCheck(context.Background(), "w")
	require.NoError(t, err)
	assert.True(t, res.Healthy)
	assert.EqualValues(t, 1, res.Stats.TotalRequests)

	status.Store("degraded")
	res, err = pool.HealthCheck(context.Background(), "w")
	require.NoError(t, err)
	assert.False(t, res.Healthy)
}

func TestHealthCheckUnreachableWorker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	cfg := serverPoolConfig(t, srv, "w")
	cfg.RequestTimeout = 500 * time.Millisecond
	srv.Close()

	pool := New(zaptest.NewLogger(t))
	defer pool.CloseAll()
	require.NoError(t, pool.Register(cfg))

	res, err := pool.HealthCheck(context.Background(), "w")
	require.NoError(t, err)
	assert.False(t, res.Healthy)
	assert.NotEmpty(t, res.Stats.LastError)
}

func TestHealthCheckAll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"status": "ok"})
	}))
	defer srv.Close()

	pool := New(zaptest.NewLogger(t))
	defer pool.CloseAll()
	for i := 0; i < 3; i++ {
		require.NoError(t, pool.Register(serverPoolConfig(t, srv, fmt.Sprintf("w-%d", i))))
	}

	results := pool.HealthCheckAll(context.Background())
	require.Len(t, results, 3)
	for name, res := range results {
		assert.True(t, res.Healthy, "pool %s", name)
	}
}

func TestUnknownPool(t *testing.T) {
	pool := New(zaptest.NewLogger(t))
	defer pool.CloseAll()

	_, err := pool.ExecuteRequest(context.Background(), "ghost", "ping", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")

	_, err = pool.Stats("ghost")
	require.Error(t, err)
}

func TestCloseAllClearsPools(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"status": "ok"})
	}))
	defer srv.Close()

	pool := New(zaptest.NewLogger(t))
	require.NoError(t, pool.Register(serverPoolConfig(t, srv, "w")))

	_, err := pool.ExecuteRequestOnce(context.Background(), "w", "ping", nil)
	require.NoError(t, err)

	pool.CloseAll()

	_, err = pool.ExecuteRequestOnce(context.Background(), "w", "ping", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}

func TestRegisterReplacesExistingPool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"status": "ok"})
	}))
	defer srv.Close()

	pool := New(zaptest.NewLogger(t))
	defer pool.CloseAll()

	cfg := serverPoolConfig(t, srv, "w")
	require.NoError(t, pool.Register(cfg))
	_, err := pool.ExecuteRequestOnce(context.Background(), "w", "ping", nil)
	require.NoError(t, err)

	// Replacement resets accumulated statistics.
	require.NoError(t, pool.Register(cfg))
	stats, err := pool.Stats("w")
	require.NoError(t, err)
	assert.EqualValues(t, 0, stats.TotalRequests)
}
