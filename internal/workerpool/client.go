package workerpool

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

// rpcEndpoint is the worker request endpoint; every call is a POST carrying
// a method name and a structured parameter object.
const rpcEndpoint = "/rpc"

// statusMethod is the distinguished method whose response carries a status
// field, used for pool-level health checks.
const statusMethod = "status"

type rpcRequest struct {
	ID     string                 `json:"id"`
	Method string                 `json:"method"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// PooledClient is one reusable logical connection to a worker. A client
// belongs to exactly one pool and is either available there or lent to
// exactly one caller.
type PooledClient struct {
	baseURL   string
	timeout   time.Duration
	http      *resty.Client
	connected bool
}

func newPooledClient(cfg PoolConfig) *PooledClient {
	return &PooledClient{
		baseURL: cfg.BaseURL(),
		timeout: cfg.RequestTimeout,
	}
}

// connect lazily establishes the underlying HTTP client on first borrow.
func (c *PooledClient) connect() {
	if c.connected {
		return
	}
	c.http = resty.New().
		SetBaseURL(c.baseURL).
		SetTimeout(c.timeout).
		SetHeader("Content-Type", "application/json")
	c.connected = true
}

// Call invokes method on the worker's request endpoint and decodes the
// structured response body.
func (c *PooledClient) Call(ctx context.Context, method string, params map[string]interface{}) (map[string]interface{}, error) {
	var result map[string]interface{}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(rpcRequest{
			ID:     uuid.NewString(),
			Method: method,
			Params: params,
		}).
		SetResult(&result).
		Post(rpcEndpoint)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("call %s: worker returned %d", method, resp.StatusCode())
	}
	return result, nil
}

// close disconnects the client; a closed client reconnects on next borrow.
func (c *PooledClient) close() {
	if !c.connected {
		return
	}
	c.http.GetClient().CloseIdleConnections()
	c.http = nil
	c.connected = false
}
