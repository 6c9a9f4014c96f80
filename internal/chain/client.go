// Package chain talks to a STEEM node over JSON-RPC: it reads accounts and
// resource credits, prices operations in RC and broadcasts signed transactions.
package chain

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kkkkikiki/infestor/internal/keys"
)

var ErrAccountNotFound = errors.New("account not found")

// RPCError is an error object returned by the node
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Config holds what the client needs to reach and sign for a network
type Config struct {
	NodeURL       string
	ChainID       string
	AddressPrefix string
	Timeout       time.Duration
}

// Client is a JSON-RPC client for one node
type Client struct {
	url        string
	chainID    []byte
	prefix     string
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time
	nextID     atomic.Uint64
}

// NewClient creates a client from cfg
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	chainID, err := hex.DecodeString(cfg.ChainID)
	if err != nil || len(chainID) != 32 {
		return nil, fmt.Errorf("invalid chain id %q", cfg.ChainID)
	}
	prefix := cfg.AddressPrefix
	if prefix == "" {
		prefix = keys.DefaultPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		url:        cfg.NodeURL,
		chainID:    chainID,
		prefix:     prefix,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
		now:        time.Now,
	}, nil
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      uint64      `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// Call invokes method with params and decodes the result into result
func (c *Client) Call(ctx context.Context, method string, params interface{}, result interface{}) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextID.Add(1),
	})
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s failed: %w", method, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("rpc call",
		zap.String("method", method),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s failed: http %d: %s", method, resp.StatusCode, snippet)
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("%s failed: %w", method, rpcResp.Error)
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, result); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}

// GetAccounts returns the accounts that exist among names
func (c *Client) GetAccounts(ctx context.Context, names ...string) ([]Account, error) {
	var accounts []Account
	if err := c.Call(ctx, "condenser_api.get_accounts", []interface{}{names}, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

// GetAccount returns one account or ErrAccountNotFound
func (c *Client) GetAccount(ctx context.Context, name string) (*Account, error) {
	accounts, err := c.GetAccounts(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, name)
	}
	return &accounts[0], nil
}

// AccountExists reports whether name is already registered
func (c *Client) AccountExists(ctx context.Context, name string) (bool, error) {
	accounts, err := c.GetAccounts(ctx, name)
	if err != nil {
		return false, err
	}
	return len(accounts) > 0, nil
}

// GetRCInfo returns the account's resource credits with regeneration applied
func (c *Client) GetRCInfo(ctx context.Context, name string) (*RCInfo, error) {
	var result struct {
		RCAccounts []rcAccount `json:"rc_accounts"`
	}
	params := map[string]interface{}{"accounts": []string{name}}
	if err := c.Call(ctx, "rc_api.find_rc_accounts", params, &result); err != nil {
		return nil, err
	}
	if len(result.RCAccounts) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, name)
	}
	info := result.RCAccounts[0].manaAt(c.now())
	return &info, nil
}

// GetDynamicGlobalProperties returns the head block and global totals
func (c *Client) GetDynamicGlobalProperties(ctx context.Context) (*DynamicGlobalProperties, error) {
	var props DynamicGlobalProperties
	if err := c.Call(ctx, "condenser_api.get_dynamic_global_properties", []interface{}{}, &props); err != nil {
		return nil, err
	}
	return &props, nil
}

// EstimateCost prices op in raw RC units the way the node's RC plugin would
func (c *Client) EstimateCost(ctx context.Context, op Operation) (int64, error) {
	props, err := c.GetDynamicGlobalProperties(ctx)
	if err != nil {
		return 0, err
	}
	var params ResourceParamsResponse
	if err := c.Call(ctx, "rc_api.get_resource_params", map[string]interface{}{}, &params); err != nil {
		return 0, err
	}
	var pool ResourcePoolResponse
	if err := c.Call(ctx, "rc_api.get_resource_pool", map[string]interface{}{}, &pool); err != nil {
		return 0, err
	}

	tx, err := NewTransaction(props, op)
	if err != nil {
		return 0, err
	}
	size, err := tx.SignedSize(c.prefix, 1)
	if err != nil {
		return 0, err
	}

	usage := CountResources(&params, size, op)
	return TotalRCCost(&params, &pool, usage, RCRegen(props.TotalVestingShares)), nil
}

// Broadcast signs op with the WIF key and waits for inclusion
func (c *Client) Broadcast(ctx context.Context, op Operation, wif string) error {
	priv, err := keys.DecodeWIF(wif)
	if err != nil {
		return err
	}
	props, err := c.GetDynamicGlobalProperties(ctx)
	if err != nil {
		return err
	}
	tx, err := NewTransaction(props, op)
	if err != nil {
		return err
	}
	if err := tx.Sign(c.chainID, c.prefix, priv); err != nil {
		return err
	}

	var result json.RawMessage
	if err := c.Call(ctx, "condenser_api.broadcast_transaction_synchronous", []interface{}{tx}, &result); err != nil {
		return err
	}
	c.logger.Info("transaction broadcast",
		zap.String("operation", op.OpName()),
		zap.ByteString("result", result),
	)
	return nil
}
