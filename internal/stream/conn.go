package stream

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/dexpulse/dexpulse/pkg/types"
)

// Canonical V2-style pool event signatures. The topic hashes are the
// same for every EVM chain.
var (
	topicSync = crypto.Keccak256Hash([]byte("Sync(uint112,uint112)"))
	topicSwap = crypto.Keccak256Hash([]byte("Swap(address,uint256,uint256,uint256,uint256,address)"))
	topicMint = crypto.Keccak256Hash([]byte("Mint(address,uint256,uint256)"))
	topicBurn = crypto.Keccak256Hash([]byte("Burn(address,uint256,uint256,address)"))
)

// writeWait bounds each individual subscription write on a live socket.
const writeWait = 10 * time.Second

// conn is a single websocket JSON-RPC connection to one endpoint.
// It owns the eth_subscribe log subscription for the monitored pools.
type conn struct {
	ws       *websocket.Conn
	endpoint types.Endpoint
	nextID   atomic.Uint64
	subID    string
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type subscriptionParams struct {
	Subscription string   `json:"subscription"`
	Result       logEntry `json:"result"`
}

type logEntry struct {
	Address     string   `json:"address"`
	Topics      []string `json:"topics"`
	Data        string   `json:"data"`
	BlockNumber string   `json:"blockNumber"`
	LogIndex    string   `json:"logIndex"`
	Removed     bool     `json:"removed"`
}

// dial opens a websocket connection to the endpoint. HTTP 401/403 on the
// handshake marks the endpoint permanently unusable for this rotation.
func dial(ctx context.Context, endpoint types.Endpoint, timeout time.Duration) (*conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: timeout}

	ws, resp, err := dialer.DialContext(ctx, endpoint.URL, nil)
	if err != nil {
		permanent := false
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			permanent = true
		}
		return nil, &types.EndpointError{URL: endpoint.URL, Permanent: permanent, Err: err}
	}

	return &conn{ws: ws, endpoint: endpoint}, nil
}

// logFilter builds the eth_subscribe filter object. An empty pool list
// matches all pool events carrying the tracked topics.
func logFilter(pools []common.Address) map[string]any {
	filter := map[string]any{
		"topics": [][]string{{
			topicSync.Hex(), topicSwap.Hex(), topicMint.Hex(), topicBurn.Hex(),
		}},
	}
	if len(pools) > 0 {
		addrs := make([]string, 0, len(pools))
		for _, p := range pools {
			addrs = append(addrs, p.Hex())
		}
		filter["address"] = addrs
	}
	return filter
}

// subscribeLogs installs (or replaces) the log subscription covering the
// given pools. Synchronous; must not run while the read loop owns the
// socket reads.
func (c *conn) subscribeLogs(ctx context.Context, pools []common.Address) error {
	if c.subID != "" {
		err := c.unsubscribe(ctx)
		if err != nil {
			return fmt.Errorf("replace subscription: %w", err)
		}
	}

	resp, err := c.call(ctx, "eth_subscribe", []any{"logs", logFilter(pools)})
	if err != nil {
		return fmt.Errorf("eth_subscribe: %w", err)
	}

	var subID string
	err = json.Unmarshal(resp, &subID)
	if err != nil {
		return fmt.Errorf("parse subscription id: %w", err)
	}

	c.subID = subID
	return nil
}

// resubscribe replaces the log subscription without reading responses,
// so it is safe while the read loop owns the socket. The read loop
// consumes and discards the RPC replies; the node delivers on the new
// subscription either way. The tracked subID goes stale here, which
// only costs a redundant unsubscribe on the next replace.
func (c *conn) resubscribe(pools []common.Address) error {
	if c.subID != "" {
		req := rpcRequest{JSONRPC: "2.0", ID: c.nextID.Add(1), Method: "eth_unsubscribe", Params: []any{c.subID}}
		err := c.writeJSON(req)
		if err != nil {
			return fmt.Errorf("write eth_unsubscribe: %w", err)
		}
		c.subID = ""
	}

	req := rpcRequest{JSONRPC: "2.0", ID: c.nextID.Add(1), Method: "eth_subscribe", Params: []any{"logs", logFilter(pools)}}
	err := c.writeJSON(req)
	if err != nil {
		return fmt.Errorf("write eth_subscribe: %w", err)
	}
	return nil
}

// writeJSON writes one frame under a fresh deadline, then clears it.
// Deadlines persist on the socket until changed; a stale one would time
// out every later write.
func (c *conn) writeJSON(v any) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	err := c.ws.WriteJSON(v)
	_ = c.ws.SetWriteDeadline(time.Time{})
	return err
}

func (c *conn) unsubscribe(ctx context.Context) error {
	_, err := c.call(ctx, "eth_unsubscribe", []any{c.subID})
	if err != nil {
		return err
	}
	c.subID = ""
	return nil
}

// call performs a synchronous JSON-RPC request. Subscription
// notifications arriving while the response is awaited are discarded;
// call is only used during (re)subscription before the read loop runs.
func (c *conn) call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	id := c.nextID.Add(1)

	deadline, ok := ctx.Deadline()
	if ok {
		_ = c.ws.SetWriteDeadline(deadline)
		_ = c.ws.SetReadDeadline(deadline)
		// The socket outlives this call; leaving the deadlines set would
		// time out writes issued long after the context expired.
		defer func() {
			_ = c.ws.SetWriteDeadline(time.Time{})
			_ = c.ws.SetReadDeadline(time.Time{})
		}()
	}

	req := rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	err := c.ws.WriteJSON(req)
	if err != nil {
		return nil, fmt.Errorf("write %s: %w", method, err)
	}

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("read %s response: %w", method, err)
		}

		var resp rpcResponse
		err = json.Unmarshal(message, &resp)
		if err != nil || resp.ID != id {
			continue
		}

		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	}
}

// readMessage blocks for the next raw frame.
func (c *conn) readMessage(readTimeout time.Duration) ([]byte, error) {
	if readTimeout > 0 {
		_ = c.ws.SetReadDeadline(time.Now().Add(readTimeout))
	}
	_, message, err := c.ws.ReadMessage()
	return message, err
}

func (c *conn) ping() error {
	return c.ws.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(time.Second))
}

func (c *conn) close() error {
	return c.ws.Close()
}

// parseEvent converts a raw frame into a PoolEvent. It returns
// (nil, nil) for frames that are valid but not log notifications
// (subscription confirmations, heartbeats, removed logs).
func parseEvent(message []byte, dexName string) (*types.PoolEvent, error) {
	var resp rpcResponse
	err := json.Unmarshal(message, &resp)
	if err != nil {
		return nil, fmt.Errorf("unmarshal frame: %w", err)
	}

	if resp.Method != "eth_subscription" || resp.Params == nil {
		return nil, nil
	}

	var params subscriptionParams
	err = json.Unmarshal(resp.Params, &params)
	if err != nil {
		return nil, fmt.Errorf("unmarshal subscription params: %w", err)
	}

	log := params.Result
	if log.Removed {
		// Reorged-out log; nothing to price.
		return nil, nil
	}
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("log without topics")
	}
	if !common.IsHexAddress(log.Address) {
		return nil, fmt.Errorf("invalid pool address %q", log.Address)
	}

	kind, ok := kindForTopic(log.Topics[0])
	if !ok {
		// Not one of the tracked signatures; the node should not send
		// these given the filter, but tolerate it.
		return nil, nil
	}

	blockNumber, err := parseHexUint(log.BlockNumber)
	if err != nil {
		return nil, fmt.Errorf("parse block number: %w", err)
	}
	logIndex, err := parseHexUint(log.LogIndex)
	if err != nil {
		return nil, fmt.Errorf("parse log index: %w", err)
	}

	event := &types.PoolEvent{
		PoolAddress: common.HexToAddress(log.Address),
		DexName:     dexName,
		Kind:        kind,
		BlockNumber: blockNumber,
		LogIndex:    uint(logIndex),
		ReceivedAt:  time.Now(),
	}

	if kind == types.EventSync {
		reserve0, reserve1, err := parseSyncReserves(log.Data)
		if err != nil {
			return nil, fmt.Errorf("parse sync reserves: %w", err)
		}
		event.Reserve0 = reserve0
		event.Reserve1 = reserve1
	}

	return event, nil
}

func kindForTopic(topic string) (types.EventKind, bool) {
	switch common.HexToHash(topic) {
	case topicSync:
		return types.EventSync, true
	case topicSwap:
		return types.EventSwap, true
	case topicMint:
		return types.EventMint, true
	case topicBurn:
		return types.EventBurn, true
	default:
		return "", false
	}
}

// parseSyncReserves decodes the two 32-byte words of a Sync event's data
// field into reserve big ints.
func parseSyncReserves(data string) (*big.Int, *big.Int, error) {
	raw := common.FromHex(data)
	if len(raw) < 64 {
		return nil, nil, fmt.Errorf("sync data too short: %d bytes", len(raw))
	}

	reserve0 := new(big.Int).SetBytes(raw[0:32])
	reserve1 := new(big.Int).SetBytes(raw[32:64])
	return reserve0, reserve1, nil
}

func parseHexUint(s string) (uint64, error) {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return 0, fmt.Errorf("empty hex quantity")
	}
	return strconv.ParseUint(s, 16, 64)
}
