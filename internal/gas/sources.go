package gas

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	json "github.com/goccy/go-json"

	"github.com/dexpulse/dexpulse/pkg/types"
)

// Source is one gas-price provider. Implementations normalize their
// native shape into types.GasPrice on fetch.
type Source interface {
	Name() string
	Fetch(ctx context.Context) (*types.GasPrice, error)
}

// NodeSource queries fee data straight from a node RPC.
type NodeSource struct {
	client *ethclient.Client
	name   string
}

// NewNodeSource dials the node RPC endpoint.
func NewNodeSource(ctx context.Context, rpcURL string) (*NodeSource, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial node rpc: %w", err)
	}

	return &NodeSource{client: client, name: "node-rpc"}, nil
}

func (s *NodeSource) Name() string {
	return s.name
}

// Fetch combines the node's suggested gas price, tip cap and the latest
// base fee into one normalized sample.
func (s *NodeSource) Fetch(ctx context.Context) (*types.GasPrice, error) {
	gasPrice, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas price: %w", err)
	}

	tipCap, err := s.client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas tip cap: %w", err)
	}

	header, err := s.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("latest header: %w", err)
	}

	baseFee := header.BaseFee
	if baseFee == nil {
		// Pre-EIP-1559 chain; fall back to the legacy price.
		baseFee = new(big.Int).Set(gasPrice)
	}

	// maxFee = 2*baseFee + tip absorbs one full base-fee doubling.
	maxFee := new(big.Int).Mul(baseFee, big.NewInt(2))
	maxFee.Add(maxFee, tipCap)

	return &types.GasPrice{
		GasPrice:             gasPrice,
		MaxFeePerGas:         maxFee,
		MaxPriorityFeePerGas: tipCap,
		BaseFee:              baseFee,
		Timestamp:            time.Now(),
		Source:               s.name,
	}, nil
}

// Close releases the RPC client.
func (s *NodeSource) Close() {
	s.client.Close()
}

// FeeAPISource queries an Etherscan-style gas oracle HTTP API.
type FeeAPISource struct {
	url    string
	client *http.Client
	name   string
}

// NewFeeAPISource creates a fee API source for the given oracle URL.
func NewFeeAPISource(url string) *FeeAPISource {
	return &FeeAPISource{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
		name:   "fee-api",
	}
}

func (s *FeeAPISource) Name() string {
	return s.name
}

type feeAPIResponse struct {
	Status string `json:"status"`
	Result struct {
		SafeGasPrice    string `json:"SafeGasPrice"`
		ProposeGasPrice string `json:"ProposeGasPrice"`
		FastGasPrice    string `json:"FastGasPrice"`
		SuggestBaseFee  string `json:"suggestBaseFee"`
	} `json:"result"`
}

// Fetch normalizes the API's gwei decimal strings into wei big ints.
func (s *FeeAPISource) Fetch(ctx context.Context) (*types.GasPrice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fee api request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fee api status %d", resp.StatusCode)
	}

	var parsed feeAPIResponse
	err = json.NewDecoder(resp.Body).Decode(&parsed)
	if err != nil {
		return nil, fmt.Errorf("decode fee api response: %w", err)
	}

	propose, err := gweiToWei(parsed.Result.ProposeGasPrice)
	if err != nil {
		return nil, fmt.Errorf("parse propose gas price: %w", err)
	}
	fast, err := gweiToWei(parsed.Result.FastGasPrice)
	if err != nil {
		return nil, fmt.Errorf("parse fast gas price: %w", err)
	}
	baseFee, err := gweiToWei(parsed.Result.SuggestBaseFee)
	if err != nil {
		return nil, fmt.Errorf("parse base fee: %w", err)
	}

	tip := new(big.Int).Sub(propose, baseFee)
	if tip.Sign() < 0 {
		tip = big.NewInt(0)
	}

	return &types.GasPrice{
		GasPrice:             propose,
		MaxFeePerGas:         fast,
		MaxPriorityFeePerGas: tip,
		BaseFee:              baseFee,
		Timestamp:            time.Now(),
		Source:               s.name,
	}, nil
}

// gweiToWei parses a decimal gwei string ("24.5") into wei.
func gweiToWei(s string) (*big.Int, error) {
	f, ok := new(big.Float).SetString(s)
	if !ok {
		return nil, fmt.Errorf("invalid gwei value %q", s)
	}

	wei, _ := new(big.Float).Mul(f, big.NewFloat(1e9)).Int(nil)
	if wei.Sign() < 0 {
		return nil, fmt.Errorf("negative gwei value %q", s)
	}
	return wei, nil
}
