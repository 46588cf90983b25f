package config

import (
	"io"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
)

// Network defines the target Solana cluster.
type Network string

const (
	NetworkMainnet Network = "mainnet"
	NetworkTestnet Network = "testnet"
	NetworkDevnet  Network = "devnet"
	NetworkCustom  Network = "custom"
)

// DefaultRPCURL returns the standard RPC endpoint for a known network.
func DefaultRPCURL(network Network) string {
	switch network {
	case NetworkMainnet:
		return "https://api.mainnet-beta.solana.com"
	case NetworkTestnet:
		return "https://api.testnet.solana.com"
	case NetworkDevnet:
		return "https://api.devnet.solana.com"
	default:
		return ""
	}
}

// RetryConfig controls RPC retry behavior.
type RetryConfig struct {
	Enabled        bool
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Jitter         bool
}

// RateLimitConfig throttles outbound RPC calls.
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// RPCConfig aggregates runtime settings for RPC usage.
type RPCConfig struct {
	Network    Network
	RPCURL     string
	Commitment string
	Timeout    time.Duration
	Retry      RetryConfig
	RateLimit  RateLimitConfig
	Logger     zerolog.Logger
}

// DefaultRPCConfig yields production-safe defaults (mainnet, confirmed commitment).
func DefaultRPCConfig() RPCConfig {
	return RPCConfig{
		Network:    NetworkMainnet,
		RPCURL:     DefaultRPCURL(NetworkMainnet),
		Commitment: "confirmed",
		Timeout:    20 * time.Second,
		Retry: RetryConfig{
			Enabled:        true,
			MaxAttempts:    3,
			InitialBackoff: 150 * time.Millisecond,
			MaxBackoff:     2 * time.Second,
			Jitter:         true,
		},
		RateLimit: RateLimitConfig{
			RPS:   8,
			Burst: 16,
		},
		Logger: zerolog.New(io.Discard),
	}
}

// ResolveRPCURL returns RPCURL if set, otherwise falls back to network defaults.
func (c RPCConfig) ResolveRPCURL() string {
	if c.RPCURL != "" {
		return c.RPCURL
	}
	return DefaultRPCURL(c.Network)
}

// FeePolicy carries the deployment's monetization parameters. These are
// business numbers, not protocol-mandated values; the defaults reproduce
// the original deployment exactly.
type FeePolicy struct {
	// TransferFeeBps is the service fee in basis points taken on gross spend.
	TransferFeeBps uint64
	// FeeDenominator is the basis-point denominator.
	FeeDenominator uint64
	// FeeFloorLamports is the minimum fee charged regardless of percentage.
	FeeFloorLamports uint64
	// FlatFeeLamports is the fixed fee embedded in the create instruction.
	FlatFeeLamports uint64
	// CollectionWallet receives the service fee transfer.
	CollectionWallet solana.PublicKey
}

// DefaultFeePolicy returns the original deployment's fee schedule
// (1% with a 1000-lamport floor, 100k-lamport flat create fee).
func DefaultFeePolicy() FeePolicy {
	return FeePolicy{
		TransferFeeBps:   100,
		FeeDenominator:   10_000,
		FeeFloorLamports: 1_000,
		FlatFeeLamports:  100_000,
		CollectionWallet: solana.MustPublicKeyFromBase58("FEExX798hpCjB4CGpkbojm3uCrMGSfByhd8drPUNNbxT"),
	}
}

// SlippagePolicy discounts computed quotes before they are embedded as
// on-chain bounds.
type SlippagePolicy struct {
	// BuyBps is subtracted from the expected token output on buys.
	BuyBps uint64
	// SellBps is subtracted from the expected SOL output on sells.
	SellBps uint64
}

// DefaultSlippagePolicy keeps 85% of the quoted tokens on buys and 70% of
// the quoted SOL on sells, matching the original flows.
func DefaultSlippagePolicy() SlippagePolicy {
	return SlippagePolicy{
		BuyBps:  1_500,
		SellBps: 3_000,
	}
}

// RelayConfig selects the bundle relay endpoints and attribution.
type RelayConfig struct {
	// Endpoints lists block-engine base URLs. Empty means the built-in
	// mainnet set.
	Endpoints []string
	// UUID is the optional fee-sharing attribution token appended as a
	// query parameter.
	UUID string
	// Broadcast sends each bundle to every endpoint concurrently instead
	// of round-robin through one.
	Broadcast bool
	// Timeout bounds each endpoint's HTTP round trip.
	Timeout time.Duration
}

// DefaultRelayConfig broadcasts to the built-in mainnet block engines.
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		Broadcast: true,
		Timeout:   10 * time.Second,
	}
}
