// Package wallet provides signing capabilities and the multi-wallet store
// used by bundle flows.
package wallet

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// Signer performs detached signatures for transaction messages.
type Signer interface {
	PublicKey() solana.PublicKey
	SignMessage(ctx context.Context, message []byte) (solana.Signature, error)
}

// Local wraps a local private key.
type Local struct {
	key solana.PrivateKey
}

// NewLocalFromKeygen loads a solana-keygen JSON file.
func NewLocalFromKeygen(path string) (Local, error) {
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return Local{}, fmt.Errorf("load keypair: %w", err)
	}
	return Local{key: key}, nil
}

// NewLocalFromBase58 constructs a local signer from a base58-encoded key.
func NewLocalFromBase58(privateKey string) (Local, error) {
	key, err := solana.PrivateKeyFromBase58(privateKey)
	if err != nil {
		return Local{}, fmt.Errorf("decode base58 key: %w", err)
	}
	return Local{key: key}, nil
}

// NewLocalFromPrivateKey constructs a local signer from an existing private key.
func NewLocalFromPrivateKey(key solana.PrivateKey) Local {
	return Local{key: key}
}

// NewLocalRandom generates a fresh keypair, used for new token mints.
func NewLocalRandom() (Local, error) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return Local{}, fmt.Errorf("generate keypair: %w", err)
	}
	return Local{key: key}, nil
}

// PrivateKey exposes the raw key for callers that must co-sign with it.
func (l Local) PrivateKey() solana.PrivateKey {
	return l.key
}

// PublicKey returns the associated public key.
func (l Local) PublicKey() solana.PublicKey {
	return l.key.PublicKey()
}

// SignMessage signs the provided message bytes.
func (l Local) SignMessage(ctx context.Context, message []byte) (solana.Signature, error) {
	select {
	case <-ctx.Done():
		return solana.Signature{}, ctx.Err()
	default:
		sig, err := l.key.Sign(message)
		if err != nil {
			return solana.Signature{}, fmt.Errorf("sign message: %w", err)
		}
		return sig, nil
	}
}

// Store holds the ordered wallet set participating in a bundle. The first
// wallet carries the tip and fee transfers, so order is significant.
type Store struct {
	wallets []Local
}

// NewStore wraps an existing wallet list.
func NewStore(wallets []Local) *Store {
	return &Store{wallets: wallets}
}

// LoadStore reads one base58 private key per line. Blank lines and lines
// starting with '#' are skipped. Every key is validated eagerly so a typo
// surfaces at startup, not mid-bundle.
func LoadStore(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wallet file: %w", err)
	}
	defer f.Close()

	var wallets []Local
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		decoded, err := base58.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("wallet file line %d: %w", line, err)
		}
		if len(decoded) != 64 {
			return nil, fmt.Errorf("wallet file line %d: key length %d, want 64", line, len(decoded))
		}
		wallets = append(wallets, NewLocalFromPrivateKey(solana.PrivateKey(decoded)))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read wallet file: %w", err)
	}
	return &Store{wallets: wallets}, nil
}

// Wallets returns the wallets in file order.
func (s *Store) Wallets() []Local {
	return s.wallets
}

// Len returns the number of loaded wallets.
func (s *Store) Len() int {
	return len(s.wallets)
}

// PublicKeys returns the wallet public keys in order.
func (s *Store) PublicKeys() []solana.PublicKey {
	keys := make([]solana.PublicKey, len(s.wallets))
	for i, w := range s.wallets {
		keys[i] = w.PublicKey()
	}
	return keys
}
