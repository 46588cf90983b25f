// Package txbuilder turns instruction groups into signed transactions.
// Each transaction has a hard wire-size ceiling, so participant groups are
// chunked before assembly and every chunk gets its own fresh blockhash.
package txbuilder

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"

	"github.com/kato0x/pump-bundler/pkg/constants"
	"github.com/kato0x/pump-bundler/pkg/types"
	"github.com/kato0x/pump-bundler/pkg/wallet"
)

const (
	// DefaultChunkSize is the number of participant groups per transaction.
	// Buy instructions reference 12+ accounts each; more than four groups
	// risks the wire-size ceiling.
	DefaultChunkSize = 4

	// MaxTxsPerBundle is the relay's cap on transactions per bundle.
	MaxTxsPerBundle = 5
)

// ConfirmationLevel represents transaction confirmation depth.
type ConfirmationLevel string

const (
	ConfirmationProcessed ConfirmationLevel = "processed"
	ConfirmationConfirmed ConfirmationLevel = "confirmed"
	ConfirmationFinalized ConfirmationLevel = "finalized"
)

// Chain is the read/submit surface the builder needs from an RPC client.
type Chain interface {
	GetLatestBlockhash(ctx context.Context) (*solanarpc.GetLatestBlockhashResult, error)
	SendTransaction(ctx context.Context, tx *solana.Transaction, opts solanarpc.TransactionOpts) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, sigs ...solana.Signature) (*solanarpc.GetSignatureStatusesResult, error)
}

// Group is one participant's instruction sequence plus the extra signers
// those instructions require beyond the fee payer.
type Group struct {
	Instructions []solana.Instruction
	Signers      []wallet.Signer
}

// Chunk partitions groups into batches of at most size, preserving order.
func Chunk(groups []Group, size int) [][]Group {
	if size <= 0 {
		size = DefaultChunkSize
	}
	var chunks [][]Group
	for start := 0; start < len(groups); start += size {
		end := start + size
		if end > len(groups) {
			end = len(groups)
		}
		chunks = append(chunks, groups[start:end])
	}
	return chunks
}

// Plan describes a full bundle: a prologue repeated in every transaction,
// a first-transaction-only preamble (tip and fee transfers), and the
// participant groups to chunk.
type Plan struct {
	FeePayer  wallet.Signer
	Prologue  []solana.Instruction
	FirstOnly []solana.Instruction
	Groups    []Group
	ChunkSize int
}

// Builder assembles and signs transactions against a live chain.
type Builder struct {
	chain         Chain
	skipPreflight bool
}

// NewBuilder constructs a builder over the given chain client.
func NewBuilder(chain Chain) *Builder {
	return &Builder{chain: chain}
}

// WithSkipPreflight configures whether sends skip preflight simulation.
func (b *Builder) WithSkipPreflight(skip bool) *Builder {
	b.skipPreflight = skip
	return b
}

// BuildTransaction builds one transaction with a fresh blockhash.
func (b *Builder) BuildTransaction(ctx context.Context, feePayer solana.PublicKey, instructions ...solana.Instruction) (*solana.Transaction, error) {
	if b.chain == nil {
		return nil, types.ErrNilRPC
	}
	if len(instructions) == 0 {
		return nil, types.ErrNoInstructions
	}

	latest, err := b.chain.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("get latest blockhash: %w", err)
	}

	builder := solana.NewTransactionBuilder().
		SetRecentBlockHash(latest.Value.Blockhash).
		SetFeePayer(feePayer)
	for _, ix := range instructions {
		builder.AddInstruction(ix)
	}

	tx, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("build transaction: %w", err)
	}
	return tx, nil
}

// BuildBundle chunks the plan's groups, assembles one signed transaction
// per chunk, and returns them in submission order. The fee payer signs
// every transaction; each chunk additionally signs with exactly the
// wallets its instructions reference.
func (b *Builder) BuildBundle(ctx context.Context, plan Plan) ([]*solana.Transaction, error) {
	if plan.FeePayer == nil {
		return nil, types.ErrNilSigner
	}
	if len(plan.Groups) == 0 {
		return nil, types.ErrNoInstructions
	}

	chunks := Chunk(plan.Groups, plan.ChunkSize)
	txs := make([]*solana.Transaction, 0, len(chunks))
	for i, chunk := range chunks {
		instructions := append([]solana.Instruction{}, plan.Prologue...)
		if i == 0 {
			instructions = append(instructions, plan.FirstOnly...)
		}
		signers := []wallet.Signer{plan.FeePayer}
		for _, g := range chunk {
			instructions = append(instructions, g.Instructions...)
			signers = append(signers, g.Signers...)
		}

		tx, err := b.BuildTransaction(ctx, plan.FeePayer.PublicKey(), instructions...)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}
		if err := SignTransaction(ctx, tx, signers...); err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

// SignTransaction signs using the provided signers in account-key order.
// All signatures are produced before any is attached, so a missing signer
// never leaves a half-signed transaction behind.
func SignTransaction(ctx context.Context, tx *solana.Transaction, signers ...wallet.Signer) error {
	if tx == nil {
		return fmt.Errorf("transaction is nil")
	}
	required := int(tx.Message.Header.NumRequiredSignatures)
	if required == 0 {
		return nil
	}
	if len(tx.Message.AccountKeys) < required {
		return fmt.Errorf("not enough account keys for required signatures")
	}

	signerMap := make(map[string]wallet.Signer, len(signers))
	for _, s := range signers {
		signerMap[s.PublicKey().String()] = s
	}

	messageBytes, err := tx.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	sigs := make([]solana.Signature, required)
	for i := 0; i < required; i++ {
		pk := tx.Message.AccountKeys[i]
		signer, ok := signerMap[pk.String()]
		if !ok {
			return fmt.Errorf("missing signer for %s", pk.String())
		}
		sig, err := signer.SignMessage(ctx, messageBytes)
		if err != nil {
			return fmt.Errorf("sign message for %s: %w", pk.String(), err)
		}
		sigs[i] = sig
	}
	tx.Signatures = sigs
	return nil
}

// Send submits a signed transaction over RPC.
func (b *Builder) Send(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	if b.chain == nil {
		return solana.Signature{}, types.ErrNilRPC
	}
	opts := solanarpc.TransactionOpts{
		SkipPreflight:       b.skipPreflight,
		PreflightCommitment: solanarpc.CommitmentConfirmed,
	}
	sig, err := b.chain.SendTransaction(ctx, tx, opts)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("send transaction: %w", err)
	}
	return sig, nil
}

// WaitForConfirmation polls transaction status until the requested level,
// an on-chain failure, or context expiry. An expired context means the
// outcome is unknown, not failed; callers report it as unconfirmed.
func (b *Builder) WaitForConfirmation(ctx context.Context, sig solana.Signature, level ConfirmationLevel) error {
	if b.chain == nil {
		return types.ErrNilRPC
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s", types.ErrConfirmationTimeout, sig)
		case <-ticker.C:
			resp, err := b.chain.GetSignatureStatuses(ctx, sig)
			if err != nil {
				continue // transient
			}
			if resp == nil || len(resp.Value) == 0 || resp.Value[0] == nil {
				continue // not yet visible
			}
			status := resp.Value[0]
			if status.Err != nil {
				return fmt.Errorf("%w: %v", types.ErrTransactionFailed, status.Err)
			}
			switch level {
			case ConfirmationProcessed:
				return nil
			case ConfirmationConfirmed:
				if status.ConfirmationStatus == solanarpc.ConfirmationStatusConfirmed ||
					status.ConfirmationStatus == solanarpc.ConfirmationStatusFinalized {
					return nil
				}
			case ConfirmationFinalized:
				if status.ConfirmationStatus == solanarpc.ConfirmationStatusFinalized {
					return nil
				}
			default:
				return nil
			}
		}
	}
}

// ComputeBudgetIxs builds the fixed compute-budget prologue: a unit limit
// and, when priceMicroLamports is non-zero, a unit price.
func ComputeBudgetIxs(unitLimit uint32, priceMicroLamports uint64) []solana.Instruction {
	// SetComputeUnitLimit discriminator = 2, SetComputeUnitPrice = 3
	limitData := make([]byte, 5)
	limitData[0] = 2
	binary.LittleEndian.PutUint32(limitData[1:], unitLimit)
	ixs := []solana.Instruction{
		solana.NewInstruction(constants.ComputeBudgetProgramID, nil, limitData),
	}
	if priceMicroLamports > 0 {
		priceData := make([]byte, 9)
		priceData[0] = 3
		binary.LittleEndian.PutUint64(priceData[1:], priceMicroLamports)
		ixs = append(ixs, solana.NewInstruction(constants.ComputeBudgetProgramID, nil, priceData))
	}
	return ixs
}
