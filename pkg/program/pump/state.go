package pump

import (
	"encoding/binary"

	"github.com/gagliardetto/solana-go"

	"github.com/kato0x/pump-bundler/pkg/types"
)

// The on-chain accounts are a versionless fixed binary schema. Decoders
// read documented offsets and fail loudly on short data rather than
// zero-filling missing fields.
//
// BondingCurve layout:
//
//	0..8    discriminator
//	8..16   virtual_token_reserves  u64 LE
//	16..24  virtual_sol_reserves    u64 LE
//	24..32  real_token_reserves     u64 LE
//	32..40  real_sol_reserves       u64 LE
//	40..48  token_total_supply      u64 LE
//	48      complete                bool
//	49..81  creator                 pubkey
const bondingCurveLen = 81

// BondingCurve is the decoded curve state for one mint.
type BondingCurve struct {
	VirtualTokenReserves uint64
	VirtualSolReserves   uint64
	RealTokenReserves    uint64
	RealSolReserves      uint64
	TokenTotalSupply     uint64
	Complete             bool
	Creator              solana.PublicKey
}

// Unmarshal decodes the raw account data.
func (bc *BondingCurve) Unmarshal(data []byte) error {
	if len(data) < bondingCurveLen {
		return types.AccountLayoutError{Account: "BondingCurve", Want: bondingCurveLen, Got: len(data)}
	}
	bc.VirtualTokenReserves = binary.LittleEndian.Uint64(data[8:16])
	bc.VirtualSolReserves = binary.LittleEndian.Uint64(data[16:24])
	bc.RealTokenReserves = binary.LittleEndian.Uint64(data[24:32])
	bc.RealSolReserves = binary.LittleEndian.Uint64(data[32:40])
	bc.TokenTotalSupply = binary.LittleEndian.Uint64(data[40:48])
	bc.Complete = data[48] != 0
	bc.Creator = solana.PublicKeyFromBytes(data[49:81])
	return nil
}

// Global layout:
//
//	0..8     discriminator
//	8        initialized            bool
//	9..41    authority              pubkey
//	41..73   fee_recipient          pubkey
//	73..81   initial_virtual_token_reserves  u64 LE
//	81..89   initial_virtual_sol_reserves    u64 LE
//	89..97   initial_real_token_reserves     u64 LE
//	97..105  token_total_supply              u64 LE
//	105..113 fee_basis_points                u64 LE
const globalLen = 113

// Global is the decoded program-wide configuration account.
type Global struct {
	Initialized                 bool
	Authority                   solana.PublicKey
	FeeRecipient                solana.PublicKey
	InitialVirtualTokenReserves uint64
	InitialVirtualSolReserves   uint64
	InitialRealTokenReserves    uint64
	TokenTotalSupply            uint64
	FeeBasisPoints              uint64
}

// Unmarshal decodes the raw account data.
func (g *Global) Unmarshal(data []byte) error {
	if len(data) < globalLen {
		return types.AccountLayoutError{Account: "Global", Want: globalLen, Got: len(data)}
	}
	g.Initialized = data[8] != 0
	g.Authority = solana.PublicKeyFromBytes(data[9:41])
	g.FeeRecipient = solana.PublicKeyFromBytes(data[41:73])
	g.InitialVirtualTokenReserves = binary.LittleEndian.Uint64(data[73:81])
	g.InitialVirtualSolReserves = binary.LittleEndian.Uint64(data[81:89])
	g.InitialRealTokenReserves = binary.LittleEndian.Uint64(data[89:97])
	g.TokenTotalSupply = binary.LittleEndian.Uint64(data[97:105])
	g.FeeBasisPoints = binary.LittleEndian.Uint64(data[105:113])
	return nil
}

// TokenAccountAmount reads the balance field of a raw SPL token account.
// Layout: 0..32 mint, 32..64 owner, 64..72 amount u64 LE.
func TokenAccountAmount(data []byte) (uint64, error) {
	if len(data) < 72 {
		return 0, types.AccountLayoutError{Account: "TokenAccount", Want: 72, Got: len(data)}
	}
	return binary.LittleEndian.Uint64(data[64:72]), nil
}
