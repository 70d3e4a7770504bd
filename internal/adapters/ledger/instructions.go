package ledger

// instructions.go — typed builders for every instruction the keeper sends.

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/alejandrodnm/lmsrkeeper/internal/domain"
)

var (
	ComputeBudgetProgramID = solana.MustPublicKeyFromBase58("ComputeBudget111111111111111111111111111111")
	Ed25519ProgramID       = solana.MustPublicKeyFromBase58("Ed25519SigVerify111111111111111111111111111")
	SysvarInstructionsID   = solana.MustPublicKeyFromBase58("Sysvar1nstructions1111111111111111111111111")
	SystemProgramID        = solana.MustPublicKeyFromBase58("11111111111111111111111111111111")
)

// Instruction names of the market program.
const (
	ixExecuteLimitOrder = "execute_limit_order"
	ixStopMarket        = "stop_market"
	ixSettleMarket      = "settle_market"
	ixAdminRedeem       = "admin_redeem"
)

// PDA seeds.
var (
	seedPosition  = []byte("pos")
	seedUserVault = []byte("user_vault")
	seedVault     = []byte("vault")
)

const (
	setComputeUnitLimitTag = 0x02

	// Ed25519 verify header: 1 signature, data inline in this instruction.
	ed25519HeaderLen       = 16
	ed25519PubkeyOffset    = ed25519HeaderLen
	ed25519SigOffset       = ed25519PubkeyOffset + 32
	ed25519MsgOffset       = ed25519SigOffset + 64
	ed25519ThisInstruction = 0xFFFF
)

// SetComputeUnitLimit requests units of compute for the transaction.
func SetComputeUnitLimit(units uint32) solana.Instruction {
	data := make([]byte, 5)
	data[0] = setComputeUnitLimitTag
	binary.LittleEndian.PutUint32(data[1:], units)
	return solana.NewInstruction(ComputeBudgetProgramID, solana.AccountMetaSlice{}, data)
}

// Ed25519VerifyData lays out the native verify instruction for one signature
// over msg, with every offset pointing into the instruction itself.
func Ed25519VerifyData(pubkey solana.PublicKey, sig, msg []byte) ([]byte, error) {
	if len(sig) != domain.SignatureLen {
		return nil, fmt.Errorf("ledger.Ed25519VerifyData: %w", domain.ErrSignatureLength)
	}
	if len(msg) > 0xFFFF-ed25519MsgOffset {
		return nil, fmt.Errorf("ledger.Ed25519VerifyData: message too long (%d)", len(msg))
	}
	data := make([]byte, ed25519MsgOffset+len(msg))
	data[0] = 1 // num signatures
	data[1] = 0 // padding
	le := binary.LittleEndian
	le.PutUint16(data[2:], ed25519SigOffset)
	le.PutUint16(data[4:], ed25519ThisInstruction)
	le.PutUint16(data[6:], ed25519PubkeyOffset)
	le.PutUint16(data[8:], ed25519ThisInstruction)
	le.PutUint16(data[10:], ed25519MsgOffset)
	le.PutUint16(data[12:], uint16(len(msg)))
	le.PutUint16(data[14:], ed25519ThisInstruction)
	copy(data[ed25519PubkeyOffset:], pubkey[:])
	copy(data[ed25519SigOffset:], sig)
	copy(data[ed25519MsgOffset:], msg)
	return data, nil
}

// Ed25519Verify is the native verify instruction; it takes no accounts.
func Ed25519Verify(pubkey solana.PublicKey, sig, msg []byte) (solana.Instruction, error) {
	data, err := Ed25519VerifyData(pubkey, sig, msg)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(Ed25519ProgramID, solana.AccountMetaSlice{}, data), nil
}

// Addresses derives the PDAs the program uses for one (market, user) pair.
type Addresses struct {
	Position  solana.PublicKey
	UserVault solana.PublicKey
	Vault     solana.PublicKey
}

// DeriveAddresses finds the position, user collateral and market vault PDAs.
func DeriveAddresses(programID, market, user solana.PublicKey) (Addresses, error) {
	pos, _, err := solana.FindProgramAddress([][]byte{seedPosition, market[:], user[:]}, programID)
	if err != nil {
		return Addresses{}, fmt.Errorf("ledger.DeriveAddresses: position: %w", err)
	}
	uv, _, err := solana.FindProgramAddress([][]byte{seedUserVault, market[:], user[:]}, programID)
	if err != nil {
		return Addresses{}, fmt.Errorf("ledger.DeriveAddresses: user vault: %w", err)
	}
	vault, err := VaultAddress(programID, market)
	if err != nil {
		return Addresses{}, err
	}
	return Addresses{Position: pos, UserVault: uv, Vault: vault}, nil
}

// VaultAddress is the market's collateral vault PDA.
func VaultAddress(programID, market solana.PublicKey) (solana.PublicKey, error) {
	vault, _, err := solana.FindProgramAddress([][]byte{seedVault, market[:]}, programID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("ledger.VaultAddress: %w", err)
	}
	return vault, nil
}

// ExecuteLimitOrderData is disc("execute_limit_order") followed by the
// canonical order encoding.
func ExecuteLimitOrderData(o domain.LimitOrder) []byte {
	disc := instructionDiscriminator(ixExecuteLimitOrder)
	return append(disc[:], o.Encode()...)
}

// ExecuteLimitOrder builds the trade instruction.
func ExecuteLimitOrder(programID solana.PublicKey, o domain.LimitOrder, feeDest, keeper solana.PublicKey) (solana.Instruction, error) {
	addrs, err := DeriveAddresses(programID, o.Market, o.User)
	if err != nil {
		return nil, err
	}
	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(o.Market, true, false),
		solana.NewAccountMeta(addrs.Position, true, false),
		solana.NewAccountMeta(addrs.UserVault, true, false),
		solana.NewAccountMeta(feeDest, true, false),
		solana.NewAccountMeta(addrs.Vault, true, false),
		solana.NewAccountMeta(keeper, true, true),
		solana.NewAccountMeta(SysvarInstructionsID, false, false),
		solana.NewAccountMeta(SystemProgramID, false, false),
	}
	return solana.NewInstruction(programID, accounts, ExecuteLimitOrderData(o)), nil
}

// StopMarket halts trading.
func StopMarket(programID, market, authority solana.PublicKey) solana.Instruction {
	disc := instructionDiscriminator(ixStopMarket)
	return solana.NewInstruction(programID, adminAccounts(market, authority), disc[:])
}

// SettleMarket records the winner and fixes pps.
func SettleMarket(programID, market, authority solana.PublicKey, winner domain.Outcome) solana.Instruction {
	disc := instructionDiscriminator(ixSettleMarket)
	data := append(disc[:], byte(winner))
	return solana.NewInstruction(programID, adminAccounts(market, authority), data)
}

func adminAccounts(market, authority solana.PublicKey) solana.AccountMetaSlice {
	return solana.AccountMetaSlice{
		solana.NewAccountMeta(market, true, false),
		solana.NewAccountMeta(authority, true, true),
	}
}

// AdminRedeem pays out one holder's position.
func AdminRedeem(programID, market, owner, authority solana.PublicKey) (solana.Instruction, error) {
	addrs, err := DeriveAddresses(programID, market, owner)
	if err != nil {
		return nil, err
	}
	disc := instructionDiscriminator(ixAdminRedeem)
	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(market, true, false),
		solana.NewAccountMeta(addrs.Position, true, false),
		solana.NewAccountMeta(addrs.UserVault, true, false),
		solana.NewAccountMeta(addrs.Vault, true, false),
		solana.NewAccountMeta(authority, true, true),
		solana.NewAccountMeta(SystemProgramID, false, false),
	}
	return solana.NewInstruction(programID, accounts, disc[:]), nil
}
