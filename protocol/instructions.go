package protocol

import (
	"bytes"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"

	"github.com/Abdullah1738/merkle-airdrop/offchain/solana"
)

var (
	ErrMissingAccount   = errors.New("missing instruction account")
	ErrInvalidOpcode    = errors.New("invalid instruction opcode")
	ErrMalformedArgs    = errors.New("malformed instruction arguments")
	ErrUnknownOperation = errors.New("unknown operation")
)

type Opcode [8]byte

// AccountSpec is one slot of an operation's fixed account list.
type AccountSpec struct {
	Name     string
	Signer   bool
	Writable bool
}

// Operation pairs an on-chain instruction with its opcode and account list.
// Account order and flags are part of the wire contract.
type Operation struct {
	Name     string
	Opcode   Opcode
	Accounts []AccountSpec
}

func mut(name string) AccountSpec       { return AccountSpec{Name: name, Writable: true} }
func ro(name string) AccountSpec        { return AccountSpec{Name: name} }
func signerMut(name string) AccountSpec { return AccountSpec{Name: name, Signer: true, Writable: true} }
func signer(name string) AccountSpec    { return AccountSpec{Name: name, Signer: true} }

var (
	OpNewDistributor = Operation{
		Name:   "new_distributor",
		Opcode: Opcode{0x20, 0x8b, 0x70, 0xab, 0x00, 0x02, 0xe1, 0x9b},
		Accounts: []AccountSpec{
			mut("distributor"), mut("clawback_receiver"), ro("mint"), mut("token_vault"),
			signerMut("admin"), ro("system_program"), ro("associated_token_program"), ro("token_program"),
		},
	}
	OpCloseDistributor = Operation{
		Name:   "close_distributor",
		Opcode: Opcode{0xca, 0x38, 0xb4, 0x8f, 0x2e, 0x68, 0x6a, 0x70},
		Accounts: []AccountSpec{
			mut("distributor"), mut("token_vault"), signerMut("admin"), mut("destination_token_account"), ro("token_program"),
		},
	}
	OpCloseClaimStatus = Operation{
		Name:     "close_claim_status",
		Opcode:   Opcode{0xa3, 0xd6, 0xbf, 0xa5, 0xf5, 0xbc, 0x11, 0xb9},
		Accounts: []AccountSpec{mut("claim_status"), mut("claimant"), signer("admin")},
	}
	OpSetEnableSlot = Operation{
		Name:     "set_enable_slot",
		Opcode:   Opcode{0x05, 0x34, 0x49, 0x21, 0x96, 0x73, 0x61, 0xce},
		Accounts: []AccountSpec{mut("distributor"), signerMut("admin")},
	}
	OpNewClaim = Operation{
		Name:   "new_claim",
		Opcode: Opcode{0x4e, 0xb1, 0x62, 0x7b, 0xd2, 0x15, 0xbb, 0x53},
		Accounts: []AccountSpec{
			mut("distributor"), mut("claim_status"), mut("from"), mut("to"), signerMut("claimant"),
			ro("token_program"), ro("system_program"),
		},
	}
	OpClaimLocked = Operation{
		Name:   "claim_locked",
		Opcode: Opcode{0x22, 0xce, 0xb5, 0x17, 0x0b, 0xcf, 0x93, 0x5a},
		Accounts: []AccountSpec{
			mut("distributor"), mut("claim_status"), mut("from"), mut("to"), signerMut("claimant"), ro("token_program"),
		},
	}
	OpClawback = Operation{
		Name:   "clawback",
		Opcode: Opcode{0x6f, 0x5c, 0x8e, 0x4f, 0x21, 0xea, 0x52, 0x1b},
		Accounts: []AccountSpec{
			mut("distributor"), mut("from"), mut("to"), signer("claimant"), ro("system_program"), ro("token_program"),
		},
	}
	OpSetClawbackReceiver = Operation{
		Name:     "set_clawback_receiver",
		Opcode:   Opcode{0x99, 0xd9, 0x22, 0x14, 0x13, 0x1d, 0xe5, 0x4b},
		Accounts: []AccountSpec{mut("distributor"), ro("new_clawback_account"), signerMut("admin")},
	}
	OpSetAdmin = Operation{
		Name:     "set_admin",
		Opcode:   Opcode{0xfb, 0xa3, 0x00, 0x34, 0x5b, 0xc2, 0xbb, 0x5c},
		Accounts: []AccountSpec{mut("distributor"), signerMut("admin"), ro("new_admin")},
	}
)

var Operations = []Operation{
	OpNewDistributor,
	OpCloseDistributor,
	OpCloseClaimStatus,
	OpSetEnableSlot,
	OpNewClaim,
	OpClaimLocked,
	OpClawback,
	OpSetClawbackReceiver,
	OpSetAdmin,
}

func OperationByName(name string) (Operation, error) {
	for _, op := range Operations {
		if op.Name == name {
			return op, nil
		}
	}
	return Operation{}, fmt.Errorf("%w: %q", ErrUnknownOperation, name)
}

func OperationByOpcode(data []byte) (Operation, error) {
	if len(data) < len(Opcode{}) {
		return Operation{}, ErrInvalidOpcode
	}
	for _, op := range Operations {
		if bytes.Equal(op.Opcode[:], data[:len(op.Opcode)]) {
			return op, nil
		}
	}
	return Operation{}, fmt.Errorf("%w: %x", ErrInvalidOpcode, data[:8])
}

// Build assembles an instruction for op. accounts is keyed by slot name;
// remaining accounts are appended verbatim after the fixed list.
func (op Operation) Build(programID solana.Pubkey, accounts map[string]solana.Pubkey, args []byte, remaining ...solana.AccountMeta) (solana.Instruction, error) {
	metas := make([]solana.AccountMeta, 0, len(op.Accounts)+len(remaining))
	for _, spec := range op.Accounts {
		pk, ok := accounts[spec.Name]
		if !ok {
			return solana.Instruction{}, fmt.Errorf("%w: %s.%s", ErrMissingAccount, op.Name, spec.Name)
		}
		metas = append(metas, solana.AccountMeta{Pubkey: pk, IsSigner: spec.Signer, IsWritable: spec.Writable})
	}
	metas = append(metas, remaining...)

	data := make([]byte, 0, len(op.Opcode)+len(args))
	data = append(data, op.Opcode[:]...)
	data = append(data, args...)
	return solana.Instruction{ProgramID: programID, Accounts: metas, Data: data}, nil
}

func orDefault(pk, def solana.Pubkey) solana.Pubkey {
	if pk.IsZero() {
		return def
	}
	return pk
}

type NewDistributorArgs struct {
	Version         uint64
	Root            [32]byte
	MaxTotalClaim   uint64
	MaxNumNodes     uint64
	StartVestingTs  int64
	EndVestingTs    int64
	ClawbackStartTs int64
	EnableSlot      uint64
	Closable        bool
}

// NewDistributorAccounts leaves program accounts optional; zero values fall
// back to the canonical programs.
type NewDistributorAccounts struct {
	Distributor            solana.Pubkey
	ClawbackReceiver       solana.Pubkey
	Mint                   solana.Pubkey
	TokenVault             solana.Pubkey
	Admin                  solana.Pubkey
	SystemProgram          solana.Pubkey
	AssociatedTokenProgram solana.Pubkey
	TokenProgram           solana.Pubkey
}

func NewDistributor(programID solana.Pubkey, args NewDistributorArgs, accts NewDistributorAccounts, remaining ...solana.AccountMeta) (solana.Instruction, error) {
	var buf bytes.Buffer
	enc := bin.NewBorshEncoder(&buf)
	if err := firstErr(
		enc.WriteUint64(args.Version, bin.LE),
		enc.WriteBytes(args.Root[:], false),
		enc.WriteUint64(args.MaxTotalClaim, bin.LE),
		enc.WriteUint64(args.MaxNumNodes, bin.LE),
		enc.WriteInt64(args.StartVestingTs, bin.LE),
		enc.WriteInt64(args.EndVestingTs, bin.LE),
		enc.WriteInt64(args.ClawbackStartTs, bin.LE),
		enc.WriteUint64(args.EnableSlot, bin.LE),
		enc.WriteBool(args.Closable),
	); err != nil {
		return solana.Instruction{}, fmt.Errorf("encode new_distributor args: %w", err)
	}
	return OpNewDistributor.Build(programID, map[string]solana.Pubkey{
		"distributor":              accts.Distributor,
		"clawback_receiver":        accts.ClawbackReceiver,
		"mint":                     accts.Mint,
		"token_vault":              accts.TokenVault,
		"admin":                    accts.Admin,
		"system_program":           orDefault(accts.SystemProgram, solana.SystemProgramID),
		"associated_token_program": orDefault(accts.AssociatedTokenProgram, solana.AssociatedTokenProgramID),
		"token_program":            orDefault(accts.TokenProgram, solana.TokenProgramID),
	}, buf.Bytes(), remaining...)
}

type CloseDistributorAccounts struct {
	Distributor             solana.Pubkey
	TokenVault              solana.Pubkey
	Admin                   solana.Pubkey
	DestinationTokenAccount solana.Pubkey
	TokenProgram            solana.Pubkey
}

func CloseDistributor(programID solana.Pubkey, accts CloseDistributorAccounts, remaining ...solana.AccountMeta) (solana.Instruction, error) {
	return OpCloseDistributor.Build(programID, map[string]solana.Pubkey{
		"distributor":               accts.Distributor,
		"token_vault":               accts.TokenVault,
		"admin":                     accts.Admin,
		"destination_token_account": accts.DestinationTokenAccount,
		"token_program":             orDefault(accts.TokenProgram, solana.TokenProgramID),
	}, nil, remaining...)
}

type CloseClaimStatusAccounts struct {
	ClaimStatus solana.Pubkey
	Claimant    solana.Pubkey
	Admin       solana.Pubkey
}

func CloseClaimStatus(programID solana.Pubkey, accts CloseClaimStatusAccounts, remaining ...solana.AccountMeta) (solana.Instruction, error) {
	return OpCloseClaimStatus.Build(programID, map[string]solana.Pubkey{
		"claim_status": accts.ClaimStatus,
		"claimant":     accts.Claimant,
		"admin":        accts.Admin,
	}, nil, remaining...)
}

type SetEnableSlotArgs struct {
	EnableSlot uint64
}

type SetEnableSlotAccounts struct {
	Distributor solana.Pubkey
	Admin       solana.Pubkey
}

func SetEnableSlot(programID solana.Pubkey, args SetEnableSlotArgs, accts SetEnableSlotAccounts, remaining ...solana.AccountMeta) (solana.Instruction, error) {
	var buf bytes.Buffer
	if err := bin.NewBorshEncoder(&buf).WriteUint64(args.EnableSlot, bin.LE); err != nil {
		return solana.Instruction{}, fmt.Errorf("encode set_enable_slot args: %w", err)
	}
	return OpSetEnableSlot.Build(programID, map[string]solana.Pubkey{
		"distributor": accts.Distributor,
		"admin":       accts.Admin,
	}, buf.Bytes(), remaining...)
}

type NewClaimArgs struct {
	AmountUnlocked uint64
	AmountLocked   uint64
	Proof          [][32]byte
}

type NewClaimAccounts struct {
	Distributor   solana.Pubkey
	ClaimStatus   solana.Pubkey
	From          solana.Pubkey
	To            solana.Pubkey
	Claimant      solana.Pubkey
	TokenProgram  solana.Pubkey
	SystemProgram solana.Pubkey
}

func NewClaim(programID solana.Pubkey, args NewClaimArgs, accts NewClaimAccounts, remaining ...solana.AccountMeta) (solana.Instruction, error) {
	var buf bytes.Buffer
	enc := bin.NewBorshEncoder(&buf)
	err := firstErr(
		enc.WriteUint64(args.AmountUnlocked, bin.LE),
		enc.WriteUint64(args.AmountLocked, bin.LE),
		enc.WriteUint32(uint32(len(args.Proof)), bin.LE),
	)
	for i := 0; err == nil && i < len(args.Proof); i++ {
		err = enc.WriteBytes(args.Proof[i][:], false)
	}
	if err != nil {
		return solana.Instruction{}, fmt.Errorf("encode new_claim args: %w", err)
	}
	return OpNewClaim.Build(programID, map[string]solana.Pubkey{
		"distributor":    accts.Distributor,
		"claim_status":   accts.ClaimStatus,
		"from":           accts.From,
		"to":             accts.To,
		"claimant":       accts.Claimant,
		"token_program":  orDefault(accts.TokenProgram, solana.TokenProgramID),
		"system_program": orDefault(accts.SystemProgram, solana.SystemProgramID),
	}, buf.Bytes(), remaining...)
}

type ClaimLockedAccounts struct {
	Distributor  solana.Pubkey
	ClaimStatus  solana.Pubkey
	From         solana.Pubkey
	To           solana.Pubkey
	Claimant     solana.Pubkey
	TokenProgram solana.Pubkey
}

func ClaimLocked(programID solana.Pubkey, accts ClaimLockedAccounts, remaining ...solana.AccountMeta) (solana.Instruction, error) {
	return OpClaimLocked.Build(programID, map[string]solana.Pubkey{
		"distributor":   accts.Distributor,
		"claim_status":  accts.ClaimStatus,
		"from":          accts.From,
		"to":            accts.To,
		"claimant":      accts.Claimant,
		"token_program": orDefault(accts.TokenProgram, solana.TokenProgramID),
	}, nil, remaining...)
}

type ClawbackAccounts struct {
	Distributor   solana.Pubkey
	From          solana.Pubkey
	To            solana.Pubkey
	Claimant      solana.Pubkey
	SystemProgram solana.Pubkey
	TokenProgram  solana.Pubkey
}

func Clawback(programID solana.Pubkey, accts ClawbackAccounts, remaining ...solana.AccountMeta) (solana.Instruction, error) {
	return OpClawback.Build(programID, map[string]solana.Pubkey{
		"distributor":    accts.Distributor,
		"from":           accts.From,
		"to":             accts.To,
		"claimant":       accts.Claimant,
		"system_program": orDefault(accts.SystemProgram, solana.SystemProgramID),
		"token_program":  orDefault(accts.TokenProgram, solana.TokenProgramID),
	}, nil, remaining...)
}

type SetClawbackReceiverAccounts struct {
	Distributor        solana.Pubkey
	NewClawbackAccount solana.Pubkey
	Admin              solana.Pubkey
}

func SetClawbackReceiver(programID solana.Pubkey, accts SetClawbackReceiverAccounts, remaining ...solana.AccountMeta) (solana.Instruction, error) {
	return OpSetClawbackReceiver.Build(programID, map[string]solana.Pubkey{
		"distributor":          accts.Distributor,
		"new_clawback_account": accts.NewClawbackAccount,
		"admin":                accts.Admin,
	}, nil, remaining...)
}

type SetAdminAccounts struct {
	Distributor solana.Pubkey
	Admin       solana.Pubkey
	NewAdmin    solana.Pubkey
}

func SetAdmin(programID solana.Pubkey, accts SetAdminAccounts, remaining ...solana.AccountMeta) (solana.Instruction, error) {
	return OpSetAdmin.Build(programID, map[string]solana.Pubkey{
		"distributor": accts.Distributor,
		"admin":       accts.Admin,
		"new_admin":   accts.NewAdmin,
	}, nil, remaining...)
}

// argsOf checks the opcode and returns the argument section.
func argsOf(op Operation, data []byte) ([]byte, error) {
	if len(data) < len(op.Opcode) || !bytes.Equal(data[:len(op.Opcode)], op.Opcode[:]) {
		return nil, fmt.Errorf("%w: want %s", ErrInvalidOpcode, op.Name)
	}
	return data[len(op.Opcode):], nil
}

func DecodeNewClaimArgs(data []byte) (NewClaimArgs, error) {
	var out NewClaimArgs
	raw, err := argsOf(OpNewClaim, data)
	if err != nil {
		return out, err
	}
	dec := bin.NewBorshDecoder(raw)
	if out.AmountUnlocked, err = dec.ReadUint64(bin.LE); err != nil {
		return out, fmt.Errorf("%w: amount_unlocked: %v", ErrMalformedArgs, err)
	}
	if out.AmountLocked, err = dec.ReadUint64(bin.LE); err != nil {
		return out, fmt.Errorf("%w: amount_locked: %v", ErrMalformedArgs, err)
	}
	n, err := dec.ReadUint32(bin.LE)
	if err != nil {
		return out, fmt.Errorf("%w: proof length: %v", ErrMalformedArgs, err)
	}
	if uint64(n)*32 != uint64(dec.Remaining()) {
		return out, fmt.Errorf("%w: proof of %d nodes with %d bytes left", ErrMalformedArgs, n, dec.Remaining())
	}
	out.Proof = make([][32]byte, n)
	for i := range out.Proof {
		node, err := dec.ReadNBytes(32)
		if err != nil {
			return out, fmt.Errorf("%w: proof[%d]: %v", ErrMalformedArgs, i, err)
		}
		copy(out.Proof[i][:], node)
	}
	return out, nil
}

func DecodeSetEnableSlotArgs(data []byte) (SetEnableSlotArgs, error) {
	var out SetEnableSlotArgs
	raw, err := argsOf(OpSetEnableSlot, data)
	if err != nil {
		return out, err
	}
	if len(raw) != 8 {
		return out, fmt.Errorf("%w: set_enable_slot args are %d bytes", ErrMalformedArgs, len(raw))
	}
	out.EnableSlot, err = bin.NewBorshDecoder(raw).ReadUint64(bin.LE)
	if err != nil {
		return out, fmt.Errorf("%w: %v", ErrMalformedArgs, err)
	}
	return out, nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
