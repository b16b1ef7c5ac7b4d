package protocol

import (
	"errors"
	"fmt"

	"github.com/Abdullah1738/merkle-airdrop/offchain/solana"
)

var ErrInvariant = errors.New("distributor invariant violated")

var (
	MerkleDistributorDiscriminator = Discriminator{0x4d, 0x77, 0x8b, 0x46, 0x54, 0xf7, 0x0c, 0x1a}
	ClaimStatusDiscriminator       = Discriminator{0x42, 0x38, 0x27, 0x5c, 0xc7, 0x46, 0x29, 0x20}
)

const (
	MerkleDistributorSize = 339
	ClaimStatusSize       = 97
)

func merkleDistributorFields() []Field {
	return []Field{
		{"bump", FieldU8},
		{"version", FieldU64},
		{"root", FieldBytes32},
		{"mint", FieldBytes32},
		{"token_vault", FieldBytes32},
		{"max_total_claim", FieldU64},
		{"max_num_nodes", FieldU64},
		{"total_amount_claimed", FieldU64},
		{"num_nodes_claimed", FieldU64},
		{"start_ts", FieldI64},
		{"end_ts", FieldI64},
		{"clawback_start_ts", FieldI64},
		{"clawback_receiver", FieldBytes32},
		{"admin", FieldBytes32},
		{"clawed_back", FieldBool},
		{"enable_slot", FieldU64},
		{"closable", FieldBool},
		{"buffer_0", FieldBytes32},
		{"buffer_1", FieldBytes32},
		{"buffer_2", FieldBytes32},
	}
}

func claimStatusFields() []Field {
	return []Field{
		{"claimant", FieldBytes32},
		{"locked_amount", FieldU64},
		{"locked_amount_withdrawn", FieldU64},
		{"unlocked_amount", FieldU64},
		{"closable", FieldBool},
		{"admin", FieldBytes32},
	}
}

// Both deployments currently share account shapes; each keeps its own
// descriptor so a future layout change touches one version only.
var (
	MerkleDistributorLayoutV1 = Layout{Name: "MerkleDistributor(v1)", Discriminator: MerkleDistributorDiscriminator, Fields: merkleDistributorFields()}
	MerkleDistributorLayoutV2 = Layout{Name: "MerkleDistributor(v2)", Discriminator: MerkleDistributorDiscriminator, Fields: merkleDistributorFields()}
	ClaimStatusLayoutV1       = Layout{Name: "ClaimStatus(v1)", Discriminator: ClaimStatusDiscriminator, Fields: claimStatusFields()}
	ClaimStatusLayoutV2       = Layout{Name: "ClaimStatus(v2)", Discriminator: ClaimStatusDiscriminator, Fields: claimStatusFields()}
)

type AccountLayouts struct {
	MerkleDistributor Layout
	ClaimStatus       Layout
}

func LayoutsFor(v Version) (AccountLayouts, error) {
	switch v {
	case V1:
		return AccountLayouts{MerkleDistributor: MerkleDistributorLayoutV1, ClaimStatus: ClaimStatusLayoutV1}, nil
	case V2:
		return AccountLayouts{MerkleDistributor: MerkleDistributorLayoutV2, ClaimStatus: ClaimStatusLayoutV2}, nil
	default:
		return AccountLayouts{}, fmt.Errorf("%w: %s", errInvalidVersion, v)
	}
}

type MerkleDistributor struct {
	Bump               uint8
	Version            uint64
	Root               [32]byte
	Mint               solana.Pubkey
	TokenVault         solana.Pubkey
	MaxTotalClaim      uint64
	MaxNumNodes        uint64
	TotalAmountClaimed uint64
	NumNodesClaimed    uint64
	StartTs            int64
	EndTs              int64
	ClawbackStartTs    int64
	ClawbackReceiver   solana.Pubkey
	Admin              solana.Pubkey
	ClawedBack         bool
	EnableSlot         uint64
	Closable           bool
	Buffer0            [32]byte
	Buffer1            [32]byte
	Buffer2            [32]byte
}

// Validate checks the on-chain invariants. Decoding never calls it so that
// fetched state is shown as-is.
func (d MerkleDistributor) Validate() error {
	if d.StartTs > d.EndTs {
		return fmt.Errorf("%w: start_ts %d > end_ts %d", ErrInvariant, d.StartTs, d.EndTs)
	}
	if d.TotalAmountClaimed > d.MaxTotalClaim {
		return fmt.Errorf("%w: total_amount_claimed %d > max_total_claim %d", ErrInvariant, d.TotalAmountClaimed, d.MaxTotalClaim)
	}
	if d.NumNodesClaimed > d.MaxNumNodes {
		return fmt.Errorf("%w: num_nodes_claimed %d > max_num_nodes %d", ErrInvariant, d.NumNodesClaimed, d.MaxNumNodes)
	}
	return nil
}

func DecodeMerkleDistributor(data []byte, v Version) (*MerkleDistributor, error) {
	layouts, err := LayoutsFor(v)
	if err != nil {
		return nil, err
	}
	rec, err := Decode(data, layouts.MerkleDistributor)
	if err != nil {
		return nil, err
	}
	return &MerkleDistributor{
		Bump:               rec.Uint8("bump"),
		Version:            rec.Uint64("version"),
		Root:               rec.Bytes32("root"),
		Mint:               solana.Pubkey(rec.Bytes32("mint")),
		TokenVault:         solana.Pubkey(rec.Bytes32("token_vault")),
		MaxTotalClaim:      rec.Uint64("max_total_claim"),
		MaxNumNodes:        rec.Uint64("max_num_nodes"),
		TotalAmountClaimed: rec.Uint64("total_amount_claimed"),
		NumNodesClaimed:    rec.Uint64("num_nodes_claimed"),
		StartTs:            rec.Int64("start_ts"),
		EndTs:              rec.Int64("end_ts"),
		ClawbackStartTs:    rec.Int64("clawback_start_ts"),
		ClawbackReceiver:   solana.Pubkey(rec.Bytes32("clawback_receiver")),
		Admin:              solana.Pubkey(rec.Bytes32("admin")),
		ClawedBack:         rec.Bool("clawed_back"),
		EnableSlot:         rec.Uint64("enable_slot"),
		Closable:           rec.Bool("closable"),
		Buffer0:            rec.Bytes32("buffer_0"),
		Buffer1:            rec.Bytes32("buffer_1"),
		Buffer2:            rec.Bytes32("buffer_2"),
	}, nil
}

func (d MerkleDistributor) Record() Record {
	return Record{
		"bump":                 d.Bump,
		"version":              d.Version,
		"root":                 d.Root,
		"mint":                 [32]byte(d.Mint),
		"token_vault":          [32]byte(d.TokenVault),
		"max_total_claim":      d.MaxTotalClaim,
		"max_num_nodes":        d.MaxNumNodes,
		"total_amount_claimed": d.TotalAmountClaimed,
		"num_nodes_claimed":    d.NumNodesClaimed,
		"start_ts":             d.StartTs,
		"end_ts":               d.EndTs,
		"clawback_start_ts":    d.ClawbackStartTs,
		"clawback_receiver":    [32]byte(d.ClawbackReceiver),
		"admin":                [32]byte(d.Admin),
		"clawed_back":          d.ClawedBack,
		"enable_slot":          d.EnableSlot,
		"closable":             d.Closable,
		"buffer_0":             d.Buffer0,
		"buffer_1":             d.Buffer1,
		"buffer_2":             d.Buffer2,
	}
}

func (d MerkleDistributor) Encode(v Version) ([]byte, error) {
	layouts, err := LayoutsFor(v)
	if err != nil {
		return nil, err
	}
	return Encode(d.Record(), layouts.MerkleDistributor)
}

type ClaimStatus struct {
	Claimant              solana.Pubkey
	LockedAmount          uint64
	LockedAmountWithdrawn uint64
	UnlockedAmount        uint64
	Closable              bool
	Admin                 solana.Pubkey
}

func DecodeClaimStatus(data []byte, v Version) (*ClaimStatus, error) {
	layouts, err := LayoutsFor(v)
	if err != nil {
		return nil, err
	}
	rec, err := Decode(data, layouts.ClaimStatus)
	if err != nil {
		return nil, err
	}
	return &ClaimStatus{
		Claimant:              solana.Pubkey(rec.Bytes32("claimant")),
		LockedAmount:          rec.Uint64("locked_amount"),
		LockedAmountWithdrawn: rec.Uint64("locked_amount_withdrawn"),
		UnlockedAmount:        rec.Uint64("unlocked_amount"),
		Closable:              rec.Bool("closable"),
		Admin:                 solana.Pubkey(rec.Bytes32("admin")),
	}, nil
}

func (c ClaimStatus) Record() Record {
	return Record{
		"claimant":                [32]byte(c.Claimant),
		"locked_amount":           c.LockedAmount,
		"locked_amount_withdrawn": c.LockedAmountWithdrawn,
		"unlocked_amount":         c.UnlockedAmount,
		"closable":                c.Closable,
		"admin":                   [32]byte(c.Admin),
	}
}

func (c ClaimStatus) Encode(v Version) ([]byte, error) {
	layouts, err := LayoutsFor(v)
	if err != nil {
		return nil, err
	}
	return Encode(c.Record(), layouts.ClaimStatus)
}
