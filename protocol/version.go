package protocol

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Abdullah1738/merkle-airdrop/offchain/solana"
)

// Version tags which deployment of the distributor program owns an account.
type Version uint8

const (
	VersionUnknown Version = 0
	V1             Version = 1
	V2             Version = 2
)

var errInvalidVersion = errors.New("invalid protocol version")

func (v Version) String() string {
	switch v {
	case V1:
		return "v1"
	case V2:
		return "v2"
	default:
		return fmt.Sprintf("version(%d)", uint8(v))
	}
}

func ParseVersion(s string) (Version, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "v1", "1":
		return V1, nil
	case "v2", "2":
		return V2, nil
	default:
		return VersionUnknown, fmt.Errorf("%w: %q", errInvalidVersion, s)
	}
}

var (
	DefaultV1ProgramID = solana.MustParsePubkey("meRjbQXFNf5En86FXT2YPz1dQzLj4Yb3xK8u1MVgqpb")
	DefaultV2ProgramID = solana.MustParsePubkey("DiSLRwcSFvtwvMWSs7ubBMvYRaYNYupa76ZSuYLe6D7j")
)

// ProgramIDs maps each version to its deployed program. Owner comparison
// against these ids is the only version detection mechanism.
type ProgramIDs struct {
	V1 solana.Pubkey
	V2 solana.Pubkey
}

func DefaultProgramIDs() ProgramIDs {
	return ProgramIDs{V1: DefaultV1ProgramID, V2: DefaultV2ProgramID}
}

func (p ProgramIDs) Validate() error {
	if p.V1.IsZero() || p.V2.IsZero() {
		return errors.New("program ids required")
	}
	if p.V1 == p.V2 {
		return errors.New("v1 and v2 program ids must differ")
	}
	return nil
}

func (p ProgramIDs) For(v Version) (solana.Pubkey, error) {
	switch v {
	case V1:
		return p.V1, nil
	case V2:
		return p.V2, nil
	default:
		return solana.Pubkey{}, fmt.Errorf("%w: %s", errInvalidVersion, v)
	}
}

// VersionOf reports which version owner belongs to, or VersionUnknown.
func (p ProgramIDs) VersionOf(owner solana.Pubkey) Version {
	switch owner {
	case p.V1:
		return V1
	case p.V2:
		return V2
	default:
		return VersionUnknown
	}
}
