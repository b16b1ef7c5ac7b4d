package protocol

import (
	"encoding/binary"

	"github.com/Abdullah1738/merkle-airdrop/offchain/solana"
)

const (
	seedClaimStatus       = "ClaimStatus"
	seedMerkleDistributor = "MerkleDistributor"
)

// Deriver computes the program-derived addresses of one deployment.
type Deriver interface {
	Version() Version
	ProgramID() solana.Pubkey
	ClaimStatusAddress(wallet, distributor solana.Pubkey) (solana.Pubkey, uint8, error)
	DistributorAddress(mint solana.Pubkey, version uint64) (solana.Pubkey, uint8, error)
}

type deriver struct {
	version   Version
	programID solana.Pubkey
}

// NewDeriver binds version to the program it is deployed as.
func NewDeriver(v Version, ids ProgramIDs) (Deriver, error) {
	pid, err := ids.For(v)
	if err != nil {
		return nil, err
	}
	return deriver{version: v, programID: pid}, nil
}

func (d deriver) Version() Version { return d.version }

func (d deriver) ProgramID() solana.Pubkey { return d.programID }

func (d deriver) ClaimStatusAddress(wallet, distributor solana.Pubkey) (solana.Pubkey, uint8, error) {
	return solana.FindProgramAddress(
		[][]byte{[]byte(seedClaimStatus), wallet[:], distributor[:]},
		d.programID,
	)
}

func (d deriver) DistributorAddress(mint solana.Pubkey, version uint64) (solana.Pubkey, uint8, error) {
	var v [8]byte
	binary.LittleEndian.PutUint64(v[:], version)
	return solana.FindProgramAddress(
		[][]byte{[]byte(seedMerkleDistributor), mint[:], v[:]},
		d.programID,
	)
}
