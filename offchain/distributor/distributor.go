package distributor

import (
	"context"
	"errors"
	"fmt"

	"github.com/Abdullah1738/merkle-airdrop/offchain/solana"
	"github.com/Abdullah1738/merkle-airdrop/offchain/solanarpc"
	"github.com/Abdullah1738/merkle-airdrop/protocol"
)

var (
	ErrUnknownAccount   = errors.New("distributor account not found")
	ErrUnsupportedOwner = errors.New("account owner is not a distributor program")
	// ErrUnresolved is returned by a Distributor that did not come from a
	// Resolver.
	ErrUnresolved = errors.New("distributor not resolved")
)

const (
	DefaultComputeUnitLimit = 200_000
	DefaultComputeUnitPrice = 1
)

// AccountFetcher is satisfied by *solanarpc.Client. A nil AccountInfo with a
// nil error means the account does not exist.
type AccountFetcher interface {
	GetAccountInfo(ctx context.Context, pubkey solana.Pubkey) (*solanarpc.AccountInfo, error)
}

// BatchAccountFetcher reads many accounts per request. *solanarpc.Client
// implements it; fetchers without it are read one account at a time.
type BatchAccountFetcher interface {
	GetMultipleAccounts(ctx context.Context, pubkeys []solana.Pubkey) ([]*solanarpc.AccountInfo, error)
}

// Distributor is a resolved distributor account. Exactly one of v1 and v2 is
// set, selected by Version. Obtain one from Resolver.Resolve.
type Distributor struct {
	Address   solana.Pubkey
	Version   protocol.Version
	ProgramID solana.Pubkey

	v1      *protocol.MerkleDistributor
	v2      *protocol.MerkleDistributor
	deriver protocol.Deriver
	fetcher AccountFetcher
}

// State returns the decoded account for whichever version this is.
func (d *Distributor) State() (*protocol.MerkleDistributor, error) {
	var s *protocol.MerkleDistributor
	switch d.Version {
	case protocol.V1:
		s = d.v1
	case protocol.V2:
		s = d.v2
	}
	if s == nil || d.deriver == nil || d.fetcher == nil {
		return nil, fmt.Errorf("%w: %s (version %s)", ErrUnresolved, d.Address, d.Version)
	}
	return s, nil
}

// ClaimStatusAddress derives wallet's claim record under this distributor's
// program.
func (d *Distributor) ClaimStatusAddress(wallet solana.Pubkey) (solana.Pubkey, error) {
	if _, err := d.State(); err != nil {
		return solana.Pubkey{}, err
	}
	addr, _, err := d.deriver.ClaimStatusAddress(wallet, d.Address)
	if err != nil {
		return solana.Pubkey{}, fmt.Errorf("derive claim status for %s: %w", wallet, err)
	}
	return addr, nil
}

// FetchClaimStatus returns nil, nil when wallet has not claimed.
func (d *Distributor) FetchClaimStatus(ctx context.Context, wallet solana.Pubkey) (*protocol.ClaimStatus, error) {
	addr, err := d.ClaimStatusAddress(wallet)
	if err != nil {
		return nil, err
	}
	info, err := d.fetcher.GetAccountInfo(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("fetch claim status %s: %w", addr, err)
	}
	return d.decodeClaimStatus(addr, info)
}

// FetchClaimStatuses returns one entry per wallet, in order, nil for wallets
// that have not claimed. Reads are batched when the fetcher supports it.
func (d *Distributor) FetchClaimStatuses(ctx context.Context, wallets []solana.Pubkey) ([]*protocol.ClaimStatus, error) {
	addrs := make([]solana.Pubkey, len(wallets))
	for i, w := range wallets {
		addr, err := d.ClaimStatusAddress(w)
		if err != nil {
			return nil, err
		}
		addrs[i] = addr
	}

	infos := make([]*solanarpc.AccountInfo, len(addrs))
	batch, ok := d.fetcher.(BatchAccountFetcher)
	for start := 0; start < len(addrs); start += solanarpc.MaxMultipleAccounts {
		end := min(start+solanarpc.MaxMultipleAccounts, len(addrs))
		if !ok {
			for i := start; i < end; i++ {
				info, err := d.fetcher.GetAccountInfo(ctx, addrs[i])
				if err != nil {
					return nil, fmt.Errorf("fetch claim status %s: %w", addrs[i], err)
				}
				infos[i] = info
			}
			continue
		}
		got, err := batch.GetMultipleAccounts(ctx, addrs[start:end])
		if err != nil {
			return nil, fmt.Errorf("fetch claim statuses: %w", err)
		}
		if len(got) != end-start {
			return nil, fmt.Errorf("fetch claim statuses: got %d accounts, want %d", len(got), end-start)
		}
		copy(infos[start:end], got)
	}

	out := make([]*protocol.ClaimStatus, len(addrs))
	for i, info := range infos {
		cs, err := d.decodeClaimStatus(addrs[i], info)
		if err != nil {
			return nil, err
		}
		out[i] = cs
	}
	return out, nil
}

func (d *Distributor) decodeClaimStatus(addr solana.Pubkey, info *solanarpc.AccountInfo) (*protocol.ClaimStatus, error) {
	if info == nil {
		return nil, nil
	}
	if info.Owner != d.ProgramID {
		return nil, fmt.Errorf("%w: claim status %s owned by %s", ErrUnsupportedOwner, addr, info.Owner)
	}
	cs, err := protocol.DecodeClaimStatus(info.Data, d.Version)
	if err != nil {
		return nil, fmt.Errorf("decode claim status %s: %w", addr, err)
	}
	return cs, nil
}

type ClaimInstructionOptions struct {
	// ComputeUnitLimit defaults to DefaultComputeUnitLimit.
	ComputeUnitLimit uint32
	// ComputeUnitPrice is in micro-lamports and defaults to DefaultComputeUnitPrice.
	ComputeUnitPrice uint64
	// SkipATACheck omits the token account lookup and never prepends a
	// create instruction.
	SkipATACheck bool
}

// BuildClaimInstructions returns the compute budget instructions, a create
// instruction for wallet's token account when it does not exist yet, and the
// new_claim instruction, in that order.
func (d *Distributor) BuildClaimInstructions(ctx context.Context, wallet solana.Pubkey, amount uint64, proof [][32]byte, opts ClaimInstructionOptions) ([]solana.Instruction, error) {
	if opts.ComputeUnitLimit == 0 {
		opts.ComputeUnitLimit = DefaultComputeUnitLimit
	}
	if opts.ComputeUnitPrice == 0 {
		opts.ComputeUnitPrice = DefaultComputeUnitPrice
	}
	state, err := d.State()
	if err != nil {
		return nil, err
	}

	claimStatus, err := d.ClaimStatusAddress(wallet)
	if err != nil {
		return nil, err
	}
	to, _, err := solana.FindAssociatedTokenAddress(wallet, state.Mint)
	if err != nil {
		return nil, err
	}

	ixs := []solana.Instruction{
		solana.ComputeBudgetSetComputeUnitLimit(opts.ComputeUnitLimit),
		solana.ComputeBudgetSetComputeUnitPrice(opts.ComputeUnitPrice),
	}
	if !opts.SkipATACheck {
		info, err := d.fetcher.GetAccountInfo(ctx, to)
		if err != nil {
			return nil, fmt.Errorf("fetch token account %s: %w", to, err)
		}
		if info == nil {
			create, err := solana.CreateAssociatedTokenAccountInstruction(wallet, wallet, state.Mint)
			if err != nil {
				return nil, err
			}
			ixs = append(ixs, create)
		}
	}

	claim, err := protocol.NewClaim(d.ProgramID, protocol.NewClaimArgs{
		AmountUnlocked: amount,
		AmountLocked:   0,
		Proof:          proof,
	}, protocol.NewClaimAccounts{
		Distributor: d.Address,
		ClaimStatus: claimStatus,
		From:        state.TokenVault,
		To:          to,
		Claimant:    wallet,
	})
	if err != nil {
		return nil, err
	}
	return append(ixs, claim), nil
}
