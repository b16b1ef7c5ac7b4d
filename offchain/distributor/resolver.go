package distributor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/Abdullah1738/merkle-airdrop/internal/metrics"
	"github.com/Abdullah1738/merkle-airdrop/offchain/solana"
	"github.com/Abdullah1738/merkle-airdrop/protocol"
)

type Config struct {
	Logger     *slog.Logger
	Fetcher    AccountFetcher
	ProgramIDs protocol.ProgramIDs
}

func (cfg *Config) Validate() error {
	if cfg.Fetcher == nil {
		return errors.New("account fetcher is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.ProgramIDs == (protocol.ProgramIDs{}) {
		cfg.ProgramIDs = protocol.DefaultProgramIDs()
	}
	return cfg.ProgramIDs.Validate()
}

// Resolver maps distributor addresses to decoded, version-tagged state.
// Successful resolutions are cached for the resolver's lifetime; failures are
// not.
type Resolver struct {
	log      *slog.Logger
	cfg      Config
	derivers map[protocol.Version]protocol.Deriver

	mu    sync.RWMutex
	cache map[solana.Pubkey]*Distributor
	group singleflight.Group
}

func NewResolver(cfg Config) (*Resolver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	derivers := make(map[protocol.Version]protocol.Deriver, 2)
	for _, v := range []protocol.Version{protocol.V1, protocol.V2} {
		d, err := protocol.NewDeriver(v, cfg.ProgramIDs)
		if err != nil {
			return nil, err
		}
		derivers[v] = d
	}
	return &Resolver{
		log:      cfg.Logger,
		cfg:      cfg,
		derivers: derivers,
		cache:    make(map[solana.Pubkey]*Distributor),
	}, nil
}

func (r *Resolver) Resolve(ctx context.Context, addr solana.Pubkey) (*Distributor, error) {
	r.mu.RLock()
	d, ok := r.cache[addr]
	r.mu.RUnlock()
	if ok {
		metrics.DistributorCacheTotal.WithLabelValues("hit").Inc()
		return d, nil
	}
	metrics.DistributorCacheTotal.WithLabelValues("miss").Inc()

	// The shared load outlives any single caller; each caller stops waiting
	// when its own ctx is done.
	loadCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(addr.Base58(), func() (any, error) {
		r.mu.RLock()
		d, ok := r.cache[addr]
		r.mu.RUnlock()
		if ok {
			return d, nil
		}
		d, err := r.load(loadCtx, addr)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.cache[addr] = d
		r.mu.Unlock()
		return d, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Distributor), nil
	}
}

func (r *Resolver) load(ctx context.Context, addr solana.Pubkey) (*Distributor, error) {
	info, err := r.cfg.Fetcher.GetAccountInfo(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("fetch distributor %s: %w", addr, err)
	}
	if info == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, addr)
	}

	version := r.cfg.ProgramIDs.VersionOf(info.Owner)
	d := &Distributor{
		Address:   addr,
		Version:   version,
		ProgramID: info.Owner,
		fetcher:   r.cfg.Fetcher,
	}
	switch version {
	case protocol.V1:
		d.v1, err = protocol.DecodeMerkleDistributor(info.Data, protocol.V1)
	case protocol.V2:
		d.v2, err = protocol.DecodeMerkleDistributor(info.Data, protocol.V2)
	default:
		return nil, fmt.Errorf("%w: %s owned by %s", ErrUnsupportedOwner, addr, info.Owner)
	}
	if err != nil {
		return nil, fmt.Errorf("decode distributor %s: %w", addr, err)
	}
	d.deriver = r.derivers[version]
	state, err := d.State()
	if err != nil {
		return nil, err
	}

	r.log.Debug("distributor: resolved", "address", addr, "version", version, "mint", state.Mint)
	return d, nil
}

// MintDecimals fetches the decimals of mint. Used for display only.
func (r *Resolver) MintDecimals(ctx context.Context, mint solana.Pubkey) (uint8, error) {
	info, err := r.cfg.Fetcher.GetAccountInfo(ctx, mint)
	if err != nil {
		return 0, fmt.Errorf("fetch mint %s: %w", mint, err)
	}
	if info == nil {
		return 0, fmt.Errorf("%w: mint %s", ErrUnknownAccount, mint)
	}
	return solana.DecodeMintDecimals(info.Data)
}
