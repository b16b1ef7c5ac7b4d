package claim

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/Abdullah1738/merkle-airdrop/internal/metrics"
	"github.com/Abdullah1738/merkle-airdrop/offchain/distributor"
	"github.com/Abdullah1738/merkle-airdrop/offchain/keypair"
	"github.com/Abdullah1738/merkle-airdrop/offchain/proofapi"
	"github.com/Abdullah1738/merkle-airdrop/offchain/solana"
	"github.com/Abdullah1738/merkle-airdrop/offchain/txsend"
)

const DefaultWidth = 20

var ErrRetriesExhausted = errors.New("claim retries exhausted")

type EligibilityService interface {
	FetchProof(ctx context.Context, mint, wallet solana.Pubkey) (*proofapi.ProofEntry, error)
}

type DistributorResolver interface {
	Resolve(ctx context.Context, addr solana.Pubkey) (*distributor.Distributor, error)
	MintDecimals(ctx context.Context, mint solana.Pubkey) (uint8, error)
}

type Submitter interface {
	SubmitAndConfirm(ctx context.Context, signer ed25519.PrivateKey, ixs []solana.Instruction) (string, error)
}

// FeeEstimator suggests a compute unit price in micro-lamports for a
// transaction touching accounts.
type FeeEstimator interface {
	ComputeUnitPrice(ctx context.Context, accounts []solana.Pubkey) (uint64, error)
}

type State int

const (
	StateNoDistribution State = iota + 1
	StateAlreadyClaimed
	StateConfirmed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNoDistribution:
		return "no_distribution"
	case StateAlreadyClaimed:
		return "already_claimed"
	case StateConfirmed:
		return "confirmed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Outcome is the terminal result for one wallet.
type Outcome struct {
	Wallet      solana.Pubkey
	State       State
	Signature   string
	Amount      uint64
	Distributor solana.Pubkey
	Attempts    int
	Err         error
}

// RetryPolicy governs resubmission after transient failures. The zero value
// retries immediately and without bound.
type RetryPolicy struct {
	// MaxAttempts of zero means unbounded.
	MaxAttempts int
	Backoff     time.Duration
	MaxBackoff  time.Duration
}

// delay is the wait before attempt n+1 after n failed attempts.
func (p RetryPolicy) delay(n int) time.Duration {
	if p.Backoff <= 0 || n < 1 {
		return 0
	}
	d := p.Backoff
	for i := 1; i < n; i++ {
		d *= 2
		if p.MaxBackoff > 0 && d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

type Config struct {
	Logger         *slog.Logger
	Clock          clockwork.Clock
	Width          int
	Retry          RetryPolicy
	AttemptTimeout time.Duration
	Instructions   distributor.ClaimInstructionOptions

	Eligibility EligibilityService
	Resolver    DistributorResolver
	Submitter   Submitter
	// FeeEstimator is optional. When set it overrides Instructions.ComputeUnitPrice.
	FeeEstimator FeeEstimator
}

func (cfg *Config) Validate() error {
	if cfg.Eligibility == nil {
		return errors.New("eligibility service is required")
	}
	if cfg.Resolver == nil {
		return errors.New("distributor resolver is required")
	}
	if cfg.Submitter == nil {
		return errors.New("submitter is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Width <= 0 {
		cfg.Width = DefaultWidth
	}
	if cfg.Retry.MaxAttempts < 0 {
		return errors.New("max attempts must be >= 0")
	}
	return nil
}

type Orchestrator struct {
	log *slog.Logger
	cfg Config
}

func New(cfg Config) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Orchestrator{log: cfg.Logger, cfg: cfg}, nil
}

// Run claims mint for every wallet with at most Width wallets in flight and
// returns one outcome per wallet in input order. Cancelling ctx stops new
// wallets from starting; wallets never started are reported Failed with the
// context error, which Run also returns.
func (o *Orchestrator) Run(ctx context.Context, mint solana.Pubkey, wallets []keypair.Keypair) ([]Outcome, error) {
	runID := uuid.NewString()
	log := o.log.With("run_id", runID, "mint", mint)

	decimals := -1
	if dec, err := o.cfg.Resolver.MintDecimals(ctx, mint); err != nil {
		log.Warn("claim: mint decimals unavailable", "error", err)
	} else {
		decimals = int(dec)
	}
	log.Info("claim: run starting", "wallets", len(wallets), "width", o.cfg.Width)

	outcomes := make([]Outcome, len(wallets))
	var g errgroup.Group
	g.SetLimit(o.cfg.Width)
	for i, kp := range wallets {
		if err := ctx.Err(); err != nil {
			outcomes[i] = Outcome{Wallet: kp.Public, State: StateFailed, Err: err}
			continue
		}
		g.Go(func() error {
			start := o.cfg.Clock.Now()
			out := o.claimWallet(ctx, log.With("wallet", kp.Public), mint, kp, decimals)
			metrics.WalletDuration.Observe(o.cfg.Clock.Since(start).Seconds())
			outcomes[i] = out
			return nil
		})
	}
	_ = g.Wait()

	counts := make(map[State]int)
	for _, out := range outcomes {
		counts[out.State]++
		metrics.ClaimOutcomesTotal.WithLabelValues(out.State.String()).Inc()
	}
	log.Info("claim: run finished",
		"confirmed", counts[StateConfirmed],
		"already_claimed", counts[StateAlreadyClaimed],
		"no_distribution", counts[StateNoDistribution],
		"failed", counts[StateFailed],
	)
	return outcomes, ctx.Err()
}

func (o *Orchestrator) claimWallet(ctx context.Context, log *slog.Logger, mint solana.Pubkey, kp keypair.Keypair, decimals int) Outcome {
	out := Outcome{Wallet: kp.Public}
	fail := func(err error) Outcome {
		out.State = StateFailed
		out.Err = err
		log.Error("claim: failed", "attempts", out.Attempts, "error", err)
		return out
	}

	entry, err := o.cfg.Eligibility.FetchProof(ctx, mint, kp.Public)
	if err != nil {
		return fail(fmt.Errorf("fetch proof: %w", err))
	}
	if entry == nil || entry.Amount == 0 || len(entry.Proof) == 0 {
		out.State = StateNoDistribution
		log.Info("claim: no distribution, skipping")
		return out
	}
	out.Amount = entry.Amount
	out.Distributor = entry.Distributor

	d, err := o.cfg.Resolver.Resolve(ctx, entry.Distributor)
	if err != nil {
		return fail(fmt.Errorf("resolve distributor: %w", err))
	}
	status, err := d.FetchClaimStatus(ctx, kp.Public)
	if err != nil {
		return fail(err)
	}
	if status != nil {
		out.State = StateAlreadyClaimed
		log.Info("claim: already claimed, skipping", "distributor", d.Address)
		return out
	}

	state, err := d.State()
	if err != nil {
		return fail(err)
	}
	opts := o.cfg.Instructions
	if o.cfg.FeeEstimator != nil {
		price, err := o.cfg.FeeEstimator.ComputeUnitPrice(ctx, []solana.Pubkey{d.Address, state.TokenVault})
		if err != nil {
			log.Warn("claim: priority fee estimate failed", "error", err)
		} else {
			opts.ComputeUnitPrice = price
		}
	}
	var ixs []solana.Instruction
	for {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		// Each attempt gets a fresh instruction list; the token account may
		// have been created since the last one.
		built, err := d.BuildClaimInstructions(ctx, kp.Public, entry.Amount, entry.Proof, opts)
		switch {
		case err == nil:
			ixs = built
		case ixs == nil:
			return fail(fmt.Errorf("build instructions: %w", err))
		default:
			log.Warn("claim: rebuild failed, reusing previous instructions", "error", err)
		}
		out.Attempts++
		log.Info("claim: submitting", "amount", FormatAmount(entry.Amount, decimals), "distributor", d.Address, "version", d.Version, "attempt", out.Attempts)

		sig, err := o.submit(ctx, kp.Private, ixs)
		if err == nil {
			metrics.ClaimAttemptsTotal.WithLabelValues("confirmed").Inc()
			out.State = StateConfirmed
			out.Signature = sig
			log.Info("claim: confirmed", "signature", sig, "attempts", out.Attempts)
			return out
		}
		if !errors.Is(err, txsend.ErrSubmitFailed) || ctx.Err() != nil {
			metrics.ClaimAttemptsTotal.WithLabelValues("error").Inc()
			return fail(err)
		}
		metrics.ClaimAttemptsTotal.WithLabelValues("transient").Inc()
		log.Warn("claim: attempt failed", "signature", sig, "attempt", out.Attempts, "error", err)

		// A transaction reported as failed may still have landed.
		if status, serr := d.FetchClaimStatus(ctx, kp.Public); serr != nil {
			log.Warn("claim: claim status recheck failed", "error", serr)
		} else if status != nil {
			out.State = StateConfirmed
			out.Signature = sig
			log.Info("claim: claim status found after failed attempt", "signature", sig, "attempts", out.Attempts)
			return out
		}

		if o.cfg.Retry.MaxAttempts > 0 && out.Attempts >= o.cfg.Retry.MaxAttempts {
			return fail(fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, out.Attempts, err))
		}
		if wait := o.cfg.Retry.delay(out.Attempts); wait > 0 {
			select {
			case <-ctx.Done():
				return fail(ctx.Err())
			case <-o.cfg.Clock.After(wait):
			}
		}
	}
}

func (o *Orchestrator) submit(ctx context.Context, signer ed25519.PrivateKey, ixs []solana.Instruction) (string, error) {
	if o.cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.AttemptTimeout)
		defer cancel()
	}
	sig, err := o.cfg.Submitter.SubmitAndConfirm(ctx, signer, ixs)
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
		err = fmt.Errorf("%w: attempt timed out: %v", txsend.ErrSubmitFailed, err)
	}
	return sig, err
}

// FormatAmount renders base units with decimals places. Out of range decimals
// print the raw amount.
func FormatAmount(amount uint64, decimals int) string {
	if decimals <= 0 || decimals > 19 {
		return fmt.Sprintf("%d", amount)
	}
	div := uint64(1)
	for i := 0; i < decimals; i++ {
		div *= 10
	}
	return fmt.Sprintf("%d.%0*d", amount/div, decimals, amount%div)
}
