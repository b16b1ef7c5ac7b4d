package claim

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/Abdullah1738/merkle-airdrop/offchain/distributor"
	"github.com/Abdullah1738/merkle-airdrop/offchain/keypair"
	"github.com/Abdullah1738/merkle-airdrop/offchain/proofapi"
	"github.com/Abdullah1738/merkle-airdrop/offchain/solana"
	"github.com/Abdullah1738/merkle-airdrop/offchain/solanarpc"
	"github.com/Abdullah1738/merkle-airdrop/offchain/txsend"
	"github.com/Abdullah1738/merkle-airdrop/protocol"
)

func key(b byte) solana.Pubkey {
	var pk solana.Pubkey
	for i := range pk {
		pk[i] = b
	}
	return pk
}

var (
	mintAddr        = key(0x33)
	distributorAddr = key(0xd1)
)

// chain is an in-memory account store shared by the resolver and submitter fakes.
type chain struct {
	mu       sync.Mutex
	accounts map[solana.Pubkey]*solanarpc.AccountInfo
}

func (c *chain) GetAccountInfo(ctx context.Context, pk solana.Pubkey) (*solanarpc.AccountInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accounts[pk], nil
}

func (c *chain) put(pk solana.Pubkey, info *solanarpc.AccountInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accounts[pk] = info
}

func claimStatusAddr(t *testing.T, wallet solana.Pubkey) solana.Pubkey {
	t.Helper()
	d, err := protocol.NewDeriver(protocol.V1, protocol.DefaultProgramIDs())
	require.NoError(t, err)
	addr, _, err := d.ClaimStatusAddress(wallet, distributorAddr)
	require.NoError(t, err)
	return addr
}

func (c *chain) markClaimed(t *testing.T, wallet solana.Pubkey) {
	t.Helper()
	data, err := protocol.ClaimStatus{Claimant: wallet, UnlockedAmount: 1}.Encode(protocol.V1)
	require.NoError(t, err)
	c.put(claimStatusAddr(t, wallet), &solanarpc.AccountInfo{Owner: protocol.DefaultV1ProgramID, Data: data})
}

func newChain(t *testing.T) *chain {
	t.Helper()
	c := &chain{accounts: make(map[solana.Pubkey]*solanarpc.AccountInfo)}
	data, err := protocol.MerkleDistributor{
		Mint:          mintAddr,
		TokenVault:    key(0x44),
		MaxTotalClaim: 1_000_000,
		MaxNumNodes:   100,
		EndTs:         10,
	}.Encode(protocol.V1)
	require.NoError(t, err)
	c.put(distributorAddr, &solanarpc.AccountInfo{Owner: protocol.DefaultV1ProgramID, Data: data})

	mint := make([]byte, 82)
	mint[44] = 6
	mint[45] = 1
	c.put(mintAddr, &solanarpc.AccountInfo{Owner: solana.TokenProgramID, Data: mint})
	return c
}

type fakeEligibility struct {
	entries map[solana.Pubkey]*proofapi.ProofEntry
}

func (f *fakeEligibility) FetchProof(ctx context.Context, mint, wallet solana.Pubkey) (*proofapi.ProofEntry, error) {
	if mint != mintAddr {
		return nil, fmt.Errorf("unexpected mint %s", mint)
	}
	return f.entries[wallet], nil
}

// fakeSubmitter replays errs per wallet, then succeeds and records the claim.
type fakeSubmitter struct {
	t     *testing.T
	chain *chain

	mu    sync.Mutex
	errs  map[solana.Pubkey][]error
	calls map[solana.Pubkey]int
	ixs   map[solana.Pubkey][]solana.Instruction
	// landOnError records the claim even when returning an error.
	landOnError bool
}

func newFakeSubmitter(t *testing.T, c *chain) *fakeSubmitter {
	return &fakeSubmitter{
		t:     t,
		chain: c,
		errs:  make(map[solana.Pubkey][]error),
		calls: make(map[solana.Pubkey]int),
		ixs:   make(map[solana.Pubkey][]solana.Instruction),
	}
}

func (f *fakeSubmitter) SubmitAndConfirm(ctx context.Context, signer ed25519.PrivateKey, ixs []solana.Instruction) (string, error) {
	var wallet solana.Pubkey
	copy(wallet[:], signer.Public().(ed25519.PublicKey))

	f.mu.Lock()
	f.calls[wallet]++
	n := f.calls[wallet]
	f.ixs[wallet] = ixs
	var err error
	if q := f.errs[wallet]; len(q) > 0 {
		err = q[0]
		f.errs[wallet] = q[1:]
	}
	f.mu.Unlock()

	sig := fmt.Sprintf("sig-%s-%d", wallet.Base58()[:6], n)
	if err != nil && !f.landOnError {
		return sig, err
	}
	f.chain.markClaimed(f.t, wallet)
	return sig, err
}

func (f *fakeSubmitter) callCount(wallet solana.Pubkey) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[wallet]
}

func wallets(t *testing.T, n int) []keypair.Keypair {
	t.Helper()
	out := make([]keypair.Keypair, n)
	for i := range out {
		seed := make([]byte, ed25519.SeedSize)
		seed[0] = byte(i + 1)
		kp, err := keypair.FromBytes(ed25519.NewKeyFromSeed(seed))
		require.NoError(t, err)
		out[i] = kp
	}
	return out
}

func entry(amount uint64) *proofapi.ProofEntry {
	return &proofapi.ProofEntry{Distributor: distributorAddr, Amount: amount, Proof: [][32]byte{key(0x11)}}
}

type harness struct {
	chain     *chain
	elig      *fakeEligibility
	submitter *fakeSubmitter
	resolver  *distributor.Resolver
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	c := newChain(t)
	r, err := distributor.NewResolver(distributor.Config{Fetcher: c})
	require.NoError(t, err)
	return &harness{
		chain:     c,
		elig:      &fakeEligibility{entries: make(map[solana.Pubkey]*proofapi.ProofEntry)},
		submitter: newFakeSubmitter(t, c),
		resolver:  r,
	}
}

func (h *harness) orchestrator(t *testing.T, cfg Config) *Orchestrator {
	t.Helper()
	cfg.Eligibility = h.elig
	cfg.Resolver = h.resolver
	cfg.Submitter = h.submitter
	o, err := New(cfg)
	require.NoError(t, err)
	return o
}

// mixedRun claims for 20 wallets whose expected state cycles through every
// outcome, and checks each one.
func mixedRun(t *testing.T, width int) []Outcome {
	t.Helper()

	h := newHarness(t)
	ws := wallets(t, 20)
	for i, w := range ws {
		switch i % 5 {
		case 0:
			// no allocation
		case 1:
			h.elig.entries[w.Public] = entry(100)
			h.chain.markClaimed(t, w.Public)
		case 2:
			h.elig.entries[w.Public] = entry(uint64(250 + i))
		case 3:
			h.elig.entries[w.Public] = entry(300)
			h.submitter.errs[w.Public] = []error{fmt.Errorf("transaction x: %w", &protocol.ProgramError{Code: 6002, Name: "InvalidProof"})}
		case 4:
			h.elig.entries[w.Public] = entry(400)
			h.submitter.errs[w.Public] = []error{fmt.Errorf("%w: send: timeout", txsend.ErrSubmitFailed)}
		}
	}

	outs, err := h.orchestrator(t, Config{Width: width}).Run(context.Background(), mintAddr, ws)
	require.NoError(t, err)
	require.Len(t, outs, len(ws))

	for i, out := range outs {
		require.Equal(t, ws[i].Public, out.Wallet)
		switch i % 5 {
		case 0:
			require.Equal(t, StateNoDistribution, out.State)
			require.Zero(t, h.submitter.callCount(ws[i].Public))
		case 1:
			require.Equal(t, StateAlreadyClaimed, out.State)
			require.Zero(t, h.submitter.callCount(ws[i].Public))
		case 2:
			require.Equal(t, StateConfirmed, out.State)
			require.Equal(t, 1, out.Attempts)
			require.Equal(t, uint64(250+i), out.Amount)
			require.Equal(t, distributorAddr, out.Distributor)
			require.NotEmpty(t, out.Signature)
		case 3:
			require.Equal(t, StateFailed, out.State)
			require.Equal(t, 1, out.Attempts)
			var pe *protocol.ProgramError
			require.True(t, errors.As(out.Err, &pe))
			require.Equal(t, uint32(6002), pe.Code)
		case 4:
			require.Equal(t, StateConfirmed, out.State)
			require.Equal(t, 2, out.Attempts)
		}
	}
	return outs
}

func TestOrchestrator_MixedOutcomes(t *testing.T) {
	t.Parallel()

	serial := mixedRun(t, 1)
	wide := mixedRun(t, 20)

	type summary struct {
		wallet    solana.Pubkey
		state     State
		attempts  int
		amount    uint64
		signature string
		failed    bool
	}
	summarize := func(outs []Outcome) []summary {
		s := make([]summary, len(outs))
		for i, o := range outs {
			s[i] = summary{o.Wallet, o.State, o.Attempts, o.Amount, o.Signature, o.Err != nil}
		}
		return s
	}
	require.Equal(t, summarize(serial), summarize(wide))
}

// ataCreatingSubmitter creates the wallet's token account during the first
// attempt, then fails it transiently.
type ataCreatingSubmitter struct {
	*fakeSubmitter
	ata solana.Pubkey

	mu       sync.Mutex
	attempts [][]solana.Instruction
}

func (s *ataCreatingSubmitter) SubmitAndConfirm(ctx context.Context, signer ed25519.PrivateKey, ixs []solana.Instruction) (string, error) {
	s.mu.Lock()
	s.attempts = append(s.attempts, ixs)
	first := len(s.attempts) == 1
	s.mu.Unlock()
	if first {
		s.chain.put(s.ata, &solanarpc.AccountInfo{Owner: solana.TokenProgramID, Data: make([]byte, 165)})
		return "sig-first", fmt.Errorf("%w: blockhash expired", txsend.ErrSubmitFailed)
	}
	return s.fakeSubmitter.SubmitAndConfirm(ctx, signer, ixs)
}

func TestOrchestrator_RebuildsInstructionsPerAttempt(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ws := wallets(t, 1)
	h.elig.entries[ws[0].Public] = entry(42)
	ata, _, err := solana.FindAssociatedTokenAddress(ws[0].Public, mintAddr)
	require.NoError(t, err)

	sub := &ataCreatingSubmitter{fakeSubmitter: h.submitter, ata: ata}
	o, err := New(Config{Eligibility: h.elig, Resolver: h.resolver, Submitter: sub})
	require.NoError(t, err)

	outs, err := o.Run(context.Background(), mintAddr, ws)
	require.NoError(t, err)
	require.Equal(t, StateConfirmed, outs[0].State)
	require.Equal(t, 2, outs[0].Attempts)

	hasCreate := func(ixs []solana.Instruction) bool {
		for _, ix := range ixs {
			if ix.ProgramID == solana.AssociatedTokenProgramID {
				return true
			}
		}
		return false
	}
	require.Len(t, sub.attempts, 2)
	require.True(t, hasCreate(sub.attempts[0]))
	require.False(t, hasCreate(sub.attempts[1]))
}

func TestOrchestrator_RetriesTransientFailures(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ws := wallets(t, 1)
	h.elig.entries[ws[0].Public] = entry(42)
	h.submitter.errs[ws[0].Public] = []error{
		fmt.Errorf("%w: send: timeout", txsend.ErrSubmitFailed),
		fmt.Errorf("%w: not confirmed", txsend.ErrSubmitFailed),
	}

	outs, err := h.orchestrator(t, Config{}).Run(context.Background(), mintAddr, ws)
	require.NoError(t, err)
	require.Equal(t, StateConfirmed, outs[0].State)
	require.Equal(t, 3, outs[0].Attempts)
	require.Equal(t, 3, h.submitter.callCount(ws[0].Public))
}

func TestOrchestrator_MaxAttempts(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ws := wallets(t, 1)
	h.elig.entries[ws[0].Public] = entry(42)
	fail := fmt.Errorf("%w: send", txsend.ErrSubmitFailed)
	h.submitter.errs[ws[0].Public] = []error{fail, fail, fail, fail}

	outs, err := h.orchestrator(t, Config{Retry: RetryPolicy{MaxAttempts: 2}}).Run(context.Background(), mintAddr, ws)
	require.NoError(t, err)
	require.Equal(t, StateFailed, outs[0].State)
	require.ErrorIs(t, outs[0].Err, ErrRetriesExhausted)
	require.Equal(t, 2, outs[0].Attempts)
}

func TestOrchestrator_LandedDespiteError(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ws := wallets(t, 1)
	h.elig.entries[ws[0].Public] = entry(42)
	h.submitter.errs[ws[0].Public] = []error{fmt.Errorf("%w: not confirmed", txsend.ErrSubmitFailed)}
	h.submitter.landOnError = true

	outs, err := h.orchestrator(t, Config{}).Run(context.Background(), mintAddr, ws)
	require.NoError(t, err)
	require.Equal(t, StateConfirmed, outs[0].State)
	require.Equal(t, 1, outs[0].Attempts)
	require.Equal(t, 1, h.submitter.callCount(ws[0].Public))
}

func TestOrchestrator_BackoffUsesClock(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ws := wallets(t, 1)
	h.elig.entries[ws[0].Public] = entry(42)
	h.submitter.errs[ws[0].Public] = []error{fmt.Errorf("%w: send", txsend.ErrSubmitFailed)}

	clock := clockwork.NewFakeClock()
	o := h.orchestrator(t, Config{Clock: clock, Retry: RetryPolicy{Backoff: time.Second}})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan []Outcome, 1)
	go func() {
		outs, _ := o.Run(ctx, mintAddr, ws)
		done <- outs
	}()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	require.Equal(t, 1, h.submitter.callCount(ws[0].Public))
	clock.Advance(time.Second)

	outs := <-done
	require.Equal(t, StateConfirmed, outs[0].State)
	require.Equal(t, 2, outs[0].Attempts)
}

func TestOrchestrator_Cancelled(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ws := wallets(t, 3)
	for _, w := range ws {
		h.elig.entries[w.Public] = entry(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outs, err := h.orchestrator(t, Config{}).Run(ctx, mintAddr, ws)
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, outs, 3)
	for i, out := range outs {
		require.Equal(t, ws[i].Public, out.Wallet)
		require.Equal(t, StateFailed, out.State)
		require.ErrorIs(t, out.Err, context.Canceled)
		require.Zero(t, h.submitter.callCount(ws[i].Public))
	}
}

type fixedFee uint64

func (f fixedFee) ComputeUnitPrice(ctx context.Context, accounts []solana.Pubkey) (uint64, error) {
	return uint64(f), nil
}

func TestOrchestrator_FeeEstimator(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ws := wallets(t, 1)
	h.elig.entries[ws[0].Public] = entry(42)

	o := h.orchestrator(t, Config{FeeEstimator: fixedFee(5000)})
	outs, err := o.Run(context.Background(), mintAddr, ws)
	require.NoError(t, err)
	require.Equal(t, StateConfirmed, outs[0].State)

	h.submitter.mu.Lock()
	ixs := h.submitter.ixs[ws[0].Public]
	h.submitter.mu.Unlock()
	require.Equal(t, solana.ComputeBudgetSetComputeUnitPrice(5000), ixs[1])
	require.Equal(t, protocol.DefaultV1ProgramID, ixs[len(ixs)-1].ProgramID)
}

func TestRetryPolicy_Delay(t *testing.T) {
	t.Parallel()

	require.Zero(t, RetryPolicy{}.delay(3))

	p := RetryPolicy{Backoff: 100 * time.Millisecond, MaxBackoff: time.Second}
	for n, want := range map[int]time.Duration{
		0:  0,
		1:  100 * time.Millisecond,
		2:  200 * time.Millisecond,
		4:  800 * time.Millisecond,
		5:  time.Second,
		50: time.Second,
	} {
		require.Equal(t, want, p.delay(n), "n=%d", n)
	}
}

func TestFormatAmount(t *testing.T) {
	t.Parallel()

	require.Equal(t, "1.500000", FormatAmount(1_500_000, 6))
	require.Equal(t, "0.000042", FormatAmount(42, 6))
	require.Equal(t, "42", FormatAmount(42, 0))
	require.Equal(t, "42", FormatAmount(42, -1))
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	var cfg Config
	require.Error(t, cfg.Validate())

	h := newHarness(t)
	cfg = Config{Eligibility: h.elig, Resolver: h.resolver, Submitter: h.submitter}
	require.NoError(t, cfg.Validate())
	require.Equal(t, DefaultWidth, cfg.Width)
	require.Zero(t, cfg.Retry.MaxAttempts)

	cfg.Retry.MaxAttempts = -1
	require.Error(t, cfg.Validate())
}
