package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/Abdullah1738/merkle-airdrop/internal/logger"
	"github.com/Abdullah1738/merkle-airdrop/internal/metrics"
	"github.com/Abdullah1738/merkle-airdrop/offchain/claim"
	"github.com/Abdullah1738/merkle-airdrop/offchain/distributor"
	"github.com/Abdullah1738/merkle-airdrop/offchain/helius"
	"github.com/Abdullah1738/merkle-airdrop/offchain/keypair"
	"github.com/Abdullah1738/merkle-airdrop/offchain/proofapi"
	"github.com/Abdullah1738/merkle-airdrop/offchain/solana"
	"github.com/Abdullah1738/merkle-airdrop/offchain/solanafees"
	"github.com/Abdullah1738/merkle-airdrop/offchain/solanarpc"
	"github.com/Abdullah1738/merkle-airdrop/offchain/txsend"
)

func cmdClaim(ctx context.Context, argv []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("claim", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		cluster          clusterFlags
		mintStr          string
		keypairPaths     []string
		proofURL         string
		proofRPS         float64
		broadcastURLs    []string
		width            int
		maxAttempts      int
		backoff          time.Duration
		maxBackoff       time.Duration
		attemptTimeout   time.Duration
		confirmTimeout   time.Duration
		computeUnitLimit uint32
		computeUnitPrice uint64
		priorityLevel    string
		maxPriorityFee   uint64
		skipPreflight    bool
		metricsAddr      string
	)
	cluster.register(fs)
	fs.StringVar(&mintStr, "mint", "", "Airdropped token mint (required)")
	fs.StringArrayVar(&keypairPaths, "keypair", nil, "Keypair file or directory of *.json keypairs (repeatable)")
	fs.StringVar(&proofURL, "proof-url", "", "Proof service base URL (or set JUP_PROOF_URL)")
	fs.Float64Var(&proofRPS, "proof-rps", 10, "Proof service requests per second (0 = unlimited)")
	fs.StringArrayVar(&broadcastURLs, "broadcast-url", nil, "Extra RPC endpoint that receives every transaction (repeatable)")
	fs.IntVar(&width, "width", claim.DefaultWidth, "Wallets claimed concurrently")
	fs.IntVar(&maxAttempts, "max-attempts", 0, "Submit attempts per wallet (0 = until confirmed)")
	fs.DurationVar(&backoff, "backoff", 0, "Initial wait between attempts, doubled each retry")
	fs.DurationVar(&maxBackoff, "max-backoff", 30*time.Second, "Upper bound for --backoff")
	fs.DurationVar(&attemptTimeout, "attempt-timeout", 0, "Deadline for one submit and confirm attempt (0 = none)")
	fs.DurationVar(&confirmTimeout, "confirm-timeout", txsend.DefaultConfirmTimeout, "How long to poll for confirmation")
	fs.Uint32Var(&computeUnitLimit, "compute-unit-limit", distributor.DefaultComputeUnitLimit, "Compute unit limit")
	fs.Uint64Var(&computeUnitPrice, "compute-unit-price", distributor.DefaultComputeUnitPrice, "Compute unit price in micro-lamports")
	fs.StringVar(&priorityLevel, "priority-fee", "", "Estimate the compute unit price with Helius at this level (Min|Low|Medium|High|VeryHigh)")
	fs.Uint64Var(&maxPriorityFee, "max-priority-fee", 1_000_000, "Cap for the estimated compute unit price")
	fs.BoolVar(&skipPreflight, "skip-preflight", false, "Skip transaction simulation")
	fs.StringVar(&metricsAddr, "metrics-addr", "", "Serve prometheus metrics on this address while claiming")
	if err := fs.Parse(argv); err != nil {
		return err
	}
	if len(fs.Args()) != 0 {
		return fmt.Errorf("unexpected args: %v", fs.Args())
	}

	mint, err := parsePubkeyFlag(mintStr, "--mint")
	if err != nil {
		return err
	}
	if width <= 0 {
		width = claim.DefaultWidth
	}
	if len(keypairPaths) == 0 {
		if p := keypair.DefaultPath(); p != "" {
			keypairPaths = []string{p}
		}
	}
	wallets, err := keypair.LoadAll(keypairPaths)
	if err != nil {
		return err
	}
	if len(wallets) == 0 {
		return fmt.Errorf("no keypairs loaded")
	}

	st, err := cluster.resolve()
	if err != nil {
		return err
	}
	log := logger.New(cluster.verbose)

	if metricsAddr != "" {
		metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
		listener, err := net.Listen("tcp", metricsAddr)
		if err != nil {
			return fmt.Errorf("metrics listener: %w", err)
		}
		defer listener.Close()
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			log.Info("prometheus metrics server listening", "address", listener.Addr().String())
			if err := http.Serve(listener, mux); err != nil && ctx.Err() == nil {
				log.Debug("metrics server stopped", "error", err)
			}
		}()
	}

	var broadcast []txsend.RPC
	for _, u := range append(st.broadcast, broadcastURLs...) {
		broadcast = append(broadcast, solanarpc.New(u, nil))
	}
	sender, err := txsend.New(txsend.Config{
		Logger:         log,
		RPC:            st.rpc,
		Broadcast:      broadcast,
		Commitment:     cluster.commitment,
		ConfirmTimeout: confirmTimeout,
		SkipPreflight:  skipPreflight,
	})
	if err != nil {
		return err
	}
	resolver, err := distributor.NewResolver(distributor.Config{
		Logger:     log,
		Fetcher:    st.rpc,
		ProgramIDs: st.programIDs,
	})
	if err != nil {
		return err
	}

	proofs := proofapi.New(firstNonEmpty(proofURL, st.proofURL, proofapi.ClientFromEnv().BaseURL()), nil, proofapi.WithRateLimit(proofRPS, width))

	cfg := claim.Config{
		Logger: log,
		Width:  width,
		Retry: claim.RetryPolicy{
			MaxAttempts: maxAttempts,
			Backoff:     backoff,
			MaxBackoff:  maxBackoff,
		},
		AttemptTimeout: attemptTimeout,
		Instructions: distributor.ClaimInstructionOptions{
			ComputeUnitLimit: computeUnitLimit,
			ComputeUnitPrice: computeUnitPrice,
		},
		Eligibility: proofs,
		Resolver:    resolver,
		Submitter:   sender,
	}
	if priorityLevel != "" {
		hc, err := helius.ClientFromEnv()
		if err != nil {
			return fmt.Errorf("--priority-fee: %w", err)
		}
		cfg.FeeEstimator = heliusFees{
			client: hc,
			level:  helius.PriorityLevel(priorityLevel),
			max:    maxPriorityFee,
		}
	}

	orch, err := claim.New(cfg)
	if err != nil {
		return err
	}

	price := computeUnitPrice
	if cfg.FeeEstimator != nil {
		price = maxPriorityFee
	}
	est, err := solanafees.Estimate(computeUnitLimit, price, 1, solanafees.TokenAccountRentLamports)
	if err != nil {
		return fmt.Errorf("estimate fees: %w", err)
	}
	log.Info("claim: worst case cost per wallet", "estimate", est.String())
	warnUnderfunded(ctx, log, st.rpc, wallets, est.TotalLamports, width)

	outcomes, runErr := orch.Run(ctx, mint, wallets)
	printOutcomes(stdout, outcomes)
	if runErr != nil {
		return runErr
	}
	for _, out := range outcomes {
		if out.State == claim.StateFailed {
			return errClaimsFailed
		}
	}
	return nil
}

type heliusFees struct {
	client *helius.Client
	level  helius.PriorityLevel
	max    uint64
}

func (h heliusFees) ComputeUnitPrice(ctx context.Context, accounts []solana.Pubkey) (uint64, error) {
	return h.client.ComputeUnitPrice(ctx, accounts, h.level, h.max)
}

// warnUnderfunded logs wallets whose balance cannot cover need. Balance
// lookups are best effort.
func warnUnderfunded(ctx context.Context, log *slog.Logger, rpc *solanarpc.Client, wallets []keypair.Keypair, need uint64, width int) {
	var g errgroup.Group
	g.SetLimit(width)
	for _, kp := range wallets {
		g.Go(func() error {
			bal, err := rpc.BalanceLamports(ctx, kp.Public)
			if err != nil {
				log.Debug("claim: balance lookup failed", "wallet", kp.Public, "error", err)
				return nil
			}
			if bal < need {
				log.Warn("claim: wallet may not cover fees", "wallet", kp.Public, "balance_lamports", bal, "need_lamports", need)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func printOutcomes(w io.Writer, outcomes []claim.Outcome) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "WALLET\tSTATE\tAMOUNT\tATTEMPTS\tSIGNATURE\tERROR")
	for _, out := range outcomes {
		errStr := ""
		if out.Err != nil {
			errStr = strings.ReplaceAll(out.Err.Error(), "\t", " ")
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\n", out.Wallet, out.State, out.Amount, out.Attempts, out.Signature, errStr)
	}
	_ = tw.Flush()
}
