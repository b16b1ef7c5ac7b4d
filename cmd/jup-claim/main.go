package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var errClaimsFailed = errors.New("some claims failed")

func main() {
	// .env is optional; the process environment always wins.
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, argv []string, stdout io.Writer) error {
	if len(argv) == 0 || argv[0] == "-h" || argv[0] == "--help" || argv[0] == "help" {
		printUsage(stdout)
		return nil
	}

	switch argv[0] {
	case "claim":
		return cmdClaim(ctx, argv[1:], stdout)
	case "distributor":
		return cmdDistributor(ctx, argv[1:], stdout)
	case "claim-status":
		return cmdClaimStatus(ctx, argv[1:], stdout)
	case "pda":
		return cmdPDA(argv[1:], stdout)
	case "error":
		return cmdError(argv[1:], stdout)
	case "instruction":
		return cmdInstruction(argv[1:], stdout)
	case "version":
		fmt.Fprintf(stdout, "jup-claim %s (%s, %s)\n", version, commit, date)
		return nil
	default:
		return fmt.Errorf("unknown command: %s", argv[0])
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "jup-claim: merkle distributor claim tooling")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  jup-claim claim --mint <pubkey> --keypair <file|dir> [--keypair ...] [flags]")
	fmt.Fprintln(w, "  jup-claim distributor --address <pubkey>")
	fmt.Fprintln(w, "  jup-claim claim-status --distributor <pubkey> --wallet <pubkey>")
	fmt.Fprintln(w, "  jup-claim pda claim-status --version v1|v2 --wallet <pubkey> --distributor <pubkey>")
	fmt.Fprintln(w, "  jup-claim pda distributor --version v1|v2 --mint <pubkey> --airdrop-version <n>")
	fmt.Fprintln(w, "  jup-claim error [code]")
	fmt.Fprintln(w, "  jup-claim instruction <hex|base64 data> | --op <name>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  claim         Claim the airdrop for every wallet, retrying until confirmed.")
	fmt.Fprintln(w, "  distributor   Print a distributor account as JSON.")
	fmt.Fprintln(w, "  claim-status  Print a wallet's claim status as JSON (null when unclaimed).")
	fmt.Fprintln(w, "  pda           Derive claim status or distributor addresses.")
	fmt.Fprintln(w, "  error         Describe a distributor program error code, or list them all.")
	fmt.Fprintln(w, "  instruction   Decode distributor instruction data or describe an operation.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Environment:")
	fmt.Fprintln(w, "  SOLANA_RPC_URL, HELIUS_RPC_URL, HELIUS_API_KEY, JUP_PROOF_URL (a .env file is read if present)")
}
