package main

import (
	"fmt"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/Abdullah1738/merkle-airdrop/offchain/deployments"
	"github.com/Abdullah1738/merkle-airdrop/offchain/solana"
	"github.com/Abdullah1738/merkle-airdrop/offchain/solanarpc"
	"github.com/Abdullah1738/merkle-airdrop/protocol"
)

// clusterFlags are shared by every command that talks to the chain.
type clusterFlags struct {
	deploymentsPath string
	deployment      string
	rpcURL          string
	commitment      string
	v1ProgramID     string
	v2ProgramID     string
	verbose         bool
}

func (c *clusterFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.deploymentsPath, "deployments", "", "Deployments registry JSON (optional)")
	fs.StringVar(&c.deployment, "deployment", "", "Deployment name in the registry")
	fs.StringVar(&c.rpcURL, "rpc-url", "", "Solana RPC URL (or set SOLANA_RPC_URL / HELIUS_RPC_URL / HELIUS_API_KEY)")
	fs.StringVar(&c.commitment, "commitment", solanarpc.DefaultCommitment, "Commitment for reads and confirmation")
	fs.StringVar(&c.v1ProgramID, "v1-program-id", "", "Override the V1 distributor program id")
	fs.StringVar(&c.v2ProgramID, "v2-program-id", "", "Override the V2 distributor program id")
	fs.BoolVar(&c.verbose, "verbose", false, "Enable verbose (debug) logging")
}

// settings is the resolved view of flags, registry and environment.
type settings struct {
	rpc        *solanarpc.Client
	proofURL   string
	broadcast  []string
	programIDs protocol.ProgramIDs
}

func (c *clusterFlags) resolve() (settings, error) {
	var dep deployments.Deployment
	if c.deploymentsPath != "" || c.deployment != "" {
		reg, err := deployments.Load(c.deploymentsPath)
		if err != nil {
			return settings{}, fmt.Errorf("load deployments: %w", err)
		}
		if dep, err = reg.FindByName(c.deployment); err != nil {
			return settings{}, err
		}
	}

	ids, err := dep.ProgramIDs()
	if err != nil {
		return settings{}, err
	}
	if ids.V1, err = overridePubkey(ids.V1, c.v1ProgramID, "--v1-program-id"); err != nil {
		return settings{}, err
	}
	if ids.V2, err = overridePubkey(ids.V2, c.v2ProgramID, "--v2-program-id"); err != nil {
		return settings{}, err
	}
	if err := ids.Validate(); err != nil {
		return settings{}, err
	}

	rpcURL := firstNonEmpty(c.rpcURL, dep.RPCURL)
	var rpc *solanarpc.Client
	if rpcURL != "" {
		rpc = solanarpc.New(rpcURL, nil)
	} else if rpc, err = solanarpc.ClientFromEnv(); err != nil {
		return settings{}, err
	}

	return settings{
		rpc:        rpc.WithCommitment(c.commitment),
		proofURL:   dep.ProofURL,
		broadcast:  dep.BroadcastURLs,
		programIDs: ids,
	}, nil
}

func overridePubkey(cur solana.Pubkey, flagValue, name string) (solana.Pubkey, error) {
	if strings.TrimSpace(flagValue) == "" {
		return cur, nil
	}
	pk, err := solana.ParsePubkey(flagValue)
	if err != nil {
		return solana.Pubkey{}, fmt.Errorf("parse %s: %w", name, err)
	}
	return pk, nil
}

func parsePubkeyFlag(value, name string) (solana.Pubkey, error) {
	if strings.TrimSpace(value) == "" {
		return solana.Pubkey{}, fmt.Errorf("%s is required", name)
	}
	pk, err := solana.ParsePubkey(value)
	if err != nil {
		return solana.Pubkey{}, fmt.Errorf("parse %s: %w", name, err)
	}
	return pk, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
