package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/Abdullah1738/merkle-airdrop/internal/logger"
	"github.com/Abdullah1738/merkle-airdrop/offchain/distributor"
	"github.com/Abdullah1738/merkle-airdrop/offchain/solana"
	"github.com/Abdullah1738/merkle-airdrop/protocol"
)

type distributorView struct {
	Address            solana.Pubkey `json:"address"`
	Version            string        `json:"version"`
	ProgramID          solana.Pubkey `json:"program_id"`
	Bump               uint8         `json:"bump"`
	AirdropVersion     uint64        `json:"airdrop_version"`
	Root               string        `json:"root"`
	Mint               solana.Pubkey `json:"mint"`
	TokenVault         solana.Pubkey `json:"token_vault"`
	MaxTotalClaim      uint64        `json:"max_total_claim"`
	MaxNumNodes        uint64        `json:"max_num_nodes"`
	TotalAmountClaimed uint64        `json:"total_amount_claimed"`
	NumNodesClaimed    uint64        `json:"num_nodes_claimed"`
	StartTs            int64         `json:"start_ts"`
	EndTs              int64         `json:"end_ts"`
	ClawbackStartTs    int64         `json:"clawback_start_ts"`
	ClawbackReceiver   solana.Pubkey `json:"clawback_receiver"`
	Admin              solana.Pubkey `json:"admin"`
	ClawedBack         bool          `json:"clawed_back"`
	EnableSlot         uint64        `json:"enable_slot"`
	Closable           bool          `json:"closable"`
	Invariant          string        `json:"invariant_violation,omitempty"`
}

func newDistributorView(d *distributor.Distributor) (distributorView, error) {
	s, err := d.State()
	if err != nil {
		return distributorView{}, err
	}
	v := distributorView{
		Address:            d.Address,
		Version:            d.Version.String(),
		ProgramID:          d.ProgramID,
		Bump:               s.Bump,
		AirdropVersion:     s.Version,
		Root:               hex.EncodeToString(s.Root[:]),
		Mint:               s.Mint,
		TokenVault:         s.TokenVault,
		MaxTotalClaim:      s.MaxTotalClaim,
		MaxNumNodes:        s.MaxNumNodes,
		TotalAmountClaimed: s.TotalAmountClaimed,
		NumNodesClaimed:    s.NumNodesClaimed,
		StartTs:            s.StartTs,
		EndTs:              s.EndTs,
		ClawbackStartTs:    s.ClawbackStartTs,
		ClawbackReceiver:   s.ClawbackReceiver,
		Admin:              s.Admin,
		ClawedBack:         s.ClawedBack,
		EnableSlot:         s.EnableSlot,
		Closable:           s.Closable,
	}
	if err := s.Validate(); err != nil {
		v.Invariant = err.Error()
	}
	return v, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newResolver(st settings, verbose bool) (*distributor.Resolver, error) {
	return distributor.NewResolver(distributor.Config{
		Logger:     logger.New(verbose),
		Fetcher:    st.rpc,
		ProgramIDs: st.programIDs,
	})
}

func cmdDistributor(ctx context.Context, argv []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("distributor", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		cluster clusterFlags
		addrStr string
	)
	cluster.register(fs)
	fs.StringVar(&addrStr, "address", "", "Distributor account (required)")
	if err := fs.Parse(argv); err != nil {
		return err
	}
	if len(fs.Args()) != 0 {
		return fmt.Errorf("unexpected args: %v", fs.Args())
	}
	addr, err := parsePubkeyFlag(addrStr, "--address")
	if err != nil {
		return err
	}

	st, err := cluster.resolve()
	if err != nil {
		return err
	}
	resolver, err := newResolver(st, cluster.verbose)
	if err != nil {
		return err
	}
	d, err := resolver.Resolve(ctx, addr)
	if err != nil {
		return err
	}
	view, err := newDistributorView(d)
	if err != nil {
		return err
	}
	return writeJSON(stdout, view)
}

type claimStatusView struct {
	Address               solana.Pubkey `json:"address"`
	Claimant              solana.Pubkey `json:"claimant"`
	LockedAmount          uint64        `json:"locked_amount"`
	LockedAmountWithdrawn uint64        `json:"locked_amount_withdrawn"`
	UnlockedAmount        uint64        `json:"unlocked_amount"`
	Closable              bool          `json:"closable"`
	Admin                 solana.Pubkey `json:"admin"`
}

func newClaimStatusView(addr solana.Pubkey, cs *protocol.ClaimStatus) *claimStatusView {
	if cs == nil {
		return nil
	}
	return &claimStatusView{
		Address:               addr,
		Claimant:              cs.Claimant,
		LockedAmount:          cs.LockedAmount,
		LockedAmountWithdrawn: cs.LockedAmountWithdrawn,
		UnlockedAmount:        cs.UnlockedAmount,
		Closable:              cs.Closable,
		Admin:                 cs.Admin,
	}
}

// walletClaimStatus is one row of a multi-wallet claim-status listing.
type walletClaimStatus struct {
	Wallet  solana.Pubkey    `json:"wallet"`
	Claimed bool             `json:"claimed"`
	Status  *claimStatusView `json:"status"`
}

func cmdClaimStatus(ctx context.Context, argv []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("claim-status", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		cluster        clusterFlags
		distributorStr string
		walletStrs     []string
	)
	cluster.register(fs)
	fs.StringVar(&distributorStr, "distributor", "", "Distributor account (required)")
	fs.StringArrayVar(&walletStrs, "wallet", nil, "Claimant wallet (required, repeatable)")
	if err := fs.Parse(argv); err != nil {
		return err
	}
	if len(fs.Args()) != 0 {
		return fmt.Errorf("unexpected args: %v", fs.Args())
	}
	distAddr, err := parsePubkeyFlag(distributorStr, "--distributor")
	if err != nil {
		return err
	}
	if len(walletStrs) == 0 {
		return fmt.Errorf("--wallet is required")
	}
	wallets := make([]solana.Pubkey, 0, len(walletStrs))
	for _, w := range walletStrs {
		pk, err := parsePubkeyFlag(w, "--wallet")
		if err != nil {
			return err
		}
		wallets = append(wallets, pk)
	}

	st, err := cluster.resolve()
	if err != nil {
		return err
	}
	resolver, err := newResolver(st, cluster.verbose)
	if err != nil {
		return err
	}
	d, err := resolver.Resolve(ctx, distAddr)
	if err != nil {
		return err
	}
	statuses, err := d.FetchClaimStatuses(ctx, wallets)
	if err != nil {
		return err
	}

	rows := make([]walletClaimStatus, len(wallets))
	for i, w := range wallets {
		addr, err := d.ClaimStatusAddress(w)
		if err != nil {
			return err
		}
		rows[i] = walletClaimStatus{Wallet: w, Claimed: statuses[i] != nil, Status: newClaimStatusView(addr, statuses[i])}
	}
	if len(rows) == 1 {
		return writeJSON(stdout, rows[0].Status)
	}
	return writeJSON(stdout, rows)
}

func cmdPDA(argv []string, stdout io.Writer) error {
	if len(argv) == 0 {
		return fmt.Errorf("pda: expected claim-status or distributor")
	}
	kind := argv[0]

	fs := flag.NewFlagSet("pda "+kind, flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		versionStr     string
		programIDStr   string
		walletStr      string
		distributorStr string
		mintStr        string
		airdropVersion uint64
	)
	fs.StringVar(&versionStr, "version", "v1", "Distributor program version: v1|v2")
	fs.StringVar(&programIDStr, "program-id", "", "Override the program id for --version")
	fs.StringVar(&walletStr, "wallet", "", "Claimant wallet (claim-status)")
	fs.StringVar(&distributorStr, "distributor", "", "Distributor account (claim-status)")
	fs.StringVar(&mintStr, "mint", "", "Token mint (distributor)")
	fs.Uint64Var(&airdropVersion, "airdrop-version", 0, "Airdrop version (distributor)")
	if err := fs.Parse(argv[1:]); err != nil {
		return err
	}
	if len(fs.Args()) != 0 {
		return fmt.Errorf("unexpected args: %v", fs.Args())
	}

	v, err := protocol.ParseVersion(versionStr)
	if err != nil {
		return err
	}
	ids := protocol.DefaultProgramIDs()
	if programIDStr != "" {
		pid, err := parsePubkeyFlag(programIDStr, "--program-id")
		if err != nil {
			return err
		}
		if v == protocol.V1 {
			ids.V1 = pid
		} else {
			ids.V2 = pid
		}
	}
	deriver, err := protocol.NewDeriver(v, ids)
	if err != nil {
		return err
	}

	var (
		addr solana.Pubkey
		bump uint8
	)
	switch kind {
	case "claim-status":
		wallet, err := parsePubkeyFlag(walletStr, "--wallet")
		if err != nil {
			return err
		}
		dist, err := parsePubkeyFlag(distributorStr, "--distributor")
		if err != nil {
			return err
		}
		addr, bump, err = deriver.ClaimStatusAddress(wallet, dist)
		if err != nil {
			return err
		}
	case "distributor":
		mint, err := parsePubkeyFlag(mintStr, "--mint")
		if err != nil {
			return err
		}
		addr, bump, err = deriver.DistributorAddress(mint, airdropVersion)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("pda: unknown kind: %s", kind)
	}
	fmt.Fprintf(stdout, "%s %d\n", addr, bump)
	return nil
}

func cmdError(argv []string, stdout io.Writer) error {
	switch len(argv) {
	case 0:
		for _, pe := range protocol.ProgramErrors() {
			fmt.Fprintln(stdout, pe.Error())
		}
		return nil
	case 1:
	default:
		return fmt.Errorf("error: expected at most one error code")
	}
	s := strings.TrimSpace(argv[0])
	base := 10
	if strings.HasPrefix(s, "0x") {
		s, base = s[2:], 16
	}
	code, err := strconv.ParseUint(s, base, 32)
	if err != nil {
		return fmt.Errorf("parse error code: %w", err)
	}
	pe, ok := protocol.LookupProgramError(uint32(code))
	if !ok {
		return fmt.Errorf("unknown distributor error code %d", code)
	}
	fmt.Fprintln(stdout, pe.Error())
	return nil
}
