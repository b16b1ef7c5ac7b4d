package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Abdullah1738/merkle-airdrop/offchain/solana"
	"github.com/Abdullah1738/merkle-airdrop/protocol"
)

func key(b byte) solana.Pubkey {
	var pk solana.Pubkey
	for i := range pk {
		pk[i] = b
	}
	return pk
}

// newAccountServer answers getAccountInfo and getMultipleAccounts from
// accounts; unknown keys are absent.
func newAccountServer(t *testing.T, owner solana.Pubkey, accounts map[string][]byte) *httptest.Server {
	t.Helper()
	account := func(addr string) any {
		data, ok := accounts[addr]
		if !ok {
			return nil
		}
		return map[string]any{
			"owner":    owner.Base58(),
			"lamports": 1,
			"data":     []string{base64.StdEncoding.EncodeToString(data), "base64"},
		}
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Params) == 0 {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		var value any
		switch req.Method {
		case "getAccountInfo":
			var addr string
			_ = json.Unmarshal(req.Params[0], &addr)
			value = account(addr)
		case "getMultipleAccounts":
			var addrs []string
			_ = json.Unmarshal(req.Params[0], &addrs)
			values := make([]any, len(addrs))
			for i, a := range addrs {
				values[i] = account(a)
			}
			value = values
		default:
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      "1",
			"result":  map[string]any{"context": map[string]any{"slot": 1}, "value": value},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRun_UsageAndUnknown(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), nil, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "jup-claim claim --mint") {
		t.Fatalf("usage missing claim line: %q", out.String())
	}
	if err := run(context.Background(), []string{"bogus"}, &out); err == nil {
		t.Fatalf("expected error for unknown command")
	}
}

func TestCmdError(t *testing.T) {
	for _, arg := range []string{"6013", "0x177d"} {
		var out bytes.Buffer
		if err := run(context.Background(), []string{"error", arg}, &out); err != nil {
			t.Fatalf("error %s: %v", arg, err)
		}
		if got, want := strings.TrimSpace(out.String()), "6013: ClaimExpired: Claim window expired"; got != want {
			t.Fatalf("error %s: got %q, want %q", arg, got, want)
		}
	}
	if err := cmdError([]string{"5999"}, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected error for unknown code")
	}
	if err := cmdError([]string{"6000", "6001"}, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected error for two codes")
	}
}

func TestCmdError_ListsAll(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), []string{"error"}, &out); err != nil {
		t.Fatalf("error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 21 {
		t.Fatalf("lines=%d, want 21", len(lines))
	}
	if !strings.HasPrefix(lines[0], "6000: ") || !strings.HasPrefix(lines[20], "6020: CannotCloseClaimStatus") {
		t.Fatalf("unexpected listing: first=%q last=%q", lines[0], lines[20])
	}
}

func TestCmdPDA(t *testing.T) {
	wallet, dist := key(0x77), key(0xd1)
	var out bytes.Buffer
	err := run(context.Background(), []string{
		"pda", "claim-status",
		"--version", "v2",
		"--wallet", wallet.Base58(),
		"--distributor", dist.Base58(),
	}, &out)
	if err != nil {
		t.Fatalf("pda: %v", err)
	}

	d, err := protocol.NewDeriver(protocol.V2, protocol.DefaultProgramIDs())
	if err != nil {
		t.Fatalf("NewDeriver: %v", err)
	}
	want, bump, err := d.ClaimStatusAddress(wallet, dist)
	if err != nil {
		t.Fatalf("ClaimStatusAddress: %v", err)
	}
	fields := strings.Fields(out.String())
	if len(fields) != 2 || fields[0] != want.Base58() {
		t.Fatalf("got %q, want %s %d", out.String(), want, bump)
	}

	if err := cmdPDA([]string{"distributor", "--version", "v1"}, &out); err == nil {
		t.Fatalf("expected error without --mint")
	}
	if err := cmdPDA([]string{"nonsense"}, &out); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

func TestCmdDistributorAndClaimStatus(t *testing.T) {
	dist := key(0xd1)
	wallet := key(0x77)
	state := protocol.MerkleDistributor{
		Bump:          253,
		Version:       3,
		Mint:          key(0x33),
		TokenVault:    key(0x44),
		MaxTotalClaim: 1000,
		MaxNumNodes:   10,
		StartTs:       5,
		EndTs:         50,
	}
	data, err := state.Encode(protocol.V1)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	srv := newAccountServer(t, protocol.DefaultV1ProgramID, map[string][]byte{dist.Base58(): data})

	var out bytes.Buffer
	if err := run(context.Background(), []string{"distributor", "--rpc-url", srv.URL, "--address", dist.Base58()}, &out); err != nil {
		t.Fatalf("distributor: %v", err)
	}
	var view distributorView
	if err := json.Unmarshal(out.Bytes(), &view); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if view.Version != "v1" || view.AirdropVersion != 3 || view.Mint != key(0x33) || view.MaxTotalClaim != 1000 {
		t.Fatalf("unexpected view: %+v", view)
	}
	if view.Invariant != "" {
		t.Fatalf("unexpected invariant violation: %s", view.Invariant)
	}

	out.Reset()
	err = run(context.Background(), []string{
		"claim-status", "--rpc-url", srv.URL,
		"--distributor", dist.Base58(),
		"--wallet", wallet.Base58(),
	}, &out)
	if err != nil {
		t.Fatalf("claim-status: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "null" {
		t.Fatalf("claim-status=%q, want null", got)
	}
}

func TestCmdClaimStatus_ManyWallets(t *testing.T) {
	dist := key(0xd1)
	claimed, unclaimed := key(0x77), key(0x78)
	data, err := protocol.MerkleDistributor{Mint: key(0x33), TokenVault: key(0x44), EndTs: 1}.Encode(protocol.V1)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	d, err := protocol.NewDeriver(protocol.V1, protocol.DefaultProgramIDs())
	if err != nil {
		t.Fatalf("NewDeriver: %v", err)
	}
	csAddr, _, err := d.ClaimStatusAddress(claimed, dist)
	if err != nil {
		t.Fatalf("ClaimStatusAddress: %v", err)
	}
	csData, err := protocol.ClaimStatus{Claimant: claimed, UnlockedAmount: 42}.Encode(protocol.V1)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	srv := newAccountServer(t, protocol.DefaultV1ProgramID, map[string][]byte{
		dist.Base58():   data,
		csAddr.Base58(): csData,
	})

	var out bytes.Buffer
	err = run(context.Background(), []string{
		"claim-status", "--rpc-url", srv.URL,
		"--distributor", dist.Base58(),
		"--wallet", claimed.Base58(),
		"--wallet", unclaimed.Base58(),
	}, &out)
	if err != nil {
		t.Fatalf("claim-status: %v", err)
	}
	var rows []walletClaimStatus
	if err := json.Unmarshal(out.Bytes(), &rows); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows=%d, want 2", len(rows))
	}
	if !rows[0].Claimed || rows[0].Status == nil || rows[0].Status.UnlockedAmount != 42 || rows[0].Status.Address != csAddr {
		t.Fatalf("claimed row=%+v", rows[0])
	}
	if rows[1].Wallet != unclaimed || rows[1].Claimed || rows[1].Status != nil {
		t.Fatalf("unclaimed row=%+v", rows[1])
	}
}

func TestCmdInstruction(t *testing.T) {
	ix, err := protocol.NewClaim(protocol.DefaultV1ProgramID, protocol.NewClaimArgs{
		AmountUnlocked: 500,
		Proof:          [][32]byte{{0xab}},
	}, protocol.NewClaimAccounts{Claimant: key(0x77)})
	if err != nil {
		t.Fatalf("NewClaim: %v", err)
	}

	var out bytes.Buffer
	if err := run(context.Background(), []string{"instruction", hex.EncodeToString(ix.Data)}, &out); err != nil {
		t.Fatalf("instruction: %v", err)
	}
	var view struct {
		Name     string            `json:"name"`
		Opcode   string            `json:"opcode"`
		Accounts []accountSlotView `json:"accounts"`
		Args     newClaimArgsView  `json:"args"`
	}
	if err := json.Unmarshal(out.Bytes(), &view); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if view.Name != "new_claim" || view.Opcode != "4eb1627bd215bb53" {
		t.Fatalf("name=%s opcode=%s", view.Name, view.Opcode)
	}
	if view.Args.AmountUnlocked != 500 || len(view.Args.Proof) != 1 || !strings.HasPrefix(view.Args.Proof[0], "ab00") {
		t.Fatalf("args=%+v", view.Args)
	}
	if len(view.Accounts) != 7 || view.Accounts[4].Name != "claimant" || !view.Accounts[4].Signer {
		t.Fatalf("accounts=%+v", view.Accounts)
	}

	// base64 input decodes the same.
	out.Reset()
	if err := run(context.Background(), []string{"instruction", base64.StdEncoding.EncodeToString(ix.Data)}, &out); err != nil {
		t.Fatalf("instruction base64: %v", err)
	}
	if !strings.Contains(out.String(), `"new_claim"`) {
		t.Fatalf("base64 output=%s", out.String())
	}

	out.Reset()
	if err := run(context.Background(), []string{"instruction", "--op", "set_admin"}, &out); err != nil {
		t.Fatalf("instruction --op: %v", err)
	}
	if !strings.Contains(out.String(), `"new_admin"`) {
		t.Fatalf("set_admin output=%s", out.String())
	}

	if err := cmdInstruction([]string{"--op", "bogus"}, &out); !errors.Is(err, protocol.ErrUnknownOperation) {
		t.Fatalf("want ErrUnknownOperation, got %v", err)
	}
	if err := cmdInstruction([]string{"0102030405060708"}, &out); !errors.Is(err, protocol.ErrInvalidOpcode) {
		t.Fatalf("want ErrInvalidOpcode, got %v", err)
	}
}
