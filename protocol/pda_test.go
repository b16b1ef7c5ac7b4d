package protocol

import (
	"encoding/binary"
	"testing"

	"github.com/Abdullah1738/merkle-airdrop/offchain/solana"
)

func TestDeriver_ClaimStatusAddress(t *testing.T) {
	wallet := solana.Pubkey(fill32(0x10))
	distributor := solana.Pubkey(fill32(0x20))

	ids := DefaultProgramIDs()
	addrs := map[Version]solana.Pubkey{}
	for _, v := range []Version{V1, V2} {
		d, err := NewDeriver(v, ids)
		if err != nil {
			t.Fatalf("NewDeriver(%s): %v", v, err)
		}
		if d.Version() != v {
			t.Fatalf("Version=%s, want %s", d.Version(), v)
		}
		pid, _ := ids.For(v)
		if d.ProgramID() != pid {
			t.Fatalf("ProgramID=%s, want %s", d.ProgramID(), pid)
		}

		got, bump, err := d.ClaimStatusAddress(wallet, distributor)
		if err != nil {
			t.Fatalf("ClaimStatusAddress: %v", err)
		}
		want, wantBump, err := solana.FindProgramAddress(
			[][]byte{[]byte("ClaimStatus"), wallet[:], distributor[:]},
			pid,
		)
		if err != nil {
			t.Fatalf("FindProgramAddress: %v", err)
		}
		if got != want || bump != wantBump {
			t.Fatalf("%s: got %s/%d, want %s/%d", v, got, bump, want, wantBump)
		}
		addrs[v] = got
	}
	if addrs[V1] == addrs[V2] {
		t.Fatalf("v1 and v2 derived the same claim status address")
	}
}

func TestDeriver_DistributorAddress(t *testing.T) {
	d, err := NewDeriver(V2, DefaultProgramIDs())
	if err != nil {
		t.Fatalf("NewDeriver: %v", err)
	}
	mint := solana.Pubkey(fill32(0x30))

	var v [8]byte
	binary.LittleEndian.PutUint64(v[:], 7)
	want, _, err := solana.FindProgramAddress([][]byte{[]byte("MerkleDistributor"), mint[:], v[:]}, DefaultV2ProgramID)
	if err != nil {
		t.Fatalf("FindProgramAddress: %v", err)
	}
	got, _, err := d.DistributorAddress(mint, 7)
	if err != nil {
		t.Fatalf("DistributorAddress: %v", err)
	}
	if got != want {
		t.Fatalf("got %s, want %s", got, want)
	}

	other, _, err := d.DistributorAddress(mint, 8)
	if err != nil {
		t.Fatalf("DistributorAddress: %v", err)
	}
	if other == got {
		t.Fatalf("version did not affect the address")
	}
}

func TestNewDeriver_UnknownVersion(t *testing.T) {
	if _, err := NewDeriver(VersionUnknown, DefaultProgramIDs()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestProgramIDs(t *testing.T) {
	ids := DefaultProgramIDs()
	if err := ids.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if ids.VersionOf(DefaultV1ProgramID) != V1 || ids.VersionOf(DefaultV2ProgramID) != V2 {
		t.Fatalf("VersionOf mismatch")
	}
	if ids.VersionOf(solana.TokenProgramID) != VersionUnknown {
		t.Fatalf("token program must not map to a version")
	}
	if err := (ProgramIDs{V1: DefaultV1ProgramID, V2: DefaultV1ProgramID}).Validate(); err == nil {
		t.Fatalf("expected error for identical ids")
	}
}

func TestParseVersion(t *testing.T) {
	for in, want := range map[string]Version{"v1": V1, "V2": V2, "1": V1, " 2 ": V2} {
		got, err := ParseVersion(in)
		if err != nil || got != want {
			t.Fatalf("ParseVersion(%q)=%s,%v want %s", in, got, err, want)
		}
	}
	if _, err := ParseVersion("v3"); err == nil {
		t.Fatalf("expected error")
	}
	if V1.String() != "v1" || V2.String() != "v2" {
		t.Fatalf("String mismatch")
	}
}
