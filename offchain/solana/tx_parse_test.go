package solana

import (
	"crypto/ed25519"
	"errors"
	"testing"
)

type parsedIx struct {
	programID Pubkey
	accounts  []Pubkey
	data      []byte
}

type parsedTx struct {
	signatures int
	numSigners uint8
	blockhash  [32]byte
	ixs        []parsedIx
}

var errTruncated = errors.New("truncated tx")

// txReader walks a serialized legacy transaction.
type txReader struct {
	b   []byte
	off int
}

func (r *txReader) take(n int) ([]byte, error) {
	if n < 0 || r.off+n > len(r.b) {
		return nil, errTruncated
	}
	out := r.b[r.off : r.off+n]
	r.off += n
	return out, nil
}

func (r *txReader) shortVec() (int, error) {
	n, off, err := decodeShortVecLenAt(r.b, r.off)
	if err != nil {
		return 0, err
	}
	r.off = off
	return n, nil
}

func (r *txReader) vec(elem int) ([]byte, error) {
	n, err := r.shortVec()
	if err != nil {
		return nil, err
	}
	return r.take(n * elem)
}

// parseLegacyTx decodes what BuildAndSignLegacyTransaction produces.
func parseLegacyTx(tx []byte) (parsedTx, error) {
	var out parsedTx
	r := &txReader{b: tx}

	sigs, err := r.vec(64)
	if err != nil {
		return out, err
	}
	out.signatures = len(sigs) / 64
	header, err := r.take(3)
	if err != nil {
		return out, err
	}
	out.numSigners = header[0]
	rawKeys, err := r.vec(32)
	if err != nil {
		return out, err
	}
	keys := make([]Pubkey, len(rawKeys)/32)
	for i := range keys {
		copy(keys[i][:], rawKeys[i*32:])
	}
	bh, err := r.take(32)
	if err != nil {
		return out, err
	}
	copy(out.blockhash[:], bh)

	n, err := r.shortVec()
	if err != nil {
		return out, err
	}
	for i := 0; i < n; i++ {
		pid, err := r.take(1)
		if err != nil {
			return out, err
		}
		idxs, err := r.vec(1)
		if err != nil {
			return out, err
		}
		data, err := r.vec(1)
		if err != nil {
			return out, err
		}
		if int(pid[0]) >= len(keys) {
			return out, errors.New("program id index out of range")
		}
		ix := parsedIx{programID: keys[pid[0]], data: data}
		for _, idx := range idxs {
			if int(idx) >= len(keys) {
				return out, errors.New("account index out of range")
			}
			ix.accounts = append(ix.accounts, keys[idx])
		}
		out.ixs = append(out.ixs, ix)
	}
	return out, nil
}

func TestBuildAndSignLegacyTransaction_Parses(t *testing.T) {
	var blockhash [32]byte
	for i := range blockhash {
		blockhash[i] = 0x11
	}

	feeSeed := [32]byte{1, 2, 3}
	feePriv := ed25519.NewKeyFromSeed(feeSeed[:])
	var feePayer Pubkey
	copy(feePayer[:], feePriv.Public().(ed25519.PublicKey))

	var dest Pubkey
	for i := range dest {
		dest[i] = 0xCC
	}

	ix0 := ComputeBudgetSetComputeUnitLimit(100_000)
	ix1 := Instruction{
		ProgramID: SystemProgramID,
		Accounts:  []AccountMeta{{Pubkey: feePayer, IsSigner: true, IsWritable: true}, {Pubkey: dest, IsWritable: true}},
		Data:      []byte{1, 2, 3},
	}

	tx, err := BuildAndSignLegacyTransaction(blockhash, feePayer, map[Pubkey]ed25519.PrivateKey{feePayer: feePriv}, []Instruction{ix0, ix1})
	if err != nil {
		t.Fatalf("BuildAndSignLegacyTransaction: %v", err)
	}

	parsed, err := parseLegacyTx(tx)
	if err != nil {
		t.Fatalf("parseLegacyTx: %v", err)
	}
	if parsed.signatures != 1 || parsed.numSigners != 1 {
		t.Fatalf("signatures=%d signers=%d, want 1/1", parsed.signatures, parsed.numSigners)
	}
	if parsed.blockhash != blockhash {
		t.Fatalf("blockhash mismatch")
	}
	if len(parsed.ixs) != 2 {
		t.Fatalf("instructions=%d, want 2", len(parsed.ixs))
	}
	if parsed.ixs[0].programID != ComputeBudgetProgramID {
		t.Fatalf("ix0 program=%s", parsed.ixs[0].programID)
	}
	sys := parsed.ixs[1]
	if sys.programID != SystemProgramID || string(sys.data) != string([]byte{1, 2, 3}) {
		t.Fatalf("system ix=%+v", sys)
	}
	if len(sys.accounts) != 2 || sys.accounts[0] != feePayer || sys.accounts[1] != dest {
		t.Fatalf("accounts=%v", sys.accounts)
	}

	if _, err := parseLegacyTx(tx[:len(tx)-1]); err == nil {
		t.Fatalf("expected error for truncated tx")
	}
}
