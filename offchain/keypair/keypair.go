package keypair

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mr-tron/base58"

	"github.com/Abdullah1738/merkle-airdrop/offchain/solana"
)

var ErrInvalidKeypairFile = errors.New("invalid keypair file")

type Keypair struct {
	Public  solana.Pubkey
	Private ed25519.PrivateKey
}

func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ""
	}
	return filepath.Join(home, ".config", "solana", "id.json")
}

// FromBytes builds a keypair from a 64-byte secret (seed || public key).
func FromBytes(secret []byte) (Keypair, error) {
	if len(secret) != ed25519.PrivateKeySize {
		return Keypair{}, ErrInvalidKeypairFile
	}
	// Re-derive from the seed; a mismatched trailing public key means the
	// secret was corrupted.
	priv := ed25519.NewKeyFromSeed(secret[:ed25519.SeedSize])
	pk := priv.Public().(ed25519.PublicKey)
	if !bytes.Equal(pk, secret[ed25519.SeedSize:]) {
		return Keypair{}, fmt.Errorf("%w: public key does not match seed", ErrInvalidKeypairFile)
	}
	var kp Keypair
	copy(kp.Public[:], pk)
	kp.Private = priv
	return kp, nil
}

// Parse accepts the Solana CLI JSON byte array or a base58 encoded secret.
func Parse(raw []byte) (Keypair, error) {
	s := strings.TrimSpace(string(raw))
	if strings.HasPrefix(s, "[") {
		var ints []int
		if err := json.Unmarshal([]byte(s), &ints); err != nil {
			return Keypair{}, ErrInvalidKeypairFile
		}
		if len(ints) != ed25519.PrivateKeySize {
			return Keypair{}, ErrInvalidKeypairFile
		}
		key := make([]byte, ed25519.PrivateKeySize)
		for i, v := range ints {
			if v < 0 || v > 255 {
				return Keypair{}, ErrInvalidKeypairFile
			}
			key[i] = byte(v)
		}
		return FromBytes(key)
	}

	key, err := base58.Decode(s)
	if err != nil {
		return Keypair{}, ErrInvalidKeypairFile
	}
	return FromBytes(key)
}

func Load(path string) (Keypair, error) {
	if path == "" {
		return Keypair{}, fmt.Errorf("keypair path required")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Keypair{}, err
	}
	kp, err := Parse(raw)
	if err != nil {
		return Keypair{}, fmt.Errorf("%s: %w", path, err)
	}
	return kp, nil
}

// LoadAll loads every path; directories contribute their *.json files in
// name order. Duplicate wallets are dropped.
func LoadAll(paths []string) ([]Keypair, error) {
	var files []string
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		st, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !st.IsDir() {
			files = append(files, p)
			continue
		}
		matches, err := filepath.Glob(filepath.Join(p, "*.json"))
		if err != nil {
			return nil, err
		}
		sort.Strings(matches)
		files = append(files, matches...)
	}

	seen := make(map[solana.Pubkey]struct{}, len(files))
	out := make([]Keypair, 0, len(files))
	for _, f := range files {
		kp, err := Load(f)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[kp.Public]; dup {
			continue
		}
		seen[kp.Public] = struct{}{}
		out = append(out, kp)
	}
	return out, nil
}
