package keypair

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Generate writes a fresh keypair in Solana CLI format. Existing files are
// only replaced when force is set.
func Generate(path string, force bool) (Keypair, error) {
	path = filepath.Clean(path)
	if path == "." || path == "" {
		return Keypair{}, errors.New("keypair path required")
	}
	if !force {
		if _, err := os.Stat(path); err == nil {
			return Keypair{}, fmt.Errorf("keypair already exists: %s", path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return Keypair{}, err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Keypair{}, err
	}

	_, sk, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Keypair{}, err
	}
	kp, err := FromBytes(sk)
	if err != nil {
		return Keypair{}, err
	}

	ints := make([]int, 0, len(sk))
	for _, b := range sk {
		ints = append(ints, int(b))
	}
	raw, err := json.Marshal(ints)
	if err != nil {
		return Keypair{}, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-keypair-*.json")
	if err != nil {
		return Keypair{}, err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return Keypair{}, err
	}
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return Keypair{}, err
	}
	if err := tmp.Close(); err != nil {
		return Keypair{}, err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return Keypair{}, err
	}
	return kp, nil
}
