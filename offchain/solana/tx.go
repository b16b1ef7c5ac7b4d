package solana

import (
	"cmp"
	"crypto/ed25519"
	"errors"
	"fmt"
	"slices"

	"github.com/mr-tron/base58"
)

var (
	ErrMissingSigner  = errors.New("missing signer for required signature")
	ErrTooManyAccount = errors.New("too many accounts in message")
)

type messageHeader struct {
	NumRequiredSignatures       uint8
	NumReadonlySignedAccounts   uint8
	NumReadonlyUnsignedAccounts uint8
}

// BuildAndSignLegacyTransaction compiles instructions into a legacy message and
// signs it with every required signer. The fee payer is always account 0.
func BuildAndSignLegacyTransaction(
	recentBlockhash [32]byte,
	feePayer Pubkey,
	signers map[Pubkey]ed25519.PrivateKey,
	instructions []Instruction,
) ([]byte, error) {
	msg, accountKeys, header, err := compileLegacyMessage(recentBlockhash, feePayer, instructions)
	if err != nil {
		return nil, err
	}

	sigCount := int(header.NumRequiredSignatures)
	sigs := make([]byte, 0, sigCount*64)
	for i := 0; i < sigCount; i++ {
		pk := accountKeys[i]
		priv, ok := signers[pk]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingSigner, pk)
		}
		sigs = append(sigs, ed25519.Sign(priv, msg)...)
	}

	out := make([]byte, 0, len(msg)+1+len(sigs))
	out = append(out, encodeShortVecLen(sigCount)...)
	out = append(out, sigs...)
	out = append(out, msg...)
	return out, nil
}

// TransactionSignature returns the base58 fee payer signature, which is the
// transaction id on chain.
func TransactionSignature(tx []byte) (string, error) {
	n, off, err := decodeShortVecLenAt(tx, 0)
	if err != nil {
		return "", fmt.Errorf("decode signature count: %w", err)
	}
	if n == 0 || off+64 > len(tx) {
		return "", errors.New("transaction has no signature")
	}
	return base58.Encode(tx[off : off+64]), nil
}

type accountInfo struct {
	Pubkey     Pubkey
	IsSigner   bool
	IsWritable bool
	FirstSeen  int
}

func compileLegacyMessage(
	recentBlockhash [32]byte,
	feePayer Pubkey,
	instructions []Instruction,
) ([]byte, []Pubkey, messageHeader, error) {
	infos := make(map[Pubkey]*accountInfo, 32)
	seen := 0

	touch := func(pk Pubkey, signer, writable bool) {
		if ai, ok := infos[pk]; ok {
			ai.IsSigner = ai.IsSigner || signer
			ai.IsWritable = ai.IsWritable || writable
			return
		}
		infos[pk] = &accountInfo{
			Pubkey:     pk,
			IsSigner:   signer,
			IsWritable: writable,
			FirstSeen:  seen,
		}
		seen++
	}

	// Fee payer must be a writable signer.
	touch(feePayer, true, true)

	for _, ix := range instructions {
		for _, am := range ix.Accounts {
			touch(am.Pubkey, am.IsSigner, am.IsWritable)
		}
		touch(ix.ProgramID, false, false)
	}
	if len(infos) > 256 {
		return nil, nil, messageHeader{}, ErrTooManyAccount
	}

	ordered := make([]*accountInfo, 0, len(infos))
	for _, ai := range infos {
		ordered = append(ordered, ai)
	}
	slices.SortFunc(ordered, func(a, b *accountInfo) int {
		if c := cmp.Compare(accountClass(a), accountClass(b)); c != 0 {
			return c
		}
		return cmp.Compare(a.FirstSeen, b.FirstSeen)
	})

	var h messageHeader
	accountKeys := make([]Pubkey, 0, len(ordered))
	for _, ai := range ordered {
		accountKeys = append(accountKeys, ai.Pubkey)
		switch accountClass(ai) {
		case 0:
			h.NumRequiredSignatures++
		case 1:
			h.NumRequiredSignatures++
			h.NumReadonlySignedAccounts++
		case 3:
			h.NumReadonlyUnsignedAccounts++
		}
	}

	indexOf := make(map[Pubkey]uint8, len(accountKeys))
	for i, pk := range accountKeys {
		indexOf[pk] = uint8(i)
	}

	out := make([]byte, 0, 512)
	out = append(out, h.NumRequiredSignatures, h.NumReadonlySignedAccounts, h.NumReadonlyUnsignedAccounts)
	out = append(out, encodeShortVecLen(len(accountKeys))...)
	for _, pk := range accountKeys {
		out = append(out, pk[:]...)
	}
	out = append(out, recentBlockhash[:]...)

	out = append(out, encodeShortVecLen(len(instructions))...)
	for _, ix := range instructions {
		out = append(out, indexOf[ix.ProgramID])
		out = append(out, encodeShortVecLen(len(ix.Accounts))...)
		for _, am := range ix.Accounts {
			out = append(out, indexOf[am.Pubkey])
		}
		out = append(out, encodeShortVecLen(len(ix.Data))...)
		out = append(out, ix.Data...)
	}

	return out, accountKeys, h, nil
}

// accountClass orders keys as writable signers, readonly signers, writable
// non-signers, readonly non-signers.
func accountClass(ai *accountInfo) int {
	switch {
	case ai.IsSigner && ai.IsWritable:
		return 0
	case ai.IsSigner:
		return 1
	case ai.IsWritable:
		return 2
	default:
		return 3
	}
}
