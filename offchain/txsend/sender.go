package txsend

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Abdullah1738/merkle-airdrop/offchain/solana"
	"github.com/Abdullah1738/merkle-airdrop/offchain/solanarpc"
	"github.com/Abdullah1738/merkle-airdrop/protocol"
)

// ErrSubmitFailed marks transient submission or confirmation failures. The
// caller may rebuild and resend.
var ErrSubmitFailed = errors.New("transaction submit failed")

const (
	DefaultPollInterval   = 2 * time.Second
	DefaultConfirmTimeout = 90 * time.Second
)

// RPC is the subset of solanarpc.Client the sender uses.
type RPC interface {
	LatestBlockhash(ctx context.Context) ([32]byte, error)
	SendTransaction(ctx context.Context, tx []byte, skipPreflight bool) (string, error)
	SignatureStatuses(ctx context.Context, signatures []string) ([]*solanarpc.SignatureStatus, error)
}

type Config struct {
	Logger *slog.Logger
	Clock  clockwork.Clock
	RPC    RPC
	// Broadcast endpoints receive a copy of every transaction. Their errors
	// are logged and otherwise ignored.
	Broadcast      []RPC
	Commitment     string
	PollInterval   time.Duration
	ConfirmTimeout time.Duration
	SkipPreflight  bool
}

func (cfg *Config) Validate() error {
	if cfg.RPC == nil {
		return errors.New("rpc client is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Commitment == "" {
		cfg.Commitment = solanarpc.DefaultCommitment
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = DefaultConfirmTimeout
	}
	return nil
}

type Sender struct {
	log *slog.Logger
	cfg Config
}

func New(cfg Config) (*Sender, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Sender{log: cfg.Logger, cfg: cfg}, nil
}

// SubmitAndConfirm signs instructions with signer as fee payer, sends the
// transaction and polls until it reaches the configured commitment.
//
// Distributor program rejections are returned as *protocol.ProgramError;
// everything else that may succeed on a later attempt wraps ErrSubmitFailed.
func (s *Sender) SubmitAndConfirm(ctx context.Context, signer ed25519.PrivateKey, ixs []solana.Instruction) (string, error) {
	pub, ok := signer.Public().(ed25519.PublicKey)
	if !ok || len(pub) != ed25519.PublicKeySize {
		return "", errors.New("invalid signer")
	}
	var payer solana.Pubkey
	copy(payer[:], pub)

	blockhash, err := s.cfg.RPC.LatestBlockhash(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: latest blockhash: %v", ErrSubmitFailed, err)
	}
	tx, err := solana.BuildAndSignLegacyTransaction(blockhash, payer, map[solana.Pubkey]ed25519.PrivateKey{payer: signer}, ixs)
	if err != nil {
		return "", fmt.Errorf("build transaction: %w", err)
	}
	sig, err := solana.TransactionSignature(tx)
	if err != nil {
		return "", err
	}

	if _, err := s.cfg.RPC.SendTransaction(ctx, tx, s.cfg.SkipPreflight); err != nil {
		if pe := programErrorFromRPC(err); pe != nil {
			return sig, fmt.Errorf("simulate %s: %w", sig, pe)
		}
		return sig, fmt.Errorf("%w: send: %v", ErrSubmitFailed, err)
	}
	for _, b := range s.cfg.Broadcast {
		if _, err := b.SendTransaction(ctx, tx, true); err != nil {
			s.log.Debug("txsend: broadcast failed", "signature", sig, "error", err)
		}
	}

	return sig, s.confirm(ctx, sig)
}

func (s *Sender) confirm(ctx context.Context, sig string) error {
	deadline := s.cfg.Clock.Now().Add(s.cfg.ConfirmTimeout)
	for {
		statuses, err := s.cfg.RPC.SignatureStatuses(ctx, []string{sig})
		if err != nil {
			s.log.Debug("txsend: status poll failed", "signature", sig, "error", err)
		} else if st := statuses[0]; st != nil {
			if st.Failed() {
				if pe := programErrorFromTxErr(st.Err); pe != nil {
					return fmt.Errorf("transaction %s: %w", sig, pe)
				}
				return fmt.Errorf("%w: transaction %s failed: %s", ErrSubmitFailed, sig, string(st.Err))
			}
			if st.Reached(s.cfg.Commitment) {
				return nil
			}
		}

		if !s.cfg.Clock.Now().Before(deadline) {
			return fmt.Errorf("%w: transaction %s not confirmed after %s", ErrSubmitFailed, sig, s.cfg.ConfirmTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.cfg.Clock.After(s.cfg.PollInterval):
		}
	}
}

// programErrorFromTxErr extracts {"InstructionError":[i,{"Custom":code}]}.
func programErrorFromTxErr(raw json.RawMessage) *protocol.ProgramError {
	var txErr struct {
		InstructionError []json.RawMessage `json:"InstructionError"`
	}
	if err := json.Unmarshal(raw, &txErr); err != nil || len(txErr.InstructionError) != 2 {
		return nil
	}
	var custom struct {
		Custom *uint32 `json:"Custom"`
	}
	if err := json.Unmarshal(txErr.InstructionError[1], &custom); err != nil || custom.Custom == nil {
		return nil
	}
	pe, ok := protocol.LookupProgramError(*custom.Custom)
	if !ok {
		return nil
	}
	return pe
}

func programErrorFromRPC(err error) *protocol.ProgramError {
	var rpcErr *solanarpc.RPCError
	if !errors.As(err, &rpcErr) || len(rpcErr.Data) == 0 {
		return nil
	}
	var data struct {
		Err json.RawMessage `json:"err"`
	}
	if json.Unmarshal(rpcErr.Data, &data) != nil || len(data.Err) == 0 {
		return nil
	}
	return programErrorFromTxErr(data.Err)
}
