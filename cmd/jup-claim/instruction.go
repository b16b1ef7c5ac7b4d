package main

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/Abdullah1738/merkle-airdrop/protocol"
)

type accountSlotView struct {
	Name     string `json:"name"`
	Signer   bool   `json:"signer"`
	Writable bool   `json:"writable"`
}

type instructionView struct {
	Name     string            `json:"name"`
	Opcode   string            `json:"opcode"`
	Accounts []accountSlotView `json:"accounts"`
	Args     any               `json:"args,omitempty"`
	RawArgs  string            `json:"raw_args,omitempty"`
}

type newClaimArgsView struct {
	AmountUnlocked uint64   `json:"amount_unlocked"`
	AmountLocked   uint64   `json:"amount_locked"`
	Proof          []string `json:"proof"`
}

func newInstructionView(op protocol.Operation) instructionView {
	v := instructionView{Name: op.Name, Opcode: hex.EncodeToString(op.Opcode[:])}
	for _, a := range op.Accounts {
		v.Accounts = append(v.Accounts, accountSlotView{Name: a.Name, Signer: a.Signer, Writable: a.Writable})
	}
	return v
}

// decodeInstructionData accepts hex (optionally 0x prefixed) or base64.
func decodeInstructionData(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if b, err := hex.DecodeString(strings.TrimPrefix(s, "0x")); err == nil {
		return b, nil
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("instruction data is neither hex nor base64")
	}
	return b, nil
}

func cmdInstruction(argv []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("instruction", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var opName string
	fs.StringVar(&opName, "op", "", "Describe an operation's account list by name instead of decoding data")
	if err := fs.Parse(argv); err != nil {
		return err
	}

	if opName != "" {
		if len(fs.Args()) != 0 {
			return fmt.Errorf("unexpected args: %v", fs.Args())
		}
		op, err := protocol.OperationByName(opName)
		if err != nil {
			return err
		}
		return writeJSON(stdout, newInstructionView(op))
	}

	if len(fs.Args()) != 1 {
		return fmt.Errorf("instruction: expected instruction data or --op")
	}
	data, err := decodeInstructionData(fs.Args()[0])
	if err != nil {
		return err
	}
	op, err := protocol.OperationByOpcode(data)
	if err != nil {
		return err
	}
	v := newInstructionView(op)

	switch op.Name {
	case protocol.OpNewClaim.Name:
		args, err := protocol.DecodeNewClaimArgs(data)
		if err != nil {
			return err
		}
		view := newClaimArgsView{AmountUnlocked: args.AmountUnlocked, AmountLocked: args.AmountLocked, Proof: []string{}}
		for _, node := range args.Proof {
			view.Proof = append(view.Proof, hex.EncodeToString(node[:]))
		}
		v.Args = view
	case protocol.OpSetEnableSlot.Name:
		args, err := protocol.DecodeSetEnableSlotArgs(data)
		if err != nil {
			return err
		}
		v.Args = map[string]uint64{"enable_slot": args.EnableSlot}
	default:
		if rest := data[len(op.Opcode):]; len(rest) > 0 {
			v.RawArgs = hex.EncodeToString(rest)
		}
	}
	return writeJSON(stdout, v)
}
