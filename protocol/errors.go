package protocol

import (
	"fmt"
)

// ProgramError is a custom error returned by the distributor program.
type ProgramError struct {
	Code uint32
	Name string
	Msg  string
}

func (e *ProgramError) Error() string {
	return fmt.Sprintf("%d: %s: %s", e.Code, e.Name, e.Msg)
}

const programErrorBase = 6000

var programErrors = []ProgramError{
	{6000, "InsufficientUnlockedTokens", "Insufficient unlocked tokens"},
	{6001, "StartTooFarInFuture", "Deposit Start too far in future"},
	{6002, "InvalidProof", "Invalid Merkle proof."},
	{6003, "ExceededMaxClaim", "Exceeded maximum claim amount"},
	{6004, "MaxNodesExceeded", "Exceeded maximum node count"},
	{6005, "Unauthorized", "Account is not authorized to execute this instruction"},
	{6006, "OwnerMismatch", "Token account owner did not match intended owner"},
	{6007, "ClawbackDuringVesting", "Clawback cannot be before vesting ends"},
	{6008, "ClawbackBeforeStart", "Attempted clawback before start"},
	{6009, "ClawbackAlreadyClaimed", "Clawback already claimed"},
	{6010, "InsufficientClawbackDelay", "Clawback start must be at least one day after vesting end"},
	{6011, "SameClawbackReceiver", "New and old Clawback receivers are identical"},
	{6012, "SameAdmin", "New and old admin are identical"},
	{6013, "ClaimExpired", "Claim window expired"},
	{6014, "ArithmeticError", "Arithmetic Error (overflow/underflow)"},
	{6015, "StartTimestampAfterEnd", "Start Timestamp cannot be after end Timestamp"},
	{6016, "TimestampsNotInFuture", "Timestamps cannot be in the past"},
	{6017, "InvalidVersion", "Airdrop Version Mismatch"},
	{6018, "ClaimingIsNotStarted", "Claiming is not started"},
	{6019, "CannotCloseDistributor", "Cannot close distributor"},
	{6020, "CannotCloseClaimStatus", "Cannot close claim status"},
}

// LookupProgramError maps a custom error code to its program error.
func LookupProgramError(code uint32) (*ProgramError, bool) {
	if code < programErrorBase {
		return nil, false
	}
	i := int(code - programErrorBase)
	if i >= len(programErrors) {
		return nil, false
	}
	e := programErrors[i]
	return &e, true
}

func ProgramErrors() []ProgramError {
	out := make([]ProgramError, len(programErrors))
	copy(out, programErrors)
	return out
}
