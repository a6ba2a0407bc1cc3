package vm

import "errors"

// ---------------------------------------------------------------------------
// Fault taxonomy
// ---------------------------------------------------------------------------

// The machine's fault conditions form a closed set. Each sentinel maps to a
// stable numeric code (see CodeOf) for host consumption. Faults abort the
// current Exec call immediately and are recorded in the machine's last-error
// register; the engine never retries internally.
var (
	ErrExit               = errors.New("forced exit")
	ErrAssert             = errors.New("assertion failed")
	ErrStackOverflow      = errors.New("stack/heap collision (insufficient stack size)")
	ErrBounds             = errors.New("array index out of bounds")
	ErrMemoryAccess       = errors.New("invalid memory access")
	ErrInvalidInstruction = errors.New("invalid instruction")
	ErrStackUnderflow     = errors.New("stack underflow")
	ErrHeapUnderflow      = errors.New("heap underflow")
	ErrCallback           = errors.New("no callback, or invalid callback")
	ErrNative             = errors.New("native function failed")
	ErrDivide             = errors.New("divide by zero")
	ErrSleep              = errors.New("machine went into sleep mode, execution can be resumed")
	ErrInvalidState       = errors.New("invalid state for this access")
	ErrMemory             = errors.New("out of memory")
	ErrFormat             = errors.New("invalid module format")
	ErrVersion            = errors.New("module requires a newer runtime version")
	ErrNotFound           = errors.New("function not found")
	ErrIndex              = errors.New("invalid index parameter")
	ErrInit               = errors.New("machine not initialized")
	ErrParams             = errors.New("parameter error")
	ErrDomain             = errors.New("domain error")
)

// Numeric fault codes, stable across releases. The numbering matches the
// historical abstract machine so hosts can share tables with other runtimes.
const (
	CodeNone               = 0
	CodeExit               = 1
	CodeAssert             = 2
	CodeStackOverflow      = 3
	CodeBounds             = 4
	CodeMemoryAccess       = 5
	CodeInvalidInstruction = 6
	CodeStackUnderflow     = 7
	CodeHeapUnderflow      = 8
	CodeCallback           = 9
	CodeNative             = 10
	CodeDivide             = 11
	CodeSleep              = 12
	CodeInvalidState       = 13
	CodeMemory             = 16
	CodeFormat             = 17
	CodeVersion            = 18
	CodeNotFound           = 19
	CodeIndex              = 20
	CodeInit               = 22
	CodeParams             = 25
	CodeDomain             = 26
	CodeGeneral            = 27
)

// faultCodes pairs each sentinel with its numeric code. Checked in order by
// CodeOf; every sentinel above must appear exactly once.
var faultCodes = []struct {
	err  error
	code int
}{
	{ErrExit, CodeExit},
	{ErrAssert, CodeAssert},
	{ErrStackOverflow, CodeStackOverflow},
	{ErrBounds, CodeBounds},
	{ErrMemoryAccess, CodeMemoryAccess},
	{ErrInvalidInstruction, CodeInvalidInstruction},
	{ErrStackUnderflow, CodeStackUnderflow},
	{ErrHeapUnderflow, CodeHeapUnderflow},
	{ErrCallback, CodeCallback},
	{ErrNative, CodeNative},
	{ErrDivide, CodeDivide},
	{ErrSleep, CodeSleep},
	{ErrInvalidState, CodeInvalidState},
	{ErrMemory, CodeMemory},
	{ErrFormat, CodeFormat},
	{ErrVersion, CodeVersion},
	{ErrNotFound, CodeNotFound},
	{ErrIndex, CodeIndex},
	{ErrInit, CodeInit},
	{ErrParams, CodeParams},
	{ErrDomain, CodeDomain},
}

// CodeOf maps an error chain to its numeric fault code. Errors that do not
// wrap one of the machine's sentinels map to CodeGeneral; nil maps to
// CodeNone.
func CodeOf(err error) int {
	if err == nil {
		return CodeNone
	}
	for _, fc := range faultCodes {
		if errors.Is(err, fc.err) {
			return fc.code
		}
	}
	return CodeGeneral
}
