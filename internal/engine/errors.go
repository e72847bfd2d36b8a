package engine

import "fmt"

// Family distinguishes caller-blame from server-blame protocol errors, the
// two reply families the wire protocol defines.
type Family int

const (
	FamilyClient Family = iota
	FamilyServer
)

// ProtocolError is a structured wire-protocol error, modeled on ublk's
// Error struct (Op/Code/Msg/Inner/Unwrap) but carrying the two error
// families (CLIENT_ERROR/SERVER_ERROR) the wire protocol defines instead
// of a kernel errno.
type ProtocolError struct {
	Op     string
	Family Family
	Code   int
	Msg    string
	Inner  error
}

func (e *ProtocolError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("workq: %s: %s (code=%d)", e.Op, e.Msg, e.Code)
	}
	return fmt.Sprintf("workq: %s (code=%d)", e.Msg, e.Code)
}

func (e *ProtocolError) Unwrap() error { return e.Inner }

// Reply renders the error in the exact wire format clients expect:
// "CLIENT_ERROR <code> <msg>\r\n" or "SERVER_ERROR <code> <msg>\r\n".
func (e *ProtocolError) Reply() string {
	family := "CLIENT_ERROR"
	if e.Family == FamilyServer {
		family = "SERVER_ERROR"
	}
	return fmt.Sprintf("%s %d %s\r\n", family, e.Code, e.Msg)
}

var (
	errBadFormat = &ProtocolError{Op: "parse", Family: FamilyClient, Code: 0, Msg: "bad command line format"}
	errUnknown   = &ProtocolError{Op: "parse", Family: FamilyClient, Code: 1, Msg: "unknown command"}
	errBadCRLF   = &ProtocolError{Op: "put", Family: FamilyClient, Code: 2, Msg: "expected CR-LF after job body"}
	errJobTooBig = &ProtocolError{Op: "put", Family: FamilyClient, Code: 3, Msg: "job too big"}

	errOutOfMemory = &ProtocolError{Op: "alloc", Family: FamilyServer, Code: 0, Msg: "out of memory"}
	errInternal    = &ProtocolError{Op: "internal", Family: FamilyServer, Code: 1, Msg: "internal error"}
	errDraining    = &ProtocolError{Op: "put", Family: FamilyServer, Code: 2, Msg: "draining"}

	// errServerFull has no analogue in the original error table (the C
	// source relies on EMFILE brake/unbrake instead); it reuses the
	// out-of-memory code since both mean "server can't accept more work
	// right now" to a client.
	errServerFull = &ProtocolError{Op: "accept", Family: FamilyServer, Code: 0, Msg: "out of memory"}
)
