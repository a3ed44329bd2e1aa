package protocol

import "fmt"

// Stable wire-level error codes. A command that fails decoding is fatal for
// the agent that sent it; the code names the reason in logs and exit reports.
const (
	ErrBadJSON      = "E_BAD_JSON"
	ErrUnknownType  = "E_UNKNOWN_TYPE"
	ErrBadDirection = "E_BAD_DIRECTION"
	ErrBadQuery     = "E_BAD_QUERY"
	ErrRange        = "E_RANGE"
)

var knownCodes = map[string]struct{}{
	ErrBadJSON:      {},
	ErrUnknownType:  {},
	ErrBadDirection: {},
	ErrBadQuery:     {},
	ErrRange:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// Error is a protocol violation by an external agent.
type Error struct {
	Code string
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Code
	}
	return e.Code + ": " + e.Msg
}

func Errorf(code, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}
