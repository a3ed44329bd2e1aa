package protocol

import "encoding/json"

// Command (agent -> game). One struct for all kinds, routed by Type; unused
// fields stay zero.
type Command struct {
	Type string `json:"type"`

	// FORWARD
	ForwardLength int `json:"forward_length,omitempty"`

	// TURN
	Direction string `json:"direction,omitempty"`

	// QUERY
	Query string `json:"query,omitempty"`
}

// DecodeCommand parses and validates one wire command. Any failure is a
// *Error carrying a stable code; callers treat it as fatal for the sending
// agent.
func DecodeCommand(b []byte) (Command, error) {
	var c Command
	if err := json.Unmarshal(b, &c); err != nil {
		return Command{}, Errorf(ErrBadJSON, "%v", err)
	}
	switch c.Type {
	case TypeForward:
		if c.ForwardLength <= 0 {
			return Command{}, Errorf(ErrRange, "forward_length must be positive, got %d", c.ForwardLength)
		}
	case TypeFire:
		// No payload.
	case TypeTurn:
		if !ValidDirection(c.Direction) {
			return Command{}, Errorf(ErrBadDirection, "unknown direction %q", c.Direction)
		}
	case TypeQuery:
		if !ValidQuery(c.Query) {
			return Command{}, Errorf(ErrBadQuery, "unknown query %q", c.Query)
		}
	default:
		return Command{}, Errorf(ErrUnknownType, "unknown command type %q", c.Type)
	}
	return c, nil
}
