package protocol

import "encoding/json"

// Note is any game -> agent message. The concrete types below are the full
// set; Session forwards them to the external process in emission order.
type Note interface {
	NoteType() string
}

// WELCOME (game -> agent), sent once when a session starts.
type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	PlayerID        string `json:"player_id"`
	TankID          string `json:"tank_id"`
}

// BULLET_COMPLETE (game -> agent): a bullet fired by this agent's tank was
// destroyed. One note per bullet.
type BulletCompleteMsg struct {
	Type string `json:"type"`
}

// REACH (game -> agent): a requested forward movement completed.
type ReachMsg struct {
	Type string `json:"type"`
}

// QUERY_RESULT (game -> agent). Result holds one of the *Result structs.
type QueryResultMsg struct {
	Type   string `json:"type"`
	Result any    `json:"result"`
}

func (WelcomeMsg) NoteType() string        { return TypeWelcome }
func (BulletCompleteMsg) NoteType() string { return TypeBulletComplete }
func (ReachMsg) NoteType() string          { return TypeReach }
func (QueryResultMsg) NoteType() string    { return TypeQueryResult }

// TankInfo is the wire snapshot of one tank.
type TankInfo struct {
	ID        string `json:"id"`
	PlayerID  string `json:"player_id"`
	Side      string `json:"side"`
	Class     string `json:"class"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Direction string `json:"direction"`
	HP        int    `json:"hp"`
}

// MapInfo is the wire snapshot of the stage grid. Rows use the stage legend
// characters; row 0 is the top of the map.
type MapInfo struct {
	Width  int      `json:"width"`
	Height int      `json:"height"`
	Rows   []string `json:"rows"`
}

// FireInfo is the firing bookkeeping for one tank.
type FireInfo struct {
	BulletCount int  `json:"bullet_count"`
	CanFire     bool `json:"can_fire"`
	Cooldown    int  `json:"cooldown"`
	BulletLimit int  `json:"bullet_limit"`
}

// Query result payloads. Tank is omitted when the actor no longer exists.
type MyTankInfoResult struct {
	Type string    `json:"type"`
	Tank *TankInfo `json:"tank,omitempty"`
}

type MapInfoResult struct {
	Type string  `json:"type"`
	Map  MapInfo `json:"map"`
}

type TanksInfoResult struct {
	Type  string     `json:"type"`
	Tanks []TankInfo `json:"tanks"`
}

type MyFireInfoResult struct {
	Type string `json:"type"`
	FireInfo
}

// EncodeNote renders one note as a single JSON line payload (no trailing
// newline; transports add their own framing).
func EncodeNote(n Note) ([]byte, error) {
	return json.Marshal(n)
}

// DecodeResultBase pulls the result type tag out of a QUERY_RESULT payload so
// agent-side code can route to the concrete struct.
func DecodeResultBase(result json.RawMessage) (string, error) {
	var m BaseMessage
	if err := json.Unmarshal(result, &m); err != nil {
		return "", err
	}
	return m.Type, nil
}
