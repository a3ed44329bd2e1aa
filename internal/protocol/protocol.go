package protocol

import "encoding/json"

const Version = "1.0"

// Message types, agent -> game.
const (
	TypeForward = "FORWARD"
	TypeFire    = "FIRE"
	TypeTurn    = "TURN"
	TypeQuery   = "QUERY"
)

// Message types, game -> agent.
const (
	TypeWelcome        = "WELCOME"
	TypeBulletComplete = "BULLET_COMPLETE"
	TypeReach          = "REACH"
	TypeQueryResult    = "QUERY_RESULT"
)

// Query kinds carried by a QUERY command.
const (
	QueryMyTank     = "MY_TANK"
	QueryMap        = "MAP"
	QueryTanks      = "TANKS"
	QueryMyFireInfo = "MY_FIRE_INFO"
)

// Query result types carried inside a QUERY_RESULT note.
const (
	TypeMyTankInfo = "MY_TANK_INFO"
	TypeMapInfo    = "MAP_INFO"
	TypeTanksInfo  = "TANKS_INFO"
	TypeMyFireInfo = "MY_FIRE_INFO"
)

// Facing directions on the wire.
const (
	DirUp    = "UP"
	DirDown  = "DOWN"
	DirLeft  = "LEFT"
	DirRight = "RIGHT"
)

// Tank sides on the wire.
const (
	SidePlayer = "PLAYER"
	SideEnemy  = "ENEMY"
)

// Tank classes on the wire. ARMOR is the heavy tier with extra hit points.
const (
	ClassLight = "LIGHT"
	ClassFast  = "FAST"
	ClassPower = "POWER"
	ClassArmor = "ARMOR"
)

// TankClasses lists every class in display order.
var TankClasses = []string{ClassLight, ClassFast, ClassPower, ClassArmor}

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type string `json:"type"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

func ValidDirection(s string) bool {
	switch s {
	case DirUp, DirDown, DirLeft, DirRight:
		return true
	}
	return false
}

func ValidQuery(s string) bool {
	switch s {
	case QueryMyTank, QueryMap, QueryTanks, QueryMyFireInfo:
		return true
	}
	return false
}

func ValidClass(s string) bool {
	switch s {
	case ClassLight, ClassFast, ClassPower, ClassArmor:
		return true
	}
	return false
}
