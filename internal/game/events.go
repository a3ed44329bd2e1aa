package game

// Event kinds, as recorded in the battle log.
const (
	EvStageLoaded      = "STAGE_LOADED"
	EvTankSpawned      = "TANK_SPAWNED"
	EvTankKilled       = "TANK_KILLED"
	EvBulletFired      = "BULLET_FIRED"
	EvBulletsDestroyed = "BULLETS_DESTROYED"
	EvBaseDestroyed    = "BASE_DESTROYED"
	EvGameOver         = "GAME_OVER"
)

// Kill causes carried by TankKilled.
const (
	CauseBullet     = "bullet"
	CauseSession    = "session"
	CauseDisconnect = "disconnect"
)

// Winners carried by GameOver.
const (
	WinnerPlayer = "PLAYER"
	WinnerEnemy  = "ENEMY"
)

// Event is anything the engine publishes on its bus. Only the engine
// goroutine publishes, so each subscriber sees events in tick order.
type Event interface {
	Kind() string
}

type StageLoaded struct {
	Stage   string   `json:"stage"`
	Enemies []string `json:"enemies"`
	Tick    uint64   `json:"tick"`
}

type TankSpawned struct {
	TankID   string `json:"tank_id"`
	PlayerID string `json:"player_id"`
	Side     string `json:"side"`
	Class    string `json:"class"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
	Tick     uint64 `json:"tick"`
}

type TankKilled struct {
	TankID   string `json:"tank_id"`
	PlayerID string `json:"player_id"`
	Side     string `json:"side"`
	Class    string `json:"class"`
	Cause    string `json:"cause"`
	Killer   string `json:"killer,omitempty"`
	Tick     uint64 `json:"tick"`
}

type BulletFired struct {
	BulletID string `json:"bullet_id"`
	TankID   string `json:"tank_id"`
	PlayerID string `json:"player_id"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
	Tick     uint64 `json:"tick"`
}

// BulletHit is one destroyed bullet inside a per-tick batch.
type BulletHit struct {
	BulletID string `json:"bullet_id"`
	TankID   string `json:"tank_id"`
	PlayerID string `json:"player_id"`
	Target   string `json:"target"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
}

type BulletsDestroyed struct {
	Bullets []BulletHit `json:"bullets"`
	Tick    uint64      `json:"tick"`
}

type BaseDestroyed struct {
	X    int    `json:"x"`
	Y    int    `json:"y"`
	Tick uint64 `json:"tick"`
}

type GameOver struct {
	Winner string `json:"winner"`
	Tick   uint64 `json:"tick"`
}

func (StageLoaded) Kind() string      { return EvStageLoaded }
func (TankSpawned) Kind() string      { return EvTankSpawned }
func (TankKilled) Kind() string       { return EvTankKilled }
func (BulletFired) Kind() string      { return EvBulletFired }
func (BulletsDestroyed) Kind() string { return EvBulletsDestroyed }
func (BaseDestroyed) Kind() string    { return EvBaseDestroyed }
func (GameOver) Kind() string         { return EvGameOver }
