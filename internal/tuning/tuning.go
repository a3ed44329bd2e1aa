package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ecafe8/battle-city/internal/protocol"
)

// Tuning holds the game parameters loaded from configs/game.yaml. Zero
// fields are backfilled with defaults, so a partial file is fine.
type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickMs            int `yaml:"tick_ms"`
	BulletLimit       int `yaml:"bullet_limit"`
	FireCooldownTicks int `yaml:"fire_cooldown_ticks"`
	BulletSpeed       int `yaml:"bullet_speed"`
	ArmorHP           int `yaml:"armor_hp"`

	// Population is the AI session target the supervisor maintains while
	// the enemy pool lasts.
	Population int `yaml:"population"`

	// AgentCmd is the command line launched for each supervised enemy.
	// Empty and no -agent-cmd flag means the server runs without AI.
	AgentCmd string `yaml:"agent_cmd"`

	// TankSpeed maps class name to cells moved per tick.
	TankSpeed map[string]int `yaml:"tank_speed"`

	Session SessionTuning `yaml:"session"`
}

type SessionTuning struct {
	CommandBuffer int `yaml:"command_buffer"`
	NoteBuffer    int `yaml:"note_buffer"`
	EventBuffer   int `yaml:"event_buffer"`
}

func Default() Tuning {
	var t Tuning
	t.applyDefaults()
	return t
}

func Load(path string) (Tuning, error) {
	var t Tuning
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("game.yaml: %w", err)
	}
	t.applyDefaults()
	if err := t.validate(); err != nil {
		return t, fmt.Errorf("game.yaml: %w", err)
	}
	return t, nil
}

func (t *Tuning) applyDefaults() {
	if t.ProtocolVersion == "" {
		t.ProtocolVersion = protocol.Version
	}
	if t.TickMs <= 0 {
		t.TickMs = 100
	}
	if t.BulletLimit <= 0 {
		t.BulletLimit = 2
	}
	if t.FireCooldownTicks <= 0 {
		t.FireCooldownTicks = 5
	}
	if t.BulletSpeed <= 0 {
		t.BulletSpeed = 2
	}
	if t.ArmorHP <= 0 {
		t.ArmorHP = 4
	}
	if t.Population <= 0 {
		t.Population = 1
	}
	if t.TankSpeed == nil {
		t.TankSpeed = map[string]int{}
	}
	for class, speed := range map[string]int{
		protocol.ClassLight: 1,
		protocol.ClassFast:  2,
		protocol.ClassPower: 1,
		protocol.ClassArmor: 1,
	} {
		if t.TankSpeed[class] <= 0 {
			t.TankSpeed[class] = speed
		}
	}
	if t.Session.CommandBuffer <= 0 {
		t.Session.CommandBuffer = 64
	}
	if t.Session.NoteBuffer <= 0 {
		t.Session.NoteBuffer = 64
	}
	if t.Session.EventBuffer <= 0 {
		t.Session.EventBuffer = 256
	}
}

func (t *Tuning) validate() error {
	if t.ProtocolVersion != protocol.Version {
		return fmt.Errorf("protocol_version %q not supported (want %q)", t.ProtocolVersion, protocol.Version)
	}
	for class := range t.TankSpeed {
		if !protocol.ValidClass(class) {
			return fmt.Errorf("tank_speed: unknown class %q", class)
		}
	}
	return nil
}

// SpeedFor returns cells per tick for a class, defaulting to 1 for classes
// the map does not cover.
func (t *Tuning) SpeedFor(class string) int {
	if s, ok := t.TankSpeed[class]; ok && s > 0 {
		return s
	}
	return 1
}

// HPFor derives spawn hit points from a class: the ARMOR tier soaks extra
// hits, every other class dies in one.
func (t *Tuning) HPFor(class string) int {
	if class == protocol.ClassArmor {
		return t.ArmorHP
	}
	return 1
}
