package game

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ecafe8/battle-city/internal/protocol"
)

// Stage is one battle layout loaded from configs/stages/*.yaml.
//
// Legend for rows: '.' empty, '#' brick, 'X' steel, 'B' base,
// 'P' player spawn, 'E' enemy spawn. Spawn markers leave empty terrain.
type Stage struct {
	Name        string   `yaml:"name"`
	Rows        []string `yaml:"rows"`
	Enemies     []string `yaml:"enemies"`
	PlayerLives int      `yaml:"player_lives"`

	grid         Grid
	playerSpawns []Vec2
	enemySpawns  []Vec2
	basePos      []Vec2
}

func LoadStage(path string) (*Stage, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := ParseStage(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

func ParseStage(raw []byte) (*Stage, error) {
	var s Stage
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	if err := s.build(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Stage) build() error {
	if s.Name == "" {
		return fmt.Errorf("stage: missing name")
	}
	if len(s.Rows) == 0 {
		return fmt.Errorf("stage %s: no rows", s.Name)
	}
	w := len(s.Rows[0])
	if w == 0 {
		return fmt.Errorf("stage %s: empty row", s.Name)
	}
	s.grid = NewGrid(w, len(s.Rows))
	for y, row := range s.Rows {
		if len(row) != w {
			return fmt.Errorf("stage %s: row %d has width %d, want %d", s.Name, y, len(row), w)
		}
		for x, ch := range row {
			p := Vec2{x, y}
			switch ch {
			case '.':
			case '#':
				s.grid.Set(p, CellBrick)
			case 'X':
				s.grid.Set(p, CellSteel)
			case 'B':
				s.grid.Set(p, CellBase)
				s.basePos = append(s.basePos, p)
			case 'P':
				s.playerSpawns = append(s.playerSpawns, p)
			case 'E':
				s.enemySpawns = append(s.enemySpawns, p)
			default:
				return fmt.Errorf("stage %s: unknown cell %q at %d,%d", s.Name, string(ch), x, y)
			}
		}
	}
	if len(s.enemySpawns) == 0 {
		return fmt.Errorf("stage %s: no enemy spawns", s.Name)
	}
	for i, class := range s.Enemies {
		norm := strings.ToUpper(class)
		if !protocol.ValidClass(norm) {
			return fmt.Errorf("stage %s: unknown enemy class %q", s.Name, class)
		}
		s.Enemies[i] = norm
	}
	if s.PlayerLives <= 0 {
		s.PlayerLives = 3
	}
	return nil
}

func (s *Stage) Grid() Grid            { return s.grid }
func (s *Stage) PlayerSpawns() []Vec2  { return s.playerSpawns }
func (s *Stage) EnemySpawns() []Vec2   { return s.enemySpawns }
func (s *Stage) HasBase() bool         { return len(s.basePos) > 0 }
func (s *Stage) HasPlayerSlots() bool  { return len(s.playerSpawns) > 0 }
