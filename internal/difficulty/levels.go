package difficulty

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

var ErrUnknownLevel = errors.New("unknown level")
var ErrInvalidConfig = errors.New("invalid level config")

type Level string

const (
	LevelAmateur    Level = "amateur"
	LevelPro        Level = "pro"
	LevelWorldClass Level = "world-class"
	LevelElite      Level = "elite"
	LevelLegend     Level = "legend"
)

// Order is the display order of the built-in levels, easiest first.
var Order = []Level{LevelAmateur, LevelPro, LevelWorldClass, LevelElite, LevelLegend}

type Range struct {
	Min int `yaml:"min" json:"min"`
	Max int `yaml:"max" json:"max"`
}

type MultRange struct {
	Min1 int `yaml:"min1" json:"min1"`
	Max1 int `yaml:"max1" json:"max1"`
	Min2 int `yaml:"min2" json:"min2"`
	Max2 int `yaml:"max2" json:"max2"`
}

type Division struct {
	MinDivisor int `yaml:"min_divisor" json:"min_divisor"`
	MaxDivisor int `yaml:"max_divisor" json:"max_divisor"`
	MinAnswer  int `yaml:"min_answer" json:"min_answer"`
	MaxAnswer  int `yaml:"max_answer" json:"max_answer"`
}

type MultiStep struct {
	Enabled    bool     `yaml:"enabled" json:"enabled"`
	Operations []string `yaml:"operations" json:"operations"`
}

// Config is the tuning for one level. AIAccuracy and AIDelayMs only drive
// the single-device practice opponent, but are scaled alongside the rest.
type Config struct {
	Addition       Range      `yaml:"addition" json:"addition"`
	Subtraction    Range      `yaml:"subtraction" json:"subtraction"`
	Multiplication MultRange  `yaml:"multiplication" json:"multiplication"`
	Division       *Division  `yaml:"division,omitempty" json:"division,omitempty"`
	MultiStep      *MultiStep `yaml:"multi_step,omitempty" json:"multi_step,omitempty"`
	TimerSeconds   int        `yaml:"timer_seconds" json:"timer_seconds"`
	AIAccuracy     float64    `yaml:"ai_accuracy" json:"ai_accuracy"`
	AIDelayMs      int        `yaml:"ai_delay_ms" json:"ai_delay_ms"`
}

type Levels map[Level]Config

//go:embed levels.yaml
var defaultLevelsYAML []byte

// DefaultLevels returns the built-in level table.
func DefaultLevels() Levels {
	levels, err := ParseLevels(defaultLevelsYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded levels.yaml: %v", err))
	}
	return levels
}

func ParseLevels(data []byte) (Levels, error) {
	var levels Levels
	if err := yaml.Unmarshal(data, &levels); err != nil {
		return nil, fmt.Errorf("parse levels: %w", err)
	}
	if len(levels) == 0 {
		return nil, fmt.Errorf("%w: no levels defined", ErrInvalidConfig)
	}
	for name, cfg := range levels {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("level %q: %w", name, err)
		}
	}
	return levels, nil
}

func LoadLevels(path string) (Levels, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read levels file: %w", err)
	}
	return ParseLevels(data)
}

func (c Config) Validate() error {
	if c.Addition.Min > c.Addition.Max || c.Subtraction.Min > c.Subtraction.Max {
		return fmt.Errorf("%w: empty range", ErrInvalidConfig)
	}
	if c.Multiplication.Min1 > c.Multiplication.Max1 || c.Multiplication.Min2 > c.Multiplication.Max2 {
		return fmt.Errorf("%w: empty multiplication range", ErrInvalidConfig)
	}
	if d := c.Division; d != nil {
		if d.MinDivisor < 1 || d.MinDivisor > d.MaxDivisor || d.MinAnswer > d.MaxAnswer {
			return fmt.Errorf("%w: bad division range", ErrInvalidConfig)
		}
	}
	if ms := c.MultiStep; ms != nil && ms.Enabled {
		if len(ms.Operations) == 0 {
			return fmt.Errorf("%w: multi-step without operations", ErrInvalidConfig)
		}
		for _, op := range ms.Operations {
			if !slices.Contains([]string{"+", "-", "*"}, op) {
				return fmt.Errorf("%w: multi-step operation %q", ErrInvalidConfig, op)
			}
		}
	}
	if c.TimerSeconds < 1 {
		return fmt.Errorf("%w: timer_seconds must be positive", ErrInvalidConfig)
	}
	return nil
}

func (l Levels) Lookup(level Level) (Config, error) {
	cfg, ok := l[level]
	if !ok {
		return Config{}, fmt.Errorf("%w: %q", ErrUnknownLevel, level)
	}
	return cfg, nil
}

// ParseLevel validates a client-supplied level name against the table.
func (l Levels) ParseLevel(s string) (Level, error) {
	level := Level(s)
	if _, ok := l[level]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownLevel, s)
	}
	return level, nil
}

// Names lists levels with built-ins first in difficulty order, then any extras sorted.
func (l Levels) Names() []Level {
	names := make([]Level, 0, len(l))
	for _, lv := range Order {
		if _, ok := l[lv]; ok {
			names = append(names, lv)
		}
	}
	var extra []Level
	for lv := range l {
		if !slices.Contains(Order, lv) {
			extra = append(extra, lv)
		}
	}
	slices.Sort(extra)
	return append(names, extra...)
}
