package alerts

import (
	"errors"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Rule defaults, matching the thresholds the system was tuned with.
const (
	DefaultEmptyClassDuration = 2 * time.Minute

	DefaultMotionThreshold  = 0.25
	DefaultMischiefStreak   = 3
	DefaultMischiefCooldown = time.Minute

	DefaultAudioThreshold    = 0.10
	DefaultLoudNoiseStreak   = 5
	DefaultLoudNoiseCooldown = time.Minute

	DefaultMissingTeacherCooldown = 5 * time.Minute

	DefaultStableWindow = 10 * time.Second
)

// RuleConfig holds every tunable of the four rules plus the
// notification stable window.
type RuleConfig struct {
	EmptyClassDuration Duration `yaml:"empty_class_duration"`

	MotionThreshold  float64  `yaml:"motion_threshold"`
	MischiefStreak   int      `yaml:"mischief_streak"`
	MischiefCooldown Duration `yaml:"mischief_cooldown"`

	AudioThreshold    float64  `yaml:"audio_threshold"`
	LoudNoiseStreak   int      `yaml:"loud_noise_streak"`
	LoudNoiseCooldown Duration `yaml:"loud_noise_cooldown"`

	MissingTeacherCooldown Duration `yaml:"missing_teacher_cooldown"`

	StableWindow Duration `yaml:"stable_window"`
}

// DefaultRuleConfig returns the built-in rule tuning.
func DefaultRuleConfig() RuleConfig {
	return RuleConfig{
		EmptyClassDuration:     Duration(DefaultEmptyClassDuration),
		MotionThreshold:        DefaultMotionThreshold,
		MischiefStreak:         DefaultMischiefStreak,
		MischiefCooldown:       Duration(DefaultMischiefCooldown),
		AudioThreshold:         DefaultAudioThreshold,
		LoudNoiseStreak:        DefaultLoudNoiseStreak,
		LoudNoiseCooldown:      Duration(DefaultLoudNoiseCooldown),
		MissingTeacherCooldown: Duration(DefaultMissingTeacherCooldown),
		StableWindow:           Duration(DefaultStableWindow),
	}
}

// Validate checks config invariants.
func (c RuleConfig) Validate() error {
	if c.EmptyClassDuration <= 0 {
		return errors.New("rule config: empty class duration must be positive")
	}
	if c.MotionThreshold < 0 || c.MotionThreshold > 1 {
		return errors.New("rule config: motion threshold out of range")
	}
	if c.AudioThreshold < 0 || c.AudioThreshold > 1 {
		return errors.New("rule config: audio threshold out of range")
	}
	if c.MischiefStreak <= 0 || c.LoudNoiseStreak <= 0 {
		return errors.New("rule config: streak counts must be positive")
	}
	if c.MischiefCooldown < 0 || c.LoudNoiseCooldown < 0 || c.MissingTeacherCooldown < 0 {
		return errors.New("rule config: negative cooldown")
	}
	if c.StableWindow < 0 {
		return errors.New("rule config: negative stable window")
	}
	return nil
}

// ConfigFile is the on-disk rule configuration: global defaults plus
// per-room overrides.
type ConfigFile struct {
	Defaults RuleConfig            `yaml:"defaults"`
	Rooms    map[string]RuleConfig `yaml:"rooms"`
}

// LoadConfigFile reads rule configuration from a yaml file. An empty
// path yields the built-in defaults with no overrides.
func LoadConfigFile(path string) (ConfigFile, error) {
	cfg := ConfigFile{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}
	cfg.Defaults = mergeRuleConfig(DefaultRuleConfig(), cfg.Defaults)
	if err := cfg.Defaults.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ForRoom returns the effective config for a room, applying the room
// override on top of the defaults when present.
func (f ConfigFile) ForRoom(roomID string) RuleConfig {
	if f.Rooms != nil {
		if override, ok := f.Rooms[roomID]; ok {
			return mergeRuleConfig(f.Defaults, override)
		}
	}
	return f.Defaults
}

func mergeRuleConfig(base, override RuleConfig) RuleConfig {
	if override.EmptyClassDuration != 0 {
		base.EmptyClassDuration = override.EmptyClassDuration
	}
	if override.MotionThreshold != 0 {
		base.MotionThreshold = override.MotionThreshold
	}
	if override.MischiefStreak != 0 {
		base.MischiefStreak = override.MischiefStreak
	}
	if override.MischiefCooldown != 0 {
		base.MischiefCooldown = override.MischiefCooldown
	}
	if override.AudioThreshold != 0 {
		base.AudioThreshold = override.AudioThreshold
	}
	if override.LoudNoiseStreak != 0 {
		base.LoudNoiseStreak = override.LoudNoiseStreak
	}
	if override.LoudNoiseCooldown != 0 {
		base.LoudNoiseCooldown = override.LoudNoiseCooldown
	}
	if override.MissingTeacherCooldown != 0 {
		base.MissingTeacherCooldown = override.MissingTeacherCooldown
	}
	if override.StableWindow != 0 {
		base.StableWindow = override.StableWindow
	}
	return base
}
