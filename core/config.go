package core

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FrameLoopConfig configures a FrameLoop. It can be loaded from YAML:
//
//	name: render
//	full_fps: 60
//	idle_fps: 2
//	runner:
//	  name: render-deferred
//	  history_capacity: 200
type FrameLoopConfig struct {
	// Name labels the loop and its goroutine's logs. Defaults to "frame-loop".
	Name string `yaml:"name"`

	// FullFPS is the frame rate while any framerate lock is held. Defaults to 60.
	FullFPS int `yaml:"full_fps"`

	// IdleFPS is the frame rate with no lock held. Defaults to 1.
	IdleFPS int `yaml:"idle_fps"`

	// Runner configures the loop's DeferredTaskRunner. An empty Runner.Name
	// takes the loop's Name.
	Runner DeferredTaskRunnerConfig `yaml:"runner"`
}

// DefaultFrameLoopConfig returns a config with default frame rates and handlers.
// The runner name is left empty so the runner is named after the loop.
func DefaultFrameLoopConfig() FrameLoopConfig {
	runner := *DefaultDeferredTaskRunnerConfig()
	runner.Name = ""
	return FrameLoopConfig{
		Name:    "frame-loop",
		FullFPS: defaultFullFPS,
		IdleFPS: defaultIdleFPS,
		Runner:  runner,
	}
}

// Validate reports configuration values that cannot be defaulted.
func (c FrameLoopConfig) Validate() error {
	if c.FullFPS < 0 {
		return fmt.Errorf("%w: full_fps must not be negative, got %d", ErrInvalidConfig, c.FullFPS)
	}
	if c.IdleFPS < 0 {
		return fmt.Errorf("%w: idle_fps must not be negative, got %d", ErrInvalidConfig, c.IdleFPS)
	}
	if c.FullFPS > 0 && c.IdleFPS > c.FullFPS {
		return fmt.Errorf("%w: idle_fps %d exceeds full_fps %d", ErrInvalidConfig, c.IdleFPS, c.FullFPS)
	}
	if c.Runner.HistoryCapacity < 0 {
		return fmt.Errorf("%w: runner.history_capacity must not be negative, got %d", ErrInvalidConfig, c.Runner.HistoryCapacity)
	}
	return nil
}

// ParseFrameLoopConfig decodes YAML into a FrameLoopConfig on top of the
// defaults and validates the result.
func ParseFrameLoopConfig(data []byte) (FrameLoopConfig, error) {
	cfg := DefaultFrameLoopConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return FrameLoopConfig{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return FrameLoopConfig{}, err
	}
	return cfg, nil
}

// LoadFrameLoopConfig reads and parses the YAML file at path.
func LoadFrameLoopConfig(path string) (FrameLoopConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FrameLoopConfig{}, fmt.Errorf("read frame loop config %s: %w", path, err)
	}
	return ParseFrameLoopConfig(data)
}
