// Package movement binds direction keys so that the most recently pressed
// key of an axis wins, and makes jump press the last direction when none is
// held.
package movement

import (
	"fmt"

	"github.com/huglovefan/cfgfs/internal/binds"
	"github.com/huglovefan/cfgfs/internal/event"
	"github.com/huglovefan/cfgfs/internal/logging"
)

// Pair is one movement axis: two keys whose commands cancel each other.
type Pair struct {
	Key             string `toml:"key"`
	Command         string `toml:"command"`
	OppositeKey     string `toml:"opposite_key"`
	OppositeCommand string `toml:"opposite_command"`
}

// Jump configures the jump key. An empty Key disables it.
type Jump struct {
	Key     string `toml:"key"`
	Command string `toml:"command"`
}

// Config is a movement table.
type Config struct {
	Pairs []Pair `toml:"pair"`
	Jump  Jump   `toml:"jump"`
}

// DefaultConfig returns the usual WASD table with space as jump.
func DefaultConfig() Config {
	return Config{
		Pairs: []Pair{
			{Key: "w", Command: "forward", OppositeKey: "s", OppositeCommand: "back"},
			{Key: "a", Command: "moveleft", OppositeKey: "d", OppositeCommand: "moveright"},
		},
		Jump: Jump{Key: "space", Command: "jump"},
	}
}

// Validate checks that every key is named and no key appears twice.
func (c Config) Validate() error {
	seen := make(map[string]bool)
	use := func(key, what string) error {
		if key == "" {
			return fmt.Errorf("movement: %s key is empty", what)
		}
		if seen[key] {
			return fmt.Errorf("movement: key %q used twice", key)
		}
		seen[key] = true
		return nil
	}
	for i, p := range c.Pairs {
		if err := use(p.Key, fmt.Sprintf("pair %d", i)); err != nil {
			return err
		}
		if err := use(p.OppositeKey, fmt.Sprintf("pair %d opposite", i)); err != nil {
			return err
		}
		if p.Command == "" || p.OppositeCommand == "" {
			return fmt.Errorf("movement: pair %d has an empty command", i)
		}
	}
	if c.Jump.Key != "" {
		if err := use(c.Jump.Key, "jump"); err != nil {
			return err
		}
		if c.Jump.Command == "" {
			return fmt.Errorf("movement: jump command is empty")
		}
	}
	return nil
}

// Movement is an installed movement table.
type Movement struct {
	reg  *binds.Registry
	keys []string

	directions map[string]bool
	last       string

	onDown      *event.Listener[string]
	jumpUp      *event.Bus[binds.KeyEvent]
	jumpRelease *event.Listener[binds.KeyEvent]
}

// Install binds the keys of cfg on reg, replacing their previous binds.
func Install(reg *binds.Registry, cfg Config) (*Movement, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Movement{
		reg:        reg,
		directions: make(map[string]bool),
	}
	for _, p := range cfg.Pairs {
		if err := m.bindDirection(p.Key, p.Command, p.OppositeKey, p.OppositeCommand); err != nil {
			m.Close()
			return nil, err
		}
		if err := m.bindDirection(p.OppositeKey, p.OppositeCommand, p.Key, p.Command); err != nil {
			m.Close()
			return nil, err
		}
	}

	m.onDown = reg.KeyDown().SubscribeFunc(func(key string) {
		if m.directions[key] {
			m.last = key
		}
	})

	if cfg.Jump.Key != "" {
		if err := m.bindJump(cfg.Jump); err != nil {
			m.Close()
			return nil, err
		}
	}
	logging.Debug("movement installed",
		logging.Int("pairs", len(cfg.Pairs)),
		logging.String("jump", cfg.Jump.Key))
	return m, nil
}

func (m *Movement) bindDirection(key, cmd, oppKey, oppCmd string) error {
	press := func(emit binds.Emit) string {
		if m.reg.IsDown(oppKey) {
			emit("-" + oppCmd)
		}
		return "+" + cmd
	}
	release := func(emit binds.Emit) string {
		emit("-" + cmd)
		if m.reg.IsDown(oppKey) {
			return "+" + oppCmd
		}
		return ""
	}
	if err := m.reg.Bind(key, press, release); err != nil {
		return err
	}
	m.keys = append(m.keys, key)
	m.directions[key] = true
	return nil
}

func (m *Movement) bindJump(j Jump) error {
	m.jumpUp = m.reg.Events().Filter(func(ev binds.KeyEvent) bool {
		return !ev.Down && ev.Key == j.Key
	})
	press := func(emit binds.Emit) string {
		if m.last != "" && !m.anyDirectionDown() && m.jumpRelease == nil {
			dir := m.last
			if err := m.reg.Synthesize(dir, true, emit); err != nil {
				return "+" + j.Command
			}
			m.jumpRelease = m.jumpUp.SubscribeFunc(func(ev binds.KeyEvent) {
				m.jumpRelease = nil
				if !m.reg.IsDown(dir) {
					return
				}
				m.reg.Synthesize(dir, false, ev.Emit)
			}, event.Once())
		}
		return "+" + j.Command
	}
	release := func(binds.Emit) string {
		return "-" + j.Command
	}
	if err := m.reg.Bind(j.Key, press, release); err != nil {
		return err
	}
	m.keys = append(m.keys, j.Key)
	return nil
}

func (m *Movement) anyDirectionDown() bool {
	for key := range m.directions {
		if m.reg.IsDown(key) {
			return true
		}
	}
	return false
}

// Keys returns the keys bound by the table.
func (m *Movement) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Close unbinds the table's keys and drops the direction tracker. A jump
// release still pending stays subscribed: the direction it pressed is held
// in game and is released by the next release of the jump key, after which
// the listener removes itself.
func (m *Movement) Close() {
	for _, key := range m.keys {
		m.reg.Unbind(key)
	}
	m.keys = nil
	if m.onDown != nil {
		m.reg.KeyDown().Unsubscribe(m.onDown)
		m.onDown = nil
	}
}
