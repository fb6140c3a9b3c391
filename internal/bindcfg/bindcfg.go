// Package bindcfg loads a static bind table from TOML.
//
//	default_movement = false
//
//	[[pair]]
//	key = "w"
//	command = "forward"
//	opposite_key = "s"
//	opposite_command = "back"
//
//	[jump]
//	key = "space"
//	command = "jump"
//
//	[[bind]]
//	key = "mouse1"
//	command = "+attack"          # press +attack, release -attack
//
//	[[bind]]
//	key = "f"
//	press = ["say hi", "echo pressed f"]
//	release = ["echo released f"]
package bindcfg

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/huglovefan/cfgfs/internal/binds"
	"github.com/huglovefan/cfgfs/internal/keys"
	"github.com/huglovefan/cfgfs/internal/logging"
	"github.com/huglovefan/cfgfs/internal/movement"
)

// Bind is one static key binding.
type Bind struct {
	Key string `toml:"key"`
	// Command is shorthand: "+x" presses +x and releases -x, anything else
	// runs on press only.
	Command string   `toml:"command"`
	Press   []string `toml:"press"`
	Release []string `toml:"release"`
}

// Table is a decoded bind table file.
type Table struct {
	DefaultMovement bool            `toml:"default_movement"`
	Pairs           []movement.Pair `toml:"pair"`
	Jump            movement.Jump   `toml:"jump"`
	Binds           []Bind          `toml:"bind"`
}

// Load decodes and validates the file at path.
func Load(path string) (*Table, error) {
	var t Table
	md, err := toml.DecodeFile(path, &t)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := checkUndecoded(md); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("validate %s: %w", path, err)
	}
	return &t, nil
}

// Parse decodes and validates a table from a string.
func Parse(data string) (*Table, error) {
	var t Table
	md, err := toml.Decode(data, &t)
	if err != nil {
		return nil, err
	}
	if err := checkUndecoded(md); err != nil {
		return nil, err
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

func checkUndecoded(md toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}
	names := make([]string, len(undecoded))
	for i, k := range undecoded {
		names[i] = k.String()
	}
	sort.Strings(names)
	return fmt.Errorf("unknown keys: %s", strings.Join(names, ", "))
}

// Movement returns the movement table the file selects.
func (t *Table) Movement() movement.Config {
	if t.DefaultMovement {
		return movement.DefaultConfig()
	}
	return movement.Config{Pairs: t.Pairs, Jump: t.Jump}
}

// Validate checks key names and that no key is bound twice.
func (t *Table) Validate() error {
	mv := t.Movement()
	if err := mv.Validate(); err != nil {
		return err
	}
	used := make(map[string]string)
	claim := func(key, by string) error {
		if !keys.Valid(key) {
			return fmt.Errorf("%s: unknown key %q", by, key)
		}
		if prev, ok := used[key]; ok {
			return fmt.Errorf("%s: key %q already bound by %s", by, key, prev)
		}
		used[key] = by
		return nil
	}
	for i, p := range mv.Pairs {
		by := fmt.Sprintf("pair %d", i)
		if err := claim(p.Key, by); err != nil {
			return err
		}
		if err := claim(p.OppositeKey, by); err != nil {
			return err
		}
	}
	if mv.Jump.Key != "" {
		if err := claim(mv.Jump.Key, "jump"); err != nil {
			return err
		}
	}
	for i, b := range t.Binds {
		by := fmt.Sprintf("bind %d", i)
		if err := claim(b.Key, by); err != nil {
			return err
		}
		if b.Command != "" && (len(b.Press) > 0 || len(b.Release) > 0) {
			return fmt.Errorf("%s: command cannot be combined with press or release", by)
		}
	}
	return nil
}

// handlers turns a Bind into registry handlers.
func (b Bind) handlers() (press, release binds.Handler) {
	pressCmds, releaseCmds := b.Press, b.Release
	if b.Command != "" {
		pressCmds = []string{b.Command}
		if strings.HasPrefix(b.Command, "+") {
			releaseCmds = []string{"-" + b.Command[1:]}
		}
	}
	return emitter(pressCmds), emitter(releaseCmds)
}

func emitter(cmds []string) binds.Handler {
	if len(cmds) == 0 {
		return nil
	}
	cmds = append([]string(nil), cmds...)
	return func(emit binds.Emit) string {
		for _, c := range cmds {
			emit(c)
		}
		return ""
	}
}

// Applied is a table installed on a registry.
type Applied struct {
	reg  *binds.Registry
	mv   *movement.Movement
	keys []string
}

// Apply installs the table on reg.
func (t *Table) Apply(reg *binds.Registry) (*Applied, error) {
	a := &Applied{reg: reg}
	mv, err := movement.Install(reg, t.Movement())
	if err != nil {
		return nil, err
	}
	a.mv = mv
	for _, b := range t.Binds {
		press, release := b.handlers()
		if err := reg.Bind(b.Key, press, release); err != nil {
			a.Remove()
			return nil, err
		}
		a.keys = append(a.keys, b.Key)
	}
	logging.Info("bind table applied",
		logging.Int("movement_keys", len(mv.Keys())),
		logging.Int("binds", len(a.keys)))
	return a, nil
}

// Remove unbinds everything the table installed.
func (a *Applied) Remove() {
	if a.mv != nil {
		a.mv.Close()
		a.mv = nil
	}
	for _, k := range a.keys {
		a.reg.Unbind(k)
	}
	a.keys = nil
}
