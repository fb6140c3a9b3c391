// Package script runs a Lua bind script.
//
// The script sees these globals:
//
//	bind(key, press, release)  press/release: function(emit) or command string
//	unbind(key)
//	is_down(key)
//	press(key), release(key)   synthesize an edge inside a key handler
//	alias(name, fn)            serve fn's commands as cfgfs/alias/<name>.cfg;
//	                           a nil fn removes the alias
//	on_message(fn)             fn(channel, data); data is nil at end of message
//	on_console(fn)             fn(line)
//	log(...)
//
// A handler receives emit and may return one more command. Lua errors in a
// handler are raised as handler faults; errors in message and console
// callbacks are logged.
package script

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/huglovefan/cfgfs/internal/binds"
	"github.com/huglovefan/cfgfs/internal/event"
	"github.com/huglovefan/cfgfs/internal/game"
	"github.com/huglovefan/cfgfs/internal/logging"
	"github.com/huglovefan/cfgfs/internal/metrics"
	"github.com/huglovefan/cfgfs/internal/vfs"
)

// DefaultTimeout bounds one call into the script, nested calls included.
const DefaultTimeout = 2 * time.Second

// ErrOutsideHandler is raised by press and release when no key handler is
// running.
var ErrOutsideHandler = errors.New("press and release are only available inside key handlers")

// Script is a loaded bind script.
type Script struct {
	L       *lua.LState
	name    string
	g       *game.Game
	reg     *binds.Registry
	timeout time.Duration

	bound map[string]bool
	// saved holds the handlers a key had before the script first touched
	// it; Close puts them back.
	saved     map[string][2]binds.Handler
	aliases   map[string]bool
	onMessage *event.Listener[game.Message]
	onConsole *event.Listener[string]

	// emit is the output of the handler currently running; depth counts
	// nested calls into Lua.
	emit  binds.Emit
	depth int
}

// Option configures a Script.
type Option func(*Script)

// WithTimeout sets the time limit of one call into the script.
func WithTimeout(d time.Duration) Option {
	return func(s *Script) {
		s.timeout = d
	}
}

func newScript(g *game.Game, name string, opts ...Option) *Script {
	s := &Script{
		name:    name,
		g:       g,
		reg:     g.Registry(),
		timeout: DefaultTimeout,
		bound:   make(map[string]bool),
		saved:   make(map[string][2]binds.Handler),
		aliases: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.L = lua.NewState(lua.Options{SkipOpenLibs: true})
	lua.OpenBase(s.L)
	lua.OpenTable(s.L)
	lua.OpenString(s.L)
	lua.OpenMath(s.L)
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "module"} {
		s.L.SetGlobal(name, lua.LNil)
	}

	s.L.SetGlobal("bind", s.L.NewFunction(s.luaBind))
	s.L.SetGlobal("unbind", s.L.NewFunction(s.luaUnbind))
	s.L.SetGlobal("is_down", s.L.NewFunction(s.luaIsDown))
	s.L.SetGlobal("press", s.L.NewFunction(s.luaSynthesize("press", true)))
	s.L.SetGlobal("release", s.L.NewFunction(s.luaSynthesize("release", false)))
	s.L.SetGlobal("alias", s.L.NewFunction(s.luaAlias))
	s.L.SetGlobal("on_message", s.L.NewFunction(s.luaOnMessage))
	s.L.SetGlobal("on_console", s.L.NewFunction(s.luaOnConsole))
	s.L.SetGlobal("log", s.L.NewFunction(s.luaLog))
	return s
}

// Load runs the script file at path against g's registry.
func Load(g *game.Game, path string, opts ...Option) (*Script, error) {
	s := newScript(g, path, opts...)
	if err := s.run(func() error { return s.L.DoFile(path) }); err != nil {
		s.Close()
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	logging.Info("script loaded",
		logging.String("script", path),
		logging.Int("binds", len(s.bound)))
	return s, nil
}

// LoadString runs code as a script named name.
func LoadString(g *game.Game, name, code string, opts ...Option) (*Script, error) {
	s := newScript(g, name, opts...)
	if err := s.run(func() error { return s.L.DoString(code) }); err != nil {
		s.Close()
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	return s, nil
}

// Close restores the handlers the script replaced, drops its callbacks and
// frees the state.
func (s *Script) Close() {
	for key, h := range s.saved {
		s.reg.Bind(key, h[0], h[1])
	}
	s.saved = nil
	s.bound = nil
	for name := range s.aliases {
		s.g.Aliases().Remove(name + ".cfg")
	}
	s.aliases = nil
	if s.onMessage != nil {
		s.g.Messages().Unsubscribe(s.onMessage)
		s.onMessage = nil
	}
	if s.onConsole != nil {
		s.g.Console().Unsubscribe(s.onConsole)
		s.onConsole = nil
	}
	s.L.Close()
}

// Keys returns the keys the script has bound.
func (s *Script) Keys() []string {
	out := make([]string, 0, len(s.bound))
	for k := range s.bound {
		out = append(out, k)
	}
	return out
}

// run calls into Lua with the script's time limit applied to the outermost
// call and Go panics turned into errors.
func (s *Script) run(fn func() error) (err error) {
	if s.depth == 0 && s.timeout > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		s.L.SetContext(ctx)
		defer func() {
			s.L.RemoveContext()
			cancel()
		}()
	}
	s.depth++
	defer func() {
		s.depth--
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn()
}

func (s *Script) call(fn *lua.LFunction, args ...lua.LValue) (lua.LValue, error) {
	var ret lua.LValue = lua.LNil
	err := s.run(func() error {
		if err := s.L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, args...); err != nil {
			return err
		}
		ret = s.L.Get(-1)
		s.L.Pop(1)
		return nil
	})
	return ret, err
}

// handler adapts a Lua value to a bind handler. Strings are emitted as is.
func (s *Script) handler(v lua.LValue) (binds.Handler, error) {
	switch v := v.(type) {
	case *lua.LNilType:
		return nil, nil
	case lua.LString:
		cmd := string(v)
		return func(binds.Emit) string { return cmd }, nil
	case *lua.LFunction:
		return func(emit binds.Emit) string {
			prev := s.emit
			s.emit = emit
			defer func() { s.emit = prev }()

			emitFn := s.L.NewFunction(func(L *lua.LState) int {
				emit(L.CheckString(1))
				return 0
			})
			ret, err := s.call(v, emitFn)
			if err != nil {
				panic(err)
			}
			if str, ok := ret.(lua.LString); ok {
				return string(str)
			}
			return ""
		}, nil
	default:
		return nil, fmt.Errorf("handler must be a function or string, got %s", v.Type())
	}
}

func (s *Script) luaBind(L *lua.LState) int {
	key := L.CheckString(1)
	press, err := s.handler(L.Get(2))
	if err != nil {
		L.ArgError(2, err.Error())
		return 0
	}
	release, err := s.handler(L.Get(3))
	if err != nil {
		L.ArgError(3, err.Error())
		return 0
	}
	if !s.reg.Has(key) {
		L.RaiseError("bind: %v: %q", binds.ErrUnknownKey, key)
		return 0
	}
	s.save(key)
	s.reg.Bind(key, press, release)
	s.bound[key] = true
	return 0
}

func (s *Script) save(key string) {
	if _, ok := s.saved[key]; ok {
		return
	}
	press, release := s.reg.Handlers(key)
	s.saved[key] = [2]binds.Handler{press, release}
}

func (s *Script) luaUnbind(L *lua.LState) int {
	key := L.CheckString(1)
	if !s.reg.Has(key) {
		L.RaiseError("unbind: %v: %q", binds.ErrUnknownKey, key)
		return 0
	}
	s.save(key)
	s.reg.Unbind(key)
	delete(s.bound, key)
	return 0
}

func (s *Script) luaAlias(L *lua.LState) int {
	name := L.CheckString(1)
	if name == "" || strings.ContainsAny(name, "/\\\x00") {
		L.ArgError(1, fmt.Sprintf("invalid alias name %q", name))
		return 0
	}
	h, err := s.handler(L.Get(2))
	if err != nil {
		L.ArgError(2, err.Error())
		return 0
	}
	file := name + ".cfg"
	if h == nil {
		s.g.Aliases().Remove(file)
		delete(s.aliases, name)
		return 0
	}
	s.g.Aliases().Put(file, vfs.NewDynamicFile(func() string {
		return s.runAlias(name, h)
	}))
	s.aliases[name] = true
	return 0
}

// runAlias renders one exec of an alias. A failing handler serves nothing.
func (s *Script) runAlias(name string, h binds.Handler) (out string) {
	var acc binds.Accumulator
	defer func() {
		if v := recover(); v != nil {
			metrics.RecordHandlerFault()
			logging.Error("alias failed",
				logging.String("script", s.name),
				logging.String("alias", name),
				logging.Any("error", v))
			out = ""
		}
	}()
	if last := h(acc.Append); last != "" {
		acc.Append(last)
	}
	return acc.Drain()
}

func (s *Script) luaIsDown(L *lua.LState) int {
	L.Push(lua.LBool(s.reg.IsDown(L.CheckString(1))))
	return 1
}

func (s *Script) luaSynthesize(name string, down bool) lua.LGFunction {
	return func(L *lua.LState) int {
		key := L.CheckString(1)
		if s.emit == nil {
			L.RaiseError("%s(%q): %v", name, key, ErrOutsideHandler)
			return 0
		}
		if err := s.reg.Synthesize(key, down, s.emit); err != nil {
			L.RaiseError("%v", err)
		}
		return 0
	}
}

func (s *Script) luaOnMessage(L *lua.LState) int {
	fn := L.CheckFunction(1)
	if s.onMessage != nil {
		s.g.Messages().Unsubscribe(s.onMessage)
	}
	s.onMessage = s.g.Messages().SubscribeFunc(func(m game.Message) {
		var data lua.LValue = lua.LNil
		if m.Data != nil {
			data = lua.LString(m.Data)
		}
		if _, err := s.call(fn, lua.LString(m.Channel), data); err != nil {
			logging.Error("message callback failed",
				logging.String("script", s.name),
				logging.String("channel", m.Channel),
				logging.Err(err))
		}
	})
	return 0
}

func (s *Script) luaOnConsole(L *lua.LState) int {
	fn := L.CheckFunction(1)
	if s.onConsole != nil {
		s.g.Console().Unsubscribe(s.onConsole)
	}
	s.onConsole = s.g.Console().SubscribeFunc(func(line string) {
		if _, err := s.call(fn, lua.LString(line)); err != nil {
			logging.Error("console callback failed",
				logging.String("script", s.name),
				logging.Err(err))
		}
	})
	return 0
}

func (s *Script) luaLog(L *lua.LState) int {
	parts := make([]string, L.GetTop())
	for i := range parts {
		parts[i] = L.ToStringMeta(L.Get(i + 1)).String()
	}
	logging.Info(strings.Join(parts, " "), logging.String("script", s.name))
	return 0
}
