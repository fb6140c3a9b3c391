// Package binds turns opens and reads of key edge files into key events and
// serves the commands emitted by bound handlers as file content.
//
// Every key in the set owns two files, +<key>.cfg (press) and -<key>.cfg
// (release). The first read of an edge file in a session activates the edge:
// the key state flips, a KeyEvent is published, the bound handler and any
// other listeners emit commands, and the content function drains them.
package binds

import (
	"fmt"
	"strings"

	"github.com/huglovefan/cfgfs/internal/event"
	"github.com/huglovefan/cfgfs/internal/keys"
	"github.com/huglovefan/cfgfs/internal/logging"
	"github.com/huglovefan/cfgfs/internal/metrics"
	"github.com/huglovefan/cfgfs/internal/vfs"
)

// Emit appends one command to the activation in progress.
type Emit func(cmd string)

// Handler runs for one edge of a bound key. A non-empty return value is
// emitted after everything the handler emitted itself.
type Handler func(emit Emit) string

// KeyEvent is published for every activation, including synthesized ones.
// Emit writes into the output of the activation that caused the event.
type KeyEvent struct {
	Key  string
	Down bool
	Emit Emit
}

type edge struct {
	file    *vfs.DynamicFile
	pending Accumulator

	// opens counts handles on the edge file. serviced is set once a session
	// has activated the edge and cleared when the last handle is released.
	opens    int
	serviced bool
}

type keyState struct {
	name    string
	down    bool
	press   Handler
	release Handler
	edges   [2]*edge // [0] release, [1] press
}

func (k *keyState) edge(down bool) *edge {
	if down {
		return k.edges[1]
	}
	return k.edges[0]
}

func (k *keyState) handler(down bool) Handler {
	if down {
		return k.press
	}
	return k.release
}

// Registry owns the key states, the bind table and the binds directory.
// It is not safe for concurrent use; callers serialize requests.
type Registry struct {
	order  []*keyState
	byName map[string]*keyState
	dir    *vfs.Dir

	events  *event.Bus[KeyEvent]
	keyDown *event.Bus[string]
	keyUp   *event.Bus[string]

	downCount int
}

// New creates a registry for the given key names. The binds directory lists
// every press edge, then every release edge, each group in key order.
func New(names []string) *Registry {
	r := &Registry{
		byName: make(map[string]*keyState, len(names)),
		dir:    vfs.NewDir(),
		events: event.NewBus[KeyEvent](),
	}
	r.keyDown = event.Map(r.events.Filter(func(ev KeyEvent) bool { return ev.Down }),
		func(ev KeyEvent) string { return ev.Key })
	r.keyUp = event.Map(r.events.Filter(func(ev KeyEvent) bool { return !ev.Down }),
		func(ev KeyEvent) string { return ev.Key })

	for _, name := range names {
		if _, dup := r.byName[name]; dup {
			continue
		}
		ks := &keyState{name: name}
		r.order = append(r.order, ks)
		r.byName[name] = ks
	}
	for _, down := range []bool{true, false} {
		for _, ks := range r.order {
			e := r.newEdge(ks, down)
			if down {
				ks.edges[1] = e
			} else {
				ks.edges[0] = e
			}
			r.dir.Put(EdgeFileName(ks.name, down), e.file)
		}
	}

	// The bound handler runs before any other listener of the activation.
	r.events.SubscribeFunc(r.runHandler)
	return r
}

// NewDefault creates a registry for the full key set.
func NewDefault() *Registry {
	return New(keys.All())
}

func (r *Registry) newEdge(ks *keyState, down bool) *edge {
	e := &edge{}
	e.file = vfs.NewDynamicFile(func() string {
		if !e.serviced {
			e.serviced = e.opens > 0
			// A fault leaves the edge empty; it is logged by Activate.
			_ = r.Activate(ks.name, down)
		}
		return r.Drain(ks.name, down)
	})
	e.file.OnOpen = func() error {
		e.opens++
		return nil
	}
	e.file.OnRelease = func(bool) {
		if e.opens > 0 {
			e.opens--
		}
		if e.opens == 0 {
			e.serviced = false
			r.Release(ks.name, down)
		}
	}
	return e
}

// EdgeFileName returns the file name of a key edge.
func EdgeFileName(key string, down bool) string {
	return edgeSign(down) + keys.FileName(key) + ".cfg"
}

// ParseEdgeName parses "+w.cfg" or "-w.cfg". It does not check the key
// against a registry.
func ParseEdgeName(name string) (key string, down bool, ok bool) {
	if len(name) < len("+x.cfg") || !strings.HasSuffix(name, ".cfg") {
		return "", false, false
	}
	switch name[0] {
	case '+':
		down = true
	case '-':
		down = false
	default:
		return "", false, false
	}
	key, ok = keys.FromFileName(name[1 : len(name)-len(".cfg")])
	return key, down, ok
}

// Dir returns the binds directory.
func (r *Registry) Dir() *vfs.Dir {
	return r.dir
}

// Events returns the stream of all key events.
func (r *Registry) Events() *event.Bus[KeyEvent] {
	return r.events
}

// KeyDown returns the stream of pressed key names.
func (r *Registry) KeyDown() *event.Bus[string] {
	return r.keyDown
}

// KeyUp returns the stream of released key names.
func (r *Registry) KeyUp() *event.Bus[string] {
	return r.keyUp
}

// Keys returns the registry's key names in order.
func (r *Registry) Keys() []string {
	out := make([]string, len(r.order))
	for i, ks := range r.order {
		out[i] = ks.name
	}
	return out
}

// Has reports whether key belongs to the registry.
func (r *Registry) Has(key string) bool {
	_, ok := r.byName[key]
	return ok
}

func (r *Registry) lookup(key string) (*keyState, error) {
	ks, ok := r.byName[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	return ks, nil
}

// Bind installs the handlers for key, replacing any previous ones. A nil
// handler makes its edge contribute no commands.
func (r *Registry) Bind(key string, onPress, onRelease Handler) error {
	ks, err := r.lookup(key)
	if err != nil {
		return err
	}
	ks.press = onPress
	ks.release = onRelease
	return nil
}

// Unbind removes the handlers of key.
func (r *Registry) Unbind(key string) error {
	return r.Bind(key, nil, nil)
}

// UnbindAll removes every handler. Key states are kept.
func (r *Registry) UnbindAll() {
	for _, ks := range r.order {
		ks.press = nil
		ks.release = nil
	}
}

// Bound reports whether key has a handler for either edge.
func (r *Registry) Bound(key string) bool {
	ks, ok := r.byName[key]
	return ok && (ks.press != nil || ks.release != nil)
}

// Handlers returns the handlers bound to key.
func (r *Registry) Handlers(key string) (onPress, onRelease Handler) {
	ks, ok := r.byName[key]
	if !ok {
		return nil, nil
	}
	return ks.press, ks.release
}

// IsDown reports whether key is held down. Unknown keys are never down.
func (r *Registry) IsDown(key string) bool {
	ks, ok := r.byName[key]
	return ok && ks.down
}

func (r *Registry) setDown(ks *keyState, down bool) {
	if ks.down == down {
		return
	}
	ks.down = down
	if down {
		r.downCount++
	} else {
		r.downCount--
	}
	metrics.SetKeysDown(r.downCount)
}

// Activate reports an edge of key to the registry. The key state is set
// first; then the key event is published with a fresh accumulator as its
// emit target. On success the output is queued for the next Drain of that
// edge. A panic during dispatch discards the output and returns a
// *HandlerFault.
func (r *Registry) Activate(key string, down bool) error {
	ks, err := r.lookup(key)
	if err != nil {
		return err
	}
	metrics.RecordActivation(down)
	logging.Debug("key activation",
		logging.String("key", key),
		logging.Bool("down", down))

	var acc Accumulator
	if err := r.dispatch(ks, down, acc.Append); err != nil {
		metrics.RecordHandlerFault()
		logging.Error("bind handler failed",
			logging.String("key", key),
			logging.Bool("down", down),
			logging.Err(err))
		return err
	}
	ks.edge(down).pending.merge(&acc)
	return nil
}

// Synthesize performs a nested activation of key from inside a handler or
// listener. Its commands go to emit, normally the caller's own Emit.
func (r *Registry) Synthesize(key string, down bool, emit Emit) error {
	ks, err := r.lookup(key)
	if err != nil {
		return err
	}
	logging.Debug("synthesized key activation",
		logging.String("key", key),
		logging.Bool("down", down))
	r.setDown(ks, down)
	r.events.Publish(KeyEvent{Key: ks.name, Down: down, Emit: emit})
	return nil
}

func (r *Registry) dispatch(ks *keyState, down bool, emit Emit) (err error) {
	r.setDown(ks, down)
	defer func() {
		if v := recover(); v != nil {
			err = &HandlerFault{Key: ks.name, Down: down, Value: v}
		}
	}()
	r.events.Publish(KeyEvent{Key: ks.name, Down: down, Emit: emit})
	return nil
}

func (r *Registry) runHandler(ev KeyEvent) {
	ks, ok := r.byName[ev.Key]
	if !ok {
		return
	}
	h := ks.handler(ev.Down)
	if h == nil {
		return
	}
	if last := h(ev.Emit); last != "" {
		ev.Emit(last)
	}
}

// Drain returns the queued output of an edge as newline-terminated commands
// and clears it. A second Drain without an activation in between returns "".
func (r *Registry) Drain(key string, down bool) string {
	ks, ok := r.byName[key]
	if !ok {
		return ""
	}
	p := &ks.edge(down).pending
	n := p.Len()
	if n > 0 && logging.Enabled(logging.DebugLevel) {
		for _, c := range p.Commands() {
			logging.Debug("> " + c)
		}
	}
	metrics.RecordCommands(n)
	return p.Drain()
}

// Release ends an access cycle on an edge and discards any unread output.
func (r *Registry) Release(key string, down bool) {
	ks, ok := r.byName[key]
	if !ok {
		return
	}
	if n := ks.edge(down).pending.Len(); n > 0 {
		logging.Debug("discarding unread commands",
			logging.String("key", key),
			logging.Bool("down", down),
			logging.Int("count", n))
	}
	ks.edge(down).pending.Reset()
}

// Pending returns the number of queued commands for an edge.
func (r *Registry) Pending(key string, down bool) int {
	ks, ok := r.byName[key]
	if !ok {
		return 0
	}
	return ks.edge(down).pending.Len()
}

// InitCommands returns the bootstrap lines that route the game's own key
// events into the edge files, three per key in key order.
func (r *Registry) InitCommands() string {
	lines := make([]string, 0, 3*len(r.order))
	for _, ks := range r.order {
		fn := keys.FileName(ks.name)
		lines = append(lines,
			fmt.Sprintf(`alias "+cfgfs_%s" "exec binds/%s"`, fn, EdgeFileName(ks.name, true)),
			fmt.Sprintf(`alias "-cfgfs_%s" "exec binds/%s"`, fn, EdgeFileName(ks.name, false)),
			fmt.Sprintf(`bind "%s" "+cfgfs_%s"`, ks.name, fn),
		)
	}
	return strings.Join(lines, "\n")
}
