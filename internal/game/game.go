// Package game assembles the tree the game sees through the mount: the
// bootstrap autoexec, the bind edge files and the write triggers the game
// uses to talk back.
package game

import (
	"bytes"
	"strings"

	"github.com/huglovefan/cfgfs/internal/binds"
	"github.com/huglovefan/cfgfs/internal/event"
	"github.com/huglovefan/cfgfs/internal/logging"
	"github.com/huglovefan/cfgfs/internal/metrics"
	"github.com/huglovefan/cfgfs/internal/vfs"
)

// Version is reported by /cfg/cfgfs/version.cfg.
var Version = "dev"

// Message is one write to /message/<channel>. A nil Data marks the end of
// the message, sent when the writer closes the file.
type Message struct {
	Channel string
	Data    []byte
}

// Game owns the root of the served tree.
type Game struct {
	reg  *binds.Registry
	root *vfs.Dir
	cfg  *vfs.Dir
	// aliases is /cfg/cfgfs/alias; scripts put exec-able files there.
	aliases *vfs.Dir

	messages *event.Bus[Message]
	console  *event.Bus[string]

	partial        []byte
	autoexecServed bool
}

// New builds the tree around reg:
//
//	/cfg/autoexec.cfg       bootstrap script, gone once read
//	/cfg/binds/             key edge files
//	/cfg/cfgfs/version.cfg
//	/cfg/cfgfs/keys.txt
//	/cfg/cfgfs/alias/       script-defined aliases
//	/message/<channel>      write trigger
//	/console.log            write trigger for con_logfile
func New(reg *binds.Registry) *Game {
	g := &Game{
		reg:      reg,
		root:     vfs.NewDir(),
		cfg:      vfs.NewDir(),
		messages: event.NewBus[Message](),
		console:  event.NewBus[string](),
		aliases:  vfs.NewDir(),
	}

	autoexec := vfs.NewDynamicFile(g.Autoexec)
	autoexec.OnRelease = func(read bool) {
		if !read {
			return
		}
		g.cfg.Remove("autoexec.cfg")
		g.autoexecServed = true
		logging.Info("autoexec consumed")
	}
	g.cfg.Put("autoexec.cfg", autoexec)
	g.cfg.Put("binds", reg.Dir())

	info := vfs.NewDir()
	info.Put("version.cfg", vfs.NewStaticFile("echo cfgfs "+Version+"\n"))
	info.Put("keys.txt", vfs.NewStaticFile(strings.Join(reg.Keys(), "\n")+"\n"))
	info.Put("alias", g.aliases)
	g.cfg.Put("cfgfs", info)

	msg := vfs.NewDir()
	msg.Fallback = g.messageTrigger

	g.root.Put("cfg", g.cfg)
	g.root.Put("message", msg)
	g.root.Put("console.log", vfs.NewTriggerFile(g.writeConsole))
	return g
}

// Root returns the root directory.
func (g *Game) Root() *vfs.Dir {
	return g.root
}

// Registry returns the bind registry the tree was built around.
func (g *Game) Registry() *binds.Registry {
	return g.reg
}

// Aliases returns the /cfg/cfgfs/alias directory.
func (g *Game) Aliases() *vfs.Dir {
	return g.aliases
}

// Messages returns the stream of /message writes.
func (g *Game) Messages() *event.Bus[Message] {
	return g.messages
}

// Console returns the stream of complete console lines.
func (g *Game) Console() *event.Bus[string] {
	return g.console
}

// AutoexecServed reports whether the bootstrap script has been consumed.
func (g *Game) AutoexecServed() bool {
	return g.autoexecServed
}

// Autoexec renders the bootstrap script. The user's own autoexec.cfg is
// executed before the binds are routed.
func (g *Game) Autoexec() string {
	var sb strings.Builder
	sb.WriteString("echo cfgfs: autoexec start\n")
	sb.WriteString("exec autoexec.cfg\n")
	if init := g.reg.InitCommands(); init != "" {
		sb.WriteString(init)
		sb.WriteByte('\n')
	}
	sb.WriteString("echo cfgfs: autoexec end\n")
	return sb.String()
}

// messageTrigger resolves any name under /message. Nothing is kept per
// name; an open handle holds on to its own trigger.
func (g *Game) messageTrigger(channel string) (vfs.Node, bool) {
	f := vfs.NewTriggerFile(func(data []byte) error {
		metrics.RecordMessage("message")
		g.messages.Publish(Message{Channel: channel, Data: append([]byte(nil), data...)})
		return nil
	})
	f.OnRelease = func() {
		g.messages.Publish(Message{Channel: channel})
	}
	return f, true
}

// writeConsole splits log writes into lines. A line may arrive over several
// writes; the tail without a newline is kept for the next one.
func (g *Game) writeConsole(data []byte) error {
	g.partial = append(g.partial, data...)
	for {
		i := bytes.IndexByte(g.partial, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimSuffix(string(g.partial[:i]), "\r")
		g.partial = g.partial[i+1:]
		metrics.RecordMessage("console")
		logging.Debug("console", logging.String("line", line))
		g.console.Publish(line)
	}
	if len(g.partial) == 0 {
		g.partial = nil
	}
	return nil
}
