package binds

import "strings"

// Accumulator collects the commands emitted for one key edge until they are
// drained into file content.
type Accumulator struct {
	cmds []string
}

// Append adds a command. It is the Emit target of an activation.
func (a *Accumulator) Append(cmd string) {
	a.cmds = append(a.cmds, cmd)
}

// Len returns the number of pending commands.
func (a *Accumulator) Len() int {
	return len(a.cmds)
}

// Commands returns a copy of the pending commands.
func (a *Accumulator) Commands() []string {
	out := make([]string, len(a.cmds))
	copy(out, a.cmds)
	return out
}

// Reset discards pending commands.
func (a *Accumulator) Reset() {
	a.cmds = nil
}

// merge moves the commands of other to the end of a.
func (a *Accumulator) merge(other *Accumulator) {
	a.cmds = append(a.cmds, other.cmds...)
}

// Drain renders the pending commands, each followed by a newline, and clears
// them. An empty accumulator renders as "".
func (a *Accumulator) Drain() string {
	if len(a.cmds) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, c := range a.cmds {
		sb.WriteString(c)
		sb.WriteByte('\n')
	}
	a.cmds = nil
	return sb.String()
}
