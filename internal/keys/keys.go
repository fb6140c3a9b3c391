// Package keys lists the key names the game accepts in bind commands.
package keys

// names is the fixed key set in bootstrap order. Controller keys differ by
// platform and come last.
var names = append([]string{
	"0", "1", "2", "3", "4", "5", "6", "7", "8", "9",
	"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l", "m",
	"n", "o", "p", "q", "r", "s", "t", "u", "v", "w", "x", "y", "z",

	"kp_ins", "kp_end", "kp_downarrow", "kp_pgdn", "kp_leftarrow", "kp_5",
	"kp_rightarrow", "kp_home", "kp_uparrow", "kp_pgup", "kp_slash",
	"kp_multiply", "kp_minus", "kp_plus", "kp_enter", "kp_del",

	"[", "]", "semicolon", "'", "`", ",", ".", "/", "\\", "-", "=",

	"enter", "space", "backspace", "tab", "capslock", "numlock", "escape",
	"scrolllock", "ins", "del", "home", "end", "pgup", "pgdn", "pause",
	"shift", "rshift", "alt", "ralt", "ctrl", "rctrl", "lwin", "rwin", "app",
	"uparrow", "leftarrow", "downarrow", "rightarrow",

	"f1", "f2", "f3", "f4", "f5", "f6", "f7", "f8", "f9", "f10", "f11", "f12",

	"capslocktoggle", "numlocktoggle", "scrolllocktoggle",

	"mouse1", "mouse2", "mouse3", "mouse4", "mouse5",
	"mwheelup", "mwheeldown",
}, controllerKeys...)

var index = func() map[string]int {
	m := make(map[string]int, len(names))
	for i, n := range names {
		m[n] = i
	}
	return m
}()

// All returns the key set in its fixed order.
func All() []string {
	out := make([]string, len(names))
	copy(out, names)
	return out
}

// Valid reports whether name is in the key set.
func Valid(name string) bool {
	_, ok := index[name]
	return ok
}

// Index returns the position of name in the key set, or -1.
func Index(name string) int {
	if i, ok := index[name]; ok {
		return i
	}
	return -1
}

// fileNames renames keys that cannot appear in a path component.
var fileNames = map[string]string{
	"/":  "slash",
	"\\": "backslash",
}

var fromFileNames = func() map[string]string {
	m := make(map[string]string, len(fileNames))
	for k, v := range fileNames {
		m[v] = k
	}
	return m
}()

// FileName returns the path-safe spelling of a key.
func FileName(key string) string {
	if n, ok := fileNames[key]; ok {
		return n
	}
	return key
}

// FromFileName maps a path-safe spelling back to a key in the set.
func FromFileName(name string) (string, bool) {
	if k, ok := fromFileNames[name]; ok {
		return k, true
	}
	if _, renamed := fileNames[name]; renamed {
		return "", false
	}
	return name, Valid(name)
}
