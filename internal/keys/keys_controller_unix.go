//go:build linux || freebsd

package keys

var controllerKeys = []string{
	"a_button", "b_button", "x_button", "y_button", "l_shoulder",
	"r_shoulder", "back", "start", "stick1", "stick2",
}
