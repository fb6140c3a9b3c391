//go:build !linux && !freebsd

package keys

var controllerKeys = []string{
	"joy1", "joy2", "joy3", "joy4", "joy5",
	"joy6", "joy7", "joy8", "joy9", "joy10",
}
