//go:build !linux && !darwin && !freebsd

package fuse

import (
	"fmt"
	"runtime"

	"github.com/huglovefan/cfgfs/internal/adapter"
)

func newGoFuse(*adapter.Adapter, Options) (Backend, error) {
	return nil, fmt.Errorf("%w: gofuse is not available on %s", ErrUnknownBackend, runtime.GOOS)
}
