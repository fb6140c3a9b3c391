//go:build !cgo && !windows

package fuse

import (
	"fmt"

	"github.com/huglovefan/cfgfs/internal/adapter"
)

func newCgoFuse(*adapter.Adapter, Options) (Backend, error) {
	return nil, fmt.Errorf("%w: cgofuse needs cgo", ErrUnknownBackend)
}
