package binds

import (
	"errors"
	"fmt"
)

// ErrUnknownKey is returned for key names outside the registry's key set.
var ErrUnknownKey = errors.New("unknown key")

// HandlerFault is returned when a bind handler or key listener panics during
// an activation. The activation's output is discarded; the key state change
// is kept.
type HandlerFault struct {
	Key   string
	Down  bool
	Value any
}

func (f *HandlerFault) Error() string {
	return fmt.Sprintf("handler for %s%s failed: %v", edgeSign(f.Down), f.Key, f.Value)
}

// Unwrap returns the panic value when it is an error.
func (f *HandlerFault) Unwrap() error {
	if err, ok := f.Value.(error); ok {
		return err
	}
	return nil
}

func edgeSign(down bool) string {
	if down {
		return "+"
	}
	return "-"
}
