package mirror

import (
	"errors"
	"fmt"

	"github.com/morezero/service-mirror/pkg/bus"
)

var (
	// ErrPathNotFound is returned when a routed event lacks the configured path.
	ErrPathNotFound = errors.New("path not found in event")
	// ErrNotAnObject is returned when a path is configured but the event argument is not an object.
	ErrNotAnObject = errors.New("event argument is not an object")
)

// FieldRoute maps an incremental on<Event> method to one state field. With an
// empty Path the first argument is the value; otherwise the first argument must
// be an object and Path names the key holding the value.
type FieldRoute struct {
	Method string `json:"method" yaml:"method" toml:"method"`
	Field  string `json:"field" yaml:"field" toml:"field"`
	Path   string `json:"path,omitempty" yaml:"path,omitempty" toml:"path,omitempty"`
}

// Extract pulls the routed value out of msg.
func (r FieldRoute) Extract(msg bus.Message) (any, error) {
	if r.Path == "" {
		arg, ok := msg.Arg(0)
		if !ok {
			return nil, bus.ErrMissingArg
		}
		return arg, nil
	}

	var obj map[string]any
	if err := bus.DecodeArg(msg, 0, &obj); err != nil {
		if errors.Is(err, bus.ErrMissingArg) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrNotAnObject, err)
	}
	v, ok := obj[r.Path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPathNotFound, r.Path)
	}
	return v, nil
}
