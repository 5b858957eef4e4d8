package registry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/morezero/service-mirror/pkg/bus"
	"github.com/morezero/service-mirror/pkg/mirror"
)

// Attach subscribes the registry to the runtime's registration and release
// announcements on b.
func (r *Registry) Attach(b mirror.Subscriber) {
	id := "registry." + r.config.RuntimeName
	b.Subscribe(id, r.config.RuntimeName, MethodRegistered, r.handleRegistered)
	b.Subscribe(id, r.config.RuntimeName, MethodReleased, r.handleReleased)
}

func (r *Registry) handleRegistered(msg bus.Message) error {
	ev, err := decodeRegistration(msg)
	if err != nil {
		return err
	}
	_, err = r.Register(ev)
	return err
}

func (r *Registry) handleReleased(msg bus.Message) error {
	var raw json.RawMessage
	if err := bus.DecodeArg(msg, 0, &raw); err != nil {
		return fmt.Errorf("%s - decode release: %w", logPrefix, err)
	}
	name, err := nameOf(raw)
	if err != nil {
		return err
	}
	r.Release(name)
	return nil
}

// decodeRegistration accepts either a bare service name or an object with
// name, type (or typeKey), version and state.
func decodeRegistration(msg bus.Message) (RegistrationEvent, error) {
	var raw json.RawMessage
	if err := bus.DecodeArg(msg, 0, &raw); err != nil {
		return RegistrationEvent{}, fmt.Errorf("%s - decode registration: %w", logPrefix, err)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var name string
		if err := json.Unmarshal(raw, &name); err != nil {
			return RegistrationEvent{}, fmt.Errorf("%s - decode registration: %w", logPrefix, err)
		}
		return RegistrationEvent{Name: name}, nil
	}

	var w wireRegistration
	if err := json.Unmarshal(raw, &w); err != nil {
		return RegistrationEvent{}, fmt.Errorf("%s - decode registration: %w", logPrefix, err)
	}
	ev := RegistrationEvent{Name: w.Name, Type: w.serviceType(), Version: w.Version}
	if s := bytes.TrimSpace(w.State); len(s) > 0 && !bytes.Equal(s, []byte("null")) {
		if err := json.Unmarshal(s, &ev.State); err != nil {
			return RegistrationEvent{}, fmt.Errorf("%s - decode registration state for %s: %w", logPrefix, w.Name, err)
		}
	}
	return ev, nil
}

func nameOf(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var name string
		if err := json.Unmarshal(raw, &name); err != nil {
			return "", fmt.Errorf("%s - decode release: %w", logPrefix, err)
		}
		return name, nil
	}
	var ev ReleaseEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return "", fmt.Errorf("%s - decode release: %w", logPrefix, err)
	}
	return ev.Name, nil
}
