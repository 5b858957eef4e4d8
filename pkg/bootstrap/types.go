// Package bootstrap loads the observer profile: which field routes each
// service type gets and which requests are sent to the runtime at startup.
package bootstrap

import (
	"fmt"

	"github.com/morezero/service-mirror/pkg/mirror"
)

// TypeProfile configures mirrors of one service type.
type TypeProfile struct {
	Routes []mirror.FieldRoute `json:"routes" yaml:"routes" toml:"routes"`
}

// StartupRequest is sent to the runtime once the observer is connected. With
// Subscribe set, the callback method (e.g. listAllServos -> onListAllServos) is
// subscribed before the request goes out.
type StartupRequest struct {
	Target    string `json:"target,omitempty" yaml:"target,omitempty" toml:"target,omitempty"`
	Method    string `json:"method" yaml:"method" toml:"method"`
	Args      []any  `json:"args,omitempty" yaml:"args,omitempty" toml:"args,omitempty"`
	Subscribe bool   `json:"subscribe,omitempty" yaml:"subscribe,omitempty" toml:"subscribe,omitempty"`
}

// Profile is the root observer configuration.
type Profile struct {
	Name          string                 `json:"name" yaml:"name" toml:"name"`
	Version       string                 `json:"version" yaml:"version" toml:"version"`
	Description   string                 `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
	RuntimeName   string                 `json:"runtimeName,omitempty" yaml:"runtimeName,omitempty" toml:"runtimeName,omitempty"`
	StatusSources []string               `json:"statusSources,omitempty" yaml:"statusSources,omitempty" toml:"statusSources,omitempty"`
	Types         map[string]TypeProfile `json:"types,omitempty" yaml:"types,omitempty" toml:"types,omitempty"`
	DefaultRoutes []mirror.FieldRoute    `json:"defaultRoutes,omitempty" yaml:"defaultRoutes,omitempty" toml:"defaultRoutes,omitempty"`
	Startup       []StartupRequest       `json:"startup,omitempty" yaml:"startup,omitempty" toml:"startup,omitempty"`
}

// Factory builds a mirror factory from the profile's routes.
func (p *Profile) Factory() *mirror.Factory {
	byType := make(map[string][]mirror.FieldRoute, len(p.Types))
	for typ, tp := range p.Types {
		byType[typ] = tp.Routes
	}
	return mirror.NewFactory(mirror.FactoryParams{RoutesByType: byType, DefaultRoutes: p.DefaultRoutes})
}

// Runtime returns the configured runtime name, defaulting to "runtime".
func (p *Profile) Runtime() string {
	if p.RuntimeName == "" {
		return defaultRuntimeName
	}
	return p.RuntimeName
}

// Sources returns the services whose status events are aggregated. The
// runtime is used when none are configured.
func (p *Profile) Sources() []string {
	if len(p.StatusSources) == 0 {
		return []string{p.Runtime()}
	}
	return append([]string(nil), p.StatusSources...)
}

// Validate checks that every route and startup request is addressable.
func (p *Profile) Validate() error {
	check := func(where string, routes []mirror.FieldRoute) error {
		for i, r := range routes {
			if r.Method == "" || r.Field == "" {
				return fmt.Errorf("%s - %s route %d: method and field are required", logPrefix, where, i)
			}
			if r.Method == mirror.MethodState {
				return fmt.Errorf("%s - %s route %d: %s is reserved for snapshots", logPrefix, where, i, mirror.MethodState)
			}
		}
		return nil
	}
	for typ, tp := range p.Types {
		if err := check("type "+typ, tp.Routes); err != nil {
			return err
		}
	}
	if err := check("default", p.DefaultRoutes); err != nil {
		return err
	}
	for i, s := range p.Startup {
		if s.Method == "" {
			return fmt.Errorf("%s - startup request %d: method is required", logPrefix, i)
		}
	}
	return nil
}
