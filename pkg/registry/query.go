package registry

import (
	"fmt"
	"log/slog"

	masterminds "github.com/Masterminds/semver/v3"
)

const queryLogPrefix = "registry:query"

// ListByType returns registered names of serviceType, in registration order,
// whose reported version satisfies constraint. An empty type matches every
// service and an empty constraint matches every version, including none.
func (r *Registry) ListByType(serviceType, constraint string) ([]string, error) {
	slog.Debug(fmt.Sprintf("%s - type=%s constraint=%s", queryLogPrefix, serviceType, constraint))

	var c *masterminds.Constraints
	if constraint != "" {
		parsed, err := masterminds.NewConstraint(constraint)
		if err != nil {
			return nil, &RegistryError{Code: CodeInvalidArgument, Message: fmt.Sprintf("invalid version constraint %q: %v", constraint, err)}
		}
		c = parsed
	}

	out := []string{}
	for _, info := range r.List() {
		if serviceType != "" && info.Type != serviceType {
			continue
		}
		if c != nil && !satisfies(c, info.Version) {
			continue
		}
		out = append(out, info.Name)
	}
	return out, nil
}

func satisfies(c *masterminds.Constraints, version string) bool {
	if version == "" {
		return false
	}
	v, err := masterminds.NewVersion(version)
	if err != nil {
		return false
	}
	return c.Check(v)
}
