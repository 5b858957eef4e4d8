// Package naming provides service name parsing and display helpers.
package naming

import (
	"fmt"
	"regexp"
	"strings"
)

const logPrefix = "naming:naming"

// ServiceRef holds the parsed components of a service name.
type ServiceRef struct {
	// Full name as addressed on the bus (e.g., "servo1@pi-lab")
	Name string
	// Name without the host qualifier (e.g., "servo1")
	Short string
	// Host qualifier; empty when the name is unqualified
	Host string
}

var (
	shortNameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)
	hostRegex      = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)
)

// Parse parses and validates a service name of the form "name" or
// "name@host". It is strict and meant for names this process chooses; names
// announced by the runtime go through Describe.
func Parse(raw string) (*ServiceRef, error) {
	if raw == "" {
		return nil, fmt.Errorf("%s - empty service name", logPrefix)
	}

	short := raw
	host := ""
	if at := strings.Index(raw, "@"); at != -1 {
		short = raw[:at]
		host = raw[at+1:]
		if host == "" || !hostRegex.MatchString(host) {
			return nil, fmt.Errorf("%s - invalid host qualifier: %s", logPrefix, raw)
		}
	}

	if !shortNameRegex.MatchString(short) {
		return nil, fmt.Errorf("%s - invalid service name: %s", logPrefix, raw)
	}

	return &ServiceRef{Name: raw, Short: short, Host: host}, nil
}

// Describe splits an announced name into its display parts without
// validating it. Name is kept exactly as given.
func Describe(name string) ServiceRef {
	ref := ServiceRef{Name: name, Short: name}
	if at := strings.Index(name, "@"); at != -1 {
		ref.Short = name[:at]
		ref.Host = name[at+1:]
	}
	return ref
}

// ShortName strips the "@host" qualifier used for display. Names without a
// qualifier are returned unchanged.
func ShortName(name string) string {
	if at := strings.Index(name, "@"); at != -1 {
		return name[:at]
	}
	return name
}

// Qualify builds "name@host"; an empty host returns name unchanged.
func Qualify(name, host string) string {
	if host == "" {
		return name
	}
	return name + "@" + host
}

// Validate reports whether name is an acceptable service name.
func Validate(name string) bool {
	_, err := Parse(name)
	return err == nil
}
