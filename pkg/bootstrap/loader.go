package bootstrap

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/morezero/service-mirror/pkg/mirror"
)

const (
	logPrefix          = "bootstrap:loader"
	defaultRuntimeName = "runtime"
)

// Format is a profile file encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

// FormatFromPath picks the format from a file extension. Unknown extensions
// are read as YAML, which also accepts JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML
	case ".json":
		return FormatJSON
	default:
		return FormatYAML
	}
}

// ParseProfile decodes a profile and validates it.
func ParseProfile(data []byte, format Format) (*Profile, error) {
	var p Profile
	var err error
	switch format {
	case FormatTOML:
		_, err = toml.Decode(string(data), &p)
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&p)
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(&p)
	}
	if err != nil {
		return nil, fmt.Errorf("%s - decode %s profile: %w", logPrefix, format, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// LoadProfile loads the observer profile from file paths or environment.
// It tries paths in order: first any paths passed in, then MIRROR_PROFILE_FILE
// env, then defaults. Files that are missing or fail to parse are skipped; when
// none loads the built-in default profile is returned.
func LoadProfile(paths ...string) (*Profile, error) {
	all := make([]string, 0, len(paths)+4)
	for _, p := range paths {
		if p != "" {
			all = append(all, p)
		}
	}
	if envPath := os.Getenv("MIRROR_PROFILE_FILE"); envPath != "" {
		all = append(all, envPath)
	}
	all = append(all, "config/mirror.yaml", "mirror.yaml", "mirror.toml", "mirror.json")

	for _, p := range all {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}

		profile, err := ParseProfile(data, FormatFromPath(p))
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - Failed to parse profile file %s: %v", logPrefix, p, err))
			continue
		}

		slog.Info(fmt.Sprintf("%s - Loaded observer profile %q from %s", logPrefix, profile.Name, p))
		return MergeProfiles(GetDefaultProfile(), profile), nil
	}

	slog.Info(fmt.Sprintf("%s - Using default observer profile", logPrefix))
	return GetDefaultProfile(), nil
}

// GetDefaultProfile returns the built-in profile: servo position routes and
// the servo mixer's startup requests. Requests without a target go to the
// runtime.
func GetDefaultProfile() *Profile {
	return &Profile{
		Name:        "default",
		Version:     "1.0.0",
		Description: "Servo mixer observer",
		RuntimeName: defaultRuntimeName,
		Types: map[string]TypeProfile{
			"Servo":    {Routes: []mirror.FieldRoute{mirror.ServoEventRoute}},
			"DiyServo": {Routes: []mirror.FieldRoute{mirror.ServoEventRoute}},
		},
		Startup: []StartupRequest{
			{Method: "listAllServos", Subscribe: true},
			{Method: "getPoseFiles", Subscribe: true},
		},
	}
}

// MergeProfiles merges an override profile into a base profile. Types are
// merged per key; startup requests and status sources are replaced when the
// override sets any.
func MergeProfiles(base, override *Profile) *Profile {
	merged := *base

	merged.Types = make(map[string]TypeProfile, len(base.Types)+len(override.Types))
	for typ, tp := range base.Types {
		merged.Types[typ] = tp
	}
	for typ, tp := range override.Types {
		merged.Types[typ] = tp
	}

	if override.Name != "" {
		merged.Name = override.Name
	}
	if override.Version != "" {
		merged.Version = override.Version
	}
	if override.Description != "" {
		merged.Description = override.Description
	}
	if override.RuntimeName != "" {
		merged.RuntimeName = override.RuntimeName
	}
	if len(override.StatusSources) > 0 {
		merged.StatusSources = append([]string(nil), override.StatusSources...)
	}
	if len(override.DefaultRoutes) > 0 {
		merged.DefaultRoutes = append([]mirror.FieldRoute(nil), override.DefaultRoutes...)
	}
	if override.Startup != nil {
		merged.Startup = append([]StartupRequest(nil), override.Startup...)
	}

	return &merged
}
