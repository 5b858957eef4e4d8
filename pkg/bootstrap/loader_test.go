package bootstrap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/morezero/service-mirror/pkg/mirror"
)

func TestGetDefaultProfile(t *testing.T) {
	p := GetDefaultProfile()

	if p.Version != "1.0.0" {
		t.Errorf("expected version 1.0.0, got %s", p.Version)
	}
	if p.Runtime() != "runtime" {
		t.Errorf("expected runtime name runtime, got %s", p.Runtime())
	}

	servo, ok := p.Types["Servo"]
	if !ok {
		t.Fatal("expected Servo type profile")
	}
	if len(servo.Routes) != 1 || servo.Routes[0] != mirror.ServoEventRoute {
		t.Errorf("expected servo event route, got %+v", servo.Routes)
	}

	if len(p.Startup) != 2 || p.Startup[0].Method != "listAllServos" || p.Startup[1].Method != "getPoseFiles" {
		t.Errorf("expected listAllServos and getPoseFiles startup requests, got %+v", p.Startup)
	}
	if got := p.Sources(); len(got) != 1 || got[0] != "runtime" {
		t.Errorf("expected status sources [runtime], got %v", got)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("default profile invalid: %v", err)
	}
}

const yamlProfile = `
name: lab
version: 2.0.0
runtimeName: runtime@pi
statusSources: [runtime@pi, webgui@pi]
types:
  InMoov2Hand:
    routes:
      - method: onMoveTo
        field: moving
startup:
  - method: listAllServos
    subscribe: true
`

const tomlProfile = `
name = "lab"
version = "2.0.0"
runtimeName = "runtime@pi"
statusSources = ["runtime@pi", "webgui@pi"]

[types.InMoov2Hand]
routes = [{ method = "onMoveTo", field = "moving" }]

[[startup]]
method = "listAllServos"
subscribe = true
`

const jsonProfile = `{
  "name": "lab",
  "version": "2.0.0",
  "runtimeName": "runtime@pi",
  "statusSources": ["runtime@pi", "webgui@pi"],
  "types": {"InMoov2Hand": {"routes": [{"method": "onMoveTo", "field": "moving"}]}},
  "startup": [{"method": "listAllServos", "subscribe": true}]
}`

func TestParseProfile_AllFormats(t *testing.T) {
	tests := []struct {
		format Format
		data   string
	}{
		{FormatYAML, yamlProfile},
		{FormatTOML, tomlProfile},
		{FormatJSON, jsonProfile},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			p, err := ParseProfile([]byte(tt.data), tt.format)
			if err != nil {
				t.Fatalf("bootstrap:loader_test - ParseProfile failed: %v", err)
			}
			if p.Name != "lab" || p.Runtime() != "runtime@pi" {
				t.Errorf("bootstrap:loader_test - name/runtime = %s/%s", p.Name, p.Runtime())
			}
			if len(p.StatusSources) != 2 || p.StatusSources[1] != "webgui@pi" {
				t.Errorf("bootstrap:loader_test - statusSources = %v", p.StatusSources)
			}
			hand := p.Types["InMoov2Hand"]
			if len(hand.Routes) != 1 || hand.Routes[0].Method != "onMoveTo" || hand.Routes[0].Field != "moving" {
				t.Errorf("bootstrap:loader_test - hand routes = %+v", hand.Routes)
			}
			if len(p.Startup) != 1 || !p.Startup[0].Subscribe {
				t.Errorf("bootstrap:loader_test - startup = %+v", p.Startup)
			}
		})
	}
}

func TestParseProfile_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		data   string
	}{
		{"unknown yaml field", FormatYAML, "nmae: typo\n"},
		{"unknown json field", FormatJSON, `{"nmae": "typo"}`},
		{"bad toml", FormatTOML, "name = \n"},
		{"route without field", FormatYAML, "defaultRoutes:\n  - method: onFoo\n"},
		{"reserved snapshot method", FormatYAML, "defaultRoutes:\n  - method: onState\n    field: x\n"},
		{"startup without method", FormatJSON, `{"startup": [{"target": "runtime"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseProfile([]byte(tt.data), tt.format); err == nil {
				t.Errorf("bootstrap:loader_test - expected error")
			}
		})
	}
}

func TestFormatFromPath(t *testing.T) {
	tests := map[string]Format{
		"mirror.yaml":        FormatYAML,
		"mirror.yml":         FormatYAML,
		"config/mirror.TOML": FormatTOML,
		"mirror.json":        FormatJSON,
		"mirror":             FormatYAML,
	}
	for path, want := range tests {
		if got := FormatFromPath(path); got != want {
			t.Errorf("FormatFromPath(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestLoadProfile_ExplicitPathMergesWithDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lab.toml")
	if err := os.WriteFile(path, []byte(tomlProfile), 0644); err != nil {
		t.Fatalf("bootstrap:loader_test - write failed: %v", err)
	}
	t.Setenv("MIRROR_PROFILE_FILE", "")

	p, err := LoadProfile(path)
	if err != nil {
		t.Fatalf("bootstrap:loader_test - LoadProfile failed: %v", err)
	}
	if p.Name != "lab" {
		t.Errorf("expected profile lab, got %s", p.Name)
	}
	if _, ok := p.Types["Servo"]; !ok {
		t.Error("expected default Servo routes to survive the merge")
	}
	if _, ok := p.Types["InMoov2Hand"]; !ok {
		t.Error("expected InMoov2Hand routes from the file")
	}
	if len(p.Startup) != 1 {
		t.Errorf("expected file startup requests to replace defaults, got %+v", p.Startup)
	}
}

func TestLoadProfile_SkipsBrokenFilesAndFallsBack(t *testing.T) {
	dir := t.TempDir()
	broken := filepath.Join(dir, "broken.yaml")
	if err := os.WriteFile(broken, []byte("types: [not, a, map]\n"), 0644); err != nil {
		t.Fatalf("bootstrap:loader_test - write failed: %v", err)
	}
	t.Setenv("MIRROR_PROFILE_FILE", filepath.Join(dir, "missing.json"))
	t.Chdir(dir)

	p, err := LoadProfile(broken)
	if err != nil {
		t.Fatalf("bootstrap:loader_test - LoadProfile failed: %v", err)
	}
	if p.Name != "default" {
		t.Errorf("expected default profile, got %s", p.Name)
	}
}

func TestMergeProfiles(t *testing.T) {
	base := GetDefaultProfile()
	override := &Profile{
		RuntimeName:   "runtime@lab",
		DefaultRoutes: []mirror.FieldRoute{{Method: "onStatusChanged", Field: "status"}},
		Types:         map[string]TypeProfile{"Servo": {Routes: nil}},
	}

	merged := MergeProfiles(base, override)

	if merged.Runtime() != "runtime@lab" {
		t.Errorf("expected runtime@lab, got %s", merged.Runtime())
	}
	if len(merged.Types["Servo"].Routes) != 0 {
		t.Errorf("expected Servo routes overridden, got %+v", merged.Types["Servo"].Routes)
	}
	if len(merged.Types["DiyServo"].Routes) != 1 {
		t.Error("expected DiyServo routes kept from base")
	}
	if len(merged.Startup) != 2 {
		t.Errorf("expected base startup kept when override has none, got %d", len(merged.Startup))
	}
	if len(base.Types["Servo"].Routes) != 1 {
		t.Error("merge must not modify the base profile")
	}

	f := merged.Factory()
	if routes := f.RoutesFor("Arduino"); len(routes) != 1 || routes[0].Field != "status" {
		t.Errorf("expected default routes for unknown types, got %+v", routes)
	}
}
