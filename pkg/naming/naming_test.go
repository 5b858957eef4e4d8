package naming

import (
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantShort string
		wantHost  string
		wantErr   bool
	}{
		{name: "plain", input: "servo1", wantShort: "servo1"},
		{name: "qualified", input: "servo1@pi-lab", wantShort: "servo1", wantHost: "pi-lab"},
		{name: "dotted", input: "i01.head.jaw@host.local", wantShort: "i01.head.jaw", wantHost: "host.local"},
		{name: "surrounding whitespace", input: "  runtime ", wantErr: true},
		{name: "empty", input: "", wantErr: true},
		{name: "empty host", input: "servo1@", wantErr: true},
		{name: "empty name", input: "@host", wantErr: true},
		{name: "bad characters", input: "servo 1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("naming:naming_test - Parse(%q) expected error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("naming:naming_test - Parse(%q) unexpected error: %v", tt.input, err)
			}
			if got.Short != tt.wantShort {
				t.Errorf("naming:naming_test - Short = %q, want %q", got.Short, tt.wantShort)
			}
			if got.Host != tt.wantHost {
				t.Errorf("naming:naming_test - Host = %q, want %q", got.Host, tt.wantHost)
			}
		})
	}
}

func TestShortName(t *testing.T) {
	tests := map[string]string{
		"servo1":          "servo1",
		"servo1@pi-lab":   "servo1",
		"a@b@c":           "a",
		"":                "",
		"runtime@desktop": "runtime",
	}
	for in, want := range tests {
		if got := ShortName(in); got != want {
			t.Errorf("naming:naming_test - ShortName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestQualify(t *testing.T) {
	if got := Qualify("servo1", ""); got != "servo1" {
		t.Errorf("naming:naming_test - Qualify without host = %q", got)
	}
	if got := Qualify("servo1", "pi"); got != "servo1@pi" {
		t.Errorf("naming:naming_test - Qualify = %q, want servo1@pi", got)
	}
	if ShortName(Qualify("servo1", "pi")) != "servo1" {
		t.Error("naming:naming_test - ShortName should undo Qualify")
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		input     string
		wantShort string
		wantHost  string
	}{
		{"servo1", "servo1", ""},
		{"servo1@pi-lab", "servo1", "pi-lab"},
		{"left arm/servo", "left arm/servo", ""},
		{" servo1 ", " servo1 ", ""},
		{"a@b@c", "a", "b@c"},
	}
	for _, tt := range tests {
		got := Describe(tt.input)
		if got.Name != tt.input {
			t.Errorf("naming:naming_test - Describe(%q).Name = %q, want the input unchanged", tt.input, got.Name)
		}
		if got.Short != tt.wantShort || got.Host != tt.wantHost {
			t.Errorf("naming:naming_test - Describe(%q) = (%q, %q), want (%q, %q)", tt.input, got.Short, got.Host, tt.wantShort, tt.wantHost)
		}
		if got.Short != ShortName(tt.input) {
			t.Errorf("naming:naming_test - Describe(%q).Short disagrees with ShortName", tt.input)
		}
	}
}
