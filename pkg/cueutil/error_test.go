// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"strings"
	"testing"
)

func TestFormatPath(t *testing.T) {
	tests := []struct {
		name string
		path []string
		want string
	}{
		{"empty", nil, ""},
		{"single", []string{"steps"}, "steps"},
		{"nested", []string{"base", "digest"}, "base.digest"},
		{"index", []string{"steps", "0", "commands"}, "steps[0].commands"},
		{"index first element stays literal", []string{"0", "name"}, "0.name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatPath(tt.path); got != tt.want {
				t.Errorf("formatPath(%v) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestCheckFileSize(t *testing.T) {
	t.Run("within limit", func(t *testing.T) {
		if err := CheckFileSize(make([]byte, 100), 100, "test.cue"); err != nil {
			t.Errorf("expected nil error, got %v", err)
		}
	})

	t.Run("over limit", func(t *testing.T) {
		err := CheckFileSize(make([]byte, 101), 100, "test.cue")
		if err == nil {
			t.Fatal("expected error for oversized input")
		}
		if !strings.Contains(err.Error(), "test.cue") {
			t.Errorf("error should name the file: %v", err)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		if err := CheckFileSize(nil, 100, "test.cue"); err != nil {
			t.Errorf("expected nil error, got %v", err)
		}
	})
}

func TestParseAndDecode(t *testing.T) {
	const schema = `
#Thing: {
	name: string
	size: int | *1
}
`

	type thing struct {
		Name string `json:"name"`
		Size int    `json:"size"`
	}

	t.Run("valid input decodes with defaults", func(t *testing.T) {
		result, err := ParseAndDecodeString[thing](schema, []byte(`name: "box"`), "#Thing")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Value.Name != "box" {
			t.Errorf("Name = %q, want box", result.Value.Name)
		}
		if result.Value.Size != 1 {
			t.Errorf("Size = %d, want default 1", result.Value.Size)
		}
	})

	t.Run("schema violation carries path", func(t *testing.T) {
		_, err := ParseAndDecodeString[thing](schema, []byte(`name: 42`), "#Thing", WithFilename("thing.cue"))
		if err == nil {
			t.Fatal("expected error for type mismatch")
		}
		if !strings.Contains(err.Error(), "thing.cue") {
			t.Errorf("error should name the file: %v", err)
		}
	})

	t.Run("unknown schema path", func(t *testing.T) {
		_, err := ParseAndDecodeString[thing](schema, []byte(`name: "x"`), "#Missing")
		if err == nil {
			t.Fatal("expected error for missing schema definition")
		}
	})
}
