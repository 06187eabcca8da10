package jsonutil

import (
	"encoding/json"
	"testing"
)

func TestFlexibleStringValue(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected string
	}{
		{name: "string", raw: `"sales"`, expected: "sales"},
		{name: "integer", raw: `42`, expected: "42"},
		{name: "float", raw: `1.5`, expected: "1.5"},
		{name: "bool", raw: `true`, expected: "true"},
		{name: "null", raw: `null`, expected: ""},
		{name: "empty", raw: ``, expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FlexibleStringValue(json.RawMessage(tt.raw))
			if got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}
