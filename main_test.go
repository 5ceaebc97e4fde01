package main

import (
	"testing"

	"github.com/barndoor/barndoor-cli/cmd"
)

func TestVersion(t *testing.T) {
	if version != "dev" {
		t.Errorf("Expected default version to be 'dev', got %s", version)
	}
}

func TestSetVersion(t *testing.T) {
	original := cmd.GetVersion()
	defer cmd.SetVersion(original)

	tests := []string{"v1.0.0", "2.3.4-beta.1", "dev"}
	for _, v := range tests {
		t.Run(v, func(t *testing.T) {
			cmd.SetVersion(v)
			if got := cmd.GetVersion(); got != v {
				t.Errorf("GetVersion() = %q, want %q", got, v)
			}
		})
	}
}
