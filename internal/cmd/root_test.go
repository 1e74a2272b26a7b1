package cmd

import (
	"errors"
	"fmt"
	"testing"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"plain error", errors.New("boom"), 1},
		{"expired", &ExitError{Code: 2}, 2},
		{"wrapped", fmt.Errorf("check: %w", &ExitError{Code: 1}), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestCommandsRegistered(t *testing.T) {
	for _, name := range []string{"check", "start", "validate", "version", "init"} {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("Find(%q) = %v, %v", name, cmd, err)
		}
	}
}
