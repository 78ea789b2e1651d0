package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMirror_ExitCodes(t *testing.T) {
	invalid := filepath.Join(t.TempDir(), "mirror.yaml")
	assert.NoError(t, os.WriteFile(invalid, []byte("kucoin:\n  snapshotDepth: 7\n"), 0o600))

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"unknown flag", []string{"-nope"}, 2},
		{"missing config file", []string{"-config", filepath.Join(t.TempDir(), "absent.yaml")}, 1},
		{"invalid config", []string{"-config", invalid}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mirror(tt.args))
		})
	}
}
