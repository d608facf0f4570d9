package filesystem

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	tests := []struct {
		in   string
		want string
	}{
		{"/etc/oncomn.yaml", "/etc/oncomn.yaml"},
		{"~", home},
		{"~/.oncomn/x.db", filepath.Join(home, ".oncomn", "x.db")},
		{"rel/./config.yaml", "rel/config.yaml"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ExpandHome(tt.in), tt.in)
	}
}
