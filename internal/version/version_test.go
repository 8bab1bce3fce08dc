package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// withVersion sets Version and Commit for the duration of the test.
func withVersion(t *testing.T, v, commit string) {
	t.Helper()
	origV, origC := Version, Commit
	t.Cleanup(func() { Version, Commit = origV, origC })
	Version, Commit = v, commit
}

func TestString_NormalizesPrefix(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"no prefix", "1.0.0", "v1.0.0"},
		{"with v prefix", "v1.0.0", "v1.0.0"},
		{"double v prefix", "vv1.0.0", "vv1.0.0"}, // TrimPrefix only removes one v
		{"dev", "dev", "vdev"},
		{"snapshot", "0.6.12-snapshot", "v0.6.12-snapshot"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withVersion(t, tt.input, "")
			assert.Equal(t, tt.want, String())
		})
	}
}

func TestFull(t *testing.T) {
	withVersion(t, "1.2.0", "")
	assert.Equal(t, "v1.2.0", Full())

	withVersion(t, "1.2.0", "0123456789abcdef")
	assert.Equal(t, "v1.2.0 (0123456)", Full())

	withVersion(t, "1.2.0", "abc")
	assert.Equal(t, "v1.2.0 (abc)", Full())
}
