package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsVersionGreaterOrEqualThan(t *testing.T) {
	tests := []struct {
		version string
		target  string
		want    bool
	}{
		{"0.2.1", "0.2.0", true},
		{"0.2.0", "0.2.0", true},
		{"0.1.9", "0.2.0", false},
		{"0.10.0", "0.9.5", true},
	}
	for _, test := range tests {
		assert.Equal(t, test.want, IsVersionGreaterOrEqualThan(test.version, test.target), "%s >= %s", test.version, test.target)
	}
}

func TestIsVersionGreaterThan(t *testing.T) {
	assert.True(t, IsVersionGreaterThan("0.2.1", "0.2.0"))
	assert.False(t, IsVersionGreaterThan("0.2.0", "0.2.0"))
	assert.False(t, IsVersionGreaterThan("0.0.0", "0.2.0"))
}

func TestGetMinorVersion(t *testing.T) {
	assert.Equal(t, "0.2", GetMinorVersion("0.2.1"))
	assert.Equal(t, "", GetMinorVersion("0"))
}
