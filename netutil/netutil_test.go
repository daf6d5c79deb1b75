package netutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinHost(t *testing.T) {
	tests := []struct {
		subnet string
		want   string
	}{
		{"10.0.0.0/24", "10.0.0.1"},
		{"192.168.4.0/22", "192.168.4.1"},
		{"10.1.2.77/16", "10.1.0.1"},
		{"172.16.0.8/31", "172.16.0.8"},
		{"172.16.0.9/32", "172.16.0.9"},
	}
	for _, tt := range tests {
		t.Run(tt.subnet, func(t *testing.T) {
			got, err := MinHost(tt.subnet)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMinHost_Invalid(t *testing.T) {
	_, err := MinHost("not-a-subnet")
	assert.Error(t, err)
}
