package drift

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShouldResync(t *testing.T) {
	tests := []struct {
		name   string
		local  float64
		remote float64
		resync bool
	}{
		{"equal positions", 10, 10, false},
		{"one second behind after ceil", 10.1, 11.9, false},
		{"two seconds behind after ceil", 10.9, 12.1, true},
		{"one second ahead after ceil", 11.9, 10.1, false},
		{"two seconds ahead after ceil", 12.1, 10.9, true},
		{"far behind", 5, 50, true},
		{"far ahead", 50, 5, true},
		{"sub-second drift", 10.2, 10.7, false},
		{"start of playback", 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := ShouldResync(tt.local, tt.remote)
			assert.Equal(t, tt.resync, d.Resync)
			if tt.resync {
				assert.Equal(t, tt.remote, d.Target, "target must be the remote position")
			}
		})
	}
}
