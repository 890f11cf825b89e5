package slug

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMake(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Weekly Meeting", "weekly-meeting"},
		{"  Q3 Review!  ", "q3-review"},
		{"Réunion générale", "reunion-generale"},
		{"a__b--c", "a-b-c"},
		{"---", "job"},
		{"", "job"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, Make(tc.in), "input %q", tc.in)
	}
}

func TestUnique(t *testing.T) {
	taken := map[string]bool{"meeting": true, "meeting-2": true}
	exists := func(s string) bool { return taken[s] }

	assert.Equal(t, "fresh", Unique("fresh", exists))
	assert.Equal(t, "meeting-3", Unique("meeting", exists))
}
