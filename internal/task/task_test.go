package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestListTag(t *testing.T) {
	assert.Equal(t, "Home-Errands", ListTag("Home Errands"))
	assert.Equal(t, "Home-Errands", ListTag("  Home \t Errands "))
	assert.Equal(t, "Work", ListTag("Work"))
	assert.Equal(t, "", ListTag(""))
}

func TestSameList(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"Work", "Work", true},
		{"", "", true},
		{"Home-Errands", "Home Errands", true},
		{"Home Errands", "Home-Errands", true},
		{"Home", "Home Errands", false},
		{"", "Work", false},
		{"Work", "", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SameList(tt.a, tt.b), "%q vs %q", tt.a, tt.b)
	}
}
