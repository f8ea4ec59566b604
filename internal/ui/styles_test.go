package ui

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatListItem(t *testing.T) {
	tests := []struct {
		name   string
		active bool
		icon   string
	}{
		{name: "active item", active: true, icon: IconActive},
		{name: "idle item", active: false, icon: IconIdle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatListItem("DP-1", tt.active)
			assert.Contains(t, got, "DP-1")
			assert.Contains(t, got, tt.icon)
		})
	}
}

func TestFormatField(t *testing.T) {
	got := FormatField("size", "640x480")
	assert.True(t, strings.Contains(got, "size"))
	assert.True(t, strings.Contains(got, "640x480"))
	assert.Less(t, strings.Index(got, "size"), strings.Index(got, "640x480"))
}
