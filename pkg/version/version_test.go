package version

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromSettings(t *testing.T) {
	tests := []struct {
		name     string
		settings []debug.BuildSetting
		want     string
	}{
		{"no stamp", nil, Unknown},
		{"short", []debug.BuildSetting{{Key: "vcs.revision", Value: "abc"}}, "abc"},
		{"truncated", []debug.BuildSetting{{Key: "vcs.revision", Value: "0123456789abcdef"}}, "0123456789ab"},
		{"dirty", []debug.BuildSetting{
			{Key: "vcs.revision", Value: "abc"},
			{Key: "vcs.modified", Value: "true"},
		}, "abc+dirty"},
		{"clean", []debug.BuildSetting{
			{Key: "vcs.modified", Value: "false"},
			{Key: "vcs.revision", Value: "abc"},
		}, "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, fromSettings(tt.settings))
		})
	}
}

func TestRevisionLinkTimeOverride(t *testing.T) {
	old := revision
	t.Cleanup(func() { revision = old })

	revision = "r1234"
	assert.Equal(t, "r1234", Revision())
}

func TestRevisionNeverEmpty(t *testing.T) {
	assert.NotEmpty(t, Revision())
}

func TestBanner(t *testing.T) {
	old := revision
	t.Cleanup(func() { revision = old })
	revision = "r1"

	b := Banner("rtk-server")
	assert.Contains(t, b, " rtk-server\n")
	assert.Contains(t, b, " revision: r1\n")
}
