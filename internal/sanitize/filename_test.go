package sanitize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToSafeFilename_Basics(t *testing.T) {
	assert.Equal(t, "Hello_ World.json", ToSafeFilename("Hello:/\\*?\"<>| World", "json"))
}

func TestToSafeFilename_Defaults(t *testing.T) {
	assert.Equal(t, "video.json", ToSafeFilename("", ""))
	assert.Equal(t, "abc.json", ToSafeFilename("abc", ".JSON"))
}

func TestToSafeFilename_Long(t *testing.T) {
	got := ToSafeFilename(strings.Repeat("a", 200), "json")
	assert.LessOrEqual(t, len(got), MaxFilenameLength+len(".json"))
}

func TestToSafeName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"../../etc/passwd", "_.._etc_passwd"},
		{"..", "video"},
		{"a\nb", "a_b"},
		{"   ", "video"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ToSafeName(tt.in), tt.in)
	}
}
