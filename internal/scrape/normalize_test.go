package scrape

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizerClean(t *testing.T) {
	n := NewNormalizer()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"trims outer whitespace", "  hello  ", "hello"},
		{"collapses space runs", "a   b\t\tc", "a b c"},
		{"normalizes crlf", "one\r\ntwo\rthree", "one\ntwo\nthree"},
		{"collapses blank runs", "a\n\n\n\nb", "a\n\nb"},
		{"drops leading blanks", "\n\n\na", "a"},
		{"empty stays empty", "   \n\t  ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, n.Clean(tt.in))
		})
	}
}

func TestNormalizerClip(t *testing.T) {
	n := &Normalizer{MaxRunes: 5}
	require.Equal(t, "héllo", n.Clean("héllo world"))

	unlimited := &Normalizer{MaxRunes: 0}
	long := strings.Repeat("x", 20000)
	require.Len(t, unlimited.Clean(long), 20000)
}

func TestStripNoise(t *testing.T) {
	n := NewNormalizer()

	raw := "You\nHello there\n14:32\nCopy\nShare\nstill me"
	text, sawName, sawYou := n.StripNoise(raw, "")
	require.Equal(t, "Hello there\nstill me", text)
	require.True(t, sawYou)
	require.False(t, sawName)
}

func TestStripNoiseNameHint(t *testing.T) {
	n := NewNormalizer()

	raw := "Mira\n*waves* hi!\nToday at 9:15 PM"
	text, sawName, sawYou := n.StripNoise(raw, "Mira")
	require.Equal(t, "*waves* hi!", text)
	require.True(t, sawName)
	require.False(t, sawYou)
}

func TestStripNoiseYouOnlyLeading(t *testing.T) {
	n := NewNormalizer()

	// "You" mid-message is content, not a label.
	text, _, sawYou := n.StripNoise("Hello\nYou\nbye", "")
	require.Equal(t, "Hello\nYou\nbye", text)
	require.False(t, sawYou)
}

func TestStripNoiseTimestampShapes(t *testing.T) {
	n := NewNormalizer()

	for _, stamp := range []string{"9:05", "12:30 PM", "23:59:01", "Yesterday", "Today at 9:15 PM", "12/31/2024", "3.1.25"} {
		text, _, _ := n.StripNoise("keep\n"+stamp, "")
		require.Equal(t, "keep", text, "stamp %q should be stripped", stamp)
	}

	// Prose containing a time is kept.
	text, _, _ := n.StripNoise("meet me at 9:05 sharp", "")
	require.Equal(t, "meet me at 9:05 sharp", text)
}
