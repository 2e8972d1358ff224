package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/janusbot/janus/internal/verify"
)

func TestParseEmoji(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected verify.EmojiRef
		ok       bool
	}{
		{
			name:     "unicode emoji",
			input:    "✅",
			expected: verify.EmojiRef{Unicode: "✅", IsUnicode: true},
			ok:       true,
		},
		{
			name:     "unicode emoji with whitespace",
			input:    "  🎉 ",
			expected: verify.EmojiRef{Unicode: "🎉", IsUnicode: true},
			ok:       true,
		},
		{
			name:     "custom emoji mention",
			input:    "<:verified:424242>",
			expected: verify.EmojiRef{CustomID: 424242},
			ok:       true,
		},
		{
			name:     "animated custom emoji mention",
			input:    "<a:party_blob:98765>",
			expected: verify.EmojiRef{CustomID: 98765},
			ok:       true,
		},
		{
			name:  "empty input",
			input: "",
		},
		{
			name:  "malformed mention",
			input: "<:verified:>",
		},
		{
			name:  "mention without id",
			input: ":verified:",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			emoji, ok := parseEmoji(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, emoji)
		})
	}
}
