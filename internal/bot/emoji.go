package bot

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/janusbot/janus/internal/verify"
)

var customEmojiPattern = regexp.MustCompile(`^<(a?):([\w~]+):(\d+)>$`)

// parseEmoji interprets user emoji input: either the custom emoji mention form
// "<:name:id>" ("<a:name:id>" for animated) or a raw unicode emoji.
func parseEmoji(input string) (verify.EmojiRef, bool) {
	input = strings.TrimSpace(input)
	if input == "" {
		return verify.EmojiRef{}, false
	}

	if match := customEmojiPattern.FindStringSubmatch(input); match != nil {
		id, err := strconv.ParseUint(match[3], 10, 64)
		if err != nil {
			return verify.EmojiRef{}, false
		}

		return verify.EmojiRef{CustomID: id}, true
	}

	// Anything that still looks like a mention at this point is malformed.
	if strings.ContainsAny(input, "<>:") {
		return verify.EmojiRef{}, false
	}

	return verify.EmojiRef{Unicode: input, IsUnicode: true}, true
}
