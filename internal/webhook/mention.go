package webhook

import (
	"slices"
	"strings"

	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
)

// isBotMentioned reports whether the message mentions the bot itself.
func isBotMentioned(msg webhook.TextMessageContent) bool {
	if msg.Mention == nil {
		return false
	}
	for _, m := range msg.Mention.Mentionees {
		if u, ok := m.(webhook.UserMentionee); ok && u.IsSelf {
			return true
		}
	}
	return false
}

// stripBotMentions removes the bot's own mentions and collapses whitespace.
// Mention offsets count runes, not bytes.
func stripBotMentions(text string, mention *webhook.Mention) string {
	if mention == nil {
		return text
	}

	type span struct{ start, end int }
	var spans []span
	for _, m := range mention.Mentionees {
		if u, ok := m.(webhook.UserMentionee); ok && u.IsSelf {
			spans = append(spans, span{int(u.Index), int(u.Index + u.Length)})
		}
	}
	if len(spans) == 0 {
		return text
	}

	// Back to front so earlier offsets stay valid.
	slices.SortFunc(spans, func(a, b span) int { return b.start - a.start })

	runes := []rune(text)
	for _, s := range spans {
		start := max(s.start, 0)
		end := min(s.end, len(runes))
		if start >= end {
			continue
		}
		runes = append(runes[:start], runes[end:]...)
	}
	return strings.Join(strings.Fields(string(runes)), " ")
}
