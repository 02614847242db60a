package tricount

import (
	"strings"
	"unicode"
)

// CleanCategory strips emoji and pictographic decoration from a category
// label and capitalises it: "🍔 FOOD" becomes "Food". An empty label stays
// empty, meaning "no category".
func CleanCategory(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if isDecoration(r) {
			continue
		}
		b.WriteRune(r)
	}

	clean := []rune(strings.TrimSpace(b.String()))
	if len(clean) == 0 {
		return ""
	}
	return string(unicode.ToUpper(clean[0])) + strings.ToLower(string(clean[1:]))
}

func isDecoration(r rune) bool {
	switch {
	case r == '\u200d', r == '\ufe0f', r == '\ufe0e', r == '\u20e3':
		// joiner, variation selectors, keycap
		return true
	case r >= 0x1F000 && r <= 0x1FAFF:
		// emoticons, pictographs, transport, flags, skin tones
		return true
	case r >= 0x2600 && r <= 0x27BF:
		// misc symbols and dingbats
		return true
	case r >= 0xE0020 && r <= 0xE007F:
		// tag sequences used by subdivision flags
		return true
	}
	return unicode.Is(unicode.So, r)
}
