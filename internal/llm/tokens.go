package llm

import "strings"

// EstimateTokens provides a rough token count for text, used only for cost
// reporting. Most models tokenize to roughly one token per four characters.
func EstimateTokens(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}
