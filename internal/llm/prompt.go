package llm

import (
	"fmt"
	"strings"
)

// Section is one labeled entry of a prompt payload. Sections are serialized
// in declaration order into a single user message.
type Section struct {
	Label string
	Text  string
}

// UserMessage concatenates payload sections into one free-text user message,
// each wrapped in a tag named after its label.
func UserMessage(sections []Section) string {
	var b strings.Builder
	for i, s := range sections {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "<%s>\n%s\n</%s>", s.Label, s.Text, s.Label)
	}
	return b.String()
}
