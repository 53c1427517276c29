package prompt

import (
	"fmt"
	"strings"
)

// Bounds offered by the web form's max characters slider
const (
	MinChars     = 60
	MaxChars     = 200
	DefaultChars = 125
)

// Style adjusts the tone of the generated alt text
type Style string

const (
	StyleConcise     Style = "concise"
	StyleDescriptive Style = "descriptive"
	StyleLiteral     Style = "literal"
)

var styleLines = map[Style]string{
	StyleConcise:     "",
	StyleDescriptive: "- Prefer a full descriptive sentence over a fragment",
	StyleLiteral:     "- Describe only what is literally visible; no interpretation of mood or intent",
}

// Pair is the system and user instruction sent with every image
type Pair struct {
	System string
	User   string
}

// ParseStyle validates a style name. Empty selects StyleConcise.
func ParseStyle(s string) (Style, error) {
	if s == "" {
		return StyleConcise, nil
	}
	style := Style(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := styleLines[style]; !ok {
		return "", fmt.Errorf("unknown style %q (supported: concise, descriptive, literal)", s)
	}
	return style, nil
}

// ClampMaxChars keeps n within [MinChars, MaxChars].
func ClampMaxChars(n int) int {
	return min(max(n, MinChars), MaxChars)
}

// Build returns the instructions for alt text of at most maxChars characters.
func Build(maxChars int, style Style) Pair {
	var sb strings.Builder
	sb.WriteString("You write HTML alt text per W3C/WAI.\n")
	fmt.Fprintf(&sb, "- Concise, <= %d chars\n", maxChars)
	sb.WriteString("- No \"image of\" / \"picture of\"\n")
	sb.WriteString("- Include salient details; include visible on-image text briefly when clear\n")
	sb.WriteString("- Include brand/product if clearly visible (once)\n")
	if line := styleLines[style]; line != "" {
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	sb.WriteString("- Return only the alt string")

	return Pair{
		System: sb.String(),
		User:   fmt.Sprintf("Write alt text for this image for an HTML alt attribute, under %d chars.", maxChars),
	}
}
