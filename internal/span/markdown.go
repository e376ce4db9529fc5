package span

import (
	"regexp"
	"strings"
)

var headingPattern = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)

// extractMarkdown chunks a markdown document into one span per
// contiguous heading block: from a heading line up to (but not
// including) the next heading of equal-or-shallower depth. Content
// before the first heading is treated as a generic block.
func extractMarkdown(lines []string) []Span {
	var spans []Span
	n := len(lines)

	firstHeading := -1
	for i, l := range lines {
		if headingPattern.MatchString(l) {
			firstHeading = i
			break
		}
	}
	if firstHeading == -1 {
		return extractGenericBlocks(lines, "markdown", DefaultBlockLines)
	}
	if firstHeading > 0 {
		spans = append(spans, extractGenericBlocks(lines[:firstHeading], "markdown", DefaultBlockLines)...)
	}

	i := firstHeading
	for i < n {
		m := headingPattern.FindStringSubmatch(lines[i])
		depth := len(m[1])
		title := strings.TrimSpace(m[2])
		start := i
		j := i + 1
		for j < n {
			if hm := headingPattern.FindStringSubmatch(lines[j]); hm != nil && len(hm[1]) <= depth {
				break
			}
			j++
		}
		body := strings.Join(lines[start:j], "\n")
		spans = append(spans, Span{
			Kind:            KindMarkdownSection,
			SymbolName:      title,
			StartLine:       start + 1,
			EndLine:         j,
			Content:         []byte(body),
			ContentType:     "docs",
			ContentLanguage: "markdown",
		})
		i = j
	}
	return spans
}
