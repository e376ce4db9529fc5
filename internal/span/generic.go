package span

import "strings"

// DefaultBlockLines is the default block size for the generic chunker:
// non-code content is chunked into blocks of at most N lines, sliding on
// blank-line boundaries.
const DefaultBlockLines = 60

// extractGenericBlocks chunks arbitrary text into blocks of at most
// maxLines lines, preferring to end a block at a blank line so that a
// block never splits a paragraph or statement mid-way when a nearby
// blank line is available.
func extractGenericBlocks(lines []string, language string, maxLines int) []Span {
	if maxLines <= 0 {
		maxLines = DefaultBlockLines
	}
	var spans []Span
	start := 0
	n := len(lines)
	for start < n {
		end := start + maxLines
		if end > n {
			end = n
		} else {
			// Walk back to the nearest blank line within the block, if any,
			// so the block boundary lands on a natural seam.
			for end > start && strings.TrimSpace(lines[end-1]) != "" {
				end--
			}
			if end == start {
				end = start + maxLines
				if end > n {
					end = n
				}
			}
		}
		block := strings.Join(lines[start:end], "\n")
		if strings.TrimSpace(block) != "" {
			spans = append(spans, Span{
				Kind:            KindBlock,
				StartLine:       start + 1,
				EndLine:         end,
				Content:         []byte(block),
				ContentType:     "docs",
				ContentLanguage: language,
			})
		}
		start = end
	}
	return spans
}
