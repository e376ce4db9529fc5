// Package span implements the span extractor: deterministic, AST-driven
// chunking of a file into semantically meaningful spans with stable
// hashes.
package span

// Kind classifies what a span represents syntactically.
type Kind string

const (
	KindFunction        Kind = "function"
	KindClass           Kind = "class"
	KindMethod          Kind = "method"
	KindMarkdownSection Kind = "markdown_section"
	KindBlock           Kind = "block"
)

// Span is a contiguous, semantically meaningful slice of a source file.
// Lines are metadata only: they do not participate in SpanHash, so that
// cosmetic edits outside a span (e.g. adding blank lines above it) never
// change its hash.
type Span struct {
	SpanHash        string
	FileID          int64
	Kind            Kind
	SymbolName      string
	StartLine       int
	EndLine         int
	Content         []byte
	ContentType     string // "code" | "docs"
	ContentLanguage string
	Metadata        map[string]string
}

// Metadata keys used by the optional code-pattern annotations.
const (
	MetaGenerated = "generated"
	MetaBuildTags = "build_tags"
)
