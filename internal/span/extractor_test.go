package span

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractGoFunctionsAndMethods(t *testing.T) {
	src := []byte(`package sample

type Greeter struct{}

func (g *Greeter) Hello(name string) string {
	return "hello " + name
}

func Add(a, b int) int {
	return a + b
}
`)
	spans, err := Extract("sample.go", src)
	require.NoError(t, err)
	require.Len(t, spans, 3)

	byName := map[string]Span{}
	for _, s := range spans {
		byName[s.SymbolName] = s
	}
	require.Contains(t, byName, "Greeter")
	require.Equal(t, KindClass, byName["Greeter"].Kind)
	require.Contains(t, byName, "Greeter.Hello")
	require.Equal(t, KindMethod, byName["Greeter.Hello"].Kind)
	require.Contains(t, byName, "Add")
	require.Equal(t, KindFunction, byName["Add"].Kind)
}

func TestStableHashIgnoresBlankLinesAbove(t *testing.T) {
	before := []byte("package sample\n\nfunc f() int {\n\treturn 1\n}\n")
	after := []byte("package sample\n\n\n\nfunc f() int {\n\treturn 1\n}\n")

	spansBefore, err := Extract("a.go", before)
	require.NoError(t, err)
	spansAfter, err := Extract("a.go", after)
	require.NoError(t, err)

	require.Len(t, spansBefore, 1)
	require.Len(t, spansAfter, 1)
	require.Equal(t, spansBefore[0].SpanHash, spansAfter[0].SpanHash)
}

func TestHashChangesWhenDocstringAdded(t *testing.T) {
	without := []byte("package sample\n\nfunc f() int {\n\treturn 1\n}\n")
	with := []byte("package sample\n\n// f returns one.\nfunc f() int {\n\treturn 1\n}\n")

	spansWithout, err := Extract("a.go", without)
	require.NoError(t, err)
	spansWith, err := Extract("a.go", with)
	require.NoError(t, err)

	require.NotEqual(t, spansWithout[0].SpanHash, spansWith[0].SpanHash)
}

func TestRenamingFileDoesNotChangeHash(t *testing.T) {
	src := []byte("package sample\n\nfunc f() int {\n\treturn 1\n}\n")
	s1, err := Extract("a.go", src)
	require.NoError(t, err)
	s2, err := Extract("b.go", src)
	require.NoError(t, err)
	require.Equal(t, s1[0].SpanHash, s2[0].SpanHash)
}

func TestExtractMarkdownSections(t *testing.T) {
	src := []byte("# Title\n\nIntro text.\n\n## Sub\n\nMore text.\n")
	spans, err := Extract("README.md", src)
	require.NoError(t, err)
	require.Len(t, spans, 2)
	require.Equal(t, "Title", spans[0].SymbolName)
	require.Equal(t, "Sub", spans[1].SymbolName)
}

func TestExtractGenericBlocksChunkLongPlainText(t *testing.T) {
	lines := make([]string, 0, 130)
	for i := 0; i < 130; i++ {
		lines = append(lines, "line of text")
		if i%10 == 9 {
			lines = append(lines, "")
		}
	}
	content := []byte(join(lines))
	spans, err := Extract("notes.txt", content)
	require.NoError(t, err)
	require.Greater(t, len(spans), 1)
	for _, s := range spans {
		require.LessOrEqual(t, s.EndLine-s.StartLine+1, DefaultBlockLines)
	}
}

func join(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}

func TestParseErrorYieldsNoSpansNotCrash(t *testing.T) {
	spans, err := Extract("broken.go", []byte("package sample\nfunc ("))
	require.Error(t, err)
	require.Empty(t, spans)
}
