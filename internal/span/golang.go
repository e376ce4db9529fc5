package span

import (
	"go/ast"
	"go/parser"
	"go/token"
	"strings"
)

// extractGo walks a Go file's AST and emits one span per top-level
// function, method, and type declaration. Grounded on the teacher's
// internal/world/code_elements.go parseGoFileLegacy: a single pass walks
// FuncDecl/GenDecl, names methods after their receiver type, and slices
// source lines by 1-indexed inclusive line range. A declaration's doc
// comment is part of its span.
func extractGo(lines []string, content []byte) ([]Span, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "", content, parser.ParseComments)
	if err != nil {
		return nil, err
	}

	var spans []Span
	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			kind := KindFunction
			name := d.Name.Name
			if d.Recv != nil && len(d.Recv.List) > 0 {
				kind = KindMethod
				if recv := receiverTypeName(d.Recv.List[0].Type); recv != "" {
					name = recv + "." + name
				}
			}
			start := fset.Position(d.Pos()).Line
			if d.Doc != nil {
				start = fset.Position(d.Doc.Pos()).Line
			}
			end := fset.Position(d.End()).Line
			spans = append(spans, newGoSpan(lines, kind, name, start, end))
		case *ast.GenDecl:
			if d.Tok != token.TYPE {
				continue
			}
			for _, spec := range d.Specs {
				ts, ok := spec.(*ast.TypeSpec)
				if !ok {
					continue
				}
				kind := KindClass
				start := fset.Position(d.Pos()).Line
				end := fset.Position(d.End()).Line
				if len(d.Specs) == 1 {
					start = fset.Position(ts.Pos()).Line
				}
				if d.Doc != nil {
					start = fset.Position(d.Doc.Pos()).Line
				}
				spans = append(spans, newGoSpan(lines, kind, ts.Name.Name, start, end))
			}
		}
	}
	return spans, nil
}

func receiverTypeName(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return receiverTypeName(t.X)
	default:
		return ""
	}
}

func newGoSpan(lines []string, kind Kind, name string, start, end int) Span {
	body := extractLines(lines, start, end)
	return Span{
		Kind:            kind,
		SymbolName:      name,
		StartLine:       start,
		EndLine:         end,
		Content:         []byte(body),
		ContentType:     "code",
		ContentLanguage: "go",
	}
}

// extractLines returns the 1-indexed inclusive line range [start, end]
// joined with LF, matching the teacher's extractBody helper.
func extractLines(lines []string, start, end int) string {
	if start < 1 {
		start = 1
	}
	if end > len(lines) {
		end = len(lines)
	}
	if start > end || start > len(lines) {
		return ""
	}
	return strings.Join(lines[start-1:end], "\n")
}
