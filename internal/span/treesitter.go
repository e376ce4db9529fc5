package span

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// languageGrammar associates a tree-sitter grammar with the node types
// that mark a function-like or class-like declaration in that language.
// Grounded on the teacher's internal/world/ast.go / ast_treesitter.go
// dispatch pattern: try the tree-sitter parser first; if it errors,
// Extract falls back to the blank-line block chunker
// (extractGenericBlocks).
type languageGrammar struct {
	lang          sitter.Language
	functionNodes map[string]bool
	classNodes    map[string]bool
	nameField     string
}

var grammars = map[string]languageGrammar{
	"python": {
		lang:          python.GetLanguage(),
		functionNodes: map[string]bool{"function_definition": true},
		classNodes:    map[string]bool{"class_definition": true},
		nameField:     "name",
	},
	"rust": {
		lang:          rust.GetLanguage(),
		functionNodes: map[string]bool{"function_item": true},
		classNodes:    map[string]bool{"struct_item": true, "impl_item": true, "trait_item": true},
		nameField:     "name",
	},
	"typescript": {
		lang: typescript.GetLanguage(),
		functionNodes: map[string]bool{
			"function_declaration": true, "method_definition": true,
		},
		classNodes: map[string]bool{"class_declaration": true, "interface_declaration": true},
		nameField:  "name",
	},
	"javascript": {
		lang: javascript.GetLanguage(),
		functionNodes: map[string]bool{
			"function_declaration": true, "method_definition": true,
		},
		classNodes: map[string]bool{"class_declaration": true},
		nameField:  "name",
	},
}

// extractTreeSitter parses content with the grammar registered for
// language and emits one span per top-level function/method/class node
// found by walking the tree. Returns an error if no grammar is
// registered, letting the caller fall back to the generic block chunker.
func extractTreeSitter(language string, lines []string, content []byte) ([]Span, error) {
	g, ok := grammars[language]
	if !ok {
		return nil, fmt.Errorf("no tree-sitter grammar registered for %s", language)
	}

	parser := sitter.NewParser()
	parser.SetLanguage(g.lang)
	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	var spans []Span
	walkTreeSitter(tree.RootNode(), g, lines, content, language, &spans)
	return spans, nil
}

func walkTreeSitter(n *sitter.Node, g languageGrammar, lines []string, content []byte, language string, out *[]Span) {
	if n == nil {
		return
	}
	count := int(n.ChildCount())
	for i := 0; i < count; i++ {
		child := n.Child(i)
		if child == nil {
			continue
		}
		typ := child.Type()
		switch {
		case g.functionNodes[typ]:
			*out = append(*out, nodeToSpan(child, KindFunction, g, lines, content, language))
		case g.classNodes[typ]:
			*out = append(*out, nodeToSpan(child, KindClass, g, lines, content, language))
		default:
			walkTreeSitter(child, g, lines, content, language, out)
		}
	}
}

func nodeToSpan(n *sitter.Node, kind Kind, g languageGrammar, lines []string, content []byte, language string) Span {
	name := ""
	if nameNode := n.ChildByFieldName(g.nameField); nameNode != nil {
		name = nameNode.Content(content)
	}
	start := int(n.StartPoint().Row) + 1
	end := int(n.EndPoint().Row) + 1
	return Span{
		Kind:            kind,
		SymbolName:      name,
		StartLine:       start,
		EndLine:         end,
		Content:         []byte(extractLines(lines, start, end)),
		ContentType:     "code",
		ContentLanguage: language,
	}
}
