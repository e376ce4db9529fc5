package graph

import (
	"go/ast"
	"go/parser"
	"go/token"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"llmc/internal/span"
)

// Builder derives entities and relations from extractor output. It runs
// in two passes across a repository: DeclareEntities registers every
// symbol a file defines; once every file's entities are known,
// BuildRelations emits defines and calls edges, plus imports edges for
// Go files, against the full registry. Extends, returns, reads and
// writes edges are not derived. The builder is deterministic: the same
// (files, spans, registry) input always yields the same edge multiset.
type Builder struct{}

func NewBuilder() *Builder { return &Builder{} }

// ModuleID returns the module-level entity id for a file path, derived
// from its directory (a reasonable proxy for "package" across languages
// without per-language package-name resolution).
func ModuleID(path string) string {
	dir := filepath.Dir(path)
	if dir == "." {
		dir = "root"
	}
	return "mod:" + filepath.ToSlash(dir)
}

func symbolID(path, name string) string {
	return "sym:" + filepath.ToSlash(path) + "#" + name
}

// DeclareEntities registers one module entity per file plus one entity
// per span that names a symbol (function/method/class spans; markdown
// and generic blocks do not declare symbols).
func (b *Builder) DeclareEntities(path string, spans []span.Span) []Entity {
	entities := []Entity{{
		ID:      ModuleID(path),
		Kind:    "module",
		PathRef: path,
	}}
	for _, s := range spans {
		if s.SymbolName == "" {
			continue
		}
		kind := "function"
		if s.Kind == span.KindMethod {
			kind = "method"
		} else if s.Kind == span.KindClass {
			kind = "type"
		}
		entities = append(entities, Entity{
			ID:      symbolID(path, s.SymbolName),
			Kind:    kind,
			PathRef: path,
		})
	}
	return entities
}

// Registry is the full set of entities known across a repository,
// indexed by id, used to resolve relation endpoints at write time.
// Unknown endpoints are rejected by simply not emitting the edge; the
// builder drops unresolved symbols rather than failing, and does not
// count them.
type Registry struct {
	byID   map[string]Entity
	byName map[string][]string // bare symbol name -> candidate entity ids
}

func NewRegistry(entities []Entity) *Registry {
	r := &Registry{byID: map[string]Entity{}, byName: map[string][]string{}}
	for _, e := range entities {
		r.byID[e.ID] = e
		if idx := strings.LastIndex(e.ID, "#"); idx >= 0 {
			name := e.ID[idx+1:]
			if dot := strings.LastIndex(name, "."); dot >= 0 {
				name = name[dot+1:] // method name without receiver prefix
			}
			r.byName[name] = append(r.byName[name], e.ID)
		}
	}
	return r
}

func (r *Registry) resolveByName(name string) (string, bool) {
	candidates := r.byName[name]
	if len(candidates) == 0 {
		return "", false
	}
	sort.Strings(candidates)
	return candidates[0], true
}

// BuildRelations derives relation edges for one file's spans against the
// full repository registry. Go files get AST-accurate import and
// call-expression resolution; every other language falls back to a
// regex-based identifier-call scan, matching the teacher's
// tree-sitter-first/regex-fallback idiom for non-Go dispatch.
func (b *Builder) BuildRelations(path string, content []byte, spans []span.Span, reg *Registry) []Relation {
	moduleID := ModuleID(path)
	var relations []Relation

	for _, s := range spans {
		if s.SymbolName == "" {
			continue
		}
		relations = append(relations, Relation{SrcID: moduleID, EdgeType: EdgeDefines, DstID: symbolID(path, s.SymbolName)})
	}

	if strings.HasSuffix(path, ".go") {
		relations = append(relations, b.buildGoRelations(path, content, reg)...)
	} else {
		relations = append(relations, b.buildRegexCallRelations(path, spans, reg)...)
	}

	return dedupe(relations)
}

func (b *Builder) buildGoRelations(path string, content []byte, reg *Registry) []Relation {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "", content, 0)
	if err != nil {
		return nil
	}
	moduleID := ModuleID(path)
	var relations []Relation

	for _, imp := range file.Imports {
		target := strings.Trim(imp.Path.Value, `"`)
		relations = append(relations, Relation{SrcID: moduleID, EdgeType: EdgeImports, DstID: "pkg:" + target})
	}

	for _, decl := range file.Decls {
		fd, ok := decl.(*ast.FuncDecl)
		if !ok {
			continue
		}
		callerName := fd.Name.Name
		if fd.Recv != nil && len(fd.Recv.List) > 0 {
			if recv := receiverTypeName(fd.Recv.List[0].Type); recv != "" {
				callerName = recv + "." + fd.Name.Name
			}
		}
		callerID := symbolID(path, callerName)

		ast.Inspect(fd.Body, func(n ast.Node) bool {
			call, ok := n.(*ast.CallExpr)
			if !ok {
				return true
			}
			name := calleeName(call.Fun)
			if name == "" {
				return true
			}
			if targetID, ok := reg.resolveByName(name); ok && targetID != callerID {
				relations = append(relations, Relation{SrcID: callerID, EdgeType: EdgeCalls, DstID: targetID})
			}
			return true
		})
	}
	return relations
}

func calleeName(expr ast.Expr) string {
	switch e := expr.(type) {
	case *ast.Ident:
		return e.Name
	case *ast.SelectorExpr:
		return e.Sel.Name
	default:
		return ""
	}
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

var identCallPattern = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_]*)\s*\(`)

// buildRegexCallRelations is the best-effort fallback for non-Go
// languages: scan each span's text for `identifier(` occurrences and
// resolve them against the registry by bare name. Unresolved identifiers
// are dropped silently.
func (b *Builder) buildRegexCallRelations(path string, spans []span.Span, reg *Registry) []Relation {
	var relations []Relation
	for _, s := range spans {
		if s.SymbolName == "" {
			continue
		}
		callerID := symbolID(path, s.SymbolName)
		for _, m := range identCallPattern.FindAllStringSubmatch(string(s.Content), -1) {
			name := m[1]
			if name == s.SymbolName {
				continue
			}
			if targetID, ok := reg.resolveByName(name); ok && targetID != callerID {
				relations = append(relations, Relation{SrcID: callerID, EdgeType: EdgeCalls, DstID: targetID})
			}
		}
	}
	return relations
}

func dedupe(relations []Relation) []Relation {
	seen := map[Relation]bool{}
	out := make([]Relation, 0, len(relations))
	for _, r := range relations {
		if seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}
