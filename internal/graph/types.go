// Package graph derives the call/inheritance/import graph from
// extractor output and exposes bounded-hop traversal over it. Edges are
// stored as (src_id, edge_type, dst_id) rows keyed by entity id, not by
// pointer-like references, so cyclic graphs never raise an ownership
// problem during traversal.
package graph

// EdgeType is one of the relation kinds the builder emits.
type EdgeType string

const (
	EdgeDefines EdgeType = "defines"
	EdgeCalls   EdgeType = "calls"
	EdgeExtends EdgeType = "extends"
	EdgeImports EdgeType = "imports"
	EdgeReturns EdgeType = "returns"
	EdgeReads   EdgeType = "reads"
	EdgeWrites  EdgeType = "writes"
)

// Entity is a graph node: a symbol, module, or data reference.
type Entity struct {
	ID       string // e.g. "sym:pkg.Func"
	Kind     string // "module" | "function" | "method" | "type" | "variable"
	PathRef  string // file path the entity is anchored to
	Metadata map[string]string
}

// Relation is a graph edge. Multi-edges of the same (src, type, dst)
// triple collapse to one row.
type Relation struct {
	SrcID    string
	EdgeType EdgeType
	DstID    string
}
