package graph

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"llmc/internal/span"
)

func TestBuildRelationsResolvesGoCalls(t *testing.T) {
	src := []byte(`package auth

import "db"

func Login(user string) error {
	return db.Query(user)
}
`)
	spans, err := span.Extract("auth.go", src)
	require.NoError(t, err)

	b := NewBuilder()
	authEntities := b.DeclareEntities("auth.go", spans)

	dbEntities := []Entity{{ID: symbolID("db.go", "Query"), Kind: "function", PathRef: "db.go"}}

	reg := NewRegistry(append(authEntities, dbEntities...))
	relations := b.BuildRelations("auth.go", src, spans, reg)

	found := false
	for _, r := range relations {
		if r.EdgeType == EdgeCalls && r.DstID == symbolID("db.go", "Query") {
			found = true
		}
	}
	require.True(t, found, "expected a calls edge from Login to db.Query")
}

func TestBuildRelationsIsDeterministic(t *testing.T) {
	src := []byte(`package auth

func A() { B() }
func B() {}
`)
	spans, err := span.Extract("x.go", src)
	require.NoError(t, err)

	b := NewBuilder()
	entities := b.DeclareEntities("x.go", spans)
	reg := NewRegistry(entities)

	r1 := b.BuildRelations("x.go", src, spans, reg)
	r2 := b.BuildRelations("x.go", src, spans, reg)
	if diff := cmp.Diff(r1, r2); diff != "" {
		t.Errorf("BuildRelations is not deterministic (-first +second):\n%s", diff)
	}
}

func TestUnresolvedCallsAreDroppedNotFatal(t *testing.T) {
	src := []byte(`package auth

func A() { ghostFunction() }
`)
	spans, err := span.Extract("x.go", src)
	require.NoError(t, err)

	b := NewBuilder()
	entities := b.DeclareEntities("x.go", spans)
	reg := NewRegistry(entities)

	relations := b.BuildRelations("x.go", src, spans, reg)
	for _, r := range relations {
		require.NotEqual(t, "sym:ghostFunction", r.DstID)
	}
}
