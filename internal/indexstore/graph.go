package indexstore

import (
	"database/sql"
	"fmt"

	"llmc/internal/errs"
	"llmc/internal/graph"
)

// UpsertEntity inserts or updates an Entity row.
func (s *Store) UpsertEntity(e graph.Entity) error {
	err := s.writer.Submit(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO entities(id, kind, path_ref, metadata) VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET kind=excluded.kind, path_ref=excluded.path_ref, metadata=excluded.metadata
		`, e.ID, e.Kind, e.PathRef, encodeMetadata(e.Metadata))
		return err
	})
	if err != nil {
		return errs.New(errs.StoreBusy, "indexstore.UpsertEntity", err)
	}
	return nil
}

// PutRelations inserts relations, rejecting any whose src or dst entity
// is not already registered. Spec.md §3 invariant 5: "every Relation's
// src_id and dst_id refer to an existing Entity; a Relation naming an
// unknown entity is rejected, not silently dropped." The whole batch is
// rejected together so callers see exactly which edge was invalid rather
// than a partially-applied graph.
func (s *Store) PutRelations(relations []graph.Relation) error {
	if len(relations) == 0 {
		return nil
	}
	err := s.writer.Submit(func(tx *sql.Tx) error {
		for _, r := range relations {
			var count int
			if err := tx.QueryRow(`SELECT COUNT(*) FROM entities WHERE id IN (?, ?)`, r.SrcID, r.DstID).Scan(&count); err != nil {
				return err
			}
			if count < 2 {
				return fmt.Errorf("relation %s-%s->%s references an unknown entity", r.SrcID, r.EdgeType, r.DstID)
			}
			if _, err := tx.Exec(`
				INSERT INTO relations(src_id, edge_type, dst_id) VALUES (?, ?, ?)
				ON CONFLICT(src_id, edge_type, dst_id) DO NOTHING
			`, r.SrcID, string(r.EdgeType), r.DstID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errs.New(errs.ConfigInvalid, "indexstore.PutRelations", err)
	}
	return nil
}

// Neighbors performs a breadth-first traversal of the relation graph
// starting at entityID, up to hops away, optionally restricted to the
// given edge types (nil/empty means any edge type). Grounded on the
// teacher's internal/store/local_graph.go cameFrom-map BFS idiom — but
// unlike that in-memory graph, this traversal issues one SQL query per
// hop against the relations table rather than taking out its own
// read lock, which sidesteps the RLock-while-holding-RLock deadlock the
// teacher's version was vulnerable to under reentrant calls.
func (s *Store) Neighbors(entityID string, hops int, edgeFilter []graph.EdgeType) ([]graph.Entity, error) {
	if hops <= 0 {
		return nil, nil
	}
	visited := map[string]bool{entityID: true}
	frontier := []string{entityID}

	for h := 0; h < hops; h++ {
		next := map[string]bool{}
		for _, id := range frontier {
			neighbors, err := s.adjacent(id, edgeFilter)
			if err != nil {
				return nil, err
			}
			for _, n := range neighbors {
				if !visited[n] {
					next[n] = true
				}
			}
		}
		if len(next) == 0 {
			break
		}
		frontier = frontier[:0]
		for id := range next {
			visited[id] = true
			frontier = append(frontier, id)
		}
	}

	delete(visited, entityID)
	ids := make([]string, 0, len(visited))
	for id := range visited {
		ids = append(ids, id)
	}
	return s.entitiesByID(ids)
}

func (s *Store) adjacent(id string, edgeFilter []graph.EdgeType) ([]string, error) {
	query := `SELECT dst_id FROM relations WHERE src_id = ?`
	args := []any{id}
	if len(edgeFilter) > 0 {
		query += ` AND edge_type IN (` + placeholders(len(edgeFilter)) + `)`
		for _, et := range edgeFilter {
			args = append(args, string(et))
		}
	}
	query += ` UNION SELECT src_id FROM relations WHERE dst_id = ?`
	args = append(args, id)
	if len(edgeFilter) > 0 {
		query += ` AND edge_type IN (` + placeholders(len(edgeFilter)) + `)`
		for _, et := range edgeFilter {
			args = append(args, string(et))
		}
	}

	rows, err := s.conn().Query(query, args...)
	if err != nil {
		return nil, errs.New(errs.StoreBusy, "indexstore.adjacent", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func (s *Store) entitiesByID(ids []string) ([]graph.Entity, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.conn().Query(`SELECT id, kind, path_ref, metadata FROM entities WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, errs.New(errs.StoreBusy, "indexstore.entitiesByID", err)
	}
	defer rows.Close()

	var out []graph.Entity
	for rows.Next() {
		var e graph.Entity
		var metadataJSON string
		if err := rows.Scan(&e.ID, &e.Kind, &e.PathRef, &metadataJSON); err != nil {
			return nil, err
		}
		e.Metadata = decodeMetadata(metadataJSON)
		out = append(out, e)
	}
	return out, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	out := make([]byte, 0, n*2-1)
	for i := 0; i < n; i++ {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, '?')
	}
	return string(out)
}
