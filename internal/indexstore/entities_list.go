package indexstore

import (
	"llmc/internal/errs"
	"llmc/internal/graph"
)

// AllEntities returns every Entity currently stored, for rebuilding a
// fresh graph.Registry before a BuildRelations pass.
func (s *Store) AllEntities() ([]graph.Entity, error) {
	rows, err := s.conn().Query(`SELECT id, kind, path_ref, metadata FROM entities`)
	if err != nil {
		return nil, errs.New(errs.StoreBusy, "indexstore.AllEntities", err)
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
