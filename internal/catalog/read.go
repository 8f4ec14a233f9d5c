package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// Export is one row of the exports table.
type Export struct {
	DocumentID string
	Schema     string
	Root       string
}

// LayoutRecord is one stored container or command.
type LayoutRecord struct {
	Kind          string
	QualifiedName string
	Abstract      bool
	SizeBits      int64
	Dynamic       bool
	Chain         []string
}

// PlacementRecord is one stored entry of a layout.
type PlacementRecord struct {
	Ordinal  int
	Name     string
	Kind     string
	Origin   string // qualified name of the declaring level
	StartBit int64
	SizeBits int64
	Dynamic  bool
	Assigned *string // nil unless the slot is constant
}

// Exports lists every exported document ordered by document id.
//
// Returns an empty slice (not nil) for an empty catalog.
func (c *Catalog) Exports(ctx context.Context) ([]Export, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT document_id, schema, root
		FROM exports
		ORDER BY document_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query exports: %w", err)
	}
	defer rows.Close()

	exports := []Export{}
	for rows.Next() {
		var e Export
		if err := rows.Scan(&e.DocumentID, &e.Schema, &e.Root); err != nil {
			return nil, fmt.Errorf("scan export: %w", err)
		}
		exports = append(exports, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exports: %w", err)
	}
	return exports, nil
}

// Layout returns one stored layout. found is false when the document
// has no layout of that kind and name.
func (c *Catalog) Layout(ctx context.Context, documentID, kind, qualifiedName string) (rec LayoutRecord, found bool, err error) {
	var chain string
	err = c.db.QueryRowContext(ctx, `
		SELECT kind, qualified_name, abstract, size_bits, dynamic, chain
		FROM layouts
		WHERE document_id = ? AND kind = ? AND qualified_name = ?
	`, documentID, kind, qualifiedName).Scan(
		&rec.Kind, &rec.QualifiedName, &rec.Abstract, &rec.SizeBits, &rec.Dynamic, &chain)
	if errors.Is(err, sql.ErrNoRows) {
		return LayoutRecord{}, false, nil
	}
	if err != nil {
		return LayoutRecord{}, false, fmt.Errorf("query layout: %w", err)
	}
	if err := json.Unmarshal([]byte(chain), &rec.Chain); err != nil {
		return LayoutRecord{}, false, fmt.Errorf("decode chain of %s: %w", qualifiedName, err)
	}
	return rec, true, nil
}

// Placements returns the effective entries of a layout in placement
// order. Containers and commands may share a qualified name, so kind
// selects which one is meant.
//
// Returns an empty slice (not nil) if the layout is unknown.
func (c *Catalog) Placements(ctx context.Context, documentID, kind, qualifiedName string) ([]PlacementRecord, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT ordinal, name, kind, origin, start_bit, size_bits, dynamic, assigned
		FROM placements
		WHERE document_id = ? AND layout_kind = ? AND layout = ?
		ORDER BY ordinal ASC
	`, documentID, kind, qualifiedName)
	if err != nil {
		return nil, fmt.Errorf("query placements: %w", err)
	}
	defer rows.Close()

	placements := []PlacementRecord{}
	for rows.Next() {
		var (
			p        PlacementRecord
			assigned sql.NullString
		)
		if err := rows.Scan(&p.Ordinal, &p.Name, &p.Kind, &p.Origin,
			&p.StartBit, &p.SizeBits, &p.Dynamic, &assigned); err != nil {
			return nil, fmt.Errorf("scan placement: %w", err)
		}
		if assigned.Valid {
			p.Assigned = &assigned.String
		}
		placements = append(placements, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate placements: %w", err)
	}
	return placements, nil
}

// FindPlacements returns every placement of name across the layouts of a
// document, ordered by layout then ordinal. Served by the name index.
func (c *Catalog) FindPlacements(ctx context.Context, documentID, name string) (map[string][]PlacementRecord, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT layout_kind, layout, ordinal, name, kind, origin, start_bit, size_bits, dynamic, assigned
		FROM placements
		WHERE document_id = ? AND name = ?
		ORDER BY layout_kind, layout COLLATE BINARY, ordinal
	`, documentID, name)
	if err != nil {
		return nil, fmt.Errorf("query placements: %w", err)
	}
	defer rows.Close()

	found := map[string][]PlacementRecord{}
	for rows.Next() {
		var (
			kind, layout string
			p            PlacementRecord
			assigned     sql.NullString
		)
		if err := rows.Scan(&kind, &layout, &p.Ordinal, &p.Name, &p.Kind, &p.Origin,
			&p.StartBit, &p.SizeBits, &p.Dynamic, &assigned); err != nil {
			return nil, fmt.Errorf("scan placement: %w", err)
		}
		if assigned.Valid {
			p.Assigned = &assigned.String
		}
		key := kind + " " + layout
		found[key] = append(found[key], p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate placements: %w", err)
	}
	return found, nil
}
