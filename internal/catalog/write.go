package catalog

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/roach88/mdbgen/internal/document"
	"github.com/roach88/mdbgen/internal/layout"
	"github.com/roach88/mdbgen/internal/mdb"
)

// Layout kinds stored in layouts.kind and placements.layout_kind.
const (
	ContainerLayout = "container"
	CommandLayout   = "command"
)

// WriteModel exports every system, type, parameter and layout of m in a
// single transaction. The document id is derived from the model's
// canonical form, so exporting an unchanged model again reports
// inserted=false and writes nothing.
func (c *Catalog) WriteModel(ctx context.Context, m *layout.Model) (documentID string, inserted bool, err error) {
	documentID = document.ID(document.Build(m)).String()
	tree := m.Tree()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return "", false, fmt.Errorf("write model: begin: %w", err)
	}
	defer tx.Rollback() // no-op after Commit

	res, err := tx.ExecContext(ctx, `
		INSERT INTO exports (document_id, schema, root)
		VALUES (?, ?, ?)
		ON CONFLICT(document_id) DO NOTHING
	`, documentID, document.Schema, tree.System(tree.Root()).QualifiedName)
	if err != nil {
		return "", false, fmt.Errorf("write model: export: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", false, fmt.Errorf("write model: export: %w", err)
	}
	if n == 0 {
		return documentID, false, nil
	}

	w := writer{ctx: ctx, tx: tx, id: documentID, tree: tree}
	w.systems()
	w.types()
	w.parameters()
	for i := 1; i <= tree.NumContainers(); i++ {
		l := m.Container(mdb.ContainerID(i))
		w.layout(ContainerLayout, &l.Layout)
	}
	for i := 1; i <= tree.NumCommands(); i++ {
		l := m.Command(mdb.CommandID(i))
		w.layout(CommandLayout, &l.Layout)
	}
	if w.err != nil {
		return "", false, fmt.Errorf("write model: %w", w.err)
	}

	if err := tx.Commit(); err != nil {
		return "", false, fmt.Errorf("write model: commit: %w", err)
	}
	return documentID, true, nil
}

// writer keeps the first error so the table loops stay flat.
type writer struct {
	ctx  context.Context
	tx   *sql.Tx
	id   string
	tree *mdb.Tree
	err  error
}

func (w *writer) exec(query string, args ...any) {
	if w.err != nil {
		return
	}
	if _, err := w.tx.ExecContext(w.ctx, query, args...); err != nil {
		w.err = err
	}
}

func (w *writer) systems() {
	for i := 1; i <= w.tree.NumSystems(); i++ {
		s := w.tree.System(mdb.SystemID(i))
		var parent any
		if s.Parent.Valid() {
			parent = w.tree.System(s.Parent).QualifiedName
		}
		w.exec(`
			INSERT INTO systems (document_id, qualified_name, parent, short_description)
			VALUES (?, ?, ?, ?)
		`, w.id, s.QualifiedName, parent, s.ShortDescription)
	}
}

func (w *writer) types() {
	for i := 1; i <= w.tree.NumTypes(); i++ {
		t := w.tree.Type(mdb.TypeID(i))
		w.exec(`
			INSERT INTO data_types (document_id, qualified_name, kind, size_bits, dynamic)
			VALUES (?, ?, ?, ?, ?)
		`, w.id, t.QualifiedName, t.Kind().String(), t.SizeBits, t.Dynamic)
	}
}

func (w *writer) parameters() {
	for i := 1; i <= w.tree.NumParameters(); i++ {
		p := w.tree.Parameter(mdb.ParameterID(i))
		w.exec(`
			INSERT INTO parameters (document_id, qualified_name, data_type, data_source)
			VALUES (?, ?, ?, ?)
		`, w.id, p.QualifiedName, w.tree.Type(p.Type).QualifiedName, string(p.DataSource))
	}
}

func (w *writer) layout(kind string, l *layout.Layout) {
	if w.err != nil {
		return
	}
	chain, err := json.Marshal(l.Chain)
	if err != nil {
		w.err = err
		return
	}
	w.exec(`
		INSERT INTO layouts (document_id, kind, qualified_name, abstract, size_bits, dynamic, chain)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, w.id, kind, l.QualifiedName, l.Abstract, l.SizeBits, l.Dynamic, string(chain))

	for i, p := range l.Placements {
		w.exec(`
			INSERT INTO placements
			(document_id, layout_kind, layout, ordinal, name, kind, origin, start_bit, size_bits, dynamic, assigned)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, w.id, kind, l.QualifiedName, i, p.Name, p.Kind.String(), p.Owner,
			p.StartBit, p.SizeBits, p.Dynamic, assigned(w.tree, p))
	}
}

// assigned renders the constant carried by a slot, or nil for NULL.
func assigned(tree *mdb.Tree, p layout.Placement) any {
	switch {
	case p.Kind == mdb.FixedValueEntryKind:
		return hex.EncodeToString(p.Value)
	case p.Assigned.IsSet():
		return tree.FormatValue(p.Type, p.Assigned)
	}
	return nil
}
