package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/scenebind/host/internal/core/ident"
	"github.com/scenebind/host/internal/lifecycle"
	"github.com/scenebind/host/internal/scene"
)

// JournalRepo stores destruction cascade reports.
type JournalRepo struct {
	db *DB
}

func NewJournalRepo(db *DB) *JournalRepo {
	return &JournalRepo{db: db}
}

// WriteBatch writes reports in a single transaction. Either all of them are
// stored or none is.
func (r *JournalRepo) WriteBatch(ctx context.Context, reports []lifecycle.Report) error {
	if len(reports) == 0 {
		return nil
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("journal begin: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, rep := range reports {
		batch.Queue(
			`INSERT INTO destroy_journal (target_id, kind, name, scope, nodes, components, unregistered, destroyed_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			int64(rep.Target), rep.Kind.String(), rep.Name, rep.Scope.String(),
			rep.Nodes, rep.Components, rep.Unregistered, rep.At,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("journal insert: %w", err)
	}

	return tx.Commit(ctx)
}

// JournalEntry is one stored report.
type JournalEntry struct {
	ID           int64
	Target       ident.ID
	Kind         string
	Name         string
	Scope        string
	Nodes        int
	Components   int
	Unregistered int
	DestroyedAt  time.Time
}

// Recent returns up to limit entries, newest first.
func (r *JournalRepo) Recent(ctx context.Context, limit int) ([]JournalEntry, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, target_id, kind, name, scope, nodes, components, unregistered, destroyed_at
		 FROM destroy_journal ORDER BY destroyed_at DESC, id DESC LIMIT $1`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("journal query: %w", err)
	}
	defer rows.Close()

	var out []JournalEntry
	for rows.Next() {
		var e JournalEntry
		var target int64
		if err := rows.Scan(&e.ID, &target, &e.Kind, &e.Name, &e.Scope,
			&e.Nodes, &e.Components, &e.Unregistered, &e.DestroyedAt); err != nil {
			return nil, fmt.Errorf("journal scan: %w", err)
		}
		e.Target = ident.ID(target)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Prune deletes entries destroyed before cutoff.
func (r *JournalRepo) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM destroy_journal WHERE destroyed_at < $1`, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("journal prune: %w", err)
	}
	return tag.RowsAffected(), nil
}

// kindOf maps a stored kind name back to its scene kind.
func kindOf(name string) (scene.Kind, bool) {
	for k := scene.KindNode; k <= scene.KindSubsystem; k++ {
		if k.String() == name {
			return k, true
		}
	}
	return 0, false
}

// Report converts the entry back into a cascade report.
func (e JournalEntry) Report() lifecycle.Report {
	kind, _ := kindOf(e.Kind)
	scope := lifecycle.SelfOnly
	if e.Scope == lifecycle.EntireSubtree.String() {
		scope = lifecycle.EntireSubtree
	}
	return lifecycle.Report{
		Target:       e.Target,
		Kind:         kind,
		Name:         e.Name,
		Scope:        scope,
		Nodes:        e.Nodes,
		Components:   e.Components,
		Unregistered: e.Unregistered,
		At:           e.DestroyedAt,
	}
}
