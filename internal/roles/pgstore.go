package roles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roledir/roledir/internal/shared"
)

const pgUniqueViolation = "23505"

// PGStore is a Store backed by PostgreSQL. Documents live as jsonb in a
// roles table keyed by role_id (see scripts/schema.sql); the primary key
// makes Insert atomic on absence.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs a PGStore on the given pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// Get fetches a document by role_id.
func (s *PGStore) Get(ctx context.Context, roleID string) (Document, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `SELECT doc FROM roles WHERE role_id = $1`, roleID).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, fmt.Errorf("pgstore: get %q: %w", roleID, shared.ErrNotFound)
		}
		return Document{}, fmt.Errorf("pgstore: get %q: %w", roleID, err)
	}
	return decodeDocument(payload)
}

// Query compiles the predicate to jsonb operators and returns matching
// documents.
func (s *PGStore) Query(ctx context.Context, p Predicate) ([]Document, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("pgstore: query: %w", err)
	}
	sql, args := compilePredicate(p)
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("pgstore: query: %w", err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("pgstore: query scan: %w", err)
		}
		doc, err := decodeDocument(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgstore: query rows: %w", err)
	}
	return out, nil
}

// Insert stores a new document; the primary key maps a concurrent
// duplicate create to ErrDuplicate.
func (s *PGStore) Insert(ctx context.Context, doc Document) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("pgstore: insert %q: encode: %w", doc.RoleID, err)
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO roles (role_id, doc) VALUES ($1, $2)`, doc.RoleID, payload)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("pgstore: insert %q: %w", doc.RoleID, shared.ErrDuplicate)
		}
		return fmt.Errorf("pgstore: insert %q: %w", doc.RoleID, err)
	}
	return nil
}

// Replace overwrites an existing document in full.
func (s *PGStore) Replace(ctx context.Context, doc Document) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("pgstore: replace %q: encode: %w", doc.RoleID, err)
	}
	tag, err := s.pool.Exec(ctx, `UPDATE roles SET doc = $2 WHERE role_id = $1`, doc.RoleID, payload)
	if err != nil {
		return fmt.Errorf("pgstore: replace %q: %w", doc.RoleID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pgstore: replace %q: %w", doc.RoleID, shared.ErrNotFound)
	}
	return nil
}

// Delete removes a document by role_id.
func (s *PGStore) Delete(ctx context.Context, roleID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM roles WHERE role_id = $1`, roleID)
	if err != nil {
		return fmt.Errorf("pgstore: delete %q: %w", roleID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pgstore: delete %q: %w", roleID, shared.ErrNotFound)
	}
	return nil
}

// compilePredicate renders a validated predicate as SQL. Field names come
// from the fixed allow-list, never from caller input.
func compilePredicate(p Predicate) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	for _, c := range p.Conditions {
		args = append(args, c.Value)
		n := len(args)
		switch c.Op {
		case OpEquals:
			clauses = append(clauses, fmt.Sprintf("doc->>'%s' = $%d", c.Field, n))
		case OpRegex:
			clauses = append(clauses, fmt.Sprintf("doc->>'%s' ~ $%d", c.Field, n))
		case OpContains:
			clauses = append(clauses, fmt.Sprintf("doc->'%s' ? $%d", c.Field, n))
		}
	}
	sql := `SELECT doc FROM roles`
	if len(clauses) > 0 {
		sql += " WHERE " + strings.Join(clauses, " AND ")
	}
	return sql, args
}

func decodeDocument(payload []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return Document{}, fmt.Errorf("pgstore: decode document: %w", err)
	}
	doc.Normalize()
	return doc, nil
}
