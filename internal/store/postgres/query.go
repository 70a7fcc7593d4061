package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/imobflow/imobflow/internal/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// conditions accumulates WHERE clauses with positional arguments. Each clause
// is a format string whose %[1]s verbs are replaced with the argument
// placeholder, so one argument can be referenced several times.
type conditions struct {
	clauses []string
	args    []any
}

func (c *conditions) add(clause string, arg any) {
	c.args = append(c.args, arg)
	c.clauses = append(c.clauses, fmt.Sprintf(clause, "$"+strconv.Itoa(len(c.args))))
}

func (c *conditions) raw(clause string) {
	c.clauses = append(c.clauses, clause)
}

// scope adds the tenant and ownership pre-filter. assignedCol may be empty
// for tables without an assignee.
func (c *conditions) scope(s store.Scope, assignedCol string) {
	if s.TenantID != nil {
		c.add("tenant_id = %s", *s.TenantID)
	}
	if s.OwnerID != nil {
		if assignedCol == "" {
			c.add("created_by = %s", *s.OwnerID)
		} else {
			c.add("COALESCE("+assignedCol+", created_by) = %s", *s.OwnerID)
		}
	}
}

func (c *conditions) where() string {
	if len(c.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(c.clauses, " AND ")
}

// page appends LIMIT/OFFSET placeholders.
func (c *conditions) page(p store.Page) string {
	p = p.Normalize()
	c.args = append(c.args, p.Limit, p.Offset)
	n := len(c.args)
	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", n-1, n)
}

func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

// queryDocs runs a query whose first column is a JSONB document and decodes
// each row into a T.
func queryDocs[T any](ctx context.Context, pool *pgxpool.Pool, query string, args ...any) ([]*T, error) {
	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapPostgresError(err, nil)
	}
	defer rows.Close()

	var out []*T
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		doc := new(T)
		if err := json.Unmarshal(raw, doc); err != nil {
			return nil, fmt.Errorf("failed to decode document: %w", err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}
	return out, nil
}

// getDoc loads a single JSONB document, returning notFound when no row matches.
func getDoc[T any](ctx context.Context, pool *pgxpool.Pool, notFound error, query string, args ...any) (*T, error) {
	var raw []byte
	if err := pool.QueryRow(ctx, query, args...).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound
		}
		return nil, mapPostgresError(err, nil)
	}
	doc := new(T)
	if err := json.Unmarshal(raw, doc); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return doc, nil
}

// count runs a COUNT(*) query.
func count(ctx context.Context, pool *pgxpool.Pool, query string, args ...any) (int, error) {
	var n int
	if err := pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, mapPostgresError(err, nil)
	}
	return n, nil
}

// missedUpdate distinguishes a missing row from a stale version after an
// UPDATE ... WHERE version = $n affected nothing.
func missedUpdate(ctx context.Context, pool *pgxpool.Pool, table, idCol string, id uuid.UUID, notFound error) error {
	var exists bool
	err := pool.QueryRow(ctx,
		fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s WHERE %s = $1)", table, idCol), id,
	).Scan(&exists)
	if err != nil {
		return mapPostgresError(err, nil)
	}
	if !exists {
		return notFound
	}
	return store.ErrVersionConflict
}
