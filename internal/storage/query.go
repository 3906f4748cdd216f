package storage

import (
	"context"
	"database/sql"

	"github.com/Cdineshreddy12/Wrapper-sub003/internal/tenant"
)

// Query is the non-transactional read path: it opens a short-lived Unit purely to get
// the row-level-security session variables applied, runs query, hands the *sql.Rows to
// scan, then commits. Callers that need several statements to see a consistent snapshot
// should use BeginUnit directly instead.
func (g *Gateway) Query(ctx context.Context, tc tenant.Context, query string, args []any, scan func(*sql.Rows) error) error {
	u, err := g.BeginUnit(ctx, tc)
	if err != nil {
		return err
	}

	rows, err := u.Query(query, args...)
	if err != nil {
		_ = u.Rollback()
		return err
	}

	scanErr := scan(rows)

	closeErr := rows.Close()

	if scanErr != nil {
		_ = u.Rollback()
		return scanErr
	}

	if closeErr != nil {
		_ = u.Rollback()
		return closeErr
	}

	if err := rows.Err(); err != nil {
		_ = u.Rollback()
		return err
	}

	return u.Commit()
}
