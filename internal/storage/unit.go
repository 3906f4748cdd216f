package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Cdineshreddy12/Wrapper-sub003/internal/reliability"
	"github.com/Cdineshreddy12/Wrapper-sub003/internal/tenant"
)

var tracer = otel.Tracer("github.com/Cdineshreddy12/Wrapper-sub003/internal/storage")

// Unit is a bound unit of work: one *sql.Tx, one Tenant Context, terminated by exactly
// one of Commit or Rollback. Every balance mutation acquires its row lock within a Unit.
type Unit struct {
	tx         *sql.Tx
	ctx        context.Context
	cancel     context.CancelFunc
	tenant     tenant.Context
	postHooks  []func()
	terminated bool
	span       trace.Span
}

// BeginUnit opens a new Unit bound to tc, setting the three session variables read by
// row-level security predicates: app.tenant_id, app.user_id, app.is_admin. A Unit
// acquired without a valid tenant.Context fails immediately with ErrAuthConfiguration,
// for row-level security.
func (g *Gateway) BeginUnit(ctx context.Context, tc tenant.Context) (*Unit, error) {
	if !tc.IsValid() {
		return nil, reliability.NewTransportError(reliability.FailureAuthConfiguration,
			fmt.Errorf("%w: unit begun without tenant id", reliability.ErrAuthConfiguration))
	}

	ctx, span := tracer.Start(ctx, "storage.unit")
	span.SetAttributes(attribute.String("app.tenant_id", tc.TenantID.String()))

	ctx, cancel := context.WithTimeout(ctx, g.unitTimeout)

	tx, err := g.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		span.RecordError(err)
		span.End()
		cancel()

		return nil, fmt.Errorf("beginning unit: %w", err)
	}

	u := &Unit{tx: tx, ctx: ctx, cancel: cancel, tenant: tc, span: span}

	if err := u.setSessionVars(); err != nil {
		_ = tx.Rollback()
		span.RecordError(err)
		span.End()
		cancel()

		return nil, fmt.Errorf("setting tenant session variables: %w", err)
	}

	return u, nil
}

func (u *Unit) setSessionVars() error {
	isAdmin := "false"
	if u.tenant.IsAdmin {
		isAdmin = "true"
	}

	_, err := u.tx.ExecContext(u.ctx,
		"SELECT set_config('app.tenant_id', $1, true), set_config('app.user_id', $2, true), set_config('app.is_admin', $3, true)",
		u.tenant.TenantID.String(), u.tenant.UserID.String(), isAdmin)

	return err
}

// Tenant returns the Tenant Context this Unit is bound to.
func (u *Unit) Tenant() tenant.Context { return u.tenant }

// Exec runs a statement against the bound transaction.
func (u *Unit) Exec(query string, args ...any) (sql.Result, error) {
	return u.tx.ExecContext(u.ctx, query, args...)
}

// Query runs a row-returning statement against the bound transaction.
func (u *Unit) Query(query string, args ...any) (*sql.Rows, error) {
	return u.tx.QueryContext(u.ctx, query, args...)
}

// QueryRow runs a single-row statement against the bound transaction.
func (u *Unit) QueryRow(query string, args ...any) *sql.Row {
	return u.tx.QueryRowContext(u.ctx, query, args...)
}

// AddPostCommitHook registers fn to run, in order, after this Unit commits successfully.
// Hooks never run inside the transaction — this avoids the common pitfall of
// fire-and-forget side effects from inside a DB transaction.
func (u *Unit) AddPostCommitHook(fn func()) {
	u.postHooks = append(u.postHooks, fn)
}

// Commit finalizes the Unit and runs any registered post-commit hooks in order.
func (u *Unit) Commit() error {
	if u.terminated {
		return errors.New("unit already terminated")
	}

	u.terminated = true
	defer u.cancel()
	defer u.span.End()

	if err := u.tx.Commit(); err != nil {
		u.span.RecordError(err)
		u.span.SetStatus(codes.Error, "commit failed")

		return fmt.Errorf("committing unit: %w", err)
	}

	for _, hook := range u.postHooks {
		hook()
	}

	return nil
}

// Rollback aborts the Unit. Safe to call after Commit has already terminated it.
func (u *Unit) Rollback() error {
	if u.terminated {
		return nil
	}

	u.terminated = true

	defer u.cancel()
	defer u.span.End()

	u.span.SetStatus(codes.Error, "rolled back")

	if err := u.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		u.span.RecordError(err)
		return fmt.Errorf("rolling back unit: %w", err)
	}

	return nil
}

// Context returns the deadline-bound context backing this Unit's operations.
func (u *Unit) Context() context.Context { return u.ctx }
