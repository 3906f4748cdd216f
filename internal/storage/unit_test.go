package storage

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cdineshreddy12/Wrapper-sub003/internal/reliability"
	"github.com/Cdineshreddy12/Wrapper-sub003/internal/tenant"
)

func TestBeginUnit_RejectsInvalidTenant(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	gw := NewGateway(db, nil, 0)

	_, err = gw.BeginUnit(context.Background(), tenant.Context{})

	require.Error(t, err)
	assert.ErrorIs(t, err, reliability.ErrAuthConfiguration)

	var te *reliability.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, reliability.FailureAuthConfiguration, te.Class)
}

func TestBeginUnit_SetsSessionVars(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT set_config").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	gw := NewGateway(db, nil, 0)

	tc := tenant.Context{TenantID: uuid.New(), UserID: uuid.New()}

	u, err := gw.BeginUnit(context.Background(), tc)
	require.NoError(t, err)

	require.NoError(t, u.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUnit_PostCommitHooksRunAfterCommit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT set_config").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	gw := NewGateway(db, nil, 0)
	u, err := gw.BeginUnit(context.Background(), tenant.Context{TenantID: uuid.New()})
	require.NoError(t, err)

	var ran bool
	u.AddPostCommitHook(func() { ran = true })

	require.False(t, ran, "hook must not run before commit")
	require.NoError(t, u.Commit())
	assert.True(t, ran, "hook must run after commit")
}

func TestUnit_RollbackAfterCommitIsNoOp(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT set_config").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	gw := NewGateway(db, nil, 0)
	u, err := gw.BeginUnit(context.Background(), tenant.Context{TenantID: uuid.New()})
	require.NoError(t, err)

	require.NoError(t, u.Commit())
	require.NoError(t, u.Rollback(), "rollback after commit must be a safe no-op")
}

func TestUnit_DoubleCommitFails(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT set_config").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	gw := NewGateway(db, nil, 0)
	u, err := gw.BeginUnit(context.Background(), tenant.Context{TenantID: uuid.New()})
	require.NoError(t, err)

	require.NoError(t, u.Commit())
	require.Error(t, u.Commit())
}
