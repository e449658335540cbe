package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/provider-daemon/internal/chainiface"
)

func newMockPostgres(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return OpenWithDB(db), mock
}

func TestPostgresGetOrCreateProtocol_Existing(t *testing.T) {
	pg, mock := newMockPostgres(t)
	addr, err := chainiface.ParseAddress("0x1111111111111111111111111111111111111111")
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{"id", "address", "details_cid"}).
		AddRow(int64(1), "0x1111111111111111111111111111111111111111", "cidabc")
	mock.ExpectQuery(`SELECT id, address, details_cid FROM protocols WHERE address = \$1`).
		WithArgs("0x1111111111111111111111111111111111111111").
		WillReturnRows(rows)

	row, err := pg.GetOrCreateProtocol(context.Background(), addr, "cidabc")
	require.NoError(t, err)
	require.Equal(t, int64(1), row.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetOrCreateProtocol_Inserts(t *testing.T) {
	pg, mock := newMockPostgres(t)
	addr, err := chainiface.ParseAddress("0x2222222222222222222222222222222222222222")
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT id, address, details_cid FROM protocols WHERE address = \$1`).
		WithArgs("0x2222222222222222222222222222222222222222").
		WillReturnError(sql.ErrNoRows)

	rows := sqlmock.NewRows([]string{"id", "address", "details_cid"}).
		AddRow(int64(7), "0x2222222222222222222222222222222222222222", "cid7")
	mock.ExpectQuery(`INSERT INTO protocols`).
		WithArgs("0x2222222222222222222222222222222222222222", "cid7").
		WillReturnRows(rows)

	row, err := pg.GetOrCreateProtocol(context.Background(), addr, "cid7")
	require.NoError(t, err)
	require.Equal(t, int64(7), row.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSetConfig(t *testing.T) {
	pg, mock := newMockPostgres(t)
	mock.ExpectExec(`INSERT INTO config`).
		WithArgs(ConfigKeyLastProcessedBlock, "1000").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := pg.SetConfig(context.Background(), ConfigKeyLastProcessedBlock, "1000")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetConfig_Missing(t *testing.T) {
	pg, mock := newMockPostgres(t)
	mock.ExpectQuery(`SELECT value FROM config WHERE key = \$1`).
		WithArgs("UNKNOWN").
		WillReturnError(sql.ErrNoRows)

	_, ok, err := pg.GetConfig(context.Background(), "UNKNOWN")
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSyncDetailFiles(t *testing.T) {
	pg, mock := newMockPostgres(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM detail_files WHERE cid != ALL\(\$1\)`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO detail_files`).
		WithArgs("cid1", "hello").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := pg.SyncDetailFiles(map[string][]byte{"cid1": []byte("hello")})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSyncDetailFiles_EmptySet(t *testing.T) {
	pg, mock := newMockPostgres(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM detail_files WHERE cid != ALL\(\$1\)`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := pg.SyncDetailFiles(map[string][]byte{})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
