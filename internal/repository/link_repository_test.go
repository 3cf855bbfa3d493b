package repository

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbcdev/attend-sync/internal/models"
)

func newLinkMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestLinkRepositoryFindByUserIDMissing(t *testing.T) {
	db, mock, cleanup := newLinkMock(t)
	defer cleanup()
	repo := NewLinkRepository(db)

	mock.ExpectQuery("SELECT .+ FROM student_links WHERE user_id = \\$1").
		WithArgs("user-9").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}))

	link, err := repo.FindByUserID(context.Background(), "user-9")
	require.NoError(t, err)
	assert.Nil(t, link)
}

func TestLinkRepositoryUpsert(t *testing.T) {
	db, mock, cleanup := newLinkMock(t)
	defer cleanup()
	repo := NewLinkRepository(db)

	mock.ExpectExec("INSERT INTO student_links .+ ON CONFLICT \\(user_id\\) DO UPDATE").
		WithArgs("user-1", "555", "20240042", "Ada", "Byron", models.LinkStatusSynced, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	link := &models.StudentLink{
		UserID:           "user-1",
		PersonID:         "555",
		VisibleStudentID: "20240042",
		FirstName:        "Ada",
		LastName:         "Byron",
		SyncStatus:       models.LinkStatusSynced,
	}
	require.NoError(t, repo.Upsert(context.Background(), link))
	assert.False(t, link.UpdatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLinkRepositoryUpsertDefaultsStatus(t *testing.T) {
	db, mock, cleanup := newLinkMock(t)
	defer cleanup()
	repo := NewLinkRepository(db)

	mock.ExpectExec("INSERT INTO student_links .+ ON CONFLICT \\(user_id\\) DO UPDATE").
		WithArgs("user-2", "556", "", "", "", models.LinkStatusPending, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	link := &models.StudentLink{UserID: "user-2", PersonID: "556"}
	require.NoError(t, repo.Upsert(context.Background(), link))
	assert.Equal(t, models.LinkStatusPending, link.SyncStatus)
}
