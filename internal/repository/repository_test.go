package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/library-reservation/internal/apperr"
	"github.com/iliyamo/library-reservation/internal/booking"
	"github.com/iliyamo/library-reservation/internal/model"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

// newExactMock matches statements byte for byte, for SQL whose clause
// order MySQL is strict about.
func newExactMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

func q(s string) string { return regexp.QuoteMeta(s) }

func day(s string) time.Time {
	t, err := booking.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestCountOverlapping_UsesClosedIntervalPredicate(t *testing.T) {
	db, mock := newMock(t)
	repo := NewReservationRepo(db)

	mock.ExpectQuery(q("SELECT COUNT(*) FROM reservations WHERE book_id=? AND start_date<=? AND end_date>=? AND id<>?")).
		WithArgs(7, "2024-08-15", "2024-08-10", 3).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	n, err := repo.CountOverlapping(context.Background(), 7, booking.Range{Start: day("2024-08-10"), End: day("2024-08-15")}, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCountOverlapping_TimeoutIsUnavailable(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery("SELECT COUNT").WillReturnError(context.DeadlineExceeded)

	_, err := NewReservationRepo(db).CountOverlapping(context.Background(), 1, booking.Range{Start: day("2024-08-01"), End: day("2024-08-02")}, 0)
	assert.True(t, errors.Is(err, apperr.ErrUnavailable))
}

func TestReservationGetByID_NotFound(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery(q("FROM reservations WHERE id=?")).WithArgs(9).WillReturnError(sql.ErrNoRows)

	_, err := NewReservationRepo(db).GetByID(context.Background(), 9)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	assert.Equal(t, "reservation not found", apperr.PublicMessage(err))
}

func TestReservationCreate_FormatsDates(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectExec(q("INSERT INTO reservations (user_id, book_id, start_date, end_date) VALUES (?,?,?,?)")).
		WithArgs(2, 5, "2024-08-01", "2024-08-10").
		WillReturnResult(sqlmock.NewResult(41, 1))

	res := &model.Reservation{UserID: 2, BookID: 5, StartDate: day("2024-08-01"), EndDate: day("2024-08-10")}
	require.NoError(t, NewReservationRepo(db).Create(context.Background(), res))
	assert.Equal(t, uint64(41), res.ID)
}

func TestRangesByBook(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery(q("SELECT start_date, end_date FROM reservations WHERE book_id=?")).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"start_date", "end_date"}).
			AddRow(day("2024-08-01"), day("2024-08-10")).
			AddRow(day("2024-09-01"), day("2024-09-03")))

	got, err := NewReservationRepo(db).RangesByBook(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, day("2024-09-03"), got[1].End)
}

func TestBookCreate_DuplicateTitleIsConflict(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectExec("INSERT INTO books").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'Dune' for key 'title'"})

	err := NewBookRepo(db).Create(context.Background(), &model.Book{Title: "Dune"})
	assert.True(t, errors.Is(err, apperr.ErrConflict))
	assert.Equal(t, "a book with this title already exists", apperr.PublicMessage(err))
}

func TestBookDelete_MissingRowIsNotFound(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectExec(q("DELETE FROM books WHERE id=?")).WithArgs(3).WillReturnResult(sqlmock.NewResult(0, 0))

	err := NewBookRepo(db).Delete(context.Background(), 3)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestRoleAddMembership_DuplicateIsConflict(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectExec(q("INSERT INTO user_roles (user_id, role_id) VALUES (?,?)")).
		WithArgs(4, 1).
		WillReturnError(&mysql.MySQLError{Number: 1062})

	err := NewRoleRepo(db).AddMembership(context.Background(), 4, 1)
	assert.True(t, errors.Is(err, apperr.ErrConflict))
}

func TestRoleRemoveMembership_NotHeld(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectExec(q("DELETE FROM user_roles WHERE user_id=? AND role_id=?")).
		WithArgs(4, 2).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := NewRoleRepo(db).RemoveMembership(context.Background(), 4, 2)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	assert.Equal(t, "user does not have role", apperr.PublicMessage(err))
}

func TestUserGetByUsername_LoadsRoles(t *testing.T) {
	db, mock := newMock(t)
	now := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(q("SELECT "+userColumns+" FROM users WHERE username=? LIMIT 1")).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "email", "password_hash", "name", "last_name", "created_at", "updated_at"}).
			AddRow(2, "alice", "alice@example.com", "hash", "Alice", "Liddell", now, now))
	mock.ExpectQuery(q("WHERE ur.user_id=?")).
		WithArgs(2).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("ADMIN").AddRow("USER"))

	u, err := NewUserRepo(db).GetByUsername(context.Background(), " alice ")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), u.ID)
	assert.Equal(t, []string{"ADMIN", "USER"}, u.Roles)
}

func TestUserCreate_NormalizesEmail(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectExec("INSERT INTO users").
		WithArgs("bob", "bob@example.com", "hash", "Bob", "Builder").
		WillReturnResult(sqlmock.NewResult(8, 1))

	u := &model.User{Username: "bob", Email: "  Bob@Example.COM", PasswordHash: "hash", Name: "Bob", LastName: "Builder"}
	require.NoError(t, NewUserRepo(db).Create(context.Background(), u))
	assert.Equal(t, uint64(8), u.ID)
}

func TestUserList_GroupsRoles(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now().UTC()
	cols := []string{"id", "username", "email", "password_hash", "name", "last_name", "created_at", "updated_at"}

	mock.ExpectQuery("FROM users ORDER BY id").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(1, "admin", "a@x", "h", "", "", now, now).
			AddRow(2, "alice", "b@x", "h", "", "", now, now))
	mock.ExpectQuery("FROM user_roles ur JOIN roles").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "name"}).
			AddRow(1, "ADMIN").AddRow(1, "USER").AddRow(2, "USER"))

	users, err := NewUserRepo(db).List(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, []string{"ADMIN", "USER"}, users[0].Roles)
	assert.Equal(t, []string{"USER"}, users[1].Roles)
}

func TestTokenValidateRefresh(t *testing.T) {
	now := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

	t.Run("live", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewTokenRepo(db)
		repo.now = func() time.Time { return now }
		mock.ExpectQuery("FROM refresh_tokens").WithArgs("h").
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "expires_at", "revoked_at"}).AddRow(5, now.Add(time.Hour), nil))

		id, err := repo.ValidateRefresh(context.Background(), "h")
		require.NoError(t, err)
		assert.Equal(t, uint64(5), id)
	})

	t.Run("expired", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewTokenRepo(db)
		repo.now = func() time.Time { return now }
		mock.ExpectQuery("FROM refresh_tokens").WithArgs("h").
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "expires_at", "revoked_at"}).AddRow(5, now.Add(-time.Hour), nil))

		_, err := repo.ValidateRefresh(context.Background(), "h")
		assert.True(t, errors.Is(err, apperr.ErrNotFound))
	})
}

func TestRunInTx_CommitsAndSharesTx(t *testing.T) {
	db, mock := newMock(t)
	tm := NewTxManager(db)
	books := NewBookRepo(db)
	reservations := NewReservationRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT id FROM books WHERE id=? FOR UPDATE")).WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))
	mock.ExpectExec(q("DELETE FROM reservations WHERE book_id=?")).WithArgs(5).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(q("DELETE FROM books WHERE id=?")).WithArgs(5).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := tm.RunInTx(context.Background(), func(ctx context.Context) error {
		if err := books.LockByID(ctx, 5); err != nil {
			return err
		}
		n, err := reservations.DeleteByBook(ctx, 5)
		if err != nil {
			return err
		}
		assert.Equal(t, int64(2), n)
		return books.Delete(ctx, 5)
	})
	require.NoError(t, err)
}

func TestRunInTx_RollsBackOnError(t *testing.T) {
	db, mock := newMock(t)
	tm := NewTxManager(db)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := tm.RunInTx(context.Background(), func(ctx context.Context) error {
		return tm.RunInTx(ctx, func(context.Context) error { return boom })
	})
	assert.Same(t, boom, err)
}

func TestRunInTx_RollsBackOnPanic(t *testing.T) {
	db, mock := newMock(t)
	tm := NewTxManager(db)

	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.Panics(t, func() {
		_ = tm.RunInTx(context.Background(), func(context.Context) error { panic("boom") })
	})
}

const userRolesQuery = "SELECT r.name FROM user_roles ur JOIN roles r ON r.id = ur.role_id WHERE ur.user_id=? ORDER BY r.name"

func userRow(id uint64, username string) *sqlmock.Rows {
	now := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	return sqlmock.NewRows([]string{"id", "username", "email", "password_hash", "name", "last_name", "created_at", "updated_at"}).
		AddRow(id, username, username+"@example.com", "hash", "", "", now, now)
}

func TestUserLockByID_ForUpdateAfterLimit(t *testing.T) {
	db, mock := newExactMock(t)
	tm := NewTxManager(db)
	repo := NewUserRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT " + userColumns + " FROM users WHERE id=? LIMIT 1 FOR UPDATE").
		WithArgs(2).
		WillReturnRows(userRow(2, "alice"))
	mock.ExpectQuery(userRolesQuery).WithArgs(2).WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("USER"))
	mock.ExpectCommit()

	err := tm.RunInTx(context.Background(), func(ctx context.Context) error {
		u, err := repo.LockByID(ctx, 2)
		if err != nil {
			return err
		}
		assert.Equal(t, []string{"USER"}, u.Roles)
		return nil
	})
	require.NoError(t, err)
}

func TestUserLockByUsername_ForUpdateAfterLimit(t *testing.T) {
	db, mock := newExactMock(t)
	tm := NewTxManager(db)
	repo := NewUserRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT " + userColumns + " FROM users WHERE username=? LIMIT 1 FOR UPDATE").
		WithArgs("alice").
		WillReturnRows(userRow(2, "alice"))
	mock.ExpectQuery(userRolesQuery).WithArgs(2).WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("ADMIN"))
	mock.ExpectCommit()

	err := tm.RunInTx(context.Background(), func(ctx context.Context) error {
		_, err := repo.LockByUsername(ctx, " alice ")
		return err
	})
	require.NoError(t, err)
}

func TestUserLockByID_MissingRowIsNotFound(t *testing.T) {
	db, mock := newExactMock(t)

	mock.ExpectQuery("SELECT " + userColumns + " FROM users WHERE id=? LIMIT 1 FOR UPDATE").
		WithArgs(9).
		WillReturnError(sql.ErrNoRows)

	_, err := NewUserRepo(db).LockByID(context.Background(), 9)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestUserGetByID_DoesNotLock(t *testing.T) {
	db, mock := newExactMock(t)

	mock.ExpectQuery("SELECT " + userColumns + " FROM users WHERE id=? LIMIT 1").
		WithArgs(2).
		WillReturnRows(userRow(2, "alice"))
	mock.ExpectQuery(userRolesQuery).WithArgs(2).WillReturnRows(sqlmock.NewRows([]string{"name"}))

	_, err := NewUserRepo(db).GetByID(context.Background(), 2)
	require.NoError(t, err)
}

func TestBookLockByID_ExactSQL(t *testing.T) {
	db, mock := newExactMock(t)

	mock.ExpectQuery("SELECT id FROM books WHERE id=? FOR UPDATE").
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))

	require.NoError(t, NewBookRepo(db).LockByID(context.Background(), 5))
}
