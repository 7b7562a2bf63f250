package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/isdelr/keeper-notes-be/internal/apperr"
	"github.com/isdelr/keeper-notes-be/internal/auth"
	"github.com/isdelr/keeper-notes-be/internal/database"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	return openTestDBWithPool(t, 1)
}

// openTestDBWithPool opens a migrated file database whose pool allows
// maxOpen concurrent connections.
func openTestDBWithPool(t *testing.T, maxOpen int) *database.DB {
	t.Helper()
	ctx := context.Background()
	db, err := database.New(ctx, database.Options{
		Driver:       "sqlite",
		URL:          "file:" + filepath.Join(t.TempDir(), "keeper.db"),
		MaxOpenConns: maxOpen,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(ctx, db))
	return db
}

func newMockDB(t *testing.T) (*database.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return database.Wrap(sqlDB, database.DialectPostgres), mock
}

func newAccountService(t *testing.T, db *database.DB) (*AccountService, *auth.TokenManager) {
	t.Helper()
	tokens := auth.NewTokenManager("test-secret", time.Hour)
	svc, err := NewAccountService(db, tokens, bcrypt.MinCost)
	require.NoError(t, err)
	return svc, tokens
}

func TestRegister_Success(t *testing.T) {
	svc, tokens := newAccountService(t, openTestDB(t))

	res, err := svc.Register(context.Background(), "alice", "a@x.io", "pw1")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Account.ID)
	assert.Equal(t, "alice", res.Account.Username)
	assert.Equal(t, "a@x.io", res.Account.Email)
	assert.Empty(t, res.Account.PasswordHash)
	assert.False(t, res.Account.CreatedAt.IsZero())

	subject, err := tokens.Validate(res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.Account.ID, subject)
}

func TestRegister_MissingFields(t *testing.T) {
	svc, _ := newAccountService(t, openTestDB(t))

	tests := []struct {
		name, username, email, password string
	}{
		{"no username", "", "a@x.io", "pw"},
		{"no email", "alice", "", "pw"},
		{"no password", "alice", "a@x.io", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tc.username, tc.email, tc.password)
			require.Error(t, err)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
			assert.Equal(t, msgRegisterFieldsRequired, apperr.PublicMessage(err))
		})
	}
}

func TestRegister_Conflict(t *testing.T) {
	svc, _ := newAccountService(t, openTestDB(t))
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "a@x.io", "pw1")
	require.NoError(t, err)

	for _, tc := range []struct{ username, email string }{
		{"alice", "other@x.io"},
		{"bob", "a@x.io"},
		{"alice", "a@x.io"},
	} {
		_, err := svc.Register(ctx, tc.username, tc.email, "pw2")
		require.Error(t, err, "%s/%s", tc.username, tc.email)
		assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
		assert.Equal(t, msgAccountTaken, apperr.PublicMessage(err))
	}

	// Username comparison is case-sensitive.
	_, err = svc.Register(ctx, "Alice", "b@x.io", "pw3")
	assert.NoError(t, err)
}

func TestRegister_ConcurrentSameUsername(t *testing.T) {
	svc, _ := newAccountService(t, openTestDB(t))

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok        int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Register(context.Background(), "racer", fmt.Sprintf("r%d@x.io", i), "pw")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case apperr.KindOf(err) == apperr.KindConflict:
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, conflicts)
}

func TestRegister_PasswordTooLong(t *testing.T) {
	svc, _ := newAccountService(t, openTestDB(t))

	_, err := svc.Register(context.Background(), "alice", "a@x.io", strings.Repeat("p", 73))
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestRegister_UniqueViolationOnInsert(t *testing.T) {
	db, mock := newMockDB(t)
	svc, _ := newAccountService(t, db)

	mock.ExpectQuery(`(?s)^SELECT\s+id\s+FROM\s+users\s+WHERE\s+username\s*=\s*\$1\s+OR\s+email\s*=\s*\$2`).
		WithArgs("alice", "a@x.io").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+users`).
		WithArgs(sqlmock.AnyArg(), "alice", "a@x.io", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := svc.Register(context.Background(), "alice", "a@x.io", "pw")
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegister_StorageFailureIsInternal(t *testing.T) {
	db, mock := newMockDB(t)
	svc, _ := newAccountService(t, db)

	mock.ExpectQuery(`(?s)^SELECT\s+id\s+FROM\s+users`).
		WillReturnError(errors.New("connection reset"))

	_, err := svc.Register(context.Background(), "alice", "a@x.io", "pw")
	require.Error(t, err)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
	assert.Equal(t, apperr.InternalMessage, apperr.PublicMessage(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogin_Success(t *testing.T) {
	svc, tokens := newAccountService(t, openTestDB(t))
	ctx := context.Background()

	reg, err := svc.Register(ctx, "alice", "a@x.io", "pw1")
	require.NoError(t, err)

	res, err := svc.Login(ctx, "a@x.io", "pw1")
	require.NoError(t, err)
	assert.Equal(t, reg.Account.ID, res.Account.ID)
	assert.Equal(t, "alice", res.Account.Username)
	assert.Empty(t, res.Account.PasswordHash)

	subject, err := tokens.Validate(res.Token)
	require.NoError(t, err)
	assert.Equal(t, reg.Account.ID, subject)
}

func TestLogin_FailuresLookAlike(t *testing.T) {
	svc, _ := newAccountService(t, openTestDB(t))
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "a@x.io", "pw1")
	require.NoError(t, err)

	_, wrongPassword := svc.Login(ctx, "a@x.io", "nope")
	_, unknownEmail := svc.Login(ctx, "ghost@x.io", "pw1")

	for _, err := range []error{wrongPassword, unknownEmail} {
		require.Error(t, err)
		assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
		assert.Equal(t, msgInvalidCredentials, apperr.PublicMessage(err))
	}
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
}

func TestLogin_MissingFields(t *testing.T) {
	svc, _ := newAccountService(t, openTestDB(t))

	for _, creds := range [][2]string{{"", "pw"}, {"a@x.io", ""}} {
		_, err := svc.Login(context.Background(), creds[0], creds[1])
		require.Error(t, err)
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		assert.Equal(t, msgLoginFieldsRequired, apperr.PublicMessage(err))
	}
}

func TestLogin_StorageFailureIsInternal(t *testing.T) {
	db, mock := newMockDB(t)
	svc, _ := newAccountService(t, db)

	mock.ExpectQuery(`(?s)^SELECT\s+id,\s*username,\s*email,\s*password_hash,\s*created_at\s+FROM\s+users\s+WHERE\s+email\s*=\s*\$1`).
		WithArgs("a@x.io").
		WillReturnError(errors.New("db down"))

	_, err := svc.Login(context.Background(), "a@x.io", "pw")
	require.Error(t, err)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewAccountService_ClampsCost(t *testing.T) {
	svc, err := NewAccountService(nil, auth.NewTokenManager("k", time.Hour), 99)
	require.NoError(t, err)
	assert.Equal(t, bcrypt.DefaultCost, svc.bcryptCost)
}
