package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/isdelr/keeper-notes-be/internal/apperr"
	"github.com/isdelr/keeper-notes-be/internal/auth"
	"github.com/isdelr/keeper-notes-be/internal/database"
	"github.com/isdelr/keeper-notes-be/internal/models"
	"golang.org/x/crypto/bcrypt"
)

const (
	msgRegisterFieldsRequired = "username, email and password are required"
	msgLoginFieldsRequired    = "email and password are required"
	msgAccountTaken           = "Username or email already in use"
	msgInvalidCredentials     = "Invalid credentials"
	msgPasswordTooLong        = "password must be at most 72 bytes"
)

// AccountServiceProvider defines the interface for account services.
type AccountServiceProvider interface {
	Register(ctx context.Context, username, email, password string) (models.AuthResult, error)
	Login(ctx context.Context, email, password string) (models.AuthResult, error)
}

// AccountService registers accounts, verifies credentials and issues tokens.
type AccountService struct {
	db         *database.DB
	tokens     *auth.TokenManager
	bcryptCost int
	dummyHash  []byte
	now        func() time.Time
}

// NewAccountService creates a new AccountService. Costs outside bcrypt's
// accepted range fall back to bcrypt.DefaultCost.
func NewAccountService(db *database.DB, tokens *auth.TokenManager, bcryptCost int) (*AccountService, error) {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	// Compared against when the email is unknown so both failure paths cost
	// one bcrypt verification.
	dummy, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare dummy hash: %w", err)
	}
	return &AccountService{
		db:         db,
		tokens:     tokens,
		bcryptCost: bcryptCost,
		dummyHash:  dummy,
		now:        time.Now,
	}, nil
}

// Register creates a new account and returns a session token for it.
func (s *AccountService) Register(ctx context.Context, username, email, password string) (models.AuthResult, error) {
	if username == "" || email == "" || password == "" {
		return models.AuthResult{}, apperr.Validation(msgRegisterFieldsRequired)
	}

	taken, err := s.usernameOrEmailTaken(ctx, username, email)
	if err != nil {
		return models.AuthResult{}, err
	}
	if taken {
		return models.AuthResult{}, apperr.Conflict(msgAccountTaken, nil)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return models.AuthResult{}, apperr.Validation(msgPasswordTooLong)
		}
		return models.AuthResult{}, fmt.Errorf("failed to hash password: %w", err)
	}

	account := models.Account{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hashedPassword),
		CreatedAt:    s.now().UTC().Truncate(time.Microsecond),
	}

	const query = `INSERT INTO users (id, username, email, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, s.db.Rebind(query),
		account.ID, account.Username, account.Email, account.PasswordHash, account.CreatedAt)
	if err != nil {
		// The pre-check races with concurrent registrations; the UNIQUE
		// constraints decide.
		if database.IsUniqueViolation(err) {
			return models.AuthResult{}, apperr.Conflict(msgAccountTaken, err)
		}
		return models.AuthResult{}, fmt.Errorf("failed to insert account: %w", err)
	}

	return s.issue(account)
}

// Login verifies credentials and returns a session token. Unknown email and
// wrong password produce the same error.
func (s *AccountService) Login(ctx context.Context, email, password string) (models.AuthResult, error) {
	if email == "" || password == "" {
		return models.AuthResult{}, apperr.Validation(msgLoginFieldsRequired)
	}

	account, err := s.getAccountByEmail(ctx, email)
	if errors.Is(err, sql.ErrNoRows) {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return models.AuthResult{}, apperr.Unauthorized(msgInvalidCredentials)
	}
	if err != nil {
		return models.AuthResult{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return models.AuthResult{}, apperr.Unauthorized(msgInvalidCredentials)
	}

	return s.issue(account)
}

func (s *AccountService) issue(account models.Account) (models.AuthResult, error) {
	token, err := s.tokens.Generate(account.ID)
	if err != nil {
		return models.AuthResult{}, fmt.Errorf("failed to generate token: %w", err)
	}
	return models.AuthResult{Token: token, Account: account.Public()}, nil
}

func (s *AccountService) usernameOrEmailTaken(ctx context.Context, username, email string) (bool, error) {
	const query = `SELECT id FROM users WHERE username = ? OR email = ? LIMIT 1`
	var id string
	err := s.db.QueryRowContext(ctx, s.db.Rebind(query), username, email).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check account uniqueness: %w", err)
	}
	return true, nil
}

// getAccountByEmail returns sql.ErrNoRows unwrapped when no account matches.
func (s *AccountService) getAccountByEmail(ctx context.Context, email string) (models.Account, error) {
	const query = `SELECT id, username, email, password_hash, created_at FROM users WHERE email = ? LIMIT 1`
	var account models.Account
	err := s.db.QueryRowContext(ctx, s.db.Rebind(query), email).
		Scan(&account.ID, &account.Username, &account.Email, &account.PasswordHash, &account.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Account{}, sql.ErrNoRows
	}
	if err != nil {
		return models.Account{}, fmt.Errorf("failed to look up account: %w", err)
	}
	account.CreatedAt = account.CreatedAt.UTC()
	return account, nil
}
