package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/housemate/internal/model"
)

type UserStore struct {
	db DBTX
}

func scanUser(scanner interface{ Scan(...any) error }) (*model.User, error) {
	var (
		u                    model.User
		householdID          sql.NullString
		createdAt, updatedAt string
	)
	err := scanner.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.AvatarURL, &householdID, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	u.HouseholdID = stringPtr(householdID)
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if u.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

const userCols = `id, email, username, password_hash, avatar_url, household_id, created_at, updated_at`

// Create inserts a user. It returns ErrDuplicate if the email or username
// is already registered.
func (s *UserStore) Create(ctx context.Context, email, username, passwordHash string) (*model.User, error) {
	id := newID()
	ts := formatTime(now())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, username, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, email, username, passwordHash, ts, ts,
	)
	if isUniqueViolation(err) {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *UserStore) GetByID(ctx context.Context, id string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE email = ?`, email)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

func (s *UserStore) SetAvatar(ctx context.Context, id, avatarURL string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET avatar_url = ?, updated_at = ? WHERE id = ?`,
		avatarURL, formatTime(now()), id,
	)
	if err != nil {
		return fmt.Errorf("set avatar: %w", err)
	}
	return nil
}

// SetHousehold points the user at a household, or clears the pointer when
// householdID is nil.
func (s *UserStore) SetHousehold(ctx context.Context, id string, householdID *string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET household_id = ?, updated_at = ? WHERE id = ?`,
		nullString(householdID), formatTime(now()), id,
	)
	if err != nil {
		return fmt.Errorf("set user household: %w", err)
	}
	return nil
}

// ClearHouseholdIf clears the pointer only while it still references
// householdID. It reports whether a row changed.
func (s *UserStore) ClearHouseholdIf(ctx context.Context, id, householdID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET household_id = NULL, updated_at = ? WHERE id = ? AND household_id = ?`,
		formatTime(now()), id, householdID,
	)
	if err != nil {
		return false, fmt.Errorf("clear user household: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// ClearHouseholdForAll clears the pointer of every user referencing the
// household, member or not.
func (s *UserStore) ClearHouseholdForAll(ctx context.Context, householdID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET household_id = NULL, updated_at = ? WHERE household_id = ?`,
		formatTime(now()), householdID,
	)
	if err != nil {
		return 0, fmt.Errorf("clear household pointers: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// ListWithHousehold returns every user whose household pointer is set.
func (s *UserStore) ListWithHousehold(ctx context.Context) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userCols+` FROM users WHERE household_id IS NOT NULL ORDER BY id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list users with household: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}
