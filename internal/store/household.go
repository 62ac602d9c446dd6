package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/housemate/internal/model"
)

// HouseholdStore owns households and their membership rows. The
// household_members table is the source of truth for membership.
type HouseholdStore struct {
	db DBTX
}

func scanHousehold(scanner interface{ Scan(...any) error }) (*model.Household, error) {
	var (
		h                    model.Household
		createdAt, updatedAt string
	)
	err := scanner.Scan(&h.ID, &h.Name, &h.Code, &h.IsPrivate, &h.OwnerID, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if h.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if h.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &h, nil
}

const householdCols = `id, name, code, is_private, owner_id, created_at, updated_at`

// Create inserts a household row. It returns ErrCodeTaken if the code
// collides with an existing one, ignoring case.
func (s *HouseholdStore) Create(ctx context.Context, name, code string, isPrivate bool, ownerID string) (*model.Household, error) {
	id := newID()
	ts := formatTime(now())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO households (id, name, code, is_private, owner_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, name, code, isPrivate, ownerID, ts, ts,
	)
	if isUniqueViolation(err) {
		return nil, ErrCodeTaken
	}
	if err != nil {
		return nil, fmt.Errorf("insert household: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID returns the household with its member ids, or nil if absent.
func (s *HouseholdStore) GetByID(ctx context.Context, id string) (*model.Household, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+householdCols+` FROM households WHERE id = ?`, id)
	return s.load(ctx, row)
}

// GetByCode looks a household up by join code, ignoring case.
func (s *HouseholdStore) GetByCode(ctx context.Context, code string) (*model.Household, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+householdCols+` FROM households WHERE code = ? COLLATE NOCASE`, code)
	return s.load(ctx, row)
}

func (s *HouseholdStore) load(ctx context.Context, row *sql.Row) (*model.Household, error) {
	h, err := scanHousehold(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get household: %w", err)
	}
	if h.Members, err = s.MemberIDs(ctx, h.ID); err != nil {
		return nil, err
	}
	return h, nil
}

// List returns every household ordered by name.
func (s *HouseholdStore) List(ctx context.Context) ([]model.Household, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+householdCols+` FROM households ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list households: %w", err)
	}
	defer rows.Close()

	var households []model.Household
	for rows.Next() {
		h, err := scanHousehold(rows)
		if err != nil {
			return nil, fmt.Errorf("scan household: %w", err)
		}
		households = append(households, *h)
	}
	return households, rows.Err()
}

// SetOwner moves ownership from currentOwnerID to newOwnerID. It reports
// false if the household is missing or currentOwnerID no longer owns it.
func (s *HouseholdStore) SetOwner(ctx context.Context, id, currentOwnerID, newOwnerID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE households SET owner_id = ?, updated_at = ? WHERE id = ? AND owner_id = ?`,
		newOwnerID, formatTime(now()), id, currentOwnerID,
	)
	if err != nil {
		return false, fmt.Errorf("set owner: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *HouseholdStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM households WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete household: %w", err)
	}
	return nil
}

// AddMember inserts a membership row. A user can hold only one, so a
// second insert for the same user returns ErrDuplicate.
func (s *HouseholdStore) AddMember(ctx context.Context, householdID, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO household_members (household_id, user_id, joined_at) VALUES (?, ?, ?)`,
		householdID, userID, formatTime(now()),
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

// RemoveMember deletes a membership row and reports whether one existed.
func (s *HouseholdStore) RemoveMember(ctx context.Context, householdID, userID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM household_members WHERE household_id = ? AND user_id = ?`,
		householdID, userID,
	)
	if err != nil {
		return false, fmt.Errorf("remove member: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *HouseholdStore) RemoveAllMembers(ctx context.Context, householdID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM household_members WHERE household_id = ?`, householdID)
	if err != nil {
		return 0, fmt.Errorf("remove all members: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func (s *HouseholdStore) IsMember(ctx context.Context, householdID, userID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM household_members WHERE household_id = ? AND user_id = ?`,
		householdID, userID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check member: %w", err)
	}
	return true, nil
}

// MembershipOf returns the id of the household the user belongs to, or ""
// if none.
func (s *HouseholdStore) MembershipOf(ctx context.Context, userID string) (string, error) {
	var householdID string
	err := s.db.QueryRowContext(ctx,
		`SELECT household_id FROM household_members WHERE user_id = ?`, userID,
	).Scan(&householdID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get membership: %w", err)
	}
	return householdID, nil
}

func (s *HouseholdStore) MemberIDs(ctx context.Context, householdID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM household_members WHERE household_id = ? ORDER BY joined_at ASC, user_id ASC`,
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("list member ids: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan member id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListMembers returns the public roster of a household.
func (s *HouseholdStore) ListMembers(ctx context.Context, householdID string) ([]model.Member, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT u.id, u.username, u.email, u.avatar_url
		 FROM household_members hm
		 JOIN users u ON u.id = hm.user_id
		 WHERE hm.household_id = ?
		 ORDER BY hm.joined_at ASC, u.id ASC`,
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	members := []model.Member{}
	for rows.Next() {
		var m model.Member
		if err := rows.Scan(&m.ID, &m.Username, &m.Email, &m.AvatarURL); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// ListEmpty returns ids of households with no membership rows left.
func (s *HouseholdStore) ListEmpty(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT h.id FROM households h
		 WHERE NOT EXISTS (SELECT 1 FROM household_members hm WHERE hm.household_id = h.id)
		 ORDER BY h.id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list empty households: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan household id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListMembershipMismatches returns members whose user pointer is unset or
// references a different household.
func (s *HouseholdStore) ListMembershipMismatches(ctx context.Context) ([]Membership, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT hm.user_id, hm.household_id
		 FROM household_members hm
		 JOIN users u ON u.id = hm.user_id
		 WHERE u.household_id IS NULL OR u.household_id <> hm.household_id
		 ORDER BY hm.user_id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list membership mismatches: %w", err)
	}
	defer rows.Close()

	var out []Membership
	for rows.Next() {
		var m Membership
		if err := rows.Scan(&m.UserID, &m.HouseholdID); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type Membership struct {
	UserID      string
	HouseholdID string
}
