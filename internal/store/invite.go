package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/housemate/internal/model"
)

type InviteStore struct {
	db DBTX
}

func scanInvite(scanner interface{ Scan(...any) error }) (*model.Invite, error) {
	var (
		inv                  model.Invite
		createdAt, updatedAt string
	)
	err := scanner.Scan(&inv.ID, &inv.FromID, &inv.ToID, &inv.HouseholdID, &inv.Status, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if inv.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if inv.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &inv, nil
}

const inviteCols = `id, from_id, to_id, household_id, status, created_at, updated_at`

// Create inserts a PENDING invite. It returns ErrDuplicate if one is
// already pending for the same recipient and household.
func (s *InviteStore) Create(ctx context.Context, fromID, toID, householdID string) (*model.Invite, error) {
	id := newID()
	ts := formatTime(now())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO household_invites (id, from_id, to_id, household_id, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 'PENDING', ?, ?)`,
		id, fromID, toID, householdID, ts, ts,
	)
	if isUniqueViolation(err) {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, fmt.Errorf("insert invite: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *InviteStore) GetByID(ctx context.Context, id string) (*model.Invite, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+inviteCols+` FROM household_invites WHERE id = ?`, id)
	inv, err := scanInvite(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get invite: %w", err)
	}
	return inv, nil
}

// HasPending reports whether a PENDING invite exists for the pair.
func (s *InviteStore) HasPending(ctx context.Context, toID, householdID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM household_invites WHERE to_id = ? AND household_id = ? AND status = 'PENDING'`,
		toID, householdID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check pending invite: %w", err)
	}
	return true, nil
}

// Resolve moves a PENDING invite to a terminal status. It reports false if
// the invite was no longer pending.
func (s *InviteStore) Resolve(ctx context.Context, id string, status model.InviteStatus) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE household_invites SET status = ?, updated_at = ? WHERE id = ? AND status = 'PENDING'`,
		status, formatTime(now()), id,
	)
	if err != nil {
		return false, fmt.Errorf("resolve invite: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// ListPendingFor returns the recipient's open invites, newest first.
func (s *InviteStore) ListPendingFor(ctx context.Context, toID string) ([]model.PendingInvite, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT i.id, i.from_id, i.to_id, i.household_id, i.status, i.created_at, i.updated_at, h.name, u.username
		 FROM household_invites i
		 JOIN households h ON h.id = i.household_id
		 JOIN users u ON u.id = i.from_id
		 WHERE i.to_id = ? AND i.status = 'PENDING'
		 ORDER BY i.created_at DESC, i.id ASC`,
		toID,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending invites: %w", err)
	}
	defer rows.Close()

	invites := []model.PendingInvite{}
	for rows.Next() {
		var (
			p                    model.PendingInvite
			createdAt, updatedAt string
		)
		if err := rows.Scan(&p.ID, &p.FromID, &p.ToID, &p.HouseholdID, &p.Status, &createdAt, &updatedAt, &p.HouseholdName, &p.FromUsername); err != nil {
			return nil, fmt.Errorf("scan invite: %w", err)
		}
		if p.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		invites = append(invites, p)
	}
	return invites, rows.Err()
}

func (s *InviteStore) DeleteForHousehold(ctx context.Context, householdID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM household_invites WHERE household_id = ?`, householdID)
	if err != nil {
		return fmt.Errorf("delete household invites: %w", err)
	}
	return nil
}
