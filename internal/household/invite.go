package household

import (
	"context"
	"errors"
	"strings"

	"github.com/dukerupert/housemate/internal/apperr"
	"github.com/dukerupert/housemate/internal/model"
	"github.com/dukerupert/housemate/internal/store"
)

// Invite creates a PENDING invite from a member to a user without a
// household.
func (r *Registry) Invite(ctx context.Context, callerID, householdID, email string) (*model.Invite, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, apperr.Validation("email is required")
	}

	var invite *model.Invite
	err := r.store.InTx(ctx, func(tx *store.Store) error {
		if _, err := RequireMember(ctx, tx, householdID, callerID); err != nil {
			return err
		}
		target, err := tx.Users.GetByEmail(ctx, email)
		if err != nil {
			return err
		}
		if target == nil {
			return apperr.NotFound("no user with that email")
		}
		if err := requireNoHousehold(ctx, tx, target.ID, "user already belongs to a household"); err != nil {
			return err
		}
		pending, err := tx.Invites.HasPending(ctx, target.ID, householdID)
		if err != nil {
			return err
		}
		if pending {
			return apperr.Conflict("an invite is already pending for this user")
		}
		invite, err = tx.Invites.Create(ctx, callerID, target.ID, householdID)
		if errors.Is(err, store.ErrDuplicate) {
			return apperr.Conflict("an invite is already pending for this user")
		}
		return err
	})
	if err != nil {
		return nil, classify(err, "failed to create invite")
	}

	r.logger.Info("invite sent", "invite_id", invite.ID, "household_id", householdID, "to", invite.ToID)
	return invite, nil
}

// RespondToInvite accepts or rejects an invite addressed to the caller.
// Accepting marks the invite, adds the membership row and sets the user's
// household pointer in one transaction.
func (r *Registry) RespondToInvite(ctx context.Context, callerID, inviteID string, accept bool) error {
	status := model.InviteRejected
	if accept {
		status = model.InviteAccepted
	}

	err := r.store.InTx(ctx, func(tx *store.Store) error {
		inv, err := tx.Invites.GetByID(ctx, inviteID)
		if err != nil {
			return err
		}
		if inv == nil {
			return apperr.NotFound("invite not found")
		}
		if inv.ToID != callerID {
			return apperr.Forbidden("this invite is not addressed to you")
		}
		if inv.Status != model.InvitePending {
			return apperr.Conflict("invite has already been " + strings.ToLower(string(inv.Status)))
		}

		if accept {
			h, err := tx.Households.GetByID(ctx, inv.HouseholdID)
			if err != nil {
				return err
			}
			if h == nil {
				return apperr.NotFound("household no longer exists")
			}
			if err := requireNoHousehold(ctx, tx, callerID, "you are already a member of a household"); err != nil {
				return err
			}
			if err := join(ctx, tx, inv.HouseholdID, callerID); err != nil {
				return err
			}
		}

		ok, err := tx.Invites.Resolve(ctx, inv.ID, status)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Conflict("invite is no longer pending")
		}
		return nil
	})
	if err != nil {
		return classify(err, "failed to respond to invite")
	}

	r.logger.Info("invite answered", "invite_id", inviteID, "user_id", callerID, "status", status)
	return nil
}

// ListInvites returns the caller's pending invites.
func (r *Registry) ListInvites(ctx context.Context, callerID string) ([]model.PendingInvite, error) {
	invites, err := r.store.Invites.ListPendingFor(ctx, callerID)
	if err != nil {
		return nil, apperr.Internal("failed to list invites", err)
	}
	return invites, nil
}
