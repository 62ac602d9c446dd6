// Package household manages household lifecycle and membership.
//
// Membership rows are the source of truth. Every operation that changes
// them also updates the user's household pointer in the same transaction.
package household

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"

	"github.com/dukerupert/housemate/internal/apperr"
	"github.com/dukerupert/housemate/internal/metrics"
	"github.com/dukerupert/housemate/internal/model"
	"github.com/dukerupert/housemate/internal/store"
)

const (
	minNameLen = 3
	maxNameLen = 100

	// codeAttempts bounds regeneration after join code collisions.
	codeAttempts = 8
)

// CodeGenerator returns a fresh join code.
type CodeGenerator func() (string, error)

// RandomCode returns six uppercase hex characters.
func RandomCode() (string, error) {
	b := make([]byte, 3)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return strings.ToUpper(hex.EncodeToString(b)), nil
}

type Registry struct {
	store   *store.Store
	metrics *metrics.Metrics
	logger  *slog.Logger
	newCode CodeGenerator
}

type Option func(*Registry)

// WithCodeGenerator replaces RandomCode.
func WithCodeGenerator(gen CodeGenerator) Option {
	return func(r *Registry) { r.newCode = gen }
}

func NewRegistry(st *store.Store, m *metrics.Metrics, logger *slog.Logger, opts ...Option) *Registry {
	r := &Registry{store: st, metrics: m, logger: logger, newCode: RandomCode}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create makes a household owned by the caller, with the caller as its
// only member.
func (r *Registry) Create(ctx context.Context, callerID, name string, isPrivate bool) (*model.Household, error) {
	name = strings.TrimSpace(name)
	if len(name) < minNameLen || len(name) > maxNameLen {
		return nil, apperr.Validation(fmt.Sprintf("name must be between %d and %d characters", minNameLen, maxNameLen))
	}

	var created *model.Household
	backoff := retry.WithMaxRetries(codeAttempts-1, retry.NewConstant(time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		code, err := r.newCode()
		if err != nil {
			return err
		}
		err = r.store.InTx(ctx, func(tx *store.Store) error {
			if err := requireNoHousehold(ctx, tx, callerID, "you are already a member of a household"); err != nil {
				return err
			}
			h, err := tx.Households.Create(ctx, name, code, isPrivate, callerID)
			if err != nil {
				return err
			}
			if err := join(ctx, tx, h.ID, callerID); err != nil {
				return err
			}
			created, err = tx.Households.GetByID(ctx, h.ID)
			return err
		})
		if errors.Is(err, store.ErrCodeTaken) {
			r.logger.Debug("household code collision, regenerating", "code", code)
			return retry.RetryableError(err)
		}
		return err
	})
	if errors.Is(err, store.ErrCodeTaken) {
		return nil, apperr.Internal("could not allocate a household code", err)
	}
	if err != nil {
		return nil, classify(err, "failed to create household")
	}

	r.logger.Info("household created", "household_id", created.ID, "owner_id", callerID)
	return created, nil
}

// JoinByCode adds the caller to the household holding code. A join code
// admits its holder to private households too.
func (r *Registry) JoinByCode(ctx context.Context, callerID, code string) (*model.Household, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperr.Validation("code is required")
	}

	var joined *model.Household
	err := r.store.InTx(ctx, func(tx *store.Store) error {
		h, err := tx.Households.GetByCode(ctx, code)
		if err != nil {
			return err
		}
		if h == nil {
			return apperr.NotFound("household not found")
		}
		current, err := tx.Households.MembershipOf(ctx, callerID)
		if err != nil {
			return err
		}
		if current == h.ID {
			return apperr.Conflict("you are already a member of this household")
		}
		if current != "" {
			return apperr.Conflict("you are already a member of another household")
		}
		if err := join(ctx, tx, h.ID, callerID); err != nil {
			return err
		}
		joined, err = tx.Households.GetByID(ctx, h.ID)
		return err
	})
	if err != nil {
		return nil, classify(err, "failed to join household")
	}

	r.logger.Info("member joined by code", "household_id", joined.ID, "user_id", callerID)
	return joined, nil
}

// Leave removes a non-owner caller from the household.
func (r *Registry) Leave(ctx context.Context, callerID, householdID string) error {
	err := r.store.InTx(ctx, func(tx *store.Store) error {
		h, err := RequireMember(ctx, tx, householdID, callerID)
		if err != nil {
			return err
		}
		if h.OwnerID == callerID {
			return apperr.Conflict("owner cannot leave, must transfer ownership or disband")
		}
		return depart(ctx, tx, householdID, callerID)
	})
	if err != nil {
		return classify(err, "failed to leave household")
	}

	r.logger.Info("member left", "household_id", householdID, "user_id", callerID)
	return nil
}

// TransferOwnership hands the household to another existing member.
func (r *Registry) TransferOwnership(ctx context.Context, callerID, householdID, newOwnerID string) error {
	newOwnerID = strings.TrimSpace(newOwnerID)
	if newOwnerID == "" {
		return apperr.Validation("newOwnerId is required")
	}

	err := r.store.InTx(ctx, func(tx *store.Store) error {
		h, err := requireOwner(ctx, tx, householdID, callerID)
		if err != nil {
			return err
		}
		if newOwnerID == callerID {
			return apperr.Validation("you already own this household")
		}
		if !slices.Contains(h.Members, newOwnerID) {
			return apperr.Validation("new owner must be a member of the household")
		}
		ok, err := tx.Households.SetOwner(ctx, householdID, callerID, newOwnerID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Conflict("ownership changed concurrently")
		}
		return nil
	})
	if err != nil {
		return classify(err, "failed to transfer ownership")
	}

	r.logger.Info("ownership transferred", "household_id", householdID, "from", callerID, "to", newOwnerID)
	return nil
}

// KickMember removes another member. Only the owner may kick.
func (r *Registry) KickMember(ctx context.Context, callerID, householdID, memberID string) error {
	err := r.store.InTx(ctx, func(tx *store.Store) error {
		h, err := requireOwner(ctx, tx, householdID, callerID)
		if err != nil {
			return err
		}
		if memberID == callerID {
			return apperr.Validation("owner cannot kick themselves")
		}
		if !slices.Contains(h.Members, memberID) {
			return apperr.NotFound("member not found in household")
		}
		return depart(ctx, tx, householdID, memberID)
	})
	if err != nil {
		return classify(err, "failed to remove member")
	}

	r.logger.Info("member kicked", "household_id", householdID, "user_id", memberID, "by", callerID)
	return nil
}

// Details returns the household with its public roster.
func (r *Registry) Details(ctx context.Context, callerID, householdID string) (*model.HouseholdDetails, error) {
	h, err := RequireMember(ctx, r.store, householdID, callerID)
	if err != nil {
		return nil, classify(err, "failed to get household")
	}
	members, err := r.store.Households.ListMembers(ctx, householdID)
	if err != nil {
		return nil, apperr.Internal("failed to get household", err)
	}
	return &model.HouseholdDetails{
		ID:        h.ID,
		Name:      h.Name,
		Code:      h.Code,
		IsPrivate: h.IsPrivate,
		OwnerID:   h.OwnerID,
		Members:   members,
		CreatedAt: h.CreatedAt,
	}, nil
}

// List returns the household directory as seen by the caller. Codes of
// private households are withheld from non-members.
func (r *Registry) List(ctx context.Context, callerID string) (*model.HouseholdDirectory, error) {
	households, err := r.store.Households.List(ctx)
	if err != nil {
		return nil, apperr.Internal("failed to list households", err)
	}
	current, err := r.store.Households.MembershipOf(ctx, callerID)
	if err != nil {
		return nil, apperr.Internal("failed to list households", err)
	}

	dir := &model.HouseholdDirectory{Households: []model.HouseholdListing{}}
	if current != "" {
		dir.CurrentHouseholdID = &current
	}
	for _, h := range households {
		roster, err := r.store.Households.ListMembers(ctx, h.ID)
		if err != nil {
			return nil, apperr.Internal("failed to list households", err)
		}
		listing := model.HouseholdListing{
			ID:           h.ID,
			Name:         h.Name,
			IsPrivate:    h.IsPrivate,
			OwnerID:      h.OwnerID,
			Members:      make([]model.UserRef, 0, len(roster)),
			IsUserMember: h.ID == current,
			MemberCount:  len(roster),
		}
		if !h.IsPrivate || listing.IsUserMember {
			listing.Code = h.Code
		}
		for _, m := range roster {
			listing.Members = append(listing.Members, model.UserRef{ID: m.ID, Username: m.Username})
		}
		dir.Households = append(dir.Households, listing)
	}
	return dir, nil
}

// DisbandStatus distinguishes a clean disband from a degraded one.
type DisbandStatus string

const (
	Disbanded DisbandStatus = "disbanded"
	// Partial means member references were cleared but the household and
	// its data could not be removed. The repair job finishes the cleanup.
	Partial DisbandStatus = "partial"
	Failed  DisbandStatus = "failed"
)

type DisbandResult struct {
	Status         DisbandStatus `json:"status"`
	MembersCleared int64         `json:"membersCleared"`
}

// Disband deletes the household and everything scheduled in it. If the
// transaction fails, member references are cleared best-effort and the
// result reports Partial together with a non-nil error.
func (r *Registry) Disband(ctx context.Context, callerID, householdID string) (DisbandResult, error) {
	if _, err := requireOwner(ctx, r.store, householdID, callerID); err != nil {
		return DisbandResult{Status: Failed}, classify(err, "failed to disband household")
	}

	var cleared int64
	txErr := r.store.InTx(ctx, func(tx *store.Store) error {
		if _, err := requireOwner(ctx, tx, householdID, callerID); err != nil {
			return err
		}
		if err := tx.Windows.DeleteForHousehold(ctx, householdID); err != nil {
			return err
		}
		if err := tx.Tasks.DeleteForHousehold(ctx, householdID); err != nil {
			return err
		}
		if err := tx.Invites.DeleteForHousehold(ctx, householdID); err != nil {
			return err
		}
		n, err := tx.Users.ClearHouseholdForAll(ctx, householdID)
		if err != nil {
			return err
		}
		cleared = n
		if _, err := tx.Households.RemoveAllMembers(ctx, householdID); err != nil {
			return err
		}
		return tx.Households.Delete(ctx, householdID)
	})
	if txErr == nil {
		r.metrics.Disbanded(string(Disbanded))
		r.logger.Info("household disbanded", "household_id", householdID, "members_cleared", cleared)
		return DisbandResult{Status: Disbanded, MembersCleared: cleared}, nil
	}

	var ae *apperr.Error
	if errors.As(txErr, &ae) {
		return DisbandResult{Status: Failed}, txErr
	}

	r.logger.Error("disband transaction failed, clearing member references", "household_id", householdID, "error", txErr)
	n, fbErr := r.clearMemberReferences(ctx, householdID)
	if fbErr != nil {
		r.metrics.Disbanded(string(Failed))
		r.logger.Error("disband fallback failed", "household_id", householdID, "error", fbErr)
		return DisbandResult{Status: Failed, MembersCleared: n},
			apperr.Internal("failed to disband household", multierr.Combine(txErr, fbErr))
	}

	r.metrics.Disbanded(string(Partial))
	return DisbandResult{Status: Partial, MembersCleared: n},
		apperr.Internal("household partially disbanded: members were removed but cleanup is incomplete", txErr)
}

// clearMemberReferences detaches every member from the household without
// touching the household row. Each statement runs on its own so one
// failure does not block the other.
func (r *Registry) clearMemberReferences(ctx context.Context, householdID string) (int64, error) {
	n, errUsers := r.store.Users.ClearHouseholdForAll(ctx, householdID)
	_, errMembers := r.store.Households.RemoveAllMembers(ctx, householdID)
	return n, multierr.Combine(errUsers, errMembers)
}

func join(ctx context.Context, tx *store.Store, householdID, userID string) error {
	if err := tx.Households.AddMember(ctx, householdID, userID); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return apperr.Conflict("you are already a member of a household")
		}
		return err
	}
	return tx.Users.SetHousehold(ctx, userID, &householdID)
}

func depart(ctx context.Context, tx *store.Store, householdID, userID string) error {
	if _, err := tx.Households.RemoveMember(ctx, householdID, userID); err != nil {
		return err
	}
	if err := tx.Tasks.UnassignUser(ctx, householdID, userID); err != nil {
		return err
	}
	return tx.Users.SetHousehold(ctx, userID, nil)
}

func requireNoHousehold(ctx context.Context, st *store.Store, userID, msg string) error {
	current, err := st.Households.MembershipOf(ctx, userID)
	if err != nil {
		return err
	}
	if current != "" {
		return apperr.Conflict(msg)
	}
	return nil
}

// RequireMember loads the household and checks the user belongs to it. It
// returns NotFound for a missing household and Forbidden for non-members.
func RequireMember(ctx context.Context, st *store.Store, householdID, userID string) (*model.Household, error) {
	h, err := st.Households.GetByID(ctx, householdID)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, apperr.NotFound("household not found")
	}
	ok, err := st.Households.IsMember(ctx, householdID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Forbidden("you are not a member of this household")
	}
	return h, nil
}

func requireOwner(ctx context.Context, st *store.Store, householdID, userID string) (*model.Household, error) {
	h, err := st.Households.GetByID(ctx, householdID)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, apperr.NotFound("household not found")
	}
	if h.OwnerID != userID {
		return nil, apperr.Forbidden("only the household owner can do this")
	}
	return h, nil
}

// classify passes typed errors through and wraps the rest as internal.
func classify(err error, msg string) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	return apperr.Internal(msg, err)
}
