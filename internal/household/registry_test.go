package household

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"slices"
	"strings"
	"testing"

	"github.com/dukerupert/housemate/internal/apperr"
	"github.com/dukerupert/housemate/internal/database"
	"github.com/dukerupert/housemate/internal/model"
	"github.com/dukerupert/housemate/internal/store"
)

func setupRegistry(t *testing.T, opts ...Option) (*Registry, *store.Store) {
	t.Helper()
	return setupRegistryAt(t, ":memory:", opts...)
}

func setupRegistryAt(t *testing.T, dbPath string, opts ...Option) (*Registry, *store.Store) {
	t.Helper()
	db, err := database.Open(dbPath)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	st := store.New(db)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRegistry(st, nil, logger, opts...), st
}

func mustUser(t *testing.T, st *store.Store, username string) string {
	t.Helper()
	u, err := st.Users.Create(context.Background(), username+"@example.com", username, "secret-hash")
	if err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return u.ID
}

func mustCreate(t *testing.T, r *Registry, ownerID, name string) *model.Household {
	t.Helper()
	h, err := r.Create(context.Background(), ownerID, name, false)
	if err != nil {
		t.Fatalf("create household: %v", err)
	}
	return h
}

func wantKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("err = nil, want %v", kind)
	}
	if got := apperr.KindOf(err); got != kind {
		t.Fatalf("kind = %v (%v), want %v", got, err, kind)
	}
}

// checkInvariants asserts that every owner is a member and that every
// household pointer is backed by a membership row.
func checkInvariants(t *testing.T, st *store.Store) {
	t.Helper()
	ctx := context.Background()

	households, err := st.Households.List(ctx)
	if err != nil {
		t.Fatalf("list households: %v", err)
	}
	for _, h := range households {
		members, err := st.Households.MemberIDs(ctx, h.ID)
		if err != nil {
			t.Fatalf("member ids: %v", err)
		}
		if !slices.Contains(members, h.OwnerID) {
			t.Errorf("household %s: owner %s not in members %v", h.ID, h.OwnerID, members)
		}
	}

	users, err := st.Users.ListWithHousehold(ctx)
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	for _, u := range users {
		ok, err := st.Households.IsMember(ctx, *u.HouseholdID, u.ID)
		if err != nil {
			t.Fatalf("is member: %v", err)
		}
		if !ok {
			t.Errorf("user %s points at %s without membership", u.Username, *u.HouseholdID)
		}
	}

	mismatches, err := st.Households.ListMembershipMismatches(ctx)
	if err != nil {
		t.Fatalf("mismatches: %v", err)
	}
	if len(mismatches) != 0 {
		t.Errorf("members without matching pointer: %+v", mismatches)
	}
}

func householdOf(t *testing.T, st *store.Store, userID string) *string {
	t.Helper()
	u, err := st.Users.GetByID(context.Background(), userID)
	if err != nil || u == nil {
		t.Fatalf("get user: %v", err)
	}
	return u.HouseholdID
}

func TestCreate(t *testing.T) {
	r, st := setupRegistry(t)
	alice := mustUser(t, st, "alice")

	h, err := r.Create(context.Background(), alice, "  Maple St  ", true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if h.Name != "Maple St" {
		t.Errorf("name = %q, want %q", h.Name, "Maple St")
	}
	if len(h.Code) != 6 || strings.ToUpper(h.Code) != h.Code {
		t.Errorf("code = %q, want 6 uppercase characters", h.Code)
	}
	if h.OwnerID != alice || !slices.Equal(h.Members, []string{alice}) {
		t.Errorf("owner = %s members = %v", h.OwnerID, h.Members)
	}
	if got := householdOf(t, st, alice); got == nil || *got != h.ID {
		t.Errorf("alice householdID = %v, want %s", got, h.ID)
	}
	checkInvariants(t, st)
}

func TestCreateValidatesName(t *testing.T) {
	r, st := setupRegistry(t)
	alice := mustUser(t, st, "alice")

	_, err := r.Create(context.Background(), alice, " ab ", false)
	wantKind(t, err, apperr.KindValidation)
}

func TestCreateWhileInHouseholdConflicts(t *testing.T) {
	r, st := setupRegistry(t)
	alice := mustUser(t, st, "alice")
	mustCreate(t, r, alice, "Maple St")

	_, err := r.Create(context.Background(), alice, "Oak Ave", false)
	wantKind(t, err, apperr.KindConflict)
	checkInvariants(t, st)
}

func TestCreateRegeneratesCollidingCode(t *testing.T) {
	codes := []string{"AAAAAA", "aaaaaa", "AAAAAA", "BBBBBB"}
	gen := func() (string, error) {
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}
	r, st := setupRegistry(t, WithCodeGenerator(gen))
	alice := mustUser(t, st, "alice")
	bob := mustUser(t, st, "bob")

	first := mustCreate(t, r, alice, "Maple St")
	second, err := r.Create(context.Background(), bob, "Oak Ave", false)
	if err != nil {
		t.Fatalf("create after collisions: %v", err)
	}
	if first.Code != "AAAAAA" || second.Code != "BBBBBB" {
		t.Errorf("codes = %q, %q", first.Code, second.Code)
	}
	if got := householdOf(t, st, bob); got == nil || *got != second.ID {
		t.Errorf("bob householdID = %v, want %s", got, second.ID)
	}
	checkInvariants(t, st)
}

func TestCreateGivesUpAfterRepeatedCollisions(t *testing.T) {
	r, st := setupRegistry(t, WithCodeGenerator(func() (string, error) { return "AAAAAA", nil }))
	alice := mustUser(t, st, "alice")
	bob := mustUser(t, st, "bob")
	mustCreate(t, r, alice, "Maple St")

	_, err := r.Create(context.Background(), bob, "Oak Ave", false)
	wantKind(t, err, apperr.KindInternal)
	if householdOf(t, st, bob) != nil {
		t.Error("bob should not belong to a household")
	}
}

func TestJoinByCode(t *testing.T) {
	r, st := setupRegistry(t)
	alice := mustUser(t, st, "alice")
	bob := mustUser(t, st, "bob")
	h := mustCreate(t, r, alice, "Maple St")

	joined, err := r.JoinByCode(context.Background(), bob, strings.ToLower(h.Code))
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if !slices.Contains(joined.Members, bob) {
		t.Errorf("members = %v, want bob included", joined.Members)
	}
	if got := householdOf(t, st, bob); got == nil || *got != h.ID {
		t.Errorf("bob householdID = %v, want %s", got, h.ID)
	}
	checkInvariants(t, st)
}

func TestJoinByCodeErrors(t *testing.T) {
	r, st := setupRegistry(t)
	ctx := context.Background()
	alice := mustUser(t, st, "alice")
	carol := mustUser(t, st, "carol")
	h1 := mustCreate(t, r, alice, "Maple St")
	mustCreate(t, r, carol, "Oak Ave")

	_, err := r.JoinByCode(ctx, alice, "ZZZZZZ")
	wantKind(t, err, apperr.KindNotFound)

	_, err = r.JoinByCode(ctx, alice, h1.Code)
	wantKind(t, err, apperr.KindConflict)

	// Single-household invariant: a member of one household cannot join another.
	_, err = r.JoinByCode(ctx, carol, h1.Code)
	wantKind(t, err, apperr.KindConflict)

	_, err = r.JoinByCode(ctx, carol, "  ")
	wantKind(t, err, apperr.KindValidation)
	checkInvariants(t, st)
}

func TestLeave(t *testing.T) {
	r, st := setupRegistry(t)
	ctx := context.Background()
	alice := mustUser(t, st, "alice")
	bob := mustUser(t, st, "bob")
	h := mustCreate(t, r, alice, "Maple St")
	if _, err := r.JoinByCode(ctx, bob, h.Code); err != nil {
		t.Fatalf("join: %v", err)
	}

	wantKind(t, r.Leave(ctx, alice, h.ID), apperr.KindConflict)

	if err := r.Leave(ctx, bob, h.ID); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if householdOf(t, st, bob) != nil {
		t.Error("bob householdID should be cleared")
	}

	wantKind(t, r.Leave(ctx, bob, h.ID), apperr.KindForbidden)
	wantKind(t, r.Leave(ctx, bob, "missing"), apperr.KindNotFound)
	checkInvariants(t, st)
}

func TestTransferOwnership(t *testing.T) {
	r, st := setupRegistry(t)
	ctx := context.Background()
	alice := mustUser(t, st, "alice")
	bob := mustUser(t, st, "bob")
	carol := mustUser(t, st, "carol")
	h := mustCreate(t, r, alice, "Maple St")
	if _, err := r.JoinByCode(ctx, bob, h.Code); err != nil {
		t.Fatalf("join: %v", err)
	}

	wantKind(t, r.TransferOwnership(ctx, bob, h.ID, bob), apperr.KindForbidden)
	wantKind(t, r.TransferOwnership(ctx, alice, h.ID, carol), apperr.KindValidation)
	wantKind(t, r.TransferOwnership(ctx, alice, h.ID, alice), apperr.KindValidation)

	if err := r.TransferOwnership(ctx, alice, h.ID, bob); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	got, _ := st.Households.GetByID(ctx, h.ID)
	if got.OwnerID != bob {
		t.Errorf("owner = %s, want bob", got.OwnerID)
	}
	if !slices.Contains(got.Members, alice) || !slices.Contains(got.Members, bob) {
		t.Errorf("members changed: %v", got.Members)
	}

	// The former owner may now leave.
	if err := r.Leave(ctx, alice, h.ID); err != nil {
		t.Fatalf("former owner leave: %v", err)
	}
	checkInvariants(t, st)
}

func TestKickMemberScenario(t *testing.T) {
	r, st := setupRegistry(t)
	ctx := context.Background()
	alice := mustUser(t, st, "alice")
	bob := mustUser(t, st, "bob")
	h := mustCreate(t, r, alice, "Maple St")
	if _, err := r.JoinByCode(ctx, bob, h.Code); err != nil {
		t.Fatalf("join: %v", err)
	}

	wantKind(t, r.KickMember(ctx, bob, h.ID, alice), apperr.KindForbidden)
	wantKind(t, r.KickMember(ctx, alice, h.ID, alice), apperr.KindValidation)

	if err := r.KickMember(ctx, alice, h.ID, bob); err != nil {
		t.Fatalf("kick: %v", err)
	}
	if householdOf(t, st, bob) != nil {
		t.Error("bob householdID should be cleared")
	}
	got, _ := st.Households.GetByID(ctx, h.ID)
	if got.OwnerID != alice || !slices.Equal(got.Members, []string{alice}) {
		t.Errorf("owner = %s members = %v, want only alice", got.OwnerID, got.Members)
	}

	wantKind(t, r.KickMember(ctx, alice, h.ID, bob), apperr.KindNotFound)
	checkInvariants(t, st)
}

func TestDetailsOmitsSecrets(t *testing.T) {
	r, st := setupRegistry(t)
	ctx := context.Background()
	alice := mustUser(t, st, "alice")
	bob := mustUser(t, st, "bob")
	h := mustCreate(t, r, alice, "Maple St")

	_, err := r.Details(ctx, bob, h.ID)
	wantKind(t, err, apperr.KindForbidden)

	d, err := r.Details(ctx, alice, h.ID)
	if err != nil {
		t.Fatalf("details: %v", err)
	}
	if len(d.Members) != 1 || d.Members[0].Username != "alice" || d.Members[0].Email != "alice@example.com" {
		t.Errorf("members = %+v", d.Members)
	}
	raw, _ := json.Marshal(d)
	if strings.Contains(string(raw), "secret-hash") || strings.Contains(string(raw), "password") {
		t.Errorf("details leaked credentials: %s", raw)
	}
}

func TestListHidesPrivateCodes(t *testing.T) {
	r, st := setupRegistry(t)
	ctx := context.Background()
	alice := mustUser(t, st, "alice")
	bob := mustUser(t, st, "bob")
	carol := mustUser(t, st, "carol")
	public := mustCreate(t, r, alice, "Maple St")
	private, err := r.Create(ctx, bob, "Oak Ave", true)
	if err != nil {
		t.Fatalf("create private: %v", err)
	}

	dir, err := r.List(ctx, carol)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if dir.CurrentHouseholdID != nil {
		t.Errorf("currentHouseholdId = %v, want nil", *dir.CurrentHouseholdID)
	}
	byID := map[string]model.HouseholdListing{}
	for _, l := range dir.Households {
		byID[l.ID] = l
	}
	if byID[public.ID].Code != public.Code {
		t.Errorf("public code = %q, want %q", byID[public.ID].Code, public.Code)
	}
	if byID[private.ID].Code != "" {
		t.Errorf("private code leaked to non-member: %q", byID[private.ID].Code)
	}
	if byID[private.ID].MemberCount != 1 {
		t.Errorf("memberCount = %d, want 1", byID[private.ID].MemberCount)
	}

	dir, err = r.List(ctx, bob)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, l := range dir.Households {
		if l.ID == private.ID && (l.Code != private.Code || !l.IsUserMember) {
			t.Errorf("member view of private household = %+v", l)
		}
	}
}

func TestRequireMember(t *testing.T) {
	r, st := setupRegistry(t)
	ctx := context.Background()
	alice := mustUser(t, st, "alice")
	bob := mustUser(t, st, "bob")
	mallory := mustUser(t, st, "mallory")
	h := mustCreate(t, r, alice, "Maple St")
	if _, err := r.JoinByCode(ctx, bob, h.Code); err != nil {
		t.Fatalf("join: %v", err)
	}

	for _, id := range []string{alice, bob} {
		got, err := RequireMember(ctx, st, h.ID, id)
		if err != nil {
			t.Fatalf("member %s: %v", id, err)
		}
		if got.ID != h.ID {
			t.Errorf("household = %s, want %s", got.ID, h.ID)
		}
	}

	_, err := RequireMember(ctx, st, h.ID, mallory)
	wantKind(t, err, apperr.KindForbidden)
	_, err = RequireMember(ctx, st, "missing", alice)
	wantKind(t, err, apperr.KindNotFound)

	// A kicked member loses access immediately.
	if err := r.KickMember(ctx, alice, h.ID, bob); err != nil {
		t.Fatalf("kick: %v", err)
	}
	_, err = RequireMember(ctx, st, h.ID, bob)
	wantKind(t, err, apperr.KindForbidden)
}
