package auth

import (
	"context"
	"errors"
	"testing"
)

func TestRoleOrdering(t *testing.T) {
	cases := []struct {
		a, b Role
		want bool
	}{
		{RoleOwner, RoleAdmin, true},
		{RoleAdmin, RoleOwner, false},
		{RoleAdmin, RoleFleetManager, true},
		{RoleFleetManager, RoleAccountant, false}, // peers
		{RoleAccountant, RoleFleetManager, false}, // peers
		{RoleFleetManager, RoleDriver, true},
		{RoleDriver, RoleDriver, false},
		{RoleOwner, RoleOwner, false},
	}
	for _, tc := range cases {
		if got := tc.a.Higher(tc.b); got != tc.want {
			t.Errorf("%s.Higher(%s) = %t, want %t", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestParseRole(t *testing.T) {
	role, err := ParseRole("  fleet_manager ")
	if err != nil || role != RoleFleetManager {
		t.Fatalf("ParseRole: got %q, %v", role, err)
	}
	if _, err := ParseRole("SUPERUSER"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown role, got %v", err)
	}
	if Role("MANAGER").Valid() {
		t.Fatal("unknown role must not validate")
	}
}

func TestHasPermission(t *testing.T) {
	cases := []struct {
		role Role
		perm Permission
		want bool
	}{
		{RoleFleetManager, PermVehicleCreate, true},
		{RoleDriver, PermVehicleCreate, false},
		{RoleDriver, PermVehicleView, true},
		{RoleDriver, PermFuelLog, true},
		{RoleAccountant, PermPayrollManage, true},
		{RoleAccountant, PermVehicleCreate, false},
		{RoleAdmin, PermManageUserRoles, true},
		{RoleAdmin, PermCompanyManage, false},
		{RoleOwner, PermCompanyManage, true},
		{RoleFleetManager, PermManageUserRoles, false},
		{Role("BOGUS"), PermVehicleView, false},
	}
	for _, tc := range cases {
		if got := HasPermission(tc.role, tc.perm); got != tc.want {
			t.Errorf("HasPermission(%s, %s) = %t, want %t", tc.role, tc.perm, got, tc.want)
		}
	}
}

func TestPermissionsForRoleSortedAndStable(t *testing.T) {
	perms := PermissionsForRole(RoleDriver)
	if len(perms) != 3 {
		t.Fatalf("driver permission count: got %d, want 3", len(perms))
	}
	for i := 1; i < len(perms); i++ {
		if perms[i-1] >= perms[i] {
			t.Fatalf("permissions not sorted: %v", perms)
		}
	}
	if PermissionsForRole(Role("BOGUS")) != nil {
		t.Fatal("unknown role must yield nil")
	}
}

func TestCanAccessCompany(t *testing.T) {
	cases := []struct {
		name          string
		actorCompany  string
		actorRole     Role
		targetCompany string
		want          bool
	}{
		{"owner crosses tenants", "acme", RoleOwner, "rival", true},
		{"admin same tenant", "acme", RoleAdmin, "acme", true},
		{"admin other tenant", "acme", RoleAdmin, "rival", false},
		{"driver same tenant", "acme", RoleDriver, "acme", true},
		{"blank actor company", "", RoleAdmin, "acme", false},
		{"blank target company", "acme", RoleAdmin, "", false},
	}
	for _, tc := range cases {
		if got := CanAccessCompany(tc.actorCompany, tc.actorRole, tc.targetCompany); got != tc.want {
			t.Errorf("%s: got %t, want %t", tc.name, got, tc.want)
		}
	}
}

func TestCheckRoleChange(t *testing.T) {
	identity := func(id string, role Role) *Identity {
		return &Identity{ID: id, CompanyID: "acme", Role: role}
	}
	cases := []struct {
		name    string
		actor   *Identity
		target  *Identity
		newRole Role
		wantOK  bool
	}{
		{"admin promotes driver to fleet manager", identity("a", RoleAdmin), identity("t", RoleDriver), RoleFleetManager, true},
		{"admin promotes anyone to owner", identity("a", RoleAdmin), identity("t", RoleDriver), RoleOwner, false},
		{"admin demotes fleet manager", identity("a", RoleAdmin), identity("t", RoleFleetManager), RoleDriver, true},
		{"admin touches owner", identity("a", RoleAdmin), identity("t", RoleOwner), RoleAdmin, false},
		{"fleet manager modifies accountant peer", identity("a", RoleFleetManager), identity("t", RoleAccountant), RoleDriver, false},
		{"accountant modifies anyone", identity("a", RoleAccountant), identity("t", RoleDriver), RoleAccountant, false},
		{"driver modifies anyone", identity("a", RoleDriver), identity("t", RoleDriver), RoleDriver, false},
		{"owner demotes other owner", identity("a", RoleOwner), identity("t", RoleOwner), RoleAdmin, true},
		{"owner demotes self", identity("self", RoleOwner), identity("self", RoleOwner), RoleAdmin, false},
		{"owner keeps own role", identity("self", RoleOwner), identity("self", RoleOwner), RoleOwner, true},
		{"owner promotes admin to owner", identity("a", RoleOwner), identity("t", RoleAdmin), RoleOwner, true},
	}
	for _, tc := range cases {
		err := checkRoleChange(tc.actor, tc.target, tc.newRole)
		if tc.wantOK && err != nil {
			t.Errorf("%s: unexpected denial: %v", tc.name, err)
		}
		if !tc.wantOK {
			if !errors.Is(err, ErrEscalationDenied) {
				t.Errorf("%s: expected ErrEscalationDenied, got %v", tc.name, err)
			}
			var esc *EscalationError
			if !errors.As(err, &esc) {
				t.Errorf("%s: expected *EscalationError, got %T", tc.name, err)
			}
		}
	}
}

func TestChangeRoleService(t *testing.T) {
	f := newFixture(t)
	f.addCompany("acme", CompanyStatusActive)
	f.addCompany("rival", CompanyStatusActive)
	f.addIdentity(t, "admin", "acme", "admin@acme.test", RoleAdmin, StatusActive)
	f.addIdentity(t, "driver", "acme", "driver@acme.test", RoleDriver, StatusActive)
	f.addIdentity(t, "outsider", "rival", "driver@rival.test", RoleDriver, StatusActive)

	if err := f.svc.ChangeRole(context.Background(), "admin", "driver", RoleFleetManager, "promotion"); err != nil {
		t.Fatalf("ChangeRole: %v", err)
	}
	updated, _ := f.store.Identities().FindByID(context.Background(), "driver")
	if updated.Role != RoleFleetManager {
		t.Fatalf("role not persisted: %s", updated.Role)
	}

	// A denied change leaves the target untouched.
	if err := f.svc.ChangeRole(context.Background(), "admin", "driver", RoleOwner, "escalation"); !errors.Is(err, ErrEscalationDenied) {
		t.Fatalf("expected ErrEscalationDenied, got %v", err)
	}
	unchanged, _ := f.store.Identities().FindByID(context.Background(), "driver")
	if unchanged.Role != RoleFleetManager {
		t.Fatalf("denied change mutated the target: %s", unchanged.Role)
	}

	// Tenant isolation runs before the escalation guard.
	if err := f.svc.ChangeRole(context.Background(), "admin", "outsider", RoleDriver, "cross-tenant"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	if err := f.svc.ChangeRole(context.Background(), "admin", "ghost", RoleDriver, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := f.svc.ChangeRole(context.Background(), "", "driver", RoleDriver, ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if err := f.svc.ChangeRole(context.Background(), "admin", "driver", Role("BOGUS"), ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown role, got %v", err)
	}
}
