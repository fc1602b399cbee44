package auth

import (
	"context"
	"strings"

	"fleetgrid.io/internal/audit"
)

// CanAccessCompany decides tenant isolation: OWNER operates tenant-globally,
// everyone else only inside their own company.
func CanAccessCompany(actorCompanyID string, actorRole Role, targetCompanyID string) bool {
	if actorRole == RoleOwner {
		return true
	}
	if strings.TrimSpace(actorCompanyID) == "" || strings.TrimSpace(targetCompanyID) == "" {
		return false
	}
	return actorCompanyID == targetCompanyID
}

// checkRoleChange is the escalation guard. Every condition must hold; the
// caller maps a failure to a detailed audit event.
func checkRoleChange(actor, target *Identity, newRole Role) error {
	deny := func() error {
		return &EscalationError{ActorRole: actor.Role, TargetRole: target.Role}
	}
	if !HasPermission(actor.Role, PermManageUserRoles) {
		return deny()
	}
	// Cannot grant a role above your own level.
	if newRole.Higher(actor.Role) {
		return deny()
	}
	// Cannot touch someone already above you. Equal levels are peers and
	// peers cannot modify each other either, except through a higher role.
	if target.Role.Higher(actor.Role) {
		return deny()
	}
	// Only an owner may change another owner.
	if target.Role == RoleOwner && actor.Role != RoleOwner {
		return deny()
	}
	// An owner cannot demote themselves; ownership moves by promoting
	// someone else first.
	if actor.ID == target.ID && target.Role == RoleOwner && newRole != RoleOwner {
		return deny()
	}
	return nil
}

// ChangeRole applies the escalation guard and persists the new role. Both the
// grant and every denial are audited with actor, target and timestamp.
func (s *Service) ChangeRole(ctx context.Context, actorID, targetID string, newRole Role, reason string) error {
	actorID = strings.TrimSpace(actorID)
	targetID = strings.TrimSpace(targetID)
	if actorID == "" || targetID == "" || !newRole.Valid() {
		return ErrInvalidInput
	}

	actor, err := s.store.Identities().FindByID(ctx, actorID)
	if err != nil {
		return err
	}
	target, err := s.store.Identities().FindByID(ctx, targetID)
	if err != nil {
		return err
	}
	if !CanAccessCompany(actor.CompanyID, actor.Role, target.CompanyID) {
		return ErrUnauthorized
	}

	if err := checkRoleChange(actor, target, newRole); err != nil {
		_ = audit.LogEvent(ctx, "auth.escalation.denied", map[string]any{
			"actor_id":    actor.ID,
			"actor_role":  actor.Role,
			"target_id":   target.ID,
			"target_role": target.Role,
			"new_role":    newRole,
			"reason":      reason,
		})
		return err
	}

	if err := s.store.Identities().UpdateRole(ctx, target.ID, newRole); err != nil {
		return err
	}
	_ = audit.LogEvent(ctx, "auth.role.changed", map[string]any{
		"actor_id":    actor.ID,
		"actor_role":  actor.Role,
		"target_id":   target.ID,
		"old_role":    target.Role,
		"new_role":    newRole,
		"reason":      reason,
	})
	return nil
}
