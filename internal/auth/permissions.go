package auth

import "sort"

// Permission is an atomic named capability.
type Permission string

const (
	PermVehicleCreate Permission = "vehicles.create"
	PermVehicleView   Permission = "vehicles.view"
	PermVehicleUpdate Permission = "vehicles.update"
	PermVehicleDelete Permission = "vehicles.delete"

	PermDriverManage Permission = "drivers.manage"
	PermDriverView   Permission = "drivers.view"

	PermRentalManage Permission = "rentals.manage"
	PermRentalView   Permission = "rentals.view"

	PermFuelLog  Permission = "fuel.log"
	PermFuelView Permission = "fuel.view"

	PermMaintenanceSchedule Permission = "maintenance.schedule"
	PermMaintenanceView     Permission = "maintenance.view"

	PermPayrollManage Permission = "payroll.manage"
	PermPayrollView   Permission = "payroll.view"

	PermReportExport Permission = "reports.export"

	PermUserInvite      Permission = "users.invite"
	PermManageUserRoles Permission = "users.roles.manage"

	PermCompanyManage Permission = "company.manage"
)

// rolePermissions is the static declarative table the permission map is built
// from. It is assembled once at init and read-only afterwards, so unbounded
// concurrent lookups are safe.
var rolePermissions = buildPermissionMap(map[Role][]Permission{
	RoleOwner: {
		PermVehicleCreate, PermVehicleView, PermVehicleUpdate, PermVehicleDelete,
		PermDriverManage, PermDriverView,
		PermRentalManage, PermRentalView,
		PermFuelLog, PermFuelView,
		PermMaintenanceSchedule, PermMaintenanceView,
		PermPayrollManage, PermPayrollView,
		PermReportExport,
		PermUserInvite, PermManageUserRoles,
		PermCompanyManage,
	},
	RoleAdmin: {
		PermVehicleCreate, PermVehicleView, PermVehicleUpdate, PermVehicleDelete,
		PermDriverManage, PermDriverView,
		PermRentalManage, PermRentalView,
		PermFuelLog, PermFuelView,
		PermMaintenanceSchedule, PermMaintenanceView,
		PermPayrollManage, PermPayrollView,
		PermReportExport,
		PermUserInvite, PermManageUserRoles,
	},
	RoleFleetManager: {
		PermVehicleCreate, PermVehicleView, PermVehicleUpdate,
		PermDriverManage, PermDriverView,
		PermRentalManage, PermRentalView,
		PermFuelLog, PermFuelView,
		PermMaintenanceSchedule, PermMaintenanceView,
		PermReportExport,
	},
	RoleAccountant: {
		PermVehicleView,
		PermRentalView,
		PermFuelView,
		PermPayrollManage, PermPayrollView,
		PermReportExport,
	},
	RoleDriver: {
		PermVehicleView,
		PermFuelLog,
		PermMaintenanceView,
	},
})

func buildPermissionMap(table map[Role][]Permission) map[Role]map[Permission]struct{} {
	out := make(map[Role]map[Permission]struct{}, len(table))
	for role, perms := range table {
		set := make(map[Permission]struct{}, len(perms))
		for _, p := range perms {
			set[p] = struct{}{}
		}
		out[role] = set
	}
	return out
}

// HasPermission reports whether the role grants the permission.
func HasPermission(role Role, perm Permission) bool {
	set, ok := rolePermissions[role]
	if !ok {
		return false
	}
	_, ok = set[perm]
	return ok
}

// PermissionsForRole returns the role's permission set as a sorted list,
// suitable for embedding into token claims.
func PermissionsForRole(role Role) []string {
	set, ok := rolePermissions[role]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, string(p))
	}
	sort.Strings(out)
	return out
}
