// Package authz decides whether a staff role may perform an action on a resource type.
package authz

import (
	"github.com/noah-isme/institute-admin-api/internal/models"
	appErrors "github.com/noah-isme/institute-admin-api/pkg/errors"
)

// Action names an operation kind.
type Action string

const (
	ActionCreate         Action = "create"
	ActionUpdate         Action = "update"
	ActionDelete         Action = "delete"
	ActionView           Action = "view"
	ActionConvert        Action = "convert"
	ActionUpdateCapacity Action = "update_capacity"
	ActionUpdateStatus   Action = "update_status"
)

// Resource names a guarded entity type.
type Resource string

const (
	ResourceBatch     Resource = "batch"
	ResourceLead      Resource = "lead"
	ResourceStudent   Resource = "student"
	ResourcePlacement Resource = "placement"
	ResourceEmployee  Resource = "employee"
	ResourceCourse    Resource = "course"
	ResourceCompany   Resource = "company"
)

var (
	adminOnly       = roles(models.RoleAdmin)
	adminOperations = roles(models.RoleAdmin, models.RoleOperations)
	adminCounsellor = roles(models.RoleAdmin, models.RoleCounsellor)
	adminPlacement  = roles(models.RoleAdmin, models.RolePlacementOfficer)
	everyone        = roles(models.AllRoles...)
)

var matrix = map[Resource]map[Action]map[models.EmployeeRole]struct{}{
	ResourceBatch: {
		ActionCreate:         adminOperations,
		ActionUpdate:         adminOperations,
		ActionUpdateCapacity: adminOperations,
		ActionUpdateStatus:   adminOperations,
		ActionDelete:         adminOnly,
		ActionView:           roles(models.RoleAdmin, models.RoleOperations, models.RoleFaculty),
	},
	ResourceLead: {
		ActionCreate:  adminCounsellor,
		ActionUpdate:  adminCounsellor,
		ActionDelete:  adminCounsellor,
		ActionView:    adminCounsellor,
		ActionConvert: adminCounsellor,
	},
	ResourceStudent: {
		ActionCreate:       adminCounsellor,
		ActionUpdate:       adminCounsellor,
		ActionUpdateStatus: adminCounsellor,
		ActionDelete:       adminOnly,
		ActionView:         roles(models.RoleAdmin, models.RoleCounsellor, models.RoleFaculty),
	},
	ResourcePlacement: {
		ActionCreate:       adminPlacement,
		ActionUpdate:       adminPlacement,
		ActionUpdateStatus: adminPlacement,
		ActionView:         adminPlacement,
		ActionDelete:       adminOnly,
	},
	ResourceEmployee: {
		ActionCreate:       adminOnly,
		ActionUpdate:       adminOnly,
		ActionUpdateStatus: adminOnly,
		ActionView:         everyone,
	},
	ResourceCourse: {
		ActionCreate: adminOperations,
		ActionUpdate: adminOperations,
		ActionView:   everyone,
	},
	ResourceCompany: {
		ActionCreate: adminPlacement,
		ActionUpdate: adminPlacement,
		ActionView:   adminPlacement,
	},
}

func roles(list ...models.EmployeeRole) map[models.EmployeeRole]struct{} {
	set := make(map[models.EmployeeRole]struct{}, len(list))
	for _, r := range list {
		set[r] = struct{}{}
	}
	return set
}

// Allowed reports whether role may perform action on resource. Unknown pairs are denied.
func Allowed(role models.EmployeeRole, action Action, resource Resource) bool {
	allowed, ok := matrix[resource][action]
	if !ok {
		return false
	}
	_, ok = allowed[role]
	return ok
}

// Authorize returns ErrUnauthorized for a missing principal and ErrForbidden when the
// principal's role is not on the allow-list for action on resource.
func Authorize(p *models.Principal, action Action, resource Resource) error {
	if !p.Authenticated() {
		return appErrors.Clone(appErrors.ErrUnauthorized, "authentication required")
	}
	if !Allowed(p.Role, action, resource) {
		return appErrors.Clone(appErrors.ErrForbidden, "role "+string(p.Role)+" may not "+string(action)+" "+string(resource))
	}
	return nil
}

// AuthorizeAny succeeds when at least one of the (action, resource) pairs is allowed.
func AuthorizeAny(p *models.Principal, checks ...Check) error {
	if !p.Authenticated() {
		return appErrors.Clone(appErrors.ErrUnauthorized, "authentication required")
	}
	for _, c := range checks {
		if Allowed(p.Role, c.Action, c.Resource) {
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrForbidden, "role "+string(p.Role)+" is not permitted")
}

// Check pairs an action with a resource.
type Check struct {
	Action   Action
	Resource Resource
}
