// Package rbac is the role/permission policy, backed by a casbin RBAC model
// held in memory.
package rbac

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

type Permission string

const (
	PermPonsView         Permission = "pons.view"
	PermPonsManage       Permission = "pons.manage"
	PermTasksManage      Permission = "tasks.manage"
	PermEvidenceSubmit   Permission = "evidence.submit"
	PermIncidentsView    Permission = "incidents.view"
	PermIncidentsManage  Permission = "incidents.manage"
	PermMaintenanceView  Permission = "maintenance.view"
	PermMaintenanceEdit  Permission = "maintenance.manage"
	PermWebhookEventView Permission = "webhooks.events.view"
	PermAuditView        Permission = "audit.view"
)

const modelText = `
[request_definition]
r = sub, perm

[policy_definition]
p = sub, perm

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.perm == p.perm
`

type Policy struct {
	enforcer *casbin.Enforcer
}

// rolePerms is the built-in policy. Admin inherits dispatcher, dispatcher
// inherits viewer; contractor is the field-crew role.
var rolePerms = map[string][]Permission{
	"viewer": {PermPonsView, PermIncidentsView, PermMaintenanceView},
	"contractor": {
		PermPonsView, PermTasksManage, PermEvidenceSubmit, PermIncidentsView,
	},
	"dispatcher": {
		PermPonsManage, PermTasksManage, PermIncidentsManage,
		PermMaintenanceEdit, PermWebhookEventView,
	},
	"admin": {PermAuditView},
}

var roleInherits = map[string]string{
	"dispatcher": "viewer",
	"admin":      "dispatcher",
}

func NewPolicy() (*Policy, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("rbac model: %w", err)
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("rbac enforcer: %w", err)
	}
	for role, perms := range rolePerms {
		for _, perm := range perms {
			if _, err := e.AddPolicy(role, string(perm)); err != nil {
				return nil, err
			}
		}
	}
	for role, parent := range roleInherits {
		if _, err := e.AddGroupingPolicy(role, parent); err != nil {
			return nil, err
		}
	}
	return &Policy{enforcer: e}, nil
}

// Allowed reports whether any of the roles grants the permission.
func (p *Policy) Allowed(roles []string, perm Permission) bool {
	if p == nil || p.enforcer == nil {
		return false
	}
	for _, role := range roles {
		ok, err := p.enforcer.Enforce(role, string(perm))
		if err == nil && ok {
			return true
		}
	}
	return false
}
