// Package scope implements the tenant/workspace/user scoping primitives.
//
// Every stored artifact is tagged with a ScopeKey. ListDocuments,
// CountsByStatus, HybridSearch and ExpandBySharedEntities take a
// Visibility built once per request; single-row
// lookups such as MetaStore.GetDocument take none, and their HTTP callers
// check the result with Visibility.Contains.
package scope

import "fmt"

// Level is the granularity at which an artifact is scoped.
type Level string

const (
	Tenant    Level = "tenant"
	Workspace Level = "workspace"
	User      Level = "user"
)

// Key identifies the scope an artifact belongs to.
type Key struct {
	TenantID    string `json:"tenant_id"`
	Scope       Level  `json:"scope"`
	WorkspaceID string `json:"workspace_id,omitempty"`
	PrincipalID string `json:"principal_id,omitempty"`
}

// Validate enforces the invariants in spec.md §3: tenant scope carries no
// workspace/principal, workspace scope requires a workspace and no
// principal, user scope requires both.
func (k Key) Validate() error {
	if k.TenantID == "" {
		return fmt.Errorf("scope: tenant_id is required")
	}
	switch k.Scope {
	case Tenant:
		if k.WorkspaceID != "" || k.PrincipalID != "" {
			return fmt.Errorf("scope: tenant scope must not carry workspace_id or principal_id")
		}
	case Workspace:
		if k.WorkspaceID == "" {
			return fmt.Errorf("scope: workspace scope requires workspace_id")
		}
		if k.PrincipalID != "" {
			return fmt.Errorf("scope: workspace scope must not carry principal_id")
		}
	case User:
		if k.WorkspaceID == "" || k.PrincipalID == "" {
			return fmt.Errorf("scope: user scope requires workspace_id and principal_id")
		}
	default:
		return fmt.Errorf("scope: unknown scope level %q", k.Scope)
	}
	return nil
}

// Visibility is the set of ScopeKeys a caller may observe, derived once
// per request from their resolved tenant and the headers they supplied.
type Visibility struct {
	TenantID    string
	WorkspaceID string
	PrincipalID string
}

// NewVisibility builds a Visibility from a resolved tenant plus optional
// workspace/principal headers.
func NewVisibility(tenantID, workspaceID, principalID string) Visibility {
	return Visibility{TenantID: tenantID, WorkspaceID: workspaceID, PrincipalID: principalID}
}

// Keys returns the concrete set of ScopeKeys this Visibility includes,
// per spec.md §3's membership rule: tenant is always included; workspace
// is included if a workspace id was supplied; user is included if both
// workspace and principal were supplied.
func (v Visibility) Keys() []Key {
	keys := []Key{{TenantID: v.TenantID, Scope: Tenant}}
	if v.WorkspaceID != "" {
		keys = append(keys, Key{TenantID: v.TenantID, Scope: Workspace, WorkspaceID: v.WorkspaceID})
		if v.PrincipalID != "" {
			keys = append(keys, Key{TenantID: v.TenantID, Scope: User, WorkspaceID: v.WorkspaceID, PrincipalID: v.PrincipalID})
		}
	}
	return keys
}

// Contains reports whether the given key lies within this Visibility.
func (v Visibility) Contains(k Key) bool {
	if k.TenantID != v.TenantID {
		return false
	}
	switch k.Scope {
	case Tenant:
		return true
	case Workspace:
		return v.WorkspaceID != "" && k.WorkspaceID == v.WorkspaceID
	case User:
		return v.WorkspaceID != "" && v.PrincipalID != "" && k.WorkspaceID == v.WorkspaceID && k.PrincipalID == v.PrincipalID
	}
	return false
}
