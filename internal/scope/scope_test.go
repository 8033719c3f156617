package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyValidate(t *testing.T) {
	cases := []struct {
		name    string
		key     Key
		wantErr bool
	}{
		{"valid tenant", Key{TenantID: "t1", Scope: Tenant}, false},
		{"tenant with workspace", Key{TenantID: "t1", Scope: Tenant, WorkspaceID: "w1"}, true},
		{"valid workspace", Key{TenantID: "t1", Scope: Workspace, WorkspaceID: "w1"}, false},
		{"workspace missing id", Key{TenantID: "t1", Scope: Workspace}, true},
		{"workspace with principal", Key{TenantID: "t1", Scope: Workspace, WorkspaceID: "w1", PrincipalID: "p1"}, true},
		{"valid user", Key{TenantID: "t1", Scope: User, WorkspaceID: "w1", PrincipalID: "p1"}, false},
		{"user missing principal", Key{TenantID: "t1", Scope: User, WorkspaceID: "w1"}, true},
		{"missing tenant", Key{Scope: Tenant}, true},
		{"unknown scope", Key{TenantID: "t1", Scope: "bogus"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.key.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestVisibilityKeys(t *testing.T) {
	tenantOnly := NewVisibility("t1", "", "")
	require.Equal(t, []Key{{TenantID: "t1", Scope: Tenant}}, tenantOnly.Keys())

	withWorkspace := NewVisibility("t1", "w1", "")
	require.Equal(t, []Key{
		{TenantID: "t1", Scope: Tenant},
		{TenantID: "t1", Scope: Workspace, WorkspaceID: "w1"},
	}, withWorkspace.Keys())

	withUser := NewVisibility("t1", "w1", "p1")
	require.Equal(t, []Key{
		{TenantID: "t1", Scope: Tenant},
		{TenantID: "t1", Scope: Workspace, WorkspaceID: "w1"},
		{TenantID: "t1", Scope: User, WorkspaceID: "w1", PrincipalID: "p1"},
	}, withUser.Keys())
}

func TestVisibilityContains(t *testing.T) {
	vis := NewVisibility("t1", "w1", "p1")

	assert.True(t, vis.Contains(Key{TenantID: "t1", Scope: Tenant}))
	assert.True(t, vis.Contains(Key{TenantID: "t1", Scope: Workspace, WorkspaceID: "w1"}))
	assert.True(t, vis.Contains(Key{TenantID: "t1", Scope: User, WorkspaceID: "w1", PrincipalID: "p1"}))

	assert.False(t, vis.Contains(Key{TenantID: "t2", Scope: Tenant}))
	assert.False(t, vis.Contains(Key{TenantID: "t1", Scope: Workspace, WorkspaceID: "w2"}))
	assert.False(t, vis.Contains(Key{TenantID: "t1", Scope: User, WorkspaceID: "w1", PrincipalID: "p2"}))

	tenantOnly := NewVisibility("t1", "", "")
	assert.False(t, tenantOnly.Contains(Key{TenantID: "t1", Scope: Workspace, WorkspaceID: "w1"}))
}
