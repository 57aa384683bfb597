package areas

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsboard/opsboard/internal/roles"
)

func TestDirectorInheritsDescendantsOnly(t *testing.T) {
	store := newMemStore()
	store.addUser(10, roles.Director, Assignment{AreaID: 2})
	authz := NewAuthorizer(store, nil)
	ctx := context.Background()

	editable, err := authz.EditableAreasForUser(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 5, 4, 6}, ids(editable))

	capturable, err := authz.CapturableAreasForUser(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, ids(editable), ids(capturable))
}

func TestAdminSeesWholeActiveTree(t *testing.T) {
	store := newMemStore()
	store.addUser(1, roles.Admin)
	_ = store.DeactivateArea(context.Background(), 7)
	authz := NewAuthorizer(store, nil)

	editable, err := authz.EditableAreasForUser(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3, 2, 5, 4, 6}, ids(editable))
}

func TestNoAssignmentsYieldsEmptySet(t *testing.T) {
	store := newMemStore()
	store.addUser(11, roles.Director)
	authz := NewAuthorizer(store, nil)

	editable, err := authz.EditableAreasForUser(context.Background(), 11)
	require.NoError(t, err)
	assert.NotNil(t, editable)
	assert.Empty(t, editable)
}

func TestCapturistaLevelRule(t *testing.T) {
	ctx := context.Background()

	t.Run("level 2 without flag", func(t *testing.T) {
		store := newMemStore()
		store.addUser(20, roles.Capturista, Assignment{AreaID: 2})
		capturable, err := NewAuthorizer(store, nil).CapturableAreasForUser(ctx, 20)
		require.NoError(t, err)
		assert.Empty(t, capturable)
	})

	t.Run("level 2 with flag grants only the area", func(t *testing.T) {
		store := newMemStore()
		store.addUser(20, roles.Capturista, Assignment{AreaID: 2, CanCapture: true})
		capturable, err := NewAuthorizer(store, nil).CapturableAreasForUser(ctx, 20)
		require.NoError(t, err)
		assert.Equal(t, []int64{2}, ids(capturable))
	})

	t.Run("gerencia grants area and descendants", func(t *testing.T) {
		store := newMemStore()
		store.addUser(20, roles.Capturista, Assignment{AreaID: 4})
		authz := NewAuthorizer(store, nil)
		capturable, err := authz.CapturableAreasForUser(ctx, 20)
		require.NoError(t, err)
		assert.Equal(t, []int64{4, 6}, ids(capturable))

		editable, err := authz.EditableAreasForUser(ctx, 20)
		require.NoError(t, err)
		assert.Empty(t, editable)
	})
}

func TestAssignmentRoleOverridesPrimaryRole(t *testing.T) {
	store := newMemStore()
	store.addUser(30, roles.Capturista, Assignment{AreaID: 3, Role: roles.Subdirector})
	editable, err := NewAuthorizer(store, nil).EditableAreasForUser(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 7}, ids(editable))
}

func TestInactiveAreaGrantsNothing(t *testing.T) {
	store := newMemStore()
	_ = store.DeactivateArea(context.Background(), 4)
	store.addUser(10, roles.Director, Assignment{AreaID: 4})

	editable, err := NewAuthorizer(store, nil).EditableAreasForUser(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, editable)
}

func TestSiblingWithSharedPrefixIsNotDescendant(t *testing.T) {
	tree := []Area{
		{ID: 1, Path: "DG", Level: 1, Active: true},
		{ID: 2, Path: "DG.OPS", Level: 2, Active: true},
		{ID: 3, Path: "DG.OPSX", Level: 2, Active: true},
	}
	p := Profile{UserID: 1, Role: roles.Subdirector, Active: true, Assignments: []Assignment{
		{AreaID: 2, Active: true, Area: tree[1]},
	}}
	assert.Equal(t, []int64{2}, ids(Accessible(p, tree, Edit)))
}

func TestAuthorizationFailsClosed(t *testing.T) {
	ctx := context.Background()

	store := newMemStore()
	store.addUser(10, roles.Director, Assignment{AreaID: 2})
	store.failTree = errBackend
	authz := NewAuthorizer(store, nil)
	editable, err := authz.EditableAreasForUser(ctx, 10)
	assert.ErrorIs(t, err, errBackend)
	assert.Nil(t, editable)

	store = newMemStore()
	store.failProfile = errBackend
	authz = NewAuthorizer(store, nil)
	ok, err := authz.CanUserEditUser(ctx, 1, 2)
	assert.ErrorIs(t, err, errBackend)
	assert.False(t, ok)
	_, err = authz.AssignableRoles(ctx, 1)
	assert.ErrorIs(t, err, errBackend)
}

func TestCanUserEditUser(t *testing.T) {
	store := newMemStore()
	store.addUser(1, roles.Admin)
	store.addUser(2, roles.Admin)
	store.addUser(10, roles.Director, Assignment{AreaID: 1})
	store.addUser(11, roles.Subdirector, Assignment{AreaID: 2})
	store.addUser(12, roles.Subdirector, Assignment{AreaID: 3})
	store.addUser(20, roles.Capturista, Assignment{AreaID: 4})
	store.addUser(21, roles.Capturista)
	store.addUser(22, roles.Capturista, Assignment{AreaID: 2})
	authz := NewAuthorizer(store, nil)
	ctx := context.Background()

	cases := []struct {
		name          string
		actor, target int64
		want          bool
	}{
		{"self as admin", 1, 1, false},
		{"self as director", 10, 10, false},
		{"admin edits admin", 1, 2, true},
		{"admin edits capturista", 1, 20, true},
		{"director cannot edit admin", 10, 1, false},
		{"director edits descendant subdirector", 10, 11, true},
		{"subdirector edits same-area user", 11, 22, true},
		{"subdirector edits descendant capturista", 11, 20, true},
		{"subdirector cannot edit other branch", 12, 20, false},
		{"subdirector cannot edit ancestor", 11, 10, false},
		{"target without assignments", 10, 21, false},
		{"capturista never edits", 20, 21, false},
		{"admin edits user without profile", 1, 99, true},
		{"director cannot edit user without profile", 10, 99, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := authz.CanUserEditUser(ctx, tc.actor, tc.target)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEditableUsers(t *testing.T) {
	store := newMemStore()
	store.addUser(1, roles.Admin)
	store.addUser(11, roles.Subdirector, Assignment{AreaID: 2})
	store.addUser(20, roles.Capturista, Assignment{AreaID: 4})
	store.addUser(12, roles.Subdirector, Assignment{AreaID: 3})
	authz := NewAuthorizer(store, nil)
	ctx := context.Background()

	got, err := authz.EditableUsers(ctx, 1, []int64{1, 11, 20, 99})
	require.NoError(t, err)
	assert.Equal(t, map[int64]bool{1: false, 11: true, 20: true, 99: true}, got)

	got, err = authz.EditableUsers(ctx, 11, []int64{1, 11, 20, 12, 99})
	require.NoError(t, err)
	assert.Equal(t, map[int64]bool{1: false, 11: false, 20: true, 12: false, 99: false}, got)

	_, err = authz.EditableUsers(ctx, 99, []int64{1})
	assert.ErrorIs(t, err, ErrUserNotFound)

	store.failProfile = errBackend
	_, err = authz.EditableUsers(ctx, 1, []int64{11})
	assert.ErrorIs(t, err, errBackend)
}

func TestAssignableRoles(t *testing.T) {
	store := newMemStore()
	store.addUser(1, roles.Admin)
	store.addUser(10, roles.Director)
	store.addUser(11, roles.Subdirector)
	store.addUser(20, roles.Capturista)
	authz := NewAuthorizer(store, nil)
	ctx := context.Background()

	for actor, want := range map[int64][]roles.Role{
		1:  {roles.Admin, roles.Director, roles.Subdirector, roles.Capturista},
		10: {roles.Subdirector, roles.Capturista},
		11: {roles.Capturista},
		20: {},
	} {
		got, err := authz.AssignableRoles(ctx, actor)
		require.NoError(t, err)
		assert.Equal(t, want, got, "actor %d", actor)
	}
}

func TestValidateAreaAssignment(t *testing.T) {
	store := newMemStore()
	_ = store.DeactivateArea(context.Background(), 5)
	authz := NewAuthorizer(store, nil)
	ctx := context.Background()

	cases := []struct {
		area    int64
		role    roles.Role
		wantErr error
	}{
		{1, roles.Director, nil},
		{2, roles.Director, ErrInvalidAssignment},
		{2, roles.Subdirector, nil},
		{4, roles.Subdirector, ErrInvalidAssignment},
		{4, roles.Capturista, nil},
		{6, roles.Capturista, nil},
		{2, roles.Capturista, ErrInvalidAssignment},
		{1, roles.Admin, nil},
		{5, roles.Capturista, ErrAreaInactive},
		{99, roles.Capturista, ErrAreaNotFound},
	}
	for _, tc := range cases {
		err := authz.ValidateAreaAssignment(ctx, 50, tc.area, tc.role)
		if tc.wantErr == nil {
			assert.NoError(t, err, "area %d role %s", tc.area, tc.role)
			continue
		}
		assert.ErrorIs(t, err, tc.wantErr, "area %d role %s", tc.area, tc.role)
	}
}
