package analyzer

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinchuntan/oci-iam-policy-drift-auditor/pkg/types"
)

// countingDirectory records how many lookups reach it so tests can verify
// the per-run cache short-circuits repeat resolutions.
type countingDirectory struct {
	groups        map[string]types.Group
	dynamicGroups map[string]types.Group
	principals    int
	groupCalls    int
	dynamicCalls  int
}

func (d *countingDirectory) GroupByName(name string) (types.Group, error) {
	d.groupCalls++
	if group, ok := d.groups[name]; ok {
		return group, nil
	}
	return types.Group{}, fmt.Errorf("group %s: %w", name, types.ErrGroupNotFound)
}

func (d *countingDirectory) DynamicGroupByName(name string) (types.Group, error) {
	d.dynamicCalls++
	if group, ok := d.dynamicGroups[name]; ok {
		return group, nil
	}
	return types.Group{}, fmt.Errorf("dynamic group %s: %w", name, types.ErrGroupNotFound)
}

func (d *countingDirectory) ActivePrincipalCount() int {
	return d.principals
}

func intPtr(n int) *int { return &n }

func TestResolveGroupRadius(t *testing.T) {
	directory := &countingDirectory{
		groups: map[string]types.Group{
			"Auditors": {ID: "ocid1.group.oc1..aud", Name: "Auditors", MemberCount: intPtr(7)},
		},
	}
	resolver := NewRadiusResolver(directory)

	radius, note := resolver.Resolve(types.Grant{
		Verb:         types.VerbInspect,
		ResourceType: "buckets",
		SubjectType:  types.SubjectGroup,
		SubjectName:  "Auditors",
	})
	require.NotNil(t, radius)
	assert.Equal(t, 7, *radius)
	assert.Empty(t, note)
}

func TestResolveCachesPerSubject(t *testing.T) {
	directory := &countingDirectory{
		groups: map[string]types.Group{
			"Ops": {ID: "ocid1.group.oc1..ops", Name: "Ops", MemberCount: intPtr(3)},
		},
	}
	resolver := NewRadiusResolver(directory)
	grant := types.Grant{
		Verb:         types.VerbManage,
		ResourceType: "instance-family",
		SubjectType:  types.SubjectGroup,
		SubjectName:  "Ops",
	}

	first, _ := resolver.Resolve(grant)
	second, _ := resolver.Resolve(grant)

	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, *first, *second)
	assert.Equal(t, 1, directory.groupCalls, "second resolution must hit the cache")

	// Unresolved results are cached too.
	missing := types.Grant{SubjectType: types.SubjectGroup, SubjectName: "Ghost"}
	resolver.Resolve(missing)
	resolver.Resolve(missing)
	assert.Equal(t, 2, directory.groupCalls)
}

func TestResolveCacheKeysSubjectType(t *testing.T) {
	directory := &countingDirectory{
		groups: map[string]types.Group{
			"agents": {ID: "g1", Name: "agents", MemberCount: intPtr(5)},
		},
		dynamicGroups: map[string]types.Group{
			"agents": {ID: "dg1", Name: "agents"},
		},
	}
	resolver := NewRadiusResolver(directory)

	radius, _ := resolver.Resolve(types.Grant{SubjectType: types.SubjectGroup, SubjectName: "agents"})
	require.NotNil(t, radius)
	assert.Equal(t, 5, *radius)

	// Same name, different subject type: must miss the group cache entry.
	radius, note := resolver.Resolve(types.Grant{SubjectType: types.SubjectDynamicGroup, SubjectName: "agents"})
	assert.Nil(t, radius)
	assert.Contains(t, note, "rule-based membership")
	assert.Equal(t, 1, directory.groupCalls)
	assert.Equal(t, 1, directory.dynamicCalls)
}

func TestResolveUnknownGroupIsNotFatal(t *testing.T) {
	resolver := NewRadiusResolver(&countingDirectory{})

	radius, note := resolver.Resolve(types.Grant{
		Verb:         types.VerbManage,
		ResourceType: "all-resources",
		SubjectType:  types.SubjectGroup,
		SubjectName:  "LegacyAdmins",
	})
	assert.Nil(t, radius)
	assert.Contains(t, note, "LegacyAdmins unresolved")
}

func TestResolveLookupIsCaseSensitive(t *testing.T) {
	directory := &countingDirectory{
		groups: map[string]types.Group{
			"Auditors": {ID: "g1", Name: "Auditors", MemberCount: intPtr(7)},
		},
	}
	resolver := NewRadiusResolver(directory)

	radius, note := resolver.Resolve(types.Grant{SubjectType: types.SubjectGroup, SubjectName: "auditors"})
	assert.Nil(t, radius)
	assert.Contains(t, note, "unresolved")
}

func TestResolveAnyUserUsesPrincipalCount(t *testing.T) {
	resolver := NewRadiusResolver(&countingDirectory{principals: 412})

	radius, note := resolver.Resolve(types.Grant{
		Verb:         types.VerbManage,
		ResourceType: "all-resources",
		SubjectType:  types.SubjectAnyUser,
		Scope:        types.ScopeTenancy,
	})
	require.NotNil(t, radius)
	assert.Equal(t, 412, *radius)
	assert.Empty(t, note)
}

func TestResolveServiceHasNoRadius(t *testing.T) {
	resolver := NewRadiusResolver(&countingDirectory{principals: 9})

	radius, note := resolver.Resolve(types.Grant{
		Verb:         types.VerbManage,
		ResourceType: "object-family",
		SubjectType:  types.SubjectService,
		SubjectName:  "objectstorage-us-ashburn-1",
	})
	assert.Nil(t, radius)
	assert.Contains(t, note, "service principal")
}

func TestResolveZeroMembersIsResolved(t *testing.T) {
	directory := &countingDirectory{
		groups: map[string]types.Group{
			"EmptyTeam": {ID: "g9", Name: "EmptyTeam", MemberCount: intPtr(0)},
		},
	}
	resolver := NewRadiusResolver(directory)

	radius, note := resolver.Resolve(types.Grant{SubjectType: types.SubjectGroup, SubjectName: "EmptyTeam"})
	require.NotNil(t, radius, "zero members is a resolved count, not an unresolved state")
	assert.Equal(t, 0, *radius)
	assert.Empty(t, note)
}
