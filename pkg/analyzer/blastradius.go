package analyzer

import (
	"errors"
	"fmt"

	"github.com/jinchuntan/oci-iam-policy-drift-auditor/pkg/types"
)

// GroupDirectory is the slice of the directory snapshot the blast-radius
// resolver reads. Lookups are by exact, case-sensitive name.
type GroupDirectory interface {
	GroupByName(name string) (types.Group, error)
	DynamicGroupByName(name string) (types.Group, error)
	ActivePrincipalCount() int
}

type snapshotDirectory struct {
	groups        map[string]types.Group
	dynamicGroups map[string]types.Group
	principals    int
}

// SnapshotDirectory exposes a collected snapshot as a GroupDirectory.
func SnapshotDirectory(snapshot *types.DirectorySnapshot) GroupDirectory {
	dir := &snapshotDirectory{
		groups:        make(map[string]types.Group, len(snapshot.Groups)),
		dynamicGroups: make(map[string]types.Group, len(snapshot.DynamicGroups)),
		principals:    snapshot.ActivePrincipalCount,
	}
	for _, g := range snapshot.Groups {
		dir.groups[g.Name] = g
	}
	for _, g := range snapshot.DynamicGroups {
		dir.dynamicGroups[g.Name] = g
	}
	return dir
}

func (d *snapshotDirectory) GroupByName(name string) (types.Group, error) {
	group, ok := d.groups[name]
	if !ok {
		return types.Group{}, fmt.Errorf("group %s: %w", name, types.ErrGroupNotFound)
	}
	return group, nil
}

func (d *snapshotDirectory) DynamicGroupByName(name string) (types.Group, error) {
	group, ok := d.dynamicGroups[name]
	if !ok {
		return types.Group{}, fmt.Errorf("dynamic group %s: %w", name, types.ErrGroupNotFound)
	}
	return group, nil
}

func (d *snapshotDirectory) ActivePrincipalCount() int {
	return d.principals
}

type radiusEntry struct {
	radius *int
	note   string
}

// RadiusResolver computes how many principals a grant reaches. Results are
// cached per subject within one run; the cache is write-once per key and is
// never shared across runs.
type RadiusResolver struct {
	directory GroupDirectory
	cache     map[string]radiusEntry
}

// NewRadiusResolver returns a resolver with an empty per-run cache.
func NewRadiusResolver(directory GroupDirectory) *RadiusResolver {
	return &RadiusResolver{
		directory: directory,
		cache:     make(map[string]radiusEntry),
	}
}

// Resolve returns the grant's blast radius and an optional note. A nil radius
// means the count is unknowable (unresolved group, rule-based membership,
// service principal), which is distinct from a resolved count of zero.
func (r *RadiusResolver) Resolve(grant types.Grant) (*int, string) {
	switch grant.SubjectType {
	case types.SubjectAnyUser:
		count := r.directory.ActivePrincipalCount()
		return &count, ""
	case types.SubjectService:
		return nil, "service principal, membership not applicable"
	case types.SubjectGroup, types.SubjectDynamicGroup:
		key := string(grant.SubjectType) + "/" + grant.SubjectName
		if entry, ok := r.cache[key]; ok {
			return entry.radius, entry.note
		}
		entry := r.lookup(grant)
		r.cache[key] = entry
		return entry.radius, entry.note
	default:
		return nil, ""
	}
}

func (r *RadiusResolver) lookup(grant types.Grant) radiusEntry {
	var (
		group types.Group
		err   error
	)
	if grant.SubjectType == types.SubjectDynamicGroup {
		group, err = r.directory.DynamicGroupByName(grant.SubjectName)
	} else {
		group, err = r.directory.GroupByName(grant.SubjectName)
	}

	if errors.Is(err, types.ErrGroupNotFound) {
		return radiusEntry{
			note: fmt.Sprintf("%s %s unresolved, deleted or renamed since the policy was authored", grant.SubjectType, grant.SubjectName),
		}
	}
	if err != nil {
		return radiusEntry{
			note: fmt.Sprintf("%s %s unresolved: %v", grant.SubjectType, grant.SubjectName, err),
		}
	}
	if group.MemberCount == nil {
		return radiusEntry{
			note: fmt.Sprintf("%s %s has rule-based membership, count not enumerable", grant.SubjectType, grant.SubjectName),
		}
	}
	count := *group.MemberCount
	return radiusEntry{radius: &count}
}
