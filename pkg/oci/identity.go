package oci

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/oracle/oci-go-sdk/v65/common"
	"github.com/oracle/oci-go-sdk/v65/identity"
	"go.uber.org/zap"

	"github.com/jinchuntan/oci-iam-policy-drift-auditor/pkg/types"
)

// maxConcurrentAPICalls bounds the per-compartment policy fan-out.
const maxConcurrentAPICalls = 8

// IdentityAPI is the slice of the Identity service the collector uses.
type IdentityAPI interface {
	GetTenancy(ctx context.Context, request identity.GetTenancyRequest) (identity.GetTenancyResponse, error)
	GetCompartment(ctx context.Context, request identity.GetCompartmentRequest) (identity.GetCompartmentResponse, error)
	ListCompartments(ctx context.Context, request identity.ListCompartmentsRequest) (identity.ListCompartmentsResponse, error)
	ListPolicies(ctx context.Context, request identity.ListPoliciesRequest) (identity.ListPoliciesResponse, error)
	ListGroups(ctx context.Context, request identity.ListGroupsRequest) (identity.ListGroupsResponse, error)
	ListUsers(ctx context.Context, request identity.ListUsersRequest) (identity.ListUsersResponse, error)
	ListUserGroupMemberships(ctx context.Context, request identity.ListUserGroupMembershipsRequest) (identity.ListUserGroupMembershipsResponse, error)
	ListDynamicGroups(ctx context.Context, request identity.ListDynamicGroupsRequest) (identity.ListDynamicGroupsResponse, error)
}

// IdentityCollector gathers the directory snapshot: compartments in scope,
// every policy statement, and the principal inventory used for blast-radius
// resolution.
type IdentityCollector struct {
	api IdentityAPI
	log *zap.SugaredLogger
}

func NewIdentityCollector(api IdentityAPI, log *zap.SugaredLogger) *IdentityCollector {
	return &IdentityCollector{api: api, log: log}
}

// SnapshotParams scopes one collection run.
type SnapshotParams struct {
	TenancyOCID            string
	RootCompartmentOCID    string
	IncludeSubcompartments bool
}

// CollectSnapshot materializes the full directory snapshot. Compartment
// discovery failures are fatal; an unreadable compartment only skips that
// compartment, and principal inventory failures degrade to empty lists so
// the risk evaluation can still run.
func (c *IdentityCollector) CollectSnapshot(ctx context.Context, params SnapshotParams) (*types.DirectorySnapshot, error) {
	compartments, err := c.listCompartments(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to list compartments: %v", err)
	}
	c.log.Infof("discovered %d accessible compartments in scope", len(compartments))

	statements, policyCount, skipped := c.collectPolicies(ctx, compartments)

	c.log.Info("collecting tenancy IAM principal inventory (users, groups, memberships, dynamic groups)")

	rawGroups, err := c.listGroups(ctx, params.TenancyOCID)
	if err != nil {
		c.log.Warnf("listing groups failed: %v", err)
	}
	rawUsers, err := c.listUsers(ctx, params.TenancyOCID)
	if err != nil {
		c.log.Warnf("listing users failed: %v", err)
	}
	memberCounts, err := c.countMemberships(ctx, params.TenancyOCID, rawUsers)
	if err != nil {
		c.log.Warnf("listing group memberships failed: %v", err)
	}
	rawDynamicGroups, err := c.listDynamicGroups(ctx, params.TenancyOCID)
	if err != nil {
		c.log.Warnf("listing dynamic groups failed: %v", err)
	}

	groups := make([]types.Group, 0, len(rawGroups))
	for _, g := range rawGroups {
		count := memberCounts[deref(g.Id)]
		groups = append(groups, types.Group{
			ID:          deref(g.Id),
			Name:        deref(g.Name),
			MemberCount: &count,
		})
	}

	dynamicGroups := make([]types.Group, 0, len(rawDynamicGroups))
	for _, g := range rawDynamicGroups {
		// Dynamic group membership is rule-based; there is no count to resolve.
		dynamicGroups = append(dynamicGroups, types.Group{
			ID:   deref(g.Id),
			Name: deref(g.Name),
		})
	}

	activePrincipals := 0
	mfaEnabled := 0
	for _, user := range rawUsers {
		if user.LifecycleState == identity.UserLifecycleStateActive {
			activePrincipals++
		}
		if user.IsMfaActivated != nil && *user.IsMfaActivated {
			mfaEnabled++
		}
	}

	return &types.DirectorySnapshot{
		Compartments:         compartments,
		Statements:           statements,
		Groups:               groups,
		DynamicGroups:        dynamicGroups,
		PolicyCount:          policyCount,
		ActivePrincipalCount: activePrincipals,
		UserCount:            len(rawUsers),
		MFAEnabledUserCount:  mfaEnabled,
		SkippedCompartments:  skipped,
	}, nil
}

// listCompartments resolves the scope root (tenancy unless overridden), then
// walks its subtree. The tenancy root can be expanded with a single subtree
// query; a non-tenancy root needs a breadth-first walk because the subtree
// flag is only honored on the tenancy.
func (c *IdentityCollector) listCompartments(ctx context.Context, params SnapshotParams) ([]types.Compartment, error) {
	rootID := params.RootCompartmentOCID
	if rootID == "" {
		rootID = params.TenancyOCID
	}

	var rootName string
	if params.RootCompartmentOCID != "" {
		resp, err := c.api.GetCompartment(ctx, identity.GetCompartmentRequest{CompartmentId: common.String(rootID)})
		if err != nil {
			return nil, fmt.Errorf("failed to get root compartment %s: %v", rootID, err)
		}
		rootName = deref(resp.Name)
	} else {
		resp, err := c.api.GetTenancy(ctx, identity.GetTenancyRequest{TenancyId: common.String(params.TenancyOCID)})
		if err != nil {
			return nil, fmt.Errorf("failed to get tenancy: %v", err)
		}
		rootName = deref(resp.Name)
	}

	compartments := []types.Compartment{{ID: rootID, Name: rootName}}

	switch {
	case !params.IncludeSubcompartments:
		children, err := c.listChildCompartments(ctx, rootID, false)
		if err != nil {
			return nil, err
		}
		compartments = append(compartments, children...)
	case rootID == params.TenancyOCID:
		subtree, err := c.listChildCompartments(ctx, rootID, true)
		if err != nil {
			return nil, err
		}
		compartments = append(compartments, subtree...)
	default:
		queue := []string{rootID}
		visited := make(map[string]bool)
		for len(queue) > 0 {
			parentID := queue[0]
			queue = queue[1:]
			if visited[parentID] {
				continue
			}
			visited[parentID] = true

			children, err := c.listChildCompartments(ctx, parentID, false)
			if err != nil {
				return nil, err
			}
			for _, child := range children {
				compartments = append(compartments, child)
				queue = append(queue, child.ID)
			}
		}
	}

	seen := make(map[string]bool, len(compartments))
	unique := make([]types.Compartment, 0, len(compartments))
	for _, compartment := range compartments {
		if seen[compartment.ID] {
			continue
		}
		seen[compartment.ID] = true
		unique = append(unique, compartment)
	}
	sort.Slice(unique, func(i, j int) bool {
		return strings.ToLower(unique[i].Name) < strings.ToLower(unique[j].Name)
	})
	return unique, nil
}

func (c *IdentityCollector) listChildCompartments(ctx context.Context, parentID string, subtree bool) ([]types.Compartment, error) {
	var compartments []types.Compartment
	var page *string
	for {
		resp, err := c.api.ListCompartments(ctx, identity.ListCompartmentsRequest{
			CompartmentId:          common.String(parentID),
			CompartmentIdInSubtree: common.Bool(subtree),
			AccessLevel:            identity.ListCompartmentsAccessLevelAccessible,
			LifecycleState:         identity.CompartmentLifecycleStateActive,
			Page:                   page,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list compartments under %s: %v", parentID, err)
		}
		for _, item := range resp.Items {
			compartments = append(compartments, types.Compartment{ID: deref(item.Id), Name: deref(item.Name)})
		}
		if resp.OpcNextPage == nil {
			break
		}
		page = resp.OpcNextPage
	}
	return compartments, nil
}

// collectPolicies fans policy listing out across compartments, bounded by
// maxConcurrentAPICalls. Results land in per-compartment slots so the
// statement order stays deterministic regardless of scheduling, and a
// compartment whose policies cannot be read becomes a skip entry instead of
// failing the run.
func (c *IdentityCollector) collectPolicies(ctx context.Context, compartments []types.Compartment) ([]types.PolicyStatement, int, []types.SkippedCompartment) {
	statementSlots := make([][]types.PolicyStatement, len(compartments))
	policyCounts := make([]int, len(compartments))
	skipSlots := make([]*types.SkippedCompartment, len(compartments))

	var wg sync.WaitGroup
	sem := make(chan struct{}, maxConcurrentAPICalls)

	for i, compartment := range compartments {
		wg.Add(1)
		go func(i int, compartment types.Compartment) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			c.log.Infof("[%d/%d] collecting policies: %s", i+1, len(compartments), compartment.Name)
			statements, count, err := c.listPolicyStatements(ctx, compartment)
			if err != nil {
				skipSlots[i] = &types.SkippedCompartment{
					CompartmentID: compartment.ID,
					Reason:        serviceErrorReason("listing policies", err),
				}
				c.log.Warnf("could not read policies in compartment %s: %v", compartment.Name, err)
				return
			}
			statementSlots[i] = statements
			policyCounts[i] = count
		}(i, compartment)
	}
	wg.Wait()

	var statements []types.PolicyStatement
	var skipped []types.SkippedCompartment
	policyCount := 0
	for i := range compartments {
		statements = append(statements, statementSlots[i]...)
		policyCount += policyCounts[i]
		if skipSlots[i] != nil {
			skipped = append(skipped, *skipSlots[i])
		}
	}
	return statements, policyCount, skipped
}

func (c *IdentityCollector) listPolicyStatements(ctx context.Context, compartment types.Compartment) ([]types.PolicyStatement, int, error) {
	var statements []types.PolicyStatement
	policies := 0
	var page *string
	for {
		resp, err := c.api.ListPolicies(ctx, identity.ListPoliciesRequest{
			CompartmentId: common.String(compartment.ID),
			Page:          page,
		})
		if err != nil {
			return nil, 0, err
		}
		for _, policy := range resp.Items {
			policies++
			for _, raw := range policy.Statements {
				statements = append(statements, types.PolicyStatement{
					PolicyID:        deref(policy.Id),
					PolicyName:      deref(policy.Name),
					CompartmentID:   compartment.ID,
					CompartmentName: compartment.Name,
					Raw:             raw,
				})
			}
		}
		if resp.OpcNextPage == nil {
			break
		}
		page = resp.OpcNextPage
	}
	return statements, policies, nil
}

func (c *IdentityCollector) listGroups(ctx context.Context, tenancyOCID string) ([]identity.Group, error) {
	var groups []identity.Group
	var page *string
	for {
		resp, err := c.api.ListGroups(ctx, identity.ListGroupsRequest{
			CompartmentId: common.String(tenancyOCID),
			Page:          page,
		})
		if err != nil {
			return groups, err
		}
		groups = append(groups, resp.Items...)
		if resp.OpcNextPage == nil {
			break
		}
		page = resp.OpcNextPage
	}
	return groups, nil
}

func (c *IdentityCollector) listUsers(ctx context.Context, tenancyOCID string) ([]identity.User, error) {
	var users []identity.User
	var page *string
	for {
		resp, err := c.api.ListUsers(ctx, identity.ListUsersRequest{
			CompartmentId: common.String(tenancyOCID),
			Page:          page,
		})
		if err != nil {
			return users, err
		}
		users = append(users, resp.Items...)
		if resp.OpcNextPage == nil {
			break
		}
		page = resp.OpcNextPage
	}
	return users, nil
}

// countMemberships tallies members per group across every user. Membership
// records are deduplicated by id, the service can return a record on more
// than one page boundary.
func (c *IdentityCollector) countMemberships(ctx context.Context, tenancyOCID string, users []identity.User) (map[string]int, error) {
	counts := make(map[string]int)
	seen := make(map[string]bool)

	for _, user := range users {
		var page *string
		for {
			resp, err := c.api.ListUserGroupMemberships(ctx, identity.ListUserGroupMembershipsRequest{
				CompartmentId: common.String(tenancyOCID),
				UserId:        user.Id,
				Page:          page,
			})
			if err != nil {
				return counts, err
			}
			for _, membership := range resp.Items {
				id := deref(membership.Id)
				if id != "" && seen[id] {
					continue
				}
				if id != "" {
					seen[id] = true
				}
				counts[deref(membership.GroupId)]++
			}
			if resp.OpcNextPage == nil {
				break
			}
			page = resp.OpcNextPage
		}
	}
	return counts, nil
}

func (c *IdentityCollector) listDynamicGroups(ctx context.Context, tenancyOCID string) ([]identity.DynamicGroup, error) {
	var groups []identity.DynamicGroup
	var page *string
	for {
		resp, err := c.api.ListDynamicGroups(ctx, identity.ListDynamicGroupsRequest{
			CompartmentId: common.String(tenancyOCID),
			Page:          page,
		})
		if err != nil {
			return groups, err
		}
		groups = append(groups, resp.Items...)
		if resp.OpcNextPage == nil {
			break
		}
		page = resp.OpcNextPage
	}
	return groups, nil
}
