// Package oci wraps the OCI SDK behind narrow, mockable interfaces and turns
// service responses into the auditor's own types. All pagination, retry-free
// error mapping and snapshot assembly happens here; nothing above this
// package talks to the network.
package oci

import (
	"fmt"

	"github.com/oracle/oci-go-sdk/v65/audit"
	"github.com/oracle/oci-go-sdk/v65/common"
	"github.com/oracle/oci-go-sdk/v65/identity"
	"github.com/oracle/oci-go-sdk/v65/objectstorage"

	"github.com/jinchuntan/oci-iam-policy-drift-auditor/internal/config"
)

// Clients bundles the service clients one audit run needs, together with the
// tenancy and region resolved from the profile.
type Clients struct {
	Identity      identity.IdentityClient
	Audit         audit.AuditClient
	ObjectStorage objectstorage.ObjectStorageClient
	TenancyOCID   string
	Region        string
}

// NewClients builds SDK clients from the configured profile. A region from
// the environment overrides the profile's region on every client.
func NewClients(cfg *config.Config) (*Clients, error) {
	provider := common.CustomProfileConfigProvider(cfg.ConfigFile, cfg.ConfigProfile)

	tenancyOCID, err := provider.TenancyOCID()
	if err != nil {
		return nil, fmt.Errorf("failed to read tenancy from %s (profile %s): %v", cfg.ConfigFile, cfg.ConfigProfile, err)
	}

	region := cfg.Region
	if region == "" {
		region, err = provider.Region()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve region: %v", err)
		}
	}

	identityClient, err := identity.NewIdentityClientWithConfigurationProvider(provider)
	if err != nil {
		return nil, fmt.Errorf("failed to create identity client: %v", err)
	}
	auditClient, err := audit.NewAuditClientWithConfigurationProvider(provider)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit client: %v", err)
	}
	objectStorageClient, err := objectstorage.NewObjectStorageClientWithConfigurationProvider(provider)
	if err != nil {
		return nil, fmt.Errorf("failed to create object storage client: %v", err)
	}

	if cfg.Region != "" {
		identityClient.SetRegion(cfg.Region)
		auditClient.SetRegion(cfg.Region)
		objectStorageClient.SetRegion(cfg.Region)
	}

	return &Clients{
		Identity:      identityClient,
		Audit:         auditClient,
		ObjectStorage: objectStorageClient,
		TenancyOCID:   tenancyOCID,
		Region:        region,
	}, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// serviceErrorReason renders an API failure the way the report records it,
// keeping the HTTP status and service code when the SDK provides them.
func serviceErrorReason(operation string, err error) string {
	if serviceErr, ok := common.IsServiceError(err); ok {
		return fmt.Sprintf("%s failed: %d %s %s", operation, serviceErr.GetHTTPStatusCode(), serviceErr.GetCode(), serviceErr.GetMessage())
	}
	return fmt.Sprintf("%s failed: %v", operation, err)
}
