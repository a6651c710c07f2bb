package oci

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/oracle/oci-go-sdk/v65/common"
	"github.com/oracle/oci-go-sdk/v65/objectstorage"
	"go.uber.org/zap"

	"github.com/jinchuntan/oci-iam-policy-drift-auditor/pkg/types"
)

// ObjectStorageAPI is the slice of the Object Storage service the uploader
// uses.
type ObjectStorageAPI interface {
	GetNamespace(ctx context.Context, request objectstorage.GetNamespaceRequest) (objectstorage.GetNamespaceResponse, error)
	ListBuckets(ctx context.Context, request objectstorage.ListBucketsRequest) (objectstorage.ListBucketsResponse, error)
	PutObject(ctx context.Context, request objectstorage.PutObjectRequest) (objectstorage.PutObjectResponse, error)
}

// Uploader ships report artifacts to Object Storage.
type Uploader struct {
	api    ObjectStorageAPI
	region string
	log    *zap.SugaredLogger
}

func NewUploader(api ObjectStorageAPI, region string, log *zap.SugaredLogger) *Uploader {
	return &Uploader{api: api, region: region, log: log}
}

// ResolveNamespace returns the configured namespace, or asks the service for
// the tenancy's namespace when none is set.
func (u *Uploader) ResolveNamespace(ctx context.Context, configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	resp, err := u.api.GetNamespace(ctx, objectstorage.GetNamespaceRequest{})
	if err != nil {
		return "", fmt.Errorf("failed to resolve object storage namespace: %v", err)
	}
	return deref(resp.Value), nil
}

// DiscoverBuckets lists every bucket visible in the scoped compartments,
// deduplicated and sorted by name. Compartments whose buckets cannot be
// listed are skipped, discovery is best effort.
func (u *Uploader) DiscoverBuckets(ctx context.Context, namespace string, compartments []types.Compartment) []string {
	seen := make(map[string]bool)
	var buckets []string

	for _, compartment := range compartments {
		var page *string
		for {
			resp, err := u.api.ListBuckets(ctx, objectstorage.ListBucketsRequest{
				NamespaceName: common.String(namespace),
				CompartmentId: common.String(compartment.ID),
				Page:          page,
			})
			if err != nil {
				u.log.Debugf("listing buckets failed for %s: %v", compartment.Name, err)
				break
			}
			for _, bucket := range resp.Items {
				name := deref(bucket.Name)
				if name == "" || seen[name] {
					continue
				}
				seen[name] = true
				buckets = append(buckets, name)
			}
			if resp.OpcNextPage == nil {
				break
			}
			page = resp.OpcNextPage
		}
	}

	sort.Strings(buckets)
	return buckets
}

// UploadResult records where one artifact landed.
type UploadResult struct {
	Bucket string
	Object string
	URI    string
}

// UploadFile puts one local file under prefix/<basename> in the bucket.
func (u *Uploader) UploadFile(ctx context.Context, namespace, bucket, prefix, path, contentType string) (UploadResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return UploadResult{}, fmt.Errorf("failed to open %s: %v", path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return UploadResult{}, fmt.Errorf("failed to stat %s: %v", path, err)
	}

	objectName := filepath.Base(path)
	if prefix != "" {
		objectName = prefix + "/" + objectName
	}

	_, err = u.api.PutObject(ctx, objectstorage.PutObjectRequest{
		NamespaceName: common.String(namespace),
		BucketName:    common.String(bucket),
		ObjectName:    common.String(objectName),
		ContentLength: common.Int64(info.Size()),
		ContentType:   common.String(contentType),
		PutObjectBody: file,
	})
	if err != nil {
		return UploadResult{}, fmt.Errorf("failed to upload %s to bucket %s: %v", objectName, bucket, err)
	}

	return UploadResult{
		Bucket: bucket,
		Object: objectName,
		URI:    fmt.Sprintf("https://objectstorage.%s.oraclecloud.com/n/%s/b/%s/o/%s", u.region, namespace, bucket, objectName),
	}, nil
}
