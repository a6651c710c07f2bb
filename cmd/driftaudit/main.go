package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jinchuntan/oci-iam-policy-drift-auditor/internal/config"
	"github.com/jinchuntan/oci-iam-policy-drift-auditor/internal/logging"
	"github.com/jinchuntan/oci-iam-policy-drift-auditor/pkg/analyzer"
	"github.com/jinchuntan/oci-iam-policy-drift-auditor/pkg/oci"
	"github.com/jinchuntan/oci-iam-policy-drift-auditor/pkg/printer"
	"github.com/jinchuntan/oci-iam-policy-drift-auditor/pkg/report"
	"github.com/jinchuntan/oci-iam-policy-drift-auditor/pkg/types"
)

// errUploadFailed marks an Object Storage failure so main can exit with a
// distinct code: collection failures are operator errors, upload failures
// usually mean a missing bucket or grant and deserve their own signal.
var errUploadFailed = errors.New("object storage upload failed")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if errors.Is(err, errUploadFailed) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

type runOptions struct {
	skipUpload    bool
	outputDir     string
	lookbackHours int
	debug         bool
}

func newRootCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "driftaudit",
		Short: "Audit OCI IAM policies for risky grants and recent drift",
		Long: `driftaudit scans every accessible compartment for IAM policies, grades each
policy statement by how much power it grants and to whom, resolves how many
principals each grant reaches, and correlates findings with recent identity
audit events. The run produces a JSON and a Markdown report and can ship both
to an Object Storage bucket.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}
	cmd.Flags().BoolVar(&opts.skipUpload, "skip-upload", false, "Write report artifacts locally and skip the Object Storage upload")
	cmd.Flags().StringVar(&opts.outputDir, "output-dir", "", "Directory for report artifacts (overrides OCI_OUTPUT_DIR)")
	cmd.Flags().IntVar(&opts.lookbackHours, "lookback-hours", 0, "Audit event lookback window in hours (overrides OCI_AUDIT_LOOKBACK_HOURS)")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	return cmd
}

func run(ctx context.Context, opts *runOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %v", err)
	}
	if opts.outputDir != "" {
		cfg.OutputDir = opts.outputDir
	}
	if opts.lookbackHours > 0 {
		cfg.AuditLookbackHours = opts.lookbackHours
	}

	logging.Init(opts.debug)
	defer logging.Sync()
	log := logging.Logger

	clients, err := oci.NewClients(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize OCI clients: %v", err)
	}
	log.Infof("starting IAM policy drift audit for tenancy %s in region %s", clients.TenancyOCID, clients.Region)

	snapshot, err := oci.NewIdentityCollector(clients.Identity, log).CollectSnapshot(ctx, oci.SnapshotParams{
		TenancyOCID:            clients.TenancyOCID,
		RootCompartmentOCID:    cfg.RootCompartmentOCID,
		IncludeSubcompartments: cfg.IncludeSubcompartments,
	})
	if err != nil {
		return err
	}

	generatedAt := time.Now().UTC()
	windowStart := generatedAt.Add(-time.Duration(cfg.AuditLookbackHours) * time.Hour)
	events := oci.NewAuditCollector(clients.Audit, log).CollectEvents(ctx, snapshot.Compartments, windowStart, generatedAt)
	log.Infof("collected %d audit events in the lookback window", len(events))

	result, err := analyzer.Analyze(snapshot, events, analyzer.Params{
		GeneratedAt:   generatedAt,
		Region:        clients.Region,
		TenancyOCID:   clients.TenancyOCID,
		LookbackHours: cfg.AuditLookbackHours,
	})
	if err != nil {
		return err
	}

	jsonPath, err := report.WriteJSON(result, cfg.OutputDir)
	if err != nil {
		return err
	}
	markdownPath, err := report.WriteMarkdown(result, cfg.OutputDir)
	if err != nil {
		return err
	}
	log.Infof("report artifacts written: %s, %s", jsonPath, markdownPath)

	printer.PrintSummary(result)

	if opts.skipUpload {
		log.Info("skipping object storage upload (--skip-upload)")
		return nil
	}
	return uploadArtifacts(ctx, cfg, clients, snapshot.Compartments, log, jsonPath, markdownPath)
}

// uploadArtifacts ships both artifacts to the first bucket that accepts them.
// The configured bucket is tried first, then any discovered bucket.
func uploadArtifacts(ctx context.Context, cfg *config.Config, clients *oci.Clients, compartments []types.Compartment, log *zap.SugaredLogger, paths ...string) error {
	uploader := oci.NewUploader(clients.ObjectStorage, clients.Region, log)

	namespace, err := uploader.ResolveNamespace(ctx, cfg.ObjectStorageNamespace)
	if err != nil {
		return uploadFailure(cfg, log, err)
	}

	var discovered []string
	if cfg.AutoDiscoverBucket {
		discovered = uploader.DiscoverBuckets(ctx, namespace, compartments)
	}
	candidates := candidateBuckets(cfg.ObjectStorageBucket, discovered)
	if len(candidates) == 0 {
		return uploadFailure(cfg, log, errors.New("no candidate buckets, set OCI_OBJECT_STORAGE_BUCKET or enable discovery"))
	}

	var lastErr error
	for _, bucket := range candidates {
		results, err := uploadAll(ctx, uploader, namespace, bucket, cfg.ObjectStoragePrefix, paths)
		if err != nil {
			lastErr = err
			log.Warnf("upload to bucket %s failed: %v", bucket, err)
			continue
		}
		for _, result := range results {
			log.Infof("uploaded %s", result.URI)
		}
		return nil
	}
	return uploadFailure(cfg, log, lastErr)
}

func uploadAll(ctx context.Context, uploader *oci.Uploader, namespace, bucket, prefix string, paths []string) ([]oci.UploadResult, error) {
	results := make([]oci.UploadResult, 0, len(paths))
	for _, path := range paths {
		result, err := uploader.UploadFile(ctx, namespace, bucket, prefix, path, contentTypeFor(path))
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

func contentTypeFor(path string) string {
	if strings.HasSuffix(path, ".json") {
		return "application/json"
	}
	return "text/markdown"
}

// candidateBuckets orders upload targets: the configured bucket first, then
// every discovered bucket not already listed.
func candidateBuckets(configured string, discovered []string) []string {
	var candidates []string
	if configured != "" {
		candidates = append(candidates, configured)
	}
	for _, bucket := range discovered {
		if bucket != configured {
			candidates = append(candidates, bucket)
		}
	}
	return candidates
}

// uploadFailure converts an upload error into the configured outcome: a
// distinct failure when FailOnUploadError is set, a warning otherwise. The
// local artifacts exist either way.
func uploadFailure(cfg *config.Config, log *zap.SugaredLogger, err error) error {
	if cfg.FailOnUploadError {
		return fmt.Errorf("%w: %v", errUploadFailed, err)
	}
	log.Warnf("object storage upload failed, keeping local artifacts only: %v", err)
	return nil
}
