// Package report renders one audit run into its two artifacts: a
// machine-readable JSON document and a human-readable Markdown summary. Both
// artifacts share the same timestamped base name so they can be traced back
// to the same run after upload.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jinchuntan/oci-iam-policy-drift-auditor/pkg/types"
)

// artifactName returns <report name>_<compact UTC timestamp>.<ext>.
func artifactName(generatedAt time.Time, ext string) string {
	return fmt.Sprintf("%s_%s.%s", types.ReportName, generatedAt.UTC().Format("20060102T150405Z"), ext)
}

// WriteJSON writes the full report as indented JSON under dir and returns the
// artifact path.
func WriteJSON(report *types.Report, dir string) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode report: %v", err)
	}
	path := filepath.Join(dir, artifactName(report.Metadata.GeneratedAt, "json"))
	if err := writeFile(path, append(data, '\n')); err != nil {
		return "", err
	}
	return path, nil
}

// WriteMarkdown writes the Markdown summary under dir and returns the
// artifact path.
func WriteMarkdown(report *types.Report, dir string) (string, error) {
	path := filepath.Join(dir, artifactName(report.Metadata.GeneratedAt, "md"))
	if err := writeFile(path, []byte(renderMarkdown(report))); err != nil {
		return "", err
	}
	return path, nil
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %v", path, err)
	}
	return nil
}
