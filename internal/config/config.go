// Package config loads runtime settings from the environment, with an
// optional .env file for local runs. Environment variables always win over
// file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config stores all settings for one audit run.
type Config struct {
	ConfigFile             string
	ConfigProfile          string
	Region                 string
	RootCompartmentOCID    string
	IncludeSubcompartments bool
	AuditLookbackHours     int
	OutputDir              string
	ObjectStorageNamespace string
	ObjectStorageBucket    string
	ObjectStoragePrefix    string
	AutoDiscoverBucket     bool
	FailOnUploadError      bool
}

// Load reads the configuration. Every setting has a default, so a run against
// a tenancy with a standard ~/.oci/config needs no environment at all.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("oci_config_file", "")
	v.SetDefault("oci_config_profile", "DEFAULT")
	v.SetDefault("oci_region", "")
	v.SetDefault("oci_root_compartment_ocid", "")
	v.SetDefault("oci_include_subcompartments", true)
	v.SetDefault("oci_audit_lookback_hours", 24)
	v.SetDefault("oci_output_dir", "output")
	v.SetDefault("oci_object_storage_namespace", "")
	v.SetDefault("oci_object_storage_bucket", "")
	v.SetDefault("oci_object_storage_prefix", "iam-policy-drift-audit")
	v.SetDefault("oci_auto_discover_bucket", true)
	v.SetDefault("oci_fail_on_upload_error", true)

	if err := v.ReadInConfig(); err != nil {
		// A missing .env file is normal; anything else is a real problem.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read .env: %v", err)
		}
	}

	configFile, err := resolveConfigFile(strings.TrimSpace(v.GetString("oci_config_file")))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ConfigFile:             configFile,
		ConfigProfile:          valueOr(v.GetString("oci_config_profile"), "DEFAULT"),
		Region:                 strings.TrimSpace(v.GetString("oci_region")),
		RootCompartmentOCID:    strings.TrimSpace(v.GetString("oci_root_compartment_ocid")),
		IncludeSubcompartments: v.GetBool("oci_include_subcompartments"),
		AuditLookbackHours:     v.GetInt("oci_audit_lookback_hours"),
		OutputDir:              valueOr(v.GetString("oci_output_dir"), "output"),
		ObjectStorageNamespace: strings.TrimSpace(v.GetString("oci_object_storage_namespace")),
		ObjectStorageBucket:    strings.TrimSpace(v.GetString("oci_object_storage_bucket")),
		ObjectStoragePrefix:    strings.Trim(strings.TrimSpace(v.GetString("oci_object_storage_prefix")), "/"),
		AutoDiscoverBucket:     v.GetBool("oci_auto_discover_bucket"),
		FailOnUploadError:      v.GetBool("oci_fail_on_upload_error"),
	}

	if cfg.AuditLookbackHours <= 0 {
		return nil, fmt.Errorf("OCI_AUDIT_LOOKBACK_HOURS must be a positive number of hours, got %q", v.GetString("oci_audit_lookback_hours"))
	}

	return cfg, nil
}

// resolveConfigFile expands the configured path, or falls back to the SDK's
// conventional ~/.oci/config location.
func resolveConfigFile(path string) (string, error) {
	if path == "" {
		home, err := homedir.Dir()
		if err != nil {
			return "", fmt.Errorf("failed to locate home directory: %v", err)
		}
		return filepath.Join(home, ".oci", "config"), nil
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", fmt.Errorf("failed to expand config path %s: %v", path, err)
	}
	return expanded, nil
}

func valueOr(value, fallback string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	return value
}
