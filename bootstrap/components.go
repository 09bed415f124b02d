package bootstrap

import (
	"fmt"

	"go.uber.org/zap"

	"reqtrace/backend"
	"reqtrace/config"
	"reqtrace/core"
	"reqtrace/extract"
	"reqtrace/relation"
	"reqtrace/service"
	"reqtrace/tables"
)

// NewBackend returns the snapshot backend when one is configured, otherwise
// the HTTP client.
func NewBackend(cfg *config.Config, sugar *zap.SugaredLogger) (core.Backend, error) {
	if cfg.Offline() {
		snap, err := backend.LoadSnapshot(cfg.Backend.Snapshot, sugar)
		if err != nil {
			return nil, fmt.Errorf("failed to load snapshot backend: %w", err)
		}
		return snap.WithStepsField(cfg.Fields.Steps), nil
	}

	client, err := backend.NewClient(backend.Options{
		BaseURL:           cfg.Backend.BaseURL,
		Organization:      cfg.Backend.Organization,
		Project:           cfg.Backend.Project,
		Token:             cfg.Backend.Token,
		APIVersion:        cfg.Backend.APIVersion,
		Timeout:           cfg.Backend.Timeout,
		RequestsPerSecond: cfg.Backend.RequestsPerSecond,
		Burst:             cfg.Backend.Burst,
		MaxRetries:        cfg.Backend.MaxRetries,
		BreakerFailures:   cfg.Backend.BreakerFailures,
		BreakerCooldown:   cfg.Backend.BreakerCooldown,
		CacheSize:         cfg.Cache.Size,
		CacheTTL:          cfg.Cache.TTL,
		StepsField:        cfg.Fields.Steps,
	}, sugar)
	if err != nil {
		return nil, fmt.Errorf("failed to create backend client: %w", err)
	}
	sugar.Infow("Backend client ready",
		"base_url", cfg.Backend.BaseURL,
		"api_version", cfg.Backend.APIVersion,
		"requests_per_second", cfg.Backend.RequestsPerSecond)
	return client, nil
}

// NewTableLoader creates the external table loader.
func NewTableLoader(cfg *config.Config, sugar *zap.SugaredLogger) *tables.Loader {
	return tables.NewLoader(tables.Options{
		LocalRoot:          cfg.Tables.LocalRoot,
		AllowedBuckets:     cfg.Tables.AllowedBuckets,
		AllowedExtensions:  cfg.Tables.AllowedExtensions,
		MaxBytes:           cfg.Tables.MaxBytes,
		S3Region:           cfg.Tables.S3Region,
		GCSCredentialsFile: cfg.Tables.GCSCredentialsFile,
	}, sugar)
}

// ReportOptions maps the configuration onto report service options.
func ReportOptions(cfg *config.Config) service.Options {
	return service.Options{
		MaxConcurrency:    cfg.Fetch.MaxConcurrency,
		FetchTimeout:      cfg.Fetch.Timeout,
		BatchSize:         cfg.Fetch.BatchSize,
		RequirementsQuery: cfg.Report.RequirementsQuery,
		TestedBy:          cfg.Relations.TestedBy,
		Relations: relation.Options{
			Requirement:    cfg.Relations.Requirement,
			Defect:         cfg.Relations.Defect,
			ExcludedStates: cfg.Relations.ExcludedStates,
			BatchSize:      cfg.Fetch.BatchSize,
			MaxConcurrency: cfg.Fetch.MaxConcurrency,
		},
		Fields: cfg.Fields,
		Extract: extract.Options{
			ExpandSuffixes: cfg.Extract.ExpandSuffixes,
			Timeout:        cfg.Extract.RegexTimeout,
		},
		CoverageSheet:   cfg.Report.CoverageSheet,
		ValidationSheet: cfg.Report.ValidationSheet,
	}
}

// NewReportService wires the report service from its collaborators.
func NewReportService(cfg *config.Config, b core.Backend, loader service.TableLoader, sugar *zap.SugaredLogger) *service.ReportService {
	return service.NewReportService(b, loader, ReportOptions(cfg), sugar)
}
