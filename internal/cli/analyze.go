package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"resumind/internal/common"
	"resumind/internal/errors"
	"resumind/internal/observability"
	"resumind/internal/opcache"
	"resumind/internal/pipeline"
	"resumind/internal/raster"
	"resumind/internal/types"

	"github.com/spf13/cobra"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [resume-pdf]",
	Short: "Analyze a resume against a job description",
	Long: `Analyze a resume PDF against a job posting. The resume is uploaded,
rendered as a preview image and sent to the AI service together with the
job context. The structured feedback covers:

- ATS compatibility
- Tone and style
- Content
- Structure
- Skills

The annotated record is stored and printed in the requested format.`,
	Args: cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfigFromContext(cmd.Context())
		if err != nil {
			return err
		}
		if analyzeConfig.OutputFormat == "" {
			analyzeConfig.OutputFormat = cfg.App.DefaultFormat
		}
		return common.ValidateOutputFormat(analyzeConfig.OutputFormat, cfg.App.SupportedFormats)
	},
	RunE: runAnalyze,
}

var analyzeConfig common.CommandConfig

var (
	analyzeCompany        string
	analyzeJobTitle       string
	analyzeJobDescription string
	analyzeJobDescFile    string
)

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeConfig.OutputFile, "output", "o", "", "Output file path (default: stdout)")
	analyzeCmd.Flags().StringVar(&analyzeConfig.OutputFormat, "format", "", "Output format: json, text, or markdown")
	analyzeCmd.Flags().StringVar(&analyzeCompany, "company", "", "Company name the resume targets")
	analyzeCmd.Flags().StringVar(&analyzeJobTitle, "title", "", "Job title the resume targets")
	analyzeCmd.Flags().StringVar(&analyzeJobDescription, "description", "", "Job description text")
	analyzeCmd.Flags().StringVar(&analyzeJobDescFile, "description-file", "", "Path to a file holding the job description")

	_ = analyzeCmd.MarkFlagRequired("company")
	_ = analyzeCmd.MarkFlagRequired("title")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := getConfigFromContext(ctx)
	if err != nil {
		return err
	}
	logger, err := getLoggerFromContext(ctx)
	if err != nil {
		return err
	}

	fileProcessor := common.NewFileProcessor(logger)

	jobDescription := analyzeJobDescription
	if jobDescription == "" && analyzeJobDescFile != "" {
		content, err := fileProcessor.ReadFile(analyzeJobDescFile)
		if err != nil {
			return err
		}
		jobDescription = string(content)
	}

	resume, err := fileProcessor.ReadFileBlob(args[0])
	if err != nil {
		return err
	}
	if cfg.App.MaxFileSize > 0 && resume.Size() > cfg.App.MaxFileSize {
		return errors.NewValidationError(errors.ErrCodeInvalidInput,
			fmt.Sprintf("Resume file exceeds the %d byte limit", cfg.App.MaxFileSize), nil)
	}

	om, stopObservability := setupObservability(cfg, logger)
	defer stopObservability()
	var metrics *observability.Metrics
	if om != nil {
		metrics = om.GetMetrics()
	}

	ops, teardown, err := setupOperations(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to set up capability services: %w", err)
	}
	defer teardown()

	if metrics != nil {
		ops.Cache().SetHooks(opcache.Hooks{
			OnHit:        func(op string) { metrics.TrackCacheHit(ctx, op) },
			OnInvalidate: func(tags []string) { metrics.TrackCacheInvalidation(ctx, tags) },
		})
	}

	var converter pipeline.Converter = raster.NewConverter(raster.NewPNGSurface(), cfg.Raster.DPI, logger)
	if metrics != nil {
		converter = &meteredConverter{inner: converter, metrics: metrics}
	}
	orchestrator := pipeline.NewOrchestrator(ops, converter, func(status string) {
		logger.Info("Pipeline status", "status", status)
	}, logger)

	logger.Info("Starting resume analysis",
		"resume", resume.Name(),
		"company", analyzeCompany,
		"job_title", analyzeJobTitle)

	runStart := time.Now()
	id, err := orchestrator.Run(ctx, pipeline.Input{
		CompanyName:    analyzeCompany,
		JobTitle:       analyzeJobTitle,
		JobDescription: jobDescription,
		File:           resume,
	})
	if metrics != nil {
		metrics.TrackPipelineRun(ctx, runStart, err)
	}
	if err != nil {
		return fmt.Errorf("failed to analyze resume: %w", err)
	}

	value, ok, err := ops.KvGet(ctx, types.RecordKey(id))
	if err != nil {
		return err
	}
	if !ok {
		return errors.NewIOError(errors.ErrCodeRecordNotFound,
			"Stored record disappeared after analysis", nil).
			WithContext("record_id", id)
	}

	var record types.ResumeRecord
	if err := json.Unmarshal([]byte(value), &record); err != nil {
		return errors.NewInternalError(errors.ErrCodeInvalidFormat,
			"Failed to decode stored record", err)
	}

	outputHandler := common.NewOutputHandler(logger)
	if err := outputHandler.HandleOutput(record, analyzeConfig); err != nil {
		return err
	}

	logger.Info("Resume analysis completed successfully", "record_id", id)
	return nil
}

// meteredConverter records rasterization duration and outcome around the
// wrapped converter.
type meteredConverter struct {
	inner   pipeline.Converter
	metrics *observability.Metrics
}

func (m *meteredConverter) Convert(ctx context.Context, f types.File) raster.Result {
	start := time.Now()
	result := m.inner.Convert(ctx, f)
	m.metrics.TrackRaster(ctx, start, result.Error != "")
	return result
}
