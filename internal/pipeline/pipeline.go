// Package pipeline drives the end-to-end resume analysis workflow: upload,
// rasterize, persist, analyze, persist again. Progress is exposed as
// human-readable status strings.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"

	"resumind/internal/ai"
	apperrors "resumind/internal/errors"
	"resumind/internal/opcache"
	"resumind/internal/raster"
	"resumind/internal/types"
)

// Progress status strings observed by callers.
const (
	StatusUploading      = "Uploading the file..."
	StatusConverting     = "Converting to image..."
	StatusUploadingImage = "Uploading the image..."
	StatusPreparing      = "Preparing data..."
	StatusAnalyzing      = "Analyzing..."
	StatusComplete       = "Analysis complete"

	statusUploadFailed   = "Error: Failed to upload file"
	statusConvertFailed  = "Error: Failed to convert PDF to image"
	statusImageFailed    = "Error: Failed to upload image"
	statusAnalyzeFailed  = "Error: Failed to analyze resume"
	statusGenericFailure = "Error: Analysis pipeline failed"
)

// Converter rasterizes a PDF into a preview image.
type Converter interface {
	Convert(ctx context.Context, f types.File) raster.Result
}

// Input is the user-supplied pipeline input. All text fields are required
// after trimming; File must be set.
type Input struct {
	CompanyName    string
	JobTitle       string
	JobDescription string
	File           types.File
}

// abortErr marks an explicit per-step abort whose status has already been
// published, as opposed to an unexpected failure handled at the pipeline
// boundary.
type abortErr struct {
	err error
}

func (a *abortErr) Error() string { return a.err.Error() }
func (a *abortErr) Unwrap() error { return a.err }

// Orchestrator runs one analysis at a time. A second Run while one is in
// flight fails immediately with an in-progress error.
type Orchestrator struct {
	ops       *opcache.Operations
	converter Converter
	logger    *apperrors.Logger

	runMu sync.Mutex

	statusMu sync.Mutex
	status   string
	statusFn func(string)
}

// NewOrchestrator creates a pipeline orchestrator. statusFn, when set,
// observes every status transition.
func NewOrchestrator(ops *opcache.Operations, converter Converter, statusFn func(string), logger *apperrors.Logger) *Orchestrator {
	return &Orchestrator{
		ops:       ops,
		converter: converter,
		statusFn:  statusFn,
		logger:    logger,
	}
}

// Status returns the most recently published status string.
func (o *Orchestrator) Status() string {
	o.statusMu.Lock()
	defer o.statusMu.Unlock()
	return o.status
}

func (o *Orchestrator) setStatus(s string) {
	o.statusMu.Lock()
	o.status = s
	fn := o.statusFn
	o.statusMu.Unlock()
	if fn != nil {
		fn(s)
	}
}

// Validate checks input fields in fixed order, short-circuiting on the
// first missing one: company name, job title, job description, file.
func Validate(in Input) error {
	if strings.TrimSpace(in.CompanyName) == "" {
		return apperrors.NewValidationError(apperrors.ErrCodeInvalidInput,
			"Company name is required", nil)
	}
	if strings.TrimSpace(in.JobTitle) == "" {
		return apperrors.NewValidationError(apperrors.ErrCodeInvalidInput,
			"Job title is required", nil)
	}
	if strings.TrimSpace(in.JobDescription) == "" {
		return apperrors.NewValidationError(apperrors.ErrCodeInvalidInput,
			"Job description is required", nil)
	}
	if in.File == nil {
		return apperrors.NewValidationError(apperrors.ErrCodeInvalidInput,
			"Resume file is required", nil)
	}
	return nil
}

// Run executes the analysis workflow and returns the persisted record id.
// Every exit path, success, explicit abort or unexpected failure, releases
// the in-progress guard and leaves a final status behind.
func (o *Orchestrator) Run(ctx context.Context, in Input) (string, error) {
	if err := Validate(in); err != nil {
		return "", err
	}

	if !o.runMu.TryLock() {
		return "", apperrors.NewPipelineError(apperrors.ErrCodeAnalysisInProgress,
			"An analysis is already in progress", nil)
	}
	defer o.runMu.Unlock()

	id, err := o.run(ctx, in)
	if err != nil {
		var abort *abortErr
		if errors.As(err, &abort) {
			// Status already published by the aborting step.
			return "", abort.err
		}
		msg := err.Error()
		if msg == "" {
			o.setStatus(statusGenericFailure)
		} else {
			o.setStatus("Error: " + msg)
		}
		if o.logger != nil {
			o.logger.LogError(err, "Analysis pipeline failed")
		}
		return "", err
	}
	return id, nil
}

func (o *Orchestrator) run(ctx context.Context, in Input) (string, error) {
	o.setStatus(StatusUploading)
	resumeFd, err := o.ops.FsUpload(ctx, []types.File{in.File})
	if err != nil || resumeFd == nil {
		return "", o.abort(statusUploadFailed, apperrors.ErrCodeUploadFailed,
			"Failed to upload resume file", err)
	}

	o.setStatus(StatusConverting)
	conv := o.converter.Convert(ctx, in.File)
	if conv.File == nil {
		return "", o.abort(statusConvertFailed, apperrors.ErrCodeConversionFailed,
			conv.Error, nil)
	}

	o.setStatus(StatusUploadingImage)
	imageFd, err := o.ops.FsUpload(ctx, []types.File{conv.File})
	if err != nil || imageFd == nil {
		return "", o.abort(statusImageFailed, apperrors.ErrCodeUploadFailed,
			"Failed to upload preview image", err)
	}

	o.setStatus(StatusPreparing)
	id := uuid.NewString()
	record := types.ResumeRecord{
		ID:             id,
		ResumePath:     resumeFd.Path,
		ImagePath:      imageFd.Path,
		CompanyName:    in.CompanyName,
		JobTitle:       in.JobTitle,
		JobDescription: in.JobDescription,
	}
	if err := o.persist(ctx, &record); err != nil {
		return "", err
	}

	o.setStatus(StatusAnalyzing)
	resp, err := o.ops.AiFeedback(ctx, resumeFd.Path,
		ai.FeedbackInstruction(in.JobTitle, in.JobDescription))
	if err != nil || resp == nil {
		// The record persisted above stays behind with empty feedback.
		return "", o.abort(statusAnalyzeFailed, apperrors.ErrCodeAIServiceFailed,
			"Failed to analyze resume", err)
	}

	text := resp.Message.Content.Text()
	var feedback types.Feedback
	if err := json.Unmarshal([]byte(text), &feedback); err != nil {
		return "", apperrors.NewAIError(apperrors.ErrCodeAIResponseParse,
			"Failed to parse AI feedback", err)
	}
	if err := feedback.Validate(); err != nil {
		return "", apperrors.NewAIError(apperrors.ErrCodeAIResponseParse,
			"AI feedback failed validation", err)
	}

	record.Feedback = &feedback
	if err := o.persist(ctx, &record); err != nil {
		return "", err
	}

	o.setStatus(StatusComplete)
	if o.logger != nil {
		o.logger.Info("Analysis complete",
			"record_id", id,
			"overall_score", feedback.OverallScore)
	}
	return id, nil
}

// persist serializes the record into the key-value store. Failures here
// are unexpected and propagate to the pipeline boundary handler.
func (o *Orchestrator) persist(ctx context.Context, record *types.ResumeRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return apperrors.NewInternalError(apperrors.ErrCodeInvalidFormat,
			"Failed to serialize resume record", err)
	}
	ok, err := o.ops.KvSet(ctx, types.RecordKey(record.ID), string(data))
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.NewPipelineError(apperrors.ErrCodeUploadFailed,
			"Key-value store rejected the resume record", nil)
	}
	return nil
}

// abort publishes the step's failure status and wraps the cause as an
// explicit abort.
func (o *Orchestrator) abort(status, code, message string, cause error) error {
	o.setStatus(status)
	if o.logger != nil {
		o.logger.Warn("Pipeline step aborted", "status", status)
	}
	return &abortErr{err: apperrors.NewPipelineError(code, message, cause)}
}
