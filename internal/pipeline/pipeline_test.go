package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"resumind/internal/capability"
	apperrors "resumind/internal/errors"
	"resumind/internal/opcache"
	"resumind/internal/raster"
	"resumind/internal/types"
)

type stubAuth struct{}

func (stubAuth) IsSignedIn(ctx context.Context) (bool, error)              { return true, nil }
func (stubAuth) GetUser(ctx context.Context) (*types.UserIdentity, error) { return nil, nil }
func (stubAuth) SignIn(ctx context.Context) error                         { return nil }
func (stubAuth) SignOut(ctx context.Context) error                        { return nil }

type stubFS struct {
	mu    sync.Mutex
	blobs map[string]*types.FileBlob

	// failName makes Upload fail when the first file carries this name.
	failName string
}

func (f *stubFS) store(ctx context.Context, file types.File) (*types.FileDescriptor, error) {
	data, err := file.Bytes(ctx)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	path := "stored/" + file.Name()
	f.blobs[path] = &types.FileBlob{FileName: file.Name(), MIME: "application/octet-stream", Data: data}
	return &types.FileDescriptor{Path: path, Name: file.Name(), Size: int64(len(data))}, nil
}

func (f *stubFS) Write(ctx context.Context, file types.File) (*types.FileDescriptor, error) {
	return f.store(ctx, file)
}

func (f *stubFS) Upload(ctx context.Context, files []types.File) (*types.FileDescriptor, error) {
	if len(files) > 0 && files[0].Name() == f.failName {
		return nil, errors.New("storage backend rejected the upload")
	}
	var first *types.FileDescriptor
	for _, file := range files {
		fd, err := f.store(ctx, file)
		if err != nil {
			return nil, err
		}
		if first == nil {
			first = fd
		}
	}
	return first, nil
}

func (f *stubFS) Read(ctx context.Context, path string) (*types.FileBlob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	blob, ok := f.blobs[path]
	if !ok {
		return nil, errors.New("file not found: " + path)
	}
	return blob, nil
}

func (f *stubFS) Delete(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.blobs, path)
	return nil
}

func (f *stubFS) ReadDir(ctx context.Context, dir string) ([]types.FileDescriptor, error) {
	return nil, nil
}

type stubAI struct {
	reply string
	err   error
	// block, when set, delays the reply until the channel is closed.
	block chan struct{}
}

func (a *stubAI) Chat(ctx context.Context, msg types.AIMessage, opts *types.ChatOptions) (*types.AIResponse, error) {
	if a.block != nil {
		select {
		case <-a.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if a.err != nil {
		return nil, a.err
	}
	return &types.AIResponse{
		Message: types.ResponseMessage{Role: "assistant", Content: types.TextContent(a.reply)},
	}, nil
}

func (a *stubAI) Img2Txt(ctx context.Context, image types.File) (string, error) {
	return "", nil
}

type stubKV struct {
	mu     sync.Mutex
	values map[string]string
}

func (k *stubKV) Get(ctx context.Context, key string) (string, bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	v, ok := k.values[key]
	return v, ok, nil
}

func (k *stubKV) Set(ctx context.Context, key, value string) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.values[key] = value
	return true, nil
}

func (k *stubKV) Delete(ctx context.Context, key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.values, key)
	return nil
}

func (k *stubKV) List(ctx context.Context, pattern string, returnValues bool) ([]types.KVEntry, error) {
	return nil, nil
}

func (k *stubKV) Flush(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.values = make(map[string]string)
	return nil
}

type stubClient struct {
	fs *stubFS
	ai *stubAI
	kv *stubKV
}

func newStubClient() *stubClient {
	return &stubClient{
		fs: &stubFS{blobs: make(map[string]*types.FileBlob)},
		ai: &stubAI{},
		kv: &stubKV{values: make(map[string]string)},
	}
}

func (c *stubClient) Auth() capability.AuthService { return stubAuth{} }
func (c *stubClient) FS() capability.FileSystem    { return c.fs }
func (c *stubClient) AI() capability.AIService     { return c.ai }
func (c *stubClient) KV() capability.KeyValueStore { return c.kv }

// stubConverter returns a fixed result without touching a render engine.
type stubConverter struct {
	result raster.Result
}

func (c *stubConverter) Convert(ctx context.Context, f types.File) raster.Result {
	return c.result
}

func goodConverter() *stubConverter {
	return &stubConverter{result: raster.Result{
		ImageURL: "data:image/png;base64,aW1n",
		File:     &types.FileBlob{FileName: "resume.png", MIME: "image/png", Data: []byte("img")},
	}}
}

type statusRecorder struct {
	mu       sync.Mutex
	statuses []string
}

func (r *statusRecorder) record(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}

func (r *statusRecorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.statuses...)
}

func newTestOrchestrator(client capability.Client, converter Converter) (*Orchestrator, *statusRecorder) {
	gateway := capability.NewGateway(time.Second, 10*time.Millisecond, nil)
	gateway.Register(client)
	ops := opcache.NewOperations(gateway, opcache.NewCache(nil), "gemini-2.0-flash", nil)
	recorder := &statusRecorder{}
	return NewOrchestrator(ops, converter, recorder.record, nil), recorder
}

func validFeedbackJSON(t *testing.T) string {
	t.Helper()
	feedback := types.Feedback{
		OverallScore: 78,
		ATS:          types.FeedbackCategory{Score: 80, Tips: []types.FeedbackTip{{Type: types.TipGood, Tip: "Parseable layout"}}},
		ToneAndStyle: types.FeedbackCategory{Score: 75},
		Content:      types.FeedbackCategory{Score: 70},
		Structure:    types.FeedbackCategory{Score: 85},
		Skills:       types.FeedbackCategory{Score: 80},
	}
	data, err := json.Marshal(feedback)
	if err != nil {
		t.Fatalf("marshal feedback: %v", err)
	}
	return string(data)
}

func validInput() Input {
	return Input{
		CompanyName:    "Acme",
		JobTitle:       "Backend Engineer",
		JobDescription: "Build and run Go services.",
		File:           &types.FileBlob{FileName: "resume.pdf", MIME: "application/pdf", Data: []byte("%PDF-1.4")},
	}
}

func TestValidateFieldOrder(t *testing.T) {
	file := &types.FileBlob{FileName: "resume.pdf"}
	tests := []struct {
		name    string
		input   Input
		wantMsg string
	}{
		{
			name:    "missing company checked first",
			input:   Input{},
			wantMsg: "Company name is required",
		},
		{
			name:    "whitespace company rejected",
			input:   Input{CompanyName: "   ", JobTitle: "x", JobDescription: "y", File: file},
			wantMsg: "Company name is required",
		},
		{
			name:    "missing title checked second",
			input:   Input{CompanyName: "Acme"},
			wantMsg: "Job title is required",
		},
		{
			name:    "missing description checked third",
			input:   Input{CompanyName: "Acme", JobTitle: "Engineer"},
			wantMsg: "Job description is required",
		},
		{
			name:    "missing file checked last",
			input:   Input{CompanyName: "Acme", JobTitle: "Engineer", JobDescription: "desc"},
			wantMsg: "Resume file is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.input)
			if err == nil {
				t.Fatal("expected a validation error")
			}
			var appErr *apperrors.AppError
			if !errors.As(err, &appErr) {
				t.Fatalf("expected AppError, got %T", err)
			}
			if appErr.Message != tt.wantMsg {
				t.Errorf("expected %q, got %q", tt.wantMsg, appErr.Message)
			}
		})
	}

	if err := Validate(validInput()); err != nil {
		t.Errorf("expected complete input to validate, got %v", err)
	}
}

func TestRunHappyPath(t *testing.T) {
	client := newStubClient()
	client.ai.reply = validFeedbackJSON(t)
	orch, recorder := newTestOrchestrator(client, goodConverter())

	id, err := orch.Run(context.Background(), validInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == "" {
		t.Fatal("expected a record id")
	}

	want := []string{
		StatusUploading,
		StatusConverting,
		StatusUploadingImage,
		StatusPreparing,
		StatusAnalyzing,
		StatusComplete,
	}
	got := recorder.all()
	if len(got) != len(want) {
		t.Fatalf("expected %d status transitions, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("status[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	stored, ok := client.kv.values[types.RecordKey(id)]
	if !ok {
		t.Fatal("expected the record to be persisted")
	}
	var record types.ResumeRecord
	if err := json.Unmarshal([]byte(stored), &record); err != nil {
		t.Fatalf("unmarshal stored record: %v", err)
	}
	if record.ID != id {
		t.Errorf("stored id %q, want %q", record.ID, id)
	}
	if record.ResumePath != "stored/resume.pdf" {
		t.Errorf("unexpected resume path %q", record.ResumePath)
	}
	if record.ImagePath != "stored/resume.png" {
		t.Errorf("unexpected image path %q", record.ImagePath)
	}
	if record.Feedback == nil || record.Feedback.OverallScore != 78 {
		t.Errorf("expected feedback with score 78, got %+v", record.Feedback)
	}
}

func TestRunUploadFailureAborts(t *testing.T) {
	client := newStubClient()
	client.fs.failName = "resume.pdf"
	orch, recorder := newTestOrchestrator(client, goodConverter())

	_, err := orch.Run(context.Background(), validInput())
	if err == nil {
		t.Fatal("expected an error")
	}
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) || appErr.Code != apperrors.ErrCodeUploadFailed {
		t.Fatalf("expected upload failure, got %v", err)
	}

	got := recorder.all()
	if len(got) == 0 || got[len(got)-1] != statusUploadFailed {
		t.Errorf("expected final status %q, got %v", statusUploadFailed, got)
	}
	if len(client.kv.values) != 0 {
		t.Error("no record must be persisted when the upload fails")
	}
}

func TestRunConvertFailureAborts(t *testing.T) {
	client := newStubClient()
	converter := &stubConverter{result: raster.Result{Error: "Failed to convert PDF: bad xref"}}
	orch, recorder := newTestOrchestrator(client, converter)

	_, err := orch.Run(context.Background(), validInput())
	if err == nil {
		t.Fatal("expected an error")
	}
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) || appErr.Code != apperrors.ErrCodeConversionFailed {
		t.Fatalf("expected conversion failure, got %v", err)
	}
	if appErr.Message != "Failed to convert PDF: bad xref" {
		t.Errorf("expected the converter's message to surface, got %q", appErr.Message)
	}

	got := recorder.all()
	if len(got) == 0 || got[len(got)-1] != statusConvertFailed {
		t.Errorf("expected final status %q, got %v", statusConvertFailed, got)
	}
}

func TestRunImageUploadFailureAborts(t *testing.T) {
	client := newStubClient()
	client.fs.failName = "resume.png"
	orch, recorder := newTestOrchestrator(client, goodConverter())

	_, err := orch.Run(context.Background(), validInput())
	if err == nil {
		t.Fatal("expected an error")
	}

	got := recorder.all()
	if len(got) == 0 || got[len(got)-1] != statusImageFailed {
		t.Errorf("expected final status %q, got %v", statusImageFailed, got)
	}
}

func TestRunAnalysisFailureKeepsDanglingRecord(t *testing.T) {
	client := newStubClient()
	client.ai.err = errors.New("model overloaded")
	orch, recorder := newTestOrchestrator(client, goodConverter())

	_, err := orch.Run(context.Background(), validInput())
	if err == nil {
		t.Fatal("expected an error")
	}
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) || appErr.Code != apperrors.ErrCodeAIServiceFailed {
		t.Fatalf("expected analysis failure, got %v", err)
	}

	got := recorder.all()
	if len(got) == 0 || got[len(got)-1] != statusAnalyzeFailed {
		t.Errorf("expected final status %q, got %v", statusAnalyzeFailed, got)
	}

	// The record from the preparing step survives, feedback still empty.
	if len(client.kv.values) != 1 {
		t.Fatalf("expected 1 dangling record, got %d", len(client.kv.values))
	}
	for _, stored := range client.kv.values {
		var record types.ResumeRecord
		if err := json.Unmarshal([]byte(stored), &record); err != nil {
			t.Fatalf("unmarshal stored record: %v", err)
		}
		if record.Feedback != nil {
			t.Error("expected the dangling record to have no feedback")
		}
	}
}

func TestRunUnparsableFeedbackFailsOutsideAbortPath(t *testing.T) {
	client := newStubClient()
	client.ai.reply = "I am sorry, I cannot help with that."
	orch, recorder := newTestOrchestrator(client, goodConverter())

	_, err := orch.Run(context.Background(), validInput())
	if err == nil {
		t.Fatal("expected an error")
	}
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) || appErr.Code != apperrors.ErrCodeAIResponseParse {
		t.Fatalf("expected parse failure, got %v", err)
	}

	got := recorder.all()
	if len(got) == 0 || !strings.HasPrefix(got[len(got)-1], "Error: ") {
		t.Errorf("expected a generic error status, got %v", got)
	}
}

func TestRunOutOfRangeFeedbackRejected(t *testing.T) {
	client := newStubClient()
	client.ai.reply = `{"overallScore":120,"ATS":{"score":80},"toneAndStyle":{"score":75},"content":{"score":70},"structure":{"score":85},"skills":{"score":80}}`
	orch, _ := newTestOrchestrator(client, goodConverter())

	_, err := orch.Run(context.Background(), validInput())
	if err == nil {
		t.Fatal("expected out-of-range feedback to be rejected")
	}
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) || appErr.Code != apperrors.ErrCodeAIResponseParse {
		t.Fatalf("expected validation failure, got %v", err)
	}

	// The score must not be clamped into a stored record.
	for _, stored := range client.kv.values {
		var record types.ResumeRecord
		if err := json.Unmarshal([]byte(stored), &record); err != nil {
			t.Fatalf("unmarshal stored record: %v", err)
		}
		if record.Feedback != nil {
			t.Error("expected no feedback to be persisted for an invalid analysis")
		}
	}
}

func TestRunRejectsConcurrentAnalyses(t *testing.T) {
	client := newStubClient()
	client.ai.block = make(chan struct{})
	client.ai.reply = validFeedbackJSON(t)
	orch, _ := newTestOrchestrator(client, goodConverter())

	firstDone := make(chan error, 1)
	go func() {
		_, err := orch.Run(context.Background(), validInput())
		firstDone <- err
	}()

	// Wait for the first run to reach the blocked analysis step.
	deadline := time.After(2 * time.Second)
	for orch.Status() != StatusAnalyzing {
		select {
		case <-deadline:
			t.Fatal("first run never reached the analysis step")
		case <-time.After(5 * time.Millisecond):
		}
	}

	_, err := orch.Run(context.Background(), validInput())
	if err == nil {
		t.Fatal("expected the second run to be rejected")
	}
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) || appErr.Code != apperrors.ErrCodeAnalysisInProgress {
		t.Fatalf("expected in-progress rejection, got %v", err)
	}

	close(client.ai.block)
	if err := <-firstDone; err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	// The guard is released once the first run finishes.
	if _, err := orch.Run(context.Background(), validInput()); err != nil {
		t.Fatalf("expected a follow-up run to start, got %v", err)
	}
}
