package opcache

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"resumind/internal/capability"
	apperrors "resumind/internal/errors"
	"resumind/internal/types"
)

type fakeAuth struct {
	signedIn bool
	user     *types.UserIdentity

	signIns  int
	signOuts int
	getUsers int
}

func (a *fakeAuth) IsSignedIn(ctx context.Context) (bool, error) { return a.signedIn, nil }

func (a *fakeAuth) GetUser(ctx context.Context) (*types.UserIdentity, error) {
	a.getUsers++
	return a.user, nil
}

func (a *fakeAuth) SignIn(ctx context.Context) error {
	a.signIns++
	a.signedIn = true
	return nil
}

func (a *fakeAuth) SignOut(ctx context.Context) error {
	a.signOuts++
	a.signedIn = false
	return nil
}

type fakeFS struct {
	blobs map[string]*types.FileBlob

	writes int
	reads  int
}

func (f *fakeFS) Write(ctx context.Context, file types.File) (*types.FileDescriptor, error) {
	f.writes++
	data, err := file.Bytes(ctx)
	if err != nil {
		return nil, err
	}
	path := "stored/" + file.Name()
	f.blobs[path] = &types.FileBlob{FileName: file.Name(), MIME: "application/octet-stream", Data: data}
	return &types.FileDescriptor{Path: path, Name: file.Name(), Size: int64(len(data))}, nil
}

func (f *fakeFS) Upload(ctx context.Context, files []types.File) (*types.FileDescriptor, error) {
	var first *types.FileDescriptor
	for _, file := range files {
		fd, err := f.Write(ctx, file)
		if err != nil {
			return nil, err
		}
		if first == nil {
			first = fd
		}
	}
	return first, nil
}

func (f *fakeFS) Read(ctx context.Context, path string) (*types.FileBlob, error) {
	f.reads++
	blob, ok := f.blobs[path]
	if !ok {
		return nil, errors.New("file not found: " + path)
	}
	return blob, nil
}

func (f *fakeFS) Delete(ctx context.Context, path string) error {
	delete(f.blobs, path)
	return nil
}

func (f *fakeFS) ReadDir(ctx context.Context, dir string) ([]types.FileDescriptor, error) {
	var out []types.FileDescriptor
	for path, blob := range f.blobs {
		out = append(out, types.FileDescriptor{Path: path, Name: blob.FileName, Size: blob.Size()})
	}
	return out, nil
}

type fakeAI struct {
	reply string

	chats    int
	lastMsg  types.AIMessage
	lastOpts *types.ChatOptions
}

func (a *fakeAI) Chat(ctx context.Context, msg types.AIMessage, opts *types.ChatOptions) (*types.AIResponse, error) {
	a.chats++
	a.lastMsg = msg
	a.lastOpts = opts
	return &types.AIResponse{
		Message: types.ResponseMessage{Role: "assistant", Content: types.TextContent(a.reply)},
	}, nil
}

func (a *fakeAI) Img2Txt(ctx context.Context, image types.File) (string, error) {
	return "extracted text", nil
}

type fakeKV struct {
	values map[string]string

	gets int
	sets int
}

func (k *fakeKV) Get(ctx context.Context, key string) (string, bool, error) {
	k.gets++
	v, ok := k.values[key]
	return v, ok, nil
}

func (k *fakeKV) Set(ctx context.Context, key, value string) (bool, error) {
	k.sets++
	k.values[key] = value
	return true, nil
}

func (k *fakeKV) Delete(ctx context.Context, key string) error {
	delete(k.values, key)
	return nil
}

func (k *fakeKV) List(ctx context.Context, pattern string, returnValues bool) ([]types.KVEntry, error) {
	var out []types.KVEntry
	for key, value := range k.values {
		e := types.KVEntry{Key: key}
		if returnValues {
			e.Value = value
		}
		out = append(out, e)
	}
	return out, nil
}

func (k *fakeKV) Flush(ctx context.Context) error {
	k.values = make(map[string]string)
	return nil
}

type fakeClient struct {
	auth *fakeAuth
	fs   *fakeFS
	ai   *fakeAI
	kv   *fakeKV
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		auth: &fakeAuth{user: &types.UserIdentity{Username: "tester"}},
		fs:   &fakeFS{blobs: make(map[string]*types.FileBlob)},
		ai:   &fakeAI{reply: "hello"},
		kv:   &fakeKV{values: make(map[string]string)},
	}
}

func (c *fakeClient) Auth() capability.AuthService { return c.auth }
func (c *fakeClient) FS() capability.FileSystem    { return c.fs }
func (c *fakeClient) AI() capability.AIService     { return c.ai }
func (c *fakeClient) KV() capability.KeyValueStore { return c.kv }

func newTestOperations(client capability.Client) *Operations {
	gateway := capability.NewGateway(time.Second, 10*time.Millisecond, nil)
	if client != nil {
		gateway.Register(client)
	}
	return NewOperations(gateway, NewCache(nil), "gemini-2.0-flash", nil)
}

func TestOperationsUnavailableWithoutClient(t *testing.T) {
	ops := newTestOperations(nil)
	ctx := context.Background()

	checks := map[string]func() error{
		"signIn":    func() error { return ops.SignIn(ctx) },
		"signOut":   func() error { return ops.SignOut(ctx) },
		"fsDelete":  func() error { return ops.FsDelete(ctx, "x") },
		"kvDelete":  func() error { return ops.KvDelete(ctx, "x") },
		"kvFlush":   func() error { return ops.KvFlush(ctx) },
		"fsRead":    func() error { _, err := ops.FsRead(ctx, "x", ""); return err },
		"fsReadDir": func() error { _, err := ops.FsReadDir(ctx, "./"); return err },
		"aiImg2txt": func() error { _, err := ops.AiImg2Txt(ctx, "x"); return err },
		"kvSet":     func() error { _, err := ops.KvSet(ctx, "k", "v"); return err },
		"kvGet":     func() error { _, _, err := ops.KvGet(ctx, "k"); return err },
	}

	for name, call := range checks {
		err := call()
		if err == nil {
			t.Errorf("%s: expected an error with no registered client", name)
			continue
		}
		if !errors.Is(err, capability.ErrUnavailable) {
			t.Errorf("%s: expected unavailable sentinel, got %v", name, err)
		}
		var appErr *apperrors.AppError
		if !errors.As(err, &appErr) || appErr.Code != apperrors.ErrCodeCapabilityUnavailable {
			t.Errorf("%s: expected code %s, got %v", name, apperrors.ErrCodeCapabilityUnavailable, err)
		}
	}
}

func TestInitTimesOutWithoutClient(t *testing.T) {
	gateway := capability.NewGateway(50*time.Millisecond, 10*time.Millisecond, nil)
	ops := NewOperations(gateway, NewCache(nil), "gemini-2.0-flash", nil)

	err := ops.Init(context.Background())
	if err == nil {
		t.Fatal("expected init to time out")
	}
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) || appErr.Code != apperrors.ErrCodeCapabilityInitTimeout {
		t.Fatalf("expected code %s, got %v", apperrors.ErrCodeCapabilityInitTimeout, err)
	}
	if errors.Is(err, capability.ErrUnavailable) {
		t.Error("init timeout must be distinct from the unavailable sentinel")
	}
}

func TestInitSucceedsAfterLateRegistration(t *testing.T) {
	gateway := capability.NewGateway(time.Second, 10*time.Millisecond, nil)
	ops := NewOperations(gateway, NewCache(nil), "gemini-2.0-flash", nil)

	go func() {
		time.Sleep(50 * time.Millisecond)
		gateway.Register(newFakeClient())
	}()

	if err := ops.Init(context.Background()); err != nil {
		t.Fatalf("expected init to succeed once the client registers, got %v", err)
	}
}

func TestSignInRefreshesUser(t *testing.T) {
	client := newFakeClient()
	ops := newTestOperations(client)
	ctx := context.Background()

	if ops.User() != nil {
		t.Fatal("expected no cached user before sign-in")
	}
	if err := ops.SignIn(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.auth.signIns != 1 {
		t.Errorf("expected 1 delegated sign-in, got %d", client.auth.signIns)
	}
	if client.auth.getUsers != 1 {
		t.Errorf("expected their identity to be re-fetched, got %d GetUser calls", client.auth.getUsers)
	}
	user := ops.User()
	if user == nil || user.Username != "tester" {
		t.Errorf("expected cached user %q, got %+v", "tester", user)
	}
}

func TestSignOutClearsUser(t *testing.T) {
	client := newFakeClient()
	ops := newTestOperations(client)
	ctx := context.Background()

	if err := ops.SignIn(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ops.SignOut(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.auth.signOuts != 1 {
		t.Errorf("expected 1 delegated sign-out, got %d", client.auth.signOuts)
	}
	if ops.User() != nil {
		t.Error("expected cached user to be cleared after sign-out")
	}
}

func TestSignInInvalidatesAuthQueries(t *testing.T) {
	client := newFakeClient()
	ops := newTestOperations(client)
	ctx := context.Background()

	if _, err := ops.IsSignedIn(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Cached: no new delegated call.
	if _, err := ops.IsSignedIn(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ops.SignIn(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	signedIn, err := ops.IsSignedIn(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !signedIn {
		t.Error("expected a fresh signed-in answer after sign-in invalidated the cache")
	}
}

func TestFsReadPdfHintForcesContentType(t *testing.T) {
	client := newFakeClient()
	client.fs.blobs["stored/resume.pdf"] = &types.FileBlob{
		FileName: "resume.pdf",
		MIME:     "application/octet-stream",
		Data:     []byte("%PDF-1.4 fake"),
	}
	ops := newTestOperations(client)

	blobURL, err := ops.FsRead(context.Background(), "stored/resume.pdf", "pdf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if blobURL.ContentType != "application/pdf" {
		t.Errorf("expected forced application/pdf, got %q", blobURL.ContentType)
	}
	if !strings.HasPrefix(blobURL.URL, "data:application/pdf;base64,") {
		t.Errorf("unexpected URL prefix: %q", blobURL.URL)
	}
}

func TestFsReadWithoutHintKeepsSniffedType(t *testing.T) {
	client := newFakeClient()
	client.fs.blobs["stored/pic.png"] = &types.FileBlob{
		FileName: "pic.png",
		MIME:     "image/png",
		Data:     []byte{0x89, 'P', 'N', 'G'},
	}
	ops := newTestOperations(client)

	blobURL, err := ops.FsRead(context.Background(), "stored/pic.png", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if blobURL.ContentType != "image/png" {
		t.Errorf("expected sniffed image/png, got %q", blobURL.ContentType)
	}
}

func TestAiFeedbackBuildsTwoPartMessage(t *testing.T) {
	client := newFakeClient()
	client.fs.blobs["stored/resume.pdf"] = &types.FileBlob{
		FileName: "resume.pdf",
		MIME:     "application/pdf",
		Data:     []byte("%PDF-1.4 fake"),
	}
	client.ai.reply = `{"overallScore":80}`
	ops := newTestOperations(client)

	resp, err := ops.AiFeedback(context.Background(), "stored/resume.pdf", "Analyze this resume")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Message.Content.Text() != `{"overallScore":80}` {
		t.Errorf("unexpected response text: %q", resp.Message.Content.Text())
	}

	msg := client.ai.lastMsg
	if msg.Role != "user" {
		t.Errorf("expected user role, got %q", msg.Role)
	}
	if len(msg.Parts) != 2 {
		t.Fatalf("expected a file part and a text part, got %d parts", len(msg.Parts))
	}
	if msg.Parts[0].Path != "stored/resume.pdf" || msg.Parts[0].File == nil {
		t.Errorf("expected first part to carry the stored file, got %+v", msg.Parts[0])
	}
	if msg.Parts[1].Text != "Analyze this resume" {
		t.Errorf("expected second part to carry the instruction, got %+v", msg.Parts[1])
	}

	opts := client.ai.lastOpts
	if opts == nil || opts.Model != "gemini-2.0-flash" {
		t.Errorf("expected the fixed analysis model, got %+v", opts)
	}
	if opts != nil && opts.ResponseSchema != "feedback" {
		t.Errorf("expected the feedback schema to be requested, got %q", opts.ResponseSchema)
	}
}

func TestKvSetInvalidatesKvQueries(t *testing.T) {
	client := newFakeClient()
	ops := newTestOperations(client)
	ctx := context.Background()

	if _, _, err := ops.KvGet(ctx, "resume:1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Cached miss.
	if _, _, err := ops.KvGet(ctx, "resume:1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.kv.gets != 1 {
		t.Fatalf("expected the miss to be cached, got %d delegated gets", client.kv.gets)
	}

	if _, err := ops.KvSet(ctx, "resume:1", `{"id":"1"}`); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	value, ok, err := ops.KvGet(ctx, "resume:1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || value != `{"id":"1"}` {
		t.Errorf("expected fresh value after set, got ok=%v value=%q", ok, value)
	}
	if client.kv.gets != 2 {
		t.Errorf("expected a refetch after invalidation, got %d delegated gets", client.kv.gets)
	}
}

func TestKvGetMissingKeyIsNotAnError(t *testing.T) {
	ops := newTestOperations(newFakeClient())

	value, ok, err := ops.KvGet(context.Background(), "resume:missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok || value != "" {
		t.Errorf("expected a clean miss, got ok=%v value=%q", ok, value)
	}
}

func TestAiChatOptionsArePartOfTheCacheKey(t *testing.T) {
	client := newFakeClient()
	ops := newTestOperations(client)
	ctx := context.Background()

	msg := types.AIMessage{Role: "user", Parts: []types.AIMessagePart{{Text: "hello"}}}

	if _, err := ops.AiChat(ctx, msg, &types.ChatOptions{Model: "model-a"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ops.AiChat(ctx, msg, &types.ChatOptions{Model: "model-b"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if client.ai.chats != 2 {
		t.Errorf("expected a delegated call per option set, got %d", client.ai.chats)
	}
	if client.ai.lastOpts == nil || client.ai.lastOpts.Model != "model-b" {
		t.Errorf("expected the second call to carry its own options, got %+v", client.ai.lastOpts)
	}

	// Same message and options is still a cache hit.
	if _, err := ops.AiChat(ctx, msg, &types.ChatOptions{Model: "model-b"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.ai.chats != 2 {
		t.Errorf("expected identical arguments to be served from cache, got %d calls", client.ai.chats)
	}
}
