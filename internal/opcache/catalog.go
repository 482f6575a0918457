package opcache

import (
	"context"
	"encoding/base64"
	"strings"
	"sync"

	"resumind/internal/capability"
	apperrors "resumind/internal/errors"
	"resumind/internal/types"
)

// Invalidation tags grouping query results by the capability they read.
const (
	TagAuth = "auth"
	TagFS   = "fs"
	TagKV   = "kv"
)

// Fallback messages surfaced when a delegated call fails without a usable
// message of its own.
const (
	fallbackAuthFailed = "Authentication call failed"
	fallbackFSFailed   = "File system call failed"
	fallbackAIFailed   = "AI call failed"
	fallbackKVFailed   = "Key-value call failed"
)

// Operations is the catalog of remote operations. Every operation checks
// gateway availability first and fails with the unavailable sentinel
// before attempting any delegated call.
type Operations struct {
	gateway *capability.Gateway
	cache   *Cache
	logger  *apperrors.Logger

	// feedbackModel is the fixed model used for resume analysis requests.
	feedbackModel string

	userMu sync.Mutex
	user   *types.UserIdentity
}

// NewOperations creates the operation catalog over a gateway.
func NewOperations(gateway *capability.Gateway, cache *Cache, feedbackModel string, logger *apperrors.Logger) *Operations {
	return &Operations{
		gateway:       gateway,
		cache:         cache,
		logger:        logger,
		feedbackModel: feedbackModel,
	}
}

// Cache exposes the underlying cache, mainly for invalidation hooks.
func (o *Operations) Cache() *Cache { return o.cache }

// client returns the registered capability client, or the fixed
// "capability not available" error when none is registered.
func (o *Operations) client() (capability.Client, error) {
	c := o.gateway.Get()
	if c == nil {
		return nil, apperrors.NewCapabilityError(
			apperrors.ErrCodeCapabilityUnavailable,
			capability.ErrUnavailable.Error(),
			capability.ErrUnavailable)
	}
	return c, nil
}

// delegated wraps an error from a delegated call, surfacing its message or
// the fallback when the message is empty.
func delegated(err error, fallback string) error {
	msg := err.Error()
	if msg == "" {
		msg = fallback
	}
	return apperrors.NewCapabilityError(apperrors.ErrCodeDelegatedCallFailed, msg, err)
}

// Init waits for the capability gateway to become available, failing with
// a timeout-specific error distinct from the unavailable sentinel.
func (o *Operations) Init(ctx context.Context) error {
	_, err := RunMutation(ctx, o.cache, "init", struct{}{}, nil, nil,
		func(ctx context.Context, _ struct{}) (struct{}, error) {
			return struct{}{}, o.gateway.WaitReady(ctx)
		})
	return err
}

// SignIn establishes a session. On success the signed-in user is
// re-fetched and auth-tagged query results are invalidated.
func (o *Operations) SignIn(ctx context.Context) error {
	_, err := RunMutation(ctx, o.cache, "signIn", struct{}{}, []string{TagAuth},
		func(ctx context.Context) {
			if err := o.RefreshUser(ctx); err != nil && o.logger != nil {
				o.logger.Warn("User refresh after sign-in failed", "error", err.Error())
			}
		},
		func(ctx context.Context, _ struct{}) (struct{}, error) {
			client, err := o.client()
			if err != nil {
				return struct{}{}, err
			}
			if err := client.Auth().SignIn(ctx); err != nil {
				return struct{}{}, delegated(err, fallbackAuthFailed)
			}
			return struct{}{}, nil
		})
	return err
}

// SignOut tears down the session and clears the locally cached user.
func (o *Operations) SignOut(ctx context.Context) error {
	_, err := RunMutation(ctx, o.cache, "signOut", struct{}{}, []string{TagAuth},
		func(context.Context) {
			o.userMu.Lock()
			o.user = nil
			o.userMu.Unlock()
		},
		func(ctx context.Context, _ struct{}) (struct{}, error) {
			client, err := o.client()
			if err != nil {
				return struct{}{}, err
			}
			if err := client.Auth().SignOut(ctx); err != nil {
				return struct{}{}, delegated(err, fallbackAuthFailed)
			}
			return struct{}{}, nil
		})
	return err
}

// RefreshUser re-fetches the signed-in user identity from the auth
// capability and stores it locally.
func (o *Operations) RefreshUser(ctx context.Context) error {
	_, err := RunMutation(ctx, o.cache, "refreshUser", struct{}{}, nil, nil,
		func(ctx context.Context, _ struct{}) (*types.UserIdentity, error) {
			client, err := o.client()
			if err != nil {
				return nil, err
			}
			user, err := client.Auth().GetUser(ctx)
			if err != nil {
				return nil, delegated(err, fallbackAuthFailed)
			}
			o.userMu.Lock()
			o.user = user
			o.userMu.Unlock()
			return user, nil
		})
	return err
}

// User returns the locally cached user identity, nil when signed out.
func (o *Operations) User() *types.UserIdentity {
	o.userMu.Lock()
	defer o.userMu.Unlock()
	return o.user
}

// IsSignedIn queries the auth capability for session state.
func (o *Operations) IsSignedIn(ctx context.Context) (bool, error) {
	return RunQuery(ctx, o.cache, "isSignedIn", struct{}{}, []string{TagAuth},
		func(ctx context.Context, _ struct{}) (bool, error) {
			client, err := o.client()
			if err != nil {
				return false, err
			}
			ok, err := client.Auth().IsSignedIn(ctx)
			if err != nil {
				return false, delegated(err, fallbackAuthFailed)
			}
			return ok, nil
		})
}

// FsWrite stores a single file.
func (o *Operations) FsWrite(ctx context.Context, file types.File) (*types.FileDescriptor, error) {
	return RunMutation(ctx, o.cache, "fsWrite", file.Name(), []string{TagFS}, nil,
		func(ctx context.Context, _ string) (*types.FileDescriptor, error) {
			client, err := o.client()
			if err != nil {
				return nil, err
			}
			fd, err := client.FS().Write(ctx, file)
			if err != nil {
				return nil, delegated(err, fallbackFSFailed)
			}
			return fd, nil
		})
}

type fsReadArgs struct {
	Path string `json:"path"`
	Hint string `json:"hint"`
}

// FsRead fetches stored bytes and packages them as a dereferenceable URL.
// A "pdf" content-type hint forces the application/pdf media type.
func (o *Operations) FsRead(ctx context.Context, path, contentTypeHint string) (*types.BlobURL, error) {
	return RunQuery(ctx, o.cache, "fsRead", fsReadArgs{Path: path, Hint: contentTypeHint}, []string{TagFS},
		func(ctx context.Context, args fsReadArgs) (*types.BlobURL, error) {
			client, err := o.client()
			if err != nil {
				return nil, err
			}
			blob, err := client.FS().Read(ctx, args.Path)
			if err != nil {
				return nil, delegated(err, fallbackFSFailed)
			}

			contentType := blob.MIME
			if strings.EqualFold(args.Hint, "pdf") {
				contentType = "application/pdf"
			}
			return &types.BlobURL{
				URL:         "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(blob.Data),
				ContentType: contentType,
			}, nil
		})
}

// FsReadDir lists stored objects under a directory prefix.
func (o *Operations) FsReadDir(ctx context.Context, dir string) ([]types.FileDescriptor, error) {
	return RunQuery(ctx, o.cache, "fsReadDir", dir, []string{TagFS},
		func(ctx context.Context, dir string) ([]types.FileDescriptor, error) {
			client, err := o.client()
			if err != nil {
				return nil, err
			}
			out, err := client.FS().ReadDir(ctx, dir)
			if err != nil {
				return nil, delegated(err, fallbackFSFailed)
			}
			return out, nil
		})
}

// FsUpload stores a list of files, returning the first descriptor.
func (o *Operations) FsUpload(ctx context.Context, files []types.File) (*types.FileDescriptor, error) {
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name()
	}
	return RunMutation(ctx, o.cache, "fsUpload", names, []string{TagFS}, nil,
		func(ctx context.Context, _ []string) (*types.FileDescriptor, error) {
			client, err := o.client()
			if err != nil {
				return nil, err
			}
			fd, err := client.FS().Upload(ctx, files)
			if err != nil {
				return nil, delegated(err, fallbackFSFailed)
			}
			return fd, nil
		})
}

// FsDelete removes a stored object.
func (o *Operations) FsDelete(ctx context.Context, path string) error {
	_, err := RunMutation(ctx, o.cache, "fsDelete", path, []string{TagFS}, nil,
		func(ctx context.Context, path string) (struct{}, error) {
			client, err := o.client()
			if err != nil {
				return struct{}{}, err
			}
			if err := client.FS().Delete(ctx, path); err != nil {
				return struct{}{}, delegated(err, fallbackFSFailed)
			}
			return struct{}{}, nil
		})
	return err
}

type aiChatArgs struct {
	Msg  types.AIMessage    `json:"msg"`
	Opts *types.ChatOptions `json:"opts"`
}

// AiChat sends a chat message through the AI capability. Options are part
// of the cache key: the same message with a different model or schema is a
// different query.
func (o *Operations) AiChat(ctx context.Context, msg types.AIMessage, opts *types.ChatOptions) (*types.AIResponse, error) {
	return RunQuery(ctx, o.cache, "aiChat", aiChatArgs{Msg: msg, Opts: opts}, nil,
		func(ctx context.Context, args aiChatArgs) (*types.AIResponse, error) {
			client, err := o.client()
			if err != nil {
				return nil, err
			}
			resp, err := client.AI().Chat(ctx, args.Msg, args.Opts)
			if err != nil {
				return nil, delegated(err, fallbackAIFailed)
			}
			return resp, nil
		})
}

type aiFeedbackArgs struct {
	Path        string `json:"path"`
	Instruction string `json:"instruction"`
}

// AiFeedback requests structured resume feedback: the stored file plus the
// instruction text are sent as a two-part user message to the fixed
// analysis model.
func (o *Operations) AiFeedback(ctx context.Context, path, instruction string) (*types.AIResponse, error) {
	return RunMutation(ctx, o.cache, "aiFeedback", aiFeedbackArgs{Path: path, Instruction: instruction}, nil, nil,
		func(ctx context.Context, args aiFeedbackArgs) (*types.AIResponse, error) {
			client, err := o.client()
			if err != nil {
				return nil, err
			}

			blob, err := client.FS().Read(ctx, args.Path)
			if err != nil {
				return nil, delegated(err, fallbackFSFailed)
			}

			msg := types.AIMessage{
				Role: "user",
				Parts: []types.AIMessagePart{
					{Path: args.Path, File: blob},
					{Text: args.Instruction},
				},
			}
			opts := &types.ChatOptions{
				Model:          o.feedbackModel,
				ResponseSchema: "feedback",
			}

			resp, err := client.AI().Chat(ctx, msg, opts)
			if err != nil {
				return nil, delegated(err, fallbackAIFailed)
			}
			return resp, nil
		})
}

// AiImg2Txt extracts the text of a stored image.
func (o *Operations) AiImg2Txt(ctx context.Context, path string) (string, error) {
	return RunQuery(ctx, o.cache, "aiImg2txt", path, []string{TagFS},
		func(ctx context.Context, path string) (string, error) {
			client, err := o.client()
			if err != nil {
				return "", err
			}
			blob, err := client.FS().Read(ctx, path)
			if err != nil {
				return "", delegated(err, fallbackFSFailed)
			}
			text, err := client.AI().Img2Txt(ctx, blob)
			if err != nil {
				return "", delegated(err, fallbackAIFailed)
			}
			return text, nil
		})
}

// KvGet reads a value. A missing key yields ok=false, not an error.
func (o *Operations) KvGet(ctx context.Context, key string) (string, bool, error) {
	type result struct {
		Value string
		OK    bool
	}
	r, err := RunQuery(ctx, o.cache, "kvGet", key, []string{TagKV},
		func(ctx context.Context, key string) (result, error) {
			client, err := o.client()
			if err != nil {
				return result{}, err
			}
			v, ok, err := client.KV().Get(ctx, key)
			if err != nil {
				return result{}, delegated(err, fallbackKVFailed)
			}
			return result{Value: v, OK: ok}, nil
		})
	return r.Value, r.OK, err
}

type kvListArgs struct {
	Pattern      string `json:"pattern"`
	ReturnValues bool   `json:"returnValues"`
}

// KvList enumerates keys matching a glob pattern, optionally with values.
func (o *Operations) KvList(ctx context.Context, pattern string, returnValues bool) ([]types.KVEntry, error) {
	return RunQuery(ctx, o.cache, "kvList", kvListArgs{Pattern: pattern, ReturnValues: returnValues}, []string{TagKV},
		func(ctx context.Context, args kvListArgs) ([]types.KVEntry, error) {
			client, err := o.client()
			if err != nil {
				return nil, err
			}
			entries, err := client.KV().List(ctx, args.Pattern, args.ReturnValues)
			if err != nil {
				return nil, delegated(err, fallbackKVFailed)
			}
			return entries, nil
		})
}

type kvSetArgs struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// KvSet stores a value and invalidates KV-tagged query results.
func (o *Operations) KvSet(ctx context.Context, key, value string) (bool, error) {
	return RunMutation(ctx, o.cache, "kvSet", kvSetArgs{Key: key, Value: value}, []string{TagKV}, nil,
		func(ctx context.Context, args kvSetArgs) (bool, error) {
			client, err := o.client()
			if err != nil {
				return false, err
			}
			ok, err := client.KV().Set(ctx, args.Key, args.Value)
			if err != nil {
				return false, delegated(err, fallbackKVFailed)
			}
			return ok, nil
		})
}

// KvDelete removes a key and invalidates KV-tagged query results.
func (o *Operations) KvDelete(ctx context.Context, key string) error {
	_, err := RunMutation(ctx, o.cache, "kvDelete", key, []string{TagKV}, nil,
		func(ctx context.Context, key string) (struct{}, error) {
			client, err := o.client()
			if err != nil {
				return struct{}{}, err
			}
			if err := client.KV().Delete(ctx, key); err != nil {
				return struct{}{}, delegated(err, fallbackKVFailed)
			}
			return struct{}{}, nil
		})
	return err
}

// KvFlush removes every key in the namespace and invalidates KV-tagged
// query results.
func (o *Operations) KvFlush(ctx context.Context) error {
	_, err := RunMutation(ctx, o.cache, "kvFlush", struct{}{}, []string{TagKV}, nil,
		func(ctx context.Context, _ struct{}) (struct{}, error) {
			client, err := o.client()
			if err != nil {
				return struct{}{}, err
			}
			if err := client.KV().Flush(ctx); err != nil {
				return struct{}{}, delegated(err, fallbackKVFailed)
			}
			return struct{}{}, nil
		})
	return err
}
