package capability

import (
	"context"

	"resumind/internal/types"
)

// AuthService exposes the authentication capability of a provider client.
type AuthService interface {
	// IsSignedIn reports whether a user session is active.
	IsSignedIn(ctx context.Context) (bool, error)
	// GetUser returns the identity of the signed-in user, or nil when no
	// session is active.
	GetUser(ctx context.Context) (*types.UserIdentity, error)
	// SignIn establishes a session.
	SignIn(ctx context.Context) error
	// SignOut tears down the session.
	SignOut(ctx context.Context) error
}

// FileSystem exposes the file storage capability of a provider client.
// Paths returned by Write and Upload are storage keys relative to the
// backend root and are valid inputs to Read and Delete.
type FileSystem interface {
	// Write stores the file content and returns its descriptor.
	Write(ctx context.Context, file types.File) (*types.FileDescriptor, error)
	// Upload stores each file in turn and returns the descriptor of the
	// first one, matching single-file upload flows.
	Upload(ctx context.Context, files []types.File) (*types.FileDescriptor, error)
	// Read fetches the raw bytes stored under path.
	Read(ctx context.Context, path string) (*types.FileBlob, error)
	// Delete removes the object stored under path.
	Delete(ctx context.Context, path string) error
	// ReadDir lists the objects under a directory prefix.
	ReadDir(ctx context.Context, dir string) ([]types.FileDescriptor, error)
}

// AIService exposes the AI capability of a provider client.
type AIService interface {
	// Chat sends a single-message conversation and returns the reply.
	Chat(ctx context.Context, msg types.AIMessage, opts *types.ChatOptions) (*types.AIResponse, error)
	// Img2Txt extracts the text content of an image file.
	Img2Txt(ctx context.Context, image types.File) (string, error)
}

// KeyValueStore exposes the key-value capability of a provider client.
type KeyValueStore interface {
	// Get returns the value for key. ok is false on a missing key, which
	// is not an error.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set stores value under key and reports acceptance.
	Set(ctx context.Context, key, value string) (bool, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// List returns entries whose keys match the glob pattern. Values are
	// populated only when returnValues is true.
	List(ctx context.Context, pattern string, returnValues bool) ([]types.KVEntry, error)
	// Flush removes every key in the store's namespace.
	Flush(ctx context.Context) error
}

// Client bundles the capability services of one provider.
type Client interface {
	Auth() AuthService
	FS() FileSystem
	AI() AIService
	KV() KeyValueStore
}
