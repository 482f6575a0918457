package capability

import (
	"context"
	"sync"

	"resumind/internal/types"
)

// localAuth is a single-user auth backend. The identity comes from
// configuration; sign-in and sign-out just flip session state.
type localAuth struct {
	mu       sync.Mutex
	username string
	signedIn bool
}

func newLocalAuth(username string) *localAuth {
	return &localAuth{username: username}
}

func (a *localAuth) IsSignedIn(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.signedIn, nil
}

func (a *localAuth) GetUser(ctx context.Context) (*types.UserIdentity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.signedIn {
		return nil, nil
	}
	return &types.UserIdentity{Username: a.username}, nil
}

func (a *localAuth) SignIn(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	a.signedIn = true
	a.mu.Unlock()
	return nil
}

func (a *localAuth) SignOut(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	a.signedIn = false
	a.mu.Unlock()
	return nil
}

var _ AuthService = (*localAuth)(nil)
