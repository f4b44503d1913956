package auth

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/banyan/banyan/internal/bnerr"
	"github.com/banyan/banyan/internal/domain/task"
	"github.com/banyan/banyan/internal/store"
)

// IdentityStore manages Banyan's users (providers and workers), hashing
// request tokens at rest and authenticating by linear scan of the name
// index — user counts in a Banyan deployment are small (operators and
// worker fleets), so this trades index complexity for a single clear
// verification path, following cklxx-elephant.ai's adapters/memory_store.go
// pattern of a thin store wrapper around the domain type.
type IdentityStore struct {
	store store.TaskStore
}

// NewIdentityStore wraps a TaskStore's user operations.
func NewIdentityStore(s store.TaskStore) *IdentityStore {
	return &IdentityStore{store: s}
}

// CreateUser mints a fresh request token, hashes it for storage, and
// returns the plaintext token (shown once, e.g. by cmd/banyanctl) alongside
// the persisted User record.
func (i *IdentityStore) CreateUser(ctx context.Context, name string, role task.Role) (*task.User, string, error) {
	if _, err := i.store.FindUserByName(ctx, name); err == nil {
		return nil, "", bnerr.Conflict("name", name)
	} else if err != store.ErrNotFound {
		return nil, "", err
	}

	plain, err := GenerateRequestToken()
	if err != nil {
		return nil, "", err
	}
	hashed, err := HashToken(plain)
	if err != nil {
		return nil, "", err
	}
	u := &task.User{
		ID:           uuid.NewString(),
		Name:         name,
		Role:         role,
		RequestToken: hashed,
	}
	if err := i.store.PutUser(ctx, u); err != nil {
		return nil, "", err
	}
	return u, plain, nil
}

// RemoveUser deletes a user by name.
func (i *IdentityStore) RemoveUser(ctx context.Context, name string) error {
	u, err := i.store.FindUserByName(ctx, name)
	if err != nil {
		if err == store.ErrNotFound {
			return bnerr.NotFound("user", name)
		}
		return err
	}
	return i.store.DeleteUser(ctx, u.ID)
}

// List returns every registered user.
func (i *IdentityStore) List(ctx context.Context) ([]*task.User, error) {
	return i.store.ListUsers(ctx)
}

// Authenticate finds the user whose stored hash verifies against the given
// plaintext token. There is no secondary index on the hash (each hash
// embeds a fresh salt, so equal tokens never hash equal) — every
// authentication call verifies against every stored user, acceptable for
// Banyan's expected identity-store size.
func (i *IdentityStore) Authenticate(ctx context.Context, plainToken string) (*task.User, error) {
	users, err := i.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		ok, err := VerifyToken(plainToken, u.RequestToken)
		if err != nil {
			continue
		}
		if ok {
			return u, nil
		}
	}
	return nil, bnerr.Unauthorized("unknown or invalid token")
}

// RequireRole returns an error unless u has the given role, used by the
// HTTP layer to enforce spec.md §6's provider-only / worker-only endpoints.
func RequireRole(u *task.User, want task.Role) error {
	if u == nil {
		return bnerr.Unauthorized("missing credentials")
	}
	if u.Role != want {
		return bnerr.Unauthorized(fmt.Sprintf("endpoint requires role %q, have %q", want, u.Role))
	}
	return nil
}
