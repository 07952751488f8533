// Package identity turns a board stream handshake into the principal, display
// profile and role a session runs with.
package identity

import (
	"github.com/google/uuid"

	"board-realtime/internal/model"
)

// UserID is the id of an authenticated user. Only an authenticated principal
// hands one out, so anything that persists per-user rows takes a UserID and
// anonymous sessions cannot reach it.
type UserID string

func (u UserID) String() string { return string(u) }

type principalKind uint8

const (
	kindAuthenticated principalKind = iota + 1
	kindAnonymous
)

// Principal is either Authenticated{userID} or Anonymous{ephemeralID}.
type Principal struct {
	kind principalKind
	id   string
}

// Authenticated builds the principal of a signed-in user.
func Authenticated(id UserID) Principal {
	return Principal{kind: kindAuthenticated, id: string(id)}
}

// Anonymous builds a fresh ephemeral principal, unique per connection.
func Anonymous() Principal {
	return Principal{kind: kindAnonymous, id: "anon-" + uuid.NewString()}
}

// ID is the roster key: the user id, or the ephemeral id for anonymous peers.
func (p Principal) ID() string { return p.id }

// IsAnonymous reports whether the principal came from a share token.
func (p Principal) IsAnonymous() bool { return p.kind == kindAnonymous }

// UserID returns the persistent user id; ok is false for anonymous principals.
func (p Principal) UserID() (UserID, bool) {
	if p.kind != kindAuthenticated {
		return "", false
	}
	return UserID(p.id), true
}

// Identity is what the resolver grants a connection.
type Identity struct {
	Principal   Principal
	DisplayName string
	AvatarURL   string
	Role        model.Role
}

// Anonymous reports whether the identity must never be persisted.
func (i Identity) Anonymous() bool { return i.Principal.IsAnonymous() }
