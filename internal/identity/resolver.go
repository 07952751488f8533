package identity

import (
	"context"
	"errors"
	"fmt"
	"log"

	"board-realtime/internal/auth"
	"board-realtime/internal/model"
)

// ErrRejected wraps every reason a handshake is refused.
var ErrRejected = errors.New("connection rejected")

const guestName = "Guest"

// RoleLookup resolves a user's role on a board.
type RoleLookup interface {
	GetUserRole(ctx context.Context, boardID, userID string) (model.Role, error)
}

// ShareTokens resolves share-link capabilities.
type ShareTokens interface {
	ResolveShareToken(ctx context.Context, token string) (*model.ShareToken, error)
	TouchShareToken(ctx context.Context, id string) error
}

// Handshake carries what the transport knows about a connecting peer.
type Handshake struct {
	BoardID    string
	Claims     *auth.Claims
	ShareToken string
}

// Resolver authorizes board stream handshakes.
type Resolver struct {
	roles  RoleLookup
	tokens ShareTokens
}

// NewResolver creates a Resolver.
func NewResolver(roles RoleLookup, tokens ShareTokens) *Resolver {
	return &Resolver{roles: roles, tokens: tokens}
}

// Resolve returns the identity for hs or an error wrapping ErrRejected.
// An authenticated caller without a role is rejected even when a share token
// is also present.
func (r *Resolver) Resolve(ctx context.Context, hs Handshake) (Identity, error) {
	if hs.BoardID == "" {
		return Identity{}, fmt.Errorf("%w: missing board id", ErrRejected)
	}

	if hs.Claims != nil && hs.Claims.UserID() != "" {
		return r.resolveAuthenticated(ctx, hs)
	}
	if hs.ShareToken != "" {
		return r.resolveShareToken(ctx, hs)
	}
	return Identity{}, fmt.Errorf("%w: no identity or share token", ErrRejected)
}

func (r *Resolver) resolveAuthenticated(ctx context.Context, hs Handshake) (Identity, error) {
	userID := hs.Claims.UserID()
	role, err := r.roles.GetUserRole(ctx, hs.BoardID, userID)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: role lookup for %s: %v", ErrRejected, userID, err)
	}
	if !role.Valid() {
		return Identity{}, fmt.Errorf("%w: %s has no role", ErrRejected, userID)
	}

	name := hs.Claims.DisplayName
	if name == "" {
		name = hs.Claims.Email
	}
	if name == "" {
		name = "User"
	}

	return Identity{
		Principal:   Authenticated(UserID(userID)),
		DisplayName: name,
		AvatarURL:   hs.Claims.AvatarURL,
		Role:        role,
	}, nil
}

func (r *Resolver) resolveShareToken(ctx context.Context, hs Handshake) (Identity, error) {
	tok, err := r.tokens.ResolveShareToken(ctx, hs.ShareToken)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: share token: %v", ErrRejected, err)
	}
	if !tok.Enabled {
		return Identity{}, fmt.Errorf("%w: share token disabled", ErrRejected)
	}
	if tok.BoardID != hs.BoardID {
		return Identity{}, fmt.Errorf("%w: share token bound to another board", ErrRejected)
	}
	if tok.Role != model.RoleViewer && tok.Role != model.RoleEditor {
		return Identity{}, fmt.Errorf("%w: share token role %q", ErrRejected, tok.Role)
	}

	if err := r.tokens.TouchShareToken(ctx, tok.ID); err != nil {
		log.Printf("[Identity] Failed to touch share token %s: %v", tok.ID, err)
	}

	return Identity{
		Principal:   Anonymous(),
		DisplayName: guestName,
		Role:        tok.Role,
	}, nil
}
