package server

import (
	"context"
	"errors"

	"github.com/thephpleague/oauth2-server-sub003/events"
	"github.com/thephpleague/oauth2-server-sub003/storage"
)

// AuthenticateClient resolves and authenticates a client for a token-endpoint
// request. Confidential clients must present their secret; public clients
// must not present one. Lookup failures and bad secrets collapse into the
// same invalid_client error so client IDs cannot be enumerated.
func (s *Server) AuthenticateClient(ctx context.Context, clientID, clientSecret string) (*storage.Client, *OAuthError) {
	if clientID == "" {
		return nil, ErrInvalidClient("client authentication required")
	}

	client, err := s.repos.Clients.GetClient(ctx, clientID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.Logger.Error("Client lookup failed", "error", err)
			return nil, ErrServerError("failed to authenticate client")
		}
		// Burn a secret comparison anyway so unknown and known client IDs
		// take the same time to reject.
		_ = s.repos.Clients.ValidateClientSecret(ctx, clientID, clientSecret)
		s.emitClientAuthFailure(ctx, clientID, "unknown_client")
		return nil, ErrInvalidClient("client authentication failed")
	}

	if client.IsConfidential() {
		if clientSecret == "" {
			s.emitClientAuthFailure(ctx, clientID, "missing_secret")
			return nil, ErrInvalidClient("client authentication failed")
		}
		if err := s.repos.Clients.ValidateClientSecret(ctx, clientID, clientSecret); err != nil {
			if !errors.Is(err, storage.ErrInvalidCredentials) && !errors.Is(err, storage.ErrNotFound) {
				s.Logger.Error("Client secret validation failed", "error", err)
				return nil, ErrServerError("failed to authenticate client")
			}
			s.emitClientAuthFailure(ctx, clientID, "bad_secret")
			return nil, ErrInvalidClient("client authentication failed")
		}
		return client, nil
	}

	// Public clients authenticate by identifier alone. Presenting a secret
	// suggests a misconfigured client.
	if clientSecret != "" {
		s.emitClientAuthFailure(ctx, clientID, "unexpected_secret")
		return nil, ErrInvalidClient("public clients must not send a client secret")
	}

	return client, nil
}

// ResolveClient fetches a client without authenticating it. Used by the
// authorization endpoint, where the user agent is the caller.
func (s *Server) ResolveClient(ctx context.Context, clientID string) (*storage.Client, *OAuthError) {
	if clientID == "" {
		return nil, ErrInvalidRequest("client_id is required")
	}

	client, err := s.repos.Clients.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrInvalidClient("unknown client")
		}
		s.Logger.Error("Client lookup failed", "error", err)
		return nil, ErrServerError("failed to resolve client")
	}

	return client, nil
}

func (s *Server) emitClientAuthFailure(ctx context.Context, clientID, reason string) {
	if m := s.metrics(); m != nil {
		m.RecordClientAuthFailure(ctx, clientID)
	}
	s.Emitter.Emit(ctx, &events.Event{
		Name:     events.ClientAuthenticationFailed,
		ClientID: clientID,
		Details:  map[string]any{"reason": reason},
	})
}
