// Package server implements the core OAuth 2.0 grant engine.
//
// This package executes the authorization and token flows: authorization
// code with PKCE, client credentials, resource owner password, refresh token
// rotation, and the legacy implicit flow. It coordinates between storage
// repositories, the JWT token codec, and security features while remaining
// transport-agnostic; the root package provides the HTTP boundary.
//
// The Server type delegates to specialized modules:
//   - Repository contracts and entities (storage package)
//   - Access token signing and verification (token package)
//   - Lifecycle events (events package)
//   - Security features (security package)
//
// Key Features:
//   - OAuth 2.1 defaults with mandatory PKCE
//   - Atomic single-use authorization codes with reuse-triggered revocation
//   - Refresh token rotation with family-wide reuse revocation
//   - RFC 7662 introspection and RFC 7009 revocation
//   - Priority-ordered lifecycle events with security auditing
//
// Example usage:
//
//	store := memory.New()
//	codec, err := token.NewCodec(params, "https://auth.example.com", 0)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	config := &server.Config{
//	    Issuer: "https://auth.example.com",
//	}
//
//	srv, err := server.New(storage.Repositories{
//	    Clients:       store,
//	    AccessTokens:  store,
//	    RefreshTokens: store,
//	    AuthCodes:     store,
//	    Users:         store,
//	    Scopes:        store,
//	}, codec, config, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
package server
