package token

import (
	"encoding/json"
	"fmt"

	"github.com/lestrrat-go/jwx/v3/jwk"
)

// PublicKeySet builds the published JWK set containing the verification key
// for the codec's signing key.
func PublicKeySet(params *SigningKeyParams) (jwk.Set, error) {
	key, err := jwk.Import(params.Key.Public())
	if err != nil {
		return nil, fmt.Errorf("failed to build JWK from public key: %w", err)
	}

	if err := key.Set(jwk.KeyIDKey, params.KeyID); err != nil {
		return nil, fmt.Errorf("failed to set key ID: %w", err)
	}
	if err := key.Set(jwk.AlgorithmKey, params.Algorithm); err != nil {
		return nil, fmt.Errorf("failed to set algorithm: %w", err)
	}
	if err := key.Set(jwk.KeyUsageKey, "sig"); err != nil {
		return nil, fmt.Errorf("failed to set key usage: %w", err)
	}

	keySet := jwk.NewSet()
	if err := keySet.AddKey(key); err != nil {
		return nil, fmt.Errorf("failed to add key to set: %w", err)
	}

	return keySet, nil
}

// MarshalPublicKeySet serializes the published JWK set to JSON, ready to be
// served from the jwks_uri endpoint.
func MarshalPublicKeySet(params *SigningKeyParams) ([]byte, error) {
	keySet, err := PublicKeySet(params)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(keySet)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JWK set: %w", err)
	}
	return data, nil
}
