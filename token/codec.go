package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/thephpleague/oauth2-server-sub003/storage"
)

var (
	// ErrTokenExpired is returned by Decode when the token's signature is
	// valid but its validity window has passed.
	ErrTokenExpired = errors.New("token is expired")
	// ErrTokenInvalid is returned by Decode for every other verification
	// failure. The cause is deliberately not exposed to callers.
	ErrTokenInvalid = errors.New("token is invalid")
)

// Claims is the JWT claim set carried by issued access tokens.
type Claims struct {
	Scopes   []string `json:"scopes,omitempty"`
	ClientID string   `json:"client_id,omitempty"`
	jwt.RegisteredClaims
}

// Codec signs and verifies access tokens as JWTs. The signing algorithm is
// pinned at construction; tokens signed with any other algorithm fail to
// decode regardless of their header.
type Codec struct {
	signKey   any
	verifyKey any
	method    jwt.SigningMethod
	algorithm string
	keyID     string
	issuer    string
	leeway    time.Duration
}

// NewCodec creates a Codec for the given asymmetric key parameters. Leeway
// loosens the exp and nbf checks during Decode; zero means strict.
func NewCodec(params *SigningKeyParams, issuer string, leeway time.Duration) (*Codec, error) {
	if params == nil || params.Key == nil {
		return nil, fmt.Errorf("signing key is required")
	}
	if issuer == "" {
		return nil, fmt.Errorf("issuer is required")
	}
	if leeway < 0 {
		return nil, fmt.Errorf("leeway must not be negative")
	}

	method := jwt.GetSigningMethod(params.Algorithm)
	if method == nil {
		return nil, fmt.Errorf("unknown signing algorithm %q", params.Algorithm)
	}

	return &Codec{
		signKey:   params.Key,
		verifyKey: params.Key.Public(),
		method:    method,
		algorithm: params.Algorithm,
		keyID:     params.KeyID,
		issuer:    issuer,
		leeway:    leeway,
	}, nil
}

// NewHMACCodec creates a Codec using a shared symmetric secret with one of
// the HS algorithms. Symmetric keys cannot be published, so a server using
// this codec serves no JWKS document.
func NewHMACCodec(secret []byte, algorithm, issuer string, leeway time.Duration) (*Codec, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("signing secret is required")
	}
	if issuer == "" {
		return nil, fmt.Errorf("issuer is required")
	}
	if leeway < 0 {
		return nil, fmt.Errorf("leeway must not be negative")
	}

	method, ok := jwt.GetSigningMethod(algorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("algorithm %q is not an HMAC algorithm", algorithm)
	}

	return &Codec{
		signKey:   secret,
		verifyKey: secret,
		method:    method,
		algorithm: algorithm,
		issuer:    issuer,
		leeway:    leeway,
	}, nil
}

// Encode signs the access token as a JWT. The token carries iss, sub, aud,
// jti, iat, nbf and exp alongside the granted scopes and the client ID.
func (c *Codec) Encode(tok *storage.AccessToken) (string, error) {
	claims := &Claims{
		Scopes:   tok.Scopes,
		ClientID: tok.ClientID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   tok.OwnerID,
			Audience:  jwt.ClaimStrings{tok.ClientID},
			ID:        tok.ID,
			IssuedAt:  jwt.NewNumericDate(tok.CreatedAt),
			NotBefore: jwt.NewNumericDate(tok.CreatedAt),
			ExpiresAt: jwt.NewNumericDate(tok.ExpiresAt),
		},
	}

	t := jwt.NewWithClaims(c.method, claims)
	if c.keyID != "" {
		t.Header["kid"] = c.keyID
	}

	signed, err := t.SignedString(c.signKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

// Decode verifies the signature and validity window of a serialized token
// and returns its claims. All failures except expiry collapse into
// ErrTokenInvalid so callers cannot be used as a verification oracle.
func (c *Codec) Decode(tokenString string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{c.algorithm}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(c.leeway),
	)

	claims := &Claims{}
	_, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return c.verifyKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	if claims.ID == "" {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

// Algorithm returns the pinned JWS algorithm name.
func (c *Codec) Algorithm() string {
	return c.algorithm
}

// KeyID returns the key ID embedded in issued token headers. Empty for
// symmetric codecs.
func (c *Codec) KeyID() string {
	return c.keyID
}
