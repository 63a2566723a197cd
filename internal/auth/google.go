package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// ErrInvalidToken covers every verification failure: bad signature,
// expired token, wrong audience or issuer, unknown key.
var ErrInvalidToken = errors.New("invalid or expired token")

// UserInfo is the identity extracted from a verified token.
type UserInfo struct {
	UserID        string `json:"user_id"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	EmailVerified bool   `json:"email_verified"`
}

// Verifier authenticates a bearer credential and yields a stable user
// identity.
type Verifier interface {
	Authenticate(ctx context.Context, token string) (*UserInfo, error)
}

// GoogleVerifier verifies Google-issued ID tokens (RS256) against
// Google's published public keys, held in a TTL'd KeyCache.
type GoogleVerifier struct {
	clientID string
	cache    *KeyCache
	logger   *zap.Logger
}

func NewGoogleVerifier(clientID, certsURL string, cacheTTL time.Duration, logger *zap.Logger) *GoogleVerifier {
	fetcher := newJWKSFetcher(certsURL)
	return &GoogleVerifier{
		clientID: clientID,
		cache:    NewKeyCache(fetcher, cacheTTL, logger),
		logger:   logger,
	}
}

func (v *GoogleVerifier) Authenticate(ctx context.Context, tokenString string) (*UserInfo, error) {
	keys, err := v.cache.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch signing keys: %w", err)
	}

	token, err := jwt.Parse(
		tokenString,
		func(token *jwt.Token) (interface{}, error) {
			kid, _ := token.Header["kid"].(string)
			key, ok := keys[kid]
			if !ok {
				return nil, fmt.Errorf("unknown key id %q", kid)
			}
			return key, nil
		},
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithAudience(v.clientID),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		v.logger.Warn("Token verification failed", zap.Error(err))
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	issuer, _ := claims.GetIssuer()
	if issuer != "https://accounts.google.com" && issuer != "accounts.google.com" {
		v.logger.Warn("Token issuer is not Google", zap.String("issuer", issuer))
		return nil, ErrInvalidToken
	}

	info := &UserInfo{
		UserID:        stringClaim(claims, "sub"),
		Email:         stringClaim(claims, "email"),
		Name:          stringClaim(claims, "name"),
		Picture:       stringClaim(claims, "picture"),
		EmailVerified: boolClaim(claims, "email_verified"),
	}
	v.logger.Info("Authenticated user", zap.String("email", info.Email))
	return info, nil
}

// InvalidateKeys drops the cached signing keys, forcing a refetch on
// the next verification.
func (v *GoogleVerifier) InvalidateKeys() {
	v.cache.Invalidate()
}

func stringClaim(claims jwt.MapClaims, name string) string {
	value, _ := claims[name].(string)
	return value
}

func boolClaim(claims jwt.MapClaims, name string) bool {
	value, _ := claims[name].(bool)
	return value
}

type jwksDocument struct {
	Keys []struct {
		Kid string `json:"kid"`
		Kty string `json:"kty"`
		N   string `json:"n"`
		E   string `json:"e"`
	} `json:"keys"`
}

// newJWKSFetcher builds a KeyFetcher that downloads a JWK set and
// converts its RSA entries to public keys.
func newJWKSFetcher(certsURL string) KeyFetcher {
	httpClient := &http.Client{Timeout: 10 * time.Second}

	return func(ctx context.Context) (map[string]*rsa.PublicKey, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, certsURL, nil)
		if err != nil {
			return nil, err
		}

		resp, err := httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch signing keys: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status %d fetching signing keys", resp.StatusCode)
		}

		var doc jwksDocument
		if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode key set: %w", err)
		}

		keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
		for _, key := range doc.Keys {
			if key.Kty != "RSA" || key.Kid == "" {
				continue
			}
			publicKey, err := parseRSAKey(key.N, key.E)
			if err != nil {
				return nil, fmt.Errorf("failed to parse key %s: %w", key.Kid, err)
			}
			keys[key.Kid] = publicKey
		}
		if len(keys) == 0 {
			return nil, errors.New("key set contained no usable RSA keys")
		}
		return keys, nil
	}
}

func parseRSAKey(modulus, exponent string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(modulus)
	if err != nil {
		return nil, err
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(exponent)
	if err != nil {
		return nil, err
	}

	e := 0
	for _, b := range eBytes {
		e = e<<8 | int(b)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: e,
	}, nil
}
