package fakeapi

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	errInvalidToken        = errors.New("invalid access token")
	errRevokedToken        = errors.New("access token revoked")
	errUnknownRefreshToken = errors.New("unknown refresh token")
	errExpiredRefreshToken = errors.New("refresh token expired")
)

const refreshTokenLength = 32

// storedRefreshToken is the server-side record behind an opaque refresh token.
type storedRefreshToken struct {
	Token     string
	UserID    string
	Iat       time.Time
	ExpiresAt time.Time
}

// refreshTokenRepo keeps one refresh token per user; issuing a new one
// replaces the previous token.
type refreshTokenRepo struct {
	tokens  map[string]*storedRefreshToken
	userIDs map[string]string // user ID to token
	lock    sync.RWMutex
}

func newRefreshTokenRepo() *refreshTokenRepo {
	return &refreshTokenRepo{
		tokens:  make(map[string]*storedRefreshToken),
		userIDs: make(map[string]string),
	}
}

func (tr *refreshTokenRepo) Upsert(rt *storedRefreshToken) {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	if previous, ok := tr.userIDs[rt.UserID]; ok {
		delete(tr.tokens, previous)
	}
	tr.tokens[rt.Token] = rt
	tr.userIDs[rt.UserID] = rt.Token
}

func (tr *refreshTokenRepo) Delete(token string) bool {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	rt, ok := tr.tokens[token]
	if !ok {
		return false
	}
	delete(tr.userIDs, rt.UserID)
	delete(tr.tokens, token)
	return true
}

func (tr *refreshTokenRepo) Get(token string) (*storedRefreshToken, bool) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()
	rt, ok := tr.tokens[token]
	return rt, ok
}

func (tr *refreshTokenRepo) Clear() {
	tr.lock.Lock()
	defer tr.lock.Unlock()
	tr.tokens = make(map[string]*storedRefreshToken)
	tr.userIDs = make(map[string]string)
}

func (tr *refreshTokenRepo) List() []*storedRefreshToken {
	tr.lock.RLock()
	defer tr.lock.RUnlock()

	tokens := make([]*storedRefreshToken, 0, len(tr.tokens))
	for _, v := range tr.tokens {
		tokens = append(tokens, v)
	}
	sort.Slice(tokens, func(i, j int) bool {
		return tokens[i].Iat.Before(tokens[j].Iat)
	})
	return tokens
}

// revokedTokens is the set of access token ids that must be rejected even
// though their signature and expiry are valid.
type revokedTokens struct {
	revoked map[string]time.Time
	mu      sync.RWMutex
}

func newRevokedTokens() *revokedTokens {
	return &revokedTokens{
		revoked: make(map[string]time.Time),
	}
}

func (c *revokedTokens) Add(jti string, exp time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revoked[jti] = exp
}

func (c *revokedTokens) IsRevoked(jti string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, exists := c.revoked[jti]
	return exists
}

// Cleanup drops entries whose token has expired anyway.
func (c *revokedTokens) Cleanup(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for jti, exp := range c.revoked {
		if now.After(exp) {
			delete(c.revoked, jti)
		}
	}
}

// issuedTokens is the pair handed to a client.
type issuedTokens struct {
	IssuedAt              time.Time
	AccessToken           string
	RefreshToken          string
	AccessTokenExpiresAt  time.Time
	RefreshTokenExpiresAt time.Time
}

func (s *Server) issueTokens(userID string) (*issuedTokens, error) {
	now := s.nowFunc()
	jti := uuid.NewString()
	accessExp := now.Add(s.accessTTL)

	access, err := s.signer.Sign(jwt.MapClaims{
		"iss": s.issuerName,
		"sub": userID,
		"jti": jti,
		"iat": now.Unix(),
		"exp": accessExp.Unix(),
	})
	if err != nil {
		return nil, err
	}

	tokenBytes := make([]byte, refreshTokenLength)
	if _, err := rand.Read(tokenBytes); err != nil {
		return nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}
	stored := &storedRefreshToken{
		Token:     hex.EncodeToString(tokenBytes),
		UserID:    userID,
		Iat:       now,
		ExpiresAt: now.Add(s.refreshTTL),
	}
	s.refreshTokens.Upsert(stored)
	s.trackAccessToken(jti, accessExp)

	return &issuedTokens{
		IssuedAt:              now,
		AccessToken:           access,
		RefreshToken:          stored.Token,
		AccessTokenExpiresAt:  accessExp,
		RefreshTokenExpiresAt: stored.ExpiresAt,
	}, nil
}

// rotateRefreshToken consumes rt and issues a new pair for its user.
func (s *Server) rotateRefreshToken(rt string) (*issuedTokens, error) {
	stored, ok := s.refreshTokens.Get(rt)
	if !ok {
		return nil, errUnknownRefreshToken
	}
	if !s.nowFunc().Before(stored.ExpiresAt) {
		s.refreshTokens.Delete(rt)
		return nil, errExpiredRefreshToken
	}
	s.refreshTokens.Delete(rt)
	return s.issueTokens(stored.UserID)
}

// verifyAccessToken checks signature, expiry and revocation.
func (s *Server) verifyAccessToken(raw string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, s.signer.GetVerificationKey,
		jwt.WithValidMethods([]string{s.signer.GetSigningMethod().Alg()}),
		jwt.WithTimeFunc(s.nowFunc),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalidToken, err)
	}
	if jti, _ := claims["jti"].(string); jti != "" && s.revoked.IsRevoked(jti) {
		return nil, errRevokedToken
	}
	return claims, nil
}

func (s *Server) trackAccessToken(jti string, exp time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued[jti] = exp
}

func (s *Server) revokeAccessToken(raw string) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return
	}
	jti, _ := claims["jti"].(string)
	exp, err := claims.GetExpirationTime()
	if jti == "" || err != nil || exp == nil {
		return
	}
	s.revoked.Add(jti, exp.Time)
}
