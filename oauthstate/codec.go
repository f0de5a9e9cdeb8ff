// Package oauthstate mints and validates the signed, stateless tokens
// that carry OAuth round-trip context through the provider redirect.
package oauthstate

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/notewire/integrations/models"
)

// DefaultMaxAge bounds how long a minted state survives the redirect
// round-trip.
const DefaultMaxAge = 30 * time.Minute

// Codec signs and verifies state tokens with a process-wide secret.
// No server-side session store is involved; everything the callback
// needs rides inside the token.
type Codec struct {
	secret []byte
	now    func() time.Time
}

func New(secret []byte) (*Codec, error) {
	if len(secret) == 0 {
		return nil, &models.ConfigurationError{Field: "oauth state signing secret"}
	}

	return &Codec{secret: secret, now: time.Now}, nil
}

// Generate serializes the state payload with a fresh nonce and returns
// base64url(payload) + "." + base64url(signature).
func (c *Codec) Generate(organizationID, providerName, redirectURL string, extra map[string]string) (string, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	state := models.OAuthState{
		OrganizationID: organizationID,
		Provider:       providerName,
		Nonce:          hex.EncodeToString(nonce),
		IssuedAt:       c.now().UnixMilli(),
		RedirectURL:    redirectURL,
		Extra:          extra,
	}

	payload, err := json.Marshal(state)
	if err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(payload) + "." + c.sign(payload), nil
}

// Validate verifies the signature in constant time, checks the token
// age against maxAge and requires all mandatory fields. Every failure
// mode returns the same opaque ErrInvalidState so forged tokens learn
// nothing from the error.
func (c *Codec) Validate(token string, maxAge time.Duration) (*models.OAuthState, error) {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}

	encoded, sig, found := strings.Cut(token, ".")
	if !found || encoded == "" || sig == "" {
		return nil, models.ErrInvalidState
	}

	payload, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, models.ErrInvalidState
	}

	if !hmac.Equal([]byte(c.sign(payload)), []byte(sig)) {
		return nil, models.ErrInvalidState
	}

	var state models.OAuthState
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, models.ErrInvalidState
	}

	if state.OrganizationID == "" || state.Provider == "" || state.Nonce == "" || state.IssuedAt == 0 {
		return nil, models.ErrInvalidState
	}

	issued := time.UnixMilli(state.IssuedAt)
	if c.now().Sub(issued) > maxAge || issued.After(c.now().Add(time.Minute)) {
		return nil, models.ErrInvalidState
	}

	return &state, nil
}

func (c *Codec) sign(payload []byte) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write(payload)

	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
