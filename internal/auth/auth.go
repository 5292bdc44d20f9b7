package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"github.com/tjfontaine/kudospace/internal/kudos"
)

// User is a configured user and the hash of their API key.
type User struct {
	ID          string
	DisplayName string
	Email       string
	AvatarURL   string
	KeyHash     string
}

// Identity returns the profile bootstrap data for u.
func (u *User) Identity() kudos.Identity {
	return kudos.Identity{
		ID:        u.ID,
		FullName:  u.DisplayName,
		Email:     u.Email,
		AvatarURL: u.AvatarURL,
	}
}

// Authenticator validates API keys and resolves the user they belong to
type Authenticator struct {
	users map[string]*User // keyhash -> user
}

// NewAuthenticator creates a new authenticator. Users without a key hash
// cannot authenticate.
func NewAuthenticator(users []*User) *Authenticator {
	auth := &Authenticator{
		users: make(map[string]*User),
	}

	for _, u := range users {
		if u.KeyHash == "" {
			continue
		}
		auth.users[strings.ToLower(u.KeyHash)] = u
	}

	return auth
}

// ValidateAPIKey validates an API key and returns the associated user
func (a *Authenticator) ValidateAPIKey(apiKey string) (*User, error) {
	keyHash := HashAPIKey(apiKey)

	u, ok := a.users[keyHash]
	if !ok {
		return nil, fmt.Errorf("invalid API key")
	}

	// Constant-time comparison to prevent timing attacks
	if subtle.ConstantTimeCompare([]byte(keyHash), []byte(strings.ToLower(u.KeyHash))) != 1 {
		return nil, fmt.Errorf("invalid API key")
	}

	return u, nil
}

// Users returns the configured users.
func (a *Authenticator) Users() []*User {
	users := make([]*User, 0, len(a.users))
	for _, u := range a.users {
		users = append(users, u)
	}
	return users
}

// ExtractAPIKey extracts the API key from the Authorization header
func ExtractAPIKey(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", fmt.Errorf("missing Authorization header")
	}

	// Support "Bearer <key>" format
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid Authorization header format")
	}

	if strings.ToLower(parts[0]) != "bearer" {
		return "", fmt.Errorf("unsupported authorization scheme")
	}

	return strings.TrimSpace(parts[1]), nil
}

// HashAPIKey creates a SHA-256 hash of an API key for storage
func HashAPIKey(apiKey string) string {
	hash := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(hash[:])
}
