package auth

import (
	"net/http"
	"strings"
	"testing"
)

func TestHashAPIKey(t *testing.T) {
	tests := []struct {
		name     string
		apiKey   string
		expected string
	}{
		{
			name:     "simple key",
			apiKey:   "test-key-123",
			expected: "625faa3fbbc3d2bd9d6ee7678d04cc5339cb33dc68d9b58451853d60046e226a",
		},
		{
			name:     "empty key",
			apiKey:   "",
			expected: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash := HashAPIKey(tt.apiKey)
			if hash != tt.expected {
				t.Errorf("HashAPIKey() = %v, want %v", hash, tt.expected)
			}
		})
	}
}

func TestAuthenticator_ValidateAPIKey(t *testing.T) {
	alice := &User{ID: "alice", DisplayName: "Alice", KeyHash: HashAPIKey("alice-key")}
	bob := &User{ID: "bob", DisplayName: "Bob", KeyHash: strings.ToUpper(HashAPIKey("bob-key"))}
	nokey := &User{ID: "carol", DisplayName: "Carol"}

	auth := NewAuthenticator([]*User{alice, bob, nokey})

	tests := []struct {
		name    string
		apiKey  string
		want    string
		wantErr bool
	}{
		{name: "valid key", apiKey: "alice-key", want: "alice"},
		{name: "uppercase stored hash", apiKey: "bob-key", want: "bob"},
		{name: "invalid key", apiKey: "nope", wantErr: true},
		{name: "empty key", apiKey: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := auth.ValidateAPIKey(tt.apiKey)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateAPIKey() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && u.ID != tt.want {
				t.Errorf("ValidateAPIKey() user = %v, want %v", u.ID, tt.want)
			}
		})
	}

	if got := len(auth.Users()); got != 2 {
		t.Errorf("Users() len = %v, want 2", got)
	}
}

func TestExtractAPIKey(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{name: "bearer", header: "Bearer abc", want: "abc"},
		{name: "lowercase scheme", header: "bearer abc", want: "abc"},
		{name: "missing", header: "", wantErr: true},
		{name: "no scheme", header: "abc", wantErr: true},
		{name: "basic", header: "Basic abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := http.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			got, err := ExtractAPIKey(r)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ExtractAPIKey() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ExtractAPIKey() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUser_Identity(t *testing.T) {
	u := &User{ID: "alice", DisplayName: "Alice L", Email: "alice@example.com"}
	id := u.Identity()
	if id.DisplayName() != "Alice L" {
		t.Errorf("Identity().DisplayName() = %v, want Alice L", id.DisplayName())
	}
	if id.Email != "alice@example.com" {
		t.Errorf("Identity().Email = %v, want alice@example.com", id.Email)
	}
}
