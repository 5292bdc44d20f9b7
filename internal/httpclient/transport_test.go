package httpclient

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNew_LoopbackPeer(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer upstream.Close()

	tests := []struct {
		name    string
		opts    Options
		wantErr string
	}{
		{name: "allowed by default", opts: Options{}},
		{name: "denied", opts: Options{DenyPrivate: true}, wantErr: "access to private IP"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := New(tt.opts).Get(upstream.URL)
			if tt.wantErr != "" {
				if err == nil {
					resp.Body.Close()
					t.Fatal("expected error, got nil")
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("error = %v, want substring %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusNoContent {
				t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNoContent)
			}
		})
	}
}

func TestNewTransport_DialTimeoutDefault(t *testing.T) {
	if tr := NewTransport(Options{}); tr.DialContext == nil {
		t.Fatal("DialContext not set")
	}
}
