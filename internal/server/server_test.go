package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jackzampolin/skim/internal/home"
)

func newUnstartedServer(t *testing.T) *Server {
	t.Helper()
	dir, err := home.New(t.TempDir())
	if err != nil {
		t.Fatalf("home.New() error = %v", err)
	}
	srv, err := New(Config{Home: dir})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv
}

func TestNew_RequiresHome(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("New() without home succeeded, want error")
	}
}

func TestNew_DefaultAddress(t *testing.T) {
	srv := newUnstartedServer(t)
	if got := srv.Addr(); got != "127.0.0.1:8080" {
		t.Errorf("Addr() = %q, want 127.0.0.1:8080", got)
	}
	if srv.IsRunning() {
		t.Error("IsRunning() = true before Start")
	}
}

func TestRequireInit_BeforeStart(t *testing.T) {
	srv := newUnstartedServer(t)
	handler := srv.httpServer.Handler

	tests := []struct {
		path string
		want int
	}{
		{"/health", http.StatusOK},
		{"/", http.StatusOK},
		{"/settings", http.StatusOK},
		{"/ready", http.StatusServiceUnavailable},
		{"/books", http.StatusServiceUnavailable},
		{"/summary/x_pdf_00000000", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest("GET", tt.path, nil))
			if rec.Code != tt.want {
				t.Errorf("GET %s = %d, want %d (%s)", tt.path, rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestCORS(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name        string
		origins     []string
		method      string
		origin      string
		preflight   bool
		wantCode    int
		wantAllowed string
	}{
		{"allowed origin", []string{"http://localhost:5173"}, "GET", "http://localhost:5173", false, http.StatusOK, "http://localhost:5173"},
		{"other origin", []string{"http://localhost:5173"}, "GET", "http://evil.example", false, http.StatusOK, ""},
		{"no origin", []string{"http://localhost:5173"}, "GET", "", false, http.StatusOK, ""},
		{"wildcard", []string{"*"}, "GET", "http://anything.example", false, http.StatusOK, "http://anything.example"},
		{"preflight", []string{"http://localhost:5173"}, "OPTIONS", "http://localhost:5173", true, http.StatusNoContent, "http://localhost:5173"},
		{"preflight from other origin", []string{"http://localhost:5173"}, "OPTIONS", "http://evil.example", true, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/books", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", "DELETE")
				req.Header.Set("Access-Control-Request-Headers", "Content-Type")
			}
			rec := httptest.NewRecorder()
			withCORS(tt.origins, ok).ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllowed {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantAllowed)
			}
			if tt.wantAllowed != "" && rec.Header().Get("Access-Control-Allow-Credentials") != "true" {
				t.Error("Allow-Credentials not set")
			}
			if tt.preflight && tt.wantAllowed != "" {
				if got := rec.Header().Get("Access-Control-Allow-Headers"); got != "Content-Type" {
					t.Errorf("Allow-Headers = %q, want Content-Type", got)
				}
			}
		})
	}
}
