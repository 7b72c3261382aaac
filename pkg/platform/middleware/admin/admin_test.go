package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(h http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/admin/audit", nil)
	if token != "" {
		req.Header.Set(TokenHeader, token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRequireToken(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	guarded := RequireToken("secret")(ok)

	tests := []struct {
		name    string
		handler http.Handler
		token   string
		status  int
		code    string
	}{
		{"matching token passes", guarded, "secret", http.StatusNoContent, ""},
		{"missing token", guarded, "", http.StatusUnauthorized, "unauthorized"},
		{"wrong token", guarded, "guess", http.StatusUnauthorized, "unauthorized"},
		{"no configured token disables routes", RequireToken("")(ok), "secret", http.StatusForbidden, "forbidden"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(tt.handler, tt.token)
			assert.Equal(t, tt.status, rec.Code)
			if tt.code == "" {
				return
			}
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body["error"])
			assert.NotEmpty(t, body["error_description"])
		})
	}
}
