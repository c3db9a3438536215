package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDetectLocale(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		lookup  CountryLookup
		want    string
	}{
		{
			name:    "explicit header wins",
			headers: map[string]string{"X-Locale": "id-ID", "Accept-Language": "en-US"},
			want:    "id",
		},
		{
			name:    "accept language matched",
			headers: map[string]string{"Accept-Language": "id-ID,id;q=0.9,en;q=0.5"},
			want:    "id",
		},
		{
			name:    "unsupported language falls back to english",
			headers: map[string]string{"Accept-Language": "fr-FR,fr;q=0.9"},
			want:    "en",
		},
		{
			name:   "geoip country id",
			lookup: func(ip string) (string, error) { return "ID", nil },
			want:   "id",
		},
		{
			name: "nothing resolvable defaults to english",
			want: "en",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = "203.0.113.1:1234"
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			if got := detectLocale(req, "en", tc.lookup); got != tc.want {
				t.Fatalf("detectLocale() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestLocaleMiddlewareStoresLocale(t *testing.T) {
	var got string
	handler := Locale("en", nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = LocaleFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Locale", "id")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if got != "id" {
		t.Fatalf("locale in context = %q, want id", got)
	}
}
