package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestJWTRoundTrip(t *testing.T) {
	token, err := SignJWT("secret", TokenClaims{
		Sub:      "user-1",
		Locale:   "id",
		Exp:      time.Now().Add(time.Hour).Unix(),
		Issuer:   TokenIssuer,
		Audience: TokenAudience,
	})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	claims, err := VerifyJWT("secret", token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Sub != "user-1" || claims.Locale != "id" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifyJWTRejections(t *testing.T) {
	valid := TokenClaims{Sub: "u", Exp: time.Now().Add(time.Hour).Unix(), Issuer: TokenIssuer, Audience: TokenAudience}

	expired := valid
	expired.Exp = time.Now().Add(-time.Minute).Unix()
	wrongIssuer := valid
	wrongIssuer.Issuer = "someone-else"

	cases := []struct {
		name   string
		secret string
		claims TokenClaims
	}{
		{name: "wrong secret", secret: "other", claims: valid},
		{name: "expired", secret: "secret", claims: expired},
		{name: "wrong issuer", secret: "secret", claims: wrongIssuer},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			token, err := SignJWT("secret", tc.claims)
			if err != nil {
				t.Fatalf("sign: %v", err)
			}
			verifySecret := "secret"
			if tc.secret != "secret" {
				verifySecret = tc.secret
			}
			if _, err := VerifyJWT(verifySecret, token); err == nil {
				t.Fatal("expected verification to fail")
			}
		})
	}
}

func TestAuthJWTMiddleware(t *testing.T) {
	token, _ := SignJWT("secret", TokenClaims{Sub: "user-1", Exp: time.Now().Add(time.Hour).Unix(), Issuer: TokenIssuer, Audience: TokenAudience})

	var gotUser string
	handler := AuthJWT("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = UserIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || gotUser != "user-1" {
		t.Fatalf("authorized request: code=%d user=%q", rec.Code, gotUser)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/me", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token must 401, got %d", rec.Code)
	}
}
