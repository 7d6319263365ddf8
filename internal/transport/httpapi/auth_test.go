package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/hotel-booking/internal/domain"
)

func fixedNow() time.Time { return time.Date(2025, 1, 5, 12, 0, 0, 0, time.UTC) }

func TestAuthenticator_SignAndParse(t *testing.T) {
	auth := NewAuthenticator([]byte("secret"), WithIssuer("hotel"), WithAuthClock(fixedNow))

	tok, err := auth.Sign("user-1", domain.RoleReceptionist, time.Hour)
	require.NoError(t, err)

	actor, err := auth.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, domain.Actor{UserID: "user-1", Role: domain.RoleReceptionist}, actor)
	assert.True(t, actor.IsStaff())
}

func TestAuthenticator_DefaultRole(t *testing.T) {
	auth := NewAuthenticator([]byte("secret"), WithAuthClock(fixedNow))
	tok, err := auth.Sign("user-1", "", time.Hour)
	require.NoError(t, err)

	actor, err := auth.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, actor.Role)
}

func TestAuthenticator_Rejects(t *testing.T) {
	auth := NewAuthenticator([]byte("secret"), WithIssuer("hotel"), WithAuthClock(fixedNow))

	sign := func(secret string, method jwt.SigningMethod, claims Claims) string {
		t.Helper()
		tok, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
		require.NoError(t, err)
		return tok
	}
	valid := func() Claims {
		return Claims{RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    "hotel",
			ExpiresAt: jwt.NewNumericDate(fixedNow().Add(time.Hour)),
		}}
	}

	expired := valid()
	expired.ExpiresAt = jwt.NewNumericDate(fixedNow().Add(-time.Minute))
	noExp := valid()
	noExp.ExpiresAt = nil
	noSub := valid()
	noSub.Subject = ""
	otherIssuer := valid()
	otherIssuer.Issuer = "elsewhere"
	withinLeeway := valid()
	withinLeeway.ExpiresAt = jwt.NewNumericDate(fixedNow().Add(-10 * time.Second))

	cases := []struct {
		name  string
		token string
		err   error
	}{
		{"expired", sign("secret", jwt.SigningMethodHS256, expired), jwt.ErrTokenExpired},
		{"missing exp", sign("secret", jwt.SigningMethodHS256, noExp), jwt.ErrTokenRequiredClaimMissing},
		{"missing sub", sign("secret", jwt.SigningMethodHS256, noSub), jwt.ErrTokenRequiredClaimMissing},
		{"wrong issuer", sign("secret", jwt.SigningMethodHS256, otherIssuer), jwt.ErrTokenInvalidIssuer},
		{"wrong secret", sign("other", jwt.SigningMethodHS256, valid()), jwt.ErrTokenSignatureInvalid},
		{"wrong alg", sign("secret", jwt.SigningMethodHS512, valid()), jwt.ErrTokenSignatureInvalid},
		{"garbage", "abc.def.ghi", jwt.ErrTokenMalformed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := auth.Parse(tc.token)
			assert.ErrorIs(t, err, tc.err)
		})
	}

	_, err := auth.Parse(sign("secret", jwt.SigningMethodHS256, withinLeeway))
	assert.NoError(t, err)
}

func TestBearerToken(t *testing.T) {
	cases := map[string]struct {
		header string
		want   string
		ok     bool
	}{
		"valid":       {header: "Bearer abc", want: "abc", ok: true},
		"lowercase":   {header: "bearer abc", want: "abc", ok: true},
		"empty":       {header: "", ok: false},
		"only scheme": {header: "Bearer ", ok: false},
		"basic":       {header: "Basic abc", ok: false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.Header.Set("Authorization", tc.header)
			got, err := bearerToken(r)
			if !tc.ok {
				assert.ErrorIs(t, err, errMissingToken)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestRequireStaff(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })
	h := RequireStaff(next)

	cases := []struct {
		name   string
		ctx    context.Context
		status int
	}{
		{"no actor", context.Background(), http.StatusUnauthorized},
		{"user", WithActor(context.Background(), domain.Actor{UserID: "u", Role: domain.RoleUser}), http.StatusForbidden},
		{"admin", WithActor(context.Background(), domain.Actor{UserID: "a", Role: domain.RoleAdmin}), http.StatusTeapot},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil).WithContext(tc.ctx))
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
		known  bool
	}{
		{"wrapped invalid", fmt.Errorf("%w: %w", domain.ErrInvalidInput, domain.ErrDatesInvalid), http.StatusBadRequest, "invalid_input", true},
		{"declined", fmt.Errorf("%w: %s", domain.ErrPaymentDeclined, "insufficient funds"), http.StatusPaymentRequired, "payment_declined", true},
		{"expired", domain.ErrReservationExpired, http.StatusGone, "reservation_expired", true},
		{"compensated", fmt.Errorf("%w: boom", domain.ErrReservationUpdateFailed), http.StatusInternalServerError, "reservation_update_failed", true},
		{"hash mismatch", domain.ErrIdempotencyHashMismatch, http.StatusUnprocessableEntity, "idempotency_key_reused", true},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, code, known := classify(tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.code, code)
			assert.Equal(t, tc.known, known)
		})
	}
}
