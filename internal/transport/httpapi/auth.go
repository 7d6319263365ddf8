package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vladislavdragonenkov/hotel-booking/internal/domain"
)

const defaultTokenLeeway = 30 * time.Second

var errMissingToken = errors.New("missing bearer token")

type actorKey struct{}

// Claims — полезная нагрузка access-токена: sub и role.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator проверяет HS256 Bearer-токены. Токены выпускает внешний
// identity-провайдер, Sign нужен для тестов и локальной отладки.
type Authenticator struct {
	secret []byte
	issuer string
	leeway time.Duration
	now    func() time.Time
}

// AuthOption настраивает Authenticator.
type AuthOption func(*Authenticator)

// WithIssuer требует совпадения claim iss.
func WithIssuer(issuer string) AuthOption {
	return func(a *Authenticator) { a.issuer = issuer }
}

// WithAuthClock подменяет время проверки exp.
func WithAuthClock(now func() time.Time) AuthOption {
	return func(a *Authenticator) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAuthenticator создаёт проверку токенов с общим секретом.
func NewAuthenticator(secret []byte, opts ...AuthOption) *Authenticator {
	a := &Authenticator{
		secret: secret,
		leeway: defaultTokenLeeway,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Parse проверяет подпись и сроки токена и возвращает актора.
func (a *Authenticator) Parse(raw string) (domain.Actor, error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(a.leeway),
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(a.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, parserOpts...)
	if err != nil {
		return domain.Actor{}, err
	}
	if !token.Valid {
		return domain.Actor{}, jwt.ErrTokenSignatureInvalid
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, fmt.Errorf("%w: sub", jwt.ErrTokenRequiredClaimMissing)
	}
	role := domain.Role(claims.Role)
	if role == "" {
		role = domain.RoleUser
	}
	return domain.Actor{UserID: sub, Role: role}, nil
}

// Sign выпускает токен для пользователя.
func (a *Authenticator) Sign(userID string, role domain.Role, ttl time.Duration) (string, error) {
	now := a.now()
	claims := Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Middleware кладёт актора из Authorization: Bearer в контекст запроса.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := bearerToken(r)
		if err != nil {
			writeProblem(w, http.StatusUnauthorized, "unauthenticated", err.Error())
			return
		}
		actor, err := a.Parse(raw)
		if err != nil {
			writeProblem(w, http.StatusUnauthorized, "invalid_token", "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

// RequireStaff пропускает только admin и receptionist.
func RequireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := ActorFrom(r.Context())
		if !ok {
			writeProblem(w, http.StatusUnauthorized, "unauthenticated", errMissingToken.Error())
			return
		}
		if !actor.IsStaff() {
			writeProblem(w, http.StatusForbidden, "forbidden", "staff role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WithActor сохраняет актора в контексте.
func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom достаёт актора, положенного Middleware.
func ActorFrom(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(domain.Actor)
	return actor, ok
}

func bearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", errMissingToken
	}
	return strings.TrimSpace(header[len(prefix):]), nil
}
