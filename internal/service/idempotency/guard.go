package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/hotel-booking/internal/domain"
)

// DefaultTTL задаёт время жизни сохранённого ответа.
const DefaultTTL = 24 * time.Hour

// Response — ответ обработчика, который сохраняется под ключом.
type Response struct {
	Status   int
	Body     []byte
	Replayed bool
}

// Guard выполняет обработчик не более одного раза на пару (scope, key).
type Guard struct {
	repo   domain.IdempotencyRepository
	ttl    time.Duration
	now    func() time.Time
	logger *log.Entry
}

// GuardOption настраивает Guard.
type GuardOption func(*Guard)

// WithTTL задаёт время жизни ключа.
func WithTTL(ttl time.Duration) GuardOption {
	return func(g *Guard) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithGuardClock подменяет источник времени.
func WithGuardClock(now func() time.Time) GuardOption {
	return func(g *Guard) {
		if now != nil {
			g.now = now
		}
	}
}

// WithGuardLogger задаёт logger.
func WithGuardLogger(logger *log.Entry) GuardOption {
	return func(g *Guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGuard создаёт Guard поверх репозитория ключей.
func NewGuard(repo domain.IdempotencyRepository, opts ...GuardOption) *Guard {
	g := &Guard{
		repo:   repo,
		ttl:    DefaultTTL,
		now:    time.Now,
		logger: log.WithField("component", "idempotency"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Execute запускает handler, если ключ новый, иначе возвращает сохранённый ответ.
// Повтор с другим телом даёт ErrIdempotencyHashMismatch, параллельный повтор
// во время обработки даёт ErrIdempotencyInProgress.
func (g *Guard) Execute(ctx context.Context, scope, key string, body []byte, handler func(context.Context) Response) (Response, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Response{}, domain.ErrIdempotencyKeyInvalid
	}
	storageKey := scope + ":" + key

	record, err := g.repo.CreateProcessing(ctx, storageKey, RequestHash(scope, body), g.now().UTC().Add(g.ttl))
	if err != nil {
		return g.replay(err, record)
	}

	resp := handler(ctx)
	if resp.Status == 0 {
		resp.Status = http.StatusOK
	}

	mark := g.repo.MarkDone
	if resp.Status >= http.StatusInternalServerError {
		mark = g.repo.MarkFailed
	}
	if err := mark(ctx, storageKey, resp.Body, resp.Status); err != nil {
		g.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store idempotent response")
	}
	return resp, nil
}

func (g *Guard) replay(createErr error, record domain.IdempotencyRecord) (Response, error) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		return Response{}, domain.ErrIdempotencyHashMismatch
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		switch record.Status {
		case domain.IdempotencyStatusDone, domain.IdempotencyStatusFailed:
			return Response{Status: record.HTTPStatus, Body: record.ResponseBody, Replayed: true}, nil
		case domain.IdempotencyStatusProcessing:
			return Response{}, domain.ErrIdempotencyInProgress
		default:
			return Response{}, fmt.Errorf("unknown idempotency record status %q", record.Status)
		}
	default:
		return Response{}, fmt.Errorf("create idempotency record: %w", createErr)
	}
}

// RequestHash считает отпечаток тела запроса в рамках scope.
func RequestHash(scope string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(scope))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
