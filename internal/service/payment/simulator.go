package payment

import (
	"context"
	"crypto/rand"
	"time"

	"github.com/vladislavdragonenkov/hotel-booking/internal/domain"
)

// Сообщения отказа для принудительно отклонённых платежей.
const (
	DeclineYape = "Yape payment rejected by the user"
	DeclineCard = "card declined by the issuing bank"
)

// SimulatorOption настраивает Simulator.
type SimulatorOption func(*Simulator)

// WithLatency задаёт искусственную задержку ответа провайдера для способа оплаты.
func WithLatency(method domain.PaymentMethod, d time.Duration) SimulatorOption {
	return func(s *Simulator) {
		if d >= 0 {
			s.latency[method] = d
		}
	}
}

// Simulator эмулирует платёжных провайдеров Yape и карт.
// Всегда подтверждает платёж, если отказ не запрошен явно.
type Simulator struct {
	latency map[domain.PaymentMethod]time.Duration
}

// NewSimulator создаёт эмулятор без задержек.
func NewSimulator(opts ...SimulatorOption) *Simulator {
	s := &Simulator{latency: make(map[domain.PaymentMethod]time.Duration)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Settle возвращает исход оплаты для платежа p.
func (s *Simulator) Settle(ctx context.Context, p domain.Payment, forceFailure bool) (domain.SettlementOutcome, error) {
	if !p.Method.Valid() {
		return domain.SettlementOutcome{}, domain.ErrPaymentMethodInvalid
	}

	if d := s.latency[p.Method]; d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return domain.SettlementOutcome{}, ctx.Err()
		case <-timer.C:
		}
	}

	if forceFailure {
		msg := DeclineCard
		if p.Method == domain.PaymentMethodYape {
			msg = DeclineYape
		}
		return domain.SettlementOutcome{Success: false, ErrorMessage: msg}, nil
	}

	code := "AUTH" + randomCode(6)
	if p.Method == domain.PaymentMethodYape {
		code = "YAPE" + randomCode(8)
	}
	return domain.SettlementOutcome{Success: true, AuthorizationCode: code}, nil
}

// randomCode возвращает n случайных символов из A-Z и 2-7.
func randomCode(n int) string {
	var code string
	for len(code) < n {
		code += rand.Text()
	}
	return code[:n]
}

var _ domain.SettlementGateway = (*Simulator)(nil)
