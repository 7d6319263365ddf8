package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/hotel-booking/internal/domain"
	"github.com/vladislavdragonenkov/hotel-booking/internal/messaging"
)

// Receipt — готовая квитанция для вложения в письмо.
type Receipt struct {
	Number        string
	ReservationID string
	ContentType   string
	Body          []byte
}

// ReceiptRenderer формирует квитанцию по событию подтверждения.
type ReceiptRenderer interface {
	Render(ctx context.Context, event messaging.ReservationConfirmed) (Receipt, error)
}

// Mailer отправляет письмо с квитанцией пользователю.
type Mailer interface {
	Send(ctx context.Context, userID, subject string, receipt Receipt) error
}

var receiptTemplate = template.Must(template.New("receipt").Parse(`Reservation receipt {{.Number}}
Reservation: {{.Event.ReservationID}}
Room: {{.Event.RoomID}}
Stay: {{.Event.CheckIn}} - {{.Event.CheckOut}} ({{.Event.Nights}} nights, {{.Event.Guests}} guests)
Total: {{.Total}} {{.Event.Currency}}
Confirmed at: {{.Event.ConfirmedAt.Format "2006-01-02 15:04:05 MST"}}
`))

// TextRenderer формирует квитанцию в виде простого текста.
type TextRenderer struct{}

// Render реализует ReceiptRenderer.
func (TextRenderer) Render(_ context.Context, event messaging.ReservationConfirmed) (Receipt, error) {
	number := ReceiptNumber(event.ReservationID)

	var buf bytes.Buffer
	err := receiptTemplate.Execute(&buf, struct {
		Number string
		Total  string
		Event  messaging.ReservationConfirmed
	}{
		Number: number,
		Total:  FormatMinor(event.TotalMinor),
		Event:  event,
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("render receipt: %w", err)
	}

	return Receipt{
		Number:        number,
		ReservationID: event.ReservationID,
		ContentType:   "text/plain; charset=utf-8",
		Body:          buf.Bytes(),
	}, nil
}

// ReceiptNumber строит номер квитанции из идентификатора брони.
func ReceiptNumber(reservationID string) string {
	id := strings.ToUpper(strings.ReplaceAll(reservationID, "-", ""))
	if len(id) > 12 {
		id = id[:12]
	}
	return "RCPT-" + id
}

// FormatMinor печатает сумму в минорных единицах как 123.45.
func FormatMinor(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}

// LogMailer пишет письма в лог вместо отправки.
type LogMailer struct {
	logger *log.Entry
}

// NewLogMailer создаёт LogMailer.
func NewLogMailer(logger *log.Entry) *LogMailer {
	if logger == nil {
		logger = log.WithField("component", "log-mailer")
	}
	return &LogMailer{logger: logger}
}

// Send реализует Mailer.
func (m *LogMailer) Send(_ context.Context, userID, subject string, receipt Receipt) error {
	m.logger.WithFields(log.Fields{
		"user_id":        userID,
		"subject":        subject,
		"receipt_number": receipt.Number,
		"bytes":          len(receipt.Body),
	}).Info("confirmation email sent")
	return nil
}

// ErrPoisonMessage — сообщение невозможно обработать, повтор бессмысленен.
var ErrPoisonMessage = errors.New("poison message")

// Handler обрабатывает события reservation.confirmed из брокера.
type Handler struct {
	renderer ReceiptRenderer
	mailer   Mailer
	logger   *log.Entry
}

// NewHandler создаёт Handler.
func NewHandler(renderer ReceiptRenderer, mailer Mailer, logger *log.Entry) *Handler {
	if logger == nil {
		logger = log.WithField("component", "confirmation-handler")
	}
	return &Handler{renderer: renderer, mailer: mailer, logger: logger}
}

// Handle разбирает конверт и отправляет квитанцию. События других типов пропускаются.
func (h *Handler) Handle(ctx context.Context, body []byte) error {
	env, err := messaging.ParseEnvelope(body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPoisonMessage, err)
	}
	event, err := messaging.DecodeReservationConfirmed(env)
	if err != nil {
		if env.EventType != "" && env.EventType != domain.EventReservationConfirmed {
			h.logger.WithField("event_type", env.EventType).Debug("skipping event")
			return nil
		}
		return fmt.Errorf("%w: %v", ErrPoisonMessage, err)
	}

	receipt, err := h.renderer.Render(ctx, event)
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("Reservation %s confirmed", receipt.Number)
	if err := h.mailer.Send(ctx, event.UserID, subject, receipt); err != nil {
		return fmt.Errorf("send confirmation email: %w", err)
	}

	h.logger.WithFields(log.Fields{
		"reservation_id": event.ReservationID,
		"receipt_number": receipt.Number,
	}).Info("confirmation delivered")
	return nil
}
