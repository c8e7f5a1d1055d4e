package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// TimestampLayout — формат created_at в журнале заявок
const TimestampLayout = "2006-01-02 15:04:05"

var ErrInvalidLead = errors.New("invalid lead")

var validate = validator.New()

// Timestamp хранит время с точностью до секунды и сериализуется как "2006-01-02 15:04:05".
type Timestamp struct {
	time.Time
}

func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.Truncate(time.Second)}
}

func (t Timestamp) String() string {
	if t.IsZero() {
		return ""
	}
	return t.Format(TimestampLayout)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	if raw == "" || raw == "null" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := time.ParseInLocation(TimestampLayout, raw, time.Local)
	if err != nil {
		parsed, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return fmt.Errorf("parse created_at %q: %w", raw, err)
		}
	}
	t.Time = parsed
	return nil
}

// Requester — кто оставил заявку. ID == 0 означает, что транспорт его не передал.
type Requester struct {
	ID     int64
	Handle string
}

// Lead — завершённая заявка. Создаётся только через NewLead.
type Lead struct {
	CreatedAt       Timestamp `json:"created_at"`
	Service         string    `json:"service" validate:"required"`
	Name            string    `json:"name" validate:"required"`
	City            string    `json:"city" validate:"required"`
	Contact         string    `json:"contact" validate:"required"`
	Details         string    `json:"details" validate:"required"`
	RequesterID     *int64    `json:"tg_id"`
	RequesterHandle string    `json:"username,omitempty"`
}

func NewLead(createdAt time.Time, service Service, name, city, contact, details string, requester Requester) (Lead, error) {
	lead := Lead{
		CreatedAt:       NewTimestamp(createdAt),
		Service:         strings.TrimSpace(service.Label),
		Name:            strings.TrimSpace(name),
		City:            strings.TrimSpace(city),
		Contact:         strings.TrimSpace(contact),
		Details:         strings.TrimSpace(details),
		RequesterHandle: strings.TrimPrefix(strings.TrimSpace(requester.Handle), "@"),
	}
	if requester.ID != 0 {
		id := requester.ID
		lead.RequesterID = &id
	}
	if err := validate.Struct(lead); err != nil {
		return Lead{}, fmt.Errorf("%w: %v", ErrInvalidLead, err)
	}
	return lead, nil
}

type LeadRepository interface {
	Append(ctx context.Context, lead Lead) error
	LastN(ctx context.Context, limit int) ([]Lead, error)
}
