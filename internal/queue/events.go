// Package queue publishes account events to RabbitMQ for out-of-process
// consumers such as the mailer.
package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EventAccountRegistered    = "account.registered"
	EventAccountStatusChanged = "account.status.changed"
	EventOTPRequested         = "auth.otp.requested"
)

// Event is the envelope written to every queue. The queue name equals Type.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

func NewEvent(eventType string, payload any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

func (e Event) encode() ([]byte, error) {
	return json.Marshal(e)
}

type AccountRegistered struct {
	UserID  uint   `json:"user_id"`
	Contact string `json:"contact"`
	Email   string `json:"email"`
	Area    string `json:"area"`
}

type AccountStatusChanged struct {
	UserID  uint   `json:"user_id"`
	From    string `json:"from"`
	To      string `json:"to"`
	ActorID uint   `json:"actor_id"`
}

// OTPRequested carries the code to the mailer; it is never logged here.
type OTPRequested struct {
	UserID    uint      `json:"user_id"`
	Contact   string    `json:"contact"`
	Email     string    `json:"email"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}
