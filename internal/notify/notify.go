// Package notify publishes notification jobs and renders them into mail.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	netmail "net/mail"
	"strings"
	"text/template"
	"time"

	"github.com/mmynk/meetapp/internal/mail"
	"github.com/mmynk/meetapp/internal/metrics"
	"github.com/mmynk/meetapp/internal/models"
	"github.com/mmynk/meetapp/internal/queue"
)

// SubscriptionMailKey is the queue carrying new-subscription notices for
// meetup organizers.
const SubscriptionMailKey = "SubscriptionMail"

// Person identifies a user in a notification.
type Person struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// MeetupSummary describes the meetup in a notification.
type MeetupSummary struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Location string    `json:"location"`
	Date     time.Time `json:"date"`
}

// SubscriptionMail is the payload of a SubscriptionMailKey job.
type SubscriptionMail struct {
	Meetup     MeetupSummary `json:"meetup"`
	Organizer  Person        `json:"organizer"`
	Subscriber Person        `json:"subscriber"`
}

// NewSubscriptionMail builds the payload for a new subscription.
func NewSubscriptionMail(meetup *models.Meetup, organizer, subscriber *models.User) SubscriptionMail {
	return SubscriptionMail{
		Meetup: MeetupSummary{
			ID:       meetup.ID,
			Title:    meetup.Title,
			Location: meetup.Location,
			Date:     meetup.Date,
		},
		Organizer:  Person{ID: organizer.ID, Name: organizer.Name, Email: organizer.Email},
		Subscriber: Person{ID: subscriber.ID, Name: subscriber.Name, Email: subscriber.Email},
	}
}

// Dispatcher publishes notification jobs. Publishing is best effort: a
// failure is logged and counted but never reaches the caller.
type Dispatcher struct {
	publisher queue.Publisher
	logger    *slog.Logger
}

// NewDispatcher creates a dispatcher publishing to publisher.
func NewDispatcher(publisher queue.Publisher, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{publisher: publisher, logger: logger}
}

// SubscriptionCreated enqueues a SubscriptionMail job.
func (d *Dispatcher) SubscriptionCreated(ctx context.Context, mail SubscriptionMail) {
	job, err := d.publisher.Publish(ctx, SubscriptionMailKey, mail)
	metrics.RecordJobPublished(SubscriptionMailKey, err == nil)
	if err != nil {
		d.logger.Error("Failed to enqueue subscription mail",
			"meetup_id", mail.Meetup.ID,
			"subscriber_id", mail.Subscriber.ID,
			"error", err,
		)
		return
	}

	d.logger.Info("Subscription mail enqueued", "job_id", job.ID, "meetup_id", mail.Meetup.ID)
}

var subscriptionMailBody = template.Must(template.New("subscription").Parse(
	`Hello {{.Organizer.Name}},

{{.Subscriber.Name}} <{{.Subscriber.Email}}> subscribed to your meetup "{{.Meetup.Title}}".

When:  {{.Meetup.Date.Format "Monday, January 2, 2006 at 15:04 MST"}}
Where: {{.Meetup.Location}}
`))

// RenderSubscriptionMail builds the e-mail sent to the organizer.
func RenderSubscriptionMail(m SubscriptionMail) (mail.Message, error) {
	var body bytes.Buffer
	if err := subscriptionMailBody.Execute(&body, m); err != nil {
		return mail.Message{}, fmt.Errorf("failed to render subscription mail: %w", err)
	}

	return mail.Message{
		To:      netmail.Address{Name: m.Organizer.Name, Address: m.Organizer.Email},
		Subject: "New subscription: " + strings.Join(strings.Fields(m.Meetup.Title), " "),
		Body:    body.String(),
	}, nil
}

// SubscriptionMailHandler returns the queue handler that mails the
// organizer for each SubscriptionMail job.
func SubscriptionMailHandler(mailer mail.Mailer, logger *slog.Logger) queue.Handler {
	return func(ctx context.Context, job queue.Job) (err error) {
		start := time.Now()
		defer func() {
			metrics.RecordJobProcessed(job.Key, time.Since(start), err == nil)
		}()

		var payload SubscriptionMail
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("failed to decode subscription mail: %w", err)
		}

		msg, err := RenderSubscriptionMail(payload)
		if err != nil {
			return err
		}
		if err := mailer.Send(ctx, msg); err != nil {
			return err
		}

		logger.Info("Subscription mail sent",
			"job_id", job.ID,
			"meetup_id", payload.Meetup.ID,
			"organizer_id", payload.Organizer.ID,
		)
		return nil
	}
}
