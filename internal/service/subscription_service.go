package service

import (
	"context"
	"errors"

	"github.com/mmynk/meetapp/internal/apperr"
	"github.com/mmynk/meetapp/internal/metrics"
	"github.com/mmynk/meetapp/internal/models"
	"github.com/mmynk/meetapp/internal/notify"
	"github.com/mmynk/meetapp/internal/schedule"
	"github.com/mmynk/meetapp/internal/storage"
)

// SubscriptionNotifier is told about every new subscription.
type SubscriptionNotifier interface {
	SubscriptionCreated(ctx context.Context, mail notify.SubscriptionMail)
}

// SubscriptionService applies the subscriber rules.
type SubscriptionService struct {
	base
	notifier SubscriptionNotifier
}

// NewSubscriptionService creates a new SubscriptionService. notifier may be
// nil, in which case no notifications are sent.
func NewSubscriptionService(store storage.Store, notifier SubscriptionNotifier, opts ...Option) *SubscriptionService {
	return &SubscriptionService{base: newBase(store, opts), notifier: notifier}
}

// ListUpcoming returns userID's subscriptions to meetups that have not
// happened yet, soonest first.
func (s *SubscriptionService) ListUpcoming(ctx context.Context, userID string) ([]*models.Subscription, error) {
	s.logger.Info("ListSubscriptions request received", "user_id", userID)

	now := s.now()
	subs, err := s.store.ListSubscriptionsAfter(ctx, userID, now)
	if err != nil {
		return nil, s.unexpected("ListSubscriptions", err, "user_id", userID)
	}
	for _, sub := range subs {
		markPast(sub.Meetup, now)
	}

	s.logger.Info("ListSubscriptions successful", "user_id", userID, "count", len(subs))
	return subs, nil
}

// Subscribe registers requesterID to meetupID and notifies the organizer.
func (s *SubscriptionService) Subscribe(ctx context.Context, meetupID, requesterID string) (sub *models.Subscription, err error) {
	s.logger.Info("Subscribe request received", "meetup_id", meetupID, "user_id", requesterID)

	defer func() {
		if err != nil {
			metrics.RecordSubscription(string(apperr.From(err).Kind))
			return
		}
		metrics.RecordSubscription("created")
	}()

	meetup, err := s.store.GetMeetup(ctx, meetupID)
	if isNotFound(err) {
		return nil, apperr.NotFound(apperr.MsgMeetupNotFound)
	}
	if err != nil {
		return nil, s.unexpected("GetMeetup", err, "meetup_id", meetupID)
	}

	if meetup.OrganizerID == requesterID {
		return nil, apperr.ErrSelfSubscription
	}
	if schedule.IsPast(meetup.Date, s.now()) {
		return nil, apperr.ErrAlreadyEnded
	}

	existing, err := s.store.FindSubscription(ctx, requesterID, meetupID)
	if err != nil {
		return nil, s.unexpected("FindSubscription", err, "meetup_id", meetupID, "user_id", requesterID)
	}
	if existing != nil {
		return nil, apperr.ErrDuplicateSubscription
	}

	conflict, err := s.store.FindSubscriptionAt(ctx, requesterID, meetup.Date)
	if err != nil {
		return nil, s.unexpected("FindSubscriptionAt", err, "meetup_id", meetupID, "user_id", requesterID)
	}
	if conflict != nil {
		return nil, apperr.ErrConflictingDate
	}

	// The checks above give precise errors in the common case. Storage
	// repeats them atomically with the insert.
	sub = &models.Subscription{MeetupID: meetupID, UserID: requesterID}
	switch err := s.store.CreateSubscription(ctx, sub); {
	case err == nil:
	case errors.Is(err, storage.ErrAlreadySubscribed):
		return nil, apperr.ErrDuplicateSubscription
	case errors.Is(err, storage.ErrDateConflict):
		return nil, apperr.ErrConflictingDate
	case isNotFound(err):
		return nil, apperr.NotFound(apperr.MsgMeetupNotFound)
	default:
		return nil, s.unexpected("CreateSubscription", err, "meetup_id", meetupID, "user_id", requesterID)
	}
	sub.Meetup = meetup

	s.logger.Info("Subscription created", "subscription_id", sub.ID, "meetup_id", meetupID, "user_id", requesterID)

	s.notify(ctx, meetup, requesterID)
	return sub, nil
}

// notify enqueues the organizer mail. The subscription is already stored,
// so failures here are logged and dropped.
func (s *SubscriptionService) notify(ctx context.Context, meetup *models.Meetup, subscriberID string) {
	if s.notifier == nil {
		return
	}

	organizer, err := s.store.GetUserByID(ctx, meetup.OrganizerID)
	if err != nil || organizer == nil {
		s.logger.Warn("Skipping subscription mail: organizer lookup failed", "meetup_id", meetup.ID, "error", err)
		return
	}
	subscriber, err := s.store.GetUserByID(ctx, subscriberID)
	if err != nil || subscriber == nil {
		s.logger.Warn("Skipping subscription mail: subscriber lookup failed", "user_id", subscriberID, "error", err)
		return
	}

	s.notifier.SubscriptionCreated(ctx, notify.NewSubscriptionMail(meetup, organizer, subscriber))
}
