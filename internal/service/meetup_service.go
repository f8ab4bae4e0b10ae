package service

import (
	"context"
	"errors"
	"time"

	"github.com/mmynk/meetapp/internal/apperr"
	"github.com/mmynk/meetapp/internal/metrics"
	"github.com/mmynk/meetapp/internal/models"
	"github.com/mmynk/meetapp/internal/schedule"
	"github.com/mmynk/meetapp/internal/storage"
)

// CreateMeetupInput is the payload for creating a meetup. Every field is
// required.
type CreateMeetupInput struct {
	Title       string     `json:"title" validate:"required"`
	Description string     `json:"description" validate:"required"`
	Location    string     `json:"location" validate:"required"`
	Date        *time.Time `json:"date" validate:"required"`
	BannerID    string     `json:"banner_id" validate:"required"`
}

// UpdateMeetupInput is a partial update. Nil fields are left unchanged.
type UpdateMeetupInput struct {
	Title       *string    `json:"title" validate:"omitempty,min=1"`
	Description *string    `json:"description" validate:"omitempty,min=1"`
	Location    *string    `json:"location" validate:"omitempty,min=1"`
	Date        *time.Time `json:"date"`
	BannerID    *string    `json:"banner_id" validate:"omitempty,min=1"`
}

// MeetupService applies the organizer rules to meetups.
type MeetupService struct {
	base
}

// NewMeetupService creates a new MeetupService with the given storage backend.
func NewMeetupService(store storage.Store, opts ...Option) *MeetupService {
	return &MeetupService{base: newBase(store, opts)}
}

// Create schedules a new meetup organized by organizerID.
func (s *MeetupService) Create(ctx context.Context, organizerID string, in CreateMeetupInput) (*models.Meetup, error) {
	s.logger.Info("CreateMeetup request received", "user_id", organizerID, "title", in.Title)

	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	if schedule.InPast(*in.Date, s.clock()) {
		return nil, apperr.ErrInvalidDate
	}
	now := s.now()

	banner, err := s.banner(ctx, in.BannerID)
	if err != nil {
		return nil, err
	}

	meetup := &models.Meetup{
		OrganizerID: organizerID,
		Title:       in.Title,
		Description: in.Description,
		Location:    in.Location,
		Date:        schedule.Normalize(*in.Date),
		BannerID:    banner.ID,
		Banner:      banner,
	}
	if err := s.store.CreateMeetup(ctx, meetup); err != nil {
		return nil, s.unexpected("CreateMeetup", err, "user_id", organizerID)
	}
	markPast(meetup, now)

	metrics.RecordMeetup("created")
	s.logger.Info("Meetup created", "meetup_id", meetup.ID, "date", meetup.Date)

	return meetup, nil
}

// Update applies a partial update. Only the organizer may update, and only
// while the meetup is upcoming. A new date that would give a subscriber two
// meetups at the same time is rejected.
func (s *MeetupService) Update(ctx context.Context, id, requesterID string, in UpdateMeetupInput) (*models.Meetup, error) {
	s.logger.Info("UpdateMeetup request received", "meetup_id", id, "user_id", requesterID)

	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	meetup, err := s.getOwned(ctx, id, requesterID)
	if err != nil {
		return nil, err
	}

	if in.Date != nil && schedule.InPast(*in.Date, s.clock()) {
		return nil, apperr.ErrInvalidDate
	}
	now := s.now()
	if schedule.IsPast(meetup.Date, now) {
		return nil, apperr.ErrAlreadyEnded
	}

	if in.BannerID != nil && *in.BannerID != meetup.BannerID {
		banner, err := s.banner(ctx, *in.BannerID)
		if err != nil {
			return nil, err
		}
		meetup.BannerID = banner.ID
		meetup.Banner = banner
	}
	if in.Title != nil {
		meetup.Title = *in.Title
	}
	if in.Description != nil {
		meetup.Description = *in.Description
	}
	if in.Location != nil {
		meetup.Location = *in.Location
	}
	if in.Date != nil {
		meetup.Date = schedule.Normalize(*in.Date)
	}

	if err := s.store.UpdateMeetup(ctx, meetup); err != nil {
		if isNotFound(err) {
			return nil, apperr.NotFound(apperr.MsgMeetupNotFound)
		}
		if errors.Is(err, storage.ErrDateConflict) {
			s.logger.Warn("Meetup date clashes with a subscriber's schedule", "meetup_id", id, "date", meetup.Date)
			return nil, apperr.ErrConflictingDate
		}
		return nil, s.unexpected("UpdateMeetup", err, "meetup_id", id)
	}
	markPast(meetup, now)

	metrics.RecordMeetup("updated")
	s.logger.Info("Meetup updated", "meetup_id", meetup.ID)

	return meetup, nil
}

// Delete cancels an upcoming meetup. Its subscriptions are removed with it.
func (s *MeetupService) Delete(ctx context.Context, id, requesterID string) error {
	s.logger.Info("DeleteMeetup request received", "meetup_id", id, "user_id", requesterID)

	meetup, err := s.getOwned(ctx, id, requesterID)
	if err != nil {
		return err
	}
	if schedule.IsPast(meetup.Date, s.now()) {
		return apperr.ErrAlreadyEnded
	}

	if err := s.store.DeleteMeetup(ctx, id); err != nil {
		if isNotFound(err) {
			return apperr.NotFound(apperr.MsgMeetupNotFound)
		}
		return s.unexpected("DeleteMeetup", err, "meetup_id", id)
	}

	metrics.RecordMeetup("canceled")
	s.logger.Info("Meetup canceled", "meetup_id", id)

	return nil
}

// List returns the meetups organized by organizerID, soonest first.
func (s *MeetupService) List(ctx context.Context, organizerID string) ([]*models.Meetup, error) {
	s.logger.Info("ListMeetups request received", "user_id", organizerID)

	meetups, err := s.store.ListMeetupsByOrganizer(ctx, organizerID)
	if err != nil {
		return nil, s.unexpected("ListMeetups", err, "user_id", organizerID)
	}

	now := s.now()
	for _, m := range meetups {
		markPast(m, now)
	}

	s.logger.Info("ListMeetups successful", "user_id", organizerID, "count", len(meetups))
	return meetups, nil
}

// getOwned loads a meetup and checks that requesterID organizes it.
func (s *MeetupService) getOwned(ctx context.Context, id, requesterID string) (*models.Meetup, error) {
	meetup, err := s.store.GetMeetup(ctx, id)
	if isNotFound(err) {
		return nil, apperr.NotFound(apperr.MsgMeetupNotFound)
	}
	if err != nil {
		return nil, s.unexpected("GetMeetup", err, "meetup_id", id)
	}

	if meetup.OrganizerID != requesterID {
		s.logger.Warn("Meetup mutation by non-organizer", "meetup_id", id, "user_id", requesterID)
		return nil, apperr.ErrForbidden
	}

	return meetup, nil
}

func (s *MeetupService) banner(ctx context.Context, id string) (*models.File, error) {
	file, err := s.store.GetFile(ctx, id)
	if isNotFound(err) {
		return nil, apperr.NotFound(apperr.MsgBannerNotFound)
	}
	if err != nil {
		return nil, s.unexpected("GetFile", err, "file_id", id)
	}
	return file, nil
}
