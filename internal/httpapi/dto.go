package httpapi

import (
	"time"

	"github.com/mmynk/meetapp/internal/apperr"
	"github.com/mmynk/meetapp/internal/models"
	"github.com/mmynk/meetapp/internal/schedule"
	"github.com/mmynk/meetapp/internal/service"
)

type userResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func newUserResponse(u *models.User) userResponse {
	return userResponse{ID: u.ID, Name: u.Name, Email: u.Email}
}

type sessionResponse struct {
	User  userResponse `json:"user"`
	Token string       `json:"token"`
}

type fileResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Path string `json:"path"`
	URL  string `json:"url"`
}

// createdMeetupResponse is the body of a successful meetup creation.
type createdMeetupResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	Date        time.Time `json:"date"`
	UserID      string    `json:"user_id"`
}

type meetupResponse struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Location    string        `json:"location"`
	Date        time.Time     `json:"date"`
	Past        bool          `json:"past"`
	UserID      string        `json:"user_id"`
	BannerID    string        `json:"banner_id,omitempty"`
	Banner      *fileResponse `json:"banner,omitempty"`
}

type subscriptionResponse struct {
	ID       string          `json:"id"`
	MeetupID string          `json:"meetup_id"`
	UserID   string          `json:"user_id"`
	Meetup   *meetupResponse `json:"meetup,omitempty"`
}

func (a *api) fileResponse(f *models.File) *fileResponse {
	if f == nil {
		return nil
	}
	return &fileResponse{ID: f.ID, Name: f.Name, Path: f.Path, URL: a.Files.URL(f)}
}

func (a *api) meetupResponse(m *models.Meetup) *meetupResponse {
	return &meetupResponse{
		ID:          m.ID,
		Title:       m.Title,
		Description: m.Description,
		Location:    m.Location,
		Date:        m.Date,
		Past:        m.Past,
		UserID:      m.OrganizerID,
		BannerID:    m.BannerID,
		Banner:      a.fileResponse(m.Banner),
	}
}

// meetupRequest is decoded from create and update bodies. Dates arrive as
// strings so several layouts can be accepted.
type meetupRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Location    *string `json:"location"`
	Date        *string `json:"date"`
	BannerID    *string `json:"banner_id"`
}

func (m meetupRequest) date() (*time.Time, error) {
	if m.Date == nil || *m.Date == "" {
		return nil, nil
	}
	t, err := schedule.ParseDate(*m.Date)
	if err != nil {
		return nil, apperr.Validation(map[string]string{"date": "must be a valid date"})
	}
	return &t, nil
}

func (m meetupRequest) createInput() (service.CreateMeetupInput, error) {
	date, err := m.date()
	if err != nil {
		return service.CreateMeetupInput{}, err
	}
	return service.CreateMeetupInput{
		Title:       deref(m.Title),
		Description: deref(m.Description),
		Location:    deref(m.Location),
		Date:        date,
		BannerID:    deref(m.BannerID),
	}, nil
}

func (m meetupRequest) updateInput() (service.UpdateMeetupInput, error) {
	date, err := m.date()
	if err != nil {
		return service.UpdateMeetupInput{}, err
	}
	return service.UpdateMeetupInput{
		Title:       m.Title,
		Description: m.Description,
		Location:    m.Location,
		Date:        date,
		BannerID:    m.BannerID,
	}, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
