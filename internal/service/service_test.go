package service

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mmynk/meetapp/internal/auth"
	"github.com/mmynk/meetapp/internal/models"
	"github.com/mmynk/meetapp/internal/notify"
	"github.com/mmynk/meetapp/internal/queue"
	"github.com/mmynk/meetapp/internal/storage/sqlite"
)

var testNow = time.Date(2030, 1, 15, 12, 0, 0, 0, time.UTC)

// fixture wires every service to a temp SQLite database and a fixed clock.
type fixture struct {
	logger   *slog.Logger
	store    *sqlite.SQLiteStore
	queue    *queue.MemoryQueue
	jwt      *auth.JWTManager
	meetups  *MeetupService
	subs     *SubscriptionService
	users    *UserService
	sessions *SessionService
	files    *FileService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dir := t.TempDir()
	store, err := sqlite.New(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts := []Option{
		WithClock(func() time.Time { return testNow }),
		WithLogger(logger),
	}

	q := queue.NewMemoryQueue()
	authenticator := auth.NewPasswordAuthenticator(store).WithCost(bcrypt.MinCost)
	jwtManager := auth.NewJWTManager("test-secret", time.Hour)

	files, err := NewFileService(store, filepath.Join(dir, "uploads"), "http://localhost:8080", 1024, opts...)
	if err != nil {
		t.Fatalf("failed to create file service: %v", err)
	}

	return &fixture{
		logger:   logger,
		store:    store,
		queue:    q,
		jwt:      jwtManager,
		meetups:  NewMeetupService(store, opts...),
		subs:     NewSubscriptionService(store, notify.NewDispatcher(q, logger), opts...),
		users:    NewUserService(store, authenticator, opts...),
		sessions: NewSessionService(store, authenticator, jwtManager, opts...),
		files:    files,
	}
}

// meetupsAt returns a MeetupService on the fixture's store whose clock
// reads now.
func (f *fixture) meetupsAt(now time.Time) *MeetupService {
	return NewMeetupService(f.store, WithClock(func() time.Time { return now }), WithLogger(f.logger))
}

func (f *fixture) user(t *testing.T, name string) *models.User {
	t.Helper()
	user := models.NewUser(name+"@example.com", name, "hash")
	if err := f.store.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	return user
}

func (f *fixture) banner(t *testing.T) *models.File {
	t.Helper()
	file := &models.File{Name: "banner.png", Path: time.Now().Format("150405.000000000") + ".png"}
	if err := f.store.CreateFile(context.Background(), file); err != nil {
		t.Fatalf("CreateFile failed: %v", err)
	}
	return file
}

// meetup stores a meetup directly, bypassing the date rules so tests can
// seed past meetups.
func (f *fixture) meetup(t *testing.T, organizer *models.User, date time.Time) *models.Meetup {
	t.Helper()
	m := &models.Meetup{
		OrganizerID: organizer.ID,
		Title:       "Go Night",
		Description: "Lightning talks",
		Location:    "Main Street 1",
		Date:        date,
	}
	if err := f.store.CreateMeetup(context.Background(), m); err != nil {
		t.Fatalf("CreateMeetup failed: %v", err)
	}
	return m
}

func ptr[T any](v T) *T {
	return &v
}

func subscriptionFor(meetupID, userID string) *models.Subscription {
	return &models.Subscription{MeetupID: meetupID, UserID: userID}
}
