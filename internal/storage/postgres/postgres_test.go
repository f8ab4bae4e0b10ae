package postgres

import (
	"context"
	"errors"
	"os"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/meetapp/internal/models"
	"github.com/mmynk/meetapp/internal/storage"
)

var meetupRowColumns = []string{
	"id", "user_id", "title", "description", "location", "date", "banner_id",
	"created_at", "updated_at", "file_id", "file_name", "file_path", "file_created_at",
}

func exists(v bool) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"exists"}).AddRow(v)
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})

	return New(sqlx.NewDb(db, "sqlmock")), mock
}

func TestCreateUser(t *testing.T) {
	ctx := context.Background()

	t.Run("duplicate email", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec("INSERT INTO users").
			WillReturnError(&pq.Error{Code: uniqueViolation})

		err := store.CreateUser(ctx, models.NewUser("alice@example.com", "Alice", "hash"))
		assert.ErrorIs(t, err, storage.ErrEmailTaken)
	})

	t.Run("lookup miss returns nil", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery("SELECT (.+) FROM users WHERE email").
			WithArgs("nobody@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "password_hash", "created_at", "updated_at"}))

		user, err := store.GetUserByEmail(ctx, "nobody@example.com")
		require.NoError(t, err)
		assert.Nil(t, user)
	})
}

func TestMeetups(t *testing.T) {
	ctx := context.Background()
	date := time.Date(2030, 5, 1, 18, 0, 0, 0, time.UTC)

	t.Run("GetMeetup with banner", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery("SELECT (.+) FROM meetups m LEFT JOIN files f").
			WithArgs("m1").
			WillReturnRows(sqlmock.NewRows(meetupRowColumns).AddRow(
				"m1", "u1", "Go", "Talks", "Hall", date, "f1",
				int64(10), int64(10), "f1", "banner.png", "abc.png", int64(5),
			))

		meetup, err := store.GetMeetup(ctx, "m1")
		require.NoError(t, err)
		assert.Equal(t, "u1", meetup.OrganizerID)
		assert.True(t, meetup.Date.Equal(date))
		require.NotNil(t, meetup.Banner)
		assert.Equal(t, "abc.png", meetup.Banner.Path)
	})

	t.Run("GetMeetup without banner", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery("SELECT (.+) FROM meetups m").
			WithArgs("m1").
			WillReturnRows(sqlmock.NewRows(meetupRowColumns).AddRow(
				"m1", "u1", "Go", "Talks", "Hall", date, nil,
				int64(10), int64(10), nil, nil, nil, nil,
			))

		meetup, err := store.GetMeetup(ctx, "m1")
		require.NoError(t, err)
		assert.Empty(t, meetup.BannerID)
		assert.Nil(t, meetup.Banner)
	})

	t.Run("GetMeetup not found", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery("SELECT (.+) FROM meetups m").
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows(meetupRowColumns))

		_, err := store.GetMeetup(ctx, "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	expectLocked := func(mock sqlmock.Sqlmock) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id FROM meetups WHERE id = (.+) FOR UPDATE").
			WithArgs("m1").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("m1"))
		mock.ExpectExec(`pg_advisory_xact_lock\(hashtext\(user_id\)\)`).
			WithArgs("m1").
			WillReturnResult(sqlmock.NewResult(0, 0))
	}
	moved := func() *models.Meetup {
		return &models.Meetup{ID: "m1", OrganizerID: "u1", Title: "Go", Description: "Talks", Location: "Hall", Date: date}
	}

	t.Run("UpdateMeetup", func(t *testing.T) {
		store, mock := newMockStore(t)
		expectLocked(mock)
		mock.ExpectQuery("SELECT EXISTS").WithArgs("m1", date).WillReturnRows(exists(false))
		mock.ExpectExec("UPDATE meetups").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		assert.NoError(t, store.UpdateMeetup(ctx, moved()))
	})

	t.Run("UpdateMeetup subscriber conflict", func(t *testing.T) {
		store, mock := newMockStore(t)
		expectLocked(mock)
		mock.ExpectQuery("SELECT EXISTS").WithArgs("m1", date).WillReturnRows(exists(true))
		mock.ExpectRollback()

		err := store.UpdateMeetup(ctx, moved())
		assert.ErrorIs(t, err, storage.ErrDateConflict)
	})

	t.Run("UpdateMeetup not found", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id FROM meetups").
			WithArgs("m1").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectRollback()

		err := store.UpdateMeetup(ctx, moved())
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("DeleteMeetup not found", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec("DELETE FROM meetups").
			WithArgs("missing").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := store.DeleteMeetup(ctx, "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestCreateSubscription(t *testing.T) {
	ctx := context.Background()
	date := time.Date(2030, 5, 1, 18, 0, 0, 0, time.UTC)
	lock := regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext($1))")

	expectMeetupDate := func(mock sqlmock.Sqlmock) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT date FROM meetups (.+) FOR SHARE").
			WithArgs("m1").
			WillReturnRows(sqlmock.NewRows([]string{"date"}).AddRow(date))
		mock.ExpectExec(lock).WithArgs("u1").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	t.Run("success", func(t *testing.T) {
		store, mock := newMockStore(t)
		expectMeetupDate(mock)
		mock.ExpectQuery("SELECT EXISTS").WithArgs("u1", "m1").WillReturnRows(exists(false))
		mock.ExpectQuery("SELECT EXISTS").WithArgs("u1", date, "m1").WillReturnRows(exists(false))
		mock.ExpectExec("INSERT INTO subscriptions").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		sub := &models.Subscription{MeetupID: "m1", UserID: "u1"}
		require.NoError(t, store.CreateSubscription(ctx, sub))
		assert.NotEmpty(t, sub.ID)
	})

	t.Run("meetup gone", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT date FROM meetups").
			WithArgs("m1").
			WillReturnRows(sqlmock.NewRows([]string{"date"}))
		mock.ExpectRollback()

		err := store.CreateSubscription(ctx, &models.Subscription{MeetupID: "m1", UserID: "u1"})
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("already subscribed", func(t *testing.T) {
		store, mock := newMockStore(t)
		expectMeetupDate(mock)
		mock.ExpectQuery("SELECT EXISTS").WithArgs("u1", "m1").WillReturnRows(exists(true))
		mock.ExpectRollback()

		err := store.CreateSubscription(ctx, &models.Subscription{MeetupID: "m1", UserID: "u1"})
		assert.ErrorIs(t, err, storage.ErrAlreadySubscribed)
	})

	t.Run("date conflict", func(t *testing.T) {
		store, mock := newMockStore(t)
		expectMeetupDate(mock)
		mock.ExpectQuery("SELECT EXISTS").WithArgs("u1", "m1").WillReturnRows(exists(false))
		mock.ExpectQuery("SELECT EXISTS").WithArgs("u1", date, "m1").WillReturnRows(exists(true))
		mock.ExpectRollback()

		err := store.CreateSubscription(ctx, &models.Subscription{MeetupID: "m1", UserID: "u1"})
		assert.ErrorIs(t, err, storage.ErrDateConflict)
	})

	t.Run("unique violation on insert", func(t *testing.T) {
		store, mock := newMockStore(t)
		expectMeetupDate(mock)
		mock.ExpectQuery("SELECT EXISTS").WithArgs("u1", "m1").WillReturnRows(exists(false))
		mock.ExpectQuery("SELECT EXISTS").WithArgs("u1", date, "m1").WillReturnRows(exists(false))
		mock.ExpectExec("INSERT INTO subscriptions").
			WillReturnError(&pq.Error{Code: uniqueViolation})
		mock.ExpectRollback()

		err := store.CreateSubscription(ctx, &models.Subscription{MeetupID: "m1", UserID: "u1"})
		assert.ErrorIs(t, err, storage.ErrAlreadySubscribed)
	})
}

func TestListSubscriptionsAfter(t *testing.T) {
	store, mock := newMockStore(t)
	date := time.Date(2030, 5, 1, 18, 0, 0, 0, time.UTC)
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	columns := append([]string{"sub_id", "sub_meetup_id", "subscriber_id", "sub_created_at"}, meetupRowColumns...)
	mock.ExpectQuery("FROM subscriptions s (.+) ORDER BY m.date ASC").
		WithArgs("u2", now).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(
			"s1", "m1", "u2", int64(20),
			"m1", "u1", "Go", "Talks", "Hall", date, nil,
			int64(10), int64(10), nil, nil, nil, nil,
		))

	subs, err := store.ListSubscriptionsAfter(context.Background(), "u2", now)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "s1", subs[0].ID)
	assert.Equal(t, "u2", subs[0].UserID)
	require.NotNil(t, subs[0].Meetup)
	assert.Equal(t, "u1", subs[0].Meetup.OrganizerID)
}

// TestIntegration runs against a real database when TEST_POSTGRES_DSN is set.
func TestIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	store, err := Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	suffix := time.Now().Format("150405.000000")
	organizer := models.NewUser("organizer-"+suffix+"@example.com", "Organizer", "hash")
	subscriber := models.NewUser("subscriber-"+suffix+"@example.com", "Subscriber", "hash")
	require.NoError(t, store.CreateUser(ctx, organizer))
	require.NoError(t, store.CreateUser(ctx, subscriber))

	date := time.Now().Add(48 * time.Hour).UTC().Truncate(time.Second)
	first := &models.Meetup{OrganizerID: organizer.ID, Title: "A", Description: "A", Location: "A", Date: date}
	second := &models.Meetup{OrganizerID: organizer.ID, Title: "B", Description: "B", Location: "B", Date: date}
	require.NoError(t, store.CreateMeetup(ctx, first))
	require.NoError(t, store.CreateMeetup(ctx, second))
	t.Cleanup(func() {
		store.DeleteMeetup(ctx, first.ID)
		store.DeleteMeetup(ctx, second.ID)
	})

	require.NoError(t, store.CreateSubscription(ctx, &models.Subscription{MeetupID: first.ID, UserID: subscriber.ID}))
	assert.ErrorIs(t,
		store.CreateSubscription(ctx, &models.Subscription{MeetupID: first.ID, UserID: subscriber.ID}),
		storage.ErrAlreadySubscribed)
	assert.ErrorIs(t,
		store.CreateSubscription(ctx, &models.Subscription{MeetupID: second.ID, UserID: subscriber.ID}),
		storage.ErrDateConflict)

	subs, err := store.ListSubscriptionsAfter(ctx, subscriber.ID, time.Now())
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, first.ID, subs[0].MeetupID)

	found, err := store.FindSubscriptionAt(ctx, subscriber.ID, date)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, first.ID, found.Meetup.ID)

	later := &models.Meetup{OrganizerID: organizer.ID, Title: "C", Description: "C", Location: "C", Date: date.Add(time.Hour)}
	require.NoError(t, store.CreateMeetup(ctx, later))
	t.Cleanup(func() { store.DeleteMeetup(ctx, later.ID) })
	require.NoError(t, store.CreateSubscription(ctx, &models.Subscription{MeetupID: later.ID, UserID: subscriber.ID}))

	moved := *first
	moved.Date = later.Date
	assert.ErrorIs(t, store.UpdateMeetup(ctx, &moved), storage.ErrDateConflict)

	racer := models.NewUser("racer-"+suffix+"@example.com", "Racer", "hash")
	require.NoError(t, store.CreateUser(ctx, racer))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(meetupID string) {
			defer wg.Done()
			err := store.CreateSubscription(ctx, &models.Subscription{MeetupID: meetupID, UserID: racer.ID})
			if err != nil {
				assert.True(t, errors.Is(err, storage.ErrAlreadySubscribed) || errors.Is(err, storage.ErrDateConflict), "unexpected error: %v", err)
				return
			}
			mu.Lock()
			successes++
			mu.Unlock()
		}([]string{first.ID, second.ID}[i%2])
	}
	wg.Wait()
	assert.Equal(t, 1, successes)
}
