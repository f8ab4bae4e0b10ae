package models

// Subscription links one user to one meetup.
//
// A user holds at most one subscription per meetup and never two
// subscriptions whose meetups share the same date.
type Subscription struct {
	// ID is the unique identifier for the subscription (UUID format).
	ID string

	MeetupID string
	UserID   string

	// Meetup is populated by listing queries that join the meetups table.
	Meetup *Meetup

	// CreatedAt is the Unix timestamp when the subscription was created.
	CreatedAt int64
}
