package models

import "time"

// Meetup represents an event created by an organizer.
type Meetup struct {
	// ID is the unique identifier for the meetup (UUID format).
	ID string

	// OrganizerID is the ID of the user who created the meetup.
	// Only the organizer may update or cancel it.
	OrganizerID string

	Title       string
	Description string
	Location    string

	// Date is when the meetup takes place, UTC at second precision.
	Date time.Time

	// BannerID references the uploaded File used as banner. May be empty.
	BannerID string

	// Banner is populated by queries that join the files table.
	Banner *File

	// Past reports whether Date is at or before the time the meetup was read.
	Past bool

	// CreatedAt is the Unix timestamp when the meetup was created.
	CreatedAt int64

	// UpdatedAt is the Unix timestamp of the last change.
	UpdatedAt int64
}
