// Package models defines the core domain models for meetapp.
//
// # Models
//
//   - User: a registered account; organizes meetups and subscribes to others
//   - Meetup: an event scheduled by its organizer, optionally with a banner
//   - Subscription: one user's registration to one upcoming meetup
//   - File: an uploaded file, used as a meetup banner
//
// # Design Principles
//
// 1. **IDs, not pointers**: relationships are expressed with UUID strings.
// Joined records (Meetup.Banner, Subscription.Meetup) are populated only by
// the storage queries that join them.
// 2. **Storage-agnostic**: no JSON or SQL tags; transport and storage
// layers map these types to their own representations.
// 3. **Derived state is computed**: Meetup.Past is set from the meetup date
// and the current time when a meetup is read, never stored.
package models
