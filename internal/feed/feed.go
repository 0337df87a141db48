// Package feed retrieves new submissions from a single subreddit.
package feed

import "time"

// Post is a single submission in the monitored community. Immutable once
// retrieved.
type Post struct {
	ID        string    // base-36 submission id, e.g. "abc123"
	Fullname  string    // reddit cursor token, e.g. "t3_abc123"
	Title     string
	Flair     string    // link flair text, empty when unflaired
	Author    string
	URL       string    // outbound link (or permalink for self posts)
	Permalink string    // absolute link to the reddit discussion
	CreatedAt time.Time // submission time, UTC
}
