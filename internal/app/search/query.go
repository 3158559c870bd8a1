// Package search builds field-filtered search queries.
package search

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrEmptyQuery is returned when a search is triggered with no active clause.
var ErrEmptyQuery = errors.New("search query is empty")

// ResultType selects what a search returns.
type ResultType string

const (
	ResultTracks  ResultType = "track"
	ResultArtists ResultType = "artist"
)

// ParseResultType parses "track" or "artist". Empty means tracks.
func ParseResultType(s string) (ResultType, error) {
	switch ResultType(strings.ToLower(strings.TrimSpace(s))) {
	case ResultTracks, "":
		return ResultTracks, nil
	case ResultArtists:
		return ResultArtists, nil
	}
	return "", errors.Newf("unknown search type: %q", s)
}

// Clause is one optional field filter.
type Clause struct {
	Enabled bool   `json:"enabled"`
	Value   string `json:"value"`
}

// active reports whether the clause contributes to the query.
func (c Clause) active() bool {
	return c.Enabled && strings.TrimSpace(c.Value) != ""
}

// Filters holds the search form state.
type Filters struct {
	Artist Clause     `json:"artist"`
	Track  Clause     `json:"track"`
	Genre  Clause     `json:"genre"`
	Year   Clause     `json:"year"`
	Type   ResultType `json:"type"`
}

// Query assembles `artist:"v" track:"v" genre:"v" year:v` from the active clauses.
// Clause order is fixed; the result is trimmed and empty when no clause is active.
func (f Filters) Query() string {
	var parts []string
	if f.Artist.active() {
		parts = append(parts, quoted("artist", f.Artist.Value))
	}
	if f.Track.active() {
		parts = append(parts, quoted("track", f.Track.Value))
	}
	if f.Genre.active() {
		parts = append(parts, quoted("genre", f.Genre.Value))
	}
	if f.Year.active() {
		parts = append(parts, "year:"+strings.TrimSpace(f.Year.Value))
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

func quoted(field, value string) string {
	return fmt.Sprintf(`%s:"%s"`, field, strings.TrimSpace(value))
}

// Disabled reports whether the search action should be disabled.
func (f Filters) Disabled() bool {
	return f.Query() == ""
}

// Build returns the query or ErrEmptyQuery.
func (f Filters) Build() (string, error) {
	q := f.Query()
	if q == "" {
		return "", ErrEmptyQuery
	}
	return q, nil
}

// EffectiveType returns the result type, defaulting to tracks.
func (f Filters) EffectiveType() ResultType {
	if f.Type == ResultArtists {
		return ResultArtists
	}
	return ResultTracks
}

// SetType switches the result type. Artist searches cannot filter by track
// or year, so those clauses are disabled; switching back re-enables them.
func (f *Filters) SetType(t ResultType) {
	f.Type = t
	enabled := t != ResultArtists
	f.Track.Enabled = enabled
	f.Year.Enabled = enabled
}

// Stage puts genre into the genre clause and enables it.
func (f *Filters) Stage(genre string) {
	f.Genre = Clause{Enabled: true, Value: genre}
}
