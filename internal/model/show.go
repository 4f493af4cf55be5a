package model

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// ShowKey identifies a single screening.  A show is unique on the
// tuple of movie, date, time and room; no surrogate id is needed to
// address holds or reservations.
//
// Fields:
//  MovieID – catalog identifier of the film.
//  Date    – screening date as supplied by the catalog (e.g. 2025-03-01).
//  Time    – screening start time (e.g. 20:30).
//  Room    – room or hall name.
type ShowKey struct {
	MovieID string `json:"movie_id"` // seat_holds.movie_id
	Date    string `json:"date"`     // seat_holds.show_date
	Time    string `json:"time"`     // seat_holds.show_time
	Room    string `json:"room"`     // seat_holds.room
}

// Column widths of the show key in storage, in characters.
const (
	MaxMovieIDLen  = 64
	MaxShowDateLen = 16
	MaxShowTimeLen = 16
	MaxRoomLen     = 64
)

var (
	// ErrIncompleteShow is returned by Validate when any part of the key is blank.
	ErrIncompleteShow = errors.New("show key requires movie_id, date, time and room")
	// ErrShowKeyTooLong is returned by Validate when a part exceeds its column.
	ErrShowKeyTooLong = errors.New("show key part too long")
)

// Normalize returns a copy of the key with surrounding whitespace removed.
func (k ShowKey) Normalize() ShowKey {
	return ShowKey{
		MovieID: strings.TrimSpace(k.MovieID),
		Date:    strings.TrimSpace(k.Date),
		Time:    strings.TrimSpace(k.Time),
		Room:    strings.TrimSpace(k.Room),
	}
}

// Validate reports whether all four parts of the key are present and fit
// their storage columns.
func (k ShowKey) Validate() error {
	if k.MovieID == "" || k.Date == "" || k.Time == "" || k.Room == "" {
		return ErrIncompleteShow
	}
	if utf8.RuneCountInString(k.MovieID) > MaxMovieIDLen ||
		utf8.RuneCountInString(k.Date) > MaxShowDateLen ||
		utf8.RuneCountInString(k.Time) > MaxShowTimeLen ||
		utf8.RuneCountInString(k.Room) > MaxRoomLen {
		return ErrShowKeyTooLong
	}
	return nil
}

// String renders a stable key usable in logs, metrics and cache keys.
func (k ShowKey) String() string {
	return k.MovieID + "/" + k.Date + "/" + k.Time + "/" + k.Room
}
