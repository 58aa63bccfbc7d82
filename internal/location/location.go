// Package location models the shareable locator of the chat view: a query
// string carrying the active room (`?room=team`) plus a browser-style
// back/forward history of locators.
package location

import (
	"net/url"
	"strings"
)

const (
	RoomParam = "room"
	MainRoom  = "main"
)

type Location struct {
	history []string
	index   int
}

// New starts a history at the given locator ("", "?room=team" or
// "room=team"). Malformed input starts from the bare locator.
func New(initial string) *Location {
	return &Location{history: []string{normalize(initial)}}
}

// Parse returns the room parameter of a locator, or "" when absent.
func Parse(raw string) string {
	values, err := url.ParseQuery(strings.TrimPrefix(strings.TrimSpace(raw), "?"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(values.Get(RoomParam))
}

// Encode renders the locator for roomID. The main room is always bare.
func Encode(roomID string) string {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" || roomID == MainRoom {
		return ""
	}
	return "?" + url.Values{RoomParam: []string{roomID}}.Encode()
}

func normalize(raw string) string {
	return Encode(Parse(raw))
}

func (l *Location) String() string { return l.history[l.index] }

// Room is the room parameter of the current entry, "" when absent.
func (l *Location) Room() string { return Parse(l.String()) }

// SetRoom pushes a locator for roomID, dropping any forward entries.
// Nothing is pushed when the locator would not change.
func (l *Location) SetRoom(roomID string) bool {
	return l.push(Encode(roomID))
}

func (l *Location) ClearRoom() bool {
	return l.push("")
}

func (l *Location) push(next string) bool {
	if next == l.String() {
		return false
	}
	l.history = append(l.history[:l.index+1], next)
	l.index++
	return true
}

func (l *Location) CanBack() bool    { return l.index > 0 }
func (l *Location) CanForward() bool { return l.index < len(l.history)-1 }

// Back moves one entry back and reports whether the room parameter
// changed as a result.
func (l *Location) Back() (changed bool) {
	if !l.CanBack() {
		return false
	}
	before := l.Room()
	l.index--
	return l.Room() != before
}

func (l *Location) Forward() (changed bool) {
	if !l.CanForward() {
		return false
	}
	before := l.Room()
	l.index++
	return l.Room() != before
}

// Replace swaps the current entry without touching history, for restoring
// a persisted locator at startup.
func (l *Location) Replace(raw string) {
	l.history[l.index] = normalize(raw)
}
