package models

// Calendar represents one calendar visible to a connected account
type Calendar struct {
	ID          string `json:"id"`
	Summary     string `json:"summary"`
	Description string `json:"description,omitempty"`
	TimeZone    string `json:"timeZone,omitempty"`
	Primary     bool   `json:"primary,omitempty"`
	AccessRole  string `json:"accessRole,omitempty"` // owner, writer, reader, freeBusyReader
}

// Event represents a calendar event
type Event struct {
	ID          string    `json:"id"`
	CalendarID  string    `json:"calendarId,omitempty"`
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Start       EventTime `json:"start"`
	End         EventTime `json:"end"`
	Status      string    `json:"status,omitempty"` // confirmed, tentative, cancelled
	HTMLLink    string    `json:"htmlLink,omitempty"`
}

// EventTime is either a date (all-day) or a timestamp
type EventTime struct {
	Date     string `json:"date,omitempty"`     // YYYY-MM-DD for all-day events
	DateTime string `json:"dateTime,omitempty"` // RFC 3339
	TimeZone string `json:"timeZone,omitempty"`
}

// Account represents a connected upstream calendar account
type Account struct {
	ID     string `json:"id"`
	Email  string `json:"email,omitempty"`
	Active bool   `json:"active"`
}

// ErrorInfo carries a structured error payload
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
