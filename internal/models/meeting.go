package models

import "time"

// MeetingRequest describes the video meeting to provision for a booking.
type MeetingRequest struct {
	Topic    string
	Start    time.Time
	Duration time.Duration
}

type Meeting struct {
	ID       string
	JoinURL  string
	Password string
	// Placeholder is set when the link was generated locally.
	Placeholder bool
}
