package models

import "time"

// GenerationLog is one recorded generation request outcome
type GenerationLog struct {
	ID           string
	CredentialID *string
	Feature      string
	Endpoint     string
	JobID        string
	Status       string // completed | failed
	ResultURL    *string
	ErrorKind    *string
	ErrorMessage *string
	LatencyMs    int
	Attempts     int
	CreatedAt    time.Time
}
