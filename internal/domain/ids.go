package domain

// UserID is an internal identifier for a user record (rider, driver or admin).
type UserID string

// RideID is an internal identifier for a ride record.
type RideID string

// RideEventID is an internal identifier for a ride audit event.
type RideEventID string
