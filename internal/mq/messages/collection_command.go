package messages

import "time"

type CollectionAction string

const (
	CollectionStart  CollectionAction = "start"
	CollectionStop   CollectionAction = "stop"
	CollectionPause  CollectionAction = "pause"
	CollectionResume CollectionAction = "resume"
)

// CollectionCommand is sent to an antenna on <base>/v1/antennas/<antenna>/collection.
type CollectionCommand struct {
	Action    CollectionAction `json:"action"`
	AntennaID string           `json:"antenna_id"`
	SessionID string           `json:"session_id"`
	IssuedAt  time.Time        `json:"issued_at"`
}
