package messages

import (
	"fmt"
	"strings"
)

type AntennaStatus string

const (
	AntennaFound        AntennaStatus = "found"
	AntennaConnected    AntennaStatus = "connected"
	AntennaDisconnected AntennaStatus = "disconnected"
)

// AntennaStatusMessage is published by the sensing device on <base>/v1/antennas/<antenna>/status.
type AntennaStatusMessage struct {
	Data   AntennaStatusDto `json:"data"`
	Source string           `json:"source"`
}

type AntennaStatusDto struct {
	Status AntennaStatus `json:"status"`
	Name   string        `json:"name,omitempty"`
}

func (m *AntennaStatusMessage) Validate() error {
	switch AntennaStatus(strings.ToLower(string(m.Data.Status))) {
	case AntennaFound, AntennaConnected, AntennaDisconnected:
		return nil
	default:
		return fmt.Errorf("%w: unknown antenna status %q", ErrInvalidMessage, m.Data.Status)
	}
}

// Normalized returns the status in lower case.
func (m *AntennaStatusMessage) Normalized() AntennaStatus {
	return AntennaStatus(strings.ToLower(string(m.Data.Status)))
}
