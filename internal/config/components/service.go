package components

import (
	"gps-no-calibration/internal/config/shared"
	"gps-no-calibration/internal/interfaces"
)

type ServiceConfig interface {
	interfaces.Config
}

// ServiceConfigImpl identifies the running service and the floor it calibrates. An empty
// AntennaIDs list means every antenna reported connected takes part in a run.
type ServiceConfigImpl struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	HTTPAddress string   `json:"http_address"`
	FloorMapID  string   `json:"floor_map_id"`
	AntennaIDs  []string `json:"antenna_ids"`
}

func NewServiceConfig() ServiceConfigImpl {
	config := ServiceConfigImpl{}
	config.Load()
	config.SetDefaults()
	return config
}

func (S *ServiceConfigImpl) Load() {
	S.Name = shared.GetEnv("SERVICE_NAME")
	S.Version = shared.GetEnv("SERVICE_VERSION")
	S.HTTPAddress = shared.GetEnv("HTTP_ADDRESS")
	S.FloorMapID = shared.GetEnv("FLOOR_MAP_ID")
	S.AntennaIDs = shared.GetEnvAsList("ANTENNA_IDS")
}

func (S *ServiceConfigImpl) SetDefaults() {
	if S.Name == "" {
		S.Name = "gps-no-calibration"
	}
	if S.Version == "" {
		S.Version = "1.0.0"
	}
	if S.HTTPAddress == "" {
		S.HTTPAddress = ":8080"
	}
	if S.FloorMapID == "" {
		S.FloorMapID = "default"
	}
}

func (S *ServiceConfigImpl) Validate() error {
	if S.Name == "" {
		return &shared.ConfigError{Component: "service", Field: "name", Message: "is required"}
	}

	if S.Version == "" {
		return &shared.ConfigError{Component: "service", Field: "version", Message: "is required"}
	}

	if S.HTTPAddress == "" {
		return &shared.ConfigError{Component: "service", Field: "http_address", Message: "is required"}
	}

	seen := make(map[string]bool, len(S.AntennaIDs))
	for _, id := range S.AntennaIDs {
		if seen[id] {
			return &shared.ConfigError{Component: "service", Field: "antenna_ids", Value: id, Message: "duplicate antenna id"}
		}
		seen[id] = true
	}

	return nil
}

var _ ServiceConfig = (*ServiceConfigImpl)(nil)
