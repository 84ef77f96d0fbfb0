package mq

import (
	"fmt"
	"github.com/rs/zerolog"
	"gps-no-calibration/internal/interfaces"
	"regexp"
	"strings"
)

type TopicManager struct {
	BaseTopic string
	logger    zerolog.Logger
}

func NewTopicManager(baseTopic string, logger zerolog.Logger) *TopicManager {
	return &TopicManager{
		BaseTopic: strings.TrimSuffix(baseTopic, "/"),
		logger:    logger,
	}
}

const (
	ObservationTopicTemplate   = "%s/v1/observations/+"
	AntennaStatusTopicTemplate = "%s/v1/antennas/+/status"
	RangingTopicTemplate       = "%s/v1/ranging/+"
	CollectionTopicTemplate    = "%s/v1/antennas/+/collection"
	PositionTopicTemplate      = "%s/v1/positions/+"
	CalibrationTopicTemplate   = "%s/v1/calibrations/+"
)

func (m *TopicManager) GetObservationTopic() string {
	return fmt.Sprintf(ObservationTopicTemplate, m.BaseTopic)
}

func (m *TopicManager) GetAntennaStatusTopic() string {
	return fmt.Sprintf(AntennaStatusTopicTemplate, m.BaseTopic)
}

func (m *TopicManager) GetRangingTopic() string {
	return fmt.Sprintf(RangingTopicTemplate, m.BaseTopic)
}

func (m *TopicManager) GetCollectionTopic(antennaID string) string {
	return m.fill(CollectionTopicTemplate, antennaID)
}

func (m *TopicManager) GetPositionTopic(tagID string) string {
	return m.fill(PositionTopicTemplate, tagID)
}

func (m *TopicManager) GetCalibrationTopic(antennaID string) string {
	return m.fill(CalibrationTopicTemplate, antennaID)
}

func (m *TopicManager) fill(template, id string) string {
	return strings.Replace(fmt.Sprintf(template, m.BaseTopic), "+", id, 1)
}

func (m *TopicManager) buildTopicRegex(template string) *regexp.Regexp {
	pattern := strings.ReplaceAll(template, "%s", regexp.QuoteMeta(m.BaseTopic))
	pattern = strings.ReplaceAll(pattern, "+", "([^/]+)")
	pattern = "^" + pattern + "$"

	return regexp.MustCompile(pattern)
}

func (m *TopicManager) ExtractIdFromTopic(topic, template string) (string, error) {
	regex := m.buildTopicRegex(template)
	matches := regex.FindStringSubmatch(topic)

	if len(matches) < 2 {
		return "", fmt.Errorf("could not extract ID from topic: %s", topic)
	}

	return matches[1], nil
}

func (m *TopicManager) ExtractAntennaId(topic string) (string, error) {
	if id, err := m.ExtractIdFromTopic(topic, ObservationTopicTemplate); err == nil {
		return id, nil
	}
	return m.ExtractIdFromTopic(topic, AntennaStatusTopicTemplate)
}

func (m *TopicManager) ExtractTagId(topic string) (string, error) {
	return m.ExtractIdFromTopic(topic, RangingTopicTemplate)
}

func (m *TopicManager) GetBaseTopic() string {
	return m.BaseTopic
}

var _ interfaces.ITopicManager = (*TopicManager)(nil)
