package mq

import (
	"context"
	"encoding/json"
	"errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gps-no-calibration/internal/calerr"
	"gps-no-calibration/internal/mq/messages"
	"gps-no-calibration/internal/workflow"
	"sync"
	"testing"
	"time"
)

type fakePublisher struct {
	mu        sync.Mutex
	connected bool
	topics    []string
	commands  []messages.CollectionCommand
	err       error
}

func (p *fakePublisher) PublishJson(topic string, data interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	var cmd messages.CollectionCommand
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return err
	}
	p.topics = append(p.topics, topic)
	p.commands = append(p.commands, cmd)
	return nil
}

func (p *fakePublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func TestTopicManager(t *testing.T) {
	m := NewTopicManager("gps-no/", zerolog.Nop())

	assert.Equal(t, "gps-no", m.GetBaseTopic())
	assert.Equal(t, "gps-no/v1/observations/+", m.GetObservationTopic())
	assert.Equal(t, "gps-no/v1/antennas/+/status", m.GetAntennaStatusTopic())
	assert.Equal(t, "gps-no/v1/ranging/+", m.GetRangingTopic())
	assert.Equal(t, "gps-no/v1/antennas/ant-1/collection", m.GetCollectionTopic("ant-1"))
	assert.Equal(t, "gps-no/v1/positions/tag-9", m.GetPositionTopic("tag-9"))
	assert.Equal(t, "gps-no/v1/calibrations/ant-1", m.GetCalibrationTopic("ant-1"))

	id, err := m.ExtractAntennaId("gps-no/v1/observations/ant-3")
	require.NoError(t, err)
	assert.Equal(t, "ant-3", id)

	id, err = m.ExtractAntennaId("gps-no/v1/antennas/ant-4/status")
	require.NoError(t, err)
	assert.Equal(t, "ant-4", id)

	id, err = m.ExtractTagId("gps-no/v1/ranging/tag-1")
	require.NoError(t, err)
	assert.Equal(t, "tag-1", id)

	_, err = m.ExtractTagId("gps-no/v1/ranging/tag-1/extra")
	assert.Error(t, err)
}

func TestTopicManagerQuotesBaseTopic(t *testing.T) {
	m := NewTopicManager("a.b", zerolog.Nop())

	_, err := m.ExtractTagId("aXb/v1/ranging/tag-1")
	assert.Error(t, err)
}

func TestSensingClientCommands(t *testing.T) {
	publisher := &fakePublisher{connected: true}
	client := NewSensingClient(publisher, NewTopicManager("site", zerolog.Nop()), 4, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, client.StartCollection(ctx, "ant-1", "s-1"))
	require.NoError(t, client.PauseCollection(ctx, "s-1"))
	require.NoError(t, client.ResumeCollection(ctx, "s-1"))
	require.NoError(t, client.StopCollection(ctx, "s-1"))

	require.Len(t, publisher.commands, 4)
	var actions []messages.CollectionAction
	for i, cmd := range publisher.commands {
		assert.Equal(t, "site/v1/antennas/ant-1/collection", publisher.topics[i])
		assert.Equal(t, "s-1", cmd.SessionID)
		assert.Equal(t, "ant-1", cmd.AntennaID)
		actions = append(actions, cmd.Action)
	}
	assert.Equal(t, []messages.CollectionAction{
		messages.CollectionStart, messages.CollectionPause, messages.CollectionResume, messages.CollectionStop,
	}, actions)

	assert.ErrorIs(t, client.StopCollection(ctx, "s-1"), calerr.ErrSessionNotFound)
}

func TestSensingClientNotConnected(t *testing.T) {
	publisher := &fakePublisher{}
	client := NewSensingClient(publisher, NewTopicManager("site", zerolog.Nop()), 4, zerolog.Nop())
	ctx := context.Background()

	assert.ErrorIs(t, client.StartCollection(ctx, "ant-1", "s-1"), calerr.ErrDeviceNotConnected)

	publisher.connected = true
	require.NoError(t, client.Emit(ctx, workflow.SensorEvent{Type: workflow.EventDeviceDisconnected, AntennaID: "ant-1"}))
	assert.ErrorIs(t, client.StartCollection(ctx, "ant-1", "s-1"), calerr.ErrDeviceNotConnected)

	require.NoError(t, client.Emit(ctx, workflow.SensorEvent{Type: workflow.EventDeviceConnected, AntennaID: "ant-1"}))
	assert.NoError(t, client.StartCollection(ctx, "ant-1", "s-1"))

	publisher.err = errors.New("broker gone")
	assert.Error(t, client.PauseCollection(ctx, "s-1"))
}

func TestSensingClientEmit(t *testing.T) {
	client := NewSensingClient(&fakePublisher{connected: true}, NewTopicManager("site", zerolog.Nop()), 1, zerolog.Nop())

	assert.Error(t, client.Emit(context.Background(), workflow.SensorEvent{Type: workflow.EventDataReceived}))

	require.NoError(t, client.Emit(context.Background(), workflow.SensorEvent{Type: workflow.EventDeviceFound, AntennaID: "ant-1"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, client.Emit(ctx, workflow.SensorEvent{Type: workflow.EventDeviceFound, AntennaID: "ant-2"}), context.DeadlineExceeded)

	e := <-client.Events()
	assert.Equal(t, "ant-1", e.AntennaID)
}
