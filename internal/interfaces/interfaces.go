package interfaces

import (
	"context"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"time"
)

type IMqClient interface {
	PublishJson(topic string, data interface{}) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Disconnect(ctx context.Context)
	Connect(ctx context.Context) error
	IsConnected() bool
}

type ITopicManager interface {
	GetObservationTopic() string
	GetAntennaStatusTopic() string
	GetRangingTopic() string
	GetCollectionTopic(antennaID string) string
	GetPositionTopic(tagID string) string
	GetCalibrationTopic(antennaID string) string
	GetBaseTopic() string
	ExtractIdFromTopic(topic, template string) (string, error)
	ExtractAntennaId(topic string) (string, error)
	ExtractTagId(topic string) (string, error)
}

type ITableListener interface {
	GetTableName() string
	HandleChange(ctx context.Context, event *TableChangeEvent) error
	GetChannelName() string
}

type IListenerManager interface {
	RegisterListener(listener ITableListener) error
	Initialize() error
	Start()
	Stop()
}

type OperationType string

const (
	InsertOperation OperationType = "INSERT"
	UpdateOperation OperationType = "UPDATE"
	DeleteOperation OperationType = "DELETE"
)

type TableChangeEvent struct {
	Operation OperationType          `json:"operation"`
	Table     string                 `json:"table"`
	OldData   map[string]interface{} `json:"old_data,omitempty"`
	NewData   map[string]interface{} `json:"new_data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// StringField returns a string column from the new row, falling back to the old row for deletes.
func (t *TableChangeEvent) StringField(name string) string {
	for _, row := range []map[string]interface{}{t.NewData, t.OldData} {
		if v, ok := row[name].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
