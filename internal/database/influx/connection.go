package influx

import (
	"context"
	"fmt"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/rs/zerolog"
	"gps-no-calibration/internal/config/components"
	"time"
)

type InfluxDB struct {
	client     influxdb2.Client
	writeAPI   api.WriteAPI
	logger     zerolog.Logger
	cancelFunc context.CancelFunc
}

func NewConnection(cfg components.InfluxConfigImpl, logger zerolog.Logger) (*InfluxDB, error) {
	options := influxdb2.DefaultOptions().
		SetBatchSize(uint(cfg.BatchSize)).
		SetFlushInterval(uint(cfg.FlushInterval) * 1000)

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, options)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	health, err := client.Health(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("error connecting to InfluxDB: %w", err)
	}

	if health.Status != "pass" {
		client.Close()
		return nil, fmt.Errorf("InfluxDB health check failed: %s", health.Status)
	}

	errCtx, cancelFunc := context.WithCancel(context.Background())

	influxDB := &InfluxDB{
		client:     client,
		writeAPI:   client.WriteAPI(cfg.Organization, cfg.Bucket),
		logger:     logger,
		cancelFunc: cancelFunc,
	}

	go influxDB.handleWriteErrors(errCtx)

	logger.Info().
		Str("url", cfg.URL).
		Str("organization", cfg.Organization).
		Str("bucket", cfg.Bucket).
		Msg("Successfully connected to InfluxDB")

	return influxDB, nil
}

// handleWriteErrors drains the asynchronous write errors, which would otherwise block the writer.
func (i *InfluxDB) handleWriteErrors(ctx context.Context) {
	errorsCh := i.writeAPI.Errors()
	for {
		select {
		case err := <-errorsCh:
			i.logger.Error().Err(err).Msg("Write error occurred")
		case <-ctx.Done():
			return
		}
	}
}

func (i *InfluxDB) GetWriteAPI() api.WriteAPI {
	return i.writeAPI
}

func (i *InfluxDB) Close() {
	i.writeAPI.Flush()
	i.cancelFunc()
	i.client.Close()

	i.logger.Info().Msg("InfluxDB connection closed")
}
