package main

import (
	"context"
	"errors"
	"fmt"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gps-no-calibration/internal/calibration"
	"gps-no-calibration/internal/config"
	"gps-no-calibration/internal/database/influx"
	"gps-no-calibration/internal/database/postgres"
	"gps-no-calibration/internal/database/postgres/listeners"
	"gps-no-calibration/internal/database/postgres/repositories"
	"gps-no-calibration/internal/estimator"
	"gps-no-calibration/internal/logger"
	"gps-no-calibration/internal/mq"
	"gps-no-calibration/internal/mq/handlers"
	"gps-no-calibration/internal/positioning"
	"gps-no-calibration/internal/services"
	"gps-no-calibration/internal/workflow"
	"gps-no-calibration/internal/ws"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const (
	sensorEventBuffer = 256
	shutdownTimeout   = 10 * time.Second
)

type Application struct {
	config *config.Config

	postgresDB      *postgres.PostgresDB
	listenerManager *listeners.ListenerManager
	influxDB        *influx.InfluxDB

	calibrationRepository     *repositories.CalibrationRepository
	antennaPositionRepository *repositories.AntennaPositionRepository

	calibrationStore   *services.CalibrationStore
	calibrationManager *calibration.Manager
	positionService    *services.PositionService
	sensingClient      *mq.SensingClient
	workflow           *workflow.Workflow

	mqttClient   *mq.Client
	topicManager *mq.TopicManager

	hub        *ws.Hub
	httpServer *http.Server

	shutdownChan chan os.Signal
	ctx          context.Context
	cancelFunc   context.CancelFunc
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the calibration service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := &Application{}

			if err := app.initialize(); err != nil {
				app.shutdown()
				return fmt.Errorf("failed to initialize application: %w", err)
			}

			return app.run()
		},
	}
}

func (app *Application) initialize() error {
	var err error

	app.config, err = config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.NewLogger(app.config.Logger)
	log.Info().
		Str("component", "main").
		Str("service", app.config.Service.Name).
		Str("version", app.config.Service.Version).
		Msg("Setting up service...")

	app.ctx, app.cancelFunc = context.WithCancel(context.Background())
	app.shutdownChan = make(chan os.Signal, 1)
	signal.Notify(app.shutdownChan, syscall.SIGINT, syscall.SIGTERM)

	if err := app.initializeDatabases(); err != nil {
		return fmt.Errorf("error while initialize databases: %w", err)
	}

	if err := app.initializeMQTT(); err != nil {
		return fmt.Errorf("error while initializing MQTT: %w", err)
	}

	if err := app.initializeRepositories(); err != nil {
		return fmt.Errorf("error while initializing repositories: %w", err)
	}

	if err := app.initializeServices(); err != nil {
		return fmt.Errorf("error while initializing services: %w", err)
	}

	if err := app.setupTopicHandlers(); err != nil {
		return fmt.Errorf("error while setting up topic handlers: %w", err)
	}

	if err := app.setupTableListeners(); err != nil {
		return fmt.Errorf("error while setting up table listeners: %w", err)
	}

	app.setupHTTP()

	log.Info().Msg("Successfully initialized application")
	return nil
}

func (app *Application) initializeDatabases() error {
	var err error

	app.postgresDB, err = postgres.NewConnection(app.config.Postgres, logger.GetLogger("postgres"))
	if err != nil {
		return fmt.Errorf("could not connect to PostgreSQL: %w", err)
	}

	if app.config.InfluxDB.Enabled {
		app.influxDB, err = influx.NewConnection(app.config.InfluxDB, logger.GetLogger("influx"))
		if err != nil {
			return fmt.Errorf("could not connect to InfluxDB: %w", err)
		}
	} else {
		log.Warn().Str("component", "main").Msg("InfluxDB disabled, observations are not archived")
	}

	log.Info().
		Str("component", "main").
		Str("host", app.config.Postgres.Host).
		Bool("influx", app.influxDB != nil).
		Msg("Successfully initialized databases")
	return nil
}

func (app *Application) initializeMQTT() error {
	var err error

	app.topicManager = mq.NewTopicManager(app.config.MQTT.BaseTopic, logger.GetLogger("topic-manager"))

	app.mqttClient, err = mq.NewClient(app.config.MQTT, logger.GetLogger("mq-client"))
	if err != nil {
		return fmt.Errorf("could not create MQTT client: %w", err)
	}

	connectCtx, cancel := context.WithTimeout(app.ctx, 30*time.Second)
	defer cancel()

	if err := app.mqttClient.Connect(connectCtx); err != nil {
		return fmt.Errorf("could not connect to MQTT broker: %w", err)
	}

	log.Info().
		Str("component", "main").
		Str("broker", app.config.MQTT.GetUrl()).
		Msg("Successfully initialized MQTT client")
	return nil
}

func (app *Application) initializeRepositories() error {
	db := app.postgresDB.GetDB()

	app.calibrationRepository = repositories.NewCalibrationRepository(db)
	app.antennaPositionRepository = repositories.NewAntennaPositionRepository(db)

	log.Info().
		Str("component", "main").
		Msg("Successfully initialized repositories")
	return nil
}

func (app *Application) initializeServices() error {
	calCfg := app.config.Calibration
	svcCfg := app.config.Service

	model, err := estimator.ParseModel(calCfg.Model)
	if err != nil {
		return err
	}
	strategy, err := positioning.ParseStrategy(calCfg.PositionStrategy)
	if err != nil {
		return err
	}

	app.calibrationStore = services.NewCalibrationStore(
		app.calibrationRepository,
		app.antennaPositionRepository,
		logger.GetLogger("calibration-store"),
	)

	app.calibrationManager = calibration.NewManager(
		app.calibrationStore,
		logger.GetLogger("calibration-manager"),
		calibration.WithModel(model),
	)
	if err := app.calibrationManager.Load(app.ctx); err != nil {
		return fmt.Errorf("failed to load calibration data: %w", err)
	}

	positionOpts := []services.PositionServiceOption{
		services.WithPositionPublisher(app.mqttClient, app.topicManager.GetPositionTopic),
	}
	if app.influxDB != nil {
		positionOpts = append(positionOpts, services.WithTagPositionWriter(
			influx.NewPositionWriter(app.influxDB.GetWriteAPI(), logger.GetLogger("position-writer")),
		))
	}
	app.positionService = services.NewPositionService(
		positioning.NewEstimator(strategy),
		app.calibrationStore,
		svcCfg.FloorMapID,
		calCfg.PositionMaxRangeAge,
		logger.GetLogger("position-service"),
		positionOpts...,
	)
	if err := app.positionService.ReloadAnchors(app.ctx); err != nil {
		return fmt.Errorf("failed to load anchor positions: %w", err)
	}

	app.sensingClient = mq.NewSensingClient(
		app.mqttClient,
		app.topicManager,
		sensorEventBuffer,
		logger.GetLogger("sensing-client"),
	)

	workflowOpts := []workflow.Option{
		workflow.WithPositionStore(app.calibrationStore),
		workflow.WithCalibrationManager(app.calibrationManager),
	}
	if app.influxDB != nil {
		workflowOpts = append(workflowOpts, workflow.WithArchive(
			influx.NewObservationWriter(app.influxDB.GetWriteAPI(), logger.GetLogger("observation-writer")),
		))
	}
	app.workflow = workflow.NewWorkflow(
		workflow.Config{
			AntennaIDs:         svcCfg.AntennaIDs,
			FloorMapID:         svcCfg.FloorMapID,
			CollectionDuration: calCfg.CollectionDuration,
			TickInterval:       calCfg.TickInterval,
			AcceptanceRadius:   calCfg.AcceptanceRadius,
			MinStrength:        calCfg.MinStrength,
			RequireLineOfSight: calCfg.RequireLineOfSight,
			Model:              model,
		},
		app.sensingClient,
		logger.GetLogger("workflow"),
		workflowOpts...,
	)

	go func() {
		if err := app.workflow.Consume(app.ctx, app.sensingClient.Events()); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Sensor event loop stopped")
		}
	}()

	log.Info().
		Str("component", "main").
		Str("model", string(model)).
		Str("position_strategy", string(strategy)).
		Strs("antennas", app.calibrationManager.AntennaIDs()).
		Msg("Successfully initialized services")
	return nil
}

func (app *Application) setupTopicHandlers() error {
	observationHandler := handlers.NewObservationHandler(
		app.topicManager,
		app.sensingClient,
		logger.GetLogger("observation-handler"),
	)
	statusHandler := handlers.NewAntennaStatusHandler(
		app.topicManager,
		app.sensingClient,
		logger.GetLogger("antenna-status-handler"),
	)
	rangingHandler := handlers.NewRangingHandler(
		app.topicManager,
		app.positionService,
		logger.GetLogger("ranging-handler"),
	)

	qos := app.config.MQTT.QoS
	if err := app.mqttClient.Subscribe(app.topicManager.GetObservationTopic(), qos, observationHandler.HandleMessage); err != nil {
		return fmt.Errorf("error subscribing to observation topic: %w", err)
	}
	if err := app.mqttClient.Subscribe(app.topicManager.GetAntennaStatusTopic(), qos, statusHandler.HandleMessage); err != nil {
		return fmt.Errorf("error subscribing to antenna status topic: %w", err)
	}
	if err := app.mqttClient.Subscribe(app.topicManager.GetRangingTopic(), qos, rangingHandler.HandleMessage); err != nil {
		return fmt.Errorf("error subscribing to ranging topic: %w", err)
	}

	return nil
}

func (app *Application) setupTableListeners() error {
	app.listenerManager = listeners.NewListenerManager(
		app.postgresDB.GetDB(),
		app.config.Postgres.GetDsn(),
		logger.GetLogger("listener-manager"),
	)

	calibrationListener := listeners.NewCalibrationTableListener(
		logger.GetLogger("calibration-listener"),
		app.calibrationManager,
		app.mqttClient,
		app.topicManager.GetCalibrationTopic,
	)
	if err := app.listenerManager.RegisterListener(calibrationListener); err != nil {
		return fmt.Errorf("failed to register calibration listener: %w", err)
	}

	positionListener := listeners.NewAntennaPositionTableListener(
		logger.GetLogger("antenna-position-listener"),
		app.positionService,
	)
	if err := app.listenerManager.RegisterListener(positionListener); err != nil {
		return fmt.Errorf("failed to register antenna position listener: %w", err)
	}

	if err := app.listenerManager.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize listener manager: %w", err)
	}

	app.listenerManager.Start()

	log.Info().Msg("All table listeners initialized and started")
	return nil
}

func (app *Application) setupHTTP() {
	app.hub = ws.NewHub(app.workflow, logger.GetLogger("ws-hub"))

	mux := http.NewServeMux()
	mux.Handle("/ws/calibration", app.hub)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if !app.mqttClient.IsConnected() {
			http.Error(w, "mqtt disconnected", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	app.httpServer = &http.Server{
		Addr:              app.config.Service.HTTPAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func (app *Application) run() error {
	go app.hub.Run(app.ctx)

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("address", app.httpServer.Addr).Msg("HTTP server listening")
		if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	var runErr error
	select {
	case sig := <-app.shutdownChan:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case err := <-serverErr:
		log.Error().Err(err).Msg("HTTP server failed")
		runErr = fmt.Errorf("http server: %w", err)
	case <-app.ctx.Done():
		log.Info().Msg("context cancelled, shutting down application")
	}

	app.shutdown()
	return runErr
}

func (app *Application) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if app.httpServer != nil {
		if err := app.httpServer.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("Error shutting down HTTP server")
		}
	}

	if app.workflow != nil {
		app.workflow.Cancel(ctx)
	}

	if app.listenerManager != nil {
		app.listenerManager.Stop()
	}

	if app.mqttClient != nil {
		app.mqttClient.Disconnect(ctx)
	}

	if app.influxDB != nil {
		app.influxDB.Close()
	}

	if app.postgresDB != nil {
		if err := app.postgresDB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing PostgreSQL connection")
		}
	}

	if app.cancelFunc != nil {
		app.cancelFunc()
	}
}
