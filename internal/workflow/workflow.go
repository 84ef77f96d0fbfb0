// Package workflow drives the guided antenna calibration: reference points are visited
// one at a time, each antenna records a bounded observation window per point, and the
// collected samples are fitted into a per-antenna local-to-world transform.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gps-no-calibration/internal/calerr"
	"gps-no-calibration/internal/calibration"
	"gps-no-calibration/internal/estimator"
	"gps-no-calibration/internal/geometry"
	"gps-no-calibration/internal/models"
	"sort"
	"sync"
	"time"
)

var (
	ErrInvalidState       = errors.New("invalid workflow state")
	ErrNoReferencePoints  = errors.New("at least one reference point is required")
	ErrCollectionCanceled = errors.New("collection canceled")
)

type Option func(*Workflow)

func WithPositionStore(store PositionStore) Option {
	return func(w *Workflow) {
		w.positions = store
	}
}

func WithCalibrationManager(m *calibration.Manager) Option {
	return func(w *Workflow) {
		w.manager = m
	}
}

func WithArchive(archive Archive) Option {
	return func(w *Workflow) {
		w.archive = archive
	}
}

func WithClock(now func() time.Time) Option {
	return func(w *Workflow) {
		w.now = now
	}
}

// Workflow is the single owner of all calibration run state. Every mutation happens under
// mu; collaborator calls are made after releasing it. Timer callbacks carry the
// generation they were started for and are ignored once it has moved on.
type Workflow struct {
	mu sync.Mutex

	cfg       Config
	sensor    Sensor
	positions PositionStore
	manager   *calibration.Manager
	archive   Archive
	now       func() time.Time
	logger    zerolog.Logger

	state        State
	step         Step
	references   []geometry.Point3D
	currentIndex int
	sessions     []*ObservationSession
	window       []*ObservationSession
	preview      []AntennaPreview
	results      map[string]models.CalibrationResult
	lastError    string
	connected    map[string]bool

	windowStarted time.Time
	generation    uint64
	stopWindow    context.CancelFunc
	windowDone    chan struct{}

	subscribers    map[int]chan Progress
	nextSubscriber int
}

func NewWorkflow(cfg Config, sensor Sensor, logger zerolog.Logger, opts ...Option) *Workflow {
	w := &Workflow{
		cfg:         cfg.withDefaults(),
		sensor:      sensor,
		now:         time.Now,
		logger:      logger,
		state:       StateIdle,
		connected:   make(map[string]bool),
		subscribers: make(map[int]chan Progress),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// SetReferencePoints stores the ground-truth points for the next run. Points must be
// finite and pairwise distinct.
func (w *Workflow) SetReferencePoints(points []geometry.Point3D) error {
	if len(points) == 0 {
		return ErrNoReferencePoints
	}
	for i, p := range points {
		if !p.IsFinite() {
			return calerr.InvalidData(calerr.ErrNonFiniteCoordinate, "reference point %d %s is not finite", i, p)
		}
		for j := 0; j < i; j++ {
			if points[j] == p {
				return calerr.InvalidData(calerr.ErrDuplicateReference, "reference points %d and %d are both %s", j, i, p)
			}
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.state {
	case StateIdle, StateCollectingReference, StateCompleted, StateFailed:
	default:
		return w.stateErrorLocked("set reference points")
	}

	w.resetLocked()
	w.references = append([]geometry.Point3D(nil), points...)
	w.state = StateCollectingReference

	w.logger.Info().
		Int("reference_points", len(points)).
		Msg("Reference points set")

	w.notifyLocked()
	return nil
}

func (w *Workflow) ReferencePoints() []geometry.Point3D {
	w.mu.Lock()
	defer w.mu.Unlock()

	return append([]geometry.Point3D(nil), w.references...)
}

func (w *Workflow) StartStepByStep() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != StateCollectingReference || len(w.references) == 0 {
		return w.stateErrorLocked("start step-by-step calibration")
	}

	w.state = StateCollectingObservation
	w.step = StepPlacingTag
	w.currentIndex = 0
	w.sessions = nil
	w.window = nil
	w.preview = nil
	w.results = nil
	w.lastError = ""

	w.logger.Info().
		Int("reference_points", len(w.references)).
		Msg("Step-by-step calibration started")

	w.notifyLocked()
	return nil
}

func (w *Workflow) ConfirmTagPlaced() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != StateCollectingObservation || w.step != StepPlacingTag {
		return w.stateErrorLocked("confirm tag placement")
	}

	w.step = StepReadyToStart
	w.notifyLocked()
	return nil
}

// StartCollecting opens one observation session per antenna for the current reference
// point and starts the bounded collection window. The window closes on its own after the
// configured duration.
func (w *Workflow) StartCollecting(ctx context.Context) error {
	w.mu.Lock()
	if w.state != StateCollectingObservation || w.step != StepReadyToStart {
		err := w.stateErrorLocked("start collecting")
		w.mu.Unlock()
		return err
	}

	antennas := w.antennasLocked()
	if len(antennas) == 0 {
		w.mu.Unlock()
		return fmt.Errorf("%w: no antennas available", calerr.ErrDeviceNotConnected)
	}

	now := w.now()
	window := make([]*ObservationSession, 0, len(antennas))
	pending := make([]*ObservationSession, 0, len(antennas))
	for _, antennaID := range antennas {
		s := &ObservationSession{
			ID:             uuid.NewString(),
			AntennaID:      antennaID,
			ReferenceIndex: w.currentIndex,
			StartTime:      now,
			Status:         SessionRecording,
		}
		if connected, known := w.connected[antennaID]; known && !connected {
			s.close(SessionFailed, now)
			w.logger.Warn().
				Str("antenna_id", antennaID).
				Msg("Antenna not connected, skipping collection")
		} else {
			pending = append(pending, s)
		}
		window = append(window, s)
	}

	w.generation++
	generation := w.generation
	w.step = StepCollecting
	w.window = window
	w.sessions = append(w.sessions, window...)
	w.preview = nil
	w.windowStarted = now
	index := w.currentIndex
	w.mu.Unlock()

	var startErrs []error
	started := make([]*ObservationSession, 0, len(pending))
	for _, s := range pending {
		if err := w.sensor.StartCollection(ctx, s.AntennaID, s.ID); err != nil {
			w.logger.Error().Err(err).
				Str("antenna_id", s.AntennaID).
				Str("session_id", s.ID).
				Msg("Failed to start collection")
			startErrs = append(startErrs, fmt.Errorf("antenna %s: %w", s.AntennaID, err))
			continue
		}
		started = append(started, s)
	}

	w.mu.Lock()
	if generation != w.generation {
		w.mu.Unlock()
		w.stopSessions(context.Background(), sessionIDs(started))
		return ErrCollectionCanceled
	}

	failedAt := w.now()
	for _, s := range pending {
		if !containsSession(started, s) {
			s.close(SessionFailed, failedAt)
		}
	}

	if len(started) == 0 {
		w.generation++
		w.step = StepReadyToStart
		w.window = nil
		w.notifyLocked()
		w.mu.Unlock()

		if len(startErrs) == 0 {
			return fmt.Errorf("%w: no antenna could start collecting", calerr.ErrDeviceNotConnected)
		}
		return errors.Join(startErrs...)
	}

	windowCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	w.stopWindow = cancel
	w.windowDone = done
	w.windowStarted = w.now()
	go w.runWindow(windowCtx, generation, done)

	w.logger.Info().
		Int("reference_index", index).
		Int("sessions", len(started)).
		Dur("duration", w.cfg.CollectionDuration).
		Msg("Collection window started")

	w.notifyLocked()
	w.mu.Unlock()
	return nil
}

func (w *Workflow) runWindow(ctx context.Context, generation uint64, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(w.cfg.CollectionDuration)
	defer timer.Stop()
	ticker := time.NewTicker(w.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick(generation)
		case <-timer.C:
			w.completeWindow(context.Background(), generation)
			return
		}
	}
}

func (w *Workflow) tick(generation uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if generation != w.generation || w.step != StepCollecting {
		return
	}
	w.notifyLocked()
}

// completeWindow closes the window started for generation. It is a no-op when the
// window was already closed or canceled.
func (w *Workflow) completeWindow(ctx context.Context, generation uint64) bool {
	w.mu.Lock()
	if generation != w.generation || w.step != StepCollecting {
		w.mu.Unlock()
		return false
	}

	w.generation++
	if w.stopWindow != nil {
		w.stopWindow()
		w.stopWindow = nil
	}

	now := w.now()
	var toStop []string
	samples := 0
	for _, s := range w.window {
		if s.IsOpen() {
			toStop = append(toStop, s.ID)
		}
		s.close(SessionCompleted, now)
		samples += len(s.Observations)
	}

	w.step = StepShowingAntennaPosition
	w.preview = buildPreview(w.window)

	w.logger.Info().
		Int("reference_index", w.currentIndex).
		Int("samples", samples).
		Msg("Collection window closed")

	w.notifyLocked()
	w.mu.Unlock()

	w.stopSessions(ctx, toStop)
	return true
}

func (w *Workflow) StopCollecting(ctx context.Context) error {
	w.mu.Lock()
	if w.step != StepCollecting {
		err := w.stateErrorLocked("stop collecting")
		w.mu.Unlock()
		return err
	}
	generation := w.generation
	w.mu.Unlock()

	if !w.completeWindow(ctx, generation) {
		return fmt.Errorf("%w: collection window already closed", ErrInvalidState)
	}
	return nil
}

// PauseCollecting stops accepting samples into the open sessions. The window timer keeps
// running.
func (w *Workflow) PauseCollecting(ctx context.Context) error {
	return w.togglePause(ctx, true)
}

func (w *Workflow) ResumeCollecting(ctx context.Context) error {
	return w.togglePause(ctx, false)
}

func (w *Workflow) togglePause(ctx context.Context, pause bool) error {
	w.mu.Lock()
	if w.step != StepCollecting {
		err := w.stateErrorLocked("pause or resume collecting")
		w.mu.Unlock()
		return err
	}

	var ids []string
	for _, s := range w.window {
		var err error
		if pause {
			err = s.pause()
		} else {
			err = s.resume()
		}
		if err == nil {
			ids = append(ids, s.ID)
		}
	}
	w.notifyLocked()
	w.mu.Unlock()

	if len(ids) == 0 {
		return fmt.Errorf("%w: no session to update", calerr.ErrSessionNotFound)
	}

	for _, id := range ids {
		var err error
		if pause {
			err = w.sensor.PauseCollection(ctx, id)
		} else {
			err = w.sensor.ResumeCollection(ctx, id)
		}
		if err != nil {
			w.logger.Warn().Err(err).
				Str("session_id", id).
				Bool("pause", pause).
				Msg("Sensor did not acknowledge pause state")
		}
	}
	return nil
}

// Ingest appends an observation to the recording session it belongs to. Samples for
// closed, paused or unknown sessions are discarded with ErrSessionNotFound.
func (w *Workflow) Ingest(ctx context.Context, observation models.ObservationPoint) error {
	if err := observation.Validate(); err != nil {
		return calerr.InvalidData(err, "observation: %v", err)
	}
	observation.Quality = observation.Quality.Clamped()

	w.mu.Lock()
	s := w.recordingSessionLocked(observation)
	if s == nil {
		w.mu.Unlock()
		return fmt.Errorf("%w: no recording session for antenna %s", calerr.ErrSessionNotFound, observation.AntennaID)
	}
	observation.SessionID = s.ID
	s.Observations = append(s.Observations, observation)
	archive := w.archive
	w.mu.Unlock()

	if archive != nil {
		if err := archive.WriteObservation(ctx, observation); err != nil {
			w.logger.Warn().Err(err).
				Str("antenna_id", observation.AntennaID).
				Msg("Failed to archive observation")
		}
	}
	return nil
}

func (w *Workflow) recordingSessionLocked(observation models.ObservationPoint) *ObservationSession {
	for _, s := range w.window {
		if s.Status != SessionRecording {
			continue
		}
		if observation.SessionID != "" {
			if s.ID == observation.SessionID {
				return s
			}
			continue
		}
		if s.AntennaID == observation.AntennaID {
			return s
		}
	}
	return nil
}

func (w *Workflow) Advance(ctx context.Context) error {
	w.mu.Lock()
	if w.state != StateCollectingObservation || w.step != StepShowingAntennaPosition {
		err := w.stateErrorLocked("advance")
		w.mu.Unlock()
		return err
	}

	if w.currentIndex+1 < len(w.references) {
		w.currentIndex++
		w.step = StepPlacingTag
		w.window = nil
		w.preview = nil
		w.notifyLocked()
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	_, err := w.ExecuteCalibration(ctx)
	return err
}

// MapObservationsToReferences builds the reference mappings from every session recorded
// so far. References without an accepted sample are left out.
func (w *Workflow) MapObservationsToReferences() []ReferenceObservationMapping {
	w.mu.Lock()
	defer w.mu.Unlock()

	return buildMappings(w.cfg, w.references, w.sessions)
}

// ExecuteCalibration fits every antenna that recorded at least one completed session.
// Antennas that fail do not stop the others; the run completes only when all succeed.
// Results are persisted only for a completed run.
func (w *Workflow) ExecuteCalibration(ctx context.Context) (map[string]models.CalibrationResult, error) {
	w.mu.Lock()
	if w.state != StateCollectingObservation || w.step == StepCollecting {
		err := w.stateErrorLocked("execute calibration")
		w.mu.Unlock()
		return nil, err
	}

	w.state = StateCalculating
	w.step = StepNone
	w.notifyLocked()

	mappings := buildMappings(w.cfg, w.references, w.sessions)
	if len(mappings) < MinimumMappings {
		err := &calerr.InsufficientMappingsError{Required: MinimumMappings, Found: len(mappings)}
		w.failLocked(err)
		w.mu.Unlock()
		return nil, err
	}

	antennas := w.attemptedAntennasLocked()
	if len(antennas) == 0 {
		w.failLocked(calerr.ErrNoCalibrationData)
		w.mu.Unlock()
		return nil, calerr.ErrNoCalibrationData
	}

	results := make(map[string]models.CalibrationResult, len(antennas))
	calibrated := make(map[string]*calibration.Session, len(antennas))
	var errs []error

	for _, antennaID := range antennas {
		session := calibration.NewSession(antennaID,
			calibration.WithModel(w.cfg.Model),
			calibration.WithClock(w.now),
			calibration.WithLogger(w.logger),
		)
		for _, m := range mappings {
			if centroid, ok := m.AntennaCentroids[antennaID]; ok {
				session.AddPoint(m.ReferencePosition, centroid)
			}
		}

		result := models.CalibrationResult{
			AntennaID:       antennaID,
			ProcessedPoints: len(session.Points()),
		}

		var err error
		if result.ProcessedPoints < estimator.MinimumPairs {
			err = &calerr.InsufficientPointsError{
				AntennaID: antennaID,
				Required:  estimator.MinimumPairs,
				Provided:  result.ProcessedPoints,
			}
		} else {
			var transform geometry.AffineTransform
			if transform, err = session.ComputeTransform(); err != nil {
				err = fmt.Errorf("antenna %s: %w", antennaID, err)
			} else {
				result.Success = true
				result.Transform = &transform
				result.Accuracy = transform.Accuracy
				calibrated[antennaID] = session
			}
		}

		if err != nil {
			result.Err = err
			result.ErrorMessage = err.Error()
			errs = append(errs, err)
			w.logger.Warn().Err(err).
				Str("antenna_id", antennaID).
				Msg("Antenna calibration failed")
		} else {
			w.logger.Info().
				Str("antenna_id", antennaID).
				Float64("accuracy", result.Accuracy).
				Int("points", result.ProcessedPoints).
				Msg("Antenna calibrated")
		}
		results[antennaID] = result
	}

	w.results = results

	var runErr error
	if len(errs) > 0 {
		runErr = fmt.Errorf("calibration failed for %d of %d antennas: %w", len(errs), len(antennas), errors.Join(errs...))
		w.failLocked(runErr)
	} else {
		w.state = StateCompleted
		w.lastError = ""
		w.notifyLocked()
	}

	floorMapID := w.cfg.FloorMapID
	manager, positions, archive := w.manager, w.positions, w.archive
	w.mu.Unlock()

	if runErr == nil {
		w.persist(ctx, floorMapID, antennas, results, calibrated, manager, positions)
	}
	if archive != nil {
		for _, antennaID := range antennas {
			if err := archive.WriteCalibrationResult(ctx, floorMapID, results[antennaID]); err != nil {
				w.logger.Warn().Err(err).
					Str("antenna_id", antennaID).
					Msg("Failed to archive calibration result")
			}
		}
	}

	return copyResults(results), runErr
}

// persist hands every calibrated antenna to the persistence collaborators. Failures are
// logged and never touch the in-memory results.
func (w *Workflow) persist(ctx context.Context, floorMapID string, antennas []string, results map[string]models.CalibrationResult, sessions map[string]*calibration.Session, manager *calibration.Manager, positions PositionStore) {
	for _, antennaID := range antennas {
		result := results[antennaID]
		if !result.Success {
			continue
		}

		if manager != nil {
			if err := manager.Install(ctx, sessions[antennaID]); err != nil {
				w.logger.Error().Err(err).
					Str("antenna_id", antennaID).
					Msg("Failed to persist calibration data")
			}
		}

		if positions != nil {
			position := models.NewAntennaPosition(antennaID, floorMapID, *result.Transform)
			if err := positions.SaveAntennaPosition(ctx, position); err != nil {
				w.logger.Error().Err(&calerr.PersistenceError{Op: "save antenna position", Err: err}).
					Str("antenna_id", antennaID).
					Msg("Failed to persist antenna position")
			}
		}
	}
}

// Cancel stops every open session and timer, drops all run data and returns to Idle.
// It is safe in any state.
func (w *Workflow) Cancel(ctx context.Context) {
	w.mu.Lock()
	w.generation++
	if w.stopWindow != nil {
		w.stopWindow()
		w.stopWindow = nil
	}
	done := w.windowDone
	w.windowDone = nil

	var toStop []string
	for _, s := range w.window {
		if s.IsOpen() {
			toStop = append(toStop, s.ID)
		}
	}
	previous := w.state
	w.resetLocked()
	w.notifyLocked()
	w.mu.Unlock()

	if done != nil {
		<-done
	}
	w.stopSessions(ctx, toStop)

	w.logger.Info().
		Str("previous_state", string(previous)).
		Msg("Calibration workflow reset")
}

func (w *Workflow) Reset(ctx context.Context) {
	w.Cancel(ctx)
}

// RunAutomatic drives the whole step-by-step loop without confirmations. Each window runs
// for the full collection duration.
func (w *Workflow) RunAutomatic(ctx context.Context) (map[string]models.CalibrationResult, error) {
	if err := w.StartStepByStep(); err != nil {
		return nil, err
	}

	for {
		if err := w.ConfirmTagPlaced(); err != nil {
			return nil, err
		}
		if err := w.StartCollecting(ctx); err != nil {
			return nil, err
		}

		w.mu.Lock()
		done := w.windowDone
		last := w.currentIndex == len(w.references)-1
		w.mu.Unlock()

		if done != nil {
			select {
			case <-ctx.Done():
				w.Cancel(context.Background())
				return nil, ctx.Err()
			case <-done:
			}
		}

		if err := w.Advance(ctx); err != nil {
			return w.Results(), err
		}
		if last {
			return w.Results(), nil
		}
	}
}

func (w *Workflow) HandleEvent(ctx context.Context, event SensorEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}

	switch event.Type {
	case EventDeviceFound:
		w.mu.Lock()
		if _, known := w.connected[event.AntennaID]; !known {
			w.connected[event.AntennaID] = false
		}
		w.mu.Unlock()
	case EventDeviceConnected:
		w.mu.Lock()
		w.connected[event.AntennaID] = true
		w.mu.Unlock()
	case EventDeviceDisconnected:
		w.mu.Lock()
		w.connected[event.AntennaID] = false
		now := w.now()
		for _, s := range w.window {
			if s.AntennaID == event.AntennaID && s.IsOpen() {
				s.close(SessionFailed, now)
				w.logger.Warn().
					Str("antenna_id", event.AntennaID).
					Str("session_id", s.ID).
					Msg("Antenna disconnected during collection")
			}
		}
		w.notifyLocked()
		w.mu.Unlock()
	case EventDataReceived:
		return w.Ingest(ctx, *event.Observation)
	}
	return nil
}

func (w *Workflow) Consume(ctx context.Context, events <-chan SensorEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				return nil
			}
			if err := w.HandleEvent(ctx, event); err != nil && !errors.Is(err, calerr.ErrSessionNotFound) {
				w.logger.Debug().Err(err).
					Str("event", string(event.Type)).
					Msg("Sensor event rejected")
			}
		}
	}
}

func (w *Workflow) Progress() Progress {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.progressLocked()
}

func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.state
}

func (w *Workflow) Results() map[string]models.CalibrationResult {
	w.mu.Lock()
	defer w.mu.Unlock()

	return copyResults(w.results)
}

func (w *Workflow) Sessions() []ObservationSession {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]ObservationSession, len(w.sessions))
	for i, s := range w.sessions {
		out[i] = s.clone()
	}
	return out
}

// Subscribe delivers a progress snapshot on every change. Slow subscribers miss
// intermediate snapshots. The returned func unsubscribes and closes the channel.
func (w *Workflow) Subscribe(buffer int) (<-chan Progress, func()) {
	ch := make(chan Progress, max(buffer, 1))

	w.mu.Lock()
	id := w.nextSubscriber
	w.nextSubscriber++
	w.subscribers[id] = ch
	ch <- w.progressLocked()
	w.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			w.mu.Lock()
			delete(w.subscribers, id)
			close(ch)
			w.mu.Unlock()
		})
	}
}

func (w *Workflow) notifyLocked() {
	if len(w.subscribers) == 0 {
		return
	}

	p := w.progressLocked()
	for _, ch := range w.subscribers {
		select {
		case ch <- p:
		default:
		}
	}
}

func (w *Workflow) progressLocked() Progress {
	total := len(w.references)
	p := Progress{
		State:                 w.state,
		Step:                  w.step,
		CurrentReferenceIndex: w.currentIndex,
		TotalReferencePoints:  total,
		TotalSteps:            total,
		Error:                 w.lastError,
	}

	switch w.step {
	case StepCollecting:
		elapsed := w.now().Sub(w.windowStarted)
		p.CollectionProgress = min(max(float64(elapsed)/float64(w.cfg.CollectionDuration), 0), 1)
	case StepShowingAntennaPosition:
		p.CollectionProgress = 1
		p.Preview = append([]AntennaPreview(nil), w.preview...)
	}

	switch w.state {
	case StateCollectingObservation:
		p.CurrentStep = w.currentIndex + 1
		if total > 0 {
			p.Progress = (float64(w.currentIndex) + p.CollectionProgress) / float64(total)
		}
	case StateCalculating, StateCompleted, StateFailed:
		p.CurrentStep = total
		p.Progress = 1
		p.Results = copyResults(w.results)
	}

	p.Instruction = w.instructionLocked()
	return p
}

func (w *Workflow) instructionLocked() string {
	switch w.state {
	case StateIdle:
		return "Set the reference points to begin calibration"
	case StateCollectingReference:
		return fmt.Sprintf("%d reference points set, start the step-by-step calibration", len(w.references))
	case StateCalculating:
		return "Calculating antenna calibration"
	case StateCompleted:
		return "Calibration completed"
	case StateFailed:
		return "Calibration failed: " + w.lastError
	}

	n := w.currentIndex + 1
	switch w.step {
	case StepPlacingTag:
		p := w.references[w.currentIndex]
		return fmt.Sprintf("Place the tag on reference point %d of %d at (%.2f, %.2f, %.2f)", n, len(w.references), p.X, p.Y, p.Z)
	case StepReadyToStart:
		return fmt.Sprintf("Tag placed on reference point %d, start collecting when ready", n)
	case StepCollecting:
		return fmt.Sprintf("Collecting observations for reference point %d, keep the tag still", n)
	case StepShowingAntennaPosition:
		return fmt.Sprintf("Review the antenna readings for reference point %d, then continue", n)
	}
	return ""
}

func (w *Workflow) failLocked(err error) {
	w.state = StateFailed
	w.step = StepNone
	w.lastError = err.Error()
	w.notifyLocked()
}

func (w *Workflow) resetLocked() {
	w.state = StateIdle
	w.step = StepNone
	w.references = nil
	w.currentIndex = 0
	w.sessions = nil
	w.window = nil
	w.preview = nil
	w.results = nil
	w.lastError = ""
}

func (w *Workflow) stateErrorLocked(op string) error {
	if w.step != StepNone {
		return fmt.Errorf("%w: cannot %s in state %s (step %s)", ErrInvalidState, op, w.state, w.step)
	}
	return fmt.Errorf("%w: cannot %s in state %s", ErrInvalidState, op, w.state)
}

func (w *Workflow) antennasLocked() []string {
	if len(w.cfg.AntennaIDs) > 0 {
		return append([]string(nil), w.cfg.AntennaIDs...)
	}

	var ids []string
	for id, connected := range w.connected {
		if connected {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (w *Workflow) attemptedAntennasLocked() []string {
	seen := map[string]bool{}
	var ids []string
	for _, s := range w.sessions {
		if s.Status != SessionCompleted || seen[s.AntennaID] {
			continue
		}
		seen[s.AntennaID] = true
		ids = append(ids, s.AntennaID)
	}
	sort.Strings(ids)
	return ids
}

func (w *Workflow) stopSessions(ctx context.Context, ids []string) {
	for _, id := range ids {
		if err := w.sensor.StopCollection(ctx, id); err != nil {
			w.logger.Warn().Err(err).
				Str("session_id", id).
				Msg("Failed to stop collection")
		}
	}
}

func sessionIDs(sessions []*ObservationSession) []string {
	ids := make([]string, len(sessions))
	for i, s := range sessions {
		ids[i] = s.ID
	}
	return ids
}

func containsSession(sessions []*ObservationSession, target *ObservationSession) bool {
	for _, s := range sessions {
		if s == target {
			return true
		}
	}
	return false
}

func copyResults(results map[string]models.CalibrationResult) map[string]models.CalibrationResult {
	if results == nil {
		return nil
	}
	out := make(map[string]models.CalibrationResult, len(results))
	for k, v := range results {
		out[k] = v
	}
	return out
}
