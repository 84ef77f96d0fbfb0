package listeners

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gps-no-calibration/internal/interfaces"
	"strings"
	"sync"
	"time"
)

const (
	// NotifyChannel is the pg_notify channel used by notify_calibration_change().
	NotifyChannel = "table_events"

	pingInterval    = 90 * time.Second
	dispatchTimeout = 30 * time.Second
)

// keyColumner is implemented by listeners that only need some columns of a changed row.
type keyColumner interface {
	KeyColumns() []string
}

// Resyncer is implemented by listeners that can rebuild their state after the LISTEN
// connection was re-established.
type Resyncer interface {
	Resync(ctx context.Context) error
}

type ListenerManager struct {
	db       *gorm.DB
	listener *pq.Listener
	logger   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	listeners map[string][]interfaces.ITableListener
	channels  map[string]bool
}

func NewListenerManager(db *gorm.DB, dsn string, logger zerolog.Logger) *ListenerManager {
	ctx, cancel := context.WithCancel(context.Background())

	reportProblem := func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventDisconnected:
			logger.Warn().Err(err).Msg("PostgreSQL listener disconnected")
		case pq.ListenerEventReconnected:
			logger.Info().Msg("PostgreSQL listener reconnected")
		case pq.ListenerEventConnectionAttemptFailed:
			logger.Error().Err(err).Msg("PostgreSQL listener reconnect attempt failed")
		}
	}

	return &ListenerManager{
		db:        db,
		listener:  pq.NewListener(dsn, 10*time.Second, time.Minute, reportProblem),
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		listeners: make(map[string][]interfaces.ITableListener),
		channels:  make(map[string]bool),
	}
}

func (lm *ListenerManager) RegisterListener(listener interfaces.ITableListener) error {
	tableName := listener.GetTableName()
	channelName := listener.GetChannelName()

	if !lm.channels[channelName] {
		if err := lm.listener.Listen(channelName); err != nil {
			return fmt.Errorf("failed to listen on channel %s: %w", channelName, err)
		}
		lm.channels[channelName] = true
	}
	lm.listeners[tableName] = append(lm.listeners[tableName], listener)

	lm.logger.Info().
		Str("table", tableName).
		Str("channel", channelName).
		Strs("columns", keyColumns(listener)).
		Msg("Registered table listener")
	return nil
}

func (lm *ListenerManager) Initialize() error {
	if err := lm.db.Exec(notifyFunctionSQL).Error; err != nil {
		return fmt.Errorf("failed to create notify function: %w", err)
	}

	for tableName, tableListeners := range lm.listeners {
		if err := lm.db.Exec(triggerSQL(tableName, tableColumns(tableListeners))).Error; err != nil {
			return fmt.Errorf("failed to create trigger for table %s: %w", tableName, err)
		}
	}

	lm.logger.Info().
		Int("tables", len(lm.listeners)).
		Msg("Listener manager initialized")
	return nil
}

// notifyFunctionSQL publishes the operation plus the trigger's column arguments of the
// old and new row. Without arguments the whole row is sent.
const notifyFunctionSQL = `
CREATE OR REPLACE FUNCTION notify_calibration_change() RETURNS trigger AS $$
DECLARE
	old_data jsonb := NULL;
	new_data jsonb := NULL;
BEGIN
	IF TG_OP IN ('UPDATE', 'DELETE') THEN
		old_data := to_jsonb(OLD);
	END IF;
	IF TG_OP IN ('INSERT', 'UPDATE') THEN
		new_data := to_jsonb(NEW);
	END IF;

	IF TG_NARGS > 0 THEN
		SELECT jsonb_object_agg(key, value) INTO old_data
			FROM jsonb_each(old_data) WHERE key = ANY(TG_ARGV);
		SELECT jsonb_object_agg(key, value) INTO new_data
			FROM jsonb_each(new_data) WHERE key = ANY(TG_ARGV);
	END IF;

	PERFORM pg_notify('` + NotifyChannel + `', json_build_object(
		'operation', TG_OP,
		'table', TG_TABLE_NAME,
		'old_data', old_data,
		'new_data', new_data,
		'timestamp', now()
	)::text);

	IF TG_OP = 'DELETE' THEN
		RETURN OLD;
	END IF;
	RETURN NEW;
END;
$$ LANGUAGE plpgsql;`

func triggerSQL(tableName string, columns []string) string {
	args := make([]string, len(columns))
	for i, c := range columns {
		args[i] = pq.QuoteLiteral(c)
	}
	table := pq.QuoteIdentifier(tableName)
	trigger := pq.QuoteIdentifier(tableName + "_change_trigger")

	return fmt.Sprintf(`
DROP TRIGGER IF EXISTS %[1]s ON %[2]s;
CREATE TRIGGER %[1]s
	AFTER INSERT OR UPDATE OR DELETE ON %[2]s
	FOR EACH ROW EXECUTE FUNCTION notify_calibration_change(%[3]s);`,
		trigger, table, strings.Join(args, ", "))
}

// tableColumns merges the key columns of every listener on one table. Any listener that
// wants whole rows gets whole rows.
func tableColumns(tableListeners []interfaces.ITableListener) []string {
	seen := map[string]bool{}
	var columns []string
	for _, l := range tableListeners {
		cols := keyColumns(l)
		if len(cols) == 0 {
			return nil
		}
		for _, c := range cols {
			if !seen[c] {
				seen[c] = true
				columns = append(columns, c)
			}
		}
	}
	return columns
}

func keyColumns(l interfaces.ITableListener) []string {
	if k, ok := l.(keyColumner); ok {
		return k.KeyColumns()
	}
	return nil
}

func (lm *ListenerManager) listenForChanges() {
	defer lm.wg.Done()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case notification, ok := <-lm.listener.Notify:
			if !ok {
				return
			}
			// pq delivers nil after the connection was re-established.
			if notification == nil {
				lm.resync(lm.ctx)
				continue
			}
			lm.dispatch(lm.ctx, notification.Extra)
		case <-ticker.C:
			if err := lm.listener.Ping(); err != nil {
				lm.logger.Error().Err(err).Msg("PostgreSQL listener ping failed")
			}
		case <-lm.ctx.Done():
			lm.logger.Info().Msg("Table listener manager stopping...")
			return
		}
	}
}

func (lm *ListenerManager) dispatch(ctx context.Context, payload string) {
	var event interfaces.TableChangeEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		lm.logger.Error().Err(err).
			Str("payload", payload).
			Msg("Failed to parse notification")
		return
	}

	tableListeners, exists := lm.listeners[event.Table]
	if !exists {
		lm.logger.Debug().
			Str("table", event.Table).
			Msg("No listeners registered for table")
		return
	}

	for _, l := range tableListeners {
		handleCtx, cancel := context.WithTimeout(ctx, dispatchTimeout)
		if err := l.HandleChange(handleCtx, &event); err != nil {
			lm.logger.Error().Err(err).
				Str("table", event.Table).
				Str("operation", string(event.Operation)).
				Str("listener", fmt.Sprintf("%T", l)).
				Msg("Error handling table change")
		}
		cancel()
	}
}

func (lm *ListenerManager) resync(ctx context.Context) {
	for table, tableListeners := range lm.listeners {
		for _, l := range tableListeners {
			r, ok := l.(Resyncer)
			if !ok {
				continue
			}
			resyncCtx, cancel := context.WithTimeout(ctx, dispatchTimeout)
			if err := r.Resync(resyncCtx); err != nil {
				lm.logger.Error().Err(err).
					Str("table", table).
					Str("listener", fmt.Sprintf("%T", l)).
					Msg("Failed to resync listener")
			}
			cancel()
		}
	}
	lm.logger.Info().Msg("Table listeners resynced after reconnect")
}

func (lm *ListenerManager) Start() {
	lm.wg.Add(1)
	go lm.listenForChanges()
}

func (lm *ListenerManager) Stop() {
	if lm == nil {
		return
	}

	lm.cancel()
	lm.wg.Wait()
	if err := lm.listener.Close(); err != nil {
		lm.logger.Warn().Err(err).Msg("Failed to close PostgreSQL listener")
	}
	lm.logger.Info().Msg("Table listener manager stopped")
}

var _ interfaces.IListenerManager = (*ListenerManager)(nil)
