package listeners

import (
	"context"
	"fmt"
	"github.com/rs/zerolog"
	"gps-no-calibration/internal/interfaces"
)

type AnchorReloader interface {
	ReloadAnchors(ctx context.Context) error
	FloorMapID() string
}

// AntennaPositionTableListener reloads the live position anchors when a position row on
// the served floor map changes.
type AntennaPositionTableListener struct {
	*BaseTableListener
	logger   zerolog.Logger
	reloader AnchorReloader
}

func NewAntennaPositionTableListener(logger zerolog.Logger, reloader AnchorReloader) *AntennaPositionTableListener {
	return &AntennaPositionTableListener{
		BaseTableListener: NewBaseTableListener("antenna_positions", "antenna_id", "floor_map_id"),
		logger:            logger,
		reloader:          reloader,
	}
}

func (a *AntennaPositionTableListener) HandleChange(ctx context.Context, event *interfaces.TableChangeEvent) error {
	floorMapID := event.StringField("floor_map_id")
	if floorMapID != a.reloader.FloorMapID() {
		return nil
	}

	a.logger.Info().
		Str("operation", string(event.Operation)).
		Str("antenna_id", event.StringField("antenna_id")).
		Str("floor_map_id", floorMapID).
		Msg("Antenna position change detected")

	if err := a.reloader.ReloadAnchors(ctx); err != nil {
		return fmt.Errorf("reload anchors of floor map %s: %w", floorMapID, err)
	}
	return nil
}

func (a *AntennaPositionTableListener) Resync(ctx context.Context) error {
	return a.reloader.ReloadAnchors(ctx)
}

var (
	_ interfaces.ITableListener = (*AntennaPositionTableListener)(nil)
	_ Resyncer                  = (*AntennaPositionTableListener)(nil)
)
