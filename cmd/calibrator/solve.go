package main

import (
	"encoding/json"
	"fmt"
	"github.com/spf13/cobra"
	"gps-no-calibration/internal/config/components"
	"gps-no-calibration/internal/estimator"
	"gps-no-calibration/internal/geometry"
	"io"
	"os"
	"sort"
)

var (
	solveFile            string
	solveModel           string
	solveTags            bool
	solveMinObservations int
)

// pairsInput is the file format for a single-antenna fit.
type pairsInput struct {
	AntennaID string                `json:"antenna_id"`
	Pairs     []estimator.PointPair `json:"pairs"`
}

// tagsInput is the file format for a multi-tag fit: known tag positions plus what each
// antenna measured for those tags in its own frame.
type tagsInput struct {
	Truth    map[string]geometry.Point3D          `json:"truth"`
	Antennas map[string]estimator.TagObservations `json:"antennas"`
}

type solveResult struct {
	AntennaID      string                   `json:"antenna_id,omitempty"`
	Model          estimator.Model          `json:"model,omitempty"`
	Transform      geometry.AffineTransform `json:"transform"`
	RMSE           float64                  `json:"rmse"`
	HeadingDegrees float64                  `json:"heading_degrees"`
	Position       geometry.Point3D         `json:"position"`
	TagCount       int                      `json:"tag_count,omitempty"`
	Error          string                   `json:"error,omitempty"`
}

func newSolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "solve",
		Short: "Fit a calibration transform offline",
		Long: `solve reads point pairs from a JSON file (or stdin with --file -) and prints the
fitted local-to-world transform together with its RMSE.

With --tags the file instead holds known tag positions and per-antenna tag
observations, and every antenna is calibrated from the tag means.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, closeFn, err := openInput(solveFile)
			if err != nil {
				return err
			}
			defer closeFn()

			if solveTags {
				return solveAntennas(in, cmd.OutOrStdout(), solveMinObservations)
			}
			model, err := estimator.ParseModel(solveModel)
			if err != nil {
				return err
			}
			return solvePairs(in, cmd.OutOrStdout(), model)
		},
	}

	calCfg := components.NewCalibrationConfig()

	cmd.Flags().StringVarP(&solveFile, "file", "f", "-", "JSON input file, - for stdin")
	cmd.Flags().StringVarP(&solveModel, "model", "m", calCfg.Model, "transform model: rigid, similarity or affine")
	cmd.Flags().BoolVar(&solveTags, "tags", false, "calibrate antennas from multi-tag observations")
	cmd.Flags().IntVar(&solveMinObservations, "min-observations", calCfg.MinTagObservations, "minimum observations per tag in --tags mode")

	return cmd
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open input: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

func solvePairs(in io.Reader, out io.Writer, model estimator.Model) error {
	var input pairsInput
	if err := json.NewDecoder(in).Decode(&input); err != nil {
		return fmt.Errorf("failed to decode point pairs: %w", err)
	}

	transform, err := estimator.Fit(model, input.Pairs)
	if err != nil {
		return fmt.Errorf("fit failed: %w", err)
	}

	return writeJSON(out, solveResult{
		AntennaID:      input.AntennaID,
		Model:          model,
		Transform:      transform,
		RMSE:           estimator.RMSE(transform, input.Pairs),
		HeadingDegrees: transform.HeadingDegrees(),
		Position:       transform.Translation(),
	})
}

func solveAntennas(in io.Reader, out io.Writer, minObservations int) error {
	var input tagsInput
	if err := json.NewDecoder(in).Decode(&input); err != nil {
		return fmt.Errorf("failed to decode tag observations: %w", err)
	}
	if len(input.Antennas) == 0 {
		return fmt.Errorf("no antennas in input")
	}

	estimates := estimator.CalibrateAntennas(input.Antennas, input.Truth, minObservations)

	ids := make([]string, 0, len(estimates))
	for id := range estimates {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	results := make([]solveResult, 0, len(ids))
	for _, id := range ids {
		estimate := estimates[id]
		if estimate.Err != nil {
			results = append(results, solveResult{AntennaID: id, Error: estimate.Err.Error()})
			continue
		}
		c := estimate.Config
		results = append(results, solveResult{
			AntennaID:      id,
			Transform:      c.Transform,
			RMSE:           c.RMSE,
			HeadingDegrees: c.HeadingDegrees,
			Position:       c.Position,
			TagCount:       c.TagCount,
		})
	}

	return writeJSON(out, results)
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
