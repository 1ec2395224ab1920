// Package waterfall renders the records stored by the SQL exporter into a
// frequency over time heatmap.
package waterfall

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"time"

	"github.com/golang/glog"
)

// ErrNoData is returned when the query matches no records.
var ErrNoData = errors.New("no records match the query")

const (
	// Each sweep visits every planned frequency once, so the number of sweeps
	// bounds the rows and the number of center frequencies bounds the columns.
	countSweepsTmpl = `SELECT
		COUNT(DISTINCT(Sweep))
	FROM
		hopper
	WHERE
		Source = ?
		AND Identifier LIKE ?
		AND FreqLow >= ?
		AND FreqHigh <= ?
		AND Start >= ?
		AND End <= ?;`
	countFreqsTmpl = `SELECT
		COUNT(DISTINCT(FreqCenter))
	FROM
		hopper
	WHERE
		Source = ?
		AND Identifier LIKE ?
		AND FreqLow >= ?
		AND FreqHigh <= ?
		AND Start >= ?
		AND End <= ?;`
	bucketsTmpl = `SELECT
			MIN(FreqLow),
			MAX(FreqHigh),
			MAX(DBHigh),
			MIN(Start),
			MAX(End),
			TimeBucket,
			FreqBucket
		FROM (
			SELECT
				FreqLow,
				FreqHigh,
				DBHigh,
				Start,
				End,
				NTILE (?) OVER (ORDER BY Sweep, Start) TimeBucket,
				NTILE (?) OVER (ORDER BY FreqCenter) FreqBucket
			FROM
				hopper
			WHERE
				Source = ?
				AND Identifier LIKE ?
				AND FreqLow >= ?
				AND FreqHigh <= ?
				AND Start >= ?
				AND End <= ?
		)
		GROUP BY TimeBucket, FreqBucket
		ORDER BY TimeBucket ASC, FreqBucket ASC;`
)

// Query selects the records to render.
type Query struct {
	Source string
	// Identifier is matched with LIKE, "%" selects all runs.
	Identifier string
	FreqLow    uint64
	FreqHigh   uint64
	Start      time.Time
	End        time.Time
}

func (q *Query) args() []any {
	return []any{q.Source, q.Identifier, q.FreqLow, q.FreqHigh, q.Start.UnixMilli(), q.End.UnixMilli()}
}

type Options struct {
	// Width and Height of the waterfall in pixels. Zero, or more than the data
	// can fill, selects the data's resolution.
	Width  int
	Height int
	Grid   bool
}

type Result struct {
	Image *image.RGBA

	FreqLow   uint64
	FreqHigh  uint64
	Start     time.Time
	End       time.Time
	MinDB     float64
	MaxDB     float64
	Width     int
	Height    int
	HzPerPx   float64
	SecPerRow float64
}

func count(ctx context.Context, db *sql.DB, tmpl string, q *Query) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, tmpl, q.args()...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func clampSize(name string, want, max int) int {
	switch {
	case want <= 0:
		return max
	case want > max:
		glog.Warningf("%s is set to %d which is more than what the data can provide, reducing to %d pixels\n", name, want, max)
		return max
	}
	return want
}

// Render buckets the matching records into a Width x Height grid, taking the
// strongest reading per bucket, and colors it relative to the observed range.
func Render(ctx context.Context, db *sql.DB, q *Query, opts *Options) (*Result, error) {
	rows, err := count(ctx, db, countSweepsTmpl, q)
	if err != nil {
		return nil, fmt.Errorf("unable to determine image height: %w", err)
	}
	cols, err := count(ctx, db, countFreqsTmpl, q)
	if err != nil {
		return nil, fmt.Errorf("unable to determine image width: %w", err)
	}
	if rows == 0 || cols == 0 {
		return nil, ErrNoData
	}
	height := clampSize("height", opts.Height, rows)
	width := clampSize("width", opts.Width, cols)

	data, err := db.QueryContext(ctx, bucketsTmpl, append([]any{height, width}, q.args()...)...)
	if err != nil {
		return nil, fmt.Errorf("unable to query buckets: %w", err)
	}
	defer data.Close()

	res := &Result{
		FreqLow: math.MaxUint64,
		MinDB:   math.Inf(1),
		MaxDB:   math.Inf(-1),
		Width:   width,
		Height:  height,
	}
	grid := make([][]float64, height)
	seen := make([][]bool, height)
	for i := range grid {
		grid[i] = make([]float64, width)
		seen[i] = make([]bool, width)
	}
	for data.Next() {
		var freqLow, freqHigh uint64
		var dbHigh float64
		var start, end int64
		var row, col int
		if err := data.Scan(&freqLow, &freqHigh, &dbHigh, &start, &end, &row, &col); err != nil {
			glog.Warningf("unable to read bucket from DB: %s\n", err)
			continue
		}
		// NTILE numbers buckets from 1.
		row--
		col--
		if row < 0 || row >= height || col < 0 || col >= width {
			continue
		}
		grid[row][col] = dbHigh
		seen[row][col] = true

		res.FreqLow = min(res.FreqLow, freqLow)
		res.FreqHigh = max(res.FreqHigh, freqHigh)
		res.MinDB = math.Min(res.MinDB, dbHigh)
		res.MaxDB = math.Max(res.MaxDB, dbHigh)
		if s := time.UnixMilli(start); res.Start.IsZero() || s.Before(res.Start) {
			res.Start = s
		}
		if e := time.UnixMilli(end); e.After(res.End) {
			res.End = e
		}
	}
	if err := data.Err(); err != nil {
		return nil, err
	}
	if res.FreqHigh == 0 {
		return nil, ErrNoData
	}

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	dbRange := res.MaxDB - res.MinDB
	for y, row := range grid {
		for x, v := range row {
			if !seen[y][x] {
				canvas.SetRGBA(x, y, colors[0])
				continue
			}
			lvl := uint16(0)
			if dbRange > 0 {
				lvl = uint16((v - res.MinDB) * math.MaxUint16 / dbRange)
			}
			canvas.SetRGBA(x, y, GetColor(lvl))
		}
	}
	res.HzPerPx = float64(res.FreqHigh-res.FreqLow) / float64(width)
	res.SecPerRow = res.End.Sub(res.Start).Seconds() / float64(height)

	if opts.Grid {
		canvas = DrawGrid(canvas, res.FreqLow, res.FreqHigh, res.Start, res.End)
	}
	res.Image = canvas
	return res, nil
}

// Colors defining the gradient in the heatmap, coldest first.
var colors = []color.RGBA{
	{0, 0, 0, 255},       // black
	{0, 0, 255, 255},     // blue
	{0, 255, 255, 255},   // cyan
	{0, 255, 0, 255},     // green
	{255, 255, 0, 255},   // yellow
	{255, 0, 0, 255},     // red
	{255, 255, 255, 255}, // white
}

// GetColor maps a level onto the gradient, interpolating linearly between the
// two neighbouring colors.
// http://www.andrewnoske.com/wiki/Code_-_heatmaps_and_color_gradients
func GetColor(lvl uint16) color.RGBA {
	step := float64(math.MaxUint16) / float64(len(colors)-1)
	pos := float64(lvl) / step
	i := int(pos)
	if i >= len(colors)-1 {
		return colors[len(colors)-1]
	}
	fract := pos - float64(i)
	lo, hi := colors[i], colors[i+1]
	mix := func(a, b uint8) uint8 {
		return uint8(math.Round(float64(a) + (float64(b)-float64(a))*fract))
	}
	return color.RGBA{mix(lo.R, hi.R), mix(lo.G, hi.G), mix(lo.B, hi.B), mix(lo.A, hi.A)}
}
