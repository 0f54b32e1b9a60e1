package report

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/krizhik-test/microservices-demo/internal/domain"
)

const (
	chartWidth  = 800
	chartHeight = 400
)

var errNoChartData = errors.New("report: no series to chart")

// renderChart draws one line per series over the union of all distinct
// timestamps. Missing points split a series into segments so gaps stay gaps
// instead of being interpolated or zero-filled.
func renderChart(series []domain.SeriesResult, title string) ([]byte, error) {
	if len(series) == 0 {
		return nil, errNoChartData
	}

	timestamps := unionTimestamps(series)
	if len(timestamps) == 0 {
		return nil, errNoChartData
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	var chartSeries []chart.Series
	for _, s := range series {
		color := randomColor(rng)
		name := s.Labels["endpoint"]
		if name == "" {
			name = s.Key
		}
		for i, segment := range segments(s, timestamps) {
			ts := chart.TimeSeries{
				XValues: segment.times,
				YValues: segment.values,
				Style: chart.Style{
					StrokeColor: color,
					StrokeWidth: 2,
					DotColor:    color.WithAlpha(180),
					DotWidth:    3,
				},
			}
			if i == 0 {
				ts.Name = name
			}
			chartSeries = append(chartSeries, ts)
		}
	}
	if len(chartSeries) == 0 {
		return nil, errNoChartData
	}

	graph := chart.Chart{
		Title:  title,
		Width:  chartWidth,
		Height: chartHeight,
		XAxis:  chart.XAxis{Name: "Time"},
		YAxis:  chart.YAxis{Name: "Execution Time (ms)"},
		Series: chartSeries,
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render chart: %w", err)
	}
	return buf.Bytes(), nil
}

type segment struct {
	times  []time.Time
	values []float64
}

// segments walks the shared x-axis and breaks a series wherever it has no
// sample at a union timestamp.
func segments(s domain.SeriesResult, timestamps []int64) []segment {
	valueAt := make(map[int64]float64, len(s.Data))
	for _, sample := range s.Data {
		valueAt[sample.Timestamp] = sample.Value
	}

	var out []segment
	var current segment
	flush := func() {
		if len(current.times) > 0 {
			out = append(out, current)
			current = segment{}
		}
	}
	for _, ts := range timestamps {
		value, ok := valueAt[ts]
		if !ok {
			flush()
			continue
		}
		current.times = append(current.times, time.UnixMilli(ts))
		current.values = append(current.values, value)
	}
	flush()
	return out
}

func unionTimestamps(series []domain.SeriesResult) []int64 {
	seen := make(map[int64]struct{})
	for _, s := range series {
		for _, sample := range s.Data {
			seen[sample.Timestamp] = struct{}{}
		}
	}
	timestamps := make([]int64, 0, len(seen))
	for ts := range seen {
		timestamps = append(timestamps, ts)
	}
	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i] < timestamps[j] })
	return timestamps
}

func randomColor(rng *rand.Rand) drawing.Color {
	return drawing.Color{
		R: uint8(rng.Intn(256)),
		G: uint8(rng.Intn(256)),
		B: uint8(rng.Intn(256)),
		A: 255,
	}
}
