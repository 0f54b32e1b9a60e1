package report

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"log/slog"

	"github.com/go-pdf/fpdf"

	"github.com/krizhik-test/microservices-demo/internal/domain"
)

// SeriesQuerier resolves a typed query into series results.
type SeriesQuerier interface {
	Query(ctx context.Context, query domain.SeriesQuery) ([]domain.SeriesResult, error)
}

// Artifact is one generated report: PDF bytes plus the download filename. It
// is streamed to the requester and never stored server-side.
type Artifact struct {
	Data     []byte
	Filename string
}

// ContentType of every report artifact.
const ContentType = "application/pdf"

// Generator renders time-series query results into a two-page PDF report.
type Generator struct {
	engine SeriesQuerier
	logger *slog.Logger
	now    func() time.Time
}

// NewGenerator constructs a Generator.
func NewGenerator(engine SeriesQuerier, logger *slog.Logger) *Generator {
	if logger != nil {
		logger = logger.With("component", "report_generator")
	}
	return &Generator{engine: engine, logger: logger, now: time.Now}
}

// Generate queries the series for the given window and assembles the report.
// A failed series query or chart render degrades to an empty chart section;
// only document assembly errors fail the report.
func (g *Generator) Generate(ctx context.Context, query domain.SeriesQuery) (*Artifact, error) {
	series, err := g.engine.Query(ctx, query)
	if err != nil {
		if g.logger != nil {
			g.logger.Warn("series query failed, report continues without data", "error", err)
		}
		series = nil
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Performance Report", false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 12, "Performance Report", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "", 10)
	for _, line := range metadataLines(query) {
		pdf.CellFormat(0, 6, line, "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	chartTitle := fmt.Sprintf("%s Performance Data", seriesTypeLabel(query.Type))
	if png, err := renderChart(series, chartTitle); err != nil {
		if g.logger != nil {
			g.logger.Warn("chart rendering failed, report continues", "error", err)
		}
		pdf.SetFont("Helvetica", "I", 12)
		pdf.CellFormat(0, 10, "Chart unavailable", "", 1, "C", false, 0, "")
	} else {
		opts := fpdf.ImageOptions{ImageType: "PNG"}
		pdf.RegisterImageOptionsReader("series-chart", opts, bytes.NewReader(png))
		pdf.ImageOptions("series-chart", 15, pdf.GetY(), 180, 0, false, opts, 0, "")
	}

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 10, "Summary", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	stats := ComputeStatistics(series)
	pdf.SetFont("Helvetica", "", 11)
	for _, line := range []string{
		fmt.Sprintf("Total Data Points: %d", stats.TotalDataPoints),
		fmt.Sprintf("Average Value: %.2f", stats.Average),
		fmt.Sprintf("Minimum Value: %.2f", stats.Min),
		fmt.Sprintf("Maximum Value: %.2f", stats.Max),
		fmt.Sprintf("Standard Deviation: %.2f", stats.StdDev),
	} {
		pdf.CellFormat(0, 7, line, "", 1, "L", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("assemble report: %w", err)
	}
	return &Artifact{
		Data:     buf.Bytes(),
		Filename: fmt.Sprintf("report-%d.pdf", g.now().UnixMilli()),
	}, nil
}

func metadataLines(query domain.SeriesQuery) []string {
	orAll := func(value, all string) string {
		if value == "" {
			return all
		}
		return value
	}
	lines := []string{
		fmt.Sprintf("Type: %s", seriesTypeLabel(query.Type)),
		fmt.Sprintf("Service: %s", orAll(query.Service, "All Services")),
		fmt.Sprintf("Endpoint: %s", orAll(query.Endpoint, "All Endpoints")),
		fmt.Sprintf("Method: %s", orAll(query.Method, "All Methods")),
	}
	if query.EventType != "" {
		lines = append(lines, fmt.Sprintf("Event Type: %s", query.EventType))
	}
	lines = append(lines,
		fmt.Sprintf("Start Date: %s", query.From.Format(time.RFC3339)),
		fmt.Sprintf("End Date: %s", query.To.Format(time.RFC3339)),
	)
	if query.Aggregation != "" {
		lines = append(lines, fmt.Sprintf("Aggregation: %s", query.Aggregation))
	}
	return lines
}

func seriesTypeLabel(t domain.SeriesType) string {
	if t == "" {
		return "All Types"
	}
	return string(t)
}
