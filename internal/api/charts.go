package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/ld2415h/internal/units"
)

const (
	defaultChartPoints = 500
	histogramBins      = 20
)

// showSpeedChart renders the most recent readings as an HTML line chart.
// Query params:
//   - limit (optional; default 500) number of readings to plot
func (s *Server) showSpeedChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit := defaultChartPoints
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 || parsed > maxReadingsLimit {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	readings, err := s.db.Readings(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve readings: %v", err))
		return
	}

	// readings arrive newest first; plot oldest to newest
	xs := make([]string, 0, len(readings))
	approaching := make([]opts.LineData, 0, len(readings))
	retreating := make([]opts.LineData, 0, len(readings))
	for i := len(readings) - 1; i >= 0; i-- {
		rd := readings[i]
		xs = append(xs, rd.RecordedAt.Local().Format("15:04:05"))
		speed := units.ConvertSpeed(rd.SpeedMPS, s.units)
		if rd.Direction == "retreating" {
			approaching = append(approaching, opts.LineData{Value: "-"})
			retreating = append(retreating, opts.LineData{Value: speed})
		} else {
			approaching = append(approaching, opts.LineData{Value: speed})
			retreating = append(retreating, opts.LineData{Value: "-"})
		}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "LD2415H Speeds", Width: "1200px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: "Radar speeds", Subtitle: fmt.Sprintf("readings=%d units=%s", len(readings), s.units)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Time"}),
		charts.WithYAxisOpts(opts.YAxis{Name: fmt.Sprintf("Speed (%s)", s.units)}),
	)
	line.SetXAxis(xs).
		AddSeries("approaching", approaching).
		AddSeries("retreating", retreating)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// showSpeedHistogram renders a PNG histogram of the speeds recorded in the
// ?hours= window.
func (s *Server) showSpeedHistogram(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	hours, err := parseHours(r)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid 'hours' parameter")
		return
	}
	speeds, err := s.speedsInWindow(hours)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve speeds: %v", err))
		return
	}
	if len(speeds) == 0 {
		s.writeJSONError(w, http.StatusNotFound, "No readings in range")
		return
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Speed distribution, last %dh (n=%d)", hours, len(speeds))
	p.X.Label.Text = fmt.Sprintf("Speed (%s)", s.units)
	p.Y.Label.Text = "Readings"

	hist, err := plotter.NewHist(plotter.Values(speeds), histogramBins)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to build histogram: %v", err))
		return
	}
	p.Add(hist)

	wt, err := p.WriterTo(8*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render histogram: %v", err))
		return
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render histogram: %v", err))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}
