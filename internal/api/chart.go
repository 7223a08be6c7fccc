package api

import (
	"bytes"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// handleDepthChart renders a quick scatter plot (HTML) of the latest rendered
// scene using go-echarts. This is a debugging-only endpoint (no auth) to
// visually inspect the surface without a projector attached.
// Query params:
//   - max_points (optional; default 8000) to reduce payload size
func (ws *WebServer) handleDepthChart(w http.ResponseWriter, r *http.Request) {
	if ws.snapshot == nil {
		ws.writeJSONError(w, http.StatusNotFound, "no snapshot renderer configured")
		return
	}
	scene, seq := ws.snapshot.Latest()
	if scene == nil {
		ws.writeJSONError(w, http.StatusNotFound, "no scene rendered yet")
		return
	}

	maxPoints := 8000
	if mp := r.URL.Query().Get("max_points"); mp != "" {
		if v, err := strconv.Atoi(mp); err == nil && v > 100 && v <= 50000 {
			maxPoints = v
		}
	}

	frame := scene.Values
	total := len(frame.Data)

	// Downsample by stride to stay within maxPoints
	stride := 1
	if total > maxPoints {
		stride = int(math.Ceil(float64(total) / float64(maxPoints)))
	}

	data := make([]opts.ScatterData, 0, total/stride+1)
	for i := 0; i < total; i += stride {
		if scene.Mask != nil && scene.Mask[i] {
			continue
		}
		x := i % frame.Width
		y := i / frame.Width
		data = append(data, opts.ScatterData{Value: []interface{}{x, frame.Height - 1 - y, frame.Data[i]}})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Sandbox Surface", Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: "Sandbox Surface", Subtitle: fmt.Sprintf("module=%s seq=%d points=%d stride=%d", ws.engine.Module().Name(), seq, len(data), stride)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: 0, Max: frame.Width, Name: "X (px)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: frame.Height, Name: "Y (px)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(scene.Norm.Min),
			Max:        float32(scene.Norm.Max),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}},
		}),
	)

	scatter.AddSeries("surface", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
