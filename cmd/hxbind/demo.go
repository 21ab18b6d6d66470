package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pthm/hxbind"
	"github.com/pthm/hxbind/client"
	"github.com/pthm/hxbind/lib/wire"
)

const (
	chartOutput   = "chart"
	chartRenderer = "bars"
	clickInput    = "bar_clicked"
)

var (
	chartLabels = []string{"mon", "tue", "wed", "thu", "fri"}
	chartValues = []float64{0.3, 0.6, 0.8, 0.45, 0.7}
)

var chartOptions = hxbind.Options{
	hxbind.OptWidth:  480,
	hxbind.OptHeight: 240,
	"color":          "steelblue",
}

// chartSetup registers the demo chart and its click input, publishes the
// first frame and returns the graph that re-renders on clicks.
func chartSetup(s *hxbind.Session) (hxbind.Graph, error) {
	chart, err := s.RegisterOutput(chartOutput, chartRenderer, chartOptions)
	if err != nil {
		return nil, err
	}
	clicked := s.RegisterInput(clickInput)

	g := hxbind.GraphFunc(func(ctx context.Context, name string) {
		if name != clicked.Name() {
			return
		}
		v, err := clicked.Require()
		if err != nil {
			return
		}
		s.Render().Publish(ctx, chart, chartData(v))
	})

	if _, err := s.Render().Publish(s.Context(), chart, chartData(nil)); err != nil {
		return nil, err
	}
	return g, nil
}

func chartData(highlight any) map[string]any {
	labels := make([]any, len(chartLabels))
	for i, l := range chartLabels {
		labels[i] = l
	}
	return map[string]any{
		"labels":    labels,
		"values":    chartValues,
		"highlight": highlight,
	}
}

// barsScript draws the chart payload as text rows. When click is a bar
// index, the first render reports it back as a click.
func barsScript(w io.Writer, click int) client.Script {
	return client.ScriptFunc(func(payload any, ctx *client.Context) error {
		m, ok := payload.(map[string]any)
		if !ok {
			return fmt.Errorf("payload is %T, want map", payload)
		}
		values, _ := m["values"].([]any)
		labels, _ := m["labels"].([]any)
		if len(values) == 0 {
			return errors.New("payload has no values")
		}
		highlight, hasHighlight := m["highlight"].(int64)

		cols := ctx.Width / 12
		if cols <= 0 {
			cols = 40
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "%s (token %d)\n", ctx.Binding, ctx.Token)
		for i, raw := range values {
			v, ok := raw.(float64)
			if !ok {
				return fmt.Errorf("value %d is %T, want float", i, raw)
			}
			label := ""
			if i < len(labels) {
				label, _ = labels[i].(string)
			}
			mark := " "
			if hasHighlight && int64(i) == highlight {
				mark = "*"
			}
			fmt.Fprintf(&sb, "%s %-4s %-*s %.2f\n", mark, label, cols, strings.Repeat("#", int(v*float64(cols))), v)
		}
		if _, err := io.WriteString(w, sb.String()); err != nil {
			return err
		}

		if !ctx.Initialized && click >= 0 {
			ctx.SetInput(clickInput, click, wire.ModeEvent)
		}
		return nil
	})
}
