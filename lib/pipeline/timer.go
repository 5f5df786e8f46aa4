package pipeline

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Timer accumulates per-case wall times for the end-of-run summary.
type Timer struct {
	clock     func() time.Time
	startedAt time.Time
	durations []time.Duration
}

func NewTimer(clock func() time.Time) *Timer {
	if clock == nil {
		clock = time.Now
	}
	return &Timer{clock: clock, startedAt: clock()}
}

// Observe records one finished case.
func (t *Timer) Observe(d time.Duration) {
	t.durations = append(t.durations, d)
}

func (t *Timer) Elapsed() time.Duration {
	return t.clock().Sub(t.startedAt)
}

func (t *Timer) stats() (avg, min, max time.Duration) {
	if len(t.durations) == 0 {
		return 0, 0, 0
	}
	min = t.durations[0]
	max = t.durations[0]
	var total time.Duration
	for _, d := range t.durations {
		total += d
		if d < min {
			min = d
		}
		if d > max {
			max = d
		}
	}
	return total / time.Duration(len(t.durations)), min, max
}

// RenderSummary prints the run report table.
func (t *Timer) RenderSummary(out io.Writer, succeeded, failed int) {
	avg, min, max := t.stats()

	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.AppendHeader(table.Row{"Metric", "Value"})
	tw.AppendRows([]table.Row{
		{"Cases processed", succeeded + failed},
		{"Succeeded", succeeded},
		{"Failed", failed},
		{"Total time", roundDuration(t.Elapsed())},
		{"Avg per case", roundDuration(avg)},
		{"Min per case", roundDuration(min)},
		{"Max per case", roundDuration(max)},
	})
	tw.SetStyle(table.StyleRounded)
	tw.Render()
}

func roundDuration(d time.Duration) string {
	return fmt.Sprint(d.Round(10 * time.Millisecond))
}
