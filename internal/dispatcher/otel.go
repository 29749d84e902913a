package dispatcher

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/ktgames/mining/internal/dispatcher"

type metrics struct {
	laneDepth metric.Int64ObservableGauge
	processed metric.Int64Counter
	dropped   metric.Int64Counter
}

// newMetrics creates the dispatcher instruments on the global meter. depths
// is polled for the lane depth gauge.
func newMetrics(depths func() map[string]int) (*metrics, error) {
	m := otel.Meter(instrumentationName)
	out := &metrics{}

	var err error
	out.laneDepth, err = m.Int64ObservableGauge(
		"mining.dispatcher.lane.depth",
		metric.WithDescription("Events waiting on a worker lane"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating lane depth gauge: %w", err)
	}

	_, err = m.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		for lane, n := range depths() {
			o.ObserveInt64(out.laneDepth, int64(n),
				metric.WithAttributes(attribute.String("lane", lane)))
		}
		return nil
	}, out.laneDepth)
	if err != nil {
		return nil, fmt.Errorf("registering lane depth callback: %w", err)
	}

	out.processed, err = m.Int64Counter(
		"mining.dispatcher.events.processed",
		metric.WithDescription("Buffered events handled"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}

	out.dropped, err = m.Int64Counter(
		"mining.dispatcher.events.dropped",
		metric.WithDescription("Events rejected because a lane was full"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}
	return out, nil
}
