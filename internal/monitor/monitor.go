package monitor

import (
	"context"
	"fmt"
	"log"
	"time"

	"signal-trader/internal/events"
)

// Monitor feeds the metrics counters from the event bus and forwards risk
// alerts. It observes; it never touches the pipeline.
type Monitor struct {
	Bus     *events.Bus
	Metrics *Metrics
	AlertFn func(string)
}

func (m *Monitor) Start(ctx context.Context) {
	if m.Bus == nil || m.Metrics == nil {
		log.Println("monitor not fully configured; skipping")
		return
	}

	m.count(ctx, events.EventSignalReceived, m.Metrics.IncrementSignals, nil)
	m.count(ctx, events.EventOrderSubmitted, m.Metrics.IncrementSubmitted, nil)
	m.count(ctx, events.EventOrderFilled, m.Metrics.IncrementFilled, nil)
	m.count(ctx, events.EventOrderRejected, m.Metrics.IncrementRejected, nil)
	m.count(ctx, events.EventEmergencyClose, m.Metrics.IncrementEmergencyCloses, nil)
	m.count(ctx, events.EventRiskAlert, m.Metrics.IncrementRiskAlerts, func(payload any) {
		if m.AlertFn != nil {
			m.AlertFn(formatAlert(payload))
		}
	})
}

// count drains one event stream, incrementing a counter per message.
func (m *Monitor) count(ctx context.Context, ev events.Event, inc func(), extra func(any)) {
	stream, unsub := m.Bus.Subscribe(ev, 50)
	go func() {
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-stream:
				if !ok {
					return
				}
				inc()
				if extra != nil {
					extra(msg)
				}
			}
		}
	}()
}

func formatAlert(msg any) string {
	ts := time.Now().Format(time.RFC3339)
	switch t := msg.(type) {
	case string:
		return "[" + ts + "] " + t
	default:
		return "[" + ts + "] " + fmt.Sprintf("%v", t)
	}
}
