package metrics

import (
	"time"

	"github.com/berfenger/battseq/internal/core/domain"
	"github.com/berfenger/battseq/internal/core/statemachine"
	"github.com/berfenger/battseq/pkg/bms_modbus"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	namespace = "battseq"

	transitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sequencer",
			Name:      "transitions_total",
			Help:      "Total number of sequencer state transitions",
		},
		[]string{"battery", "from", "to"},
	)

	stateCode = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sequencer",
			Name:      "state_code",
			Help:      "Current sequencer state code",
		},
		[]string{"battery"},
	)

	flagRaised = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sequencer",
			Name:      "flag",
			Help:      "Sequencer status flags (0=clear, 1=raised)",
		},
		[]string{"battery", "flag"},
	)

	bridgeRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "request_duration_seconds",
			Help:      "Duration of I/O bridge requests in seconds",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"endpoint", "kind", "status"},
	)

	modbusCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "modbus",
			Name:      "call_duration_seconds",
			Help:      "Duration of Modbus calls in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"fn"},
	)

	deviceSyncTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "device",
			Name:      "sync_total",
			Help:      "Total number of device register syncs by status",
		},
		[]string{"battery", "status"},
	)
)

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

type transitionObserver struct {
	battery string
}

// SequencerObserver counts transitions of the machine driving battery.
func SequencerObserver(battery string) statemachine.TransitionObserver {
	return transitionObserver{battery: battery}
}

func (o transitionObserver) OnTransition(from, to statemachine.State) {
	transitionsTotal.WithLabelValues(o.battery, from.String(), to.String()).Inc()
	stateCode.WithLabelValues(o.battery).Set(float64(to.Code()))
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

func RecordStatus(battery string, st domain.SequencerStatus) {
	stateCode.WithLabelValues(battery).Set(float64(st.StateCode))
	flags := map[string]bool{
		"max_start_attempts":       st.Flags.MaxStartAttempts,
		"max_stop_attempts":        st.Flags.MaxStopAttempts,
		"unexpected_stopped_state": st.Flags.UnexpectedStoppedState,
		"timeout_start":            st.Flags.TimeoutStart,
		"timeout_stop":             st.Flags.TimeoutStop,
		"run_failed":               st.Flags.RunFailed,
	}
	for name, v := range flags {
		flagRaised.WithLabelValues(battery, name).Set(boolGauge(v))
	}
}

func RecordBridgeRequest(endpoint string, write bool, elapsed time.Duration, err error) {
	kind := "read"
	if write {
		kind = "write"
	}
	bridgeRequestDuration.WithLabelValues(endpoint, kind, status(err)).Observe(elapsed.Seconds())
}

func RecordSync(battery string, err error) {
	deviceSyncTotal.WithLabelValues(battery, status(err)).Inc()
}

func ModbusInstrument() *bms_modbus.ModbusInstrument {
	return &bms_modbus.ModbusInstrument{
		RecordTime: func(fnName string, readTime time.Duration) {
			modbusCallDuration.WithLabelValues(fnName).Observe(readTime.Seconds())
		},
	}
}
