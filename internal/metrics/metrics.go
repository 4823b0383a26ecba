package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	dilutionOps = "dilution_ops"

	gatePollsTotal      = "gate_polls_total"
	gateOutcomesTotal   = "gate_outcomes_total"
	robotPollsTotal     = "robot_polls_total"
	robotTriggersTotal  = "robot_triggers_total"
	jobcardExecuteTotal = "jobcard_execute_total"
	activeConsoles      = "active_consoles"

	// Labels
	resultLabel  = "result"
	outcomeLabel = "outcome"
)

var gatePollsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: dilutionOps,
		Name:      gatePollsTotal,
		Help:      "number of face-ID verification polls",
	},
	[]string{resultLabel},
)

var gateOutcomesTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: dilutionOps,
		Name:      gateOutcomesTotal,
		Help:      "number of verification sessions per terminal outcome",
	},
	[]string{outcomeLabel},
)

var robotPollsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: dilutionOps,
		Name:      robotPollsTotal,
		Help:      "number of robot task log fetches",
	},
	[]string{resultLabel},
)

var robotTriggersTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: dilutionOps,
		Name:      robotTriggersTotal,
		Help:      "number of robot task triggers",
	},
	[]string{resultLabel},
)

var jobcardExecuteTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: dilutionOps,
		Name:      jobcardExecuteTotal,
		Help:      "number of job card execute calls",
	},
	[]string{resultLabel},
)

var activeConsolesMetric = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Subsystem: dilutionOps,
		Name:      activeConsoles,
		Help:      "number of open job card consoles",
	},
)

func result(err error) prometheus.Labels {
	if err != nil {
		return prometheus.Labels{resultLabel: "error"}
	}
	return prometheus.Labels{resultLabel: "ok"}
}

func IncreaseGatePolls(err error) {
	gatePollsTotalMetric.With(result(err)).Inc()
}

func IncreaseGateOutcome(outcome string) {
	gateOutcomesTotalMetric.With(prometheus.Labels{outcomeLabel: outcome}).Inc()
}

func IncreaseRobotPolls(err error) {
	robotPollsTotalMetric.With(result(err)).Inc()
}

func IncreaseRobotTriggers(err error) {
	robotTriggersTotalMetric.With(result(err)).Inc()
}

func IncreaseJobcardExecutes(err error) {
	jobcardExecuteTotalMetric.With(result(err)).Inc()
}

func SetActiveConsoles(count int) {
	activeConsolesMetric.Set(float64(count))
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(gatePollsTotalMetric)
	prometheus.MustRegister(gateOutcomesTotalMetric)
	prometheus.MustRegister(robotPollsTotalMetric)
	prometheus.MustRegister(robotTriggersTotalMetric)
	prometheus.MustRegister(jobcardExecuteTotalMetric)
	prometheus.MustRegister(activeConsolesMetric)
}
