package rowsync

import "github.com/prometheus/client_golang/prometheus"

var requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "rowsync",
	Subsystem: "protocol",
	Name:      "requests_total",
	Help:      "Push and pull requests processed.",
}, []string{"op"})

var mutationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "rowsync",
	Subsystem: "protocol",
	Name:      "mutations_total",
	Help:      "Mutation outcomes by terminal state.",
}, []string{"outcome"})

var patchOpsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "rowsync",
	Subsystem: "protocol",
	Name:      "patch_ops_total",
	Help:      "Patch operations emitted to clients.",
}, []string{"op"})

var patchResetsTotal = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "rowsync",
	Subsystem: "protocol",
	Name:      "patch_resets_total",
	Help:      "Pulls that fell back to a full clear-and-repopulate patch.",
})

func init() {
	prometheus.MustRegister(requestsTotal, mutationsTotal, patchOpsTotal, patchResetsTotal)
}
