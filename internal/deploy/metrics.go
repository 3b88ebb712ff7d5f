package deploy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	deploysTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deployer_deployments_total",
		Help: "Number of deployments committed to the cluster.",
	}, []string{"app"})

	deployConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deployer_conflicts_total",
		Help: "Number of optimistic-concurrency conflicts encountered while committing deployments.",
	})
)
