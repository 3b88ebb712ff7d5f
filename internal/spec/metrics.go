package spec

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var configVersionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fiaas_yml_version",
		Help: "The version of the application config used",
	},
	[]string{"version", "app_name"},
)
