package deploy

import (
	"strconv"

	"github.com/go-logr/logr"
	appsv1 "k8s.io/api/apps/v1"

	"github.com/fiaas/deployd/internal/constants"
	"github.com/fiaas/deployd/internal/spec"
)

// PrometheusApplier annotates the pod template for scrape discovery when the
// application exposes metrics. A port reference that resolves to nothing is
// logged and skipped rather than failing the deploy, so a bad metrics stanza
// never blocks a rollout.
type PrometheusApplier struct {
	log logr.Logger
}

func NewPrometheusApplier(log logr.Logger) *PrometheusApplier {
	return &PrometheusApplier{log: log.WithName("prometheus")}
}

func (a *PrometheusApplier) Apply(deployment *appsv1.Deployment, appSpec *spec.AppSpec, besteffortRequired bool) {
	if !appSpec.Prometheus.Enabled {
		return
	}

	port, ok := resolvePort(appSpec)
	if !ok {
		a.log.Error(nil, "could not resolve metrics port, skipping scrape annotations",
			"app", appSpec.Name, "port", appSpec.Prometheus.Port)
		return
	}

	template := &deployment.Spec.Template
	if template.Annotations == nil {
		template.Annotations = map[string]string{}
	}
	template.Annotations[constants.AnnotationPrometheusScrape] = "true"
	template.Annotations[constants.AnnotationPrometheusPort] = strconv.Itoa(int(port))
	template.Annotations[constants.AnnotationPrometheusPath] = appSpec.Prometheus.Path
}

// resolvePort maps the metrics port reference to a concrete target port. A
// numeric reference is used as-is, a named reference is looked up among the
// application's declared ports.
func resolvePort(appSpec *spec.AppSpec) (int32, bool) {
	port := appSpec.Prometheus.Port
	if numeric, err := strconv.Atoi(port); err == nil {
		if numeric > 0 {
			return int32(numeric), true
		}
		return 0, false
	}
	for _, declared := range appSpec.Ports {
		if declared.Name == port {
			return declared.TargetPort, true
		}
	}
	return 0, false
}
