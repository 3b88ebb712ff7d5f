package deploy

import (
	"github.com/fiaas/deployd/internal/spec"
)

// shouldHaveAutoscaler reports whether an autoscaler object owns the replica
// count of the application's workload. The autoscaler needs a CPU request to
// compute utilization, so a spec without one never gets an autoscaler no
// matter what it declares.
func shouldHaveAutoscaler(appSpec *spec.AppSpec) bool {
	return appSpec.Autoscaler.Enabled &&
		appSpec.Replicas > 1 &&
		appSpec.Resources.Requests.CPU != ""
}
