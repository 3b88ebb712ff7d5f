package deploy

import (
	"fmt"
	"sort"
	"strings"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/fiaas/deployd/internal/config"
	"github.com/fiaas/deployd/internal/constants"
	"github.com/fiaas/deployd/internal/spec"
)

// DatadogApplier attaches a datadog agent sidecar to applications that opt in
// and points the main container's statsd client at it over localhost.
type DatadogApplier struct {
	containerImage string
	globalTags     map[string]string
}

func NewDatadogApplier(cfg *config.Config) *DatadogApplier {
	return &DatadogApplier{
		containerImage: cfg.DatadogContainerImage,
		globalTags:     cfg.DatadogGlobalTags,
	}
}

func (a *DatadogApplier) Apply(deployment *appsv1.Deployment, appSpec *spec.AppSpec, besteffortRequired bool) {
	if !appSpec.Datadog.Enabled || a.containerImage == "" {
		return
	}

	podSpec := &deployment.Spec.Template.Spec
	podSpec.Containers = append(podSpec.Containers, a.buildSidecar(appSpec, besteffortRequired))

	for i := range podSpec.Containers {
		if podSpec.Containers[i].Name == appSpec.Name {
			podSpec.Containers[i].Env = withStatsdEnv(podSpec.Containers[i].Env)
		}
	}
}

func (a *DatadogApplier) buildSidecar(appSpec *spec.AppSpec, besteffortRequired bool) corev1.Container {
	container := corev1.Container{
		Name:            constants.DatadogContainerName,
		Image:           a.containerImage,
		ImagePullPolicy: corev1.PullIfNotPresent,
		Env: []corev1.EnvVar{
			{Name: "DD_TAGS", Value: a.buildTags(appSpec)},
			{
				Name: "DD_API_KEY",
				ValueFrom: &corev1.EnvVarSource{
					SecretKeyRef: &corev1.SecretKeySelector{
						LocalObjectReference: corev1.LocalObjectReference{Name: "datadog"},
						Key:                  "apikey",
					},
				},
			},
			{Name: "NON_LOCAL_TRAFFIC", Value: "false"},
			{Name: "DD_LOGS_STDOUT", Value: "yes"},
			{Name: "DD_EXPVAR_PORT", Value: "42622"},
			{Name: "DD_CMD_PORT", Value: "42623"},
		},
	}
	if !besteffortRequired {
		container.Resources = corev1.ResourceRequirements{
			Limits: corev1.ResourceList{
				corev1.ResourceCPU:    resource.MustParse("400m"),
				corev1.ResourceMemory: resource.MustParse("2Gi"),
			},
			Requests: corev1.ResourceList{
				corev1.ResourceCPU:    resource.MustParse("200m"),
				corev1.ResourceMemory: resource.MustParse("2Gi"),
			},
		}
	}
	return container
}

// buildTags renders the tag set as a sorted comma-separated k:v list so the
// sidecar definition is deterministic across resyntheses.
func (a *DatadogApplier) buildTags(appSpec *spec.AppSpec) string {
	tags := map[string]string{
		"app":           appSpec.Name,
		"k8s_namespace": appSpec.Namespace,
	}
	for key, value := range a.globalTags {
		tags[key] = value
	}
	for key, value := range appSpec.Datadog.Tags {
		tags[key] = value
	}

	rendered := make([]string, 0, len(tags))
	for key, value := range tags {
		rendered = append(rendered, fmt.Sprintf("%s:%s", key, value))
	}
	sort.Strings(rendered)
	return strings.Join(rendered, ",")
}

// withStatsdEnv points the statsd client at the sidecar on localhost. The
// variables are replaced if already present so reapplying stays idempotent.
func withStatsdEnv(env []corev1.EnvVar) []corev1.EnvVar {
	filtered := make([]corev1.EnvVar, 0, len(env)+2)
	for _, variable := range env {
		if variable.Name == "STATSD_HOST" || variable.Name == "STATSD_PORT" {
			continue
		}
		filtered = append(filtered, variable)
	}
	filtered = append(filtered,
		corev1.EnvVar{Name: "STATSD_HOST", Value: "localhost"},
		corev1.EnvVar{Name: "STATSD_PORT", Value: "8125"},
	)
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].Name < filtered[j].Name })
	return filtered
}
