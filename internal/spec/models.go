// Package spec defines the canonical application spec and the versioned
// resolution pipeline that produces it from raw configuration documents.
package spec

import (
	"k8s.io/apimachinery/pkg/util/intstr"
)

// AppSpec is the fully resolved, version-independent representation of an
// application's deployment intent. It is created once per resolution call and
// never mutated afterwards.
type AppSpec struct {
	Name         string
	Namespace    string
	Image        string
	Version      string
	DeploymentID string
	Teams        []string
	Tags         []string

	Replicas     int32
	Ports        []PortSpec
	HealthChecks HealthCheckSpec
	Resources    ResourcesSpec
	Labels       LabelAndAnnotationSpec
	Annotations  LabelAndAnnotationSpec

	HasSecrets           bool
	SecretsInEnvironment bool
	AdminAccess          bool
	Singleton            bool

	Autoscaler AutoscalerSpec
	Prometheus PrometheusSpec
	Datadog    DatadogSpec
}

// PortSpec describes one exposed port of the application.
type PortSpec struct {
	Protocol   string
	Name       string
	Port       int32
	TargetPort int32
}

// HealthCheckSpec carries the liveness and readiness checks.
type HealthCheckSpec struct {
	Liveness  CheckSpec
	Readiness CheckSpec
}

// CheckSpec describes a single health check. Exactly one of HTTP, TCP and
// Execute is set; violating this is a construction error caught by the
// factory, and again at probe-build time as a last resort.
type CheckSpec struct {
	HTTP    *HTTPCheckSpec
	TCP     *TCPCheckSpec
	Execute *ExecCheckSpec

	InitialDelaySeconds int32
	PeriodSeconds       int32
	SuccessThreshold    int32
	FailureThreshold    int32
	TimeoutSeconds      int32
}

// HTTPCheckSpec describes an HTTP GET health check. Port may reference a
// named port or a port number.
type HTTPCheckSpec struct {
	Path        string
	Port        intstr.IntOrString
	HTTPHeaders map[string]string
}

// TCPCheckSpec describes a TCP dial health check.
type TCPCheckSpec struct {
	Port intstr.IntOrString
}

// ExecCheckSpec describes a command-execution health check. Command is a
// single string split by shell-word rules at probe build time.
type ExecCheckSpec struct {
	Command string
}

// ResourceRequirementSpec holds one side of the resource requirements. Empty
// strings mean "not set".
type ResourceRequirementSpec struct {
	CPU    string
	Memory string
}

// ResourcesSpec holds compute resource requirements.
type ResourcesSpec struct {
	Limits   ResourceRequirementSpec
	Requests ResourceRequirementSpec
}

// LabelAndAnnotationSpec partitions user-supplied metadata per target object
// kind.
type LabelAndAnnotationSpec struct {
	Deployment              map[string]string
	HorizontalPodAutoscaler map[string]string
	Service                 map[string]string
	Ingress                 map[string]string
	Pod                     map[string]string
}

// AutoscalerSpec describes horizontal autoscaling intent. When enabled, the
// replica count of the live object is owned by the autoscaler and must not be
// reset by resynthesis.
type AutoscalerSpec struct {
	Enabled                bool
	MinReplicas            int32
	CPUThresholdPercentage int32
}

// PrometheusSpec describes the metrics-scrape integration. Port references a
// named port or a port number.
type PrometheusSpec struct {
	Enabled bool
	Port    string
	Path    string
}

// DatadogSpec describes the tracing/agent sidecar integration.
type DatadogSpec struct {
	Enabled bool
	Tags    map[string]string
}
