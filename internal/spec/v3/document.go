package v3

import (
	"encoding/json"
	"fmt"

	"k8s.io/apimachinery/pkg/util/intstr"
)

// document is the typed shape of a version 3 configuration document. Fields
// the daemon does not act on (ingress routing, extensions) are deliberately
// not modeled and ignored during decoding.
type document struct {
	Version              int                `json:"version"`
	Replicas             replicasConfig     `json:"replicas"`
	Ports                []portConfig       `json:"ports"`
	Healthchecks         healthchecksConfig `json:"healthchecks"`
	Resources            resourcesConfig    `json:"resources"`
	Metrics              metricsConfig      `json:"metrics"`
	Labels               labelMaps          `json:"labels"`
	Annotations          labelMaps          `json:"annotations"`
	Secrets              bool               `json:"secrets"`
	SecretsInEnvironment bool               `json:"secrets_in_environment"`
	AdminAccess          bool               `json:"admin_access"`
}

// defaultDocument returns a document pre-populated with the version 3
// defaults. Decoding a raw document on top of it overrides only the fields
// the user declared.
func defaultDocument() *document {
	return &document{
		Version: Version,
		Replicas: replicasConfig{
			Minimum:                2,
			Maximum:                5,
			CPUThresholdPercentage: 50,
			Singleton:              true,
		},
		Ports: []portConfig{
			{Protocol: "http", Name: "http", Port: 80, TargetPort: 8080},
		},
		Resources: resourcesConfig{
			Limits:   resourceRequirementConfig{CPU: "400m", Memory: "512Mi"},
			Requests: resourceRequirementConfig{CPU: "200m", Memory: "256Mi"},
		},
		Metrics: metricsConfig{
			Prometheus: prometheusConfig{Enabled: true, Port: intstr.FromString("http"), Path: "/_/metrics"},
			Datadog:    datadogConfig{Enabled: false, Tags: map[string]string{}},
		},
	}
}

// replicasConfig accepts either the object form or a bare integer shorthand,
// which pins minimum and maximum to the same value.
type replicasConfig struct {
	Minimum                int32 `json:"minimum"`
	Maximum                int32 `json:"maximum"`
	CPUThresholdPercentage int32 `json:"cpu_threshold_percentage"`
	Singleton              bool  `json:"singleton"`
}

func (r *replicasConfig) UnmarshalJSON(data []byte) error {
	var scalar int32
	if err := json.Unmarshal(data, &scalar); err == nil {
		r.Minimum = scalar
		r.Maximum = scalar
		return nil
	}

	type plain replicasConfig
	if err := json.Unmarshal(data, (*plain)(r)); err != nil {
		return fmt.Errorf("replicas: %w", err)
	}
	return nil
}

type portConfig struct {
	Protocol   string `json:"protocol"`
	Name       string `json:"name"`
	Port       int32  `json:"port"`
	TargetPort int32  `json:"target_port"`
}

type healthchecksConfig struct {
	Liveness  *checkConfig `json:"liveness"`
	Readiness *checkConfig `json:"readiness"`
}

type checkConfig struct {
	Execute *execCheckConfig `json:"execute"`
	HTTP    *httpCheckConfig `json:"http"`
	TCP     *tcpCheckConfig  `json:"tcp"`

	InitialDelaySeconds *int32 `json:"initial_delay_seconds"`
	PeriodSeconds       *int32 `json:"period_seconds"`
	SuccessThreshold    *int32 `json:"success_threshold"`
	FailureThreshold    *int32 `json:"failure_threshold"`
	TimeoutSeconds      *int32 `json:"timeout_seconds"`
}

type execCheckConfig struct {
	Command string `json:"command"`
}

type httpCheckConfig struct {
	Path        string              `json:"path"`
	Port        *intstr.IntOrString `json:"port"`
	HTTPHeaders map[string]string   `json:"http_headers"`
}

type tcpCheckConfig struct {
	Port *intstr.IntOrString `json:"port"`
}

type resourcesConfig struct {
	Limits   resourceRequirementConfig `json:"limits"`
	Requests resourceRequirementConfig `json:"requests"`
}

type resourceRequirementConfig struct {
	CPU    string `json:"cpu"`
	Memory string `json:"memory"`
}

type metricsConfig struct {
	Prometheus prometheusConfig `json:"prometheus"`
	Datadog    datadogConfig    `json:"datadog"`
}

// prometheusConfig accepts the port as either a port name or a number.
type prometheusConfig struct {
	Enabled bool               `json:"enabled"`
	Port    intstr.IntOrString `json:"port"`
	Path    string             `json:"path"`
}

type datadogConfig struct {
	Enabled bool              `json:"enabled"`
	Tags    map[string]string `json:"tags"`
}

type labelMaps struct {
	Deployment              map[string]string `json:"deployment"`
	HorizontalPodAutoscaler map[string]string `json:"horizontal_pod_autoscaler"`
	Service                 map[string]string `json:"service"`
	Ingress                 map[string]string `json:"ingress"`
	Pod                     map[string]string `json:"pod"`
}
