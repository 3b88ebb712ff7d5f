// Package v3 implements the terminal factory for version 3 configuration
// documents.
package v3

import (
	"encoding/json"
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/fiaas/deployd/internal/errors"
	"github.com/fiaas/deployd/internal/spec"
)

// Version is the terminal config document version.
const Version = 3

// Factory parses version 3 documents into canonical AppSpecs, filling in
// defaults for absent fields.
type Factory struct{}

// NewFactory creates a version 3 terminal factory.
func NewFactory() *Factory {
	return &Factory{}
}

// Version returns the config document version this factory accepts.
func (f *Factory) Version() int {
	return Version
}

// NewAppSpec builds an AppSpec from a version 3 raw document. The document is
// expected to have string keys throughout (as produced by sigs.k8s.io/yaml).
// Any data error is returned as an invalid-configuration error.
func (f *Factory) NewAppSpec(name, image string, teams, tags []string, doc map[string]any, deploymentID, namespace string) (*spec.AppSpec, error) {
	parsed, err := parseDocument(doc)
	if err != nil {
		return nil, errors.WrapInvalidConfiguration(err)
	}

	ports := defaultedPorts(parsed.Ports)

	healthChecks, err := buildHealthChecks(parsed.Healthchecks, ports)
	if err != nil {
		return nil, err
	}

	resources, err := buildResources(parsed.Resources)
	if err != nil {
		return nil, err
	}

	appSpec := &spec.AppSpec{
		Name:         name,
		Namespace:    namespace,
		Image:        image,
		Version:      versionFromImage(image),
		DeploymentID: deploymentID,
		Teams:        teams,
		Tags:         tags,

		Replicas:     parsed.Replicas.Maximum,
		Ports:        ports,
		HealthChecks: *healthChecks,
		Resources:    *resources,
		Labels:       buildLabelMaps(parsed.Labels),
		Annotations:  buildLabelMaps(parsed.Annotations),

		HasSecrets:           parsed.Secrets || parsed.SecretsInEnvironment,
		SecretsInEnvironment: parsed.SecretsInEnvironment,
		AdminAccess:          parsed.AdminAccess,
		Singleton:            parsed.Replicas.Singleton,

		Autoscaler: spec.AutoscalerSpec{
			Enabled:                parsed.Replicas.Maximum > parsed.Replicas.Minimum,
			MinReplicas:            parsed.Replicas.Minimum,
			CPUThresholdPercentage: parsed.Replicas.CPUThresholdPercentage,
		},
		Prometheus: spec.PrometheusSpec{
			Enabled: parsed.Metrics.Prometheus.Enabled,
			Port:    parsed.Metrics.Prometheus.Port.String(),
			Path:    parsed.Metrics.Prometheus.Path,
		},
		Datadog: spec.DatadogSpec{
			Enabled: parsed.Metrics.Datadog.Enabled,
			Tags:    parsed.Metrics.Datadog.Tags,
		},
	}

	return appSpec, nil
}

// parseDocument decodes the raw document through a JSON round-trip into the
// typed document with defaults pre-applied, so only fields present in the
// document override them.
func parseDocument(doc map[string]any) (*document, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("malformed config document: %w", err)
	}

	parsed := defaultDocument()
	if err := json.Unmarshal(raw, parsed); err != nil {
		return nil, fmt.Errorf("malformed config document: %w", err)
	}

	return parsed, nil
}

func defaultedPorts(ports []portConfig) []spec.PortSpec {
	result := make([]spec.PortSpec, 0, len(ports))
	for _, p := range ports {
		port := spec.PortSpec{Protocol: p.Protocol, Name: p.Name, Port: p.Port, TargetPort: p.TargetPort}
		if port.Protocol == "" {
			port.Protocol = "http"
		}
		if port.Name == "" {
			port.Name = port.Protocol
		}
		if port.Port == 0 {
			port.Port = 80
		}
		if port.TargetPort == 0 {
			port.TargetPort = 8080
		}
		result = append(result, port)
	}
	return result
}

func buildResources(cfg resourcesConfig) (*spec.ResourcesSpec, error) {
	for _, quantity := range []string{cfg.Limits.CPU, cfg.Limits.Memory, cfg.Requests.CPU, cfg.Requests.Memory} {
		if quantity == "" {
			continue
		}
		if _, err := resource.ParseQuantity(quantity); err != nil {
			return nil, errors.NewInvalidConfiguration("invalid resource quantity %q: %v", quantity, err)
		}
	}

	return &spec.ResourcesSpec{
		Limits:   spec.ResourceRequirementSpec{CPU: cfg.Limits.CPU, Memory: cfg.Limits.Memory},
		Requests: spec.ResourceRequirementSpec{CPU: cfg.Requests.CPU, Memory: cfg.Requests.Memory},
	}, nil
}

func buildLabelMaps(cfg labelMaps) spec.LabelAndAnnotationSpec {
	return spec.LabelAndAnnotationSpec{
		Deployment:              cfg.Deployment,
		HorizontalPodAutoscaler: cfg.HorizontalPodAutoscaler,
		Service:                 cfg.Service,
		Ingress:                 cfg.Ingress,
		Pod:                     cfg.Pod,
	}
}

// versionFromImage derives the application version string from the image
// reference tag. Untagged images deploy as "latest".
func versionFromImage(image string) string {
	slash := strings.LastIndex(image, "/")
	colon := strings.LastIndex(image, ":")
	if colon > slash {
		return image[colon+1:]
	}
	return "latest"
}
