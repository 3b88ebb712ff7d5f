package v3

import (
	"k8s.io/apimachinery/pkg/util/intstr"

	"github.com/fiaas/deployd/internal/errors"
	"github.com/fiaas/deployd/internal/spec"
)

const (
	defaultLivenessPath  = "/_/health"
	defaultReadinessPath = "/_/ready"
)

// Default timing parameters for health checks.
const (
	defaultInitialDelaySeconds int32 = 10
	defaultPeriodSeconds       int32 = 10
	defaultSuccessThreshold    int32 = 1
	defaultFailureThreshold    int32 = 3
	defaultTimeoutSeconds      int32 = 1
)

// buildHealthChecks resolves the health-check section of a document against
// the resolved port list. When no checks are declared a default check is
// derived from the port list, which is only possible when the application
// exposes exactly one port. A declared liveness check doubles as the
// readiness check when the latter is absent.
func buildHealthChecks(cfg healthchecksConfig, ports []spec.PortSpec) (*spec.HealthCheckSpec, error) {
	liveness := cfg.Liveness
	readiness := cfg.Readiness

	if liveness == nil {
		defaulted, err := defaultCheck(ports, defaultLivenessPath)
		if err != nil {
			return nil, err
		}
		liveness = defaulted
	}
	if readiness == nil {
		if cfg.Liveness != nil {
			readiness = cfg.Liveness
		} else {
			defaulted, err := defaultCheck(ports, defaultReadinessPath)
			if err != nil {
				return nil, err
			}
			readiness = defaulted
		}
	}

	livenessSpec, err := buildCheck(liveness, ports, defaultLivenessPath)
	if err != nil {
		return nil, err
	}
	readinessSpec, err := buildCheck(readiness, ports, defaultReadinessPath)
	if err != nil {
		return nil, err
	}

	return &spec.HealthCheckSpec{Liveness: *livenessSpec, Readiness: *readinessSpec}, nil
}

// defaultCheck derives a health check from the port list: HTTP GET against
// http ports, a TCP dial otherwise.
func defaultCheck(ports []spec.PortSpec, path string) (*checkConfig, error) {
	if len(ports) != 1 {
		return nil, errors.NewInvalidConfiguration(
			"unable to derive a default health check: application exposes %d ports, expected exactly one", len(ports))
	}

	port := intstr.FromString(ports[0].Name)
	if ports[0].Protocol == "http" {
		return &checkConfig{HTTP: &httpCheckConfig{Path: path, Port: &port}}, nil
	}
	return &checkConfig{TCP: &tcpCheckConfig{Port: &port}}, nil
}

func buildCheck(cfg *checkConfig, ports []spec.PortSpec, defaultPath string) (*spec.CheckSpec, error) {
	mechanisms := 0
	for _, set := range []bool{cfg.HTTP != nil, cfg.TCP != nil, cfg.Execute != nil} {
		if set {
			mechanisms++
		}
	}
	if mechanisms != 1 {
		return nil, errors.NewInvalidConfiguration(
			"a health check must have exactly one of http, tcp or execute, got %d", mechanisms)
	}

	check := &spec.CheckSpec{
		InitialDelaySeconds: timingOrDefault(cfg.InitialDelaySeconds, defaultInitialDelaySeconds),
		PeriodSeconds:       timingOrDefault(cfg.PeriodSeconds, defaultPeriodSeconds),
		SuccessThreshold:    timingOrDefault(cfg.SuccessThreshold, defaultSuccessThreshold),
		FailureThreshold:    timingOrDefault(cfg.FailureThreshold, defaultFailureThreshold),
		TimeoutSeconds:      timingOrDefault(cfg.TimeoutSeconds, defaultTimeoutSeconds),
	}

	switch {
	case cfg.HTTP != nil:
		path := cfg.HTTP.Path
		if path == "" {
			path = defaultPath
		}
		headers := cfg.HTTP.HTTPHeaders
		if headers == nil {
			headers = map[string]string{}
		}
		check.HTTP = &spec.HTTPCheckSpec{
			Path:        path,
			Port:        portOrDefault(cfg.HTTP.Port, ports),
			HTTPHeaders: headers,
		}
	case cfg.TCP != nil:
		check.TCP = &spec.TCPCheckSpec{Port: portOrDefault(cfg.TCP.Port, ports)}
	case cfg.Execute != nil:
		if cfg.Execute.Command == "" {
			return nil, errors.NewInvalidConfiguration("an execute health check requires a command")
		}
		check.Execute = &spec.ExecCheckSpec{Command: cfg.Execute.Command}
	}

	return check, nil
}

func timingOrDefault(value *int32, fallback int32) int32 {
	if value != nil {
		return *value
	}
	return fallback
}

func portOrDefault(port *intstr.IntOrString, ports []spec.PortSpec) intstr.IntOrString {
	if port != nil {
		return *port
	}
	if len(ports) > 0 {
		return intstr.FromString(ports[0].Name)
	}
	return intstr.FromString("http")
}
