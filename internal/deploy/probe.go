package deploy

import (
	"fmt"
	"sort"

	"github.com/google/shlex"
	corev1 "k8s.io/api/core/v1"

	"github.com/fiaas/deployd/internal/errors"
	"github.com/fiaas/deployd/internal/spec"
)

// BuildProbe converts a health-check spec into a container probe. Timing
// fields are copied verbatim; exactly one of the http/tcp/exec mechanisms
// must be populated. The spec factory enforces this at construction, so a
// violation here means a programming error upstream.
func BuildProbe(check spec.CheckSpec) (*corev1.Probe, error) {
	probe := &corev1.Probe{
		InitialDelaySeconds: check.InitialDelaySeconds,
		PeriodSeconds:       check.PeriodSeconds,
		SuccessThreshold:    check.SuccessThreshold,
		FailureThreshold:    check.FailureThreshold,
		TimeoutSeconds:      check.TimeoutSeconds,
	}

	switch {
	case check.HTTP != nil:
		probe.HTTPGet = &corev1.HTTPGetAction{
			Path:        check.HTTP.Path,
			Port:        check.HTTP.Port,
			HTTPHeaders: httpHeaders(check.HTTP.HTTPHeaders),
		}
	case check.TCP != nil:
		probe.TCPSocket = &corev1.TCPSocketAction{Port: check.TCP.Port}
	case check.Execute != nil:
		command, err := shlex.Split(check.Execute.Command)
		if err != nil {
			return nil, errors.NewInvalidConfiguration("invalid exec health check command %q: %v", check.Execute.Command, err)
		}
		probe.Exec = &corev1.ExecAction{Command: command}
	default:
		return nil, fmt.Errorf("%w: a spec must have exactly one health check, none was defined", errors.ErrProbeConfiguration)
	}

	return probe, nil
}

// httpHeaders converts the header map into the list form the cluster API
// expects, sorted by name for deterministic output.
func httpHeaders(headers map[string]string) []corev1.HTTPHeader {
	if len(headers) == 0 {
		return nil
	}
	result := make([]corev1.HTTPHeader, 0, len(headers))
	for name, value := range headers {
		result = append(result, corev1.HTTPHeader{Name: name, Value: value})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}
