package v3

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/util/intstr"

	"github.com/fiaas/deployd/internal/errors"
	"github.com/fiaas/deployd/internal/spec"
)

const (
	testName      = "testapp"
	testImage     = "finntech/testimage:v1.3.0"
	testNamespace = "default"
)

func newAppSpec(t *testing.T, doc map[string]any) *spec.AppSpec {
	t.Helper()
	appSpec, err := NewFactory().NewAppSpec(testName, testImage, []string{"io"}, []string{"foo"}, doc, "deployment-id", testNamespace)
	require.NoError(t, err)
	return appSpec
}

func TestMinimalDocumentDefaults(t *testing.T) {
	appSpec := newAppSpec(t, map[string]any{"version": 3})

	assert.Equal(t, testName, appSpec.Name)
	assert.Equal(t, testNamespace, appSpec.Namespace)
	assert.Equal(t, testImage, appSpec.Image)
	assert.Equal(t, "v1.3.0", appSpec.Version)

	assert.Equal(t, int32(5), appSpec.Replicas)
	assert.True(t, appSpec.Autoscaler.Enabled)
	assert.Equal(t, int32(2), appSpec.Autoscaler.MinReplicas)
	assert.Equal(t, int32(50), appSpec.Autoscaler.CPUThresholdPercentage)
	assert.True(t, appSpec.Singleton)

	require.Len(t, appSpec.Ports, 1)
	assert.Equal(t, spec.PortSpec{Protocol: "http", Name: "http", Port: 80, TargetPort: 8080}, appSpec.Ports[0])

	assert.Equal(t, "400m", appSpec.Resources.Limits.CPU)
	assert.Equal(t, "512Mi", appSpec.Resources.Limits.Memory)
	assert.Equal(t, "200m", appSpec.Resources.Requests.CPU)
	assert.Equal(t, "256Mi", appSpec.Resources.Requests.Memory)

	assert.True(t, appSpec.Prometheus.Enabled)
	assert.Equal(t, "http", appSpec.Prometheus.Port)
	assert.Equal(t, "/_/metrics", appSpec.Prometheus.Path)
	assert.False(t, appSpec.Datadog.Enabled)

	require.NotNil(t, appSpec.HealthChecks.Liveness.HTTP)
	assert.Equal(t, "/_/health", appSpec.HealthChecks.Liveness.HTTP.Path)
	assert.Equal(t, intstr.FromString("http"), appSpec.HealthChecks.Liveness.HTTP.Port)
	require.NotNil(t, appSpec.HealthChecks.Readiness.HTTP)
	assert.Equal(t, "/_/ready", appSpec.HealthChecks.Readiness.HTTP.Path)

	assert.Equal(t, int32(10), appSpec.HealthChecks.Liveness.InitialDelaySeconds)
	assert.Equal(t, int32(10), appSpec.HealthChecks.Liveness.PeriodSeconds)
	assert.Equal(t, int32(1), appSpec.HealthChecks.Liveness.SuccessThreshold)
	assert.Equal(t, int32(3), appSpec.HealthChecks.Liveness.FailureThreshold)
	assert.Equal(t, int32(1), appSpec.HealthChecks.Liveness.TimeoutSeconds)

	assert.False(t, appSpec.AdminAccess)
	assert.False(t, appSpec.HasSecrets)
}

func TestReplicasScalarShorthand(t *testing.T) {
	appSpec := newAppSpec(t, map[string]any{"version": 3, "replicas": 1})

	assert.Equal(t, int32(1), appSpec.Replicas)
	assert.False(t, appSpec.Autoscaler.Enabled)
	assert.True(t, appSpec.Singleton)
}

func TestReplicasObjectForm(t *testing.T) {
	appSpec := newAppSpec(t, map[string]any{
		"version": 3,
		"replicas": map[string]any{
			"minimum":                  3,
			"maximum":                  10,
			"cpu_threshold_percentage": 75,
			"singleton":                false,
		},
	})

	assert.Equal(t, int32(10), appSpec.Replicas)
	assert.True(t, appSpec.Autoscaler.Enabled)
	assert.Equal(t, int32(3), appSpec.Autoscaler.MinReplicas)
	assert.Equal(t, int32(75), appSpec.Autoscaler.CPUThresholdPercentage)
	assert.False(t, appSpec.Singleton)
}

func TestTCPPortGetsTCPDefaultChecks(t *testing.T) {
	appSpec := newAppSpec(t, map[string]any{
		"version": 3,
		"ports": []any{
			map[string]any{"protocol": "tcp", "name": "thrift", "port": 7999, "target_port": 7999},
		},
	})

	require.NotNil(t, appSpec.HealthChecks.Liveness.TCP)
	assert.Equal(t, intstr.FromString("thrift"), appSpec.HealthChecks.Liveness.TCP.Port)
	require.NotNil(t, appSpec.HealthChecks.Readiness.TCP)
	assert.Nil(t, appSpec.HealthChecks.Liveness.HTTP)
}

func TestExecChecks(t *testing.T) {
	appSpec := newAppSpec(t, map[string]any{
		"version": 3,
		"ports":   []any{},
		"healthchecks": map[string]any{
			"liveness":  map[string]any{"execute": map[string]any{"command": "/app/check.sh --liveness"}},
			"readiness": map[string]any{"execute": map[string]any{"command": "/app/check.sh --readiness"}},
		},
	})

	require.NotNil(t, appSpec.HealthChecks.Liveness.Execute)
	assert.Equal(t, "/app/check.sh --liveness", appSpec.HealthChecks.Liveness.Execute.Command)
	require.NotNil(t, appSpec.HealthChecks.Readiness.Execute)
	assert.Equal(t, "/app/check.sh --readiness", appSpec.HealthChecks.Readiness.Execute.Command)
}

func TestReadinessCopiesLiveness(t *testing.T) {
	appSpec := newAppSpec(t, map[string]any{
		"version": 3,
		"healthchecks": map[string]any{
			"liveness": map[string]any{
				"http": map[string]any{
					"path":         "/healthz",
					"port":         "http",
					"http_headers": map[string]any{"X-Custom-Header": "stuff"},
				},
				"initial_delay_seconds": 5,
			},
		},
	})

	require.NotNil(t, appSpec.HealthChecks.Readiness.HTTP)
	assert.Equal(t, "/healthz", appSpec.HealthChecks.Readiness.HTTP.Path)
	assert.Equal(t, map[string]string{"X-Custom-Header": "stuff"}, appSpec.HealthChecks.Readiness.HTTP.HTTPHeaders)
	assert.Equal(t, int32(5), appSpec.HealthChecks.Readiness.InitialDelaySeconds)
}

func TestNoDefaultCheckWithMultiplePorts(t *testing.T) {
	_, err := NewFactory().NewAppSpec(testName, testImage, nil, nil, map[string]any{
		"version": 3,
		"ports": []any{
			map[string]any{"protocol": "tcp", "name": "a", "port": 1337, "target_port": 31337},
			map[string]any{"protocol": "tcp", "name": "b", "port": 1338, "target_port": 31338},
		},
	}, "id", testNamespace)

	require.Error(t, err)
	assert.True(t, errors.IsInvalidConfiguration(err))
}

func TestCheckWithMultipleMechanismsRejected(t *testing.T) {
	_, err := NewFactory().NewAppSpec(testName, testImage, nil, nil, map[string]any{
		"version": 3,
		"healthchecks": map[string]any{
			"liveness": map[string]any{
				"http": map[string]any{"path": "/", "port": "http"},
				"tcp":  map[string]any{"port": "http"},
			},
		},
	}, "id", testNamespace)

	require.Error(t, err)
	assert.True(t, errors.IsInvalidConfiguration(err))
}

func TestInvalidResourceQuantityRejected(t *testing.T) {
	_, err := NewFactory().NewAppSpec(testName, testImage, nil, nil, map[string]any{
		"version": 3,
		"resources": map[string]any{
			"limits": map[string]any{"cpu": "lots"},
		},
	}, "id", testNamespace)

	require.Error(t, err)
	assert.True(t, errors.IsInvalidConfiguration(err))
}

func TestTypeMismatchRejected(t *testing.T) {
	_, err := NewFactory().NewAppSpec(testName, testImage, nil, nil, map[string]any{
		"version":  3,
		"replicas": "a lot",
	}, "id", testNamespace)

	require.Error(t, err)
	assert.True(t, errors.IsInvalidConfiguration(err))
}

func TestLabelsAndAnnotationsPartitionedPerKind(t *testing.T) {
	appSpec := newAppSpec(t, map[string]any{
		"version": 3,
		"labels": map[string]any{
			"deployment": map[string]any{"a": "b"},
			"pod":        map[string]any{"q": "r"},
		},
		"annotations": map[string]any{
			"deployment": map[string]any{"x": "y"},
		},
	})

	assert.Equal(t, map[string]string{"a": "b"}, appSpec.Labels.Deployment)
	assert.Equal(t, map[string]string{"q": "r"}, appSpec.Labels.Pod)
	assert.Equal(t, map[string]string{"x": "y"}, appSpec.Annotations.Deployment)
	assert.Nil(t, appSpec.Labels.Service)
}

func TestSecretsAndAdminAccess(t *testing.T) {
	appSpec := newAppSpec(t, map[string]any{
		"version":                3,
		"secrets_in_environment": true,
		"admin_access":           true,
	})

	assert.True(t, appSpec.HasSecrets)
	assert.True(t, appSpec.SecretsInEnvironment)
	assert.True(t, appSpec.AdminAccess)
}

func TestVersionFromImage(t *testing.T) {
	tests := []struct {
		image string
		want  string
	}{
		{image: "registry/app1:v1", want: "v1"},
		{image: "registry.example.com:5000/app1:v2", want: "v2"},
		{image: "registry.example.com:5000/app1", want: "latest"},
		{image: "app1", want: "latest"},
	}

	for _, tt := range tests {
		t.Run(tt.image, func(t *testing.T) {
			assert.Equal(t, tt.want, versionFromImage(tt.image))
		})
	}
}
