package v2

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransformBumpsVersion(t *testing.T) {
	out, err := NewTransformer().Transform(map[string]any{"version": 2}, false)

	require.NoError(t, err)
	assert.Equal(t, 3, out["version"])
}

func TestTransformDoesNotMutateInput(t *testing.T) {
	doc := map[string]any{
		"version":  2,
		"replicas": 3,
		"host":     "www.example.com",
	}

	_, err := NewTransformer().Transform(doc, false)

	require.NoError(t, err)
	assert.Equal(t, 2, doc["version"])
	assert.Equal(t, 3, doc["replicas"])
	assert.Equal(t, "www.example.com", doc["host"])
}

func TestTransformLiftsScalarReplicas(t *testing.T) {
	out, err := NewTransformer().Transform(map[string]any{
		"version":  2,
		"replicas": 3,
	}, false)

	require.NoError(t, err)
	assert.Equal(t, map[string]any{"minimum": 3, "maximum": 3}, out["replicas"])
}

func TestTransformLiftsAutoscaler(t *testing.T) {
	out, err := NewTransformer().Transform(map[string]any{
		"version":  2,
		"replicas": 10,
		"autoscaler": map[string]any{
			"enabled":                  true,
			"min_replicas":             2,
			"cpu_threshold_percentage": 60,
		},
	}, false)

	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"minimum":                  2,
		"maximum":                  10,
		"cpu_threshold_percentage": 60,
	}, out["replicas"])
	assert.NotContains(t, out, "autoscaler")
}

func TestTransformIgnoresDisabledAutoscaler(t *testing.T) {
	out, err := NewTransformer().Transform(map[string]any{
		"version":  2,
		"replicas": 4,
		"autoscaler": map[string]any{
			"enabled":      false,
			"min_replicas": 2,
		},
	}, false)

	require.NoError(t, err)
	assert.Equal(t, map[string]any{"minimum": 4, "maximum": 4}, out["replicas"])
}

func TestTransformLiftsPrometheusUnderMetrics(t *testing.T) {
	prometheus := map[string]any{"enabled": true, "port": "http", "path": "/internal-backstage/prometheus"}
	out, err := NewTransformer().Transform(map[string]any{
		"version":    2,
		"prometheus": prometheus,
	}, false)

	require.NoError(t, err)
	assert.Equal(t, map[string]any{"prometheus": prometheus}, out["metrics"])
	assert.NotContains(t, out, "prometheus")
}

func TestTransformLiftsHostToIngress(t *testing.T) {
	out, err := NewTransformer().Transform(map[string]any{
		"version": 2,
		"host":    "www.example.com",
	}, false)

	require.NoError(t, err)
	assert.NotContains(t, out, "host")
	ingress, ok := out["ingress"].([]any)
	require.True(t, ok)
	require.Len(t, ingress, 1)
	assert.Equal(t, "www.example.com", ingress[0].(map[string]any)["host"])
}

func TestTransformPassesThroughUnrelatedKeys(t *testing.T) {
	resources := map[string]any{"limits": map[string]any{"cpu": "400m"}}
	out, err := NewTransformer().Transform(map[string]any{
		"version":      2,
		"resources":    resources,
		"admin_access": true,
	}, false)

	require.NoError(t, err)
	assert.Equal(t, resources, out["resources"])
	assert.Equal(t, true, out["admin_access"])
}

func TestTransformRejectsMalformedReplicas(t *testing.T) {
	_, err := NewTransformer().Transform(map[string]any{
		"version":  2,
		"replicas": "three",
	}, false)

	require.Error(t, err)
}

func TestTransformStripDefaults(t *testing.T) {
	out, err := NewTransformer().Transform(map[string]any{
		"version":  2,
		"replicas": 5,
		"autoscaler": map[string]any{
			"enabled":                  true,
			"min_replicas":             2,
			"cpu_threshold_percentage": 50,
		},
	}, true)

	require.NoError(t, err)
	assert.NotContains(t, out, "replicas")
}

func TestTransformLiftsAdminAccess(t *testing.T) {
	tests := []struct {
		name     string
		value    any
		expected bool
	}{
		{"read-write string grants access", "read-write", true},
		{"read-only string denies access", "read-only", false},
		{"boolean carries over", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := NewTransformer().Transform(map[string]any{
				"version":      2,
				"admin_access": tt.value,
			}, false)

			require.NoError(t, err)
			assert.Equal(t, tt.expected, out["admin_access"])
		})
	}
}

func TestTransformRenamesHasSecrets(t *testing.T) {
	out, err := NewTransformer().Transform(map[string]any{
		"version":     2,
		"has_secrets": true,
	}, false)

	require.NoError(t, err)
	assert.Equal(t, true, out["secrets"])
	assert.NotContains(t, out, "has_secrets")
}
