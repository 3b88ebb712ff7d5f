// Package v2 migrates version 2 configuration documents to version 3.
package v2

import (
	"fmt"
)

// Version is the config document version this transformer accepts.
const Version = 2

// Transformer rewrites a version 2 document into its version 3 equivalent:
// the scalar replica count and the autoscaler section merge into the v3
// replicas object, prometheus moves under metrics, the single host field
// becomes an ingress entry, admin_access turns from an access-mode string
// into a boolean and has_secrets is renamed to secrets. All other keys carry
// over untouched.
type Transformer struct{}

// NewTransformer creates a version 2 transformer.
func NewTransformer() *Transformer {
	return &Transformer{}
}

// Transform migrates doc to version 3. The input document is never mutated.
// With stripDefaults set, fields that only restate the version 3 defaults are
// omitted from the output, which keeps migrated configs minimal.
func (t *Transformer) Transform(doc map[string]any, stripDefaults bool) (map[string]any, error) {
	out := make(map[string]any, len(doc)+1)
	for key, value := range doc {
		out[key] = value
	}
	out["version"] = 3

	if err := t.liftReplicas(doc, out, stripDefaults); err != nil {
		return nil, err
	}
	t.liftPrometheus(doc, out)
	t.liftHost(doc, out)
	t.liftAdminAccess(doc, out)
	t.liftSecrets(doc, out)

	return out, nil
}

func (t *Transformer) liftReplicas(doc, out map[string]any, stripDefaults bool) error {
	delete(out, "replicas")
	delete(out, "autoscaler")

	replicas, hasReplicas, err := intValue(doc, "replicas")
	if err != nil {
		return err
	}
	if !hasReplicas {
		return nil
	}

	minimum := replicas
	maximum := replicas
	threshold := 0
	if autoscaler, ok := doc["autoscaler"].(map[string]any); ok {
		if enabled, _ := autoscaler["enabled"].(bool); enabled {
			if min, ok, err := intValue(autoscaler, "min_replicas"); err != nil {
				return err
			} else if ok {
				minimum = min
			}
			if pct, ok, err := intValue(autoscaler, "cpu_threshold_percentage"); err != nil {
				return err
			} else if ok {
				threshold = pct
			}
		}
	}

	lifted := map[string]any{}
	if !stripDefaults || minimum != 2 {
		lifted["minimum"] = minimum
	}
	if !stripDefaults || maximum != 5 {
		lifted["maximum"] = maximum
	}
	if threshold != 0 && (!stripDefaults || threshold != 50) {
		lifted["cpu_threshold_percentage"] = threshold
	}
	if len(lifted) > 0 {
		out["replicas"] = lifted
	}

	return nil
}

func (t *Transformer) liftPrometheus(doc, out map[string]any) {
	delete(out, "prometheus")

	prometheus, ok := doc["prometheus"]
	if !ok {
		return
	}
	out["metrics"] = map[string]any{"prometheus": prometheus}
}

func (t *Transformer) liftHost(doc, out map[string]any) {
	delete(out, "host")

	host, ok := doc["host"].(string)
	if !ok || host == "" {
		return
	}
	out["ingress"] = []any{
		map[string]any{
			"host": host,
			"pathmappings": []any{
				map[string]any{"path": "/", "port": 80},
			},
		},
	}
}

// liftAdminAccess converts the version 2 access-mode string into the version
// 3 boolean. Any read-write mode grants admin access; a boolean value is
// already in version 3 form and carries over.
func (t *Transformer) liftAdminAccess(doc, out map[string]any) {
	delete(out, "admin_access")

	switch v := doc["admin_access"].(type) {
	case bool:
		out["admin_access"] = v
	case string:
		out["admin_access"] = v == "read-write"
	}
}

func (t *Transformer) liftSecrets(doc, out map[string]any) {
	delete(out, "has_secrets")

	if hasSecrets, ok := doc["has_secrets"].(bool); ok {
		out["secrets"] = hasSecrets
	}
}

// intValue reads an integer field, accepting the numeric types that YAML and
// JSON decoders produce.
func intValue(doc map[string]any, key string) (int, bool, error) {
	raw, ok := doc[key]
	if !ok {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case int:
		return v, true, nil
	case int32:
		return int(v), true, nil
	case int64:
		return int(v), true, nil
	case float64:
		return int(v), true, nil
	default:
		return 0, false, fmt.Errorf("key %s: expected integer, got %T", key, raw)
	}
}
