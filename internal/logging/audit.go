// Package logging holds log helpers shared by the daemon's components.
package logging

import "github.com/go-logr/logr"

// AuditEvent logs a structured record of an action that changed cluster
// state. Audit records are tagged with "audit=true" so log aggregation
// pipelines can separate them from operational logs.
func AuditEvent(log logr.Logger, action, name, namespace, deploymentID string) {
	log.WithValues(
		"audit", "true",
		"action", action,
		"app", name,
		"namespace", namespace,
		"deployment_id", deploymentID,
	).Info("deployment audit event")
}
