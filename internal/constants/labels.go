package constants

// Label keys used on objects managed by the daemon.
const (
	LabelApp          = "app"
	LabelStatus       = "fiaas/status"
	LabelDeploymentID = "fiaas/deployment_id"
)

// Label values.
const (
	LabelValueStatusActive = "active"
)
