package constants

// Volume and container names used in synthesized workloads.
const (
	ConfigVolumeSuffix = "-config"
	SecretVolumeSuffix = "-secret"
	TmpVolumeName      = "tmp"

	ConfigMountPath  = "/var/run/config/fiaas/"
	SecretsMountPath = "/var/run/secrets/fiaas/"
	TmpMountPath     = "/tmp"

	SecretsInitContainerName = "fiaas-secrets-init-container"
	DatadogContainerName     = "fiaas-datadog-container"

	DefaultServiceAccountName = "default"
)
