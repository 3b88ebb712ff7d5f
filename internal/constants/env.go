package constants

// Environment variable keys injected into every deployed application.
const (
	EnvInfrastructure = "FIAAS_INFRASTRUCTURE" // DEPRECATED. Remove in the future.
	EnvEnvironment    = "FIAAS_ENVIRONMENT"
	EnvFinnEnv        = "FINN_ENV" // DEPRECATED. Remove in the future.
	EnvConstrettoTags = "CONSTRETTO_TAGS"
	EnvLogStdout      = "LOG_STDOUT"
	EnvLogFormat      = "LOG_FORMAT"

	EnvArtifactName = "ARTIFACT_NAME"
	EnvImage        = "IMAGE"
	EnvVersion      = "VERSION"

	// Downward-API references resolved by the cluster, not the daemon.
	EnvRequestsCPU    = "FIAAS_REQUESTS_CPU"
	EnvRequestsMemory = "FIAAS_REQUESTS_MEMORY"
	EnvLimitsCPU      = "FIAAS_LIMITS_CPU"
	EnvLimitsMemory   = "FIAAS_LIMITS_MEMORY"
	EnvNamespace      = "FIAAS_NAMESPACE"
	EnvPodName        = "FIAAS_POD_NAME"

	// GlobalEnvPrefix is prepended to every global override to produce the
	// second entry of the legacy dual-naming scheme.
	GlobalEnvPrefix = "FIAAS_"
)
