package constants

// Annotation keys read or written on pod templates.
const (
	// LegacyInitContainerAnnotationSuffix matches the annotation keys used by
	// Kubernetes 1.5 to persist init-container definitions. In 1.6 and 1.7
	// these annotations take precedence over the structured initContainers
	// field, so they must be cleared on every write or stale values resurrect
	// old container definitions.
	LegacyInitContainerAnnotationSuffix = "kubernetes.io/init-containers"

	AnnotationPrometheusScrape = "prometheus.io/scrape"
	AnnotationPrometheusPort   = "prometheus.io/port"
	AnnotationPrometheusPath   = "prometheus.io/path"
)
