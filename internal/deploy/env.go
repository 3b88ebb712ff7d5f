package deploy

import (
	"sort"
	"strings"

	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/fiaas/deployd/internal/config"
	"github.com/fiaas/deployd/internal/constants"
	"github.com/fiaas/deployd/internal/spec"
)

// EnvBuilder assembles the deterministically ordered environment-variable set
// for the main container: daemon-wide static constants, per-deployment
// identity values, global overrides with legacy dual-naming, and downward-API
// field references.
type EnvBuilder struct {
	staticEnv map[string]string
	globalEnv map[string]string
	log       logr.Logger
}

// NewEnvBuilder creates an EnvBuilder from the daemon configuration.
func NewEnvBuilder(cfg *config.Config, log logr.Logger) *EnvBuilder {
	return &EnvBuilder{
		staticEnv: buildStaticEnv(cfg),
		globalEnv: cfg.GlobalEnv,
		log:       log.WithName("env-builder"),
	}
}

// buildStaticEnv computes the fixed key set every application receives. The
// deprecated aliases stay until no deployed application reads them anymore.
func buildStaticEnv(cfg *config.Config) map[string]string {
	env := map[string]string{
		constants.EnvInfrastructure: cfg.Infrastructure,
		constants.EnvLogStdout:      "true",
		constants.EnvLogFormat:      cfg.LogFormat,
		constants.EnvConstrettoTags: "kubernetes",
	}
	if cfg.Environment != "" {
		env[constants.EnvFinnEnv] = cfg.Environment
		env[constants.EnvEnvironment] = cfg.Environment
		env[constants.EnvConstrettoTags] = strings.Join(
			[]string{"kubernetes-" + cfg.Environment, "kubernetes", cfg.Environment}, ",")
	}
	return env
}

// Build returns the full environment for the main container, sorted by
// variable name. Applying it twice to an unchanged spec yields identical
// output, which keeps resynthesis idempotent.
func (b *EnvBuilder) Build(appSpec *spec.AppSpec) []corev1.EnvVar {
	reserved := make(map[string]string, len(b.staticEnv)+3)
	for name, value := range b.staticEnv {
		reserved[name] = value
	}
	reserved[constants.EnvArtifactName] = appSpec.Name
	reserved[constants.EnvImage] = appSpec.Image
	reserved[constants.EnvVersion] = appSpec.Version

	env := make([]corev1.EnvVar, 0, len(reserved)+2*len(b.globalEnv)+6)
	for name, value := range reserved {
		env = append(env, corev1.EnvVar{Name: name, Value: value})
	}

	// Global overrides are emitted under both the bare and the prefixed name
	// for backward compatibility. Overrides colliding with a reserved key are
	// dropped with a warning, never an error.
	for name, value := range b.globalEnv {
		_, barePresent := reserved[name]
		_, prefixedPresent := reserved[constants.GlobalEnvPrefix+name]
		if barePresent || prefixedPresent {
			b.log.Info("reserved environment variable declared as global, ignoring", "name", name)
			continue
		}
		env = append(env,
			corev1.EnvVar{Name: name, Value: value},
			corev1.EnvVar{Name: constants.GlobalEnvPrefix + name, Value: value},
		)
	}

	env = append(env, b.fieldRefEnv(appSpec)...)

	sort.Slice(env, func(i, j int) bool { return env[i].Name < env[j].Name })
	return env
}

// fieldRefEnv returns the downward-API entries that resolve on the cluster
// side rather than in the daemon.
func (b *EnvBuilder) fieldRefEnv(appSpec *spec.AppSpec) []corev1.EnvVar {
	divisor := resource.MustParse("1")

	resourceRef := func(name, res string) corev1.EnvVar {
		return corev1.EnvVar{
			Name: name,
			ValueFrom: &corev1.EnvVarSource{
				ResourceFieldRef: &corev1.ResourceFieldSelector{
					ContainerName: appSpec.Name,
					Resource:      res,
					Divisor:       divisor,
				},
			},
		}
	}
	fieldRef := func(name, path string) corev1.EnvVar {
		return corev1.EnvVar{
			Name: name,
			ValueFrom: &corev1.EnvVarSource{
				FieldRef: &corev1.ObjectFieldSelector{FieldPath: path},
			},
		}
	}

	return []corev1.EnvVar{
		resourceRef(constants.EnvRequestsCPU, "requests.cpu"),
		resourceRef(constants.EnvRequestsMemory, "requests.memory"),
		resourceRef(constants.EnvLimitsCPU, "limits.cpu"),
		resourceRef(constants.EnvLimitsMemory, "limits.memory"),
		fieldRef(constants.EnvNamespace, "metadata.namespace"),
		fieldRef(constants.EnvPodName, "metadata.name"),
	}
}
