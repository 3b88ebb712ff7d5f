// Package config holds the daemon-wide configuration. The Config value is
// built once at startup and passed into each component's constructor, never
// consulted as ambient global state.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"k8s.io/apimachinery/pkg/util/intstr"
)

// Config is the immutable daemon configuration.
type Config struct {
	// Infrastructure and Environment tag every deployed application through
	// the static environment-variable set.
	Infrastructure string            `json:"infrastructure"`
	Environment    string            `json:"environment"`
	LogFormat      string            `json:"log-format"`
	GlobalEnv      map[string]string `json:"global-env"`

	// UseInMemoryEmptyDirs backs scratch volumes with memory instead of disk.
	UseInMemoryEmptyDirs bool `json:"use-in-memory-emptydirs"`

	// PreStopDelaySeconds, when positive, attaches a pre-stop sleep hook to
	// the main container and extends the termination grace period.
	PreStopDelaySeconds int `json:"pre-stop-delay"`

	// Rollout strategy defaults. Either an absolute number ("2") or a
	// percentage ("25%").
	DeploymentMaxSurge       string `json:"deployment-max-surge"`
	DeploymentMaxUnavailable string `json:"deployment-max-unavailable"`

	// DatadogContainerImage must be set for applications that enable the
	// datadog integration; resolution rejects such specs otherwise.
	// DatadogGlobalTags are merged into every sidecar's tag set.
	DatadogContainerImage string            `json:"datadog-container-image"`
	DatadogGlobalTags     map[string]string `json:"datadog-global-tags"`

	// Secrets-injection collaborator wiring.
	SecretsInitContainerImage string `json:"secrets-init-container-image"`
	SecretsServiceAccountName string `json:"secrets-service-account-name"`

	// BesteffortQOSRequired strips resource requirements from injected
	// sidecars so the pod keeps BestEffort QoS.
	BesteffortQOSRequired bool `json:"besteffort-qos-required"`

	ListenAddress string `json:"listen-address"`
}

// Load reads configuration from the given viper instance, which is expected
// to have flags and an optional config file already bound. Environment
// variables with the DEPLOYD_ prefix override file values.
func Load(v *viper.Viper) (*Config, error) {
	v.SetDefault("infrastructure", "diy")
	v.SetDefault("log-format", "json")
	v.SetDefault("deployment-max-surge", "25%")
	v.SetDefault("deployment-max-unavailable", "0")
	v.SetDefault("listen-address", ":5000")

	v.SetEnvPrefix("DEPLOYD")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if file := v.GetString("config-file"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	// Viper folds map keys to lower case; environment variable names are
	// upper case by convention, so restore that here.
	globalEnv := make(map[string]string)
	for name, value := range v.GetStringMapString("global-env") {
		globalEnv[strings.ToUpper(name)] = value
	}

	cfg := &Config{
		Infrastructure:            v.GetString("infrastructure"),
		Environment:               v.GetString("environment"),
		LogFormat:                 v.GetString("log-format"),
		GlobalEnv:                 globalEnv,
		UseInMemoryEmptyDirs:      v.GetBool("use-in-memory-emptydirs"),
		PreStopDelaySeconds:       v.GetInt("pre-stop-delay"),
		DeploymentMaxSurge:        v.GetString("deployment-max-surge"),
		DeploymentMaxUnavailable:  v.GetString("deployment-max-unavailable"),
		DatadogContainerImage:     v.GetString("datadog-container-image"),
		DatadogGlobalTags:         v.GetStringMapString("datadog-global-tags"),
		SecretsInitContainerImage: v.GetString("secrets-init-container-image"),
		SecretsServiceAccountName: v.GetString("secrets-service-account-name"),
		BesteffortQOSRequired:     v.GetBool("besteffort-qos-required"),
		ListenAddress:             v.GetString("listen-address"),
	}

	if cfg.PreStopDelaySeconds < 0 {
		return nil, fmt.Errorf("pre-stop-delay must not be negative, got %d", cfg.PreStopDelaySeconds)
	}

	return cfg, nil
}

// MaxSurge returns the rollout max-surge setting as an IntOrString.
func (c *Config) MaxSurge() intstr.IntOrString {
	return intstr.Parse(c.DeploymentMaxSurge)
}

// MaxUnavailable returns the rollout max-unavailable setting as an IntOrString.
func (c *Config) MaxUnavailable() intstr.IntOrString {
	return intstr.Parse(c.DeploymentMaxUnavailable)
}
