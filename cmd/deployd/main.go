// Command deployd runs the continuous-deployment daemon: it resolves
// application configuration documents into canonical specs and reconciles
// the cluster workloads they describe.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	// Import all Kubernetes client auth plugins (e.g. Azure, GCP, OIDC, etc.)
	// to ensure the daemon can authenticate against managed clusters.
	_ "k8s.io/client-go/plugin/pkg/client/auth"

	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/fiaas/deployd/internal/config"
	"github.com/fiaas/deployd/internal/deploy"
	"github.com/fiaas/deployd/internal/spec"
	specv2 "github.com/fiaas/deployd/internal/spec/v2"
	specv3 "github.com/fiaas/deployd/internal/spec/v3"
	"github.com/fiaas/deployd/internal/web"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := viper.New()
	zapOpts := zap.Options{}

	cmd := &cobra.Command{
		Use:           "deployd",
		Short:         "Continuous deployment daemon for Kubernetes",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(v, zapOpts)
		},
	}

	flags := cmd.Flags()
	flags.String("config-file", "", "path to a daemon configuration file")
	flags.String("infrastructure", "diy", "name of the infrastructure the daemon runs on")
	flags.String("environment", "", "environment name propagated to deployed applications")
	flags.String("log-format", "json", "log format propagated to deployed applications")
	flags.Bool("use-in-memory-emptydirs", false, "back scratch volumes with memory instead of disk")
	flags.Int("pre-stop-delay", 0, "seconds to sleep in the pre-stop hook of deployed applications")
	flags.String("deployment-max-surge", "25%", "rollout max surge, absolute number or percentage")
	flags.String("deployment-max-unavailable", "0", "rollout max unavailable, absolute number or percentage")
	flags.String("datadog-container-image", "", "image of the datadog agent sidecar")
	flags.String("secrets-init-container-image", "", "image of the secrets init container")
	flags.String("secrets-service-account-name", "", "service account used when the secrets init container is active")
	flags.Bool("besteffort-qos-required", false, "keep injected sidecars free of resource requirements")
	flags.String("listen-address", ":5000", "address the HTTP API listens on")
	flags.BoolVar(&zapOpts.Development, "zap-devel", false, "enable development-mode logging")

	cobra.CheckErr(v.BindPFlags(flags))
	return cmd
}

func run(v *viper.Viper, zapOpts zap.Options) error {
	ctrl.SetLogger(zap.New(zap.UseFlagOptions(&zapOpts)))
	log := ctrl.Log.WithName("deployd")

	cfg, err := config.Load(v)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	log.Info("configuration loaded", "infrastructure", cfg.Infrastructure, "environment", cfg.Environment)

	c, err := client.New(ctrl.GetConfigOrDie(), client.Options{})
	if err != nil {
		return fmt.Errorf("failed to create cluster client: %w", err)
	}

	factory := spec.NewFactory(specv3.NewFactory(), map[int]spec.Transformer{
		2: specv2.NewTransformer(),
	}, cfg, log)

	deployer := deploy.NewDeployer(c, cfg, log,
		deploy.NewSecretsApplier(cfg),
		deploy.NewDatadogApplier(cfg),
		deploy.NewPrometheusApplier(log),
	)

	server := web.NewServer(factory, deployer, cfg, log)

	if err := server.Run(ctrl.SetupSignalHandler()); err != nil {
		return fmt.Errorf("http server failed: %w", err)
	}
	log.Info("shutdown complete")
	return nil
}
