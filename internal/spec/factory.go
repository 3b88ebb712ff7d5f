package spec

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/go-logr/logr"

	"github.com/fiaas/deployd/internal/config"
	"github.com/fiaas/deployd/internal/errors"
)

// Transformer migrates a raw configuration document from one version to the
// next. Transformers never mutate the input document.
type Transformer interface {
	Transform(doc map[string]any, stripDefaults bool) (map[string]any, error)
}

// TerminalFactory parses a raw document of the terminal version into an
// AppSpec.
type TerminalFactory interface {
	Version() int
	NewAppSpec(name, image string, teams, tags []string, doc map[string]any, deploymentID, namespace string) (*AppSpec, error)
}

// Factory resolves raw configuration documents of any supported version into
// canonical AppSpecs. It holds no mutable state and is safe for concurrent
// use.
type Factory struct {
	terminal     TerminalFactory
	transformers map[int]Transformer
	cfg          *config.Config
	log          logr.Logger
}

// NewFactory creates a Factory from the terminal version factory and the
// per-version transformer registry. The registry is append-only over the life
// of the project; transformers for old versions are never removed.
func NewFactory(terminal TerminalFactory, transformers map[int]Transformer, cfg *config.Config, log logr.Logger) *Factory {
	return &Factory{
		terminal:     terminal,
		transformers: transformers,
		cfg:          cfg,
		log:          log.WithName("spec-factory"),
	}
}

// Resolve turns a raw configuration document into a canonical AppSpec.
// Failures of any transformer, the terminal factory or whole-spec validation
// are surfaced uniformly as invalid-configuration errors with the original
// failure preserved as the wrapped cause.
func (f *Factory) Resolve(name, image string, doc map[string]any, teams, tags []string, deploymentID, namespace string) (*AppSpec, error) {
	// The counter records the declared value as-is, even when resolution
	// rejects it, so the metric reflects what applications actually ship.
	configVersionsTotal.WithLabelValues(f.declaredVersionLabel(doc), name).Inc()

	version, err := f.documentVersion(doc)
	if err != nil {
		return nil, err
	}
	f.log.Info("resolving application config", "app", name, "version", version)

	transformed, err := f.Transform(doc, false)
	if err != nil {
		return nil, err
	}

	appSpec, err := f.terminal.NewAppSpec(name, image, teams, tags, transformed, deploymentID, namespace)
	if err != nil {
		return nil, errors.WrapInvalidConfiguration(err)
	}

	if err := f.validate(appSpec); err != nil {
		return nil, err
	}

	return appSpec, nil
}

// Transform migrates a document to the terminal version without building an
// AppSpec. Exposed separately for configuration migration tooling;
// stripDefaults is passed through to each transformer.
func (f *Factory) Transform(doc map[string]any, stripDefaults bool) (map[string]any, error) {
	version, err := f.documentVersion(doc)
	if err != nil {
		return nil, err
	}
	if version != f.terminal.Version() {
		if _, ok := f.transformers[version]; !ok {
			return nil, errors.NewInvalidConfiguration(
				"requested version %d, but the only supported versions are %v", version, f.supportedVersions())
		}
	}

	for version < f.terminal.Version() {
		transformer := f.transformers[version]
		if transformer == nil {
			return nil, errors.NewInvalidConfiguration(
				"no transformer registered for version %d, supported versions are %v", version, f.supportedVersions())
		}

		next, err := transformer.Transform(doc, stripDefaults)
		if err != nil {
			return nil, errors.WrapInvalidConfiguration(err)
		}

		nextVersion, err := f.documentVersion(next)
		if err != nil {
			return nil, err
		}
		if nextVersion <= version {
			return nil, errors.NewInvalidConfiguration(
				"transformer for version %d produced version %d instead of advancing", version, nextVersion)
		}
		doc, version = next, nextVersion
	}

	return doc, nil
}

// validate checks cross-field invariants that only make sense once the full
// spec is assembled.
func (f *Factory) validate(appSpec *AppSpec) error {
	if appSpec.Datadog.Enabled && f.cfg.DatadogContainerImage == "" {
		return errors.NewInvalidConfiguration(
			"app %s requests a datadog sidecar, but datadog-container-image is undefined", appSpec.Name)
	}
	return nil
}

// documentVersion reads the declared version of a raw document, defaulting to
// the lowest supported version when absent. A version field that is present
// but not an integer is rejected rather than defaulted.
func (f *Factory) documentVersion(doc map[string]any) (int, error) {
	raw, ok := doc["version"]
	if !ok {
		return f.lowestSupportedVersion(), nil
	}
	version, ok := integerVersion(raw)
	if !ok {
		return 0, errors.NewInvalidConfiguration(
			"version must be an integer, got %v, supported versions are %v", raw, f.supportedVersions())
	}
	return version, nil
}

// declaredVersionLabel renders the raw declared version for the metric,
// falling back to the default version when absent.
func (f *Factory) declaredVersionLabel(doc map[string]any) string {
	if raw, ok := doc["version"]; ok {
		return fmt.Sprint(raw)
	}
	return strconv.Itoa(f.lowestSupportedVersion())
}

func (f *Factory) lowestSupportedVersion() int {
	lowest := f.terminal.Version()
	for version := range f.transformers {
		if version < lowest {
			lowest = version
		}
	}
	return lowest
}

func (f *Factory) supportedVersions() []int {
	versions := []int{f.terminal.Version()}
	for version := range f.transformers {
		versions = append(versions, version)
	}
	sort.Ints(versions)
	return versions
}

// integerVersion converts a declared version value to an int. YAML and JSON
// decoders disagree on integer types, so all integral scalars are accepted;
// strings and non-integral floats are not.
func integerVersion(raw any) (int, bool) {
	switch v := raw.(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int(v), true
	default:
		return 0, false
	}
}
