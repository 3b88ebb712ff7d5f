// Package deploy synthesizes workload objects from canonical application
// specs and commits them to the cluster under optimistic-concurrency control.
package deploy

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/util/retry"
	"k8s.io/utils/ptr"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/fiaas/deployd/internal/config"
	"github.com/fiaas/deployd/internal/constants"
	"github.com/fiaas/deployd/internal/spec"
)

// Applier is a cross-cutting collaborator that mutates a deployment in place
// before commit. Appliers own exactly one concern each and must be idempotent
// and order-independent with respect to the others.
type Applier interface {
	Apply(deployment *appsv1.Deployment, appSpec *spec.AppSpec, besteffortRequired bool)
}

// ReplicasSource reads the replica count of the live workload object. It is
// the single seam through which synthesis observes cluster state, so the rest
// of the build stays a pure function of the spec.
type ReplicasSource interface {
	CurrentReplicas(ctx context.Context, name, namespace string) (int32, bool, error)
}

// defaultBackoff bounds the conflict-retry loop: five attempts with capped
// exponential backoff, well under five seconds of total sleeping.
var defaultBackoff = wait.Backoff{
	Steps:    5,
	Duration: 200 * time.Millisecond,
	Factor:   2.0,
	Jitter:   0.1,
	Cap:      2 * time.Second,
}

// Deployer builds Deployment objects from canonical specs and commits them
// with full-replace semantics. One Deployer serves many applications; it is
// safe for concurrent use as every call only touches objects scoped to its
// own name and namespace.
type Deployer struct {
	client   client.Client
	env      *EnvBuilder
	replicas ReplicasSource
	appliers []Applier
	log      logr.Logger

	lifecycle            *corev1.Lifecycle
	gracePeriodSeconds   int64
	maxSurge             intstr.IntOrString
	maxUnavailable       intstr.IntOrString
	useInMemoryEmptyDirs bool
	backoff              wait.Backoff
}

// NewDeployer creates a Deployer. The appliers are invoked on every deploy in
// the given order, after the base object is built and before commit.
func NewDeployer(c client.Client, cfg *config.Config, log logr.Logger, appliers ...Applier) *Deployer {
	d := &Deployer{
		client:               c,
		env:                  NewEnvBuilder(cfg, log),
		replicas:             &clusterReplicasSource{client: c},
		appliers:             appliers,
		log:                  log.WithName("deployment-deployer"),
		gracePeriodSeconds:   constants.MinimumGracePeriodSeconds,
		maxSurge:             cfg.MaxSurge(),
		maxUnavailable:       cfg.MaxUnavailable(),
		useInMemoryEmptyDirs: cfg.UseInMemoryEmptyDirs,
		backoff:              defaultBackoff,
	}
	if cfg.PreStopDelaySeconds > 0 {
		d.lifecycle = &corev1.Lifecycle{
			PreStop: &corev1.LifecycleHandler{
				Exec: &corev1.ExecAction{Command: []string{"sleep", strconv.Itoa(cfg.PreStopDelaySeconds)}},
			},
		}
		d.gracePeriodSeconds += int64(cfg.PreStopDelaySeconds)
	}
	return d
}

// Deploy builds the workload object for appSpec and commits it. On an
// optimistic-concurrency conflict the entire build-and-commit sequence is
// retried, re-reading live state, up to the backoff bound; the conflict is
// surfaced to the caller when retries are exhausted. Other errors propagate
// immediately.
func (d *Deployer) Deploy(ctx context.Context, appSpec *spec.AppSpec, selector, labels map[string]string, besteffortRequired bool) error {
	d.log.Info("deploying", "app", appSpec.Name, "namespace", appSpec.Namespace, "deployment_id", appSpec.DeploymentID)

	err := retry.RetryOnConflict(d.backoff, func() error {
		err := d.deployOnce(ctx, appSpec, selector, labels, besteffortRequired)
		if apierrors.IsConflict(err) {
			deployConflictsTotal.Inc()
			d.log.Info("conflicting write, rebuilding from fresh state", "app", appSpec.Name)
		}
		return err
	})
	if err != nil {
		return err
	}

	deploysTotal.WithLabelValues(appSpec.Name).Inc()
	return nil
}

func (d *Deployer) deployOnce(ctx context.Context, appSpec *spec.AppSpec, selector, labels map[string]string, besteffortRequired bool) error {
	desired, err := d.buildDeployment(ctx, appSpec, selector, labels)
	if err != nil {
		return err
	}

	clearLegacyInitContainerAnnotations(desired)
	for _, applier := range d.appliers {
		applier.Apply(desired, appSpec, besteffortRequired)
	}

	existing := &appsv1.Deployment{}
	err = d.client.Get(ctx, client.ObjectKeyFromObject(desired), existing)
	switch {
	case apierrors.IsNotFound(err):
		return d.client.Create(ctx, desired)
	case err != nil:
		return err
	}

	// Full replace: the spec is rebuilt from scratch, only the concurrency
	// token carries over from the live object.
	desired.ResourceVersion = existing.ResourceVersion
	return d.client.Update(ctx, desired)
}

// Delete removes the workload object with foreground cascading. Absence of
// the object is treated as success.
func (d *Deployer) Delete(ctx context.Context, appSpec *spec.AppSpec) error {
	d.log.Info("deleting deployment", "app", appSpec.Name, "namespace", appSpec.Namespace)

	deployment := &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: appSpec.Name, Namespace: appSpec.Namespace},
	}
	err := d.client.Delete(ctx, deployment, client.PropagationPolicy(metav1.DeletePropagationForeground))
	if apierrors.IsNotFound(err) {
		return nil
	}
	return err
}

func (d *Deployer) buildDeployment(ctx context.Context, appSpec *spec.AppSpec, selector, labels map[string]string) (*appsv1.Deployment, error) {
	container, err := d.buildMainContainer(appSpec)
	if err != nil {
		return nil, err
	}

	replicas, err := d.resolveReplicas(ctx, appSpec)
	if err != nil {
		return nil, err
	}

	podLabels := mergeMaps(appSpec.Labels.Pod, withStatusLabel(labels))

	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{
			Name:        appSpec.Name,
			Namespace:   appSpec.Namespace,
			Labels:      mergeMaps(appSpec.Labels.Deployment, labels),
			Annotations: appSpec.Annotations.Deployment,
		},
		Spec: appsv1.DeploymentSpec{
			Replicas:             ptr.To(replicas),
			Selector:             &metav1.LabelSelector{MatchLabels: selector},
			RevisionHistoryLimit: ptr.To(int32(5)),
			Strategy:             d.buildStrategy(appSpec),
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Name:        appSpec.Name,
					Namespace:   appSpec.Namespace,
					Labels:      podLabels,
					Annotations: copyMap(appSpec.Annotations.Pod),
				},
				Spec: corev1.PodSpec{
					Containers:                    []corev1.Container{*container},
					Volumes:                       d.buildVolumes(appSpec),
					ServiceAccountName:            constants.DefaultServiceAccountName,
					AutomountServiceAccountToken:  ptr.To(appSpec.AdminAccess),
					TerminationGracePeriodSeconds: ptr.To(d.gracePeriodSeconds),
				},
			},
		},
	}, nil
}

func (d *Deployer) buildMainContainer(appSpec *spec.AppSpec) (*corev1.Container, error) {
	ports := make([]corev1.ContainerPort, 0, len(appSpec.Ports))
	for _, port := range appSpec.Ports {
		ports = append(ports, corev1.ContainerPort{Name: port.Name, ContainerPort: port.TargetPort})
	}

	liveness, err := BuildProbe(appSpec.HealthChecks.Liveness)
	if err != nil {
		return nil, err
	}
	readiness, err := BuildProbe(appSpec.HealthChecks.Readiness)
	if err != nil {
		return nil, err
	}
	resources, err := BuildResourceRequirements(appSpec.Resources)
	if err != nil {
		return nil, err
	}

	return &corev1.Container{
		Name:  appSpec.Name,
		Image: appSpec.Image,
		Ports: ports,
		Env:   d.env.Build(appSpec),
		EnvFrom: []corev1.EnvFromSource{
			{
				ConfigMapRef: &corev1.ConfigMapEnvSource{
					LocalObjectReference: corev1.LocalObjectReference{Name: appSpec.Name},
					Optional:             ptr.To(true),
				},
			},
		},
		Lifecycle:       d.lifecycle,
		LivenessProbe:   liveness,
		ReadinessProbe:  readiness,
		ImagePullPolicy: pullPolicy(appSpec.Image),
		VolumeMounts:    buildVolumeMounts(appSpec),
		Resources:       resources,
	}, nil
}

func (d *Deployer) buildVolumes(appSpec *spec.AppSpec) []corev1.Volume {
	emptyDir := &corev1.EmptyDirVolumeSource{}
	if d.useInMemoryEmptyDirs {
		emptyDir = &corev1.EmptyDirVolumeSource{Medium: corev1.StorageMediumMemory}
	}

	return []corev1.Volume{
		{
			Name: appSpec.Name + constants.ConfigVolumeSuffix,
			VolumeSource: corev1.VolumeSource{
				ConfigMap: &corev1.ConfigMapVolumeSource{
					LocalObjectReference: corev1.LocalObjectReference{Name: appSpec.Name},
					Optional:             ptr.To(true),
				},
			},
		},
		{
			Name:         constants.TmpVolumeName,
			VolumeSource: corev1.VolumeSource{EmptyDir: emptyDir},
		},
	}
}

func buildVolumeMounts(appSpec *spec.AppSpec) []corev1.VolumeMount {
	return []corev1.VolumeMount{
		{
			Name:      appSpec.Name + constants.ConfigVolumeSuffix,
			ReadOnly:  true,
			MountPath: constants.ConfigMountPath,
		},
		{
			Name:      constants.TmpVolumeName,
			MountPath: constants.TmpMountPath,
		},
	}
}

// resolveReplicas picks the replica count for this synthesis. When an
// autoscaler owns the field the live object's value wins, so resynthesis
// never resets the count to a stale declarative value.
func (d *Deployer) resolveReplicas(ctx context.Context, appSpec *spec.AppSpec) (int32, error) {
	if !shouldHaveAutoscaler(appSpec) {
		return appSpec.Replicas, nil
	}

	current, ok, err := d.replicas.CurrentReplicas(ctx, appSpec.Name, appSpec.Namespace)
	if err != nil {
		return 0, err
	}
	if !ok {
		return appSpec.Replicas, nil
	}
	if current != appSpec.Replicas {
		d.log.Info("declared replica count ignored in favor of autoscaler-owned value",
			"app", appSpec.Name, "declared", appSpec.Replicas, "current", current)
	}
	return current, nil
}

// buildStrategy selects the rollout strategy. A singleton must never run two
// instances simultaneously, even transiently, but must tolerate one being
// down for update.
func (d *Deployer) buildStrategy(appSpec *spec.AppSpec) appsv1.DeploymentStrategy {
	maxSurge := d.maxSurge
	maxUnavailable := d.maxUnavailable
	if appSpec.Replicas == 1 && appSpec.Singleton {
		maxSurge = intstr.FromInt32(0)
		maxUnavailable = intstr.FromInt32(1)
	}
	return appsv1.DeploymentStrategy{
		Type: appsv1.RollingUpdateDeploymentStrategyType,
		RollingUpdate: &appsv1.RollingUpdateDeployment{
			MaxSurge:       &maxSurge,
			MaxUnavailable: &maxUnavailable,
		},
	}
}

// clearLegacyInitContainerAnnotations strips the annotation keys Kubernetes
// 1.5 used to persist init-container definitions. On 1.6 and 1.7 those keys
// take precedence over the structured field, so stale values silently
// resurrect old container definitions unless cleared on every write.
func clearLegacyInitContainerAnnotations(deployment *appsv1.Deployment) {
	annotations := deployment.Spec.Template.Annotations
	for key := range annotations {
		if strings.HasSuffix(key, constants.LegacyInitContainerAnnotationSuffix) {
			delete(annotations, key)
		}
	}
}

// pullPolicy pins images referenced by a non-latest tag; everything else is
// pulled on every start.
func pullPolicy(image string) corev1.PullPolicy {
	if strings.Contains(image, ":") && !strings.Contains(image, ":latest") {
		return corev1.PullIfNotPresent
	}
	return corev1.PullAlways
}

// withStatusLabel marks pods managed by the daemon as active.
func withStatusLabel(labels map[string]string) map[string]string {
	merged := copyMap(labels)
	if merged == nil {
		merged = map[string]string{}
	}
	merged[constants.LabelStatus] = constants.LabelValueStatusActive
	return merged
}

// mergeMaps overlays b on a, b winning on conflicting keys. Neither input is
// mutated.
func mergeMaps(a, b map[string]string) map[string]string {
	if a == nil && b == nil {
		return nil
	}
	merged := make(map[string]string, len(a)+len(b))
	for key, value := range a {
		merged[key] = value
	}
	for key, value := range b {
		merged[key] = value
	}
	return merged
}

func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	copied := make(map[string]string, len(m))
	for key, value := range m {
		copied[key] = value
	}
	return copied
}

// clusterReplicasSource reads the replica count from the live Deployment.
type clusterReplicasSource struct {
	client client.Client
}

func (s *clusterReplicasSource) CurrentReplicas(ctx context.Context, name, namespace string) (int32, bool, error) {
	deployment := &appsv1.Deployment{}
	err := s.client.Get(ctx, client.ObjectKey{Name: name, Namespace: namespace}, deployment)
	if apierrors.IsNotFound(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if deployment.Spec.Replicas == nil {
		return 0, false, nil
	}
	return *deployment.Spec.Replicas, true, nil
}
