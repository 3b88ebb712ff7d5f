package deploy

import (
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/utils/ptr"

	"github.com/fiaas/deployd/internal/config"
	"github.com/fiaas/deployd/internal/constants"
	"github.com/fiaas/deployd/internal/spec"
)

// SecretsApplier wires secret material into pods that declare a need for it.
// Two modes exist: when an init-container image is configured, secrets are
// fetched by that container at startup and handed over through a shared
// scratch volume; otherwise the application's Secret object is mounted
// directly.
type SecretsApplier struct {
	initContainerImage string
	serviceAccountName string
}

func NewSecretsApplier(cfg *config.Config) *SecretsApplier {
	return &SecretsApplier{
		initContainerImage: cfg.SecretsInitContainerImage,
		serviceAccountName: cfg.SecretsServiceAccountName,
	}
}

func (a *SecretsApplier) Apply(deployment *appsv1.Deployment, appSpec *spec.AppSpec, besteffortRequired bool) {
	if !appSpec.HasSecrets {
		return
	}
	if a.initContainerImage != "" {
		a.applyInitContainer(deployment, appSpec)
		return
	}
	a.applySecretVolume(deployment, appSpec)
}

func (a *SecretsApplier) applyInitContainer(deployment *appsv1.Deployment, appSpec *spec.AppSpec) {
	podSpec := &deployment.Spec.Template.Spec

	secretsVolume := corev1.Volume{
		Name:         appSpec.Name + constants.SecretVolumeSuffix,
		VolumeSource: corev1.VolumeSource{EmptyDir: &corev1.EmptyDirVolumeSource{}},
	}
	initConfigVolume := corev1.Volume{
		Name: constants.SecretsInitContainerName + constants.ConfigVolumeSuffix,
		VolumeSource: corev1.VolumeSource{
			ConfigMap: &corev1.ConfigMapVolumeSource{
				LocalObjectReference: corev1.LocalObjectReference{Name: constants.SecretsInitContainerName},
				Optional:             ptr.To(true),
			},
		},
	}
	podSpec.Volumes = append(podSpec.Volumes, secretsVolume, initConfigVolume)

	podSpec.InitContainers = append(podSpec.InitContainers, corev1.Container{
		Name:            constants.SecretsInitContainerName,
		Image:           a.initContainerImage,
		ImagePullPolicy: corev1.PullIfNotPresent,
		Env: []corev1.EnvVar{
			{Name: "K8S_DEPLOYMENT", Value: appSpec.Name},
		},
		EnvFrom: []corev1.EnvFromSource{
			{
				ConfigMapRef: &corev1.ConfigMapEnvSource{
					LocalObjectReference: corev1.LocalObjectReference{Name: constants.SecretsInitContainerName},
					Optional:             ptr.To(true),
				},
			},
		},
		VolumeMounts: []corev1.VolumeMount{
			{Name: secretsVolume.Name, MountPath: constants.SecretsMountPath},
			{Name: initConfigVolume.Name, ReadOnly: true, MountPath: constants.ConfigMountPath},
		},
	})

	a.mountSecrets(podSpec, appSpec, secretsVolume.Name, false)

	// The init container talks to the secrets backend with pod credentials,
	// so the token mount is forced on and a dedicated identity used when one
	// is configured.
	podSpec.AutomountServiceAccountToken = ptr.To(true)
	if a.serviceAccountName != "" {
		podSpec.ServiceAccountName = a.serviceAccountName
	}
}

func (a *SecretsApplier) applySecretVolume(deployment *appsv1.Deployment, appSpec *spec.AppSpec) {
	podSpec := &deployment.Spec.Template.Spec

	podSpec.Volumes = append(podSpec.Volumes, corev1.Volume{
		Name: appSpec.Name + constants.SecretVolumeSuffix,
		VolumeSource: corev1.VolumeSource{
			Secret: &corev1.SecretVolumeSource{
				SecretName: appSpec.Name,
				Optional:   ptr.To(true),
			},
		},
	})

	a.mountSecrets(podSpec, appSpec, appSpec.Name+constants.SecretVolumeSuffix, true)
}

// mountSecrets mounts the secrets volume into the main container, and adds
// the Secret object as an env source when the application asked for secrets
// in its environment.
func (a *SecretsApplier) mountSecrets(podSpec *corev1.PodSpec, appSpec *spec.AppSpec, volumeName string, readOnly bool) {
	for i := range podSpec.Containers {
		container := &podSpec.Containers[i]
		if container.Name != appSpec.Name {
			continue
		}
		container.VolumeMounts = append(container.VolumeMounts, corev1.VolumeMount{
			Name:      volumeName,
			ReadOnly:  readOnly,
			MountPath: constants.SecretsMountPath,
		})
		if appSpec.SecretsInEnvironment {
			container.EnvFrom = append(container.EnvFrom, corev1.EnvFromSource{
				SecretRef: &corev1.SecretEnvSource{
					LocalObjectReference: corev1.LocalObjectReference{Name: appSpec.Name},
					Optional:             ptr.To(true),
				},
			})
		}
	}
}
