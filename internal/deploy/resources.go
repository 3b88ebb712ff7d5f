package deploy

import (
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/fiaas/deployd/internal/errors"
	"github.com/fiaas/deployd/internal/spec"
)

// BuildResourceRequirements converts the resource spec into container
// resource requirements. This is a direct field copy; defaulting happens
// during spec resolution, not here. Empty fields are omitted.
func BuildResourceRequirements(resources spec.ResourcesSpec) (corev1.ResourceRequirements, error) {
	limits, err := resourceList(resources.Limits)
	if err != nil {
		return corev1.ResourceRequirements{}, err
	}
	requests, err := resourceList(resources.Requests)
	if err != nil {
		return corev1.ResourceRequirements{}, err
	}
	return corev1.ResourceRequirements{Limits: limits, Requests: requests}, nil
}

func resourceList(requirement spec.ResourceRequirementSpec) (corev1.ResourceList, error) {
	list := corev1.ResourceList{}
	if requirement.CPU != "" {
		quantity, err := resource.ParseQuantity(requirement.CPU)
		if err != nil {
			return nil, errors.NewInvalidConfiguration("invalid cpu quantity %q: %v", requirement.CPU, err)
		}
		list[corev1.ResourceCPU] = quantity
	}
	if requirement.Memory != "" {
		quantity, err := resource.ParseQuantity(requirement.Memory)
		if err != nil {
			return nil, errors.NewInvalidConfiguration("invalid memory quantity %q: %v", requirement.Memory, err)
		}
		list[corev1.ResourceMemory] = quantity
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list, nil
}
