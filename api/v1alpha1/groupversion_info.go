// Package v1alpha1 contains the manifest types for named chain presets.
package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

var (
	// GroupVersion is the group version of preset manifests
	GroupVersion = schema.GroupVersion{Group: "pipo.kagent.dev", Version: "v1alpha1"}

	// SchemeBuilder registers the preset types
	SchemeBuilder = runtime.NewSchemeBuilder(addKnownTypes)

	// AddToScheme adds the preset types to a scheme
	AddToScheme = SchemeBuilder.AddToScheme
)

func addKnownTypes(scheme *runtime.Scheme) error {
	scheme.AddKnownTypes(GroupVersion, &ChainPreset{}, &ChainPresetList{})
	metav1.AddToGroupVersion(scheme, GroupVersion)
	return nil
}
