package v1alpha1

import (
	"fmt"
	"strings"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
)

// Kinds of preset manifests
const (
	ChainPresetKind     = "ChainPreset"
	ChainPresetListKind = "ChainPresetList"
)

// ChainPresetSpec defines the chain a preset expands to
type ChainPresetSpec struct {
	// Chain is a chain specification, for example "slice{size=1024}:fft:bands"
	// +kubebuilder:validation:Required
	// +kubebuilder:validation:MinLength=1
	Chain string `json:"chain"`

	// Description is shown when listing plugins
	// +kubebuilder:validation:Optional
	Description string `json:"description,omitempty"`
}

//+kubebuilder:object:root=true

// ChainPreset names a chain so that it can be used as a single plugin
type ChainPreset struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec ChainPresetSpec `json:"spec,omitempty"`
}

//+kubebuilder:object:root=true

// ChainPresetList contains a list of ChainPreset
type ChainPresetList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []ChainPreset `json:"items"`
}

// Validate validates the ChainPreset resource
func (p *ChainPreset) Validate() error {
	name := p.Name
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("metadata.name cannot be empty")
	}

	if len(name) > 100 {
		return fmt.Errorf("name too long: %d characters (max 100)", len(name))
	}

	// Preset names are used as plugin names inside chain specifications
	for _, r := range name {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.') {
			return fmt.Errorf("name contains invalid character '%c', only alphanumeric, dots, hyphens, and underscores allowed", r)
		}
	}

	if strings.TrimSpace(p.Spec.Chain) == "" {
		return fmt.Errorf("preset %s: spec.chain cannot be empty", name)
	}

	if len(p.Spec.Chain) > 10000 {
		return fmt.Errorf("preset %s: chain too long: %d characters (max 10000)", name, len(p.Spec.Chain))
	}

	if p.APIVersion != "" && p.APIVersion != GroupVersion.String() {
		return fmt.Errorf("preset %s: unsupported apiVersion %s, expected %s", name, p.APIVersion, GroupVersion.String())
	}

	if p.Kind != "" && p.Kind != ChainPresetKind {
		return fmt.Errorf("preset %s: unexpected kind %s", name, p.Kind)
	}

	return nil
}

// DeepCopyInto is an autogenerated deepcopy function, copying the receiver, writing into out. in must be non-nil.
func (in *ChainPreset) DeepCopyInto(out *ChainPreset) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ObjectMeta.DeepCopyInto(&out.ObjectMeta)
	out.Spec = in.Spec
}

// DeepCopy is an autogenerated deepcopy function, copying the receiver, creating a new ChainPreset.
func (in *ChainPreset) DeepCopy() *ChainPreset {
	if in == nil {
		return nil
	}
	out := new(ChainPreset)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyObject is an autogenerated deepcopy function, copying the receiver, creating a new runtime.Object.
func (in *ChainPreset) DeepCopyObject() runtime.Object {
	if c := in.DeepCopy(); c != nil {
		return c
	}
	return nil
}

// DeepCopyInto is an autogenerated deepcopy function, copying the receiver, writing into out. in must be non-nil.
func (in *ChainPresetList) DeepCopyInto(out *ChainPresetList) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ListMeta.DeepCopyInto(&out.ListMeta)
	if in.Items != nil {
		in, out := &in.Items, &out.Items
		*out = make([]ChainPreset, len(*in))
		for i := range *in {
			(*in)[i].DeepCopyInto(&(*out)[i])
		}
	}
}

// DeepCopy is an autogenerated deepcopy function, copying the receiver, creating a new ChainPresetList.
func (in *ChainPresetList) DeepCopy() *ChainPresetList {
	if in == nil {
		return nil
	}
	out := new(ChainPresetList)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyObject is an autogenerated deepcopy function, copying the receiver, creating a new runtime.Object.
func (in *ChainPresetList) DeepCopyObject() runtime.Object {
	if c := in.DeepCopy(); c != nil {
		return c
	}
	return nil
}
