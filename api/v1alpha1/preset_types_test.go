package v1alpha1

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
)

func TestChainPresetValidate(t *testing.T) {
	tests := []struct {
		name      string
		preset    ChainPreset
		shouldErr bool
	}{
		{
			name: "valid preset",
			preset: ChainPreset{
				ObjectMeta: metav1.ObjectMeta{Name: "loudness"},
				Spec:       ChainPresetSpec{Chain: "scale{factor=2}:rms"},
			},
		},
		{
			name: "valid with type meta",
			preset: ChainPreset{
				TypeMeta:   metav1.TypeMeta{APIVersion: "pipo.kagent.dev/v1alpha1", Kind: "ChainPreset"},
				ObjectMeta: metav1.ObjectMeta{Name: "env.rms"},
				Spec:       ChainPresetSpec{Chain: "rms"},
			},
		},
		{
			name:      "missing name",
			preset:    ChainPreset{Spec: ChainPresetSpec{Chain: "rms"}},
			shouldErr: true,
		},
		{
			name: "invalid name character",
			preset: ChainPreset{
				ObjectMeta: metav1.ObjectMeta{Name: "a:b"},
				Spec:       ChainPresetSpec{Chain: "rms"},
			},
			shouldErr: true,
		},
		{
			name: "name too long",
			preset: ChainPreset{
				ObjectMeta: metav1.ObjectMeta{Name: strings.Repeat("a", 101)},
				Spec:       ChainPresetSpec{Chain: "rms"},
			},
			shouldErr: true,
		},
		{
			name: "empty chain",
			preset: ChainPreset{
				ObjectMeta: metav1.ObjectMeta{Name: "empty"},
				Spec:       ChainPresetSpec{Chain: "  "},
			},
			shouldErr: true,
		},
		{
			name: "wrong api version",
			preset: ChainPreset{
				TypeMeta:   metav1.TypeMeta{APIVersion: "kagent.dev/v1alpha2"},
				ObjectMeta: metav1.ObjectMeta{Name: "x"},
				Spec:       ChainPresetSpec{Chain: "rms"},
			},
			shouldErr: true,
		},
		{
			name: "wrong kind",
			preset: ChainPreset{
				TypeMeta:   metav1.TypeMeta{Kind: "Hook"},
				ObjectMeta: metav1.ObjectMeta{Name: "x"},
				Spec:       ChainPresetSpec{Chain: "rms"},
			},
			shouldErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.preset.Validate()
			if tt.shouldErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestChainPresetListDeepCopy(t *testing.T) {
	list := &ChainPresetList{
		Items: []ChainPreset{{
			ObjectMeta: metav1.ObjectMeta{Name: "a", Labels: map[string]string{"team": "audio"}},
			Spec:       ChainPresetSpec{Chain: "rms"},
		}},
	}

	cp := list.DeepCopy()
	cp.Items[0].Spec.Chain = "thru"
	cp.Items[0].Labels["team"] = "video"

	assert.Equal(t, "rms", list.Items[0].Spec.Chain)
	assert.Equal(t, "audio", list.Items[0].Labels["team"])

	var nilList *ChainPresetList
	assert.Nil(t, nilList.DeepCopy())

	obj := list.DeepCopyObject()
	_, ok := obj.(*ChainPresetList)
	assert.True(t, ok)
}

func TestAddToScheme(t *testing.T) {
	scheme := runtime.NewScheme()
	require.NoError(t, AddToScheme(scheme))

	gvks, _, err := scheme.ObjectKinds(&ChainPreset{})
	require.NoError(t, err)
	require.Len(t, gvks, 1)
	assert.Equal(t, GroupVersion.WithKind(ChainPresetKind), gvks[0])

	assert.True(t, scheme.Recognizes(GroupVersion.WithKind(ChainPresetListKind)))
}
