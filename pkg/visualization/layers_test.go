package visualization

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datainspect/internal/models"
)

func layerAt(source string, index int, kind models.Kind, values ...float64) models.Layer {
	arr := models.NewArray(1, len(values))
	copy(arr.Data, values)
	key := models.Key{Source: source, Index: index}
	return models.Layer{
		Key:       key,
		Name:      models.LayerName(key, "f"),
		Kind:      kind,
		Data:      arr,
		Transform: models.Identity(2),
	}
}

func TestLayerListReplacesPerSource(t *testing.T) {
	l := NewLayerList(Options{})

	l.SetLayer(layerAt("CT", 0, models.Image, 0, 1))
	l.SetLayer(layerAt("Mask", 0, models.Labels, 0, 2))
	l.SetLayer(layerAt("CT", 1, models.Image, 5, 9))

	layers := l.Layers()
	require.Len(t, layers, 2)
	assert.Equal(t, models.Key{Source: "CT", Index: 1}, layers[0].Key, "replacement keeps the display position")
	assert.Equal(t, "Mask", layers[1].Key.Source)

	assert.True(t, l.HasLayer(models.Key{Source: "CT", Index: 1}))
	assert.False(t, l.HasLayer(models.Key{Source: "CT", Index: 0}))

	arr, tf, ok := l.LayerData(models.Key{Source: "CT", Index: 1})
	require.True(t, ok)
	assert.Equal(t, []float64{5, 9}, arr.Data)
	assert.True(t, tf.IsIdentity())

	_, _, ok = l.LayerData(models.Key{Source: "CT", Index: 0})
	assert.False(t, ok)
}

func TestLayerListDefaultProperties(t *testing.T) {
	l := NewLayerList(Options{})

	l.SetLayer(layerAt("CT", 0, models.Image, -3, 7))
	l.SetLayer(layerAt("Mask", 0, models.Labels, 0, 4))

	ct, ok := l.Layer("CT")
	require.True(t, ok)
	assert.Equal(t, models.LayerProperties{Opacity: 1, ContrastMin: -3, ContrastMax: 7, Colormap: "gray"}, ct.Properties)

	mask, ok := l.Layer("Mask")
	require.True(t, ok)
	assert.Equal(t, "labels", mask.Properties.Colormap)
	assert.InDelta(t, 0.7, mask.Properties.Opacity, 1e-9)
}

func TestLayerListCarryOver(t *testing.T) {
	custom := models.LayerProperties{Opacity: 0.4, ContrastMin: 10, ContrastMax: 20, Colormap: "viridis"}

	tests := []struct {
		name string
		opts Options
		want models.LayerProperties
	}{
		{
			name: "nothing kept",
			opts: Options{},
			want: models.LayerProperties{Opacity: 1, ContrastMin: 0, ContrastMax: 100, Colormap: "gray"},
		},
		{
			name: "color kept",
			opts: Options{KeepColor: true},
			want: models.LayerProperties{Opacity: 1, ContrastMin: 0, ContrastMax: 100, Colormap: "viridis"},
		},
		{
			name: "properties kept",
			opts: Options{KeepProperties: true},
			want: models.LayerProperties{Opacity: 0.4, ContrastMin: 10, ContrastMax: 20, Colormap: "gray"},
		},
		{
			name: "everything kept",
			opts: Options{KeepColor: true, KeepProperties: true},
			want: custom,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLayerList(tt.opts)
			l.SetLayer(layerAt("CT", 0, models.Image, 0, 1))
			require.NoError(t, l.SetProperties("CT", custom))

			l.SetLayer(layerAt("CT", 1, models.Image, 0, 100))

			got, ok := l.Layer("CT")
			require.True(t, ok)
			assert.Equal(t, tt.want, got.Properties)
		})
	}
}

func TestLayerListRemove(t *testing.T) {
	l := NewLayerList(Options{})
	l.SetLayer(layerAt("CT", 2, models.Image, 1))
	l.SetLayer(layerAt("Mask", 2, models.Labels, 1))

	l.RemoveLayer(models.Key{Source: "CT", Index: 1})
	assert.Len(t, l.Layers(), 2, "removing a key that is not shown changes nothing")

	l.RemoveLayer(models.Key{Source: "CT", Index: 2})
	assert.False(t, l.HasLayer(models.Key{Source: "CT", Index: 2}))

	l.RemoveSource("Mask")
	assert.Empty(t, l.Layers())

	assert.Error(t, l.SetProperties("Mask", models.LayerProperties{}))
}

func TestLayerListPreview(t *testing.T) {
	l := NewLayerList(Options{})
	vol := makeVolume(4, 3, 5)
	key := models.Key{Source: "CT", Index: 0}
	l.SetLayer(models.Layer{Key: key, Kind: models.Image, Data: vol})

	img, err := l.Preview("CT", "z", -1)
	require.NoError(t, err)
	assert.Equal(t, 4, img.Bounds().Dx())
	assert.Equal(t, 3, img.Bounds().Dy())

	_, err = l.Preview("Mask", "z", 0)
	assert.Error(t, err)
}

func TestLayerListPreviewRGB(t *testing.T) {
	l := NewLayerList(Options{})
	photo := models.NewArray(48, 64, 3)
	photo.Channels = 3
	photo.Data[photo.Offset(10, 20, 1)] = 255
	key := models.Key{Source: "Photo", Index: 0}
	l.SetLayer(models.Layer{Key: key, Kind: models.Image, Data: photo})

	img, err := l.Preview("Photo", "z", -1)
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx(), "width comes from the spatial axes")
	assert.Equal(t, 48, img.Bounds().Dy())

	r, g, b, _ := img.At(20, 10).RGBA()
	assert.Equal(t, []uint32{0, 0xffff, 0}, []uint32{r, g, b})

	_, err = l.Preview("Photo", "z", 1)
	assert.Error(t, err, "a colour image has a single plane")
}
