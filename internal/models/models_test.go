package models

import (
	"encoding/json"
	"math"
	"testing"
)

func TestArrayLayout(t *testing.T) {
	arr := NewArray(2, 3, 4)

	if arr.Len() != 24 || len(arr.Data) != 24 {
		t.Fatalf("Expected 24 elements, got Len=%d data=%d", arr.Len(), len(arr.Data))
	}
	if !arr.Valid() {
		t.Error("Expected new array to be valid")
	}

	// voxel (z, y, x) lives at z*height*width + y*width + x
	if off := arr.Offset(1, 2, 3); off != 1*12+2*4+3 {
		t.Errorf("Expected offset 23, got %d", off)
	}
	if off := arr.Offset(2, 0, 0); off != -1 {
		t.Errorf("Expected -1 for out of range index, got %d", off)
	}
	if off := arr.Offset(0, 0); off != -1 {
		t.Errorf("Expected -1 for wrong index count, got %d", off)
	}

	arr.Data[23] = 7
	if v := arr.At(1, 2, 3); v != 7 {
		t.Errorf("Expected 7, got %f", v)
	}
	if v := arr.At(9, 9, 9); v != 0 {
		t.Errorf("Expected 0 out of range, got %f", v)
	}

	if (&Array{Shape: []int{2, 0}}).Valid() {
		t.Error("Expected zero-sized axis to be invalid")
	}
	if (&Array{Shape: []int{2}, Data: []float64{1}}).Valid() {
		t.Error("Expected data/shape mismatch to be invalid")
	}
}

func TestArrayOverflowingShape(t *testing.T) {
	const side = 1 << 22
	big := &Array{Shape: []int{side, side, side}}
	if big.Len() != -1 {
		t.Errorf("Expected -1 for overflowing shape, got %d", big.Len())
	}
	if big.Valid() {
		t.Error("Expected overflowing shape to be invalid even with empty data")
	}

	arr := NewArray(side, side, side, side)
	if arr.Data != nil || arr.Valid() {
		t.Error("Expected NewArray to refuse an overflowing shape")
	}
}

func TestArrayChannels(t *testing.T) {
	rgb := NewArray(48, 64, 3)
	rgb.Channels = 3
	if rgb.ChannelCount() != 3 {
		t.Errorf("Expected 3 channels, got %d", rgb.ChannelCount())
	}
	if s := rgb.Spatial(); len(s) != 2 || s[0] != 48 || s[1] != 64 {
		t.Errorf("Expected spatial shape [48 64], got %v", s)
	}

	// a volume that merely happens to be 3 wide stays scalar
	vol := NewArray(48, 64, 3)
	if vol.ChannelCount() != 1 || len(vol.Spatial()) != 3 {
		t.Errorf("Expected scalar volume, got %d channels", vol.ChannelCount())
	}

	// a channel count that does not match the trailing axis is ignored
	odd := NewArray(4, 5)
	odd.Channels = 3
	if odd.ChannelCount() != 1 {
		t.Errorf("Expected mismatched channels to be ignored, got %d", odd.ChannelCount())
	}
}

func TestArrayRangeAndStats(t *testing.T) {
	arr := &Array{Shape: []int{4}, Data: []float64{2, 4, 4, 6}}

	lo, hi := arr.Range()
	if lo != 2 || hi != 6 {
		t.Errorf("Expected range [2, 6], got [%f, %f]", lo, hi)
	}

	mean, std := arr.Stats()
	if mean != 4 {
		t.Errorf("Expected mean 4, got %f", mean)
	}
	// unbiased sample standard deviation of {2, 4, 4, 6}
	if want := math.Sqrt(8.0 / 3.0); math.Abs(std-want) > 1e-9 {
		t.Errorf("Expected std %f, got %f", want, std)
	}

	var empty *Array
	if lo, hi := empty.Range(); lo != 0 || hi != 0 {
		t.Errorf("Expected zero range for nil array, got [%f, %f]", lo, hi)
	}
	if m, s := (&Array{Shape: []int{1}, Data: []float64{3}}).Stats(); m != 3 || s != 0 {
		t.Errorf("Expected (3, 0) for single element, got (%f, %f)", m, s)
	}
	if empty.SizeBytes() != 0 || arr.SizeBytes() != 32 {
		t.Errorf("Unexpected SizeBytes")
	}
}

func TestTransform(t *testing.T) {
	id := Identity(3)
	if !id.IsIdentity() || id.NDim() != 3 {
		t.Fatal("Expected 3-D identity")
	}

	tf, err := NewAffine([]float64{2, 3}, []float64{10, 20}, []float64{0, -1, 1, 0})
	if err != nil {
		t.Fatalf("NewAffine failed: %v", err)
	}
	if tf.IsIdentity() {
		t.Error("Expected non-identity transform")
	}

	// rotate * diag(scale) * p + translate with p = (1, 1):
	// diag -> (2, 3); rotate -> (-3, 2); translate -> (7, 22)
	got, err := tf.Apply([]float64{1, 1})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if math.Abs(got[0]-7) > 1e-9 || math.Abs(got[1]-22) > 1e-9 {
		t.Errorf("Expected (7, 22), got %v", got)
	}

	if _, err := tf.Apply([]float64{1}); err == nil {
		t.Error("Expected error for wrong point dimension")
	}

	m := tf.Matrix()
	m.Set(0, 0, 100)
	if again, _ := tf.Apply([]float64{1, 1}); math.Abs(again[0]-7) > 1e-9 {
		t.Error("Matrix must return a copy")
	}

	if _, err := NewAffine(nil, nil, nil); err == nil {
		t.Error("Expected error for empty scale")
	}
	if _, err := NewAffine([]float64{1, 1}, []float64{1}, nil); err == nil {
		t.Error("Expected error for short translate")
	}
	if _, err := NewAffine([]float64{1, 1}, nil, []float64{1}); err == nil {
		t.Error("Expected error for short rotate")
	}
}

func TestKeyAndLayerName(t *testing.T) {
	k := Key{Source: "CT", Index: 4}
	if k.String() != "CT@4" {
		t.Errorf("Expected CT@4, got %s", k)
	}
	if name := LayerName(k, "case_004"); name != "CT - 4 - case_004" {
		t.Errorf("Unexpected layer name %q", name)
	}

	keys := []Key{{"b", 1}, {"a", 2}, {"a", 1}}
	SortKeys(keys)
	if keys[0] != (Key{"a", 1}) || keys[1] != (Key{"a", 2}) || keys[2] != (Key{"b", 1}) {
		t.Errorf("Unexpected order %v", keys)
	}
}

func TestKind(t *testing.T) {
	for in, want := range map[string]Kind{"Image": Image, "labels": Labels, " Label ": Labels, "": Image} {
		got, err := ParseKind(in)
		if err != nil || got != want {
			t.Errorf("ParseKind(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseKind("Surface"); err == nil {
		t.Error("Expected error for unknown kind")
	}

	var v struct {
		Kind Kind `json:"ltype"`
	}
	if err := json.Unmarshal([]byte(`{"ltype":"Labels"}`), &v); err != nil || v.Kind != Labels {
		t.Errorf("Expected Labels from JSON, got %v (%v)", v.Kind, err)
	}
	b, _ := json.Marshal(v)
	if string(b) != `{"ltype":"Labels"}` {
		t.Errorf("Unexpected JSON %s", b)
	}
}

func TestDefaultProperties(t *testing.T) {
	data := &Array{Shape: []int{2}, Data: []float64{-1, 5}}

	img := DefaultProperties(Image, data)
	if img.Opacity != 1 || img.Colormap != "gray" || img.ContrastMin != -1 || img.ContrastMax != 5 {
		t.Errorf("Unexpected image properties %+v", img)
	}

	lbl := DefaultProperties(Labels, data)
	if lbl.Opacity != 0.7 || lbl.Colormap != "labels" {
		t.Errorf("Unexpected label properties %+v", lbl)
	}
}
