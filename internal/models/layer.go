package models

import (
	"fmt"
	"sort"
	"strings"
)

// Key identifies one decoded file: a source and a navigation index.
// It is the join key between the prefetch cache and the presentation sink.
type Key struct {
	Source string
	Index  int
}

// String renders the key as "source@index", the form used in logs and the API
func (k Key) String() string {
	return fmt.Sprintf("%s@%d", k.Source, k.Index)
}

// SortKeys orders keys by source name, then index
func SortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Source != keys[j].Source {
			return keys[i].Source < keys[j].Source
		}
		return keys[i].Index < keys[j].Index
	})
}

// Kind tells the presentation sink how to render a source
type Kind int

const (
	// Image is intensity data shown with a grayscale colormap
	Image Kind = iota
	// Labels is a segmentation shown as a translucent label map
	Labels
)

// String returns the name used in project files
func (k Kind) String() string {
	switch k {
	case Labels:
		return "Labels"
	default:
		return "Image"
	}
}

// ParseKind parses "Image" or "Labels" case-insensitively
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "image", "":
		return Image, nil
	case "labels", "label":
		return Labels, nil
	default:
		return Image, fmt.Errorf("unknown layer kind %q (must be Image or Labels)", s)
	}
}

// MarshalText renders the kind for YAML and JSON
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses the kind from YAML and JSON
func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// LayerProperties is the visual state a viewer may carry across navigation
type LayerProperties struct {
	Opacity     float64 `json:"opacity"`
	ContrastMin float64 `json:"contrast_min"`
	ContrastMax float64 `json:"contrast_max"`
	Colormap    string  `json:"colormap"`
}

// DefaultProperties returns the properties of a freshly created layer
func DefaultProperties(kind Kind, data *Array) LayerProperties {
	lo, hi := data.Range()
	p := LayerProperties{
		Opacity:     1,
		ContrastMin: lo,
		ContrastMax: hi,
		Colormap:    "gray",
	}
	if kind == Labels {
		p.Opacity = 0.7
		p.Colormap = "labels"
	}
	return p
}

// Layer is one displayed array in the presentation sink
type Layer struct {
	Key        Key
	Name       string
	Kind       Kind
	Data       *Array
	Transform  *Transform
	Properties LayerProperties
}

// LayerName builds the deterministic display name "<source> - <index> - <stem>"
func LayerName(key Key, stem string) string {
	return fmt.Sprintf("%s - %d - %s", key.Source, key.Index, stem)
}
