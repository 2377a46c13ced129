package decode

import (
	"bufio"
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/jmgilman/go/errors"

	"datainspect/internal/models"
)

// metaHeader is the subset of the MetaImage (.mha/.mhd) header the viewer needs
type metaHeader struct {
	ndims      int
	dimSize    []int
	elemType   string
	channels   int
	spacing    []float64
	offset     []float64
	direction  []float64
	compressed bool
	msb        bool
	dataFile   string
}

// elementSizes maps MetaImage element types to their byte width
var elementSizes = map[string]int{
	"MET_CHAR":   1,
	"MET_UCHAR":  1,
	"MET_SHORT":  2,
	"MET_USHORT": 2,
	"MET_INT":    4,
	"MET_UINT":   4,
	"MET_FLOAT":  4,
	"MET_DOUBLE": 8,
}

// maxMetaElements bounds the samples one MetaImage may declare (2 GiB once
// widened to float64), so a corrupt header fails instead of allocating
const maxMetaElements = 1 << 28

// decodeMetaImage reads a MetaImage file. The array axes are reversed from
// the on-disk x-fastest order to (z, y, x), and spacing, origin and direction
// are reversed to match, giving the index-to-world affine.
func decodeMetaImage(fsys billy.Filesystem, path string) (*models.Array, *models.Transform, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	hdr, err := parseMetaHeader(br)
	if err != nil {
		return nil, nil, errors.WrapWithContext(err, errors.CodeInvalidInput, "invalid MetaImage header",
			map[string]interface{}{"path": path})
	}

	var raw io.Reader = br
	if hdr.dataFile != "LOCAL" {
		df, err := fsys.Open(fsys.Join(dirOf(path), hdr.dataFile))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open data file of %s: %w", path, err)
		}
		defer df.Close()
		raw = df
	}
	if hdr.compressed {
		zr, err := zlib.NewReader(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open compressed data of %s: %w", path, err)
		}
		defer zr.Close()
		raw = zr
	}

	shape := make([]int, 0, hdr.ndims+1)
	for i := hdr.ndims - 1; i >= 0; i-- {
		shape = append(shape, hdr.dimSize[i])
	}
	if hdr.channels > 1 {
		shape = append(shape, hdr.channels)
	}
	arr := models.NewArray(shape...)
	arr.Channels = hdr.channels

	if err := readElements(raw, hdr, arr.Data); err != nil {
		return nil, nil, fmt.Errorf("failed to read pixel data of %s: %w", path, err)
	}

	tf, err := models.NewAffine(reversed(hdr.spacing), reversed(hdr.offset), reversed(hdr.direction))
	if err != nil {
		return nil, nil, fmt.Errorf("invalid geometry in %s: %w", path, err)
	}
	return arr, tf, nil
}

// parseMetaHeader reads "Key = Value" lines up to and including ElementDataFile,
// which must be the last header field.
func parseMetaHeader(br *bufio.Reader) (*metaHeader, error) {
	hdr := &metaHeader{channels: 1}

	for {
		line, err := br.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			return nil, fmt.Errorf("header ended before ElementDataFile")
		}
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "NDims":
			if hdr.ndims, err = strconv.Atoi(value); err != nil {
				return nil, fmt.Errorf("NDims: %w", err)
			}
		case "DimSize":
			if hdr.dimSize, err = parseInts(value); err != nil {
				return nil, fmt.Errorf("DimSize: %w", err)
			}
		case "ElementType":
			hdr.elemType = value
		case "ElementNumberOfChannels":
			if hdr.channels, err = strconv.Atoi(value); err != nil {
				return nil, fmt.Errorf("ElementNumberOfChannels: %w", err)
			}
		case "ElementSpacing", "ElementSize":
			if hdr.spacing, err = parseFloats(value); err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
		case "Offset", "Origin", "Position":
			if hdr.offset, err = parseFloats(value); err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
		case "TransformMatrix", "Rotation", "Orientation":
			if hdr.direction, err = parseFloats(value); err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
		case "CompressedData":
			hdr.compressed = strings.EqualFold(value, "True")
		case "BinaryDataByteOrderMSB", "ElementByteOrderMSB":
			hdr.msb = strings.EqualFold(value, "True")
		case "ElementDataFile":
			hdr.dataFile = value
			return hdr, hdr.validate()
		}
	}
}

func (h *metaHeader) validate() error {
	if h.ndims <= 0 {
		return fmt.Errorf("NDims must be positive")
	}
	if len(h.dimSize) != h.ndims {
		return fmt.Errorf("DimSize has %d values, want %d", len(h.dimSize), h.ndims)
	}
	for _, d := range h.dimSize {
		if d <= 0 {
			return fmt.Errorf("DimSize values must be positive")
		}
	}
	if _, ok := elementSizes[h.elemType]; !ok {
		return fmt.Errorf("unsupported ElementType %q", h.elemType)
	}
	if h.channels < 1 {
		return fmt.Errorf("ElementNumberOfChannels must be positive")
	}
	count := h.channels
	for _, d := range h.dimSize {
		if count > maxMetaElements/d {
			return fmt.Errorf("DimSize %v with %d channels exceeds %d elements", h.dimSize, h.channels, maxMetaElements)
		}
		count *= d
	}
	if h.spacing == nil {
		h.spacing = ones(h.ndims)
	}
	if h.offset == nil {
		h.offset = make([]float64, h.ndims)
	}
	if h.direction == nil {
		h.direction = eye(h.ndims)
	}
	if len(h.spacing) != h.ndims || len(h.offset) != h.ndims || len(h.direction) != h.ndims*h.ndims {
		return fmt.Errorf("geometry fields do not match NDims %d", h.ndims)
	}
	if h.dataFile == "" {
		return fmt.Errorf("ElementDataFile is empty")
	}
	return nil
}

// readElements fills dst with len(dst) elements of the header's type
func readElements(r io.Reader, hdr *metaHeader, dst []float64) error {
	size := elementSizes[hdr.elemType]
	buf := make([]byte, len(dst)*size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}

	var order binary.ByteOrder = binary.LittleEndian
	if hdr.msb {
		order = binary.BigEndian
	}

	for i := range dst {
		b := buf[i*size : (i+1)*size]
		switch hdr.elemType {
		case "MET_CHAR":
			dst[i] = float64(int8(b[0]))
		case "MET_UCHAR":
			dst[i] = float64(b[0])
		case "MET_SHORT":
			dst[i] = float64(int16(order.Uint16(b)))
		case "MET_USHORT":
			dst[i] = float64(order.Uint16(b))
		case "MET_INT":
			dst[i] = float64(int32(order.Uint32(b)))
		case "MET_UINT":
			dst[i] = float64(order.Uint32(b))
		case "MET_FLOAT":
			dst[i] = float64(math.Float32frombits(order.Uint32(b)))
		case "MET_DOUBLE":
			dst[i] = math.Float64frombits(order.Uint64(b))
		}
	}
	return nil
}

func parseInts(s string) ([]int, error) {
	fields := strings.Fields(s)
	out := make([]int, len(fields))
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func parseFloats(s string) ([]float64, error) {
	fields := strings.Fields(s)
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func reversed(v []float64) []float64 {
	out := make([]float64, len(v))
	for i := range v {
		out[len(v)-1-i] = v[i]
	}
	return out
}

func ones(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1
	}
	return out
}

func eye(n int) []float64 {
	out := make([]float64, n*n)
	for i := 0; i < n; i++ {
		out[i*n+i] = 1
	}
	return out
}

func dirOf(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[:i]
	}
	return "."
}

// EncodeMetaImage writes a single-channel MET_FLOAT MetaImage with the data
// stored locally. The shape is given in (z, y, x) order like Array.Shape.
// Spacing and origin are in the same order.
func EncodeMetaImage(w io.Writer, arr *models.Array, spacing, origin []float64) error {
	if !arr.Valid() {
		return fmt.Errorf("invalid array")
	}
	n := arr.NDim()
	if spacing == nil {
		spacing = ones(n)
	}
	if origin == nil {
		origin = make([]float64, n)
	}
	if len(spacing) != n || len(origin) != n {
		return fmt.Errorf("geometry does not match %d axes", n)
	}

	dims := make([]float64, n)
	for i, s := range arr.Shape {
		dims[i] = float64(s)
	}

	var hdr bytes.Buffer
	fmt.Fprintf(&hdr, "ObjectType = Image\n")
	fmt.Fprintf(&hdr, "NDims = %d\n", n)
	fmt.Fprintf(&hdr, "BinaryData = True\n")
	fmt.Fprintf(&hdr, "BinaryDataByteOrderMSB = False\n")
	fmt.Fprintf(&hdr, "CompressedData = False\n")
	fmt.Fprintf(&hdr, "TransformMatrix = %s\n", joinFloats(eye(n)))
	fmt.Fprintf(&hdr, "Offset = %s\n", joinFloats(reversed(origin)))
	fmt.Fprintf(&hdr, "ElementSpacing = %s\n", joinFloats(reversed(spacing)))
	fmt.Fprintf(&hdr, "DimSize = %s\n", joinFloats(reversed(dims)))
	fmt.Fprintf(&hdr, "ElementType = MET_FLOAT\n")
	fmt.Fprintf(&hdr, "ElementDataFile = LOCAL\n")
	if _, err := w.Write(hdr.Bytes()); err != nil {
		return err
	}

	buf := make([]byte, 4*len(arr.Data))
	for i, v := range arr.Data {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(float32(v)))
	}
	_, err := w.Write(buf)
	return err
}

func joinFloats(v []float64) string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = strconv.FormatFloat(f, 'g', -1, 64)
	}
	return strings.Join(parts, " ")
}
