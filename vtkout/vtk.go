// Package vtkout writes element collections as VTK XML
// unstructured-grid (.vtu) files, one per collection per output step.
package vtkout

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/vortexlab/vpm/elements"
)

// maxUint16 bounds the index width choice for connectivity arrays.
const maxUint16 = 65535

// Options selects the payload encoding.
type Options struct {
	// Base64 writes numeric payloads in the VTK "binary" format;
	// otherwise ascii.
	Base64 bool
}

// WriteCollections writes one file per non-empty collection and
// returns the paths written. The prefix distinguishes particle, field
// point and panel files.
func WriteCollections(dir string, colls []elements.Collection, frame int, opts Options) ([]string, error) {
	var files []string
	for idx, c := range colls {
		switch e := c.(type) {
		case *elements.Points:
			if e.N() == 0 {
				continue
			}
			prefix := "part"
			if e.IsInert() {
				prefix = "fldpt"
			}
			fn := filepath.Join(dir, fmt.Sprintf("%s_%02d_%05d.vtu", prefix, idx, frame))
			if err := writePoints(fn, e, opts); err != nil {
				return files, err
			}
			files = append(files, fn)
		case *elements.Surfaces:
			if e.NPanels() == 0 {
				continue
			}
			fn := filepath.Join(dir, fmt.Sprintf("panl_%02d_%05d.vtu", idx, frame))
			if err := writeSurfaces(fn, e, opts); err != nil {
				return files, err
			}
			files = append(files, fn)
		}
	}
	return files, nil
}

// xmlWriter is a minimal streaming XML printer: open/attr/close with
// proper nesting, nothing more than the .vtu format needs.
type xmlWriter struct {
	b      strings.Builder
	stack  []string
	inOpen bool
}

func (w *xmlWriter) open(name string) {
	w.closeTagIfOpen()
	w.indent()
	w.b.WriteString("<" + name)
	w.stack = append(w.stack, name)
	w.inOpen = true
}

func (w *xmlWriter) attr(k, v string) {
	fmt.Fprintf(&w.b, " %s=%q", k, v)
}

func (w *xmlWriter) text(s string) {
	w.closeTagIfOpen()
	w.b.WriteString(s)
}

func (w *xmlWriter) close() {
	name := w.stack[len(w.stack)-1]
	w.stack = w.stack[:len(w.stack)-1]
	if w.inOpen {
		w.b.WriteString("/>\n")
		w.inOpen = false
		return
	}
	w.b.WriteString("</" + name + ">\n")
}

func (w *xmlWriter) closeTagIfOpen() {
	if w.inOpen {
		w.b.WriteString(">")
		w.inOpen = false
	}
}

func (w *xmlWriter) indent() {
	if w.b.Len() > 0 && !strings.HasSuffix(w.b.String(), "\n") {
		w.b.WriteString("\n")
	}
	for range w.stack {
		w.b.WriteString("  ")
	}
}

// payload encoders

func float32Bytes(data []float64) []byte {
	out := make([]byte, 4*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(float32(v)))
	}
	return out
}

func uint16Bytes(data []int) []byte {
	out := make([]byte, 2*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(v))
	}
	return out
}

func uint32Bytes(data []int) []byte {
	out := make([]byte, 4*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint32(out[4*i:], uint32(v))
	}
	return out
}

func uint8Bytes(data []int) []byte {
	out := make([]byte, len(data))
	for i, v := range data {
		out[i] = uint8(v)
	}
	return out
}

// writeB64 writes the VTK binary format: a base64 UInt32 byte-length
// header followed by the base64 payload.
func writeB64(w *xmlWriter, raw []byte) {
	hdr := make([]byte, 4)
	binary.LittleEndian.PutUint32(hdr, uint32(len(raw)))
	w.text(" ")
	w.text(base64.StdEncoding.EncodeToString(hdr))
	w.text(base64.StdEncoding.EncodeToString(raw))
	w.text(" ")
}

func writeAsciiFloats(w *xmlWriter, data []float64) {
	var sb strings.Builder
	sb.WriteString(" ")
	for _, v := range data {
		fmt.Fprintf(&sb, "%g ", float32(v))
	}
	w.text(sb.String())
}

func writeAsciiInts(w *xmlWriter, data []int) {
	var sb strings.Builder
	sb.WriteString(" ")
	for _, v := range data {
		fmt.Fprintf(&sb, "%d ", v)
	}
	w.text(sb.String())
}

// dataArray writes one float DataArray with the given name and
// component count.
func dataArray(w *xmlWriter, name string, ncomp int, data []float64, opts Options) {
	w.open("DataArray")
	if ncomp > 1 {
		w.attr("NumberOfComponents", fmt.Sprint(ncomp))
	}
	w.attr("Name", name)
	w.attr("type", "Float32")
	if opts.Base64 {
		w.attr("format", "binary")
		writeB64(w, float32Bytes(data))
	} else {
		w.attr("format", "ascii")
		writeAsciiFloats(w, data)
	}
	w.close()
}

// indexArray writes an integer DataArray, choosing UInt16 when the
// element count allows it.
func indexArray(w *xmlWriter, name string, data []int, n int, opts Options) {
	w.open("DataArray")
	w.attr("Name", name)
	wide := n > maxUint16
	if wide {
		w.attr("type", "UInt32")
	} else {
		w.attr("type", "UInt16")
	}
	if opts.Base64 {
		w.attr("format", "binary")
		if wide {
			writeB64(w, uint32Bytes(data))
		} else {
			writeB64(w, uint16Bytes(data))
		}
	} else {
		w.attr("format", "ascii")
		writeAsciiInts(w, data)
	}
	w.close()
}

func typeArray(w *xmlWriter, data []int, opts Options) {
	w.open("DataArray")
	w.attr("Name", "types")
	w.attr("type", "UInt8")
	if opts.Base64 {
		w.attr("format", "binary")
		writeB64(w, uint8Bytes(data))
	} else {
		w.attr("format", "ascii")
		writeAsciiInts(w, data)
	}
	w.close()
}

func interleave3(x, y, z []float64) []float64 {
	out := make([]float64, 3*len(x))
	for i := range x {
		out[3*i+0] = x[i]
		out[3*i+1] = y[i]
		out[3*i+2] = z[i]
	}
	return out
}

func iota(n, from int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = from + i
	}
	return out
}

// writePoints writes a particle (or field point) collection as vertex
// cells with velocity, circulation and radius point data. Inert
// collections omit circulation and radius.
func writePoints(path string, pts *elements.Points, opts Options) error {
	n := pts.N()
	w := &xmlWriter{}
	w.text("<?xml version=\"1.0\"?>\n")

	w.open("VTKFile")
	w.attr("type", "UnstructuredGrid")
	w.attr("version", "0.1")
	w.attr("byte_order", "LittleEndian")
	w.attr("header_type", "UInt32")
	w.open("UnstructuredGrid")
	w.open("Piece")
	w.attr("NumberOfPoints", fmt.Sprint(n))
	w.attr("NumberOfCells", fmt.Sprint(n))

	w.open("Points")
	dataArray(w, "position", 3, interleave3(pts.X, pts.Y, pts.Z), opts)
	w.close()

	w.open("Cells")
	indexArray(w, "connectivity", iota(n, 0), n, opts)
	indexArray(w, "offsets", iota(n, 1), n, opts)
	types := make([]int, n)
	for i := range types {
		types[i] = 1 // VTK_VERTEX
	}
	typeArray(w, types, opts)
	w.close()

	w.open("PointData")
	if pts.IsInert() {
		w.attr("Vectors", "velocity")
	} else {
		w.attr("Vectors", "velocity,circulation")
		w.attr("Scalars", "radius")
	}
	if !pts.IsInert() {
		dataArray(w, "circulation", 3, interleave3(pts.Sx, pts.Sy, pts.Sz), opts)
		dataArray(w, "radius", 1, pts.R, opts)
	}
	dataArray(w, "velocity", 3, interleave3(pts.U, pts.V, pts.W), opts)
	w.close()

	w.close() // Piece
	w.close() // UnstructuredGrid
	w.close() // VTKFile

	return os.WriteFile(path, []byte(w.b.String()), 0644)
}

// writeSurfaces writes a panel collection as triangle cells with the
// world-frame sheet strength as cell data.
func writeSurfaces(path string, s *elements.Surfaces, opts Options) error {
	nn := s.NNodes()
	np := s.NPanels()
	w := &xmlWriter{}
	w.text("<?xml version=\"1.0\"?>\n")

	w.open("VTKFile")
	w.attr("type", "UnstructuredGrid")
	w.attr("version", "0.1")
	w.attr("byte_order", "LittleEndian")
	w.attr("header_type", "UInt32")
	w.open("UnstructuredGrid")
	w.open("Piece")
	w.attr("NumberOfPoints", fmt.Sprint(nn))
	w.attr("NumberOfCells", fmt.Sprint(np))

	w.open("Points")
	dataArray(w, "position", 3, interleave3(s.NX, s.NY, s.NZ), opts)
	w.close()

	conn := make([]int, len(s.Idx))
	for i, v := range s.Idx {
		conn[i] = int(v)
	}
	offs := make([]int, np)
	types := make([]int, np)
	for i := 0; i < np; i++ {
		offs[i] = 3 * (i + 1)
		types[i] = 5 // VTK_TRIANGLE
	}

	w.open("Cells")
	indexArray(w, "connectivity", conn, nn, opts)
	indexArray(w, "offsets", offs, 3*np, opts)
	typeArray(w, types, opts)
	w.close()

	gam := make([]float64, 0, 3*np)
	for i := 0; i < np; i++ {
		g := s.WorldGamma(i)
		gam = append(gam, g.X, g.Y, g.Z)
	}
	w.open("CellData")
	w.attr("Vectors", "vortex sheet strength")
	dataArray(w, "vortex sheet strength", 3, gam, opts)
	w.close()

	w.close() // Piece
	w.close() // UnstructuredGrid
	w.close() // VTKFile

	return os.WriteFile(path, []byte(w.b.String()), 0644)
}
