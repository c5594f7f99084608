package vtkout

import (
	"encoding/base64"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/vortexlab/vpm/elements"
)

func testPoints(t *testing.T) *elements.Points {
	t.Helper()
	batch := []float64{
		0, 0, 0, 1, 0, 0, 0.1,
		1, 2, 3, 0, 0.5, 0, 0.2,
	}
	return elements.NewPoints(batch, 0.1, elements.Active, elements.Lagrangian, nil)
}

func TestWritePointsAscii(t *testing.T) {
	dir := t.TempDir()
	pts := testPoints(t)
	files, err := WriteCollections(dir, []elements.Collection{pts}, 7, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 {
		t.Fatalf("wrote %d files, want 1", len(files))
	}
	if filepath.Base(files[0]) != "part_00_00007.vtu" {
		t.Errorf("file name %q", filepath.Base(files[0]))
	}

	data, err := os.ReadFile(files[0])
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	for _, want := range []string{
		`type="UnstructuredGrid"`,
		`byte_order="LittleEndian"`,
		`NumberOfPoints="2"`,
		`Name="circulation"`,
		`Name="radius"`,
		`Name="velocity"`,
		`format="ascii"`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestWritePointsBase64Roundtrip(t *testing.T) {
	dir := t.TempDir()
	pts := testPoints(t)
	files, err := WriteCollections(dir, []elements.Collection{pts}, 0, Options{Base64: true})
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(files[0])
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	if !strings.Contains(text, `format="binary"`) {
		t.Fatal("binary format attribute missing")
	}

	// decode the position payload: a base64 length header then the
	// base64 float data
	re := regexp.MustCompile(`Name="position"[^>]*> ([A-Za-z0-9+/=]+) `)
	m := re.FindStringSubmatch(text)
	if m == nil {
		t.Fatal("position payload not found")
	}
	blob := m[1]
	// the UInt32 header encodes to 8 base64 chars
	hdr, err := base64.StdEncoding.DecodeString(blob[:8])
	if err != nil {
		t.Fatal(err)
	}
	nbytes := binary.LittleEndian.Uint32(hdr)
	if nbytes != 4*3*2 {
		t.Fatalf("header says %d bytes, want 24", nbytes)
	}
	payload, err := base64.StdEncoding.DecodeString(blob[8:])
	if err != nil {
		t.Fatal(err)
	}
	if len(payload) != int(nbytes) {
		t.Fatalf("payload %d bytes, want %d", len(payload), nbytes)
	}
	// second particle position (1,2,3) occupies floats 3..5
	for i, want := range []float64{1, 2, 3} {
		bits := binary.LittleEndian.Uint32(payload[4*(3+i):])
		got := float64(math.Float32frombits(bits))
		if got != want {
			t.Errorf("position float %d = %v, want %v", 3+i, got, want)
		}
	}
}

func TestWriteInertPointsOmitStrength(t *testing.T) {
	dir := t.TempDir()
	batch := []float64{0, 0, 0, 0, 0, 0, 1}
	pts := elements.NewPoints(batch, 1, elements.Inert, elements.Fixed, nil)
	files, err := WriteCollections(dir, []elements.Collection{pts}, 0, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(files[0]) != "fldpt_00_00000.vtu" {
		t.Errorf("file name %q", filepath.Base(files[0]))
	}
	data, _ := os.ReadFile(files[0])
	if strings.Contains(string(data), `Name="circulation"`) {
		t.Error("inert points must not carry circulation")
	}
}

func TestWriteSurfaces(t *testing.T) {
	dir := t.TempDir()
	nodes := []float64{0, 0, 0, 1, 0, 0, 0, 1, 0}
	surf, err := elements.NewSurfaces(nodes, []int32{0, 1, 2}, elements.Reactive, elements.Fixed, nil)
	if err != nil {
		t.Fatal(err)
	}
	surf.Gamma1[0] = 1

	files, err := WriteCollections(dir, []elements.Collection{surf}, 3, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(files[0]) != "panl_00_00003.vtu" {
		t.Errorf("file name %q", filepath.Base(files[0]))
	}
	data, _ := os.ReadFile(files[0])
	text := string(data)
	for _, want := range []string{
		`NumberOfCells="1"`,
		`Name="vortex sheet strength"`,
		`CellData`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestEmptyCollectionSkipped(t *testing.T) {
	dir := t.TempDir()
	pts := elements.NewPoints(nil, 0.1, elements.Active, elements.Lagrangian, nil)
	files, err := WriteCollections(dir, []elements.Collection{pts}, 0, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 0 {
		t.Fatalf("empty collection produced %d files", len(files))
	}
}
