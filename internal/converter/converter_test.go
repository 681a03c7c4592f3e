package converter

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	exif "github.com/dsoprea/go-exif/v3"

	"heiconv/internal/task"
	"heiconv/pkg/imgutil"
)

func TestDeriveOutputPath(t *testing.T) {
	cases := []struct {
		input, outputDir, want string
	}{
		{"/photos/a.heic", "/out", filepath.Join("/out", "a.jpg")},
		{"/photos/b.HEIC", "/out", filepath.Join("/out", "b.jpg")},
		{"/photos/sub/c.heif", "", filepath.Join("/photos/sub", "c.jpg")},
		{"/photos/no-ext", "/out", filepath.Join("/out", "no-ext.jpg")},
	}
	for _, tc := range cases {
		if got := DeriveOutputPath(tc.input, tc.outputDir); got != tc.want {
			t.Errorf("DeriveOutputPath(%q, %q) = %q, want %q", tc.input, tc.outputDir, got, tc.want)
		}
	}
}

func TestIsEligible(t *testing.T) {
	for _, path := range []string{"a.heic", "b.HEIC", "c.Heif", "/x/y/z.heif"} {
		if !IsEligible(path) {
			t.Errorf("expected %s to be eligible", path)
		}
	}
	for _, path := range []string{"a.jpg", "b.png", "c.heics", "d", "e.txt"} {
		if IsEligible(path) {
			t.Errorf("expected %s to be ineligible", path)
		}
	}
}

func TestConvertMissingInput(t *testing.T) {
	dir := t.TempDir()
	tk, err := task.New(filepath.Join(dir, "nope.heic"), filepath.Join(dir, "nope.jpg"), 85, false, true)
	if err != nil {
		t.Fatalf("task: %v", err)
	}

	res := New().Convert(tk)
	if res.Success {
		t.Fatal("expected failure for missing input")
	}
	if !strings.Contains(res.Error, "not found") {
		t.Errorf("error = %q, want a not-found message", res.Error)
	}
	if res.SizeBefore != 0 || res.SizeAfter != 0 {
		t.Errorf("expected no byte sizes, got before=%d after=%d", res.SizeBefore, res.SizeAfter)
	}
}

func TestConvertUndecodableInput(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "broken.heic")
	if err := os.WriteFile(src, []byte("definitely not an image"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	tk, _ := task.New(src, filepath.Join(dir, "broken.jpg"), 85, false, false)
	res := New().Convert(tk)
	if res.Success {
		t.Fatal("expected failure for undecodable input")
	}
	if !strings.Contains(res.Error, "decode failed") {
		t.Errorf("error = %q, want decode failure", res.Error)
	}
}

func TestConvertPNGWithAlpha(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "alpha.png")
	buildAlphaPNG(t, src)

	out := filepath.Join(dir, "nested", "alpha.jpg")
	tk, _ := task.New(src, out, 90, false, false)

	res := New().Convert(tk)
	if !res.Success {
		t.Fatalf("convert: %s", res.Error)
	}
	if res.OutputPath != out {
		t.Errorf("output path = %q, want %q", res.OutputPath, out)
	}
	if res.SizeBefore <= 0 || res.SizeAfter <= 0 {
		t.Errorf("sizes not reported: before=%d after=%d", res.SizeBefore, res.SizeAfter)
	}
	if res.Duration <= 0 {
		t.Error("duration not reported")
	}

	kind, err := imgutil.SniffFile(out)
	if err != nil {
		t.Fatalf("sniff output: %v", err)
	}
	if kind != imgutil.KindJPEG {
		t.Fatalf("output kind = %v, want jpeg", kind)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()
	if _, err := jpeg.Decode(f); err != nil {
		t.Fatalf("output does not decode as JPEG: %v", err)
	}
}

func TestConvertPreservesExif(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "tagged.jpg")
	buildJPEGWithExif(t, src)

	out := filepath.Join(dir, "out", "tagged.jpg")
	tk, _ := task.New(src, out, 85, false, true)

	res := New().Convert(tk)
	if !res.Success {
		t.Fatalf("convert: %s", res.Error)
	}

	outData, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	raw, err := exif.SearchAndExtractExif(outData)
	if err != nil {
		t.Fatalf("output carries no exif: %v", err)
	}
	tags, _, err := exif.GetFlatExifData(raw, nil)
	if err != nil {
		t.Fatalf("parse output exif: %v", err)
	}
	if !hasTag(tags, "Model") {
		t.Errorf("expected Model tag in output exif, got: %#v", tags)
	}
}

func TestConvertWithoutPreserveDropsExif(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "tagged.jpg")
	buildJPEGWithExif(t, src)

	out := filepath.Join(dir, "plain.jpg")
	tk, _ := task.New(src, out, 85, false, false)

	res := New().Convert(tk)
	if !res.Success {
		t.Fatalf("convert: %s", res.Error)
	}

	outData, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if _, err := exif.SearchAndExtractExif(outData); err == nil {
		t.Error("expected no exif in output")
	}
}

func TestConvertDeleteSource(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "gone.png")
	buildAlphaPNG(t, src)

	tk, _ := task.New(src, filepath.Join(dir, "gone.jpg"), 85, true, false)
	res := New().Convert(tk)
	if !res.Success {
		t.Fatalf("convert: %s", res.Error)
	}

	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("source file still present after deleteSource")
	}
	trashed := filepath.Join(dir, trashDirName, "gone.png")
	if _, err := os.Stat(trashed); err != nil {
		t.Errorf("source not found in trash: %v", err)
	}
}

func buildAlphaPNG(t *testing.T, path string) {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.NRGBA{R: 0xff, G: 0x40, A: uint8(x * 60)})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write png: %v", err)
	}
}

func buildJPEGWithExif(t *testing.T, path string) {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	encoded := buf.Bytes()

	payload := append([]byte("Exif\x00\x00"), buildExifTIFF()...)

	var out bytes.Buffer
	out.Write(encoded[:2])
	out.Write([]byte{0xff, 0xe1})
	_ = binary.Write(&out, binary.BigEndian, uint16(len(payload)+2))
	out.Write(payload)
	out.Write(encoded[2:])

	if err := os.WriteFile(path, out.Bytes(), 0o644); err != nil {
		t.Fatalf("write jpeg: %v", err)
	}
}

func buildExifTIFF() []byte {
	var tiff bytes.Buffer
	tiff.Write([]byte{0x49, 0x49, 0x2a, 0x00})
	_ = binary.Write(&tiff, binary.LittleEndian, uint32(8))
	_ = binary.Write(&tiff, binary.LittleEndian, uint16(2))
	_ = binary.Write(&tiff, binary.LittleEndian, uint16(0x0110))
	_ = binary.Write(&tiff, binary.LittleEndian, uint16(2))
	_ = binary.Write(&tiff, binary.LittleEndian, uint32(8))
	_ = binary.Write(&tiff, binary.LittleEndian, uint32(38))
	_ = binary.Write(&tiff, binary.LittleEndian, uint16(0x0132))
	_ = binary.Write(&tiff, binary.LittleEndian, uint16(2))
	_ = binary.Write(&tiff, binary.LittleEndian, uint32(20))
	_ = binary.Write(&tiff, binary.LittleEndian, uint32(46))
	_ = binary.Write(&tiff, binary.LittleEndian, uint32(0))
	tiff.Write([]byte("TestCam\x00"))
	tiff.Write([]byte("2024:01:02 03:04:05\x00"))
	return tiff.Bytes()
}

func hasTag(tags []exif.ExifTag, name string) bool {
	for _, tag := range tags {
		if tag.TagName == name {
			return true
		}
	}
	return false
}
