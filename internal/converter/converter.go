// Package converter implements the conversion adapter: given a Task it
// decodes the source image, re-encodes it as JPEG, and reports the
// outcome. It never signals failure by error or panic across its
// boundary; every attempt yields exactly one Result.
package converter

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "image/gif"
	_ "image/png"

	"github.com/jdeng/goheif"

	"heiconv/internal/task"
	"heiconv/pkg/imgutil"
)

// Source extensions accepted by the adapter, matched case-insensitively.
var eligibleExtensions = map[string]struct{}{
	".heic": {},
	".heif": {},
}

// outputExtension is substituted onto every output filename.
const outputExtension = ".jpg"

// Converter converts source images to JPEG.
type Converter struct{}

// New returns a ready Converter.
func New() *Converter {
	return &Converter{}
}

// IsEligible reports whether path carries a supported source extension.
func IsEligible(path string) bool {
	_, ok := eligibleExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// DeriveOutputPath builds the output path for an input file: the base
// name with the target extension, placed in outputDir, or alongside the
// input when outputDir is empty.
func DeriveOutputPath(inputPath, outputDir string) string {
	if outputDir == "" {
		outputDir = filepath.Dir(inputPath)
	}
	base := filepath.Base(inputPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(outputDir, stem+outputExtension)
}

// Convert performs one conversion. Failures are reported inside the
// Result; Convert itself is total.
func (c *Converter) Convert(t task.Task) task.Result {
	start := time.Now()
	res := task.Result{
		InputPath: t.InputPath,
		Timestamp: start,
	}

	fail := func(format string, args ...any) task.Result {
		res.Success = false
		res.Error = fmt.Sprintf(format, args...)
		res.Duration = time.Since(start)
		slog.Error("conversion failed", "input", t.InputPath, "error", res.Error)
		return res
	}

	info, err := os.Stat(t.InputPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fail("input file not found: %s", t.InputPath)
		}
		return fail("cannot access input: %v", err)
	}
	res.SizeBefore = info.Size()

	data, err := os.ReadFile(t.InputPath)
	if err != nil {
		return fail("cannot read input: %v", err)
	}

	img, err := decode(data)
	if err != nil {
		return fail("decode failed: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(t.OutputPath), 0o755); err != nil {
		return fail("cannot create output directory: %v", err)
	}

	var exifPayload []byte
	if t.PreserveMetadata {
		exifPayload = extractExif(data)
	}

	if err := writeJPEG(t.OutputPath, img, t.Quality, exifPayload); err != nil {
		return fail("write failed: %v", err)
	}

	if outInfo, err := os.Stat(t.OutputPath); err == nil {
		res.SizeAfter = outInfo.Size()
	}

	res.Success = true
	res.OutputPath = t.OutputPath
	res.Duration = time.Since(start)

	slog.Info("converted",
		"input", t.InputFilename(),
		"output", t.OutputPath,
		"before", res.SizeBefore,
		"after", res.SizeAfter,
		"took", res.Duration)

	if t.DeleteSource {
		if err := moveToTrash(t.InputPath); err != nil {
			slog.Warn("could not trash source file", "path", t.InputPath, "error", err)
		}
	}

	return res
}

// decode picks a decoder from the file's content, not its extension.
// HEIC goes through goheif; anything else falls back to the registered
// stdlib decoders.
func decode(data []byte) (image.Image, error) {
	if len(data) >= 12 {
		if kind, _ := imgutil.DetectHeader(data[:12]); kind == imgutil.KindHEIC {
			return goheif.Decode(bytes.NewReader(data))
		}
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	return img, err
}

// writeJPEG encodes img at the given quality and writes it to path via
// a temp file in the destination directory. A non-nil exifPayload is
// spliced in as an APP1 segment directly after the SOI marker.
func writeJPEG(path string, img image.Image, quality int, exifPayload []byte) error {
	img = flattenAlpha(img)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return err
	}
	encoded := buf.Bytes()
	if len(encoded) < 2 || encoded[0] != 0xff || encoded[1] != 0xd8 {
		return fmt.Errorf("encoder produced invalid JPEG stream")
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "heiconv-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(encoded[:2]); err != nil {
		_ = tmp.Close()
		return err
	}
	if exifPayload != nil {
		if err := writeApp1(tmp, exifPayload); err != nil {
			_ = tmp.Close()
			return err
		}
	}
	if _, err := tmp.Write(encoded[2:]); err != nil {
		_ = tmp.Close()
		return err
	}

	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return replaceFile(tmp.Name(), path)
}

// flattenAlpha composites a non-opaque image onto a white background.
// JPEG has no transparency.
func flattenAlpha(img image.Image) image.Image {
	if op, ok := img.(interface{ Opaque() bool }); ok && op.Opaque() {
		return img
	}
	bounds := img.Bounds()
	flat := image.NewRGBA(bounds)
	draw.Draw(flat, bounds, image.White, image.Point{}, draw.Src)
	draw.Draw(flat, bounds, img, bounds.Min, draw.Over)
	return flat
}

func replaceFile(tmpPath, destPath string) error {
	if err := os.Rename(tmpPath, destPath); err == nil {
		return nil
	}
	if err := os.Remove(destPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return os.Rename(tmpPath, destPath)
}

// trashDirName is created beside a source file when deleteSource is set;
// sources are moved there rather than unlinked.
const trashDirName = ".heiconv-trash"

func moveToTrash(path string) error {
	trashDir := filepath.Join(filepath.Dir(path), trashDirName)
	if err := os.MkdirAll(trashDir, 0o755); err != nil {
		return err
	}

	base := filepath.Base(path)
	dest := filepath.Join(trashDir, base)
	for i := 1; ; i++ {
		if _, err := os.Stat(dest); os.IsNotExist(err) {
			break
		}
		dest = filepath.Join(trashDir, fmt.Sprintf("%s.%d", base, i))
	}

	if err := os.Rename(path, dest); err != nil {
		return err
	}
	slog.Info("moved source to trash", "path", path, "trash", dest)
	return nil
}
