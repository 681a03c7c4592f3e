package converter

import (
	"bytes"
	"io"
	"log/slog"

	exif "github.com/dsoprea/go-exif/v3"
	"github.com/jdeng/goheif"

	"heiconv/pkg/imgutil"
)

var exifPreamble = []byte("Exif\x00\x00")

// An APP1 segment length field is 16 bits and includes itself.
const maxApp1Payload = 65533

// extractExif pulls the EXIF block out of the source image and
// validates it. Returns nil when the source has no usable EXIF; carrying
// metadata forward is best-effort and never fails a conversion.
func extractExif(data []byte) []byte {
	var blob []byte
	var err error

	kind := imgutil.KindUnknown
	if len(data) >= 12 {
		kind, _ = imgutil.DetectHeader(data[:12])
	}

	if kind == imgutil.KindHEIC {
		blob, err = goheif.ExtractExif(bytes.NewReader(data))
	} else {
		blob, err = exif.SearchAndExtractExif(data)
	}
	if err != nil || len(blob) == 0 {
		return nil
	}

	// Normalize to the TIFF header and make sure the block parses
	// before splicing it into the output.
	raw, err := exif.SearchAndExtractExif(blob)
	if err != nil {
		slog.Debug("discarding unparseable exif block", "error", err)
		return nil
	}
	tags, _, err := exif.GetFlatExifData(raw, nil)
	if err != nil {
		slog.Debug("discarding invalid exif block", "error", err)
		return nil
	}

	payload := append(append([]byte{}, exifPreamble...), raw...)
	if len(payload) > maxApp1Payload {
		slog.Warn("exif block too large for APP1, dropping", "bytes", len(payload))
		return nil
	}

	slog.Debug("carrying exif forward", "tags", len(tags), "bytes", len(payload))
	return payload
}

// writeApp1 emits an APP1 marker segment holding payload.
func writeApp1(w io.Writer, payload []byte) error {
	segLen := len(payload) + 2
	marker := []byte{0xff, 0xe1, byte(segLen >> 8), byte(segLen & 0xff)}
	if _, err := w.Write(marker); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}
