package task

import "time"

// Result is the outcome of one conversion attempt. The adapter produces
// exactly one Result per Task; failures carry a human-readable Error
// instead of propagating as Go errors across the worker boundary.
type Result struct {
	Success    bool
	InputPath  string
	OutputPath string

	// Error is empty on success.
	Error string

	// Byte sizes are zero when unknown (e.g. the input never existed).
	SizeBefore int64
	SizeAfter  int64

	Duration  time.Duration
	Timestamp time.Time
}

// CompressionRatio reports output/input size. The second return is
// false unless the conversion succeeded and both sizes are known.
func (r Result) CompressionRatio() (float64, bool) {
	if !r.Success || r.SizeBefore <= 0 || r.SizeAfter <= 0 {
		return 0, false
	}
	return float64(r.SizeAfter) / float64(r.SizeBefore), true
}

// BytesSaved reports how many bytes the conversion shaved off. The
// second return is false unless both sizes are known.
func (r Result) BytesSaved() (int64, bool) {
	if !r.Success || r.SizeBefore <= 0 || r.SizeAfter <= 0 {
		return 0, false
	}
	return r.SizeBefore - r.SizeAfter, true
}
