// Package scanner recursively enumerates convertible image files under
// a root directory, producing aggregate statistics. Access errors on
// individual entries are collected, never fatal.
package scanner

import (
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Source extensions considered eligible, matched case-insensitively.
var eligibleExtensions = map[string]struct{}{
	".heic": {},
	".heif": {},
}

// ErrNotDirectory is returned when the scan root exists but is not a
// directory. A missing root surfaces as fs.ErrNotExist.
var ErrNotDirectory = errors.New("not a directory")

// progressInterval decouples callback frequency from per-file work.
const progressInterval = 100

// ProgressFunc receives the file currently being visited and the
// running count of files scanned so far.
type ProgressFunc func(path string, filesScanned int)

// EntryError records one inaccessible entry encountered during a scan.
type EntryError struct {
	Path string
	Err  string
}

// Result holds everything learned from one scan. It is created once per
// scan and not mutated afterwards.
type Result struct {
	Root                    string
	Files                   []string
	TotalFilesScanned       int
	TotalDirectoriesScanned int
	FilesByDirectory        map[string]int
	TotalSizeBytes          int64
	Errors                  []EntryError
}

// EligibleCount returns the number of eligible files found.
func (r *Result) EligibleCount() int {
	return len(r.Files)
}

// DirectoriesWithEligible returns how many directories contained at
// least one eligible file.
func (r *Result) DirectoriesWithEligible() int {
	return len(r.FilesByDirectory)
}

// TotalSizeHuman renders the cumulative eligible-file size in a
// readable unit.
func (r *Result) TotalSizeHuman() string {
	size := float64(r.TotalSizeBytes)
	units := []string{"B", "KB", "MB", "GB", "TB"}
	i := 0
	for size >= 1024 && i < len(units)-1 {
		size /= 1024
		i++
	}
	return fmt.Sprintf("%.2f %s", size, units[i])
}

// Summary returns a multi-line human-readable scan summary.
func (r *Result) Summary() string {
	lines := []string{
		fmt.Sprintf("Scan summary for: %s", r.Root),
		fmt.Sprintf("  Eligible files found: %d", r.EligibleCount()),
		fmt.Sprintf("  Total files scanned: %d", r.TotalFilesScanned),
		fmt.Sprintf("  Total directories: %d", r.TotalDirectoriesScanned),
		fmt.Sprintf("  Directories with eligible files: %d", r.DirectoriesWithEligible()),
		fmt.Sprintf("  Total size: %s", r.TotalSizeHuman()),
	}
	if len(r.Errors) > 0 {
		lines = append(lines, fmt.Sprintf("  Scan errors: %d", len(r.Errors)))
	}
	return strings.Join(lines, "\n")
}

// IsEligible reports whether path carries an eligible source extension.
func IsEligible(path string) bool {
	_, ok := eligibleExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Scan recursively visits every entry beneath root and records eligible
// files. onProgress, when non-nil, is invoked every progressInterval
// files so a caller can report liveness without slowing the walk.
func Scan(root string, onProgress ProgressFunc) (*Result, error) {
	if err := validateRoot(root); err != nil {
		return nil, err
	}

	slog.Info("starting scan", "root", root)

	result := &Result{
		Root:             root,
		FilesByDirectory: make(map[string]int),
	}

	walk(root, func(path string, d fs.DirEntry) {
		result.TotalFilesScanned++

		if IsEligible(path) {
			result.Files = append(result.Files, path)
			result.FilesByDirectory[filepath.Dir(path)]++

			if info, err := d.Info(); err != nil {
				slog.Warn("could not read size", "path", path, "error", err)
			} else {
				result.TotalSizeBytes += info.Size()
			}
		}

		if onProgress != nil && result.TotalFilesScanned%progressInterval == 0 {
			onProgress(path, result.TotalFilesScanned)
		}
	}, result)

	slog.Info("scan complete",
		"root", root,
		"eligible", result.EligibleCount(),
		"files", result.TotalFilesScanned,
		"dirs", result.TotalDirectoriesScanned,
		"errors", len(result.Errors))

	return result, nil
}

// ScanStream is the streaming variant: it yields each eligible file as
// soon as it is found, together with the running partial Result. The
// sequence is single-pass and finite.
func ScanStream(root string) (iter.Seq2[string, *Result], error) {
	if err := validateRoot(root); err != nil {
		return nil, err
	}

	return func(yield func(string, *Result) bool) {
		result := &Result{
			Root:             root,
			FilesByDirectory: make(map[string]int),
		}

		stopped := false
		walk(root, func(path string, d fs.DirEntry) {
			if stopped {
				return
			}
			result.TotalFilesScanned++

			if !IsEligible(path) {
				return
			}
			result.Files = append(result.Files, path)
			result.FilesByDirectory[filepath.Dir(path)]++
			if info, err := d.Info(); err == nil {
				result.TotalSizeBytes += info.Size()
			}

			if !yield(path, result) {
				stopped = true
			}
		}, result)
	}, nil
}

// walk runs the tolerant tree walk shared by both scan modes. onFile is
// called for every regular file; directory counts and per-entry errors
// land in result directly.
func walk(root string, onFile func(path string, d fs.DirEntry), result *Result) {
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			result.Errors = append(result.Errors, EntryError{Path: path, Err: walkErr.Error()})
			slog.Warn("error accessing entry", "path", path, "error", walkErr)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if path != root {
				result.TotalDirectoriesScanned++
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		onFile(path, d)
		return nil
	})
}

func validateRoot(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("directory not found: %s: %w", root, fs.ErrNotExist)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s: %w", root, ErrNotDirectory)
	}
	return nil
}

// DirCount pairs a directory with its eligible-file count.
type DirCount struct {
	Dir   string
	Count int
}

// TopDirectories returns the n directories with the most eligible
// files, highest first.
func TopDirectories(r *Result, n int) []DirCount {
	dirs := make([]DirCount, 0, len(r.FilesByDirectory))
	for dir, count := range r.FilesByDirectory {
		dirs = append(dirs, DirCount{Dir: dir, Count: count})
	}
	sort.Slice(dirs, func(i, j int) bool {
		if dirs[i].Count != dirs[j].Count {
			return dirs[i].Count > dirs[j].Count
		}
		return dirs[i].Dir < dirs[j].Dir
	})
	if n < len(dirs) {
		dirs = dirs[:n]
	}
	return dirs
}

// EstimateOutputSize roughly predicts total JPEG output bytes for a
// given quality. JPEG lands around 30-70% of HEIC size depending on
// quality.
func EstimateOutputSize(r *Result, quality int) int64 {
	factor := 0.3 + float64(quality)/100*0.4
	return int64(float64(r.TotalSizeBytes) * factor)
}
