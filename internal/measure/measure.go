// Package measure computes the per-file complexity triple (lines of code,
// indent complexity, max indent) for every commit-file row that hasn't
// been measured yet.
package measure

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"

	"github.com/jmcdonald-ut/gitmem/internal/commitstore"
	"github.com/jmcdonald-ut/gitmem/internal/gitrepo"
	"github.com/jmcdonald-ut/gitmem/internal/models"
	"github.com/sirupsen/logrus"
)

// chunkSize bounds how many files are measured per git adapter round trip,
// matching the same chunk size the git adapter itself caps subprocess
// batches at.
const chunkSize = 500

// defaultTabWidth is the indent unit spec.md §4.4 uses when converting a
// leading tab into an equivalent number of spaces.
const defaultTabWidth = 4

// binarySniffWindow is how many leading bytes are checked for a NUL byte
// to decide a blob is binary, per spec.md §4.4's short-circuit rule.
const binarySniffWindow = 8192

// lockfileBasenames is the fixed list of exact basenames spec.md §4.4
// calls out as always-generated, regardless of extension.
var lockfileBasenames = map[string]bool{
	"package-lock.json": true,
	"yarn.lock":         true,
	"pnpm-lock.yaml":     true,
	"Cargo.lock":        true,
	"Gemfile.lock":      true,
	"composer.lock":     true,
	"go.sum":            true,
	"poetry.lock":       true,
	"Pipfile.lock":      true,
	"mix.lock":          true,
}

var generatedExtensions = map[string]bool{
	".min.js":  true,
	".min.css": true,
	".map":     true,
	".lock":    true,
}

// isGeneratedOrVendored mirrors spec.md §4.4's path short-circuit: an exact
// lockfile basename, or one of the fixed generated-file extensions.
func isGeneratedOrVendored(path string) bool {
	if lockfileBasenames[filepath.Base(path)] {
		return true
	}
	for ext := range generatedExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

// isBinary reports whether data looks binary by spec.md §4.4's rule: any
// NUL byte within the first binarySniffWindow bytes.
func isBinary(data []byte) bool {
	window := data
	if len(window) > binarySniffWindow {
		window = window[:binarySniffWindow]
	}
	return bytes.IndexByte(window, 0) != -1
}

// Progress reports measurement progress after each processed chunk.
type Progress struct {
	Processed int
	Total     int
}

// Measurer computes complexity triples for unmeasured commit files.
type Measurer struct {
	git    *gitrepo.Adapter
	store  *commitstore.Store
	logger *logrus.Entry
}

// New builds a Measurer against git and the commit repository.
func New(git *gitrepo.Adapter, store *commitstore.Store) *Measurer {
	return &Measurer{git: git, store: store, logger: logrus.WithField("component", "measure")}
}

// unmeasuredFileRef pairs an unmeasured commit_files row with the blob ref
// needed to fetch its content.
type unmeasuredFileRef struct {
	file models.CommitFile
	ref  gitrepo.FileRef
}

// Run measures every commit-file row with a null complexity triple,
// reporting progress after each chunk of chunkSize files.
func (m *Measurer) Run(ctx context.Context, hashes []string, onProgress func(Progress)) error {
	byHash, err := m.store.FilesByHashes(ctx, hashes)
	if err != nil {
		return err
	}

	var pending []models.CommitFile
	for _, hash := range hashes {
		for _, f := range byHash[hash] {
			if !f.IsMeasured() {
				pending = append(pending, f)
			}
		}
	}
	if len(pending) == 0 {
		return nil
	}

	total := len(pending)
	processed := 0

	for start := 0; start < len(pending); start += chunkSize {
		end := start + chunkSize
		if end > len(pending) {
			end = len(pending)
		}
		group := pending[start:end]

		results, err := m.measureChunk(ctx, group)
		if err != nil {
			return err
		}
		if err := m.store.UpdateComplexityBatch(ctx, results); err != nil {
			return err
		}

		processed += len(group)
		if onProgress != nil {
			onProgress(Progress{Processed: processed, Total: total})
		}
	}
	return nil
}

func (m *Measurer) measureChunk(ctx context.Context, files []models.CommitFile) ([]models.Complexity, error) {
	var refs []gitrepo.FileRef
	results := make([]models.Complexity, 0, len(files))

	for _, f := range files {
		if f.ChangeType == string(models.ChangeDeleted) || isGeneratedOrVendored(f.FilePath) {
			results = append(results, zeroComplexity(f))
			continue
		}
		refs = append(refs, gitrepo.FileRef{Hash: f.CommitHash, Path: f.FilePath})
	}

	contents, err := m.git.FileContentsBatch(ctx, refs)
	if err != nil {
		return nil, err
	}

	for _, f := range files {
		if f.ChangeType == string(models.ChangeDeleted) || isGeneratedOrVendored(f.FilePath) {
			continue // already appended above
		}
		ref := gitrepo.FileRef{Hash: f.CommitHash, Path: f.FilePath}
		data, ok := contents[ref]
		if !ok {
			results = append(results, zeroComplexity(f)) // missing blob
			continue
		}
		if isBinary(data) {
			results = append(results, zeroComplexity(f))
			continue
		}
		results = append(results, measureContent(f, data))
	}
	return results, nil
}

func zeroComplexity(f models.CommitFile) models.Complexity {
	return models.Complexity{CommitHash: f.CommitHash, FilePath: f.FilePath, LinesOfCode: 0, IndentSum: 0, MaxIndent: 0}
}

func measureContent(f models.CommitFile, data []byte) models.Complexity {
	lines := strings.Split(string(data), "\n")
	loc := 0
	indentSum := 0
	maxIndent := 0

	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		loc++
		indent := leadingIndentLevel(line)
		indentSum += indent
		if indent > maxIndent {
			maxIndent = indent
		}
	}

	return models.Complexity{CommitHash: f.CommitHash, FilePath: f.FilePath, LinesOfCode: loc, IndentSum: indentSum, MaxIndent: maxIndent}
}

// leadingIndentLevel converts a line's leading whitespace run into
// floor(leading_spaces/tab_width), counting each space as 1 and each tab as
// tab_width, stopping at the first non-whitespace character.
func leadingIndentLevel(line string) int {
	spaces := 0
	for _, r := range line {
		switch r {
		case ' ':
			spaces++
		case '\t':
			spaces += defaultTabWidth
		default:
			return spaces / defaultTabWidth
		}
	}
	return spaces / defaultTabWidth
}
