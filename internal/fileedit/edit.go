package fileedit

import (
	"os"
	"path/filepath"
	"sort"

	engerrors "github.com/codeintel-go/engine/internal/errors"
)

// Editor performs encoding-aware, line/byte addressed edits, serializing
// concurrent edits to the same path. Line numbers are 1-based externally
// (matching editor conventions); byte offsets are 0-based and address the
// current on-disk content, matching C8's IdentifierOccurrence spans.
type Editor struct {
	locks *mutexRegistry
}

// NewEditor creates an Editor with its own per-path mutex registry.
func NewEditor() *Editor {
	return &Editor{locks: newMutexRegistry()}
}

// ReadResult is the decoded content of a file plus everything needed to
// write it back byte-identically for unchanged regions.
type ReadResult struct {
	Lines          []string
	Separator      string
	HadTrailingSep bool
	Encoding       Encoding
	Raw            string // full decoded content, unsplit
}

// ReadWithEncoding reads path, detects its BOM/encoding and line
// separator, and returns the decoded lines ready for line-indexed editing.
func (e *Editor) ReadWithEncoding(path string) (*ReadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, mapReadError(err)
	}
	content, enc := decode(data)
	lines, sep, trailing := splitLines(content)
	return &ReadResult{
		Lines:          lines,
		Separator:      sep,
		HadTrailingSep: trailing,
		Encoding:       enc,
		Raw:            content,
	}, nil
}

func mapReadError(err error) error {
	if os.IsNotExist(err) {
		return engerrors.New(engerrors.CodeFileNotFound, "file not found", err)
	}
	if os.IsPermission(err) {
		return engerrors.New(engerrors.CodePermissionDenied, "permission denied reading file", err)
	}
	return engerrors.New(engerrors.CodeInternalError, "failed to read file", err)
}

// validateRange enforces the spec's line-range invariant: 1 <= start <= end
// <= lineCount. end <= 0 means "through end of file".
func validateRange(start, end, lineCount int) (int, int, error) {
	if start < 1 {
		return 0, 0, engerrors.New(engerrors.CodeValidationError,
			"start_line must be >= 1", nil).WithDetail("start_line", itoa(start))
	}
	if end <= 0 {
		end = lineCount
	}
	if start > lineCount || end > lineCount || end < start {
		return 0, 0, engerrors.New(engerrors.CodeValidationError,
			"line range out of bounds", nil).
			WithDetail("start_line", itoa(start)).
			WithDetail("end_line", itoa(end)).
			WithDetail("line_count", itoa(lineCount))
	}
	return start, end, nil
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// ReplaceLinesResult describes the effect of a ReplaceLines call.
type ReplaceLinesResult struct {
	Original string
	Modified string
	Deleted  int // number of lines removed by the replacement
}

// ReplaceLines replaces lines [start, end] (1-based, inclusive) with
// content's lines. When preserveIndentation is true, each non-blank
// replacement line is prefixed with the indentation of the nearest
// surviving non-blank neighbor line, so reformatted snippets inherit the
// block's existing indent instead of whatever indent the caller supplied.
func (e *Editor) ReplaceLines(path string, start, end int, content string, preserveIndentation bool) (*ReplaceLinesResult, error) {
	var result *ReplaceLinesResult
	err := e.locks.withLock(path, func() error {
		rr, err := e.ReadWithEncoding(path)
		if err != nil {
			return err
		}

		s, en, err := validateRange(start, end, len(rr.Lines))
		if err != nil {
			return err
		}

		newLines, _, _ := splitLines(content)
		if preserveIndentation {
			indent := neighborIndent(rr.Lines, s-1, en-1)
			for i, l := range newLines {
				if l == "" {
					continue
				}
				newLines[i] = indent + stripLeadingIndentIfAny(l)
			}
		}

		before := append([]string{}, rr.Lines[:s-1]...)
		after := append([]string{}, rr.Lines[en:]...)
		merged := append(before, newLines...)
		merged = append(merged, after...)

		original := joinLines(rr.Lines, rr.Separator, rr.HadTrailingSep)
		modified := joinLines(merged, rr.Separator, rr.HadTrailingSep)

		if err := os.WriteFile(path, encode(modified, rr.Encoding), 0o644); err != nil {
			return engerrors.New(engerrors.CodeReplaceFailed, "failed to write file", err)
		}

		result = &ReplaceLinesResult{
			Original: original,
			Modified: modified,
			Deleted:  en - s + 1,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// neighborIndent finds the leading whitespace of the nearest non-blank
// line outside [startIdx, endIdx] (0-based), preferring the line
// immediately before the replaced range.
func neighborIndent(lines []string, startIdx, endIdx int) string {
	for i := startIdx - 1; i >= 0; i-- {
		if lines[i] != "" {
			return leadingWhitespace(lines[i])
		}
	}
	for i := endIdx + 1; i < len(lines); i++ {
		if lines[i] != "" {
			return leadingWhitespace(lines[i])
		}
	}
	return ""
}

func stripLeadingIndentIfAny(line string) string {
	ws := leadingWhitespace(line)
	return line[len(ws):]
}

// DeleteLinesResult describes the effect of a DeleteLines call.
type DeleteLinesResult struct {
	Deleted  int
	Modified string
}

// DeleteLines removes lines [start, end] (1-based, inclusive).
func (e *Editor) DeleteLines(path string, start, end int) (*DeleteLinesResult, error) {
	var result *DeleteLinesResult
	err := e.locks.withLock(path, func() error {
		rr, err := e.ReadWithEncoding(path)
		if err != nil {
			return err
		}

		s, en, err := validateRange(start, end, len(rr.Lines))
		if err != nil {
			return err
		}

		merged := append([]string{}, rr.Lines[:s-1]...)
		merged = append(merged, rr.Lines[en:]...)
		modified := joinLines(merged, rr.Separator, rr.HadTrailingSep)

		if err := os.WriteFile(path, encode(modified, rr.Encoding), 0o644); err != nil {
			return engerrors.New(engerrors.CodeDeleteFailed, "failed to write file", err)
		}

		result = &DeleteLinesResult{Deleted: en - s + 1, Modified: modified}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CreateFile writes a brand new UTF-8 file at path, failing with
// CodeTargetExists if something is already there. Used by refactor
// operations (C7) that materialize extracted code into a new location.
func (e *Editor) CreateFile(path, content string) (string, error) {
	var written string
	err := e.locks.withLock(path, func() error {
		if _, err := os.Stat(path); err == nil {
			return engerrors.New(engerrors.CodeTargetExists, "target file already exists", nil).
				WithDetail("path", path)
		} else if !os.IsNotExist(err) {
			return engerrors.New(engerrors.CodeInternalError, "failed to stat target path", err)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return engerrors.New(engerrors.CodeInternalError, "failed to create parent directory", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return engerrors.New(engerrors.CodeReplaceFailed, "failed to write new file", err)
		}
		written = content
		return nil
	})
	if err != nil {
		return "", err
	}
	return written, nil
}

// ByteEdit replaces the half-open byte range [Start, End) of the current
// file content with Replacement. Offsets address the file's decoded
// content (post-BOM-stripping), matching C8 IdentifierOccurrence spans.
type ByteEdit struct {
	Start       int
	End         int
	Replacement string
}

// ApplyByteEditsToContent is the pure core of ApplyByteEdits: it sorts
// edits descending by Start and applies them to content without touching
// disk. Refactor planning (C7) uses this directly to compute dry-run
// previews; ApplyByteEdits wraps it with the read/write/lock plumbing.
func ApplyByteEditsToContent(content string, edits []ByteEdit) (string, error) {
	sorted := append([]ByteEdit{}, edits...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start > sorted[j].Start })

	for _, ed := range sorted {
		if ed.Start < 0 || ed.End > len(content) || ed.Start > ed.End {
			return "", engerrors.New(engerrors.CodeValidationError,
				"byte edit out of range", nil).
				WithDetail("start", itoa(ed.Start)).WithDetail("end", itoa(ed.End))
		}
		content = content[:ed.Start] + ed.Replacement + content[ed.End:]
	}
	return content, nil
}

// ApplyByteEdits applies a batch of byte-offset edits to path in a single
// write. Edits are sorted descending by Start before application so each
// edit's offsets remain valid for offsets computed against the original
// content, regardless of how earlier (lower-offset) edits shift the tail.
func (e *Editor) ApplyByteEdits(path string, edits []ByteEdit) (string, error) {
	var modified string
	err := e.locks.withLock(path, func() error {
		rr, err := e.ReadWithEncoding(path)
		if err != nil {
			return err
		}

		content, err := ApplyByteEditsToContent(rr.Raw, edits)
		if err != nil {
			return err
		}

		if err := os.WriteFile(path, encode(content, rr.Encoding), 0o644); err != nil {
			return engerrors.New(engerrors.CodeReplaceFailed, "failed to write file", err)
		}
		modified = content
		return nil
	})
	if err != nil {
		return "", err
	}
	return modified, nil
}
