// Package refactor implements the C7 refactor executor: multi-file rename,
// extract/move-to-file, extract-interface and search-and-replace, each
// composing C6 (internal/fileedit) for the actual mutations and C8
// (internal/resolver) for symbol location (spec §4.7). Every operation
// honors dry_run and is bounded by config.RefactorConfig so a single
// request cannot touch an unbounded blast radius.
package refactor

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/codeintel-go/engine/internal/cache"
	"github.com/codeintel-go/engine/internal/config"
	engerrors "github.com/codeintel-go/engine/internal/errors"
	"github.com/codeintel-go/engine/internal/fileedit"
	"github.com/codeintel-go/engine/internal/resolver"
	"github.com/codeintel-go/engine/internal/store"
)

// Executor runs refactor operations against a workspace's indexed metadata,
// applying edits through the shared Editor and invalidating the result
// cache whenever it actually writes to disk.
type Executor struct {
	resolver *resolver.Resolver
	metadata store.MetadataStore
	editor   *fileedit.Editor
	cache    *cache.Cache
	cfg      config.RefactorConfig
}

// New creates an Executor. cache may be nil, in which case applied edits
// are not cache-invalidated (used in tests or cache-less embeddings).
func New(metadata store.MetadataStore, editor *fileedit.Editor, c *cache.Cache, cfg config.RefactorConfig) *Executor {
	return &Executor{
		resolver: resolver.New(metadata),
		metadata: metadata,
		editor:   editor,
		cache:    c,
		cfg:      cfg,
	}
}

// FileChange is one file's before/after content within a Plan.
type FileChange struct {
	Path     string
	Before   string
	After    string
	Applied  bool
	Warnings []string
}

// Plan is the result of any refactor operation: a dry-run preview when
// DryRun is true, or the record of what was actually written when false.
type Plan struct {
	DryRun   bool
	Files    []FileChange
	Summary  string
	Warnings []string
}

func (e *Executor) invalidateCache() {
	if e.cache != nil {
		e.cache.Invalidate()
	}
}

func boundExceeded(n, max int) bool { return max > 0 && n > max }

// RenameSymbol replaces every reference to oldName with newName across the
// project, resolved exclusively through the Symbol DB (C8) — no text
// search. Renaming a symbol to itself is a documented no-op.
func (e *Executor) RenameSymbol(ctx context.Context, projectID, oldName, newName string, dryRun bool) (*Plan, error) {
	if oldName == "" || newName == "" {
		return nil, engerrors.New(engerrors.CodeValidationError, "old_name and new_name are required", nil)
	}
	if oldName == newName {
		return &Plan{DryRun: dryRun, Summary: "no-op rename: old_name equals new_name"}, nil
	}

	refs, err := e.resolver.FindReferences(ctx, projectID, oldName, true)
	if err != nil {
		return nil, err
	}

	byFile := resolver.GroupByFile(refs)
	files := make([]string, 0, len(byFile))
	for f := range byFile {
		files = append(files, f)
	}
	sort.Strings(files)

	if boundExceeded(len(files), e.cfg.MaxFiles) {
		return nil, engerrors.New(engerrors.CodeValidationError, "rename would touch too many files", nil).
			WithDetail("files", itoa(len(files))).WithDetail("max_files", itoa(e.cfg.MaxFiles))
	}
	if boundExceeded(len(refs), e.cfg.MaxMatches) {
		return nil, engerrors.New(engerrors.CodeValidationError, "rename would touch too many references", nil).
			WithDetail("matches", itoa(len(refs))).WithDetail("max_matches", itoa(e.cfg.MaxMatches))
	}

	plan := &Plan{DryRun: dryRun}
	for _, path := range files {
		fileRefs := byFile[path]
		var warnings []string
		var edits []fileedit.ByteEdit
		for _, r := range fileRefs {
			if r.EndByte <= r.StartByte {
				warnings = append(warnings, fmt.Sprintf("skipped reference at %s:%d with invalid span", path, r.Line))
				continue
			}
			edits = append(edits, fileedit.ByteEdit{Start: r.StartByte, End: r.EndByte, Replacement: newName})
		}
		if len(edits) == 0 {
			continue
		}

		change, err := e.applyOrPreview(path, edits, dryRun)
		if err != nil {
			return nil, err
		}
		change.Warnings = warnings
		plan.Files = append(plan.Files, *change)
	}

	plan.Summary = fmt.Sprintf("renamed %q to %q across %d file(s), %d reference(s)", oldName, newName, len(plan.Files), len(refs))
	if !dryRun {
		e.invalidateCache()
	}
	return plan, nil
}

func (e *Executor) applyOrPreview(path string, edits []fileedit.ByteEdit, dryRun bool) (*FileChange, error) {
	rr, err := e.editor.ReadWithEncoding(path)
	if err != nil {
		return nil, err
	}

	if dryRun {
		after, err := fileedit.ApplyByteEditsToContent(rr.Raw, edits)
		if err != nil {
			return nil, err
		}
		return &FileChange{Path: path, Before: rr.Raw, After: after}, nil
	}

	after, err := e.editor.ApplyByteEdits(path, edits)
	if err != nil {
		return nil, err
	}
	return &FileChange{Path: path, Before: rr.Raw, After: after, Applied: true}, nil
}

// ExtractToFile moves the line range of a symbol's definition out of its
// source file and into targetPath, which must not already exist. The
// source file is left with the range removed.
func (e *Executor) ExtractToFile(ctx context.Context, projectID, symbolName, targetPath string, dryRun bool) (*Plan, error) {
	syms, err := e.resolver.GotoDefinition(ctx, projectID, symbolName, true)
	if err != nil {
		return nil, err
	}
	sym := syms[0]

	if _, err := e.editor.ReadWithEncoding(targetPath); err == nil {
		return nil, engerrors.New(engerrors.CodeTargetExists, "extract target already exists", nil).
			WithDetail("target_path", targetPath)
	}

	srcRR, err := e.editor.ReadWithEncoding(sym.FilePath)
	if err != nil {
		return nil, err
	}
	startIdx, endIdx := sym.StartLine-1, sym.EndLine-1
	if startIdx < 0 || endIdx >= len(srcRR.Lines) || endIdx < startIdx {
		return nil, engerrors.New(engerrors.CodeValidationError, "symbol definition span is out of bounds", nil)
	}

	extracted := strings.Join(srcRR.Lines[startIdx:endIdx+1], "\n") + "\n"
	remaining := append(append([]string{}, srcRR.Lines[:startIdx]...), srcRR.Lines[endIdx+1:]...)
	newSrcContent := strings.Join(remaining, "\n")
	if srcRR.HadTrailingSep && len(remaining) > 0 {
		newSrcContent += "\n"
	}

	plan := &Plan{DryRun: dryRun}
	if dryRun {
		plan.Files = []FileChange{
			{Path: targetPath, Before: "", After: extracted},
			{Path: sym.FilePath, Before: srcRR.Raw, After: newSrcContent},
		}
	} else {
		if _, err := e.editor.DeleteLines(sym.FilePath, sym.StartLine, sym.EndLine); err != nil {
			return nil, err
		}
		written, err := e.writeNewFile(targetPath, extracted)
		if err != nil {
			return nil, err
		}
		plan.Files = []FileChange{
			{Path: targetPath, After: written, Applied: true},
			{Path: sym.FilePath, Before: srcRR.Raw, After: newSrcContent, Applied: true},
		}
		e.invalidateCache()
	}
	plan.Summary = fmt.Sprintf("extracted %q from %s to %s", symbolName, sym.FilePath, targetPath)
	return plan, nil
}

func (e *Executor) writeNewFile(path, content string) (string, error) {
	return e.editor.CreateFile(path, content)
}

// MoveSymbolToFile is ExtractToFile with the same semantics; the name
// mirrors the spec's smart_refactor operation catalog, which lists
// extract_to_file and move_symbol_to_file as distinct user-facing verbs
// over the same underlying mechanics.
func (e *Executor) MoveSymbolToFile(ctx context.Context, projectID, symbolName, targetPath string, dryRun bool) (*Plan, error) {
	return e.ExtractToFile(ctx, projectID, symbolName, targetPath, dryRun)
}

var goMethodPattern = regexp.MustCompile(`^func\s*\([^)]*\*?(\w+)\)\s*(\w+)(\([^)]*\))\s*(\(?[^{]*\)?)\s*\{`)

// ExtractInterface scans a class/struct's definition range for exported
// Go methods and emits a minimal interface capturing their signatures.
// Only Go receiver-method syntax is recognized; non-Go definitions return
// a CodeValidationError naming the limitation.
func (e *Executor) ExtractInterface(ctx context.Context, projectID, typeName, interfaceName, targetPath string, dryRun bool) (*Plan, error) {
	syms, err := e.resolver.GotoDefinition(ctx, projectID, typeName, true)
	if err != nil {
		return nil, err
	}
	sym := syms[0]
	if !strings.HasSuffix(sym.FilePath, ".go") {
		return nil, engerrors.New(engerrors.CodeValidationError, "extract_interface only supports Go receiver methods", nil).
			WithDetail("file", sym.FilePath)
	}

	srcRR, err := e.editor.ReadWithEncoding(sym.FilePath)
	if err != nil {
		return nil, err
	}

	var methods []string
	for _, line := range srcRR.Lines {
		m := goMethodPattern.FindStringSubmatch(line)
		if m == nil || m[1] != typeName || !isExported(m[2]) {
			continue
		}
		ret := strings.TrimSpace(m[4])
		sig := m[2] + m[3]
		if ret != "" {
			sig += " " + ret
		}
		methods = append(methods, "\t"+sig)
	}
	if len(methods) == 0 {
		return nil, engerrors.New(engerrors.CodeSymbolNotFound, "no exported methods found to extract", nil).
			WithDetail("type", typeName)
	}

	pkg := "package " + filepath.Base(filepath.Dir(sym.FilePath)) + "\n\n"
	body := pkg + "type " + interfaceName + " interface {\n" + strings.Join(methods, "\n") + "\n}\n"

	plan := &Plan{DryRun: dryRun}
	if dryRun {
		plan.Files = []FileChange{{Path: targetPath, After: body}}
	} else {
		written, err := e.writeNewFile(targetPath, body)
		if err != nil {
			return nil, err
		}
		plan.Files = []FileChange{{Path: targetPath, After: written, Applied: true}}
		e.invalidateCache()
	}
	plan.Summary = fmt.Sprintf("extracted interface %q (%d methods) from %q to %s", interfaceName, len(methods), typeName, targetPath)
	return plan, nil
}

func isExported(name string) bool {
	return name != "" && strings.ToUpper(name[:1]) == name[:1]
}

// SearchAndReplace finds pattern across the project's indexed files and
// replaces it with replacement, bounded by MaxFiles/MaxMatches. mode
// selects literal substring or regular-expression matching.
type SearchAndReplaceOptions struct {
	Pattern       string
	Replacement   string
	Regex         bool
	CaseSensitive bool
	FileGlob      string // optional glob filter, e.g. "*.go"
}

func (e *Executor) SearchAndReplace(ctx context.Context, projectID string, opts SearchAndReplaceOptions, dryRun bool) (*Plan, error) {
	if opts.Pattern == "" {
		return nil, engerrors.New(engerrors.CodeValidationError, "pattern is required", nil)
	}

	var matcher func(line string) []matchSpan
	if opts.Regex {
		flags := ""
		if !opts.CaseSensitive {
			flags = "(?i)"
		}
		re, err := regexp.Compile(flags + opts.Pattern)
		if err != nil {
			return nil, engerrors.New(engerrors.CodeInvalidQuery, "invalid regular expression", err)
		}
		matcher = func(line string) []matchSpan { return regexMatches(re, line) }
	} else {
		matcher = func(line string) []matchSpan { return literalMatches(line, opts.Pattern, opts.CaseSensitive) }
	}

	paths, err := e.metadata.GetFilePathsByProject(ctx, projectID)
	if err != nil {
		return nil, engerrors.Wrap(engerrors.CodeSearchError, err)
	}
	sort.Strings(paths)

	plan := &Plan{DryRun: dryRun}
	totalMatches := 0
	filesTouched := 0

	for _, path := range paths {
		if opts.FileGlob != "" {
			if ok, _ := filepath.Match(opts.FileGlob, filepath.Base(path)); !ok {
				continue
			}
		}
		if boundExceeded(filesTouched+1, e.cfg.MaxFiles) {
			plan.Warnings = append(plan.Warnings, fmt.Sprintf("stopped after reaching max_files=%d", e.cfg.MaxFiles))
			break
		}

		rr, err := e.editor.ReadWithEncoding(path)
		if err != nil {
			continue // unreadable/binary/deleted since index; skip rather than fail the whole op
		}

		var edits []fileedit.ByteEdit
		offset := 0
		for _, line := range rr.Lines {
			spans := matcher(line)
			for _, sp := range spans {
				if boundExceeded(totalMatches+1, e.cfg.MaxMatches) {
					plan.Warnings = append(plan.Warnings, fmt.Sprintf("stopped after reaching max_matches=%d", e.cfg.MaxMatches))
					goto flushFile
				}
				edits = append(edits, fileedit.ByteEdit{
					Start:       offset + sp.start,
					End:         offset + sp.end,
					Replacement: opts.Replacement,
				})
				totalMatches++
			}
			offset += len(line) + len(rr.Separator)
		}
	flushFile:
		if len(edits) == 0 {
			continue
		}
		change, err := e.applyOrPreview(path, edits, dryRun)
		if err != nil {
			return nil, err
		}
		plan.Files = append(plan.Files, *change)
		filesTouched++
		if boundExceeded(totalMatches, e.cfg.MaxMatches) {
			break
		}
	}

	plan.Summary = fmt.Sprintf("replaced %d match(es) across %d file(s)", totalMatches, filesTouched)
	if !dryRun {
		e.invalidateCache()
	}
	return plan, nil
}

type matchSpan struct{ start, end int }

func literalMatches(line, pattern string, caseSensitive bool) []matchSpan {
	hay, needle := line, pattern
	if !caseSensitive {
		hay, needle = strings.ToLower(line), strings.ToLower(pattern)
	}
	var spans []matchSpan
	start := 0
	for {
		idx := strings.Index(hay[start:], needle)
		if idx < 0 {
			break
		}
		abs := start + idx
		spans = append(spans, matchSpan{abs, abs + len(needle)})
		start = abs + len(needle)
		if start >= len(hay) {
			break
		}
	}
	return spans
}

func regexMatches(re *regexp.Regexp, line string) []matchSpan {
	locs := re.FindAllStringIndex(line, -1)
	spans := make([]matchSpan, len(locs))
	for i, l := range locs {
		spans[i] = matchSpan{l[0], l[1]}
	}
	return spans
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
