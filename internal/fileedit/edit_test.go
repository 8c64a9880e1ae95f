package fileedit

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	engerrors "github.com/codeintel-go/engine/internal/errors"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "f.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadWithEncoding_MissingFile_ReturnsFileNotFound(t *testing.T) {
	e := NewEditor()
	_, err := e.ReadWithEncoding(filepath.Join(t.TempDir(), "nope.txt"))
	require.Error(t, err)
	var ee *engerrors.EngineError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, engerrors.CodeFileNotFound, ee.Code)
}

func TestReadWithEncoding_DetectsUTF8BOM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bom.txt")
	content := append([]byte{0xEF, 0xBB, 0xBF}, []byte("hello\n")...)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	e := NewEditor()
	rr, err := e.ReadWithEncoding(path)
	require.NoError(t, err)
	assert.Equal(t, EncodingUTF8BOM, rr.Encoding)
	assert.Equal(t, "hello\n", rr.Raw)
}

func TestReplaceLines_ReplacesMiddleRange(t *testing.T) {
	path := writeTemp(t, "one\ntwo\nthree\nfour\n")
	e := NewEditor()

	res, err := e.ReplaceLines(path, 2, 3, "TWO\nTHREE", false)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Deleted)
	assert.Equal(t, "one\nTWO\nTHREE\nfour\n", res.Modified)

	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, res.Modified, string(onDisk))
}

func TestReplaceLines_ToEndOfFile_EndZero(t *testing.T) {
	path := writeTemp(t, "one\ntwo\nthree\n")
	e := NewEditor()

	res, err := e.ReplaceLines(path, 2, 0, "X", false)
	require.NoError(t, err)
	assert.Equal(t, "one\nX\n", res.Modified)
}

func TestReplaceLines_PreservesIndentationFromNeighbor(t *testing.T) {
	path := writeTemp(t, "func f() {\n\told := 1\n}\n")
	e := NewEditor()

	res, err := e.ReplaceLines(path, 2, 2, "new := 2", true)
	require.NoError(t, err)
	assert.Contains(t, res.Modified, "\tnew := 2")
}

func TestReplaceLines_OutOfBounds_ReturnsValidationError(t *testing.T) {
	path := writeTemp(t, "one\ntwo\n")
	e := NewEditor()

	_, err := e.ReplaceLines(path, 5, 6, "x", false)
	require.Error(t, err)
	var ee *engerrors.EngineError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, engerrors.CodeValidationError, ee.Code)
}

func TestReplaceLines_StartGreaterThanEnd_ReturnsValidationError(t *testing.T) {
	path := writeTemp(t, "one\ntwo\nthree\n")
	e := NewEditor()

	_, err := e.ReplaceLines(path, 3, 2, "x", false)
	require.Error(t, err)
}

func TestDeleteLines_RemovesRangeAndPreservesTrailingSeparator(t *testing.T) {
	path := writeTemp(t, "a\nb\nc\nd\n")
	e := NewEditor()

	res, err := e.DeleteLines(path, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Deleted)
	assert.Equal(t, "a\nd\n", res.Modified)
}

func TestDeleteLines_NoTrailingSeparator_Preserved(t *testing.T) {
	path := writeTemp(t, "a\nb\nc")
	e := NewEditor()

	res, err := e.DeleteLines(path, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, "a\nc", res.Modified)
}

func TestCreateFile_Succeeds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "new.go")
	e := NewEditor()

	written, err := e.CreateFile(path, "package x\n")
	require.NoError(t, err)
	assert.Equal(t, "package x\n", written)

	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "package x\n", string(onDisk))
}

func TestCreateFile_AlreadyExists_ReturnsTargetExists(t *testing.T) {
	path := writeTemp(t, "existing\n")
	e := NewEditor()

	_, err := e.CreateFile(path, "new content\n")
	require.Error(t, err)
	var ee *engerrors.EngineError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, engerrors.CodeTargetExists, ee.Code)
}

func TestApplyByteEditsToContent_SingleEdit(t *testing.T) {
	out, err := ApplyByteEditsToContent("hello world", []ByteEdit{{Start: 6, End: 11, Replacement: "there"}})
	require.NoError(t, err)
	assert.Equal(t, "hello there", out)
}

func TestApplyByteEditsToContent_MultipleEditsDescendingOrder(t *testing.T) {
	// "foo bar baz" -> rename foo->FOO and baz->BAZ, offsets computed
	// against the original string, independent of application order.
	content := "foo bar baz"
	edits := []ByteEdit{
		{Start: 0, End: 3, Replacement: "FOO"},
		{Start: 8, End: 11, Replacement: "BAZ"},
	}
	out, err := ApplyByteEditsToContent(content, edits)
	require.NoError(t, err)
	assert.Equal(t, "FOO bar BAZ", out)
}

func TestApplyByteEditsToContent_OutOfRange_ReturnsValidationError(t *testing.T) {
	_, err := ApplyByteEditsToContent("short", []ByteEdit{{Start: 0, End: 100, Replacement: "x"}})
	require.Error(t, err)
	var ee *engerrors.EngineError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, engerrors.CodeValidationError, ee.Code)
}

func TestApplyByteEdits_WritesToDisk(t *testing.T) {
	path := writeTemp(t, "foo bar")
	e := NewEditor()

	out, err := e.ApplyByteEdits(path, []ByteEdit{{Start: 0, End: 3, Replacement: "baz"}})
	require.NoError(t, err)
	assert.Equal(t, "baz bar", out)

	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "baz bar", string(onDisk))
}

// TestConcurrentEditsToSamePath exercises the per-path mutex registry: many
// goroutines appending via ReplaceLines to the same file must not corrupt
// the line count each sees, since withLock serializes the whole
// read-modify-write cycle.
func TestConcurrentEditsToSamePath(t *testing.T) {
	path := writeTemp(t, "line1\n")
	e := NewEditor()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = e.ReplaceLines(path, 1, 1, "line1", false)
		}()
	}
	wg.Wait()

	rr, err := e.ReadWithEncoding(path)
	require.NoError(t, err)
	assert.Len(t, rr.Lines, 1, "concurrent same-content replaces must not corrupt the file")
}

func TestConcurrentEditsToDifferentPaths_NoCrossContamination(t *testing.T) {
	e := NewEditor()
	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.txt")
	pathB := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(pathA, []byte("a1\n"), 0o644))
	require.NoError(t, os.WriteFile(pathB, []byte("b1\n"), 0o644))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = e.ReplaceLines(pathA, 1, 1, "A1", false)
	}()
	go func() {
		defer wg.Done()
		_, _ = e.ReplaceLines(pathB, 1, 1, "B1", false)
	}()
	wg.Wait()

	rrA, err := e.ReadWithEncoding(pathA)
	require.NoError(t, err)
	assert.Equal(t, "A1\n", rrA.Raw)

	rrB, err := e.ReadWithEncoding(pathB)
	require.NoError(t, err)
	assert.Equal(t, "B1\n", rrB.Raw)
}
