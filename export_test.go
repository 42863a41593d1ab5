package rmx

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func syncedClient(t *testing.T, store *fakeStore) *Client {
	t.Helper()
	client := newTestClient(t, store)
	_, err := client.Sync(context.Background())
	require.NoError(t, err)
	return client
}

func TestExportPdfByteIdentical(t *testing.T) {
	pdf := []byte("%PDF-1.7 fake body")
	store := newFakeStore()
	store.install(t, "root-1", 1, []fakeDoc{
		{id: "doc-1", parent: "", name: "Paper", kind: KindDocument,
			files: map[string][]byte{
				"doc-1.pdf":     pdf,
				"doc-1.content": []byte("{}"),
			}},
	})

	client := syncedClient(t, store)
	out := t.TempDir()

	exported, err := client.Export(context.Background(), "doc-1", filepath.Join(out, "Paper"))
	require.NoError(t, err)
	require.Equal(t, FormatPdf, exported.Format)
	require.Equal(t, filepath.Join(out, "Paper.pdf"), exported.Path)
	require.Equal(t, int64(len(pdf)), exported.Size)

	got, err := os.ReadFile(exported.Path)
	require.NoError(t, err)
	require.Equal(t, pdf, got)
}

func TestExportEpub(t *testing.T) {
	epub := []byte("PK epub payload")
	store := newFakeStore()
	store.install(t, "root-1", 1, []fakeDoc{
		{id: "doc-1", parent: "", name: "Book", kind: KindDocument,
			files: map[string][]byte{"doc-1.epub": epub}},
	})

	client := syncedClient(t, store)
	out := t.TempDir()

	exported, err := client.Export(context.Background(), "doc-1", filepath.Join(out, "Book"))
	require.NoError(t, err)
	require.Equal(t, FormatEpub, exported.Format)

	got, err := os.ReadFile(filepath.Join(out, "Book.epub"))
	require.NoError(t, err)
	require.Equal(t, epub, got)
}

func TestExportNotebookArchive(t *testing.T) {
	components := map[string][]byte{
		"doc-1.content":  []byte(`{"pages":[]}`),
		"doc-1.pagedata": []byte("Blank\n"),
	}
	store := newFakeStore()
	store.install(t, "root-1", 1, []fakeDoc{
		{id: "doc-1", parent: "", name: "Sketch", kind: KindDocument, files: components},
	})

	client := syncedClient(t, store)
	out := t.TempDir()

	exported, err := client.Export(context.Background(), "doc-1", filepath.Join(out, "Sketch"))
	require.NoError(t, err)
	require.Equal(t, FormatNotebook, exported.Format)
	require.Equal(t, 3, exported.Blobs) // components plus metadata

	// The archive is a plain zip readable by any tool, holding every
	// manifest component under its original name, no path prefix.
	zr, err := zip.OpenReader(filepath.Join(out, "Sketch.rmdoc"))
	require.NoError(t, err)
	defer zr.Close()

	got := make(map[string][]byte)
	for _, f := range zr.File {
		require.Equal(t, zip.Store, f.Method)
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		got[f.Name] = data
	}

	require.Len(t, got, 3)
	require.Contains(t, got, "doc-1.metadata")
	for name, want := range components {
		require.Equal(t, want, got[name])
	}
}

func TestExportUnsupportedFormat(t *testing.T) {
	store := newFakeStore()
	store.install(t, "root-1", 1, []fakeDoc{
		{id: "doc-1", parent: "", name: "Odd", kind: KindDocument,
			files: map[string][]byte{"doc-1.pagedata": []byte("x")}},
	})

	client := syncedClient(t, store)
	_, err := client.Export(context.Background(), "doc-1", filepath.Join(t.TempDir(), "Odd"))
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestExportCollectionRefused(t *testing.T) {
	store := newFakeStore()
	store.install(t, "root-1", 1, []fakeDoc{
		{id: "f1", parent: "", name: "Folder", kind: KindCollection},
	})

	client := syncedClient(t, store)
	_, err := client.Export(context.Background(), "f1", filepath.Join(t.TempDir(), "Folder"))
	require.ErrorIs(t, err, ErrIsCollection)
}

func TestExportUnknownDoc(t *testing.T) {
	store := newFakeStore()
	store.install(t, "root-1", 1, nil)

	client := syncedClient(t, store)
	_, err := client.Export(context.Background(), "nope", filepath.Join(t.TempDir(), "x"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestExportBeforeSync(t *testing.T) {
	client := newTestClient(t, newFakeStore())
	_, err := client.Export(context.Background(), "doc-1", "x")
	require.ErrorIs(t, err, ErrNotSynced)
}

func TestExportOverwriteAtomic(t *testing.T) {
	store := newFakeStore()
	store.install(t, "root-1", 1, []fakeDoc{
		{id: "doc-1", parent: "", name: "Paper", kind: KindDocument,
			files: map[string][]byte{"doc-1.pdf": []byte("first")}},
	})

	client := syncedClient(t, store)
	out := t.TempDir()
	target := filepath.Join(out, "Paper")

	_, err := client.Export(context.Background(), "doc-1", target)
	require.NoError(t, err)

	store.mu.Lock()
	store.blobs["doc-1.doc-1.pdf.blobhash"] = []byte("second, longer than before")
	store.mu.Unlock()

	_, err = client.Export(context.Background(), "doc-1", target)
	require.NoError(t, err)

	got, err := os.ReadFile(target + ".pdf")
	require.NoError(t, err)
	require.Equal(t, []byte("second, longer than before"), got)

	// No temp files survive a completed write.
	dirents, err := os.ReadDir(out)
	require.NoError(t, err)
	require.Len(t, dirents, 1)
	require.Equal(t, "Paper.pdf", dirents[0].Name())
}

func TestExportFailureLeavesPreviousFile(t *testing.T) {
	store := newFakeStore()
	store.install(t, "root-1", 1, []fakeDoc{
		{id: "doc-1", parent: "", name: "Paper", kind: KindDocument,
			files: map[string][]byte{"doc-1.pdf": []byte("original")}},
	})

	client := syncedClient(t, store)
	target := filepath.Join(t.TempDir(), "Paper")

	_, err := client.Export(context.Background(), "doc-1", target)
	require.NoError(t, err)

	store.fail["doc-1.doc-1.pdf.blobhash"] = errors.New("flaky backend")
	_, err = client.Export(context.Background(), "doc-1", target)
	require.Error(t, err)

	got, err := os.ReadFile(target + ".pdf")
	require.NoError(t, err)
	require.Equal(t, []byte("original"), got)
}

func TestExportTreeRecursive(t *testing.T) {
	store := newFakeStore()
	store.install(t, "root-1", 1, []fakeDoc{
		{id: "f1", parent: "", name: "Docs", kind: KindCollection},
		{id: "f2", parent: "f1", name: "Sub", kind: KindCollection},
		{id: "doc-inner", parent: "f2", name: "Inner", kind: KindDocument,
			files: map[string][]byte{"doc-inner.pdf": []byte("inner pdf")}},
		{id: "doc-n1", parent: "f1", name: "Notes", kind: KindDocument,
			files: map[string][]byte{"doc-n1.pdf": []byte("notes pdf")}},
		{id: "doc-n2", parent: "f1", name: "Notes", kind: KindDocument,
			files: map[string][]byte{"doc-n2.content": []byte("{}")}},
		{id: "doc-bad", parent: "f1", name: "Broken", kind: KindDocument,
			files: map[string][]byte{"doc-bad.pdf": []byte("never fetched")}},
	})
	// Manifest fetch for the broken doc fails; the walk must continue.
	store.fail["doc-bad.schema.root-1"] = errors.New("backend error")

	client := syncedClient(t, store)
	folder, err := client.Lookup("/Docs")
	require.NoError(t, err)

	out := t.TempDir()
	report, err := client.ExportTree(context.Background(), folder, out)
	require.NoError(t, err)

	require.Equal(t, 3, report.Completed())
	require.Equal(t, 1, report.FailedCount())
	require.Equal(t, "doc-bad", report.Failed[0].DocID)

	// Duplicate sibling names get deterministic numeric suffixes, ordered
	// by id for equal names.
	require.FileExists(t, filepath.Join(out, "Notes.pdf"))
	require.FileExists(t, filepath.Join(out, "Notes-1.rmdoc"))
	require.FileExists(t, filepath.Join(out, "Sub", "Inner.pdf"))
	require.NoFileExists(t, filepath.Join(out, "Broken.pdf"))
}

func TestExportTreeSingleDocument(t *testing.T) {
	store := newFakeStore()
	store.install(t, "root-1", 1, []fakeDoc{
		{id: "doc-1", parent: "", name: "Solo", kind: KindDocument,
			files: map[string][]byte{"doc-1.pdf": []byte("solo")}},
	})

	client := syncedClient(t, store)
	node, err := client.Lookup("/Solo")
	require.NoError(t, err)

	out := t.TempDir()
	report, err := client.ExportTree(context.Background(), node, out)
	require.NoError(t, err)
	require.Equal(t, 1, report.Completed())
	require.FileExists(t, filepath.Join(out, "Solo.pdf"))
}

func TestExportTreeCancellation(t *testing.T) {
	store := newFakeStore()
	store.install(t, "root-1", 1, []fakeDoc{
		{id: "f1", parent: "", name: "Docs", kind: KindCollection},
		{id: "doc-1", parent: "f1", name: "One", kind: KindDocument,
			files: map[string][]byte{"doc-1.pdf": []byte("one")}},
	})

	client := syncedClient(t, store)
	folder, err := client.Lookup("/Docs")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := client.ExportTree(ctx, folder, t.TempDir())
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	require.Equal(t, 0, report.Completed())
}

func TestNameSetClaim(t *testing.T) {
	names := make(nameSet)
	require.Equal(t, "Notes", names.claim("Notes"))
	require.Equal(t, "Notes-1", names.claim("Notes"))
	require.Equal(t, "Notes-2", names.claim("Notes"))

	// An explicit sibling already holding the suffixed name is never
	// clobbered.
	names = make(nameSet)
	require.Equal(t, "Notes-1", names.claim("Notes-1"))
	require.Equal(t, "Notes", names.claim("Notes"))
	require.Equal(t, "Notes-2", names.claim("Notes"))
}

func TestWriteFileAtomicCreatesParents(t *testing.T) {
	out := filepath.Join(t.TempDir(), "a", "b", "file.txt")
	err := writeFileAtomic(out, func(w io.Writer) error {
		_, werr := io.Copy(w, strings.NewReader("hello"))
		return werr
	})
	require.NoError(t, err)

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, "hello", string(got))
}
