package rmx

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ExportedFile describes one produced output artifact.
type ExportedFile struct {
	DocID  string
	Path   string
	Format Format
	Blobs  int
	Size   int64
}

// ExportFailure records one document that could not be exported.
type ExportFailure struct {
	DocID string
	Path  string
	Err   error
}

// ExportReport aggregates a recursive export. Partial completion is a
// valid terminal state; completed exports are never rolled back.
type ExportReport struct {
	Exported []ExportedFile
	Failed   []ExportFailure
}

// Completed returns the number of successfully exported documents.
func (r *ExportReport) Completed() int { return len(r.Exported) }

// FailedCount returns the number of documents that failed to export.
func (r *ExportReport) FailedCount() int { return len(r.Failed) }

// Export materializes one document as a single file. target is the
// destination path without extension; the classified format supplies it.
// The write is atomic: a re-export either fully replaces the previous
// file or leaves it untouched.
func (c *Client) Export(ctx context.Context, docID, target string) (*ExportedFile, error) {
	c.mu.Lock()
	h := c.hier
	c.mu.Unlock()
	if h == nil {
		return nil, ErrNotSynced
	}

	node, ok := h.NodeByID(docID)
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "document %s", docID)
	}
	return c.exportNode(ctx, node, target)
}

func (c *Client) exportNode(ctx context.Context, node *Node, target string) (*ExportedFile, error) {
	if node.IsDir() {
		return nil, errors.Wrap(ErrIsCollection, node.Name())
	}

	schemaBlob, err := c.remote.GetBlob(ctx, node.Entry.Hash)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch manifest for %s", node.Entry.ID)
	}
	manifest, err := parseManifest(node.Entry.ID, schemaBlob)
	if err != nil {
		return nil, errors.Wrapf(err, "decode manifest for %s", node.Entry.ID)
	}

	switch format := manifest.Classify(); format {
	case FormatPdf, FormatEpub:
		return c.exportFlat(ctx, node, manifest, format, target)
	case FormatNotebook:
		return c.exportArchive(ctx, node, manifest, target)
	default:
		return nil, errors.Wrapf(ErrUnsupportedFormat, "document %s (%s)", node.Entry.ID, node.Name())
	}
}

// exportFlat streams the single primary content blob to target. When the
// manifest lists more than one candidate the first in manifest order wins;
// the ambiguity is logged, not fatal.
func (c *Client) exportFlat(ctx context.Context, node *Node, manifest ContentManifest, format Format, target string) (*ExportedFile, error) {
	candidates := manifest.contentCandidates(format)
	if len(candidates) > 1 {
		log.WithFields(log.Fields{"doc": node.Entry.ID, "candidates": len(candidates)}).
			Warn("multiple content blobs, using first by manifest order")
	}
	primary := candidates[0]

	data, err := c.remote.GetBlob(ctx, primary.Hash)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch content for %s", node.Entry.ID)
	}

	out := target + format.Ext()
	if err := writeFileAtomic(out, func(w io.Writer) error {
		_, werr := w.Write(data)
		return werr
	}); err != nil {
		return nil, err
	}

	return &ExportedFile{
		DocID:  node.Entry.ID,
		Path:   out,
		Format: format,
		Blobs:  1,
		Size:   int64(len(data)),
	}, nil
}

// exportArchive assembles every manifest blob into a plain zip container
// at target, each component under its original filename with no path
// prefix, in manifest order.
func (c *Client) exportArchive(ctx context.Context, node *Node, manifest ContentManifest, target string) (*ExportedFile, error) {
	// Fetch everything before writing so a half-fetched document never
	// produces an archive with missing entries.
	blobs := make([][]byte, len(manifest.Files))
	var total int64
	for i, f := range manifest.Files {
		data, err := c.remote.GetBlob(ctx, f.Hash)
		if err != nil {
			return nil, errors.Wrapf(err, "fetch component %s", f.Name)
		}
		blobs[i] = data
		total += int64(len(data))
	}

	out := target + FormatNotebook.Ext()
	err := writeFileAtomic(out, func(w io.Writer) error {
		zw := zip.NewWriter(w)
		for i, f := range manifest.Files {
			fw, err := zw.CreateHeader(&zip.FileHeader{Name: f.Name, Method: zip.Store})
			if err != nil {
				return errors.Wrapf(err, "archive entry %s", f.Name)
			}
			if _, err := fw.Write(blobs[i]); err != nil {
				return errors.Wrapf(err, "archive entry %s", f.Name)
			}
		}
		return zw.Close()
	})
	if err != nil {
		return nil, err
	}

	return &ExportedFile{
		DocID:  node.Entry.ID,
		Path:   out,
		Format: FormatNotebook,
		Blobs:  len(manifest.Files),
		Size:   total,
	}, nil
}

// ExportTree exports every document under node into dir, mirroring
// collection names as directories. A failure exporting one document is
// recorded in the report and does not stop the walk; cancellation returns
// the partial report alongside the context error.
func (c *Client) ExportTree(ctx context.Context, node *Node, dir string) (*ExportReport, error) {
	if node == nil {
		return nil, ErrNotFound
	}
	c.mu.Lock()
	h := c.hier
	c.mu.Unlock()
	if h == nil {
		return nil, ErrNotSynced
	}

	report := &ExportReport{}
	if !node.IsDir() {
		c.exportDoc(ctx, node, dir, node.Name(), report)
	} else {
		c.walkExport(ctx, node, dir, report)
	}

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

func (c *Client) walkExport(ctx context.Context, node *Node, dir string, report *ExportReport) {
	names := make(nameSet)
	for _, child := range node.Children {
		if ctx.Err() != nil {
			return
		}

		base := names.claim(child.Name())
		if child.IsDir() {
			sub := filepath.Join(dir, base)
			if err := os.MkdirAll(sub, 0755); err != nil {
				report.Failed = append(report.Failed, ExportFailure{
					DocID: child.Entry.ID,
					Path:  sub,
					Err:   errors.Wrap(err, "create directory"),
				})
				continue
			}
			c.walkExport(ctx, child, sub, report)
		} else {
			c.exportDoc(ctx, child, dir, base, report)
		}
	}
}

func (c *Client) exportDoc(ctx context.Context, node *Node, dir, base string, report *ExportReport) {
	target := filepath.Join(dir, base)
	exported, err := c.exportNode(ctx, node, target)
	if err != nil {
		report.Failed = append(report.Failed, ExportFailure{DocID: node.Entry.ID, Path: target, Err: err})
		log.WithError(err).WithField("doc", node.Entry.ID).Warn("export failed")
		return
	}
	report.Exported = append(report.Exported, *exported)
	log.WithFields(log.Fields{"path": exported.Path, "format": exported.Format.String()}).Info("exported")
}

// nameSet disambiguates sibling output names deterministically by
// traversal order: the first use keeps the plain name, later uses get a
// numeric suffix before the extension.
type nameSet map[string]bool

func (s nameSet) claim(name string) string {
	if !s[name] {
		s[name] = true
		return name
	}
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s-%d", name, i)
		if !s[candidate] {
			s[candidate] = true
			return candidate
		}
	}
}

// writeFileAtomic writes through a uniquely named temp file in the
// target's directory and renames it into place, so an interrupted write
// never appears at the final name.
func writeFileAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "create output dir %s", dir)
	}

	tmp := filepath.Join(dir, "."+filepath.Base(path)+"."+uuid.NewString()+".tmp")
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrapf(err, "create temp file for %s", path)
	}

	if err := write(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Wrapf(err, "write %s", path)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "write %s", path)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "replace %s", path)
	}
	return nil
}
