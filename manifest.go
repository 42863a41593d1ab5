package rmx

import (
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// indexSchemaVersion is the first line of every index blob.
const indexSchemaVersion = "3"

// indexLine is one line of an index blob: hash:type:id:subfiles:size.
// In the root index id is an entry id; in a document index it is a
// component filename.
type indexLine struct {
	Hash     string
	Type     string
	ID       string
	Subfiles int
	Size     int64
}

func parseIndexBlob(data []byte) ([]indexLine, error) {
	lines := strings.Split(string(data), "\n")
	if v := strings.TrimSpace(lines[0]); v != indexSchemaVersion {
		return nil, errors.Errorf("unsupported index schema %q", v)
	}

	var out []indexLine
	for _, line := range lines[1:] {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.Split(line, ":")
		if len(parts) < 5 {
			return nil, errors.Errorf("malformed index line %q", line)
		}
		subfiles, _ := strconv.Atoi(parts[3])
		size, err := strconv.ParseInt(parts[4], 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "index line %q", line)
		}
		out = append(out, indexLine{
			Hash:     parts[0],
			Type:     parts[1],
			ID:       parts[2],
			Subfiles: subfiles,
			Size:     size,
		})
	}
	return out, nil
}

// ManifestFile describes one blob composing a document.
type ManifestFile struct {
	Name string
	Hash string
	Size int64
}

// ContentManifest is the ordered list of blobs composing one document,
// decoded from its document index blob.
type ContentManifest struct {
	DocID string
	Files []ManifestFile
}

func parseManifest(docID string, data []byte) (ContentManifest, error) {
	lines, err := parseIndexBlob(data)
	if err != nil {
		return ContentManifest{}, err
	}

	m := ContentManifest{DocID: docID, Files: make([]ManifestFile, 0, len(lines))}
	for _, l := range lines {
		m.Files = append(m.Files, ManifestFile{Name: l.ID, Hash: l.Hash, Size: l.Size})
	}
	return m, nil
}

// fileBySuffix returns the first component whose name ends in suffix.
func (m ContentManifest) fileBySuffix(suffix string) (ManifestFile, bool) {
	for _, f := range m.Files {
		if strings.HasSuffix(f.Name, suffix) {
			return f, true
		}
	}
	return ManifestFile{}, false
}

// Format classifies how a document exports.
type Format int

const (
	FormatUnknown Format = iota
	FormatPdf
	FormatEpub
	FormatNotebook
)

func (f Format) String() string {
	switch f {
	case FormatPdf:
		return "pdf"
	case FormatEpub:
		return "epub"
	case FormatNotebook:
		return "notebook"
	default:
		return "unknown"
	}
}

// Ext returns the output file extension including the dot, "" for unknown.
func (f Format) Ext() string {
	switch f {
	case FormatPdf:
		return ".pdf"
	case FormatEpub:
		return ".epub"
	case FormatNotebook:
		return ".rmdoc"
	default:
		return ""
	}
}

// Classify picks the export format from manifest filenames alone, never by
// probing blob contents. The first .pdf or .epub component in manifest
// order decides; a document without one but with native notebook content
// exports as an archive.
func (m ContentManifest) Classify() Format {
	for _, f := range m.Files {
		switch strings.ToLower(filepath.Ext(f.Name)) {
		case ".pdf":
			return FormatPdf
		case ".epub":
			return FormatEpub
		}
	}
	if _, ok := m.fileBySuffix(".content"); ok {
		return FormatNotebook
	}
	return FormatUnknown
}

// contentCandidates returns the components that could serve as the primary
// content blob for f, in manifest order.
func (m ContentManifest) contentCandidates(f Format) []ManifestFile {
	var out []ManifestFile
	for _, mf := range m.Files {
		if strings.ToLower(filepath.Ext(mf.Name)) == f.Ext() {
			out = append(out, mf)
		}
	}
	return out
}

// entryMetadata is the JSON metadata blob attached to every entry.
type entryMetadata struct {
	VisibleName  string `json:"visibleName"`
	Type         string `json:"type"`
	Parent       string `json:"parent"`
	LastModified string `json:"lastModified"`
	Version      int    `json:"version"`
	Pinned       bool   `json:"pinned"`
	Deleted      bool   `json:"deleted"`
}

// modifiedTime decodes the ms-epoch lastModified string, zero when absent
// or malformed.
func (m entryMetadata) modifiedTime() time.Time {
	ms, err := strconv.ParseInt(m.LastModified, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
