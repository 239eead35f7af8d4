package epub

import (
	"archive/zip"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
)

// expectedMimetype is the required content of the "mimetype" file in a valid ePub.
const expectedMimetype = "application/epub+zip"

// Book is an opened ePub archive: the package reader that the pagination
// layers pull chapter bytes, stylesheets and images from.
//
// A Book is safe for concurrent reads once opened; it holds no mutable state
// after initBook returns.
type Book struct {
	zip          *zip.Reader
	zipExact     map[string]*zip.File
	zipLower     map[string]*zip.File
	closer       io.Closer
	opfPath      string
	opfDir       string
	opf          *opfPackage
	manifestByID map[string]*manifestItem
	spine        []spineItem
	metadata     Metadata
	toc          []TOCItem
	chunks       []Chunk
	warnings     []string
}

// Open opens an ePub file at the given path.
// The caller must call Close when done reading from the book.
func Open(path string) (*Book, error) {
	zrc, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("epub: open %s: %w", path, err)
	}

	b, err := initBook(&zrc.Reader, zrc)
	if err != nil {
		zrc.Close()
		return nil, err
	}
	return b, nil
}

// NewReader creates a Book from an io.ReaderAt with the given size.
// The caller is responsible for the lifetime of r.
func NewReader(r io.ReaderAt, size int64) (*Book, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("epub: open zip: %w", err)
	}
	return initBook(zr, nil)
}

// initBook indexes the archive, locates and parses the package document,
// rejects DRM and lays out the spine as chunks.
func initBook(zr *zip.Reader, closer io.Closer) (*Book, error) {
	b := &Book{
		zip:    zr,
		closer: closer,
	}

	// Index entries by exact and lowercased name.
	b.buildZipIndex()

	// A bad mimetype entry only produces a warning.
	b.validateMimetype()

	// container.xml names the OPF.
	opfPath, err := parseContainer(zr)
	if err != nil {
		return nil, err
	}
	b.opfPath = opfPath
	b.opfDir = path.Dir(opfPath)

	// Encrypted content is fatal; obfuscated fonts are not.
	fontObfuscation, err := checkDRM(zr)
	if err != nil {
		return nil, err
	}
	if fontObfuscation {
		b.warnings = append(b.warnings, "font obfuscation detected; obfuscated fonts may not render correctly")
	}

	// Read and parse the OPF.
	opfFile := b.findFile(opfPath)
	if opfFile == nil {
		return nil, fmt.Errorf("epub: OPF file not found in archive: %s: %w", opfPath, ErrInvalidEPub)
	}
	opfData, err := readZipFile(opfFile)
	if err != nil {
		return nil, fmt.Errorf("epub: read OPF file: %w", err)
	}

	pkg, err := parseOPF(opfData)
	if err != nil {
		return nil, err
	}
	b.opf = pkg

	// Manifest, spine and metadata.
	b.manifestByID = buildManifestMap(pkg.Manifest.Items)
	b.spine = buildSpine(pkg, b.manifestByID)
	b.metadata = extractMetadata(pkg)

	// A missing or broken TOC is not fatal; chunks simply carry no titles.
	b.parseTOC()

	// Chunks need the TOC for their titles, so they come last.
	b.buildChunks()

	return b, nil
}

// validateMimetype checks that the first ZIP entry is named "mimetype" and
// contains "application/epub+zip". Deviations are recorded as warnings.
func (b *Book) validateMimetype() {
	if len(b.zip.File) == 0 {
		b.warnings = append(b.warnings, "empty ZIP archive; mimetype entry missing")
		return
	}

	first := b.zip.File[0]
	if first.Name != "mimetype" {
		b.warnings = append(b.warnings, "first ZIP entry is not \"mimetype\"")
		return
	}

	data, err := readZipFile(first)
	if err != nil {
		b.warnings = append(b.warnings, fmt.Sprintf("cannot read mimetype entry: %v", err))
		return
	}
	if string(data) != expectedMimetype {
		b.warnings = append(b.warnings, fmt.Sprintf("unexpected mimetype: %q", string(data)))
	}
}

// Close releases resources held by the Book. Close is idempotent.
func (b *Book) Close() error {
	if b.closer != nil {
		err := b.closer.Close()
		b.closer = nil
		return err
	}
	return nil
}

// ReadFile reads a file from the archive by its ZIP-internal path. The lookup
// falls back to a case-insensitive match, which real-world ePubs need more
// often than one would hope.
func (b *Book) ReadFile(name string) ([]byte, error) {
	f := b.findFile(name)
	if f == nil {
		return nil, fmt.Errorf("epub: %s: %w", name, ErrFileNotFound)
	}
	return readZipFile(f)
}

// ReadByID reads the manifest item with the given ID.
func (b *Book) ReadByID(id string) ([]byte, error) {
	item, ok := b.manifestByID[id]
	if !ok {
		return nil, fmt.Errorf("epub: manifest id %q: %w", id, ErrFileNotFound)
	}
	return b.ReadFile(b.resolveOPFPath(item.Href))
}

// Chunks returns the spine documents in reading order.
func (b *Book) Chunks() []Chunk {
	return append([]Chunk(nil), b.chunks...)
}

// Metadata returns the extracted metadata from the ePub.
func (b *Book) Metadata() Metadata {
	out := b.metadata
	out.Titles = append([]string(nil), b.metadata.Titles...)
	out.Authors = append([]Author(nil), b.metadata.Authors...)
	out.Language = append([]string(nil), b.metadata.Language...)
	out.Identifiers = append([]Identifier(nil), b.metadata.Identifiers...)
	return out
}

// Title returns the primary title, or an empty string.
func (b *Book) Title() string {
	if len(b.metadata.Titles) == 0 {
		return ""
	}
	return b.metadata.Titles[0]
}

// Author returns the first creator's display name, or an empty string.
func (b *Book) Author() string {
	if len(b.metadata.Authors) == 0 {
		return ""
	}
	return b.metadata.Authors[0].Name
}

// Language returns the primary dc:language, or an empty string.
func (b *Book) Language() string {
	if len(b.metadata.Language) == 0 {
		return ""
	}
	return b.metadata.Language[0]
}

// Warnings returns the non-fatal problems found while opening the book.
func (b *Book) Warnings() []string {
	return append([]string(nil), b.warnings...)
}

// TOC returns the table of contents as a tree of TOCItem.
func (b *Book) TOC() []TOCItem {
	return copyTOCItems(b.toc)
}

// buildChunks turns the spine into chunks, skipping itemrefs with no
// manifest entry.
func (b *Book) buildChunks() {
	titles := buildTOCTitleMap(b.toc)
	b.chunks = make([]Chunk, 0, len(b.spine))
	for _, si := range b.spine {
		if si.Href == "" {
			b.warnings = append(b.warnings, fmt.Sprintf("spine itemref %q has no manifest entry", si.IDRef))
			continue
		}
		name := b.resolveOPFPath(si.Href)
		b.chunks = append(b.chunks, Chunk{
			Name:      name,
			ID:        si.ID,
			Title:     titles[name],
			MediaType: si.MediaType,
			Linear:    si.Linear,
			files:     b,
		})
	}
}

// buildZipIndex maps entry names for findFile. Archives with duplicate
// names keep the first entry.
func (b *Book) buildZipIndex() {
	b.zipExact = make(map[string]*zip.File, len(b.zip.File))
	b.zipLower = make(map[string]*zip.File, len(b.zip.File))
	for _, f := range b.zip.File {
		if _, exists := b.zipExact[f.Name]; !exists {
			b.zipExact[f.Name] = f // first wins
		}
		// Books often disagree with their own manifest about case.
		lower := strings.ToLower(f.Name)
		if _, exists := b.zipLower[lower]; !exists {
			b.zipLower[lower] = f
		}
	}
}

// findFile tries an exact match first, then a case-insensitive one.
func (b *Book) findFile(name string) *zip.File {
	if f, ok := b.zipExact[name]; ok {
		return f
	}
	if f, ok := b.zipLower[strings.ToLower(name)]; ok {
		return f
	}
	return nil
}

// resolveOPFPath resolves a manifest href relative to the OPF directory.
// Hrefs are URL-encoded in the OPF; archive names are not.
func (b *Book) resolveOPFPath(href string) string {
	if href == "" {
		return ""
	}
	if decoded, err := url.PathUnescape(href); err == nil {
		href = decoded
	}
	if b.opfDir == "." {
		return path.Clean(href)
	}
	return path.Join(b.opfDir, href)
}

// buildTOCTitleMap flattens the TOC tree and maps file path (without
// fragment) to title. The first matching entry wins.
func buildTOCTitleMap(items []TOCItem) map[string]string {
	m := make(map[string]string)
	var flat []*TOCItem
	flattenTOCItems(&flat, items)
	for _, item := range flat {
		if item.Href == "" {
			continue
		}
		filePath := hrefWithoutFragment(item.Href)
		if _, exists := m[filePath]; !exists {
			m[filePath] = item.Title
		}
	}
	return m
}

func copyTOCItems(in []TOCItem) []TOCItem {
	if in == nil {
		return nil
	}
	out := make([]TOCItem, len(in))
	for i := range in {
		out[i] = in[i]
		out[i].Children = copyTOCItems(in[i].Children)
	}
	return out
}
