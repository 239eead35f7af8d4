package epub

// Metadata holds the Dublin Core metadata extracted from the OPF file.
type Metadata struct {
	// Version is the ePub specification version (e.g., "2.0", "3.0").
	Version string

	// Titles contains all dc:title values. The first entry is the primary title.
	Titles []string

	// Authors contains all dc:creator entries with their roles and file-as values.
	Authors []Author

	// Language contains all dc:language values (BCP 47 tags, e.g., "en", "de").
	Language []string

	// Identifiers contains all dc:identifier entries (ISBN, UUID, URI, etc.).
	Identifiers []Identifier

	// Publisher is the dc:publisher value.
	Publisher string

	// Date is the dc:date value (publication date as raw string).
	Date string

	// Description is the dc:description value.
	Description string
}

// Author represents a dc:creator entry with optional file-as and role attributes.
type Author struct {
	Name   string
	FileAs string
	Role   string
}

// Identifier represents a dc:identifier entry.
type Identifier struct {
	Value  string
	Scheme string
	ID     string
}

// TOCItem represents a single entry in the table of contents.
type TOCItem struct {
	// Title is the display text of the TOC entry.
	Title string

	// Href is the ZIP-internal content path, possibly with a fragment.
	Href string

	// Children contains nested TOC entries under this item.
	Children []TOCItem

	// SpineIndex is the index of the spine document this entry points to,
	// or -1 when the entry does not resolve to a spine document.
	SpineIndex int
}

// Chunk is a reference to one spine document of the book: a chapter's
// marked-up source plus its identity. The content is read lazily and is
// never cached by the Chunk itself.
type Chunk struct {
	// Name is the ZIP-internal path of the document (e.g., "OEBPS/ch01.xhtml").
	Name string

	// ID is the manifest item ID.
	ID string

	// Title is the TOC title of the document, empty if the TOC does not name it.
	Title string

	// MediaType is the manifest media-type (usually application/xhtml+xml).
	MediaType string

	// Linear is false for spine items marked linear="no".
	Linear bool

	files fileReader
}

// fileReader resolves ZIP-internal paths to bytes. It is implemented by Book.
type fileReader interface {
	ReadFile(name string) ([]byte, error)
}

// Content reads the chunk's raw bytes from the archive with any leading
// UTF-8 BOM removed.
func (c Chunk) Content() ([]byte, error) {
	if c.files == nil {
		return nil, ErrInvalidChunk
	}
	data, err := c.files.ReadFile(c.Name)
	if err != nil {
		return nil, err
	}
	return stripBOM(data), nil
}

// spineItem represents an entry in the OPF <spine> element.
type spineItem struct {
	IDRef     string
	ID        string
	Href      string
	MediaType string
	Linear    bool
}

// manifestItem represents an entry in the OPF <manifest> element.
type manifestItem struct {
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr"`
}
