package epub

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestOpen_Valid(t *testing.T) {
	fp := buildTestEPubFile(t, testEPubFiles())

	book, err := Open(fp)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer book.Close()

	if book.opfPath != "OEBPS/content.opf" {
		t.Errorf("opfPath = %q, want %q", book.opfPath, "OEBPS/content.opf")
	}
	if book.opfDir != "OEBPS" {
		t.Errorf("opfDir = %q, want %q", book.opfDir, "OEBPS")
	}
	if err := book.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := book.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestNewReader_NoCloser(t *testing.T) {
	book := openTestBook(t, testEPubFiles())
	if book.closer != nil {
		t.Error("NewReader should not set closer")
	}
}

func TestOpen_MimetypeWarnings(t *testing.T) {
	tests := []struct {
		name   string
		modify func(map[string]string)
	}{
		{"missing", func(f map[string]string) { delete(f, "mimetype") }},
		{"wrong content", func(f map[string]string) { f["mimetype"] = "text/plain" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files := testEPubFiles()
			tt.modify(files)
			book := openTestBook(t, files)
			found := false
			for _, w := range book.Warnings() {
				if strings.Contains(w, "mimetype") {
					found = true
				}
			}
			if !found {
				t.Errorf("Warnings() = %v, want a mimetype warning", book.Warnings())
			}
		})
	}
}

func TestChunks_SpineOrder(t *testing.T) {
	book := openTestBook(t, testEPubFiles())
	chunks := book.Chunks()

	want := []struct {
		name, id, title string
		linear          bool
	}{
		{"OEBPS/text/ch1.xhtml", "c1", "Chapter One", true},
		{"OEBPS/text/ch 2.xhtml", "c2", "Chapter Two", false},
	}
	if len(chunks) != len(want) {
		t.Fatalf("len(Chunks()) = %d, want %d", len(chunks), len(want))
	}
	for i, w := range want {
		c := chunks[i]
		if c.Name != w.name || c.ID != w.id || c.Title != w.title || c.Linear != w.linear {
			t.Errorf("chunk[%d] = {%q %q %q %v}, want {%q %q %q %v}",
				i, c.Name, c.ID, c.Title, c.Linear, w.name, w.id, w.title, w.linear)
		}
	}

	// The dangling itemref is skipped with a warning.
	found := false
	for _, w := range book.Warnings() {
		if strings.Contains(w, `"missing"`) {
			found = true
		}
	}
	if !found {
		t.Errorf("Warnings() = %v, want one naming the dangling itemref", book.Warnings())
	}
}

func TestChunk_Content(t *testing.T) {
	book := openTestBook(t, testEPubFiles())
	chunks := book.Chunks()

	data, err := chunks[0].Content()
	if err != nil {
		t.Fatalf("Content() error = %v", err)
	}
	if !bytes.HasPrefix(data, []byte("<html>")) {
		t.Errorf("Content() = %q, want BOM stripped", data)
	}

	var zero Chunk
	if _, err := zero.Content(); !errors.Is(err, ErrInvalidChunk) {
		t.Errorf("zero Chunk Content() error = %v, want ErrInvalidChunk", err)
	}
}

func TestChunks_DefensiveCopy(t *testing.T) {
	book := openTestBook(t, testEPubFiles())
	chunks := book.Chunks()
	chunks[0].Name = "mutated"
	if book.Chunks()[0].Name == "mutated" {
		t.Error("Chunks() returned internal slice")
	}
}

func TestReadFile(t *testing.T) {
	book := openTestBook(t, testEPubFiles())

	if data, err := book.ReadFile("oebps/STYLE.css"); err != nil || string(data) != "p { margin: 0 }" {
		t.Errorf("ReadFile case-insensitive = %q, %v", data, err)
	}
	if _, err := book.ReadFile("OEBPS/nope.css"); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("ReadFile missing error = %v, want ErrFileNotFound", err)
	}
	if data, err := book.ReadByID("css"); err != nil || len(data) == 0 {
		t.Errorf("ReadByID(css) = %q, %v", data, err)
	}
	if _, err := book.ReadByID("nope"); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("ReadByID missing error = %v, want ErrFileNotFound", err)
	}
}

func TestMetadata(t *testing.T) {
	book := openTestBook(t, testEPubFiles())

	if got := book.Title(); got != "The Test Book" {
		t.Errorf("Title() = %q", got)
	}
	if got := book.Author(); got != "Ann Writer" {
		t.Errorf("Author() = %q", got)
	}
	if got := book.Language(); got != "en" {
		t.Errorf("Language() = %q", got)
	}
	md := book.Metadata()
	if md.Version != "2.0" {
		t.Errorf("Version = %q, want 2.0", md.Version)
	}
	if len(md.Authors) != 1 || md.Authors[0].FileAs != "Writer, Ann" || md.Authors[0].Role != "aut" {
		t.Errorf("Authors = %+v", md.Authors)
	}
	if len(md.Identifiers) != 1 || md.Identifiers[0].Scheme != "ISBN" {
		t.Errorf("Identifiers = %+v", md.Identifiers)
	}

	md.Titles[0] = "mutated"
	if book.Title() == "mutated" {
		t.Error("Metadata() returned internal slice")
	}
}

func TestMetadata_EPub3Refines(t *testing.T) {
	opf := &opfPackage{Version: "3.0"}
	opf.Metadata.Titles = []opfDCElement{
		{Value: "Subtitle", ID: "t2"},
		{Value: "Main", ID: "t1"},
	}
	opf.Metadata.Creators = []opfDCElement{{Value: "Bo", ID: "c1"}}
	opf.Metadata.Metas = []opfMeta{
		{Refines: "#t1", Property: "display-seq", Value: "1"},
		{Refines: "#t2", Property: "display-seq", Value: "2"},
		{Refines: "#c1", Property: "file-as", Value: "Bo, X"},
		{Refines: "#c1", Property: "role", Value: "edt"},
	}

	md := extractMetadata(opf)
	if len(md.Titles) != 2 || md.Titles[0] != "Main" {
		t.Errorf("Titles = %v, want Main first", md.Titles)
	}
	if md.Authors[0].FileAs != "Bo, X" || md.Authors[0].Role != "edt" {
		t.Errorf("Authors = %+v", md.Authors)
	}
}

func TestTOC_NCXPlayOrder(t *testing.T) {
	book := openTestBook(t, testEPubFiles())
	toc := book.TOC()

	if len(toc) != 2 {
		t.Fatalf("len(TOC()) = %d, want 2", len(toc))
	}
	if toc[0].Title != "Chapter One" || toc[1].Title != "Chapter Two" {
		t.Errorf("TOC order = %q, %q; want playOrder", toc[0].Title, toc[1].Title)
	}
	if toc[0].Href != "OEBPS/text/ch1.xhtml#start" {
		t.Errorf("Href = %q", toc[0].Href)
	}
	if toc[0].SpineIndex != 0 || toc[1].SpineIndex != 1 {
		t.Errorf("SpineIndex = %d, %d", toc[0].SpineIndex, toc[1].SpineIndex)
	}
	if len(toc[0].Children) != 1 || toc[0].Children[0].Title != "Section" {
		t.Errorf("Children = %+v", toc[0].Children)
	}

	toc[0].Children[0].Title = "mutated"
	if book.TOC()[0].Children[0].Title == "mutated" {
		t.Error("TOC() returned internal tree")
	}
}

func TestSortByPlayOrder_NonNumericKeepsOrder(t *testing.T) {
	points := []ncxNavPoint{
		{ID: "a", PlayOrder: "2"},
		{ID: "b", PlayOrder: "x"},
		{ID: "c", PlayOrder: "1"},
	}
	sortByPlayOrder(points)
	if points[0].ID != "a" || points[1].ID != "b" || points[2].ID != "c" {
		t.Errorf("order = %s%s%s, want abc", points[0].ID, points[1].ID, points[2].ID)
	}
}

func TestTOC_NavDocument(t *testing.T) {
	files := testEPubFiles()
	files["OEBPS/content.opf"] = `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/"><dc:title>Nav</dc:title></metadata>
  <manifest>
    <item id="nav" href="nav.xhtml" media-type="application/xhtml+xml" properties="nav"/>
    <item id="c1" href="text/ch1.xhtml" media-type="application/xhtml+xml"/>
  </manifest>
  <spine><itemref idref="c1"/></spine>
</package>`
	files["OEBPS/nav.xhtml"] = `<html xmlns:epub="http://www.idpf.org/2007/ops"><body>
<nav epub:type="landmarks"><ol><li><a href="text/ch1.xhtml">Skip</a></li></ol></nav>
<nav epub:type="toc"><ol>
  <li><a href="text/ch1.xhtml#x">First</a>
    <ol><li><span>Heading</span></li></ol>
  </li>
</ol></nav>
</body></html>`

	book := openTestBook(t, files)
	toc := book.TOC()
	if len(toc) != 1 || toc[0].Title != "First" || toc[0].Href != "OEBPS/text/ch1.xhtml#x" {
		t.Fatalf("TOC() = %+v", toc)
	}
	if toc[0].Children[0].Title != "Heading" || toc[0].Children[0].SpineIndex != -1 {
		t.Errorf("Children = %+v", toc[0].Children)
	}
	if book.Chunks()[0].Title != "First" {
		t.Errorf("chunk title = %q, want First", book.Chunks()[0].Title)
	}
}

func TestOpen_DRM(t *testing.T) {
	tests := []struct {
		name    string
		files   map[string]string
		wantErr error
		wantObf bool
	}{
		{
			name: "adobe adept",
			files: map[string]string{"META-INF/encryption.xml": `<encryption><EncryptedData>
<EncryptionMethod Algorithm="http://www.w3.org/2001/04/xmlenc#aes128-cbc"/></EncryptedData></encryption>`},
			wantErr: ErrDRMProtected,
		},
		{
			name:    "fairplay",
			files:   map[string]string{"META-INF/sinf.xml": "<sinf/>"},
			wantErr: ErrDRMProtected,
		},
		{
			name:    "unparseable",
			files:   map[string]string{"META-INF/encryption.xml": "<encryption"},
			wantErr: ErrDRMProtected,
		},
		{
			name: "font obfuscation",
			files: map[string]string{"META-INF/encryption.xml": `<encryption><EncryptedData>
<EncryptionMethod Algorithm="http://www.idpf.org/2008/embedding"/></EncryptedData></encryption>`},
			wantObf: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files := testEPubFiles()
			for k, v := range tt.files {
				files[k] = v
			}
			obf, err := checkDRM(buildTestZip(t, files))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("checkDRM() error = %v, want %v", err, tt.wantErr)
			}
			if obf != tt.wantObf {
				t.Errorf("fontObfuscation = %v, want %v", obf, tt.wantObf)
			}
		})
	}
}

func TestParseContainer(t *testing.T) {
	tests := []struct {
		name    string
		files   map[string]string
		want    string
		wantErr error
	}{
		{"normal", map[string]string{"META-INF/container.xml": validContainerXML}, "OEBPS/content.opf", nil},
		{"case insensitive", map[string]string{"meta-inf/CONTAINER.xml": validContainerXML}, "OEBPS/content.opf", nil},
		{"fallback opf", map[string]string{"book/Package.OPF": "<package/>"}, "book/Package.OPF", nil},
		{"no opf", map[string]string{"a.txt": "x"}, "", ErrInvalidEPub},
		{"prefers media type", map[string]string{"META-INF/container.xml": `<container><rootfiles>
<rootfile full-path="a.pdf" media-type="application/pdf"/>
<rootfile full-path="b.opf" media-type="application/oebps-package+xml"/>
</rootfiles></container>`}, "b.opf", nil},
		{"empty rootfiles", map[string]string{"META-INF/container.xml": `<container><rootfiles/></container>`}, "", ErrInvalidEPub},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseContainer(buildTestZip(t, tt.files))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("parseContainer() error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseContainer() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolvePath(t *testing.T) {
	tests := []struct {
		base, href, want string
	}{
		{"OEBPS/text/ch1.xhtml", "../images/a.png", "OEBPS/images/a.png"},
		{"OEBPS/text/ch1.xhtml", "b.png#frag", "OEBPS/text/b.png"},
		{"OEBPS/text/ch1.xhtml", "b%20c.png?x=1", "OEBPS/text/b c.png"},
		{"OEBPS/ch1.xhtml", "../../escape.png", ""},
		{"OEBPS/ch1.xhtml", "/abs.png", ""},
		{"OEBPS/ch1.xhtml", "http://example.com/a.png", ""},
		{"OEBPS/ch1.xhtml", "data:image/png;base64,AAAA", ""},
		{"OEBPS/ch1.xhtml", "#only", ""},
		{"ch1.xhtml", "a.png", "a.png"},
	}
	for _, tt := range tests {
		if got := ResolvePath(tt.base, tt.href); got != tt.want {
			t.Errorf("ResolvePath(%q, %q) = %q, want %q", tt.base, tt.href, got, tt.want)
		}
	}
}

func TestReadZipFileWithLimit(t *testing.T) {
	zr := buildTestZip(t, map[string]string{"big.txt": strings.Repeat("x", 100)})
	if _, err := readZipFileWithLimit(zr.File[0], 99); err == nil {
		t.Error("expected size limit error")
	}
	if data, err := readZipFileWithLimit(zr.File[0], 100); err != nil || len(data) != 100 {
		t.Errorf("readZipFileWithLimit() = %d bytes, %v", len(data), err)
	}
}

func TestNumericEntities(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"a&nbsp;b &amp; &mdash;", "a&#160;b &amp; &#8212;"},
		{"&NBSP;&Eacute;", "&#160;&#201;"},
		{"&lt;x&gt; &apos;", "&lt;x&gt; &apos;"},
		{"&notanentity; &#169;", "&notanentity; &#169;"},
	}
	for _, tt := range tests {
		if got := string(numericEntities([]byte(tt.in))); got != tt.want {
			t.Errorf("numericEntities(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
