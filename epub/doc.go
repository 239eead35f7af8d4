// Package epub reads the package side of an ePub: the ZIP container, the
// OPF manifest and spine, the NCX or nav table of contents, and Dublin Core
// metadata.
//
// It is the archive collaborator of the pagination engine: [Book.ReadFile]
// and [Book.ReadByID] resolve named byte streams, and [Book.Chunks] lists the
// spine documents in reading order, each read lazily through
// [Chunk.Content].
//
//	book, err := epub.Open("book.epub")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer book.Close()
//
//	for _, ch := range book.Chunks() {
//	    fmt.Println(ch.Name, ch.Title)
//	}
//
// DRM-protected files are rejected with [ErrDRMProtected]. Structural
// problems that still leave a readable book are reported by [Book.Warnings].
package epub
