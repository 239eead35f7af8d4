package reader

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"slices"
	"strings"

	"github.com/simp-lee/republish/content"
	"github.com/simp-lee/republish/epub"
)

// Chapter is one entry of a book's reading order.
type Chapter struct {
	// Name identifies the chapter within the book: the archive path for
	// ePub chapters, the file name for Markdown ones.
	Name string

	// Title is the table-of-contents title, possibly empty.
	Title string

	// Load reads and parses the chapter source. It is called at most once
	// per Section.
	Load func() (*content.Document, error)
}

// Book is the ordered chapter list a Handler pages through.
type Book struct {
	Title    string
	Author   string
	Language string
	Chapters []Chapter

	// Files resolves image references found in chapter content. It may be
	// nil, in which case images keep whatever size they declare.
	Files content.FileReader
}

// FromEPub assembles a Book from an opened ePub. Spine items marked
// linear="no" are left out of the reading order.
func FromEPub(b *epub.Book) *Book {
	book := &Book{
		Title:    b.Title(),
		Author:   b.Author(),
		Language: b.Language(),
		Files:    b,
	}
	for _, ch := range b.Chunks() {
		ch := ch
		if !ch.Linear {
			continue
		}
		book.Chapters = append(book.Chapters, Chapter{
			Name:  ch.Name,
			Title: ch.Title,
			Load: func() (*content.Document, error) {
				data, err := ch.Content()
				if err != nil {
					return nil, err
				}
				return content.Parse(data, ch.Name, b)
			},
		})
	}
	return book
}

// OpenMarkdownDir assembles a Book from the Markdown files in dir, one
// chapter per file in lexical order. Image paths in the Markdown resolve
// relative to dir.
func OpenMarkdownDir(dir string) (*Book, error) {
	return markdownBook(os.DirFS(dir), path.Base(dir))
}

func markdownBook(fsys fs.FS, title string) (*Book, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("reader: read markdown dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(path.Ext(e.Name())) {
		case ".md", ".markdown":
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("reader: no markdown files: %w", fs.ErrNotExist)
	}
	slices.Sort(names)

	files := dirFiles{fsys}
	book := &Book{Title: title, Files: files}
	for _, name := range names {
		name := name
		book.Chapters = append(book.Chapters, Chapter{
			Name: name,
			Load: func() (*content.Document, error) {
				src, err := files.ReadFile(name)
				if err != nil {
					return nil, err
				}
				return content.FromMarkdown(src, name)
			},
		})
	}
	return book, nil
}

// dirFiles adapts an fs.FS to content.FileReader.
type dirFiles struct {
	fsys fs.FS
}

func (d dirFiles) ReadFile(name string) ([]byte, error) {
	data, err := fs.ReadFile(d.fsys, name)
	if err != nil {
		return nil, fmt.Errorf("reader: %s: %w", name, err)
	}
	return data, nil
}
