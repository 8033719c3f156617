// Package extract detects file type and pulls plain text out of an
// uploaded document, adapted from the teacher's internal/ingest and
// internal/pipeline packages: the same extension/MIME sniffing and the
// same dslipak/pdf, archive/zip+encoding/xml extraction strategies,
// generalized to also track which source page each run of extracted
// text came from, which spec.md §4.5 needs for per-chunk page numbers.
package extract

import (
	"archive/zip"
	"encoding/xml"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/dslipak/pdf"
	"github.com/ragline/ragline/internal/ragerr"
)

// MaxFileSize bounds upload extraction to 50MB, same ceiling the
// teacher used.
const MaxFileSize = 50 * 1024 * 1024

// supportedExtensions is the upload allow-list.
var supportedExtensions = map[string]bool{
	".txt": true, ".md": true, ".markdown": true,
	".pdf": true, ".docx": true,
}

// IsSupported reports whether filename/headerBytes matches a type this
// package can extract text from.
func IsSupported(filename string, headerBytes []byte) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	if !supportedExtensions[ext] {
		return false
	}

	mime := http.DetectContentType(headerBytes)
	switch {
	case mime == "application/pdf":
		return true
	case mime == "application/zip" && ext == ".docx":
		return true
	case strings.HasPrefix(mime, "text/plain") && (ext == ".txt" || ext == ".md" || ext == ".markdown"):
		return true
	default:
		return false
	}
}

func processorType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "pdf"
	case ".docx":
		return "word"
	case ".md", ".markdown", ".txt":
		return "text"
	default:
		return "unknown"
	}
}

// Page is one page's worth of extracted text with its absolute
// position in the full document text.
type Page struct {
	Number    int
	StartChar int
	EndChar   int
}

// Document is the result of extracting a file: its full text plus the
// page boundaries within that text (synthesized pseudo-pages for plain
// text and Markdown; empty for DOCX).
type Document struct {
	Text  string
	Pages []Page
}

// PageAt returns the 1-based page number containing char offset pos,
// or 0 if the document has no page information.
func (d Document) PageAt(pos int) int {
	for _, p := range d.Pages {
		if pos >= p.StartChar && pos < p.EndChar {
			return p.Number
		}
	}
	if len(d.Pages) > 0 {
		return d.Pages[len(d.Pages)-1].Number
	}
	return 0
}

// Extract determines the file type from path and pulls out its text.
func Extract(path, filename string) (Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Document{}, ragerr.Wrap(ragerr.Validation, "extract: stat file", err)
	}
	if info.Size() > MaxFileSize {
		return Document{}, ragerr.New(ragerr.Validation, "extract: file exceeds 50MB limit")
	}

	switch processorType(filename) {
	case "text":
		return extractText(path)
	case "pdf":
		return extractPDF(path)
	case "word":
		return extractDOCX(path)
	default:
		return Document{}, ragerr.New(ragerr.Validation, "extract: unsupported file type")
	}
}

// pseudoPageChars is the synthetic page size for plain-text and
// Markdown documents, which have no native page concept. spec.md §4.5
// requires every chunk to reference a non-empty, existing page, so text
// formats get one pseudo-page per this many characters.
const pseudoPageChars = 3000

func extractText(path string) (Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Document{}, ragerr.Wrap(ragerr.Internal, "extract: read text file", err)
	}
	text := string(content)
	return Document{Text: text, Pages: synthesizePages(text)}, nil
}

// synthesizePages splits text into pseudoPageChars-sized pages so
// PageAt/pagesInRange always have something to report for formats with
// no native page boundaries.
func synthesizePages(text string) []Page {
	if len(text) == 0 {
		return []Page{{Number: 1, StartChar: 0, EndChar: 0}}
	}
	var pages []Page
	for start, n := 0, 1; start < len(text); start, n = start+pseudoPageChars, n+1 {
		end := start + pseudoPageChars
		if end > len(text) {
			end = len(text)
		}
		pages = append(pages, Page{Number: n, StartChar: start, EndChar: end})
	}
	return pages
}

func extractPDF(path string) (Document, error) {
	r, err := pdf.Open(path)
	if err != nil {
		return Document{}, ragerr.Wrap(ragerr.Validation, "extract: open pdf", err)
	}

	var buf strings.Builder
	var pages []Page
	numPages := r.NumPage()
	for i := 1; i <= numPages; i++ {
		start := buf.Len()
		pg := r.Page(i)
		text, err := pg.GetPlainText(nil)
		if err != nil {
			// Some pages (images, malformed content streams) simply have
			// no extractable text; skip rather than fail the whole document.
			continue
		}
		buf.WriteString(text)
		buf.WriteByte('\n')
		pages = append(pages, Page{Number: i, StartChar: start, EndChar: buf.Len()})
	}

	return Document{Text: buf.String(), Pages: pages}, nil
}

func extractDOCX(path string) (Document, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return Document{}, ragerr.Wrap(ragerr.Validation, "extract: open docx zip", err)
	}
	defer r.Close()

	var documentXML *zip.File
	for _, f := range r.File {
		if f.Name == "word/document.xml" {
			documentXML = f
			break
		}
	}
	if documentXML == nil {
		return Document{}, ragerr.New(ragerr.Validation, "extract: missing word/document.xml")
	}

	rc, err := documentXML.Open()
	if err != nil {
		return Document{}, ragerr.Wrap(ragerr.Internal, "extract: open document.xml", err)
	}
	defer rc.Close()

	decoder := xml.NewDecoder(rc)
	var text strings.Builder
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Document{}, ragerr.Wrap(ragerr.MalformedUpstream, "extract: decode document.xml", err)
		}
		switch t := token.(type) {
		case xml.StartElement:
			if t.Name.Local == "p" {
				text.WriteString("\n")
			}
			if t.Name.Local == "tab" {
				text.WriteString("\t")
			}
		case xml.CharData:
			text.Write(t)
		}
	}
	return Document{Text: text.String()}, nil
}

// DetectContentType exposes http.DetectContentType's sniffing for the
// upload handler to stamp model.Document.ContentType.
func DetectContentType(headerBytes []byte) string {
	return http.DetectContentType(headerBytes)
}
