// Package enex writes Evernote export (ENEX) documents.
package enex

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/starford/ansuz/internal/models"
)

// TimeLayout is the compact UTC timestamp form used throughout ENEX.
const TimeLayout = "20060102T150405Z"

const (
	xmlDecl       = `<?xml version="1.0" encoding="UTF-8"?>`
	exportDoctype = `<!DOCTYPE en-export SYSTEM "http://xml.evernote.com/pub/evernote-export3.dtd">`
	contentOpen   = "<content><![CDATA[<?xml version=\"1.0\" encoding=\"UTF-8\" standalone=\"no\"?>\n" +
		"<!DOCTYPE en-note SYSTEM \"http://xml.evernote.com/pub/enml2.dtd\">\n<en-note>"
	contentClose = "</en-note>]]></content>"
)

var escaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// Escape escapes the five XML special characters.
func Escape(s string) string {
	return escaper.Replace(s)
}

// FormatTime renders t in UTC as YYYYMMDDTHHMMSSZ.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// Envelope wraps an XHTML body in the ENML content element. A "]]>" inside
// the body is split across two CDATA sections.
func Envelope(body string) string {
	return contentOpen + strings.ReplaceAll(body, "]]>", "]]]]><![CDATA[>") + contentClose
}

// Assemble renders one <note> record.
func Assemble(note *models.ResolvedNote, body string) []byte {
	var b bytes.Buffer
	b.WriteString("<note>\n")
	fmt.Fprintf(&b, "  <title>%s</title>\n", Escape(note.Title))
	b.WriteString("  ")
	b.WriteString(Envelope(body))
	b.WriteByte('\n')
	if !note.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "  <created>%s</created>\n", FormatTime(note.CreatedAt))
	}
	if !note.UpdatedAt.IsZero() {
		fmt.Fprintf(&b, "  <updated>%s</updated>\n", FormatTime(note.UpdatedAt))
	}
	for _, t := range note.Tags {
		fmt.Fprintf(&b, "  <tag>%s</tag>\n", Escape(t))
	}
	for _, r := range note.Resources {
		b.WriteString("  <resource>\n")
		fmt.Fprintf(&b, "    <data encoding=\"base64\">%s</data>\n", base64.StdEncoding.EncodeToString(r.Data))
		fmt.Fprintf(&b, "    <mime>%s</mime>\n", Escape(r.Mime))
		b.WriteString("    <resource-attributes>\n")
		fmt.Fprintf(&b, "      <file-name>%s</file-name>\n", Escape(r.DisplayName))
		b.WriteString("    </resource-attributes>\n")
		b.WriteString("  </resource>\n")
	}
	b.WriteString("</note>\n")
	return b.Bytes()
}

// Header identifies the export.
type Header struct {
	ExportDate  time.Time
	Application string
	Version     string
}

// Writer streams an ENEX document. It is not safe for concurrent use.
type Writer struct {
	w      io.Writer
	header Header
	opened bool
	closed bool
	notes  int
}

// NewWriter returns a Writer that emits to w.
func NewWriter(w io.Writer, h Header) *Writer {
	return &Writer{w: w, header: h}
}

func (w *Writer) open() error {
	if w.opened {
		return nil
	}
	w.opened = true
	_, err := fmt.Fprintf(w.w, "%s\n%s\n<en-export export-date=\"%s\" application=\"%s\" version=\"%s\">\n",
		xmlDecl, exportDoctype, FormatTime(w.header.ExportDate), Escape(w.header.Application), Escape(w.header.Version))
	if err != nil {
		return fmt.Errorf("enex: write header: %w", err)
	}
	return nil
}

// WriteNote appends a record produced by Assemble.
func (w *Writer) WriteNote(record []byte) error {
	if w.closed {
		return fmt.Errorf("enex: write after close")
	}
	if err := w.open(); err != nil {
		return err
	}
	if _, err := w.w.Write(record); err != nil {
		return fmt.Errorf("enex: write note: %w", err)
	}
	w.notes++
	return nil
}

// Notes returns the number of records written.
func (w *Writer) Notes() int {
	return w.notes
}

// Close writes the footer. The header is written first if no note was.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	if err := w.open(); err != nil {
		return err
	}
	w.closed = true
	if _, err := io.WriteString(w.w, "</en-export>\n"); err != nil {
		return fmt.Errorf("enex: write footer: %w", err)
	}
	return nil
}
