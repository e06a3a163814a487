// Package export renders a finished job as a document.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gomutex/godocx"
	"github.com/gomutex/godocx/docx"

	"meeting-protocol-service/internal/models"
)

// Format is an export document format.
type Format string

const (
	FormatMarkdown Format = "md"
	FormatDocx     Format = "docx"
)

const (
	title    = "Meeting protocol"
	fontName = "Calibri"
	fontSize = 11
)

// ParseFormat accepts "md", "markdown" and "docx". Empty means Markdown.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "md", "markdown":
		return FormatMarkdown, nil
	case "docx":
		return FormatDocx, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

// ContentType is the MIME type of documents in this format.
func (f Format) ContentType() string {
	if f == FormatDocx {
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	}
	return "text/markdown; charset=utf-8"
}

// Filename is the download name for a job's document.
func (f Format) Filename(jobID string) string {
	return "protocol-" + jobID + "." + string(f)
}

// Render renders res in format f.
func Render(res models.JobResult, f Format) ([]byte, error) {
	switch f {
	case FormatMarkdown:
		return Markdown(res), nil
	case FormatDocx:
		return Docx(res)
	}
	return nil, fmt.Errorf("unsupported export format %q", f)
}

// Markdown renders the summary, when present, followed by the protocol.
func Markdown(res models.JobResult) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\nJob: `%s`\n", title, res.JobID)

	if res.Summary != nil && *res.Summary != "" {
		b.WriteString("\n## Summary\n\n")
		if res.SummaryBackend != "" {
			fmt.Fprintf(&b, "_Generated by %s_\n\n", res.SummaryBackend)
		}
		b.WriteString(strings.TrimSpace(*res.Summary))
		b.WriteString("\n")
	}

	b.WriteString("\n## Transcript\n\n")
	if len(res.Protocol) == 0 {
		b.WriteString("_No speech was detected._\n")
	}
	for _, seg := range res.Protocol {
		fmt.Fprintf(&b, "**%s** (%s - %s): %s\n\n", seg.Speaker, clock(seg.Start), clock(seg.End), seg.Transcript)
	}
	return []byte(b.String())
}

// Docx renders the same layout as Markdown into a Word document.
func Docx(res models.JobResult) ([]byte, error) {
	doc, err := godocx.NewDocument()
	if err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}

	addRun(doc.AddParagraph(""), title, true, 16)
	addRun(doc.AddParagraph(""), "Job: "+res.JobID, false, fontSize)

	if res.Summary != nil && *res.Summary != "" {
		addRun(doc.AddParagraph(""), "Summary", true, 14)
		for _, line := range strings.Split(strings.TrimSpace(*res.Summary), "\n") {
			if line = strings.TrimSpace(line); line != "" {
				addRun(doc.AddParagraph(""), line, false, fontSize)
			}
		}
	}

	addRun(doc.AddParagraph(""), "Transcript", true, 14)
	if len(res.Protocol) == 0 {
		addRun(doc.AddParagraph(""), "No speech was detected.", false, fontSize)
	}
	for _, seg := range res.Protocol {
		p := doc.AddParagraph("")
		addRun(p, seg.Speaker, true, fontSize)
		addRun(p, fmt.Sprintf(" (%s - %s): ", clock(seg.Start), clock(seg.End)), false, fontSize)
		addRun(p, seg.Transcript, false, fontSize)
	}

	// The document is saved by path, so it goes through a scratch file.
	dir, err := os.MkdirTemp("", "protocol-export-")
	if err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "protocol.docx")
	if err := doc.SaveTo(path); err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}
	return os.ReadFile(path)
}

func addRun(p *docx.Paragraph, text string, bold bool, size uint64) {
	run := p.AddText(text).Font(fontName).Size(size).Color("000000")
	if bold {
		run.Bold(true)
	}
}

// clock formats seconds as mm:ss.cc, or h:mm:ss.cc past one hour.
func clock(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	cs := int64(sec*100 + 0.5)
	h := cs / 360000
	m := cs / 6000 % 60
	s := cs / 100 % 60
	frac := cs % 100
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d.%02d", h, m, s, frac)
	}
	return fmt.Sprintf("%02d:%02d.%02d", m, s, frac)
}
