package summarize

import (
	"fmt"
	"io"
	"strings"

	"github.com/valyala/fasttemplate"

	"meeting-protocol-service/internal/models"
)

// transcriptTag is the only placeholder substituted in prompt templates.
const transcriptTag = "transcript"

const renderSentinel = "\x00transcript-sentinel\x00"

// FormatProtocol renders one line per segment:
//
//	SPEAKER_00 (0.00s - 3.20s): Good morning everyone.
func FormatProtocol(protocol []models.TranscriptSegment) string {
	lines := make([]string, len(protocol))
	for i, s := range protocol {
		lines[i] = fmt.Sprintf("%s (%.2fs - %.2fs): %s", s.Speaker, s.Start, s.End, s.Transcript)
	}
	return strings.Join(lines, "\n")
}

// promptTemplate fills {transcript} and leaves any other braces untouched.
type promptTemplate struct {
	tmpl *fasttemplate.Template
}

func newPromptTemplate(text string) (*promptTemplate, error) {
	if !strings.Contains(text, "{"+transcriptTag+"}") {
		return nil, models.NewConfigurationError("prompt template has no {%s} placeholder", transcriptTag)
	}
	t, err := fasttemplate.NewTemplate(text, "{", "}")
	if err != nil {
		return nil, models.NewConfigurationError("parse prompt template: %v", err)
	}
	p := &promptTemplate{tmpl: t}
	// A stray brace before the placeholder swallows it into another tag.
	if !strings.Contains(p.render(renderSentinel), renderSentinel) {
		return nil, models.NewConfigurationError("prompt template placeholder {%s} is not substituted, check for unbalanced braces", transcriptTag)
	}
	return p, nil
}

func (p *promptTemplate) render(transcript string) string {
	return p.tmpl.ExecuteFuncString(func(w io.Writer, tag string) (int, error) {
		if tag == transcriptTag {
			return w.Write([]byte(transcript))
		}
		return w.Write([]byte("{" + tag + "}"))
	})
}
