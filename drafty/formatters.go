package drafty

import (
	"encoding/json"
	"strings"
)

func concat(children []string) string {
	return strings.Join(children, "")
}

func nameOrUnknown(data *Data) string {
	if data == nil || data.Name == "" {
		return "?"
	}
	return data.Name
}

// PlainTextFormatter renders the document as text with minimal markup: styles are shown as
// *bold*, _italic_, ~deleted~, links as [text](url), attachments as [FILE 'name'].
type PlainTextFormatter struct{}

var _ Formatter[string] = PlainTextFormatter{}

func (PlainTextFormatter) Text(text string) string       { return text }
func (PlainTextFormatter) Join(children []string) string { return concat(children) }

func (PlainTextFormatter) Strong(_ *Data, children []string) string {
	return "*" + concat(children) + "*"
}

func (PlainTextFormatter) Emphasis(_ *Data, children []string) string {
	return "_" + concat(children) + "_"
}

func (PlainTextFormatter) Deleted(_ *Data, children []string) string {
	return "~" + concat(children) + "~"
}

func (PlainTextFormatter) Code(_ *Data, children []string) string   { return concat(children) }
func (PlainTextFormatter) Hidden(_ *Data, _ []string) string        { return "" }
func (PlainTextFormatter) LineBreak(_ *Data, _ []string) string     { return "\n" }
func (PlainTextFormatter) Mention(_ *Data, children []string) string { return concat(children) }
func (PlainTextFormatter) Hashtag(_ *Data, children []string) string { return concat(children) }

func (PlainTextFormatter) Link(data *Data, children []string) string {
	text := concat(children)
	if data != nil && data.URL != "" && data.URL != text {
		return "[" + text + "](" + data.URL + ")"
	}
	return text
}

func (PlainTextFormatter) Image(data *Data, _ []string) string {
	return "[IMAGE '" + nameOrUnknown(data) + "']"
}

func (PlainTextFormatter) Attachment(data *Data, _ []string) string {
	return "[FILE '" + nameOrUnknown(data) + "']"
}

func (PlainTextFormatter) Button(_ *Data, children []string) string {
	return "[ " + concat(children) + " ]"
}

func (PlainTextFormatter) Form(_ *Data, children []string) string    { return concat(children) }
func (PlainTextFormatter) FormRow(_ *Data, children []string) string { return concat(children) }

func (PlainTextFormatter) Quote(_ *Data, children []string) string {
	lines := strings.Split(concat(children), "\n")
	for i := range lines {
		lines[i] = "> " + lines[i]
	}
	return strings.Join(lines, "\n") + "\n"
}

func (PlainTextFormatter) Unknown(_ string, _ *Data, children []string) string {
	return concat(children)
}

// MarkdownFormatter renders the document as Markdown.
type MarkdownFormatter struct{}

var _ Formatter[string] = MarkdownFormatter{}

var markdownEscaper = strings.NewReplacer(`\`, `\\`, "*", `\*`, "_", `\_`, "~", `\~`, "`", "\\`", "[", `\[`, "]", `\]`)

func (MarkdownFormatter) Text(text string) string       { return markdownEscaper.Replace(text) }
func (MarkdownFormatter) Join(children []string) string { return concat(children) }

func (MarkdownFormatter) Strong(_ *Data, children []string) string {
	return "**" + concat(children) + "**"
}

func (MarkdownFormatter) Emphasis(_ *Data, children []string) string {
	return "_" + concat(children) + "_"
}

func (MarkdownFormatter) Deleted(_ *Data, children []string) string {
	return "~~" + concat(children) + "~~"
}

func (MarkdownFormatter) Code(_ *Data, children []string) string {
	return "`" + concat(children) + "`"
}

func (MarkdownFormatter) Hidden(_ *Data, _ []string) string    { return "" }
func (MarkdownFormatter) LineBreak(_ *Data, _ []string) string { return "  \n" }

func (MarkdownFormatter) Link(data *Data, children []string) string {
	if data == nil || data.URL == "" {
		return concat(children)
	}
	return "[" + concat(children) + "](" + data.URL + ")"
}

func (MarkdownFormatter) Mention(_ *Data, children []string) string { return "**" + concat(children) + "**" }
func (MarkdownFormatter) Hashtag(_ *Data, children []string) string { return "_" + concat(children) + "_" }

func (MarkdownFormatter) Image(data *Data, _ []string) string {
	name := nameOrUnknown(data)
	if data != nil && data.Ref != "" {
		return "![" + name + "](" + data.Ref + ")"
	}
	return "![" + name + "]"
}

func (MarkdownFormatter) Attachment(data *Data, _ []string) string {
	name := nameOrUnknown(data)
	if data != nil && data.Ref != "" {
		return "[" + name + "](" + data.Ref + ")"
	}
	return "[" + name + "]"
}

func (MarkdownFormatter) Button(_ *Data, children []string) string {
	return "[ " + concat(children) + " ]"
}

func (MarkdownFormatter) Form(_ *Data, children []string) string    { return concat(children) }
func (MarkdownFormatter) FormRow(_ *Data, children []string) string { return concat(children) + "\n" }

func (MarkdownFormatter) Quote(_ *Data, children []string) string {
	lines := strings.Split(concat(children), "\n")
	for i := range lines {
		lines[i] = "> " + lines[i]
	}
	return strings.Join(lines, "\n") + "\n\n"
}

func (MarkdownFormatter) Unknown(_ string, _ *Data, children []string) string {
	return concat(children)
}

// PreviewFormatter renders the document as a single line of text without markup.
type PreviewFormatter struct{}

var _ Formatter[string] = PreviewFormatter{}

func (PreviewFormatter) Text(text string) string                    { return text }
func (PreviewFormatter) Join(children []string) string              { return concat(children) }
func (PreviewFormatter) Strong(_ *Data, children []string) string   { return concat(children) }
func (PreviewFormatter) Emphasis(_ *Data, children []string) string { return concat(children) }
func (PreviewFormatter) Deleted(_ *Data, children []string) string  { return concat(children) }
func (PreviewFormatter) Code(_ *Data, children []string) string     { return concat(children) }
func (PreviewFormatter) Hidden(_ *Data, _ []string) string          { return "" }
func (PreviewFormatter) LineBreak(_ *Data, _ []string) string       { return " " }
func (PreviewFormatter) Link(_ *Data, children []string) string     { return concat(children) }
func (PreviewFormatter) Mention(_ *Data, children []string) string  { return concat(children) }
func (PreviewFormatter) Hashtag(_ *Data, children []string) string  { return concat(children) }
func (PreviewFormatter) Image(_ *Data, _ []string) string           { return "[IMAGE]" }
func (PreviewFormatter) Attachment(_ *Data, _ []string) string      { return "[FILE]" }
func (PreviewFormatter) Button(_ *Data, children []string) string   { return "[" + concat(children) + "]" }
func (PreviewFormatter) Form(_ *Data, children []string) string     { return concat(children) }
func (PreviewFormatter) FormRow(_ *Data, children []string) string  { return concat(children) + " " }
func (PreviewFormatter) Quote(_ *Data, _ []string) string           { return "" }

func (PreviewFormatter) Unknown(_ string, _ *Data, children []string) string {
	return concat(children)
}

// PlainText converts the document to text with minimal markup.
func (d *Document) PlainText() string {
	return Format[string](d, PlainTextFormatter{})
}

// PreviewText returns a single line of text no longer than limit grapheme clusters
// plus attachment placeholders.
func (d *Document) PreviewText(limit int) string {
	return strings.TrimSpace(Format[string](d.Preview(limit), PreviewFormatter{}))
}

// ReplySnippet returns a one-line snippet of the document to show when quoting it in a reply.
func (d *Document) ReplySnippet(limit int) string {
	return strings.TrimSpace(Format[string](d.ReplyContent(limit, 1), PreviewFormatter{}))
}

// decodeValid decodes and validates the content.
func decodeValid(content any) (*Document, error) {
	doc, err := Decode(content)
	if err != nil || doc == nil {
		return nil, err
	}
	if err = doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

// ToPlainText converts message content, either a string or Drafty, to plain text.
func ToPlainText(content any) (string, error) {
	doc, err := decodeValid(content)
	if err != nil || doc == nil {
		return "", err
	}
	return doc.PlainText(), nil
}

// Preview shortens message content to the specified length, removes quoted text and large
// content from entities making it suitable for a one-line preview, for example for showing
// in push notifications. The return value is a Drafty document encoded as JSON string.
func Preview(content any, length int) (string, error) {
	doc, err := decodeValid(content)
	if err != nil || doc == nil {
		return "", err
	}
	data, err := json.Marshal(doc.Preview(length))
	return string(data), err
}
