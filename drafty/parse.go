package drafty

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// inlineStyle describes markup of an inline style like *bold*.
//
// The markup must not be a part of a word: `a*b*c` is not bold. Go regular expressions
// have no lookaround, so the boundaries are checked by hand.
type inlineStyle struct {
	tp     string
	marker byte
	// Underscore is a boundary of this style: `_*bold*_` is bold and italic.
	underscoreIsBoundary bool
	// Content must have at least two characters and must not end with a whitespace.
	strict bool
}

var inlineStyles = []inlineStyle{
	{tp: "ST", marker: '*', underscoreIsBoundary: true, strict: true},
	{tp: "EM", marker: '_', strict: true},
	{tp: "DL", marker: '~', underscoreIsBoundary: true, strict: true},
	{tp: "CO", marker: '`'},
}

// entityProc extracts entities of one type.
type entityProc struct {
	tp string
	// Anchored regular expression. The left boundary is checked by hand.
	re   *regexp.Regexp
	pack func(match []string) *Data
}

var entityProcs = []entityProc{
	{
		tp: "LN",
		re: regexp.MustCompile(`(?i)^(https?://)?(?:www\.)?(?:[a-z0-9][-a-z0-9]*[a-z0-9]\.){1,5}` +
			`[a-z]{2,6}(?:[/?#:][-a-z0-9@:%_+.~#?&/=]*)?`),
		pack: func(m []string) *Data {
			url := m[0]
			if m[1] == "" {
				url = "http://" + url
			}
			return &Data{URL: url}
		},
	},
	{
		tp:   "MN",
		re:   regexp.MustCompile(`^@([\p{L}\p{N}][._\p{L}\p{N}]*[\p{L}\p{N}])`),
		pack: func(m []string) *Data { return &Data{Val: m[0]} },
	},
	{
		tp:   "HT",
		re:   regexp.MustCompile(`^#([\p{L}\p{N}][._\p{L}\p{N}]*[\p{L}\p{N}])`),
		pack: func(m []string) *Data { return &Data{Val: m[0]} },
	},
}

// span is a styled range of a line before the markup is removed.
// Offsets are in bytes: start is the opening marker, end is the closing marker.
type span struct {
	tp       string
	start    int
	end      int
	text     string
	children []*span
}

// block is one parsed line. Offsets of styles are in bytes.
type block struct {
	txt string
	fmt []Style
}

type extractedEnt struct {
	at    int
	len   int
	tp    string
	value string
	data  *Data
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isAlnum(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// boundary checks if the rune separates markup from the surrounding text.
func (st *inlineStyle) boundary(r rune) bool {
	if st.underscoreIsBoundary {
		return !isAlnum(r)
	}
	return !isWordRune(r)
}

// match checks if the style markup starts at line[i] and returns the offset of the closing marker.
func (st *inlineStyle) match(line string, i int) (int, bool) {
	if i > 0 {
		if r, _ := utf8.DecodeLastRuneInString(line[:i]); !st.boundary(r) {
			return 0, false
		}
	}
	j := strings.IndexByte(line[i+1:], st.marker)
	if j < 0 {
		return 0, false
	}
	j += i + 1
	content := line[i+1 : j]
	if content == "" {
		return 0, false
	}
	if st.strict {
		last, _ := utf8.DecodeLastRuneInString(content)
		if utf8.RuneCountInString(content) < 2 || unicode.IsSpace(last) {
			return 0, false
		}
	}
	if j+1 < len(line) {
		if r, _ := utf8.DecodeRuneInString(line[j+1:]); !st.boundary(r) {
			return 0, false
		}
	}
	return j, true
}

// spannify finds all ranges of the style in the line.
func (st *inlineStyle) spannify(line string) []*span {
	var spans []*span
	for i := 0; i < len(line); {
		if line[i] == st.marker {
			if end, ok := st.match(line, i); ok {
				spans = append(spans, &span{tp: st.tp, start: i, end: end, text: line[i+1 : end]})
				i = end + 1
				continue
			}
		}
		i++
	}
	return spans
}

// toSpanTree converts a sorted list of spans into a tree: a span fully inside the preceding one
// becomes its child. Partially overlapping spans are invalid markup and are dropped.
func toSpanTree(spans []*span) []*span {
	if len(spans) == 0 {
		return nil
	}

	last := spans[0]
	tree := []*span{last}
	for _, curr := range spans[1:] {
		if curr.start > last.end {
			tree = append(tree, curr)
			last = curr
		} else if curr.end < last.end {
			last.children = append(last.children, curr)
		}
	}

	for _, s := range tree {
		s.children = toSpanTree(s.children)
	}
	return tree
}

// chunkify splits the line into alternating unstyled and styled chunks, dropping the markers.
func chunkify(line string, start, end int, spans []*span) []*span {
	if len(spans) == 0 {
		return nil
	}

	var chunks []*span
	for _, sp := range spans {
		if sp.start > start {
			chunks = append(chunks, &span{text: line[start:sp.start]})
		}

		chunk := &span{tp: sp.tp}
		if children := chunkify(line, sp.start+1, sp.end, sp.children); children != nil {
			chunk.children = children
		} else {
			chunk.text = sp.text
		}
		chunks = append(chunks, chunk)
		// Skip the closing marker.
		start = sp.end + 1
	}

	if start < end {
		chunks = append(chunks, &span{text: line[start:end]})
	}
	return chunks
}

// draftify converts chunks into a block of text and styles.
func draftify(chunks []*span, startAt int) *block {
	if chunks == nil {
		return nil
	}

	var b block
	var sb strings.Builder
	for _, chunk := range chunks {
		at := sb.Len() + startAt
		if chunk.children != nil {
			if nested := draftify(chunk.children, at); nested != nil {
				chunk.text = nested.txt
				b.fmt = append(b.fmt, nested.fmt...)
			}
		}
		if chunk.tp != "" {
			b.fmt = append(b.fmt, Style{Tp: chunk.tp, At: at, Len: len(chunk.text)})
		}
		sb.WriteString(chunk.text)
	}
	b.txt = sb.String()
	return &b
}

// extractEntities finds links, mentions and hashtags in a line cleared of markup.
func extractEntities(line string) []extractedEnt {
	var extracted []extractedEnt
	for _, proc := range entityProcs {
		for i := 0; i < len(line); {
			r, size := utf8.DecodeRuneInString(line[i:])
			prevOk := true
			if i > 0 {
				prev, _ := utf8.DecodeLastRuneInString(line[:i])
				prevOk = !isAlnum(prev)
			}
			if prevOk && (r == '@' || r == '#' || isAlnum(r)) {
				if m := proc.re.FindStringSubmatch(line[i:]); m != nil {
					extracted = append(extracted, extractedEnt{
						at:    i,
						len:   len(m[0]),
						tp:    proc.tp,
						value: m[0],
						data:  proc.pack(m),
					})
					i += len(m[0])
					continue
				}
			}
			i += size
		}
	}
	return extracted
}

// Parse converts text with markdown-like markup into a Drafty document. Markup cannot span
// multiple lines. Lines are joined with a space and a BR style.
func Parse(content string) *Document {
	content = normalize(content)

	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	// Trailing line breaks are dropped.
	for len(lines) > 1 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	entityMap := make(map[string]int)
	doc := &Document{Fmt: []Style{}, Ent: []Entity{}}
	var text strings.Builder
	offset := 0

	for n, line := range lines {
		var spans []*span
		for i := range inlineStyles {
			spans = append(spans, inlineStyles[i].spannify(line)...)
		}

		b := &block{txt: line}
		if len(spans) > 0 {
			sort.SliceStable(spans, func(i, j int) bool {
				if spans[i].start == spans[j].start {
					return spans[i].end > spans[j].end
				}
				return spans[i].start < spans[j].start
			})
			spans = toSpanTree(spans)
			b = draftify(chunkify(line, 0, len(line), spans), 0)
		}

		for _, ent := range extractEntities(b.txt) {
			index, ok := entityMap[ent.value]
			if !ok {
				index = len(doc.Ent)
				entityMap[ent.value] = index
				doc.Ent = append(doc.Ent, Entity{Tp: ent.tp, Data: ent.data})
			}
			b.fmt = append(b.fmt, Style{At: ent.at, Len: ent.len, Key: index})
		}

		if n > 0 {
			doc.Fmt = append(doc.Fmt, Style{Tp: "BR", At: offset, Len: 1})
			text.WriteByte(' ')
			offset++
		}
		for _, st := range b.fmt {
			at, length := gcRange(b.txt, st.At, st.Len)
			st.At, st.Len = at+offset, length
			doc.Fmt = append(doc.Fmt, st)
		}
		text.WriteString(b.txt)
		offset += gcLength(b.txt)
	}

	doc.Txt = text.String()
	return doc
}
