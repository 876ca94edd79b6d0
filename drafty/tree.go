package drafty

import (
	"sort"
	"strings"
	"unicode"
)

const (
	// Maximum length of a string field of entity data in previews, in bytes.
	maxPreviewDataSize = 64
	// Maximum number of attachments shown in a preview.
	maxPreviewAttachments = 3
)

// Mention of the original author prepended to forwarded messages starts with this character.
const forwardedMark = '➦'

// Styles which do not need text content.
var voidStyles = map[string]bool{"BR": true, "EX": true, "HD": true}

// Formatting weights: a heavier style becomes the parent when ranges coincide.
var fmtWeights = map[string]int{"QQ": 1}

// Node is an element of the document tree: either a text leaf or a styled element with children.
type Node struct {
	// Style of the node, empty for plain text.
	Tp   string
	Data *Data
	Text string
	// Child nodes. A node has either Text or Children.
	Children []*Node
	// Attachment is not a part of the text flow.
	Attachment bool

	parent *Node
	// Index of the entity in the source document or -1.
	key int
}

func textNode(text string) *Node {
	return &Node{Text: text, key: -1}
}

// IsStyle checks the style of the node.
func (n *Node) IsStyle(tp string) bool {
	return n.Tp == tp
}

// IsUnstyled checks if the node is plain text or a plain container.
func (n *Node) IsUnstyled() bool {
	return n.Tp == ""
}

// Parent returns the parent of the node or nil for the root.
func (n *Node) Parent() *Node {
	return n.parent
}

func (n *Node) add(child *Node) {
	if child == nil {
		return
	}
	// Text is moved into a child node.
	if n.Text != "" {
		n.Children = append(n.Children, &Node{Text: n.Text, parent: n, key: -1})
		n.Text = ""
	}
	child.parent = n
	n.Children = append(n.Children, child)
}

// Length returns the length of the text of the node and its children in grapheme clusters.
func (n *Node) Length() int {
	if n.Text != "" {
		return gcLength(n.Text)
	}
	length := 0
	for _, c := range n.Children {
		length += c.Length()
	}
	return length
}

// lTrim removes leading whitespace and line breaks.
func (n *Node) lTrim() {
	if n.IsStyle("BR") {
		n.Text = ""
		n.Tp = ""
		n.Children = nil
		n.Data = nil
	} else if n.IsUnstyled() {
		if n.Text != "" {
			n.Text = strings.TrimLeftFunc(n.Text, unicode.IsSpace)
		} else if len(n.Children) > 0 {
			n.Children[0].lTrim()
		}
	}
}

// tspan is a validated style range. Offsets are in grapheme clusters.
type tspan struct {
	tp    string
	start int
	end   int
	key   int
	data  *Data
}

func (s *tspan) isVoid() bool {
	return voidStyles[s.tp]
}

// toTree converts the document into a tree of nodes. Invalid styles are skipped,
// styles with unknown entities become hidden.
func (d *Document) toTree() *Node {
	g := prepareGraphemes(d.Txt)
	styles := d.Fmt

	// Special case when all values of a single style are zeros and fmt was skipped entirely.
	if len(styles) == 0 {
		if len(d.Ent) != 1 {
			return textNode(d.Txt)
		}
		styles = []Style{{}}
	}

	var spans, attachments []*tspan
	maxIndex := g.length()
	for _, st := range styles {
		if st.Len < 0 {
			continue
		}
		if len(d.Ent) > 0 && (st.Key < 0 || st.Key >= len(d.Ent)) {
			continue
		}
		if st.At <= -1 {
			attachments = append(attachments, &tspan{start: -1, end: 0, key: st.Key})
			continue
		} else if st.At+st.Len > maxIndex {
			continue
		}
		if st.IsUnstyled() {
			if len(d.Ent) > 0 {
				spans = append(spans, &tspan{start: st.At, end: st.At + st.Len, key: st.Key})
			}
		} else {
			spans = append(spans, &tspan{tp: st.Tp, start: st.At, end: st.At + st.Len, key: -1})
		}
	}

	// Sort spans first by start index (asc) then by length (desc).
	sort.SliceStable(spans, func(i, j int) bool {
		a, b := spans[i], spans[j]
		if a.start != b.start {
			return a.start < b.start
		}
		if a.end != b.end {
			return a.end > b.end
		}
		return fmtWeights[a.tp] > fmtWeights[b.tp]
	})
	spans = append(spans, attachments...)

	for _, sp := range spans {
		if sp.tp == "" && len(d.Ent) > 0 {
			sp.tp = d.Ent[sp.key].Tp
			sp.data = d.Ent[sp.key].Data
		}
		// Unknown elements are hidden.
		if sp.tp == "" {
			sp.tp = "HD"
		}
	}

	tree := spansToTree(g, &Node{key: -1}, 0, g.length(), spans)

	// Flatten the tree, copy button text to its title.
	return treeTopDown(tree, func(node *Node) *Node {
		if len(node.Children) == 1 {
			child := node.Children[0]
			if node.IsUnstyled() {
				child.parent = node.parent
				node = child
			} else if child.IsUnstyled() && child.Children == nil {
				node.Text = child.Text
				node.Children = nil
			}
		}
		if node.IsStyle("BN") {
			if node.Data == nil {
				node.Data = &Data{}
			} else {
				node.Data = node.Data.Copy()
			}
			node.Data.Title = node.Text
		}
		return node
	})
}

func spansToTree(g *graphemes, parent *Node, start, end int, spans []*tspan) *Node {
	if end > g.length() {
		end = g.length()
	}

	if spans == nil {
		if start < end {
			parent.add(textNode(g.substr(start, end)))
		}
		return parent
	}

	for i := 0; i < len(spans); i++ {
		sp := spans[i]
		if sp.start < 0 {
			if sp.tp == "EX" {
				parent.add(&Node{Tp: sp.tp, Data: sp.data, key: sp.key, Attachment: true})
			}
			continue
		}

		// Unstyled range before the styled span starts.
		if start < sp.start {
			parent.add(textNode(g.substr(start, sp.start)))
			start = sp.start
		}

		// All spans which are within the current span.
		var subspans []*tspan
		for i+1 < len(spans) {
			inner := spans[i+1]
			if inner.start < 0 || inner.start >= sp.end {
				break
			}
			i++
			if inner.end <= sp.end && (inner.start < inner.end || inner.isVoid()) {
				subspans = append(subspans, inner)
			}
			// Otherwise overlapping, ignore it.
		}

		parent.add(spansToTree(g, &Node{Tp: sp.tp, Data: sp.data, key: sp.key}, start, sp.end, subspans))
		if sp.end > start {
			start = sp.end
		}
	}

	if start < end {
		parent.add(textNode(g.substr(start, end)))
	}
	return parent
}

// Transformer modifies a node of the tree. Returning nil removes the node.
type Transformer func(node *Node) *Node

// treeTopDown applies the transformer to the node first and then to its children.
func treeTopDown(node *Node, tr Transformer) *Node {
	node = tr(node)
	if node == nil || node.Children == nil {
		return node
	}

	var children []*Node
	for _, c := range node.Children {
		if c = treeTopDown(c, tr); c != nil {
			c.parent = node
			children = append(children, c)
		}
	}
	node.Children = children
	return node
}

// shortenTree clips the tree to the length in grapheme clusters and appends the tail if clipped.
func shortenTree(tree *Node, length int, tail string) *Node {
	limit := length - gcLength(tail)
	return treeTopDown(tree, func(node *Node) *Node {
		if limit <= -1 {
			// The tree is already clipped.
			return nil
		}
		if node.Attachment {
			return node
		}
		if limit == 0 {
			limit = -1
			if tail == "" {
				return nil
			}
			node.Text = tail
			node.Children = nil
		} else if node.Text != "" {
			l := gcLength(node.Text)
			if l > limit {
				node.Text = node.Text[:gcOffset(node.Text, limit)] + tail
				limit = -1
			} else {
				limit -= l
			}
		}
		return node
	})
}

// attachmentsToEnd converts up to maxAttachments attachments into inline elements
// at the end of the document. Form responses are dropped.
func attachmentsToEnd(tree *Node, maxAttachments int) {
	if tree == nil {
		return
	}
	if tree.Attachment {
		tree.Text = " "
		tree.Attachment = false
		tree.Children = nil
		return
	}
	if tree.Children == nil {
		return
	}
	var children, attachments []*Node
	for _, c := range tree.Children {
		if !c.Attachment {
			children = append(children, c)
			continue
		}
		if len(attachments) == maxAttachments {
			continue
		}
		if c.Data != nil && IsFormResponseType(c.Data.Mime) {
			continue
		}
		c.Attachment = false
		c.Children = nil
		c.Text = " "
		attachments = append(attachments, c)
	}
	tree.Children = append(children, attachments...)
}

// lightEntity strips heavy payloads from entity data. The allow function returns names of
// fields which must be kept regardless of size.
func lightEntity(tree *Node, allow func(*Node) []string) *Node {
	return treeTopDown(tree, func(node *Node) *Node {
		var fields []string
		if allow != nil {
			fields = allow(node)
		}
		node.Data = node.Data.light(maxPreviewDataSize, fields...)
		return node
	})
}

// mutableDoc accumulates a document when converting the tree back to Drafty.
type mutableDoc struct {
	txt    strings.Builder
	length int
	fmt    []Style
	ent    []Entity
	keymap map[int]int
}

func (m *mutableDoc) appendText(text string) {
	m.txt.WriteString(text)
	m.length += gcLength(text)
}

// appendEntity adds the entity unless an entity with the same original key was already added.
func (m *mutableDoc) appendEntity(ent Entity, oldKey int) int {
	if m.keymap == nil {
		m.keymap = make(map[int]int)
	}
	if oldKey >= 0 {
		if key, ok := m.keymap[oldKey]; ok {
			return key
		}
	}
	m.ent = append(m.ent, ent)
	key := len(m.ent) - 1
	if oldKey >= 0 {
		m.keymap[oldKey] = key
	}
	return key
}

func (n *Node) appendTo(doc *mutableDoc) {
	start := doc.length
	if n.Text != "" {
		doc.appendText(n.Text)
	} else {
		for _, c := range n.Children {
			c.appendTo(doc)
		}
	}

	if n.Tp == "" {
		return
	}
	length := doc.length - start
	// Nodes created from entities remain entities even if the data was stripped.
	if n.key >= 0 || !n.Data.IsEmpty() {
		key := doc.appendEntity(Entity{Tp: n.Tp, Data: n.Data}, n.key)
		if n.Attachment {
			doc.fmt = append(doc.fmt, Style{At: -1, Key: key})
		} else {
			doc.fmt = append(doc.fmt, Style{At: start, Len: length, Key: key})
		}
	} else {
		doc.fmt = append(doc.fmt, Style{Tp: n.Tp, At: start, Len: length})
	}
}

// toDocument converts the tree back into a Drafty document.
func (n *Node) toDocument() *Document {
	if n == nil {
		return &Document{}
	}
	var doc mutableDoc
	n.appendTo(&doc)
	res := &Document{Txt: doc.txt.String()}
	if len(doc.fmt) > 0 {
		res.Fmt = doc.fmt
		if len(doc.ent) > 0 {
			res.Ent = doc.ent
		}
	}
	return res
}

// Transform applies the transformer to every node of the document top-down and returns a new document.
func (d *Document) Transform(tr Transformer) *Document {
	return treeTopDown(d.Copy().toTree(), tr).toDocument()
}

// Shorten clips the document to the length in grapheme clusters. If light is set,
// large entity payloads are removed.
func (d *Document) Shorten(length int, light bool) *Document {
	tree := shortenTree(d.Copy().toTree(), length, "")
	if light {
		tree = lightEntity(tree, nil)
	}
	return tree.toDocument()
}

// isForwardingMention checks if the node is the mention of the original author of a forwarded message.
func isForwardingMention(node *Node) bool {
	return node.IsStyle("MN") && strings.HasPrefix(node.Text, string(forwardedMark)) &&
		(node.parent == nil || node.parent.IsUnstyled())
}

// Preview shortens the document to the length and strips large entity payloads, quotes
// and line breaks, making it suitable for a one-line preview.
func (d *Document) Preview(length int) *Document {
	tree := d.Copy().toTree()
	attachmentsToEnd(tree, maxPreviewAttachments)
	tree = treeTopDown(tree, func(node *Node) *Node {
		switch {
		case isForwardingMention(node):
			node.Text = string(forwardedMark)
			node.Children = nil
		case node.IsStyle("QQ"):
			node.Text = " "
			node.Children = nil
		case node.IsStyle("BR"):
			node.Text = " "
			node.Children = nil
			node.Tp = ""
		}
		return node
	})
	tree = shortenTree(tree, length, "")
	tree = lightEntity(tree, nil)
	return tree.toDocument()
}

// ForwardedContent removes the leading mention and line breaks, preparing the document for forwarding.
func (d *Document) ForwardedContent() *Document {
	tree := treeTopDown(d.Copy().toTree(), func(node *Node) *Node {
		if node.IsStyle("MN") && (node.parent == nil || node.parent.IsUnstyled()) {
			return nil
		}
		return node
	})
	if tree == nil {
		return nil
	}
	tree.lTrim()
	return tree.toDocument()
}

// ReplyContent prepares the document for quoting in a reply: the forwarding mention is
// shortened, quotes are removed, line breaks become spaces, attachments move to the end
// and large payloads are stripped.
func (d *Document) ReplyContent(length, maxAttachments int) *Document {
	tree := treeTopDown(d.Copy().toTree(), func(node *Node) *Node {
		switch {
		case node.IsStyle("QQ"):
			return nil
		case isForwardingMention(node):
			node.Text = string(forwardedMark)
			node.Children = nil
			node.Data = nil
			node.key = -1
		case node.IsStyle("BR"):
			node.Text = " "
			node.Tp = ""
			node.Children = nil
		case node.IsStyle("IM") || node.IsStyle("VD"):
			if node.Data != nil {
				// Out-of-band images are not rendered in replies.
				node.Data = node.Data.Copy()
				node.Data.Ref = ""
				node.Data.PreRef = ""
			}
		}
		return node
	})
	attachmentsToEnd(tree, maxAttachments)
	tree = shortenTree(tree, length, "")
	tree = lightEntity(tree, func(node *Node) []string {
		switch node.Tp {
		case "IM":
			return []string{"val"}
		case "VD":
			return []string{"preview"}
		}
		return nil
	})
	if tree == nil {
		return &Document{}
	}
	return tree.toDocument()
}
