package drafty

// Formatter converts the document tree into a value of type T. Each method receives
// the entity data of the node (possibly nil) and its already formatted children.
type Formatter[T any] interface {
	// Text formats an unstyled run of text.
	Text(text string) T
	// Join combines children of an unstyled container.
	Join(children []T) T

	Strong(data *Data, children []T) T
	Emphasis(data *Data, children []T) T
	Deleted(data *Data, children []T) T
	Code(data *Data, children []T) T
	Hidden(data *Data, children []T) T
	LineBreak(data *Data, children []T) T
	Link(data *Data, children []T) T
	Mention(data *Data, children []T) T
	Hashtag(data *Data, children []T) T
	Image(data *Data, children []T) T
	Attachment(data *Data, children []T) T
	Button(data *Data, children []T) T
	Form(data *Data, children []T) T
	FormRow(data *Data, children []T) T
	Quote(data *Data, children []T) T
	// Unknown formats a node with an unrecognized style.
	Unknown(tp string, data *Data, children []T) T
}

// Format applies the formatter to the document.
func Format[T any](doc *Document, f Formatter[T]) T {
	if doc == nil {
		return f.Text("")
	}
	return formatNode(doc.Copy().toTree(), f)
}

// FormatTree applies the formatter to a tree obtained from Tree.
func FormatTree[T any](tree *Node, f Formatter[T]) T {
	if tree == nil {
		return f.Text("")
	}
	return formatNode(tree, f)
}

// Tree returns the document converted to a tree of nodes.
func (d *Document) Tree() *Node {
	return d.Copy().toTree()
}

func formatNode[T any](n *Node, f Formatter[T]) T {
	if n.Tp == "" && n.Children == nil {
		return f.Text(n.Text)
	}

	var children []T
	if n.Children != nil {
		children = make([]T, 0, len(n.Children))
		for _, c := range n.Children {
			children = append(children, formatNode(c, f))
		}
	} else if n.Text != "" {
		children = []T{f.Text(n.Text)}
	}

	switch n.Tp {
	case "":
		return f.Join(children)
	case "ST":
		return f.Strong(n.Data, children)
	case "EM":
		return f.Emphasis(n.Data, children)
	case "DL":
		return f.Deleted(n.Data, children)
	case "CO":
		return f.Code(n.Data, children)
	case "HD":
		return f.Hidden(n.Data, children)
	case "BR":
		return f.LineBreak(n.Data, children)
	case "LN":
		return f.Link(n.Data, children)
	case "MN":
		return f.Mention(n.Data, children)
	case "HT":
		return f.Hashtag(n.Data, children)
	case "IM":
		return f.Image(n.Data, children)
	case "EX":
		return f.Attachment(n.Data, children)
	case "BN":
		return f.Button(n.Data, children)
	case "FM":
		return f.Form(n.Data, children)
	case "RW":
		return f.FormRow(n.Data, children)
	case "QQ":
		return f.Quote(n.Data, children)
	default:
		return f.Unknown(n.Tp, n.Data, children)
	}
}
