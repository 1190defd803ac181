package compiler

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// element is a parsed XML element that remembers the line it starts on.
type element struct {
	name     string
	line     int
	attrs    map[string]string
	parent   *element
	children []*element
	content  []contentPart
}

// contentPart is either a text run or a child element, in document order.
type contentPart struct {
	text  string
	child *element
}

func charsetReader(label string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(label) {
	case "iso-8859-1", "iso8859-1", "latin1":
		return charmap.ISO8859_1.NewDecoder().Reader(input), nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder().Reader(input), nil
	default:
		return nil, fmt.Errorf("unsupported charset: %s", label)
	}
}

// parseXML reads a whole document into an element tree.
func parseXML(r io.Reader) (*element, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charsetReader

	var root *element
	var stack []*element
	for {
		line, _ := dec.InputPos()
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse dialog document: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			el := &element{name: t.Name.Local, line: line, attrs: make(map[string]string, len(t.Attr))}
			for _, a := range t.Attr {
				el.attrs[a.Name.Local] = a.Value
			}
			if len(stack) == 0 {
				if root != nil {
					return nil, &CompileError{Line: line, Element: el.name, Msg: "more than one root element"}
				}
				root = el
			} else {
				parent := stack[len(stack)-1]
				el.parent = parent
				parent.children = append(parent.children, el)
				parent.content = append(parent.content, contentPart{child: el})
			}
			stack = append(stack, el)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				top := stack[len(stack)-1]
				top.content = append(top.content, contentPart{text: string(t)})
			}
		}
	}
	if root == nil {
		return nil, &CompileError{Msg: "empty dialog document"}
	}
	return root, nil
}

func (e *element) attr(name string) (string, bool) {
	v, ok := e.attrs[name]
	return v, ok
}

func (e *element) attrOr(name string) string {
	return e.attrs[name]
}

func (e *element) isOffline() bool {
	_, ok := e.attrs["isOffline"]
	return ok
}

// child returns the first child element with this name, or nil.
func (e *element) child(name string) *element {
	if e == nil {
		return nil
	}
	for _, c := range e.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

// childrenNamed returns the child elements with this name.
func (e *element) childrenNamed(name string) []*element {
	if e == nil {
		return nil
	}
	var out []*element
	for _, c := range e.children {
		if c.name == name {
			out = append(out, c)
		}
	}
	return out
}

// online returns the child elements that are not disabled.
func (e *element) online() []*element {
	out := make([]*element, 0, len(e.children))
	for _, c := range e.children {
		if !c.isOffline() {
			out = append(out, c)
		}
	}
	return out
}

// descendants returns the elements below e with this name, in document order.
// An empty name matches every element.
func (e *element) descendants(name string) []*element {
	var out []*element
	var walk func(*element)
	walk = func(n *element) {
		for _, c := range n.children {
			if name == "" || c.name == name {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(e)
	return out
}

// folder returns the first descendant folder with this label.
func (e *element) folder(label string) *element {
	for _, f := range e.descendants("folder") {
		if l, ok := f.attr("label"); ok && l == label {
			return f
		}
	}
	return nil
}

// value concatenates the text of e and of all its descendants.
func (e *element) value() string {
	if e == nil {
		return ""
	}
	var sb strings.Builder
	var walk func(*element)
	walk = func(n *element) {
		for _, p := range n.content {
			if p.child != nil {
				walk(p.child)
			} else {
				sb.WriteString(p.text)
			}
		}
	}
	walk(e)
	return sb.String()
}
