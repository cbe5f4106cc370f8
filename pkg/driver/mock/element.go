package mock

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/devicelab-dev/domkit/pkg/core"
)

// Element is a mock implementation of core.Element. A shadow root is
// represented by its declarative <template> node.
type Element struct {
	page *Page
	node *html.Node
}

// Node returns the underlying HTML node.
func (e *Element) Node() *html.Node { return e.node }

func (e *Element) isShadowRoot() bool { return isOpenShadowTemplate(e.node) }

// live must be called with the page lock held.
func (e *Element) live() error {
	if err := e.page.check(); err != nil {
		return err
	}
	if !e.page.attached(e.node) {
		return core.ErrStaleElement.WithMessagef("%s is detached from the document", describeNode(e.node))
	}
	return nil
}

func (e *Element) read(fn func() error) error {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	if err := e.live(); err != nil {
		return err
	}
	return fn()
}

// QueryAll runs a CSS query below the element.
func (e *Element) QueryAll(ctx context.Context, selector string) ([]core.Element, error) {
	var out []core.Element
	err := e.read(func() error {
		out = e.page.queryCSS(e.node, selector)
		return nil
	})
	return out, err
}

// XPathAll evaluates expr with the element as context node.
func (e *Element) XPathAll(ctx context.Context, expr string) ([]core.Element, error) {
	var out []core.Element
	err := e.read(func() error {
		var err error
		out, err = e.page.queryXPath(e.node, expr)
		return err
	})
	return out, err
}

// ShadowRoot returns the open shadow root declared on the element.
func (e *Element) ShadowRoot(ctx context.Context) (core.Element, error) {
	var root core.Element
	err := e.read(func() error {
		for c := e.node.FirstChild; c != nil; c = c.NextSibling {
			if isOpenShadowTemplate(c) {
				root = &Element{page: e.page, node: c}
				return nil
			}
		}
		return core.ErrNoShadowRoot.WithMessagef("%s has no open shadow root", describeNode(e.node))
	})
	return root, err
}

// Click records the click, toggles checkboxes and radios, and runs matching
// OnClick handlers.
func (e *Element) Click(ctx context.Context, opts core.ClickOptions) error {
	p := e.page
	p.mu.Lock()
	if err := e.live(); err != nil {
		p.mu.Unlock()
		return err
	}
	if e.isShadowRoot() {
		p.mu.Unlock()
		return fmt.Errorf("mock: cannot click a shadow root")
	}
	if !opts.Force {
		if !visibleNode(e.node) {
			p.mu.Unlock()
			return core.ErrElementNotVisible.WithMessagef("%s is not visible", describeNode(e.node))
		}
		if hasAttr(e.node, "disabled") {
			p.mu.Unlock()
			return core.ErrElementNotVisible.WithMessagef("%s is disabled", describeNode(e.node))
		}
	}
	p.clicks = append(p.clicks, describeNode(e.node))
	p.focused = e.node
	switch inputType(e.node) {
	case "checkbox":
		if hasAttr(e.node, "checked") {
			removeAttr(e.node, "checked")
		} else {
			setAttr(e.node, "checked", "")
		}
	case "radio":
		setAttr(e.node, "checked", "")
	}
	handlers := p.matchingHandlers(e.node)
	popup, opens := isPopupLink(e.node)
	p.mu.Unlock()

	for _, fn := range handlers {
		if err := fn(ctx, p, e); err != nil {
			return err
		}
	}
	if opens && p.browser != nil {
		if _, err := p.openTab(ctx, popup); err != nil {
			return err
		}
	}
	return nil
}

// DragTo records the drag and runs OnDrop handlers registered for target.
// Without a handler the source node is moved to the end of target.
func (e *Element) DragTo(ctx context.Context, target core.Element) error {
	dst, ok := target.(*Element)
	if !ok || dst.page != e.page {
		return fmt.Errorf("mock: drop target must belong to the same page")
	}
	p := e.page
	p.mu.Lock()
	for _, el := range []*Element{e, dst} {
		if err := el.live(); err != nil {
			p.mu.Unlock()
			return err
		}
		if el.isShadowRoot() {
			p.mu.Unlock()
			return fmt.Errorf("mock: cannot drag to or from a shadow root")
		}
		if !visibleNode(el.node) {
			p.mu.Unlock()
			return core.ErrElementNotVisible.WithMessagef("%s is not visible", describeNode(el.node))
		}
	}
	for a := dst.node; a != nil; a = a.Parent {
		if a == e.node {
			p.mu.Unlock()
			return fmt.Errorf("mock: cannot drop %s into itself", describeNode(e.node))
		}
	}
	p.drags = append(p.drags, describeNode(e.node)+" -> "+describeNode(dst.node))
	handlers := p.matchingDrops(dst.node)
	if len(handlers) == 0 {
		e.node.Parent.RemoveChild(e.node)
		dst.node.AppendChild(e.node)
	}
	p.mu.Unlock()

	for _, fn := range handlers {
		if err := fn(ctx, p, e, dst); err != nil {
			return err
		}
	}
	return nil
}

// Fill sets the value of an input or textarea.
func (e *Element) Fill(ctx context.Context, value string) error {
	return e.read(func() error {
		if !fillable(e.node) {
			return fmt.Errorf("mock: %s is not an input, textarea or contenteditable element", describeNode(e.node))
		}
		if hasAttr(e.node, "readonly") {
			return fmt.Errorf("mock: %s is read-only", describeNode(e.node))
		}
		if _, ok := attr(e.node, "contenteditable"); ok {
			setText(e.node, value)
		} else {
			setAttr(e.node, "value", value)
		}
		e.page.focused = e.node
		return nil
	})
}

// Hover only checks the element is live.
func (e *Element) Hover(ctx context.Context) error {
	return e.read(func() error { return nil })
}

// ScrollIntoView records the element; the mock has no viewport.
func (e *Element) ScrollIntoView(ctx context.Context) error {
	return e.read(func() error {
		e.page.scrolls = append(e.page.scrolls, describeNode(e.node))
		return nil
	})
}

// SelectOption marks the options whose value or label is in values as
// selected.
func (e *Element) SelectOption(ctx context.Context, values ...string) error {
	return e.read(func() error {
		if e.node.DataAtom != atom.Select {
			return fmt.Errorf("mock: %s is not a <select>", describeNode(e.node))
		}
		want := make(map[string]bool, len(values))
		for _, v := range values {
			want[v] = true
		}
		matched := 0
		walk(e.node, func(n *html.Node) {
			if n.DataAtom != atom.Option {
				return
			}
			if want[optionValue(n)] || want[renderText(n)] {
				setAttr(n, "selected", "")
				matched++
			} else {
				removeAttr(n, "selected")
			}
		})
		if matched == 0 {
			return fmt.Errorf("mock: no option %q in %s", values, describeNode(e.node))
		}
		return nil
	})
}

// SetChecked sets the checked state of a checkbox or radio.
func (e *Element) SetChecked(ctx context.Context, checked bool) error {
	return e.read(func() error {
		switch inputType(e.node) {
		case "checkbox", "radio":
		default:
			return fmt.Errorf("mock: %s is not a checkbox or radio", describeNode(e.node))
		}
		if checked {
			setAttr(e.node, "checked", "")
		} else {
			removeAttr(e.node, "checked")
		}
		return nil
	})
}

// SetFiles stores the base name of the first file as the input value.
func (e *Element) SetFiles(ctx context.Context, paths ...string) error {
	return e.read(func() error {
		if inputType(e.node) != "file" {
			return fmt.Errorf("mock: %s is not a file input", describeNode(e.node))
		}
		names := make([]string, len(paths))
		for i, p := range paths {
			names[i] = filepath.Base(p)
		}
		setAttr(e.node, "value", strings.Join(names, ","))
		return nil
	})
}

// Text returns the rendered text with whitespace collapsed.
func (e *Element) Text(ctx context.Context) (string, error) {
	var s string
	err := e.read(func() error {
		s = renderText(e.node)
		return nil
	})
	return s, err
}

// Value returns the form value.
func (e *Element) Value(ctx context.Context) (string, error) {
	var s string
	err := e.read(func() error {
		switch e.node.DataAtom {
		case atom.Select:
			walk(e.node, func(n *html.Node) {
				if n.DataAtom == atom.Option && hasAttr(n, "selected") && s == "" {
					s = optionValue(n)
				}
			})
		case atom.Textarea:
			if v, ok := attr(e.node, "value"); ok {
				s = v
			} else {
				s = renderText(e.node)
			}
		default:
			s, _ = attr(e.node, "value")
		}
		return nil
	})
	return s, err
}

// Attribute reads an attribute.
func (e *Element) Attribute(ctx context.Context, name string) (string, bool, error) {
	var (
		v  string
		ok bool
	)
	err := e.read(func() error {
		v, ok = attr(e.node, name)
		return nil
	})
	return v, ok, err
}

// Visible reports whether neither the element nor an ancestor is hidden.
func (e *Element) Visible(ctx context.Context) (bool, error) {
	var v bool
	err := e.read(func() error {
		v = visibleNode(e.node)
		return nil
	})
	return v, err
}

// Enabled reports whether the element lacks a disabled attribute.
func (e *Element) Enabled(ctx context.Context) (bool, error) {
	var v bool
	err := e.read(func() error {
		v = !hasAttr(e.node, "disabled")
		return nil
	})
	return v, err
}

// Checked reports whether the element has a checked attribute.
func (e *Element) Checked(ctx context.Context) (bool, error) {
	var v bool
	err := e.read(func() error {
		v = hasAttr(e.node, "checked")
		return nil
	})
	return v, err
}

// Describe returns e.g. button#shadow-btn.
func (e *Element) Describe() string {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	return describeNode(e.node)
}

func describeNode(n *html.Node) string {
	if isOpenShadowTemplate(n) {
		if n.Parent != nil {
			return "#shadow-root(" + describeNode(n.Parent) + ")"
		}
		return "#shadow-root"
	}
	if n.Type == html.DocumentNode {
		return "#document"
	}
	var b strings.Builder
	b.WriteString(n.Data)
	if id, ok := attr(n, "id"); ok && id != "" {
		b.WriteString("#" + id)
	} else if class, ok := attr(n, "class"); ok {
		if fields := strings.Fields(class); len(fields) > 0 {
			b.WriteString("." + fields[0])
		}
	}
	return b.String()
}

func isOpenShadowTemplate(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode || n.DataAtom != atom.Template {
		return false
	}
	mode, ok := attr(n, "shadowrootmode")
	if !ok {
		mode, _ = attr(n, "shadowroot")
	}
	return mode == "open"
}

// crossesClosedBoundary reports whether n sits inside an inert template
// (a closed shadow root or a plain <template>) below root.
func crossesClosedBoundary(root, n *html.Node) bool {
	for a := n.Parent; a != nil && a != root; a = a.Parent {
		if a.DataAtom == atom.Template && !isOpenShadowTemplate(a) {
			return true
		}
	}
	return n.DataAtom == atom.Template
}

// crossesAnyBoundary reports whether n sits inside any template below root.
func crossesAnyBoundary(root, n *html.Node) bool {
	for a := n.Parent; a != nil && a != root; a = a.Parent {
		if a.DataAtom == atom.Template {
			return true
		}
	}
	return n.DataAtom == atom.Template
}

func visibleNode(n *html.Node) bool {
	for a := n; a != nil && a.Type == html.ElementNode; a = a.Parent {
		if a.DataAtom == atom.Template && !isOpenShadowTemplate(a) {
			return false
		}
		if hiddenSelf(a) {
			return false
		}
	}
	return true
}

// hiddenSelf reports whether n itself is hidden, ignoring its ancestors.
func hiddenSelf(n *html.Node) bool {
	if hasAttr(n, "hidden") || inputType(n) == "hidden" {
		return true
	}
	if style, ok := attr(n, "style"); ok {
		s := strings.ReplaceAll(strings.ToLower(style), " ", "")
		return strings.Contains(s, "display:none") || strings.Contains(s, "visibility:hidden")
	}
	return false
}

var blockElements = map[atom.Atom]bool{
	atom.Br: true, atom.Div: true, atom.P: true, atom.Li: true, atom.Tr: true,
	atom.Td: true, atom.Th: true, atom.Table: true, atom.Thead: true,
	atom.Tbody: true, atom.Option: true, atom.H1: true, atom.H2: true,
	atom.H3: true, atom.Section: true, atom.Ul: true, atom.Ol: true,
}

// renderText approximates innerText: text of n and its rendered light-DOM
// descendants, separated at block boundaries, whitespace collapsed.
func renderText(n *html.Node) string {
	var b strings.Builder
	var visit func(*html.Node)
	visit = func(c *html.Node) {
		switch c.Type {
		case html.TextNode:
			b.WriteString(c.Data)
			return
		case html.ElementNode:
			if c != n {
				switch c.DataAtom {
				case atom.Script, atom.Style, atom.Template:
					return
				}
				if hiddenSelf(c) {
					return
				}
			}
			if blockElements[c.DataAtom] {
				b.WriteByte(' ')
				defer b.WriteByte(' ')
			}
		}
		for k := c.FirstChild; k != nil; k = k.NextSibling {
			visit(k)
		}
	}
	visit(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func attr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

func hasAttr(n *html.Node, name string) bool {
	_, ok := attr(n, name)
	return ok
}

func setAttr(n *html.Node, name, value string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: value})
}

func removeAttr(n *html.Node, name string) {
	out := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Namespace != "" || a.Key != name {
			out = append(out, a)
		}
	}
	n.Attr = out
}

func setText(n *html.Node, s string) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: s})
}

func inputType(n *html.Node) string {
	if n.DataAtom != atom.Input {
		return ""
	}
	t, ok := attr(n, "type")
	if !ok {
		return "text"
	}
	return strings.ToLower(t)
}

func fillable(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Textarea:
		return true
	case atom.Input:
		switch inputType(n) {
		case "checkbox", "radio", "file", "submit", "button", "image", "reset", "hidden":
			return false
		}
		return true
	}
	v, ok := attr(n, "contenteditable")
	return ok && v != "false"
}

func optionValue(n *html.Node) string {
	if v, ok := attr(n, "value"); ok {
		return v
	}
	return renderText(n)
}
