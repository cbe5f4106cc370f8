package rod

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/devicelab-dev/domkit/pkg/core"
)

// Element is a remote object handle for a node or shadow root.
type Element struct {
	page *Page
	el   *rod.Element

	descOnce sync.Once
	desc     string
}

// Rod returns the underlying rod element.
func (e *Element) Rod() *rod.Element { return e.el }

func (e *Element) with(ctx context.Context) *rod.Element {
	return e.el.Context(ctx)
}

func (e *Element) eval(ctx context.Context, js string, args ...interface{}) (*proto.RuntimeRemoteObject, error) {
	return e.with(ctx).Evaluate(rod.Eval(js, args...))
}

// live fails with ErrStaleElement once the node has left its document.
func (e *Element) live(ctx context.Context, op string) error {
	res, err := e.eval(ctx, connectedJS)
	if err != nil {
		return mapErr(err, op)
	}
	if !res.Value.Bool() {
		return core.ErrStaleElement.WithMessagef("%s: %s is no longer attached", op, e.Describe())
	}
	return nil
}

// QueryAll returns matches under the element, piercing open shadow roots.
func (e *Element) QueryAll(ctx context.Context, selector string) ([]core.Element, error) {
	els, err := e.with(ctx).ElementsByJS(rod.Eval(deepQueryJS, selector))
	if err != nil {
		return nil, mapErr(err, fmt.Sprintf("query %q", selector))
	}
	return e.page.wrap(els), nil
}

// XPathAll evaluates expr relative to the element.
func (e *Element) XPathAll(ctx context.Context, expr string) ([]core.Element, error) {
	els, err := e.with(ctx).ElementsByJS(rod.Eval(xpathJS, expr))
	if err != nil {
		return nil, mapErr(err, fmt.Sprintf("xpath %q", expr))
	}
	return e.page.wrap(els), nil
}

// ShadowRoot reads element.shadowRoot in the page. Closed roots read as
// null and report ErrNoShadowRoot.
func (e *Element) ShadowRoot(ctx context.Context) (core.Element, error) {
	res, err := e.with(ctx).Evaluate(rod.Eval(shadowRootJS).ByObject())
	if err != nil {
		return nil, mapErr(err, "read shadow root")
	}
	if res.ObjectID == "" || res.Subtype == proto.RuntimeRemoteObjectSubtypeNull {
		return nil, core.ErrNoShadowRoot.WithMessagef("%s has no open shadow root", e.Describe())
	}
	root, err := e.page.page.Context(ctx).ElementFromObject(res)
	if err != nil {
		return nil, mapErr(err, "wrap shadow root")
	}
	return &Element{page: e.page, el: root}, nil
}

func mouseButton(b core.MouseButton) proto.InputMouseButton {
	switch b {
	case core.ButtonRight:
		return proto.InputMouseButtonRight
	case core.ButtonMiddle:
		return proto.InputMouseButtonMiddle
	default:
		return proto.InputMouseButtonLeft
	}
}

// Click scrolls the element into view and clicks its center. With Force the
// click is dispatched in the page without actionability checks.
func (e *Element) Click(ctx context.Context, opts core.ClickOptions) error {
	opts = opts.Normalize()
	if opts.Force {
		for i := 0; i < opts.ClickCount; i++ {
			if _, err := e.eval(ctx, forceClickJS); err != nil {
				return mapErr(err, "click "+e.Describe())
			}
		}
		return nil
	}
	if err := e.actionable(ctx, "click"); err != nil {
		return err
	}
	return mapErr(e.with(ctx).Click(mouseButton(opts.Button), opts.ClickCount), "click "+e.Describe())
}

func (e *Element) actionable(ctx context.Context, op string) error {
	if err := e.live(ctx, op); err != nil {
		return err
	}
	visible, err := e.Visible(ctx)
	if err != nil {
		return err
	}
	enabled, err := e.Enabled(ctx)
	if err != nil {
		return err
	}
	if !visible || !enabled {
		return core.ErrElementNotVisible.WithMessagef("%s %s: not visible and enabled", op, e.Describe())
	}
	return nil
}

// Fill replaces the element's value. Text-like inputs are typed into so key
// handlers fire; other input types get their value set directly.
func (e *Element) Fill(ctx context.Context, value string) error {
	if err := e.actionable(ctx, "fill"); err != nil {
		return err
	}
	res, err := e.eval(ctx, inputTypeJS)
	if err != nil {
		return mapErr(err, "fill "+e.Describe())
	}
	switch typ := res.Value.Str(); typ {
	case "date", "time", "datetime-local", "month", "week", "color", "range", "select":
		_, err = e.eval(ctx, fillJS, value)
		return mapErr(err, "fill "+e.Describe())
	case "checkbox", "radio", "file", "button", "submit", "reset", "image":
		return fmt.Errorf("fill %s: cannot fill input of type %s", e.Describe(), typ)
	}

	el := e.with(ctx)
	if err := el.SelectAllText(); err != nil {
		return mapErr(err, "fill "+e.Describe())
	}
	return mapErr(el.Input(value), "fill "+e.Describe())
}

// Hover moves the mouse over the element.
func (e *Element) Hover(ctx context.Context) error {
	return mapErr(e.with(ctx).Hover(), "hover "+e.Describe())
}

// ScrollIntoView scrolls the element into the viewport.
func (e *Element) ScrollIntoView(ctx context.Context) error {
	return mapErr(e.with(ctx).ScrollIntoView(), "scroll "+e.Describe())
}

// DragTo drags the element onto target with the mouse. Elements marked
// draggable get the HTML5 drag events instead, which CDP mouse input does
// not produce.
func (e *Element) DragTo(ctx context.Context, target core.Element) error {
	dst, ok := target.(*Element)
	if !ok || dst.page.page.TargetID != e.page.page.TargetID {
		return fmt.Errorf("drag %s: target belongs to another page", e.Describe())
	}
	op := "drag " + e.Describe() + " to " + dst.Describe()
	if err := e.actionable(ctx, "drag"); err != nil {
		return err
	}
	if err := dst.live(ctx, "drop"); err != nil {
		return err
	}

	res, err := e.eval(ctx, draggableJS)
	if err != nil {
		return mapErr(err, op)
	}
	if res.Value.Bool() {
		_, err := e.eval(ctx, html5DragJS, dst.el.Object)
		return mapErr(err, op)
	}

	from, err := e.with(ctx).WaitInteractable()
	if err != nil {
		return mapErr(err, op)
	}
	mouse := e.page.page.Context(ctx).Mouse
	if err := mouse.MoveTo(*from); err != nil {
		return mapErr(err, op)
	}
	if err := mouse.Down(proto.InputMouseButtonLeft, 1); err != nil {
		return mapErr(err, op)
	}
	if err := dst.with(ctx).ScrollIntoView(); err != nil {
		_ = mouse.Up(proto.InputMouseButtonLeft, 1)
		return mapErr(err, op)
	}
	shape, err := dst.with(ctx).Shape()
	if err != nil {
		_ = mouse.Up(proto.InputMouseButtonLeft, 1)
		return mapErr(err, op)
	}
	to := shape.OnePointInside()
	if to == nil {
		_ = mouse.Up(proto.InputMouseButtonLeft, 1)
		return core.ErrElementNotVisible.WithMessagef("%s: target has no box", op)
	}
	if err := mouse.MoveLinear(*to, 10); err != nil {
		_ = mouse.Up(proto.InputMouseButtonLeft, 1)
		return mapErr(err, op)
	}
	return mapErr(mouse.Up(proto.InputMouseButtonLeft, 1), op)
}

// SelectOption selects options of a <select> by value or label.
func (e *Element) SelectOption(ctx context.Context, values ...string) error {
	res, err := e.eval(ctx, selectJS, values)
	if err != nil {
		return mapErr(err, "select "+e.Describe())
	}
	if res.Value.Int() == 0 {
		return core.ErrElementNotFound.WithMessagef("select %s: no option matches %q", e.Describe(), values)
	}
	return nil
}

// SetChecked clicks a checkbox or radio when its state differs.
func (e *Element) SetChecked(ctx context.Context, checked bool) error {
	cur, err := e.Checked(ctx)
	if err != nil {
		return err
	}
	if cur == checked {
		return nil
	}
	return e.Click(ctx, core.ClickOptions{})
}

// SetFiles sets the files of an <input type=file>.
func (e *Element) SetFiles(ctx context.Context, paths ...string) error {
	return mapErr(e.with(ctx).SetFiles(paths), "set files "+e.Describe())
}

// Text returns the element's innerText.
func (e *Element) Text(ctx context.Context) (string, error) {
	s, err := e.with(ctx).Text()
	if err != nil {
		return "", mapErr(err, "read text")
	}
	return s, nil
}

// Value returns the form value.
func (e *Element) Value(ctx context.Context) (string, error) {
	res, err := e.eval(ctx, valueJS)
	if err != nil {
		return "", mapErr(err, "read value")
	}
	return res.Value.Str(), nil
}

// Attribute returns an attribute and whether it is present.
func (e *Element) Attribute(ctx context.Context, name string) (string, bool, error) {
	v, err := e.with(ctx).Attribute(name)
	if err != nil {
		return "", false, mapErr(err, "read attribute "+name)
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

// Visible reports whether the element is rendered with a non-empty box.
func (e *Element) Visible(ctx context.Context) (bool, error) {
	v, err := e.with(ctx).Visible()
	if err != nil {
		return false, mapErr(err, "read visibility")
	}
	return v, nil
}

// Enabled reports whether the element is not disabled, directly or through
// a disabled fieldset.
func (e *Element) Enabled(ctx context.Context) (bool, error) {
	res, err := e.eval(ctx, enabledJS)
	if err != nil {
		return false, mapErr(err, "read enabled")
	}
	return res.Value.Bool(), nil
}

// Checked reports the checked state of a checkbox or radio.
func (e *Element) Checked(ctx context.Context) (bool, error) {
	res, err := e.eval(ctx, checkedJS)
	if err != nil {
		return false, mapErr(err, "read checked")
	}
	return res.Value.Bool(), nil
}

// Describe returns tag#id or tag.class, read once from the page.
func (e *Element) Describe() string {
	e.descOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		e.desc = "element"
		if res, err := e.eval(ctx, describeJS); err == nil {
			e.desc = res.Value.Str()
		}
	})
	return e.desc
}
