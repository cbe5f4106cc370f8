package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/domkit/pkg/core"
	"github.com/devicelab-dev/domkit/pkg/driver/mock"
	"github.com/devicelab-dev/domkit/pkg/flow"
	"github.com/devicelab-dev/domkit/pkg/locator"
)

const listPage = `<html><body>
<ul id="todo"><li>Buy milk</li><li>Write report</li><li>Buy bread</li></ul>
<ul id="done"><li>Buy milk</li></ul>
<button id="save">Save</button>
</body></html>`

func TestBuildHandle(t *testing.T) {
	ctx := context.Background()
	p := mock.NewPage(listPage)

	tests := []struct {
		name string
		sel  flow.Selector
		want string
	}{
		{"css", flow.Selector{Query: "#save"}, "Save"},
		{"id", flow.Selector{ID: "save"}, "Save"},
		{"xpath", flow.Selector{XPath: "//button[@id='save']"}, "Save"},
		{"has text", flow.Selector{Query: "#todo li", HasText: "report"}, "Write report"},
		{"exact text", flow.Selector{Query: "li", ExactText: "Buy bread"}, "Buy bread"},
		{"index", flow.Selector{Query: "#todo li", Index: "2"}, "Buy bread"},
		{"has text then index", flow.Selector{Query: "#todo li", HasText: "Buy", Index: " 1 "}, "Buy bread"},
		{"within", flow.Selector{Query: "li", Within: &flow.Selector{Query: "#done"}}, "Buy milk"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := buildHandle(p, &tt.sel, locator.WithTimeout(100*time.Millisecond))
			require.NoError(t, err)
			got, err := h.Text(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildHandle_Errors(t *testing.T) {
	p := mock.NewPage(listPage)

	_, err := buildHandle(p, &flow.Selector{})
	if !errors.Is(err, core.ErrMissingRequired) {
		t.Errorf("empty selector: err = %v, want ErrMissingRequired", err)
	}

	_, err = buildHandle(p, &flow.Selector{Query: "li", Within: &flow.Selector{}})
	if !errors.Is(err, core.ErrMissingRequired) {
		t.Errorf("empty within: err = %v, want ErrMissingRequired", err)
	}

	for _, idx := range []string{"first", "-1", "1.5"} {
		_, err = buildHandle(p, &flow.Selector{Query: "li", Index: idx})
		if !errors.Is(err, core.ErrInvalidConfig) {
			t.Errorf("index %q: err = %v, want ErrInvalidConfig", idx, err)
		}
	}
}

func TestBuildHandle_IsLazy(t *testing.T) {
	ctx := context.Background()
	p := mock.NewPage(`<p id="late"></p>`)

	h, err := buildHandle(p, &flow.Selector{Query: "#message"}, locator.WithTimeout(500*time.Millisecond))
	require.NoError(t, err, "building a handle must not touch the page")

	require.NoError(t, p.SetContent(`<p id="message">Saved</p>`))
	got, err := h.Text(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Saved", got)
}

func TestResolveURL(t *testing.T) {
	tests := []struct {
		base, target, want string
	}{
		{"", "/login", "/login"},
		{"https://app.test/", "", ""},
		{"https://app.test/", "/login", "https://app.test/login"},
		{"https://app.test/shop/", "cart", "https://app.test/shop/cart"},
		{"https://app.test/shop/", "?q=1", "https://app.test/shop/?q=1"},
		{"https://app.test/", "https://other.test/x", "https://other.test/x"},
	}
	for _, tt := range tests {
		got, err := resolveURL(tt.base, tt.target)
		if err != nil {
			t.Errorf("resolveURL(%q, %q) error = %v", tt.base, tt.target, err)
			continue
		}
		if got != tt.want {
			t.Errorf("resolveURL(%q, %q) = %q, want %q", tt.base, tt.target, got, tt.want)
		}
	}

	if _, err := resolveURL("https://app.test/", "%zz"); !errors.Is(err, core.ErrInvalidConfig) {
		t.Errorf("invalid target: err = %v, want ErrInvalidConfig", err)
	}
}

func TestPageFunction(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"document.title", "() => (document.title)"},
		{"${document.title}", "() => (document.title)"},
		{"() => document.title", "() => document.title"},
		{"function() { return 1 }", "function() { return 1 }"},
		{"async () => fetch('/x')", "async () => fetch('/x')"},
	}
	for _, tt := range tests {
		if got := pageFunction(tt.in); got != tt.want {
			t.Errorf("pageFunction(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
