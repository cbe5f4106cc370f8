package jsengine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/dop251/goja"
	"go.uber.org/zap"
)

const defaultHTTPTimeout = 30 * time.Second

// httpModule returns the http global. Flows use it to seed or inspect the
// application under test through its API:
//
//	var r = http.post(BASE + "/api/users", {body: {name: "Ada"}})
//	output.userId = r.json.id
//	var titles = http.get(BASE + "/orders").select("td.title")
func (e *Engine) httpModule() *goja.Object {
	obj := e.runtime.NewObject()

	for _, method := range []string{"GET", "POST", "PUT", "PATCH", "DELETE"} {
		method := method
		obj.Set(strings.ToLower(method), func(call goja.FunctionCall) goja.Value {
			return e.doHTTPRequest(method, call.Arguments)
		})
	}

	// http.request(method, url, [options])
	obj.Set("request", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 2 {
			panic(e.runtime.NewTypeError("http.request requires method and url"))
		}
		return e.doHTTPRequest(strings.ToUpper(call.Arguments[0].String()), call.Arguments[1:])
	})

	return obj
}

// requestOptions is the optional second argument of the http helpers.
type requestOptions struct {
	body        io.Reader
	contentType string
	headers     map[string]string
	timeout     time.Duration
}

func parseRequestOptions(v goja.Value) (requestOptions, error) {
	opts := requestOptions{headers: map[string]string{}, timeout: defaultHTTPTimeout}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return opts, nil
	}
	m, ok := v.Export().(map[string]interface{})
	if !ok {
		return opts, fmt.Errorf("options must be an object")
	}

	switch b := m["body"].(type) {
	case nil:
	case string:
		opts.body = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return opts, fmt.Errorf("encode body: %w", err)
		}
		opts.body = bytes.NewReader(data)
		opts.contentType = "application/json"
	}

	if h, ok := m["headers"].(map[string]interface{}); ok {
		for k, v := range h {
			opts.headers[k] = fmt.Sprint(v)
		}
	}

	switch t := m["timeout"].(type) {
	case int64:
		opts.timeout = time.Duration(t) * time.Millisecond
	case float64:
		opts.timeout = time.Duration(t * float64(time.Millisecond))
	}
	return opts, nil
}

// doHTTPRequest performs an HTTP request and returns the response object.
// Failures surface as JS TypeErrors so scripts can catch them.
func (e *Engine) doHTTPRequest(method string, args []goja.Value) goja.Value {
	if len(args) < 1 {
		panic(e.runtime.NewTypeError(fmt.Sprintf("http.%s requires url", strings.ToLower(method))))
	}
	url := args[0].String()

	var optArg goja.Value
	if len(args) > 1 {
		optArg = args[1]
	}
	opts, err := parseRequestOptions(optArg)
	if err != nil {
		panic(e.runtime.NewTypeError(err.Error()))
	}

	req, err := http.NewRequest(method, url, opts.body)
	if err != nil {
		panic(e.runtime.NewTypeError(fmt.Sprintf("failed to create request: %v", err)))
	}
	if opts.contentType != "" {
		req.Header.Set("Content-Type", opts.contentType)
	}
	for k, v := range opts.headers {
		req.Header.Set(k, v)
	}

	client := *e.client
	client.Timeout = opts.timeout

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		panic(e.runtime.NewTypeError(fmt.Sprintf("HTTP request failed: %v", err)))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		panic(e.runtime.NewTypeError(fmt.Sprintf("failed to read response: %v", err)))
	}
	e.log.Debug("script http request",
		zap.String("method", method),
		zap.String("url", url),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	return e.responseObject(resp, body)
}

func (e *Engine) responseObject(resp *http.Response, body []byte) *goja.Object {
	headers := make(map[string]string, len(resp.Header))
	for k, v := range resp.Header {
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}

	obj := e.runtime.NewObject()
	obj.Set("status", resp.StatusCode)
	obj.Set("body", string(body))
	obj.Set("headers", headers)
	obj.Set("ok", resp.StatusCode >= 200 && resp.StatusCode < 300)

	var parsed interface{}
	if err := json.Unmarshal(body, &parsed); err == nil {
		obj.Set("json", parsed)
	} else {
		obj.Set("json", goja.Null())
	}

	// select(css) returns the trimmed text of every match in an HTML body.
	obj.Set("select", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			panic(e.runtime.NewTypeError("select requires a selector"))
		}
		texts, err := selectTexts(body, call.Arguments[0].String())
		if err != nil {
			panic(e.runtime.NewTypeError(err.Error()))
		}
		return e.runtime.ToValue(texts)
	})

	return obj
}

// selectTexts runs a CSS query over an HTML document.
func selectTexts(body []byte, selector string) ([]interface{}, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	texts := []interface{}{}
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		texts = append(texts, strings.TrimSpace(s.Text()))
	})
	return texts, nil
}
