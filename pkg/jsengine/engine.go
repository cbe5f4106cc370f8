// Package jsengine provides JavaScript expression evaluation for flows.
package jsengine

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// Engine wraps a goja runtime with the globals flows rely on.
type Engine struct {
	runtime   *goja.Runtime
	variables map[string]interface{}
	output    map[string]interface{}
	page      PageInfo
	timers    *timerRegistry
	client    *http.Client
	log       *zap.Logger
	console   []string
	mu        sync.Mutex
}

// PageInfo is the page state exposed to scripts as the domkit global.
type PageInfo struct {
	CopiedText string
	URL        string
	Title      string
	Browser    string
	DialogText string
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger routes console output to l.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithHTTPClient sets the client used by the http global.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) { e.client = c }
}

// timerRegistry manages setTimeout/setInterval timers
type timerRegistry struct {
	timers    map[int]*time.Timer
	tickers   map[int]*time.Ticker
	nextID    int
	mu        sync.Mutex
	stopChan  chan struct{}
	closeOnce sync.Once
}

func newTimerRegistry() *timerRegistry {
	return &timerRegistry{
		timers:   make(map[int]*time.Timer),
		tickers:  make(map[int]*time.Ticker),
		nextID:   1,
		stopChan: make(chan struct{}),
	}
}

// New creates a new JS engine instance
func New(opts ...Option) *Engine {
	e := &Engine{
		runtime:   goja.New(),
		variables: make(map[string]interface{}),
		output:    make(map[string]interface{}),
		timers:    newTimerRegistry(),
		client:    &http.Client{},
		log:       zap.NewNop(),
	}
	for _, o := range opts {
		o(e)
	}

	e.setupBuiltins()
	return e
}

func (e *Engine) setupBuiltins() {
	e.setupConsole()
	e.setupTimers()

	e.runtime.Set("json", e.jsonFunc())
	e.runtime.Set("http", e.httpModule())

	// Values stored here are copied back into flow variables
	e.runtime.Set("output", e.output)

	e.runtime.Set("domkit", e.domkitObject())
}

// setupConsole adds console.log, console.error, etc.
func (e *Engine) setupConsole() {
	makeConsoleFunc := func(level string) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, arg := range call.Arguments {
				parts[i] = fmt.Sprint(arg.Export())
			}
			line := strings.Join(parts, " ")
			// Callers hold e.mu while the script runs.
			e.console = append(e.console, line)
			switch level {
			case "error":
				e.log.Error(line, zap.String("source", "console"))
			case "warn":
				e.log.Warn(line, zap.String("source", "console"))
			default:
				e.log.Info(line, zap.String("source", "console"))
			}
			return goja.Undefined()
		}
	}

	console := e.runtime.NewObject()
	console.Set("log", makeConsoleFunc("log"))
	console.Set("info", makeConsoleFunc("log"))
	console.Set("error", makeConsoleFunc("error"))
	console.Set("warn", makeConsoleFunc("warn"))
	e.runtime.Set("console", console)
}

// setupTimers adds setTimeout, setInterval, clearTimeout, clearInterval
func (e *Engine) setupTimers() {
	e.runtime.Set("setTimeout", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 2 {
			panic(e.runtime.NewTypeError("setTimeout requires 2 arguments"))
		}

		callback, ok := goja.AssertFunction(call.Arguments[0])
		if !ok {
			panic(e.runtime.NewTypeError("first argument must be a function"))
		}

		delay := call.Arguments[1].ToInteger()

		e.timers.mu.Lock()
		id := e.timers.nextID
		e.timers.nextID++

		timer := time.AfterFunc(time.Duration(delay)*time.Millisecond, func() {
			e.mu.Lock()
			defer e.mu.Unlock()

			if _, err := callback(goja.Undefined()); err != nil {
				e.log.Warn("setTimeout callback failed", zap.Error(err))
			}

			e.timers.mu.Lock()
			delete(e.timers.timers, id)
			e.timers.mu.Unlock()
		})

		e.timers.timers[id] = timer
		e.timers.mu.Unlock()

		return e.runtime.ToValue(id)
	})

	e.runtime.Set("clearTimeout", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			return goja.Undefined()
		}

		id := int(call.Arguments[0].ToInteger())

		e.timers.mu.Lock()
		if timer, ok := e.timers.timers[id]; ok {
			timer.Stop()
			delete(e.timers.timers, id)
		}
		e.timers.mu.Unlock()

		return goja.Undefined()
	})

	e.runtime.Set("setInterval", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 2 {
			panic(e.runtime.NewTypeError("setInterval requires 2 arguments"))
		}

		callback, ok := goja.AssertFunction(call.Arguments[0])
		if !ok {
			panic(e.runtime.NewTypeError("first argument must be a function"))
		}

		interval := call.Arguments[1].ToInteger()
		if interval <= 0 {
			interval = 1
		}

		e.timers.mu.Lock()
		id := e.timers.nextID
		e.timers.nextID++

		ticker := time.NewTicker(time.Duration(interval) * time.Millisecond)
		e.timers.tickers[id] = ticker
		e.timers.mu.Unlock()

		go func() {
			defer ticker.Stop()
			for {
				select {
				case <-e.timers.stopChan:
					return
				case <-ticker.C:
					e.mu.Lock()
					if _, err := callback(goja.Undefined()); err != nil {
						e.log.Warn("setInterval callback failed", zap.Error(err))
					}
					e.mu.Unlock()
				}
			}
		}()

		return e.runtime.ToValue(id)
	})

	e.runtime.Set("clearInterval", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			return goja.Undefined()
		}

		id := int(call.Arguments[0].ToInteger())

		e.timers.mu.Lock()
		if ticker, ok := e.timers.tickers[id]; ok {
			ticker.Stop()
			delete(e.timers.tickers, id)
		}
		e.timers.mu.Unlock()

		return goja.Undefined()
	})
}

// jsonFunc returns the json() helper function
func (e *Engine) jsonFunc() func(call goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			panic(e.runtime.NewTypeError("json requires 1 argument"))
		}

		str := call.Arguments[0].String()
		result, err := e.runtime.RunString(fmt.Sprintf("JSON.parse(%q)", str))
		if err != nil {
			panic(e.runtime.NewTypeError(fmt.Sprintf("invalid JSON: %v", err)))
		}

		return result
	}
}

// domkitObject returns the domkit global: read-only views of page state.
func (e *Engine) domkitObject() *goja.Object {
	obj := e.runtime.NewObject()

	getters := map[string]func() string{
		"copiedText": func() string { return e.page.CopiedText },
		"url":        func() string { return e.page.URL },
		"title":      func() string { return e.page.Title },
		"browser":    func() string { return e.page.Browser },
		"dialogText": func() string { return e.page.DialogText },
	}
	for name, get := range getters {
		obj.DefineAccessorProperty(name, e.runtime.ToValue(get), nil, goja.FLAG_FALSE, goja.FLAG_TRUE)
	}

	return obj
}

// SetVariable sets a variable accessible in JS as a global
func (e *Engine) SetVariable(name string, value interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.variables[name] = value
	e.runtime.Set(name, value)
}

// SetVariables sets multiple variables
func (e *Engine) SetVariables(vars map[string]interface{}) {
	for k, v := range vars {
		e.SetVariable(k, v)
	}
}

// UpdatePage applies fn to the page state seen by scripts.
func (e *Engine) UpdatePage(fn func(*PageInfo)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.page)
}

// Page returns a copy of the page state.
func (e *Engine) Page() PageInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.page
}

// SetCopiedText sets the copiedText value (from copyTextFrom and copyCellValue)
func (e *Engine) SetCopiedText(text string) {
	e.UpdatePage(func(p *PageInfo) { p.CopiedText = text })
}

// GetCopiedText returns the stored copiedText value
func (e *Engine) GetCopiedText() string {
	return e.Page().CopiedText
}

// ConsoleLines returns and clears the console output captured so far.
func (e *Engine) ConsoleLines() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	lines := e.console
	e.console = nil
	return lines
}

// GetOutput returns a copy of the output object (values set by scripts)
func (e *Engine) GetOutput() map[string]interface{} {
	e.mu.Lock()
	defer e.mu.Unlock()

	outputVal := e.runtime.Get("output")
	var source map[string]interface{}

	if outputVal != nil && !goja.IsUndefined(outputVal) {
		if m, ok := outputVal.Export().(map[string]interface{}); ok {
			source = m
		}
	}

	if source == nil {
		source = e.output
	}

	result := make(map[string]interface{}, len(source))
	for k, v := range source {
		result[k] = v
	}
	return result
}

// Eval evaluates a JavaScript expression and returns the result
func (e *Engine) Eval(script string) (interface{}, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	result, err := e.runtime.RunString(script)
	if err != nil {
		return nil, fmt.Errorf("JS eval error: %w", err)
	}

	return result.Export(), nil
}

// EvalString evaluates a JavaScript expression and returns string result
func (e *Engine) EvalString(script string) (string, error) {
	result, err := e.Eval(script)
	if err != nil {
		return "", err
	}

	if result == nil {
		return "", nil
	}

	return fmt.Sprintf("%v", result), nil
}

// RunScript runs a JavaScript file/script
func (e *Engine) RunScript(script string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.runtime.RunString(script); err != nil {
		return fmt.Errorf("JS runtime error: %w", err)
	}

	return nil
}

// DefineUndefinedIfMissing defines a variable as undefined if it's not already defined.
// This prevents ReferenceError when scripts reference variables that may not exist.
func (e *Engine) DefineUndefinedIfMissing(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	val := e.runtime.Get(name)
	if val == nil || goja.IsUndefined(val) {
		if _, exists := e.variables[name]; !exists {
			e.runtime.Set(name, goja.Undefined())
		}
	}
}

// ExpandVariables expands ${...} expressions in a string using JS evaluation.
// Expressions that fail to evaluate are left as written.
func (e *Engine) ExpandVariables(text string) (string, error) {
	result := text
	start := 0

	for {
		idx := strings.Index(result[start:], "${")
		if idx == -1 {
			break
		}
		idx += start

		depth := 1
		end := idx + 2
		for end < len(result) && depth > 0 {
			if result[end] == '{' {
				depth++
			} else if result[end] == '}' {
				depth--
			}
			end++
		}

		if depth != 0 {
			start = idx + 2
			continue
		}

		expr := result[idx+2 : end-1]
		value, err := e.EvalString(expr)
		if err != nil {
			start = end
			continue
		}

		result = result[:idx] + value + result[end:]
		start = idx + len(value)
	}

	return result, nil
}

// Close cleans up the engine (stops timers, etc.)
// Safe to call multiple times.
func (e *Engine) Close() {
	e.timers.closeOnce.Do(func() {
		e.timers.mu.Lock()
		defer e.timers.mu.Unlock()

		for _, timer := range e.timers.timers {
			timer.Stop()
		}
		e.timers.timers = make(map[int]*time.Timer)

		for _, ticker := range e.timers.tickers {
			ticker.Stop()
		}
		e.timers.tickers = make(map[int]*time.Ticker)

		close(e.timers.stopChan)
	})
}
