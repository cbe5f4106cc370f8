// Package table reads HTML tables by header name instead of position.
//
// Nothing is cached between calls: the header row and the body rows are read
// again on every operation, because data-driven pages re-render tables
// between steps.
package table

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/devicelab-dev/domkit/pkg/core"
	"github.com/devicelab-dev/domkit/pkg/locator"
	"github.com/devicelab-dev/domkit/pkg/logger"
)

// Queries used against the table element.
const (
	headerCells = "th"
	anyRows     = "tr"
	bodyRows    = "tbody tr"
	rowCells    = "./td"
)

// Schema is the ordered list of header texts of a table.
type Schema struct {
	Headers []string
}

// Index returns the zero-based column of header, or -1.
func (s Schema) Index(header string) int {
	for i, h := range s.Headers {
		if h == header {
			return i
		}
	}
	return -1
}

// Len returns the number of header cells.
func (s Schema) Len() int { return len(s.Headers) }

// Engine queries tables on a page.
type Engine struct {
	scope core.Scope
	log   *zap.Logger
	lopts []locator.Option
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithLocatorOptions sets how long the engine waits for the table element.
func WithLocatorOptions(opts ...locator.Option) Option {
	return func(e *Engine) { e.lopts = append(e.lopts, opts...) }
}

// New creates an engine over scope, usually a core.Page.
func New(scope core.Scope, opts ...Option) *Engine {
	e := &Engine{scope: scope, log: logger.Named("table")}
	for _, o := range opts {
		o(e)
	}
	return e
}

// table waits for the table element and returns it with its description.
func (e *Engine) table(ctx context.Context, ref locator.Ref) (core.Element, string, error) {
	h := locator.Resolve(e.scope, ref, e.lopts...)
	el, err := h.Element(ctx)
	if err != nil {
		return nil, h.String(), err
	}
	return el, h.String(), nil
}

func readSchema(ctx context.Context, tbl core.Element) (Schema, error) {
	cells, err := tbl.QueryAll(ctx, headerCells)
	if err != nil {
		return Schema{}, err
	}
	s := Schema{Headers: make([]string, 0, len(cells))}
	for _, c := range cells {
		txt, err := c.Text(ctx)
		if err != nil {
			return Schema{}, err
		}
		s.Headers = append(s.Headers, strings.TrimSpace(txt))
	}
	return s, nil
}

// ReadSchema returns the table's header texts in order.
func (e *Engine) ReadSchema(ctx context.Context, table locator.Ref) (Schema, error) {
	tbl, _, err := e.table(ctx, table)
	if err != nil {
		return Schema{}, err
	}
	return readSchema(ctx, tbl)
}

// GetTableCellValue returns the trimmed text of column in the first row whose
// text contains rowText. The row match ignores case and collapses
// whitespace, so rowText may span several cells.
//
// Errors: ErrColumnNotFound when no header equals column, ErrRowNotFound when
// no data row contains rowText, ErrCellNotFound when that row is too short.
func (e *Engine) GetTableCellValue(ctx context.Context, table locator.Ref, rowText, column string) (string, error) {
	tbl, desc, err := e.table(ctx, table)
	if err != nil {
		return "", err
	}
	schema, err := readSchema(ctx, tbl)
	if err != nil {
		return "", err
	}
	col := schema.Index(column)
	if col < 0 {
		return "", core.ErrColumnNotFound.
			WithMessagef("column %q not found in table %s", column, desc).
			WithDetails(map[string]interface{}{"column": column, "table": desc, "headers": schema.Headers})
	}

	rows, err := tbl.QueryAll(ctx, anyRows)
	if err != nil {
		return "", err
	}
	for _, row := range rows {
		cells, err := row.XPathAll(ctx, rowCells)
		if err != nil {
			return "", err
		}
		if len(cells) == 0 {
			// header row
			continue
		}
		txt, err := row.Text(ctx)
		if err != nil {
			return "", err
		}
		if !containsText(txt, rowText) {
			continue
		}
		if col >= len(cells) {
			return "", core.ErrCellNotFound.
				WithMessagef("row containing %q in table %s has no cell for column %q", rowText, desc, column).
				WithDetails(map[string]interface{}{"row": rowText, "column": column, "index": col, "cells": len(cells)})
		}
		value, err := cells[col].Text(ctx)
		if err != nil {
			return "", err
		}
		value = strings.TrimSpace(value)
		e.log.Debug("table cell",
			zap.String("table", desc),
			zap.String("row", rowText),
			zap.String("column", column),
			zap.String("value", value))
		return value, nil
	}

	return "", core.ErrRowNotFound.
		WithMessagef("no row containing %q in table %s", rowText, desc).
		WithDetails(map[string]interface{}{"row": rowText, "table": desc})
}

// VerifyRowExists reports whether some body row has, for every header in
// expected, a cell whose trimmed text equals the expected value. Every header
// is resolved before any row is read; a missing one fails with
// ErrHeaderNotFound.
func (e *Engine) VerifyRowExists(ctx context.Context, table locator.Ref, expected map[string]string) (bool, error) {
	idx, err := e.FindRow(ctx, table, expected)
	if err != nil {
		return false, err
	}
	return idx >= 0, nil
}

// FindRow returns the zero-based index among body rows of the first row
// matching expected, or -1. Matching follows VerifyRowExists.
func (e *Engine) FindRow(ctx context.Context, table locator.Ref, expected map[string]string) (int, error) {
	tbl, desc, err := e.table(ctx, table)
	if err != nil {
		return -1, err
	}
	schema, err := readSchema(ctx, tbl)
	if err != nil {
		return -1, err
	}

	headers := make([]string, 0, len(expected))
	for h := range expected {
		headers = append(headers, h)
	}
	sort.Strings(headers)

	cols := make(map[string]int, len(headers))
	for _, h := range headers {
		i := schema.Index(h)
		if i < 0 {
			return -1, core.ErrHeaderNotFound.
				WithMessagef("header %q not found in table %s", h, desc).
				WithDetails(map[string]interface{}{"header": h, "table": desc, "headers": schema.Headers})
		}
		cols[h] = i
	}

	rows, err := tbl.QueryAll(ctx, bodyRows)
	if err != nil {
		return -1, err
	}
	for r, row := range rows {
		ok, err := rowMatches(ctx, row, headers, cols, expected)
		if err != nil {
			return -1, err
		}
		if ok {
			e.log.Debug("row found", zap.String("table", desc), zap.Int("row", r))
			return r, nil
		}
	}
	return -1, nil
}

func rowMatches(ctx context.Context, row core.Element, headers []string, cols map[string]int, expected map[string]string) (bool, error) {
	cells, err := row.XPathAll(ctx, rowCells)
	if err != nil {
		return false, err
	}
	for _, h := range headers {
		i := cols[h]
		if i >= len(cells) {
			return false, nil
		}
		txt, err := cells[i].Text(ctx)
		if err != nil {
			return false, err
		}
		if strings.TrimSpace(txt) != expected[h] {
			return false, nil
		}
	}
	return true, nil
}

// containsText reports whether s contains sub, ignoring case and treating
// any run of whitespace as one space. Browsers join row cells with tabs and
// newlines in innerText.
func containsText(s, sub string) bool {
	return strings.Contains(normalizeSpace(strings.ToLower(s)), normalizeSpace(strings.ToLower(sub)))
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// GetRowCount returns the number of body rows.
func (e *Engine) GetRowCount(ctx context.Context, table locator.Ref) (int, error) {
	tbl, _, err := e.table(ctx, table)
	if err != nil {
		return 0, err
	}
	rows, err := tbl.QueryAll(ctx, bodyRows)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// GetColumnCount returns the number of header cells.
func (e *Engine) GetColumnCount(ctx context.Context, table locator.Ref) (int, error) {
	tbl, _, err := e.table(ctx, table)
	if err != nil {
		return 0, err
	}
	cells, err := tbl.QueryAll(ctx, headerCells)
	if err != nil {
		return 0, err
	}
	return len(cells), nil
}

// GetColumnValues returns the trimmed text of column in every body row.
// Rows too short to have the column contribute an empty string.
func (e *Engine) GetColumnValues(ctx context.Context, table locator.Ref, column string) ([]string, error) {
	tbl, desc, err := e.table(ctx, table)
	if err != nil {
		return nil, err
	}
	schema, err := readSchema(ctx, tbl)
	if err != nil {
		return nil, err
	}
	col := schema.Index(column)
	if col < 0 {
		return nil, core.ErrColumnNotFound.
			WithMessagef("column %q not found in table %s", column, desc).
			WithDetails(map[string]interface{}{"column": column, "table": desc, "headers": schema.Headers})
	}

	rows, err := tbl.QueryAll(ctx, bodyRows)
	if err != nil {
		return nil, err
	}
	values := make([]string, 0, len(rows))
	for _, row := range rows {
		cells, err := row.XPathAll(ctx, rowCells)
		if err != nil {
			return nil, err
		}
		if col >= len(cells) {
			values = append(values, "")
			continue
		}
		txt, err := cells[col].Text(ctx)
		if err != nil {
			return nil, err
		}
		values = append(values, strings.TrimSpace(txt))
	}
	return values, nil
}

// String returns the headers as [A, B].
func (s Schema) String() string {
	return fmt.Sprintf("[%s]", strings.Join(s.Headers, ", "))
}
