package calendar

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/devicelab-dev/domkit/pkg/core"
	"github.com/devicelab-dev/domkit/pkg/locator"
	"github.com/devicelab-dev/domkit/pkg/logger"
)

// DefaultMaxSteps is the paging budget: two years of monthly steps.
const DefaultMaxSteps = 24

// Options names the picker's parts.
type Options struct {
	NextButton string `yaml:"nextButton"`
	PrevButton string `yaml:"prevButton"`
	Label      string `yaml:"label"`   // shows "Month YYYY"
	DayCell    string `yaml:"dayCell"` // one element per day, text is the day number
	MaxSteps   int    `yaml:"maxSteps"`
}

// DefaultOptions returns the selectors of the stock picker.
func DefaultOptions() Options {
	return Options{
		NextButton: "#next-month",
		PrevButton: "#prev-month",
		Label:      "#current-month-year",
		DayCell:    ".calendar-day",
		MaxSteps:   DefaultMaxSteps,
	}
}

// WithDefaults fills empty fields from DefaultOptions.
func (o Options) WithDefaults() Options {
	d := DefaultOptions()
	if o.NextButton == "" {
		o.NextButton = d.NextButton
	}
	if o.PrevButton == "" {
		o.PrevButton = d.PrevButton
	}
	if o.Label == "" {
		o.Label = d.Label
	}
	if o.DayCell == "" {
		o.DayCell = d.DayCell
	}
	if o.MaxSteps <= 0 {
		o.MaxSteps = d.MaxSteps
	}
	return o
}

// Navigator selects dates in a paged month picker.
type Navigator struct {
	scope core.Scope
	opts  Options
	log   *zap.Logger
	lopts []locator.Option
}

// Option configures a Navigator.
type Option func(*Navigator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(n *Navigator) {
		if l != nil {
			n.log = l
		}
	}
}

// WithLocatorOptions sets the wait settings used for every picker part.
func WithLocatorOptions(opts ...locator.Option) Option {
	return func(n *Navigator) { n.lopts = append(n.lopts, opts...) }
}

// New creates a navigator over scope. Empty fields of opts take defaults.
func New(scope core.Scope, opts Options, o ...Option) *Navigator {
	n := &Navigator{scope: scope, opts: opts.WithDefaults(), log: logger.Named("calendar")}
	for _, fn := range o {
		fn(n)
	}
	return n
}

// Options returns the effective options.
func (n *Navigator) Options() Options { return n.opts }

// SelectDate opens the picker, pages until the label shows the target month
// and clicks the day cell whose text is exactly the target day.
//
// The label is read again before every paging decision. When the target is
// still not shown after MaxSteps page clicks, ErrDateNotReachable is returned
// and no day is clicked. An unparsable target fails before the picker is
// opened.
func (n *Navigator) SelectDate(ctx context.Context, picker locator.Ref, target string) error {
	t, err := ParseTarget(target)
	if err != nil {
		return err
	}
	want := t.Period()

	if err := locator.Resolve(n.scope, picker, n.lopts...).Click(ctx); err != nil {
		return fmt.Errorf("open date picker: %w", err)
	}

	label := locator.New(n.scope, n.opts.Label, n.lopts...)
	next := locator.New(n.scope, n.opts.NextButton, n.lopts...)
	prev := locator.New(n.scope, n.opts.PrevButton, n.lopts...)

	for step := 0; ; step++ {
		text, err := label.Text(ctx)
		if err != nil {
			return fmt.Errorf("read calendar label: %w", err)
		}
		shown, err := ParsePeriod(text)
		if err != nil {
			return err
		}
		if shown == want {
			n.log.Debug("calendar aligned", zap.String("period", shown.String()), zap.Int("steps", step))
			break
		}
		if step >= n.opts.MaxSteps {
			return core.ErrDateNotReachable.
				WithMessagef("target date %q not reached within %d steps (showing %s)", target, n.opts.MaxSteps, shown).
				WithDetails(map[string]interface{}{"target": target, "shown": shown.String(), "steps": step})
		}

		button := next
		if shown > want {
			button = prev
		}
		n.log.Debug("calendar page",
			zap.String("shown", shown.String()),
			zap.String("target", want.String()),
			zap.String("button", button.String()))
		if err := button.Click(ctx); err != nil {
			return fmt.Errorf("page calendar from %s: %w", shown, err)
		}
	}

	day := locator.New(n.scope, n.opts.DayCell, n.lopts...).
		FilterText(regexp.MustCompile("^" + strconv.Itoa(t.Day) + "$"))
	if err := day.Click(ctx); err != nil {
		return fmt.Errorf("select day %d: %w", t.Day, err)
	}
	return nil
}

// FillNativeDate sets a standard <input type="date"> to date (YYYY-MM-DD).
func FillNativeDate(ctx context.Context, scope core.Scope, ref locator.Ref, date string, opts ...locator.Option) error {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return core.ErrInvalidDate.WithMessagef("native date %q is not YYYY-MM-DD", date)
	}
	if err := locator.Resolve(scope, ref, opts...).Fill(ctx, date); err != nil {
		return fmt.Errorf("fill native date %s: %w", date, err)
	}
	return nil
}

// FillNativeDate is FillNativeDate over the navigator's scope.
func (n *Navigator) FillNativeDate(ctx context.Context, ref locator.Ref, date string) error {
	return FillNativeDate(ctx, n.scope, ref, date, n.lopts...)
}
