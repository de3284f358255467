// Package widget implements the guided inputs shown for the budget, group
// size and trip duration directives. A widget turns a selection into the
// message token sent back to the assistant.
package widget

import (
	"errors"
	"fmt"
	"strings"

	"tripwise-backend/internal/trip"
)

var ErrUnknownOption = errors.New("widget: unknown option")

// Option is one selectable card. Detail is what the assistant sees after
// the title.
type Option struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// Token is the message a selected option emits.
func (o Option) Token() string { return o.Title + ":" + o.Detail }

// Widget is a guided input for one directive.
type Widget interface {
	Kind() trip.Directive
	// Options lists the choices, nil for widgets without fixed choices.
	Options() []Option
	// Choose returns the token for the option with the given title.
	Choose(title string) (string, error)
}

type choice struct {
	kind    trip.Directive
	options []Option
}

func (c choice) Kind() trip.Directive { return c.kind }

func (c choice) Options() []Option { return append([]Option(nil), c.options...) }

func (c choice) Choose(title string) (string, error) {
	title = strings.TrimSpace(title)
	for _, o := range c.options {
		if strings.EqualFold(o.Title, title) {
			return o.Token(), nil
		}
	}
	return "", fmt.Errorf("%w: %s %q", ErrUnknownOption, c.kind, title)
}

var (
	budgetOptions = []Option{
		{Title: "Cheap", Detail: "Stay conscious of costs"},
		{Title: "Moderate", Detail: "Keep cost on the average side"},
		{Title: "Luxury", Detail: "Don't worry about cost"},
	}
	groupSizeOptions = []Option{
		{Title: "Just Me", Detail: "1"},
		{Title: "A Couple", Detail: "2 People"},
		{Title: "Family", Detail: "3 to 5 People"},
		{Title: "Friends", Detail: "5 to 10 People"},
	}
)

// Budget emits "<title>:<description>".
func Budget() Widget { return choice{kind: trip.DirectiveBudget, options: budgetOptions} }

// GroupSize emits "<title>:<people>".
func GroupSize() Widget { return choice{kind: trip.DirectiveGroupSize, options: groupSizeOptions} }

const (
	DefaultDays = 3
	MinDays     = 1
)

// TripDuration is a stepper over a number of days. It never goes below
// MinDays. The zero value is not ready for use; call NewTripDuration.
type TripDuration struct {
	days int
}

func NewTripDuration() *TripDuration { return &TripDuration{days: DefaultDays} }

func (d *TripDuration) Kind() trip.Directive { return trip.DirectiveTripDuration }

func (d *TripDuration) Options() []Option { return nil }

func (d *TripDuration) Days() int { return d.days }

func (d *TripDuration) Inc() int {
	d.days++
	return d.days
}

func (d *TripDuration) Dec() int {
	if d.days > MinDays {
		d.days--
	}
	return d.days
}

// Set moves the stepper to n, clamped to MinDays.
func (d *TripDuration) Set(n int) {
	if n < MinDays {
		n = MinDays
	}
	d.days = n
}

// Token is the message for the current value, e.g. "3 Days".
func (d *TripDuration) Token() string { return fmt.Sprintf("%d Days", d.days) }

// Choose accepts a confirmation with no title, or a day count.
func (d *TripDuration) Choose(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title != "" {
		var n int
		if _, err := fmt.Sscanf(title, "%d", &n); err != nil || n < MinDays {
			return "", fmt.Errorf("%w: %s %q", ErrUnknownOption, trip.DirectiveTripDuration, title)
		}
		d.days = n
	}
	return d.Token(), nil
}

// ForDirective returns the widget to render for ui, or nil when the
// directive has no guided input.
func ForDirective(ui trip.Directive) Widget {
	switch ui {
	case trip.DirectiveBudget:
		return Budget()
	case trip.DirectiveGroupSize:
		return GroupSize()
	case trip.DirectiveTripDuration:
		return NewTripDuration()
	}
	return nil
}
