package trip

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Text is a string field that also accepts a JSON number or boolean on
// input. Generators regularly emit "duration": 3 instead of "3".
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*t = ""
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	case 't', 'f':
		var v bool
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*t = Text(fmt.Sprint(v))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("trip: expected string or number, got %s", b)
	}
	*t = Text(n.String())
	return nil
}

func (t Text) String() string { return string(t) }

func (t Text) Blank() bool { return strings.TrimSpace(string(t)) == "" }

// Number is a float that also accepts a numeric string such as "4.5" on
// input. Blank strings and null decode to zero. It marshals as a number.
type Number float64

func (n *Number) UnmarshalJSON(b []byte) error {
	v, err := lenientNumber(b)
	if err != nil {
		return err
	}
	*n = Number(v)
	return nil
}

// Count is a whole number with the same leniency as Number.
type Count int

func (c *Count) UnmarshalJSON(b []byte) error {
	v, err := lenientNumber(b)
	if err != nil {
		return err
	}
	if v != math.Trunc(v) {
		return fmt.Errorf("trip: expected a whole number, got %s", b)
	}
	*c = Count(v)
	return nil
}

func lenientNumber(b []byte) (float64, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return 0, nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return 0, err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("trip: expected a number, got %s", b)
		}
		return v, nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return 0, fmt.Errorf("trip: expected a number, got %s", b)
	}
	return v, nil
}
