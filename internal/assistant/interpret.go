package assistant

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"tripwise-backend/internal/trip"
	"tripwise-backend/internal/types"
)

const (
	DefaultFinalResp = "Trip plan generated successfully."

	msgParse            = "Invalid response format from AI service. Please try again."
	msgInvalidFormat    = "Invalid response format."
	msgIncompletePlan   = "Incomplete trip plan received. Please try again."
	msgPlanMissingField = "Trip plan missing required information. Please try again."
	msgPlanCoordinates  = "Trip plan contains invalid locations. Please try again."
	msgEmpty            = "No response from AI service. Please try again."
)

// Result is a successfully interpreted turn. Plan is set for final turns
// only; Partial may be set for guided turns.
type Result struct {
	Resp     string
	UI       trip.Directive
	Partial  *trip.Plan
	Plan     *trip.Plan
	Repaired bool
}

// InterpretError classifies unusable generator output. Resp and UI are
// what the user should see; for an incomplete guided turn they carry
// whatever the generator did provide.
type InterpretError struct {
	Code  string
	Resp  string
	UI    trip.Directive
	Cause error
}

func (e *InterpretError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Cause)
	}
	return e.Code
}

func (e *InterpretError) Unwrap() error { return e.Cause }

// Interpret turns raw generator text into a Result. It performs no I/O.
func Interpret(raw string, isFinal bool) (*Result, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, &InterpretError{Code: types.ErrEmptyResponse, Resp: msgEmpty, UI: trip.DirectiveNone}
	}

	var obj map[string]json.RawMessage
	repaired := false
	if err := json.Unmarshal([]byte(raw), &obj); err != nil || obj == nil {
		if err2 := json.Unmarshal([]byte(Repair(raw)), &obj); err2 != nil || obj == nil {
			if err2 == nil {
				err2 = errors.New("response is not a JSON object")
			}
			return nil, &InterpretError{Code: types.ErrParse, Resp: msgParse, UI: trip.DirectiveNone, Cause: err2}
		}
		repaired = true
	}

	var (
		res *Result
		err error
	)
	if isFinal {
		res, err = interpretFinal(obj)
	} else {
		res, err = interpretTurn(obj)
	}
	if err != nil {
		return nil, err
	}
	res.Repaired = repaired
	return res, nil
}

func interpretTurn(obj map[string]json.RawMessage) (*Result, error) {
	resp, _ := jsonString(obj["resp"])
	ui, _ := jsonString(obj["ui"])
	dir := trip.Directive(strings.TrimSpace(ui))

	if strings.TrimSpace(resp) == "" || dir == "" {
		e := &InterpretError{Code: types.ErrIncompleteResponse, Resp: resp, UI: dir, Cause: errors.New("resp and ui are required")}
		if e.Resp == "" {
			e.Resp = msgInvalidFormat
		}
		if !e.UI.Generated() {
			e.UI = trip.DirectiveNone
		}
		return nil, e
	}
	if !dir.Generated() {
		return nil, &InterpretError{
			Code:  types.ErrIncompleteResponse,
			Resp:  resp,
			UI:    trip.DirectiveNone,
			Cause: fmt.Errorf("unknown ui directive %q", ui),
		}
	}

	res := &Result{Resp: resp, UI: dir}
	partial := obj["partial_trip_plan"]
	if isNull(partial) {
		partial = obj["trip_plan"]
	}
	if p, ok := decodePartial(partial); ok {
		res.Partial = p
	}
	return res, nil
}

func interpretFinal(obj map[string]json.RawMessage) (*Result, error) {
	raw := obj["trip_plan"]
	if isNull(raw) || !isObject(raw) {
		return nil, &InterpretError{
			Code:  types.ErrIncompleteResponse,
			Resp:  msgIncompletePlan,
			UI:    trip.DirectiveNone,
			Cause: errors.New("trip_plan is missing"),
		}
	}
	var plan trip.Plan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return nil, &InterpretError{Code: types.ErrIncompleteTripPlan, Resp: msgPlanMissingField, UI: trip.DirectiveNone, Cause: err}
	}
	if missing := plan.Missing(); len(missing) > 0 {
		return nil, &InterpretError{
			Code:  types.ErrIncompleteTripPlan,
			Resp:  msgPlanMissingField,
			UI:    trip.DirectiveNone,
			Cause: fmt.Errorf("trip_plan missing %s", strings.Join(missing, ", ")),
		}
	}
	if err := plan.Validate(); err != nil {
		return nil, &InterpretError{Code: types.ErrIncompleteTripPlan, Resp: msgPlanCoordinates, UI: trip.DirectiveNone, Cause: err}
	}

	resp, _ := jsonString(obj["resp"])
	if strings.TrimSpace(resp) == "" {
		resp = DefaultFinalResp
	}
	ui, _ := jsonString(obj["ui"])
	dir := trip.Directive(strings.TrimSpace(ui))
	if !dir.Generated() {
		dir = trip.DirectiveFinal
	}
	return &Result{Resp: resp, UI: dir, Plan: &plan}, nil
}

// decodePartial returns a partial plan when raw holds a usable one. Plans
// that fail to decode or carry out-of-range coordinates are dropped.
func decodePartial(raw json.RawMessage) (*trip.Plan, bool) {
	if !isObject(raw) {
		return nil, false
	}
	var p trip.Plan
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, false
	}
	if p.Empty() || p.Validate() != nil {
		return nil, false
	}
	return &p, true
}

func isNull(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}

func isObject(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return strings.HasPrefix(s, "{")
}
