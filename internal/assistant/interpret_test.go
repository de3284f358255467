package assistant

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"tripwise-backend/internal/trip"
	"tripwise-backend/internal/types"
)

func interpretErr(t *testing.T, err error) *InterpretError {
	t.Helper()
	var ie *InterpretError
	if !errors.As(err, &ie) {
		t.Fatalf("expected *InterpretError, got %v", err)
	}
	return ie
}

func TestInterpretTurnDirectives(t *testing.T) {
	for _, ui := range []string{"budget", "groupSize", "tripDuration", "final", "none"} {
		t.Run(ui, func(t *testing.T) {
			res, err := Interpret(`{"resp":"How much do you want to spend?","ui":"`+ui+`"}`, false)
			if err != nil {
				t.Fatalf("Interpret: %v", err)
			}
			if string(res.UI) != ui || res.Resp == "" {
				t.Errorf("unexpected result %+v", res)
			}
			if res.Plan != nil {
				t.Error("guided turn must not carry a final plan")
			}
		})
	}
}

func TestInterpretTurnRejectsUnknownDirective(t *testing.T) {
	for _, ui := range []string{"source", "limit", "Budget"} {
		_, err := Interpret(`{"resp":"Where from?","ui":"`+ui+`"}`, false)
		ie := interpretErr(t, err)
		if ie.Code != types.ErrIncompleteResponse {
			t.Errorf("ui %q: code = %s", ui, ie.Code)
		}
		if ie.Resp != "Where from?" || ie.UI != trip.DirectiveNone {
			t.Errorf("ui %q: expected partial text with ui none, got %+v", ui, ie)
		}
	}
}

func TestInterpretTurnIncompleteKeepsPartialText(t *testing.T) {
	tests := []struct {
		raw      string
		wantResp string
		wantUI   trip.Directive
	}{
		{`{"resp":"Where are you starting from?"}`, "Where are you starting from?", trip.DirectiveNone},
		{`{"ui":"budget"}`, "Invalid response format.", trip.DirectiveBudget},
		{`{"resp":42,"ui":"budget"}`, "Invalid response format.", trip.DirectiveBudget},
		{`{}`, "Invalid response format.", trip.DirectiveNone},
	}
	for _, tt := range tests {
		_, err := Interpret(tt.raw, false)
		ie := interpretErr(t, err)
		if ie.Code != types.ErrIncompleteResponse {
			t.Errorf("%s: code = %s", tt.raw, ie.Code)
		}
		if ie.Resp != tt.wantResp || ie.UI != tt.wantUI {
			t.Errorf("%s: got resp=%q ui=%q", tt.raw, ie.Resp, ie.UI)
		}
	}
}

func TestInterpretTurnPartialPlan(t *testing.T) {
	raw := `{"resp":"What is your budget?","ui":"budget","partial_trip_plan":{"origin":"London","destination":"Tokyo","duration":5}}`
	res, err := Interpret(raw, false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Partial == nil {
		t.Fatal("expected partial plan")
	}
	if res.Partial.Origin != "London" || res.Partial.Duration != "5" {
		t.Errorf("unexpected partial %+v", res.Partial)
	}

	// an out-of-range partial plan is dropped, the turn still succeeds
	raw = `{"resp":"ok","ui":"none","partial_trip_plan":{"destination":"X","hotels":[{"hotel_name":"H","geo_coordinates":{"latitude":200,"longitude":0}}]}}`
	res, err = Interpret(raw, false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Partial != nil {
		t.Errorf("expected invalid partial plan to be dropped, got %+v", res.Partial)
	}
}

func TestInterpretFinalMissingPlan(t *testing.T) {
	for _, raw := range []string{
		`{"resp":"Here you go","ui":"final"}`,
		`{"trip_plan":null}`,
		`{"trip_plan":"Tokyo"}`,
	} {
		res, err := Interpret(raw, true)
		if res != nil {
			t.Fatalf("%s: expected no result, got %+v", raw, res)
		}
		if ie := interpretErr(t, err); ie.Code != types.ErrIncompleteResponse {
			t.Errorf("%s: code = %s", raw, ie.Code)
		}
	}
}

func TestInterpretFinalMissingFields(t *testing.T) {
	_, err := Interpret(`{"trip_plan":{"destination":"Tokyo","origin":"","duration":"3 Days"}}`, true)
	if ie := interpretErr(t, err); ie.Code != types.ErrIncompleteTripPlan {
		t.Errorf("code = %s", ie.Code)
	}
}

func TestInterpretFinalCoordinatesOutOfRange(t *testing.T) {
	raw := `{"trip_plan":{"destination":"Tokyo","origin":"London","duration":"3 Days",
		"itinerary":[{"day":1,"activities":[{"place_name":"Senso-ji","geo_coordinates":{"latitude":35.7,"longitude":-190}}]}]}}`
	_, err := Interpret(raw, true)
	ie := interpretErr(t, err)
	if ie.Code != types.ErrIncompleteTripPlan {
		t.Errorf("code = %s", ie.Code)
	}
	if !errors.Is(err, trip.ErrCoordinatesOutOfRange) {
		t.Errorf("expected coordinate error in chain, got %v", err)
	}
}

func TestInterpretFinalDefaults(t *testing.T) {
	raw := `{"trip_plan":{"destination":"Tokyo","origin":"London","duration":"3 Days","budget":"Moderate","group_size":"2 People",
		"hotels":[{"hotel_name":"Park Hyatt Tokyo","hotel_address":"3-7-1-2 Nishi-Shinjuku","price_per_night":"$450",
		"hotel_image_url":"https://images.unsplash.com/photo-1","geo_coordinates":{"latitude":35.6856,"longitude":139.6907},
		"rating":4.7,"description":"Quiet luxury"}]}}`
	res, err := Interpret(raw, true)
	if err != nil {
		t.Fatal(err)
	}
	if res.Resp != "Trip plan generated successfully." || res.UI != trip.DirectiveFinal {
		t.Errorf("expected defaults, got resp=%q ui=%q", res.Resp, res.UI)
	}
	if res.Plan == nil || res.Plan.Destination != "Tokyo" || len(res.Plan.Hotels) != 1 {
		t.Fatalf("unexpected plan %+v", res.Plan)
	}
	if res.Plan.Hotels[0].Rating != 4.7 {
		t.Errorf("rating = %v", res.Plan.Hotels[0].Rating)
	}
}

func TestInterpretFinalNumericStrings(t *testing.T) {
	const head = `{"trip_plan":{"destination":"Tokyo","origin":"London","duration":"3 Days",`
	tests := []struct {
		name  string
		body  string
		check func(t *testing.T, p *trip.Plan)
	}{
		{
			name: "rating as string",
			body: `"hotels":[{"hotel_name":"Gracery","rating":"4.5"}]}}`,
			check: func(t *testing.T, p *trip.Plan) {
				if p.Hotels[0].Rating != 4.5 {
					t.Errorf("rating = %v", p.Hotels[0].Rating)
				}
			},
		},
		{
			name: "day as string",
			body: `"itinerary":[{"day":"2","day_plan":"Asakusa","activities":[]}]}}`,
			check: func(t *testing.T, p *trip.Plan) {
				if p.Itinerary[0].Day != 2 {
					t.Errorf("day = %v", p.Itinerary[0].Day)
				}
			},
		},
		{
			name: "coordinates as strings",
			body: `"hotels":[{"hotel_name":"Gracery","geo_coordinates":{"latitude":"35.6","longitude":" 139.7 "}}]}}`,
			check: func(t *testing.T, p *trip.Plan) {
				c := p.Hotels[0].Coordinates
				if c == nil || c.Latitude != 35.6 || c.Longitude != 139.7 {
					t.Errorf("coordinates = %+v", c)
				}
			},
		},
		{
			name: "blank rating",
			body: `"hotels":[{"hotel_name":"Gracery","rating":""}]}}`,
			check: func(t *testing.T, p *trip.Plan) {
				if p.Hotels[0].Rating != 0 {
					t.Errorf("rating = %v", p.Hotels[0].Rating)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Interpret(head+tt.body, true)
			if err != nil {
				t.Fatalf("Interpret: %v", err)
			}
			tt.check(t, res.Plan)
		})
	}
}

func TestInterpretFinalBadNumbers(t *testing.T) {
	const head = `{"trip_plan":{"destination":"Tokyo","origin":"London","duration":"3 Days",`
	tests := []struct {
		name    string
		body    string
		inRange bool
	}{
		{"string latitude out of range", `"hotels":[{"hotel_name":"A","geo_coordinates":{"latitude":"95","longitude":"10"}}]}}`, true},
		{"latitude is not a number", `"hotels":[{"hotel_name":"A","geo_coordinates":{"latitude":"north","longitude":"10"}}]}}`, false},
		{"fractional day", `"itinerary":[{"day":"1.5","activities":[]}]}}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Interpret(head+tt.body, true)
			if ie := interpretErr(t, err); ie.Code != types.ErrIncompleteTripPlan {
				t.Errorf("code = %s", ie.Code)
			}
			if got := errors.Is(err, trip.ErrCoordinatesOutOfRange); got != tt.inRange {
				t.Errorf("coordinate range error = %v, want %v (%v)", got, tt.inRange, err)
			}
		})
	}
}

func TestInterpretFinalKeepsProvidedResp(t *testing.T) {
	res, err := Interpret(`{"resp":"Enjoy Tokyo!","ui":"final","trip_plan":{"destination":"Tokyo","origin":"London","duration":"3"}}`, true)
	if err != nil {
		t.Fatal(err)
	}
	if res.Resp != "Enjoy Tokyo!" {
		t.Errorf("resp = %q", res.Resp)
	}
}

func TestInterpretParseError(t *testing.T) {
	for _, raw := range []string{"Sure! Let me think about that.", `{"resp": "unterminated`, `[1,2,3]`} {
		_, err := Interpret(raw, false)
		if ie := interpretErr(t, err); ie.Code != types.ErrParse {
			t.Errorf("%q: code = %s", raw, ie.Code)
		}
	}
}

func TestInterpretEmpty(t *testing.T) {
	_, err := Interpret("  \n", true)
	if ie := interpretErr(t, err); ie.Code != types.ErrEmptyResponse {
		t.Errorf("code = %s", ie.Code)
	}
}

func TestInterpretRepairsFencedOutput(t *testing.T) {
	raw := "```json\n{\n\t\"resp\": \"Great choice!\",\n\t\"ui\": \"groupSize\",\n}\n```"
	res, err := Interpret(raw, false)
	if err != nil {
		t.Fatalf("expected repair to succeed: %v", err)
	}
	if !res.Repaired || res.UI != trip.DirectiveGroupSize || res.Resp != "Great choice!" {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestRepairIdempotentOnValidJSON(t *testing.T) {
	inputs := []string{
		`{"resp":"a, } b ] c","ui":"none"}`,
		"{\n  \"trip_plan\": {\n    \"destination\": \"New  York\",\n    \"hotels\": [ {\"hotel_name\": \"A \\\"B\\\" C\", \"rating\": 4.5} ]\n  }\n}",
		`{"nested":{"list":[1, 2, 3],"empty":{}},"s":"tab\tescaped"}`,
	}
	for _, in := range inputs {
		var direct, repaired any
		if err := json.Unmarshal([]byte(in), &direct); err != nil {
			t.Fatalf("test input must be valid JSON: %v", err)
		}
		if err := json.Unmarshal([]byte(Repair(in)), &repaired); err != nil {
			t.Fatalf("repaired output does not parse: %v\n%s", err, Repair(in))
		}
		if !reflect.DeepEqual(direct, repaired) {
			t.Errorf("parse results differ:\n direct   %v\n repaired %v", direct, repaired)
		}
	}
}

func TestRepair(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"fences", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"trailing commas", `{"a":[1,2,],"b":{"c":1,},}`, `{"a":[1,2],"b":{"c":1}}`},
		{"prose around object", `Here is the plan: {"a":1} Hope this helps!`, `{"a":1}`},
		{"raw newline in string", "{\"a\":\"line one\nline two\"}", `{"a":"line one line two"}`},
		{"whitespace runs", "{ \"a\" :\n\n\t 1 }", `{ "a" : 1 }`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Repair(tt.in); got != tt.want {
				t.Errorf("Repair() = %q, want %q", got, tt.want)
			}
		})
	}
}
