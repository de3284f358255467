package trip

// Directive tells the client which guided input to show next.
type Directive string

const (
	DirectiveBudget       Directive = "budget"
	DirectiveGroupSize    Directive = "groupSize"
	DirectiveTripDuration Directive = "tripDuration"
	DirectiveFinal        Directive = "final"
	DirectiveLimit        Directive = "limit"
	DirectiveNone         Directive = "none"
)

// Generated reports whether a generator may emit d. "limit" is reserved
// for quota failures raised by the service itself.
func (d Directive) Generated() bool {
	switch d {
	case DirectiveBudget, DirectiveGroupSize, DirectiveTripDuration, DirectiveFinal, DirectiveNone:
		return true
	}
	return false
}

func (d Directive) Valid() bool {
	return d == DirectiveLimit || d.Generated()
}
