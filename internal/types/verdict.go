package types

import "fmt"

// Verdict is the binary judgment of whether a result satisfies the query
type Verdict int

const (
	// VerdictNotValid is the zero value so an unset verdict never routes to output
	VerdictNotValid Verdict = iota
	// VerdictValid means the result plausibly answers the query
	VerdictValid
)

func (v Verdict) String() string {
	if v == VerdictValid {
		return "valid"
	}
	return "not valid"
}

// MarshalText renders the verdict as its token
func (v Verdict) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText parses a verdict token written by MarshalText
func (v *Verdict) UnmarshalText(text []byte) error {
	switch string(text) {
	case "valid":
		*v = VerdictValid
	case "not valid":
		*v = VerdictNotValid
	default:
		return fmt.Errorf("unknown verdict %q", text)
	}
	return nil
}

// Route is the routing signal derived from a verdict
type Route int

const (
	// RouteToPlanner re-enters planning
	RouteToPlanner Route = iota
	// RouteToOutput proceeds to the output stage
	RouteToOutput
)

func (r Route) String() string {
	if r == RouteToOutput {
		return "output"
	}
	return "planner"
}

// MarshalText renders the route name
func (r Route) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText parses a route name written by MarshalText
func (r *Route) UnmarshalText(text []byte) error {
	switch string(text) {
	case "output":
		*r = RouteToOutput
	case "planner":
		*r = RouteToPlanner
	default:
		return fmt.Errorf("unknown route %q", text)
	}
	return nil
}
