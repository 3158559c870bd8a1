package recommend

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// Parameter is one tunable recommendation target.
type Parameter string

const (
	Acousticness     Parameter = "acousticness"
	Energy           Parameter = "energy"
	Liveness         Parameter = "liveness"
	Danceability     Parameter = "danceability"
	Instrumentalness Parameter = "instrumentalness"
)

// AllParameters returns every parameter in display order.
func AllParameters() []Parameter {
	return []Parameter{Acousticness, Energy, Liveness, Danceability, Instrumentalness}
}

// Key returns the request key for the parameter.
func (p Parameter) Key() string {
	return "target_" + string(p)
}

// ParseParameter accepts a parameter name with or without the target_ prefix.
func ParseParameter(s string) (Parameter, error) {
	name := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "target_")
	for _, p := range AllParameters() {
		if string(p) == name {
			return p, nil
		}
	}
	return "", errors.Newf("unknown parameter: %q", s)
}

// Target is the UI state of one parameter. Value is on the 0-100 scale.
type Target struct {
	Enabled bool `json:"enabled"`
	Value   int  `json:"value"`
}

// Parameters holds the targets of every parameter. All start disabled at 50.
type Parameters struct {
	targets map[Parameter]Target
}

// NewParameters creates the default parameter set.
func NewParameters() *Parameters {
	targets := make(map[Parameter]Target, len(AllParameters()))
	for _, p := range AllParameters() {
		targets[p] = Target{Value: 50}
	}
	return &Parameters{targets: targets}
}

// Set stores value clamped to 0..100 without touching the enabled flag.
func (ps *Parameters) Set(p Parameter, value int) error {
	t, ok := ps.targets[p]
	if !ok {
		return errors.Newf("unknown parameter: %q", p)
	}
	t.Value = min(max(value, 0), 100)
	ps.targets[p] = t
	return nil
}

// Enable toggles whether the parameter is sent.
func (ps *Parameters) Enable(p Parameter, enabled bool) error {
	t, ok := ps.targets[p]
	if !ok {
		return errors.Newf("unknown parameter: %q", p)
	}
	t.Enabled = enabled
	ps.targets[p] = t
	return nil
}

// Get returns the target for p.
func (ps *Parameters) Get(p Parameter) (Target, bool) {
	t, ok := ps.targets[p]
	return t, ok
}

// All returns a copy of every target keyed by parameter name.
func (ps *Parameters) All() map[string]Target {
	out := make(map[string]Target, len(ps.targets))
	for p, t := range ps.targets {
		out[string(p)] = t
	}
	return out
}
