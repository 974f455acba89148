package governor

import (
	"fmt"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
)

// DefaultTarget keys the fallback policy used for unrecognized targets.
const DefaultTarget = "default"

// Policy is the static rate configuration of one target.
// A zero limit means the cap is not enforced.
type Policy struct {
	MinSpacing  time.Duration `mapstructure:"min_spacing" yaml:"min_spacing" validate:"gte=0"`
	MaxSpacing  time.Duration `mapstructure:"max_spacing" yaml:"max_spacing" validate:"gtefield=MinSpacing"`
	HourlyLimit int           `mapstructure:"hourly_limit" yaml:"hourly_limit" validate:"gte=0"`
	DailyLimit  int           `mapstructure:"daily_limit" yaml:"daily_limit" validate:"gte=0"`
}

// Policies maps a target identifier to its policy.
type Policies map[string]Policy

var validate = validator.New(validator.WithRequiredStructEnabled())

// DefaultPolicies is the built-in table used when configuration supplies none.
func DefaultPolicies() Policies {
	return Policies{
		DefaultTarget: {MinSpacing: 30 * time.Second, MaxSpacing: 90 * time.Second, HourlyLimit: 10, DailyLimit: 50},
		"linkedin":    {MinSpacing: 60 * time.Second, MaxSpacing: 180 * time.Second, HourlyLimit: 5, DailyLimit: 25},
		"greenhouse":  {MinSpacing: 20 * time.Second, MaxSpacing: 60 * time.Second, HourlyLimit: 15, DailyLimit: 75},
		"lever":       {MinSpacing: 20 * time.Second, MaxSpacing: 60 * time.Second, HourlyLimit: 15, DailyLimit: 75},
		"workday":     {MinSpacing: 45 * time.Second, MaxSpacing: 120 * time.Second, HourlyLimit: 8, DailyLimit: 40},
	}
}

// For returns the policy of target, or the default entry.
func (p Policies) For(target string) Policy {
	if pol, ok := p[target]; ok {
		return pol
	}
	return p[DefaultTarget]
}

// Validate checks every entry and requires a default entry.
func (p Policies) Validate() error {
	if _, ok := p[DefaultTarget]; !ok {
		return errors.WithHint(
			errors.Newf("policy table has no %q entry", DefaultTarget),
			"add a targets.default section to the configuration")
	}
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		pol := p[name]
		if err := validate.Struct(pol); err != nil {
			return errors.Wrapf(err, "invalid policy for target %q", name)
		}
	}
	return nil
}

// Clone returns a copy safe to hand to another goroutine.
func (p Policies) Clone() Policies {
	out := make(Policies, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

func (pol Policy) String() string {
	return fmt.Sprintf("spacing=%s..%s hourly=%d daily=%d",
		pol.MinSpacing, pol.MaxSpacing, pol.HourlyLimit, pol.DailyLimit)
}
