// Package policy turns invocation options into the immutable run policy:
// how old an idle-in-transaction session must be, how many are reported,
// and how many may be killed.
package policy

import (
	"strconv"
	"strings"
	"time"

	cerrors "github.com/p-blackswan/cleaniit/internal/errors"
)

// DefaultMinAgeMinutes is used when --min-age is not given (two hours).
const DefaultMinAgeMinutes = 120

// Limit is a count cap that may be absent.
// The zero value is Unlimited.
type Limit struct {
	n   int
	set bool
}

// Unlimited is the absent cap.
var Unlimited = Limit{}

// Max returns a cap of n. n must not be negative.
func Max(n int) Limit {
	return Limit{n: n, set: true}
}

// IsSet reports whether the cap bounds anything.
func (l Limit) IsSet() bool { return l.set }

// Value returns the cap and whether one is set.
func (l Limit) Value() (int, bool) { return l.n, l.set }

// Reached reports whether count has hit the cap.
func (l Limit) Reached(count int) bool {
	return l.set && count >= l.n
}

func (l Limit) String() string {
	if !l.set {
		return "unlimited"
	}
	return strconv.Itoa(l.n)
}

// MarshalYAML renders the cap as an integer or "unlimited".
func (l Limit) MarshalYAML() (interface{}, error) {
	if !l.set {
		return "unlimited", nil
	}
	return l.n, nil
}

// Policy is the resolved configuration for one run.
type Policy struct {
	MinAge      time.Duration
	DisplayCap  Limit
	KillCap     Limit
	KillEnabled bool
	DryRun      bool
	Verbose     bool
}

// Default returns the policy used when no options are given.
func Default() Policy {
	return Policy{MinAge: DefaultMinAgeMinutes * time.Minute}
}

// MinAgeMinutes returns the minimum age in whole minutes.
func (p Policy) MinAgeMinutes() int {
	return int(p.MinAge / time.Minute)
}

// Qualifies reports whether a session idle for age is old enough to be considered.
// Ages are compared in whole minutes, truncated toward zero.
func (p Policy) Qualifies(age time.Duration) bool {
	return int(age/time.Minute) >= p.MinAgeMinutes()
}

// Options are the raw invocation values. Empty strings mean "not given".
type Options struct {
	MinAge   string
	Max      string
	MaxCount string
	Kill     bool
	DryRun   bool
	Debug    bool
}

// Resolve validates opts and fills in defaults.
func Resolve(opts Options) (Policy, error) {
	p := Default()
	p.KillEnabled = opts.Kill
	p.DryRun = opts.DryRun
	p.Verbose = opts.Debug

	if opts.MinAge != "" {
		n, err := parseCount("min-age", opts.MinAge)
		if err != nil {
			return Policy{}, err
		}
		p.MinAge = time.Duration(n) * time.Minute
	}

	var err error
	if p.KillCap, err = parseLimit("max", opts.Max); err != nil {
		return Policy{}, err
	}
	if p.DisplayCap, err = parseLimit("max-cnt", opts.MaxCount); err != nil {
		return Policy{}, err
	}
	return p, nil
}

func parseLimit(flag, raw string) (Limit, error) {
	if raw == "" {
		return Unlimited, nil
	}
	n, err := parseCount(flag, raw)
	if err != nil {
		return Limit{}, err
	}
	return Max(n), nil
}

func parseCount(flag, raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, cerrors.Invalid("--%s expects a whole number, got %q", flag, raw)
	}
	if n < 0 {
		return 0, cerrors.Invalid("--%s must not be negative, got %d", flag, n)
	}
	return n, nil
}
