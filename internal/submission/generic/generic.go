// ============================================================================
// lazyApply Generic Submission Routine
// ============================================================================
//
// Package: internal/submission/generic
// File: generic.go
// Purpose: Best-effort routine used for targets without a dedicated one.
//
// Steps (page is already at the job URL):
//   1. challenge page?          -> DetectionTriggered
//   2. login wall?              -> AuthRequired(current URL)
//   3. click an apply control if one exists, re-check 1 and 2
//   4. fill empty fields from the profile; collect unanswered required ones
//   5. any unanswered required  -> NeedsInput(fields)
//   6. click submit, poll body text for a confirmation marker
//   7. confirmation             -> Submitted, otherwise Failed
//
// ============================================================================

package generic

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/sumanthpn07/lazyApply/internal/logger"
	"github.com/sumanthpn07/lazyApply/internal/session"
	"github.com/sumanthpn07/lazyApply/internal/submission"
	"github.com/sumanthpn07/lazyApply/pkg/types"
)

// Target is the registry key of the generic routine.
const Target = "*"

// Config holds the heuristics. Zero fields take DefaultConfig values.
type Config struct {
	LoginSelectors      []string
	ChallengeSelectors  []string
	ChallengeMarkers    []string
	ApplySelectors      []string
	SubmitSelectors     []string
	ConfirmationMarkers []string
	StepTimeout         time.Duration
	ConfirmTimeout      time.Duration
	PollInterval        time.Duration
}

// DefaultConfig returns the built-in heuristics.
func DefaultConfig() Config {
	return Config{
		LoginSelectors: []string{
			`input[type="password"]`,
			`form[action*="login"]`,
			`form[action*="signin"]`,
		},
		ChallengeSelectors: []string{
			`iframe[src*="captcha"]`,
			`iframe[src*="challenges.cloudflare.com"]`,
			`#challenge-form`,
		},
		ChallengeMarkers: []string{
			"verify you are human",
			"unusual activity",
			"are you a robot",
			"access denied",
		},
		ApplySelectors: []string{
			`a[data-testid="apply-button"]`,
			`button[data-qa="apply"]`,
			`a[href*="/apply"]`,
			`#apply_button`,
		},
		SubmitSelectors: []string{
			`button[type="submit"]`,
			`input[type="submit"]`,
			`#submit_app`,
		},
		ConfirmationMarkers: []string{
			"application submitted",
			"thank you for applying",
			"application has been received",
			"thanks for applying",
		},
		StepTimeout:    20 * time.Second,
		ConfirmTimeout: 15 * time.Second,
		PollInterval:   500 * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if len(c.LoginSelectors) == 0 {
		c.LoginSelectors = d.LoginSelectors
	}
	if len(c.ChallengeSelectors) == 0 {
		c.ChallengeSelectors = d.ChallengeSelectors
	}
	if len(c.ChallengeMarkers) == 0 {
		c.ChallengeMarkers = d.ChallengeMarkers
	}
	if len(c.ApplySelectors) == 0 {
		c.ApplySelectors = d.ApplySelectors
	}
	if len(c.SubmitSelectors) == 0 {
		c.SubmitSelectors = d.SubmitSelectors
	}
	if len(c.ConfirmationMarkers) == 0 {
		c.ConfirmationMarkers = d.ConfirmationMarkers
	}
	if c.StepTimeout <= 0 {
		c.StepTimeout = d.StepTimeout
	}
	if c.ConfirmTimeout <= 0 {
		c.ConfirmTimeout = d.ConfirmTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	return c
}

// Routine is the generic best-effort submission routine.
type Routine struct {
	cfg Config
	log *zap.SugaredLogger
}

// New creates the generic routine.
func New(cfg Config, log *zap.SugaredLogger) *Routine {
	return &Routine{cfg: cfg.withDefaults(), log: logger.OrNop(log)}
}

// Target implements submission.Routine.
func (r *Routine) Target() string { return Target }

// Submit implements submission.Routine.
func (r *Routine) Submit(ctx context.Context, page session.Page, job types.Job, profile submission.Profile) (submission.Outcome, error) {
	if out, stop, err := r.checkBlockers(ctx, page, job); err != nil || stop {
		return out, err
	}

	if sel, ok, err := r.first(ctx, page, r.cfg.ApplySelectors); err != nil {
		return submission.Outcome{}, err
	} else if ok {
		if err := r.step(ctx, func(c context.Context) error { return page.Click(c, sel) }); err != nil {
			return submission.Outcome{}, errors.Wrap(err, "click apply")
		}
		if out, stop, err := r.checkBlockers(ctx, page, job); err != nil || stop {
			return out, err
		}
	}

	var fields []session.FormField
	err := r.step(ctx, func(c context.Context) error {
		var ferr error
		fields, ferr = page.FormFields(c)
		return ferr
	})
	if err != nil {
		return submission.Outcome{}, err
	}

	missing, err := r.fill(ctx, page, fields, profile)
	if err != nil {
		return submission.Outcome{}, err
	}
	if len(missing) > 0 {
		return submission.NeedsInput(missing), nil
	}

	sel, ok, err := r.first(ctx, page, r.cfg.SubmitSelectors)
	if err != nil {
		return submission.Outcome{}, err
	}
	if !ok {
		return submission.Failed("no submit control found"), nil
	}
	if err := r.step(ctx, func(c context.Context) error { return page.Click(c, sel) }); err != nil {
		return submission.Outcome{}, errors.Wrap(err, "click submit")
	}

	return r.awaitConfirmation(ctx, page, job)
}

// checkBlockers reports a detection or login wall on the current page.
func (r *Routine) checkBlockers(ctx context.Context, page session.Page, job types.Job) (submission.Outcome, bool, error) {
	if _, ok, err := r.first(ctx, page, r.cfg.ChallengeSelectors); err != nil {
		return submission.Outcome{}, true, err
	} else if ok {
		return submission.DetectionTriggered("challenge page shown by " + job.Target), true, nil
	}
	text, err := r.bodyText(ctx, page)
	if err != nil {
		return submission.Outcome{}, true, err
	}
	if marker, ok := containsAny(text, r.cfg.ChallengeMarkers); ok {
		return submission.DetectionTriggered(fmt.Sprintf("target reported %q", marker)), true, nil
	}
	if _, ok, err := r.first(ctx, page, r.cfg.LoginSelectors); err != nil {
		return submission.Outcome{}, true, err
	} else if ok {
		msg := fmt.Sprintf("sign in to %s in the browser window, then resume", job.Target)
		return submission.AuthRequired(page.URL(), msg), true, nil
	}
	return submission.Outcome{}, false, nil
}

// fill answers empty fields from the profile and returns required fields
// that stayed unanswered, in page order.
func (r *Routine) fill(ctx context.Context, page session.Page, fields []session.FormField, profile submission.Profile) ([]types.Field, error) {
	var missing []types.Field
	for _, f := range fields {
		if strings.TrimSpace(f.Value) != "" {
			continue
		}
		key := fieldKey(f)
		answer, ok := lookup(profile, key, f.Label)
		if !ok {
			if f.Required {
				missing = append(missing, types.Field{Key: key, Label: f.Label, Kind: f.Kind, Required: true})
			}
			continue
		}
		if f.Kind == "file" {
			// uploads need a dedicated routine
			if f.Required {
				missing = append(missing, types.Field{Key: key, Label: f.Label, Kind: f.Kind, Required: true})
			}
			continue
		}
		sel := f.Selector
		if err := r.step(ctx, func(c context.Context) error { return page.Fill(c, sel, answer) }); err != nil {
			return nil, errors.Wrapf(err, "fill %s", key)
		}
		r.log.Debugw("Filled field", "field", key)
	}
	return missing, nil
}

func (r *Routine) awaitConfirmation(ctx context.Context, page session.Page, job types.Job) (submission.Outcome, error) {
	deadline := time.Now().Add(r.cfg.ConfirmTimeout)
	for {
		text, err := r.bodyText(ctx, page)
		if err != nil {
			return submission.Outcome{}, err
		}
		if _, ok := containsAny(text, r.cfg.ConfirmationMarkers); ok {
			return submission.Submitted(), nil
		}
		if marker, ok := containsAny(text, r.cfg.ChallengeMarkers); ok {
			return submission.DetectionTriggered(fmt.Sprintf("target reported %q after submit", marker)), nil
		}
		if time.Now().After(deadline) {
			return submission.Failed("no confirmation after submit"), nil
		}
		select {
		case <-ctx.Done():
			return submission.Outcome{}, ctx.Err()
		case <-time.After(r.cfg.PollInterval):
		}
	}
}

func (r *Routine) first(ctx context.Context, page session.Page, selectors []string) (string, bool, error) {
	for _, sel := range selectors {
		var ok bool
		err := r.step(ctx, func(c context.Context) error {
			var e error
			ok, e = page.Exists(c, sel)
			return e
		})
		if err != nil {
			return "", false, errors.Wrapf(err, "probe %s", sel)
		}
		if ok {
			return sel, true, nil
		}
	}
	return "", false, nil
}

func (r *Routine) bodyText(ctx context.Context, page session.Page) (string, error) {
	var text string
	err := r.step(ctx, func(c context.Context) error {
		var e error
		text, e = page.BodyText(c)
		return e
	})
	return strings.ToLower(text), err
}

// step bounds one page interaction by StepTimeout.
func (r *Routine) step(ctx context.Context, fn func(context.Context) error) error {
	c, cancel := context.WithTimeout(ctx, r.cfg.StepTimeout)
	defer cancel()
	return fn(c)
}

func fieldKey(f session.FormField) string {
	if f.Name != "" {
		return f.Name
	}
	return strings.ToLower(strings.Join(strings.Fields(f.Label), "_"))
}

func lookup(p submission.Profile, key, label string) (string, bool) {
	if p == nil {
		return "", false
	}
	if v, ok := p.Lookup(key); ok {
		return v, true
	}
	if label != "" {
		return p.Lookup(label)
	}
	return "", false
}

func containsAny(text string, markers []string) (string, bool) {
	for _, m := range markers {
		if strings.Contains(text, strings.ToLower(m)) {
			return m, true
		}
	}
	return "", false
}
