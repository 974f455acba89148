package generic

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumanthpn07/lazyApply/internal/session"
	"github.com/sumanthpn07/lazyApply/internal/submission"
	"github.com/sumanthpn07/lazyApply/pkg/types"
)

// scriptedPage is a session.Page whose DOM is a set of present selectors
// plus a body text that may change after a click.
type scriptedPage struct {
	mu        sync.Mutex
	url       string
	present   map[string]bool
	body      string
	afterBody map[string]string // selector clicked -> new body
	fields    []session.FormField
	clicked   []string
	filled    map[string]string
}

func newPage(url string, present ...string) *scriptedPage {
	p := &scriptedPage{url: url, present: map[string]bool{}, afterBody: map[string]string{}, filled: map[string]string{}}
	for _, s := range present {
		p.present[s] = true
	}
	return p
}

func (p *scriptedPage) Navigate(ctx context.Context, url string) error { p.url = url; return nil }
func (p *scriptedPage) URL() string                                    { return p.url }
func (p *scriptedPage) Exists(ctx context.Context, sel string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.present[sel], nil
}
func (p *scriptedPage) Click(ctx context.Context, sel string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clicked = append(p.clicked, sel)
	if b, ok := p.afterBody[sel]; ok {
		p.body = b
	}
	return nil
}
func (p *scriptedPage) Fill(ctx context.Context, sel, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.filled[sel] = value
	return nil
}
func (p *scriptedPage) FormFields(ctx context.Context) ([]session.FormField, error) {
	return p.fields, nil
}
func (p *scriptedPage) BodyText(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.body, nil
}
func (p *scriptedPage) Close() error { return nil }

const submitSel = `button[type="submit"]`

func fastConfig() Config {
	return Config{ConfirmTimeout: 50 * time.Millisecond, PollInterval: 5 * time.Millisecond}
}

func job() types.Job {
	return types.Job{Ref: "j1", Target: "acme", URL: "https://jobs.acme.test/1"}
}

func TestSubmitFillsProfileAndConfirms(t *testing.T) {
	page := newPage("https://jobs.acme.test/1", submitSel)
	page.fields = []session.FormField{
		{Selector: "#email", Name: "email", Label: "Email", Kind: "text", Required: true},
		{Selector: "#phone", Name: "phone", Label: "Phone", Kind: "text"},
	}
	page.afterBody[submitSel] = "Thank you for applying to Acme!"

	r := New(fastConfig(), nil)
	out, err := r.Submit(context.Background(), page, job(), submission.MapProfile{"Email": "a@b.test"})
	require.NoError(t, err)
	assert.Equal(t, submission.KindSubmitted, out.Kind())
	assert.Equal(t, "a@b.test", page.filled["#email"])
	assert.NotContains(t, page.filled, "#phone")
	assert.Equal(t, []string{submitSel}, page.clicked)
}

func TestSubmitReportsMissingRequiredFieldsInOrder(t *testing.T) {
	page := newPage("https://jobs.acme.test/1", submitSel)
	page.fields = []session.FormField{
		{Selector: "#q1", Label: "Years of Go experience", Kind: "text", Required: true},
		{Selector: "#q2", Name: "visa", Label: "Visa status", Kind: "select", Required: true},
		{Selector: "#q3", Name: "done", Label: "Prefilled", Required: true, Value: "x"},
		{Selector: "#cv", Name: "resume", Label: "Resume", Kind: "file", Required: true},
	}

	out, err := New(fastConfig(), nil).Submit(context.Background(), page, job(), submission.MapProfile{"resume": "/tmp/cv.pdf"})
	require.NoError(t, err)
	require.Equal(t, submission.KindNeedsInput, out.Kind())

	keys := make([]string, 0, len(out.Fields()))
	for _, f := range out.Fields() {
		keys = append(keys, f.Key)
		assert.True(t, f.Required)
	}
	assert.Equal(t, []string{"years_of_go_experience", "visa", "resume"}, keys)
	assert.Empty(t, page.clicked, "must not submit with unanswered fields")
}

func TestSubmitDetectsLoginWall(t *testing.T) {
	page := newPage("https://acme.test/login?next=/jobs/1", `input[type="password"]`)

	out, err := New(fastConfig(), nil).Submit(context.Background(), page, job(), nil)
	require.NoError(t, err)
	assert.Equal(t, submission.KindAuthRequired, out.Kind())
	assert.Equal(t, "https://acme.test/login?next=/jobs/1", out.AuthURL())
	assert.Contains(t, out.Message(), "acme")
}

func TestSubmitDetectsChallenge(t *testing.T) {
	page := newPage("https://jobs.acme.test/1")
	page.body = "Please verify you are human before continuing"

	out, err := New(fastConfig(), nil).Submit(context.Background(), page, job(), nil)
	require.NoError(t, err)
	assert.Equal(t, submission.KindFailed, out.Kind())
	assert.True(t, out.Detection())
}

func TestSubmitChallengeSelectorWinsOverLogin(t *testing.T) {
	page := newPage("https://jobs.acme.test/1", `#challenge-form`, `input[type="password"]`)

	out, err := New(fastConfig(), nil).Submit(context.Background(), page, job(), nil)
	require.NoError(t, err)
	assert.True(t, out.Detection())
}

func TestSubmitClicksApplyThenHitsLogin(t *testing.T) {
	page := newPage("https://jobs.acme.test/1", `a[href*="/apply"]`)
	r := New(fastConfig(), nil)

	out, err := r.Submit(context.Background(), &loginAfterApply{scriptedPage: page}, job(), nil)
	require.NoError(t, err)
	assert.Equal(t, submission.KindAuthRequired, out.Kind())
	assert.Equal(t, []string{`a[href*="/apply"]`}, page.clicked)
}

// loginAfterApply reveals a login form once anything is clicked.
type loginAfterApply struct {
	*scriptedPage
}

func (p *loginAfterApply) Click(ctx context.Context, sel string) error {
	if err := p.scriptedPage.Click(ctx, sel); err != nil {
		return err
	}
	p.mu.Lock()
	p.present[`input[type="password"]`] = true
	p.mu.Unlock()
	return nil
}

func TestSubmitWithoutSubmitControlFails(t *testing.T) {
	page := newPage("https://jobs.acme.test/1")

	out, err := New(fastConfig(), nil).Submit(context.Background(), page, job(), nil)
	require.NoError(t, err)
	assert.Equal(t, submission.KindFailed, out.Kind())
	assert.False(t, out.Detection())
	assert.Equal(t, "no submit control found", out.Reason())
}

func TestSubmitWithoutConfirmationFails(t *testing.T) {
	page := newPage("https://jobs.acme.test/1", submitSel)

	out, err := New(fastConfig(), nil).Submit(context.Background(), page, job(), nil)
	require.NoError(t, err)
	assert.Equal(t, submission.KindFailed, out.Kind())
	assert.Equal(t, "no confirmation after submit", out.Reason())
}

func TestSubmitHonoursCancellation(t *testing.T) {
	page := newPage("https://jobs.acme.test/1", submitSel)
	cfg := fastConfig()
	cfg.ConfirmTimeout = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := New(cfg, nil).Submit(ctx, page, job(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFieldKeyFallsBackToLabel(t *testing.T) {
	assert.Equal(t, "email", fieldKey(session.FormField{Name: "email", Label: "E-mail"}))
	assert.Equal(t, "why_us?", fieldKey(session.FormField{Label: "  Why   us? "}))
}

func TestTargetAndDefaults(t *testing.T) {
	r := New(Config{}, nil)
	assert.Equal(t, Target, r.Target())
	assert.Equal(t, DefaultConfig().StepTimeout, r.cfg.StepTimeout)
	assert.True(t, strings.HasPrefix(r.cfg.SubmitSelectors[0], "button"))
}
