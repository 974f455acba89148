package submission

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumanthpn07/lazyApply/internal/session"
	"github.com/sumanthpn07/lazyApply/pkg/types"
)

type stubRoutine struct{ target string }

func (s stubRoutine) Target() string { return s.target }
func (s stubRoutine) Submit(context.Context, session.Page, types.Job, Profile) (Outcome, error) {
	return Submitted(), nil
}

func TestOutcomeConstructors(t *testing.T) {
	assert.Equal(t, KindSubmitted, Submitted().Kind())
	assert.True(t, Submitted().Valid())
	assert.False(t, Outcome{}.Valid())

	fields := []types.Field{{Key: "years_experience", Required: true}}
	ni := NeedsInput(fields)
	fields[0].Key = "mutated"
	assert.Equal(t, "years_experience", ni.Fields()[0].Key, "outcome keeps its own copy")

	f := Failed("timeout")
	assert.Equal(t, "timeout", f.Reason())
	assert.False(t, f.Detection())
	assert.True(t, f.WithDetection().Detection())
	assert.Equal(t, "detection", f.WithDetection().Label())
	assert.False(t, Submitted().WithDetection().Detection())

	d := DetectionTriggered("captcha")
	assert.Equal(t, KindFailed, d.Kind())
	assert.True(t, d.Detection())

	a := AuthRequired("https://login.example.com", "sign in")
	assert.Equal(t, KindAuthRequired, a.Kind())
	assert.Equal(t, "https://login.example.com", a.AuthURL())
	assert.Equal(t, "sign in", a.Message())
	assert.Equal(t, "auth_required", a.Label())
}

func TestRegistryResolve(t *testing.T) {
	fallback := stubRoutine{target: "*"}
	gh := stubRoutine{target: "Greenhouse"}

	r, err := NewRegistry(fallback, gh)
	require.NoError(t, err)

	assert.Equal(t, gh, r.Resolve("greenhouse"))
	assert.Equal(t, gh, r.Resolve(" GREENHOUSE "))
	assert.Equal(t, fallback, r.Resolve("unknown"))
	assert.Equal(t, []string{"greenhouse"}, r.Targets())
}

func TestRegistryRejectsBadInput(t *testing.T) {
	_, err := NewRegistry(nil)
	assert.Error(t, err)

	_, err = NewRegistry(stubRoutine{"*"}, stubRoutine{"lever"}, stubRoutine{"LEVER"})
	assert.Error(t, err)

	_, err = NewRegistry(stubRoutine{"*"}, stubRoutine{""})
	assert.Error(t, err)
}

func TestMapProfileLookup(t *testing.T) {
	p := MapProfile{"Years Experience": "7", "email": "me@example.com"}

	v, ok := p.Lookup("years_experience")
	require.True(t, ok)
	assert.Equal(t, "7", v)

	v, ok = p.Lookup("email")
	require.True(t, ok)
	assert.Equal(t, "me@example.com", v)

	_, ok = p.Lookup("salary")
	assert.False(t, ok)
}
