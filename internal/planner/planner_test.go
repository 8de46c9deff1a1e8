package planner

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahul/autopilot/internal/catalog"
)

func composeTemplate() catalog.TaskTemplate {
	return catalog.TaskTemplate{
		ID:       "1",
		Category: "email",
		Name:     "compose email",
		Keywords: []string{"email", "send"},
		Steps: []catalog.StepSpec{
			{Order: 3, Action: catalog.ActionType, Target: "recipient_field", Value: "{email}",
				Parameters: map[string]catalog.ValueKind{"email": catalog.KindEmail}},
			{Order: 1, Action: catalog.ActionNavigate, Target: "https://mail.google.com"},
			{Order: 2, Action: catalog.ActionClick, Target: "compose_button"},
		},
	}
}

func TestBuild_ComposeScenario(t *testing.T) {
	plan, err := Build("send an email to bob@example.com", composeTemplate())
	require.NoError(t, err)

	assert.Equal(t, "1", plan.TemplateID())
	assert.Equal(t, DynamicValues{"email": "bob@example.com"}, plan.Values())

	steps := plan.Steps()
	require.Len(t, steps, 3)
	assert.Equal(t, catalog.ActionNavigate, steps[0].Action)
	assert.Equal(t, catalog.ActionClick, steps[1].Action)
	assert.Equal(t, catalog.ActionType, steps[2].Action)
	assert.Equal(t, "bob@example.com", steps[2].Value)
	for i, s := range steps {
		assert.Equal(t, i, s.Index)
		assert.Equal(t, i+1, s.Order)
	}
}

func TestBuild_Pure(t *testing.T) {
	tpl := composeTemplate()
	a, err := Build("send an email to bob@example.com", tpl)
	require.NoError(t, err)
	b, err := Build("send an email to bob@example.com", tpl)
	require.NoError(t, err)

	assert.Equal(t, a.ID(), b.ID())
	assert.Equal(t, a.Steps(), b.Steps())
	assert.Equal(t, a.Values(), b.Values())

	c, err := Build("send an email to alice@example.com", tpl)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID(), c.ID())
}

func TestBuild_DoesNotMutateTemplate(t *testing.T) {
	tpl := composeTemplate()
	_, err := Build("email bob@example.com", tpl)
	require.NoError(t, err)
	assert.Equal(t, 3, tpl.Steps[0].Order)
	assert.Equal(t, "{email}", tpl.Steps[0].Value)
}

func TestBuild_MissingValue(t *testing.T) {
	_, err := Build("send an email to bob", composeTemplate())
	var ee *ExtractionError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, "email", ee.Placeholder)
	assert.Equal(t, catalog.KindEmail, ee.Kind)
	assert.Equal(t, "1", ee.TemplateID)
}

func TestBuild_UndeclaredPlaceholder(t *testing.T) {
	tpl := composeTemplate()
	tpl.Steps = append(tpl.Steps, catalog.StepSpec{Order: 4, Action: catalog.ActionType, Target: "subject_field", Value: "{subject}"})

	_, err := Build("send an email to bob@example.com", tpl)
	var ee *ExtractionError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, "subject", ee.Placeholder)
	assert.Equal(t, 4, ee.StepOrder)
	assert.Empty(t, ee.Kind)
}

func TestBuild_DefaultCatalog(t *testing.T) {
	c := catalog.Default()
	b := NewBuilder(c)

	tests := []struct {
		name     string
		template string
		input    string
		want     DynamicValues
	}{
		{"compose with subject", "email_compose", "email bob@example.com regarding the quarterly report",
			DynamicValues{"email": "bob@example.com", "subject": "the quarterly report"}},
		{"compose default subject", "email_compose", "send mail to bob@example.com",
			DynamicValues{"email": "bob@example.com", "subject": "Inquiry"}},
		{"search verb", "web_search", "search for golang generics",
			DynamicValues{"query": "golang generics"}},
		{"search fallback", "web_search", "weather in paris",
			DynamicValues{"query": "weather in paris"}},
		{"navigate url", "web_navigate", "open https://go.dev/doc please",
			DynamicValues{"url": "https://go.dev/doc"}},
		{"navigate bare domain", "web_navigate", "visit example.org",
			DynamicValues{"url": "https://example.org"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := b.BuildFor(tt.input, tt.template)
			require.NoError(t, err)
			assert.Equal(t, tt.want, plan.Values())
		})
	}
}

func TestBuilder_UnknownTemplate(t *testing.T) {
	_, err := NewBuilder(catalog.Default()).BuildFor("anything", "nope")
	assert.True(t, catalog.IsNotFound(err))
}

func TestBuild_NavigateWithoutURL(t *testing.T) {
	_, err := NewBuilder(catalog.Default()).BuildFor("open the website", "web_navigate")
	var ee *ExtractionError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, "url", ee.Placeholder)
}

func TestPlan_ClaimOnce(t *testing.T) {
	p := NewPlan("x", "in", nil, []ResolvedStep{{Order: 1, Action: catalog.ActionWait, Value: "1s"}})
	assert.True(t, p.Claim())
	assert.False(t, p.Claim())
}

func TestPlan_JSON(t *testing.T) {
	plan, err := Build("send an email to bob@example.com", composeTemplate())
	require.NoError(t, err)
	data, err := json.Marshal(plan)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, plan.ID(), decoded["id"])
	assert.Len(t, decoded["steps"], 3)
}
