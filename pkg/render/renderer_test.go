package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyxiaoge/prompthub/pkg/apperr"
	"github.com/hyxiaoge/prompthub/pkg/domain"
)

func TestRenderSimple(t *testing.T) {
	r := New()
	out, err := r.Render("Hello {{ name }}", nil, domain.ValueMap{"name": domain.StringValue("World")})
	require.NoError(t, err)
	assert.Equal(t, "Hello World", out)
}

func TestRenderIdempotence(t *testing.T) {
	r := New()
	content := "{% if active %}on{% else %}off{% endif %} {{ count }}"
	vars := domain.ValueMap{"active": domain.BoolValue(true), "count": domain.NumberValue(3)}

	first, err := r.Render(content, nil, vars)
	require.NoError(t, err)
	second, err := r.Render(content, nil, vars)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRenderDefaultsAndOverrides(t *testing.T) {
	r := New()
	defs := []domain.VariableDef{
		{Name: "name", Type: "string", Required: false, Default: ptrValue(domain.StringValue("world"))},
	}

	t.Run("uses default when not provided", func(t *testing.T) {
		out, err := r.Render("Hello {{ name }}", defs, domain.ValueMap{})
		require.NoError(t, err)
		assert.Equal(t, "Hello world", out)
	})

	t.Run("provided value overrides default", func(t *testing.T) {
		out, err := r.Render("Hello {{ name }}", defs, domain.ValueMap{"name": domain.StringValue("Bob")})
		require.NoError(t, err)
		assert.Equal(t, "Hello Bob", out)
	})
}

func TestRenderRequiredVariableMissing(t *testing.T) {
	r := New()
	defs := []domain.VariableDef{{Name: "name", Type: "string", Required: true}}
	_, err := r.Render("Hello {{ name }}", defs, domain.ValueMap{})
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindValidation, ae.Kind)
	assert.Equal(t, apperr.ReasonVariablesMissing, ae.Reason)
}

func TestRenderEnumValidation(t *testing.T) {
	r := New()
	defs := []domain.VariableDef{{Name: "level", Type: "string", EnumValues: []string{"low", "high"}}}

	t.Run("rejects a value outside the enum", func(t *testing.T) {
		_, err := r.Render("{{ level }}", defs, domain.ValueMap{"level": domain.StringValue("medium")})
		ae, ok := apperr.As(err)
		require.True(t, ok)
		assert.Equal(t, apperr.ReasonVariableInvalid, ae.Reason)
	})

	t.Run("accepts a value inside the enum", func(t *testing.T) {
		out, err := r.Render("{{ level }}", defs, domain.ValueMap{"level": domain.StringValue("high")})
		require.NoError(t, err)
		assert.Equal(t, "high", out)
	})
}

func TestRenderUndefinedVariable(t *testing.T) {
	r := New()
	_, err := r.Render("Hello {{ unknown }}", nil, domain.ValueMap{})
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.ReasonTemplateUndefined, ae.Reason)
}

func TestRenderUnsafeConstructRejected(t *testing.T) {
	r := New()
	_, err := r.Render("{{ x.__class__ }}", nil, domain.ValueMap{"x": domain.StringValue("y")})
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.ReasonTemplateUnsafe, ae.Reason)
}

func TestRenderForLoop(t *testing.T) {
	r := New()
	out, err := r.Render(
		"{% for item in items %}{{ item }},{% endfor %}",
		nil,
		domain.ValueMap{"items": domain.SeqValue(domain.StringValue("a"), domain.StringValue("b"))},
	)
	require.NoError(t, err)
	assert.Equal(t, "a,b,", out)
}

func ptrValue(v domain.Value) *domain.Value { return &v }
