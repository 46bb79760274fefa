// Package render implements the Template Renderer: variable merge,
// required/enum validation, and sandboxed expansion of the
// {{ name }} / {% if %} / {% for %} subset of Jinja2 syntax prompts are
// authored in. It is grounded in
// original_source/backend/app/services/template_engine.py (merge + required
// + enum + jinja2.sandbox.SandboxedEnvironment), with the actual expansion
// delegated to github.com/nikolalohinski/gonja/v2, the Jinja2-syntax engine
// kiosk404-echoryn uses for its own template rendering.
//
// gonja's context only ever receives primitive values lifted out of
// domain.Value (string/float64/bool/nil/slice/map) — never a Go struct or
// method — so there is nothing for a malicious template to traverse into
// beyond those primitives. The two pre-passes below exist to turn that
// structural sandboxing into the precise, spec-mandated error classes
// (TEMPLATE_UNDEFINED, TEMPLATE_UNSAFE) instead of leaving them to
// surface as opaque gonja execution errors.
package render

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/nikolalohinski/gonja/v2"
	"github.com/nikolalohinski/gonja/v2/exec"

	"github.com/hyxiaoge/prompthub/pkg/apperr"
	"github.com/hyxiaoge/prompthub/pkg/domain"
)

// Renderer is the sandboxed template expander. It holds no state; every
// method is pure with respect to its inputs.
type Renderer struct{}

// New returns a Renderer. There is nothing to configure: gonja is invoked
// fresh per call with keep-trailing-newline semantics matching the
// Python SandboxedEnvironment(keep_trailing_newline=True) original.
func New() *Renderer {
	return &Renderer{}
}

// unsafePatterns denylists template constructs that could only be an
// attempt to reach past the primitive value sandbox: dunder attribute
// traversal, module import, and shell/backtick interpolation.
var unsafePatterns = []*regexp.Regexp{
	regexp.MustCompile(`__[A-Za-z0-9_]+__`),
	regexp.MustCompile(`\bimport\b`),
	regexp.MustCompile("`"),
	regexp.MustCompile(`\.\s*(mro|subclasses|globals|builtins)\s*\(`),
}

// placeholderRe captures the inner expression of a {{ ... }} output tag.
var placeholderRe = regexp.MustCompile(`\{\{\s*([^}]+?)\s*\}\}`)

// ifRe captures the variable named by an {% if ... %} or {% elif ... %}
// tag, and forRe the iterable named by {% for x in iterable %}.
var ifRe = regexp.MustCompile(`\{%-?\s*(?:if|elif)\s+([^%]+?)\s*-?%\}`)
var forRe = regexp.MustCompile(`\{%-?\s*for\s+\S+\s+in\s+([^%]+?)\s*-?%\}`)
var loopVarRe = regexp.MustCompile(`\{%-?\s*for\s+(\S+)\s+in\s`)

// identifierRe extracts a bare leading identifier (before any filter `|`,
// attribute `.`, or index `[`) from an expression fragment.
var identifierRe = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)`)

// Render merges and validates provided against defs, pre-scans content
// for unsafe constructs and undefined references, then executes the
// template, returning the expanded string or a typed *apperr.Error.
func (r *Renderer) Render(content string, defs []domain.VariableDef, provided domain.ValueMap) (string, error) {
	effective, err := r.mergeAndValidate(defs, provided)
	if err != nil {
		return "", err
	}

	if loc := firstUnsafeMatch(content); loc != "" {
		return "", apperr.TemplateRender(apperr.ReasonTemplateUnsafe, "unsafe construct: "+loc)
	}

	if name, ok := firstUndefinedReference(content, effective); !ok {
		return "", apperr.TemplateRender(apperr.ReasonTemplateUndefined, "undefined variable: "+name)
	}

	tpl, err := gonja.FromString(content)
	if err != nil {
		return "", apperr.TemplateRender(apperr.ReasonTemplateSyntax, err.Error())
	}

	out, err := tpl.ExecuteToString(exec.NewContext(effective.ToInterfaceMap()))
	if err != nil {
		return "", classifyExecError(err)
	}

	return out, nil
}

// mergeAndValidate seeds with defaults, overlays provided (provided
// wins), then runs the required check and the enum check.
func (r *Renderer) mergeAndValidate(defs []domain.VariableDef, provided domain.ValueMap) (domain.ValueMap, error) {
	effective := make(domain.ValueMap, len(defs)+len(provided))
	for _, d := range defs {
		if d.Default != nil {
			effective[d.Name] = *d.Default
		}
	}
	for k, v := range provided {
		effective[k] = v
	}

	var missing []string
	for _, d := range defs {
		if !d.Required {
			continue
		}
		if _, ok := effective[d.Name]; !ok {
			missing = append(missing, d.Name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, apperr.Validation(apperr.ReasonVariablesMissing, "missing: "+strings.Join(missing, ", "))
	}

	for _, d := range defs {
		if len(d.EnumValues) == 0 {
			continue
		}
		val, ok := effective[d.Name]
		if !ok {
			continue
		}
		canonical := val.CanonicalString()
		if !containsString(d.EnumValues, canonical) {
			return nil, apperr.Validation(
				apperr.ReasonVariableInvalid,
				fmt.Sprintf("variable %q must be one of %v, got %q", d.Name, d.EnumValues, canonical),
			)
		}
	}

	return effective, nil
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func firstUnsafeMatch(content string) string {
	for _, re := range unsafePatterns {
		if m := re.FindString(content); m != "" {
			return m
		}
	}
	return ""
}

// firstUndefinedReference scans for {{ name }} and condition identifiers
// that are neither in effective nor bound by an enclosing {% for %} loop.
// Returns (name, false) with the offending name when one is found, or ("",
// true) when every reference resolves.
func firstUndefinedReference(content string, effective domain.ValueMap) (string, bool) {
	loopVars := map[string]struct{}{}
	for _, m := range loopVarRe.FindAllStringSubmatch(content, -1) {
		loopVars[m[1]] = struct{}{}
	}

	check := func(expr string) (string, bool) {
		m := identifierRe.FindStringSubmatch(strings.TrimSpace(expr))
		if m == nil {
			return "", true
		}
		name := m[1]
		if isReservedWord(name) {
			return "", true
		}
		if _, ok := loopVars[name]; ok {
			return "", true
		}
		if _, ok := effective[name]; ok {
			return "", true
		}
		return name, false
	}

	for _, m := range placeholderRe.FindAllStringSubmatch(content, -1) {
		if name, ok := check(m[1]); !ok {
			return name, false
		}
	}
	for _, m := range ifRe.FindAllStringSubmatch(content, -1) {
		if name, ok := check(m[1]); !ok {
			return name, false
		}
	}
	for _, m := range forRe.FindAllStringSubmatch(content, -1) {
		if name, ok := check(m[1]); !ok {
			return name, false
		}
	}
	return "", true
}

var reservedWords = map[string]struct{}{
	"true": {}, "false": {}, "none": {}, "null": {}, "not": {}, "and": {}, "or": {}, "loop": {},
}

func isReservedWord(name string) bool {
	_, ok := reservedWords[strings.ToLower(name)]
	return ok
}

// classifyExecError maps a gonja execution-time error to a render-error
// sub-reason. Anything naming an unresolved identifier is treated as
// TEMPLATE_UNDEFINED (our pre-pass should have already caught the common
// cases; this is the fallback for expressions the regex pre-scan doesn't
// model, e.g. filters applied to an undefined base); anything else is a
// malformed-template TEMPLATE_SYNTAX.
func classifyExecError(err error) error {
	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "undefined") || strings.Contains(lower, "not found") || strings.Contains(lower, "unresolvable"):
		return apperr.TemplateRender(apperr.ReasonTemplateUndefined, msg)
	case strings.Contains(lower, "unsafe") || strings.Contains(lower, "forbidden") || strings.Contains(lower, "not allowed"):
		return apperr.TemplateRender(apperr.ReasonTemplateUnsafe, msg)
	default:
		return apperr.TemplateRender(apperr.ReasonTemplateSyntax, msg)
	}
}
