package domain

import "time"

// VariableDef describes one template variable accepted by a prompt: its
// name, type hint, whether it's required, a default, and an optional
// enumeration of accepted canonical string forms.
type VariableDef struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Required    bool     `json:"required"`
	Default     *Value   `json:"default,omitempty"`
	Description string   `json:"description,omitempty"`
	EnumValues  []string `json:"enum_values,omitempty"`
}

// NormalizeDefaults fills in the (default "string") and (default true for
// required) zero-value conventions for a freshly decoded VariableDef.
func (v *VariableDef) NormalizeDefaults(seenRequired bool) {
	if v.Type == "" {
		v.Type = "string"
	}
	if !seenRequired {
		v.Required = true
	}
}

// Project is the top-level grouping entity that owns prompts and scenes.
type Project struct {
	ID          string
	Slug        string
	Name        string
	Description string
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Prompt is a named, versioned template owned by a Project.
type Prompt struct {
	ID             string
	ProjectID      string
	Slug           string
	Name           string
	Description    string
	Content        string
	Format         string
	TemplateEngine string
	Variables      []VariableDef
	Tags           []string
	Category       string
	IsShared       bool
	CurrentVersion string
	CreatedBy      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time
}

// IsLive reports whether the prompt has not been soft-deleted.
func (p *Prompt) IsLive() bool { return p.DeletedAt == nil }

// NormalizeNew fills in the defaults for a prompt created without
// explicit format/engine/version.
func (p *Prompt) NormalizeNew() {
	if p.Format == "" {
		p.Format = "text"
	}
	if p.TemplateEngine == "" {
		p.TemplateEngine = "jinja2"
	}
	if p.CurrentVersion == "" {
		p.CurrentVersion = "1.0.0"
	}
}

// PromptVersion is an immutable, insert-only snapshot of a prompt's
// content and variable contract at a given semver.
type PromptVersion struct {
	ID        string
	PromptID  string
	Version   string
	Content   string
	Variables []VariableDef
	Changelog string
	Status    string
	CreatedBy string
	CreatedAt time.Time
}

// RefType enumerates the accepted PromptRef.ref_type strings.
type RefType string

const (
	RefIncludes RefType = "includes"
	RefComposes RefType = "composes"
)

// PromptRef is a directed "source depends on target" edge between two
// prompts, possibly crossing project boundaries when the target is shared.
type PromptRef struct {
	ID               string
	SourcePromptID   string
	TargetPromptID   string
	SourceProjectID  string
	TargetProjectID  string
	RefType          RefType
	OverrideConfig   map[string]Value
	CreatedAt        time.Time
}

// MergeStrategy enumerates how a scene combines its surviving step outputs.
type MergeStrategy string

const (
	MergeConcat      MergeStrategy = "concat"
	MergeChain       MergeStrategy = "chain"
	MergeSelectBest  MergeStrategy = "select_best"
)

// ConditionOperator enumerates the accepted StepCondition.operator strings.
type ConditionOperator string

const (
	OpEq     ConditionOperator = "eq"
	OpNeq    ConditionOperator = "neq"
	OpIn     ConditionOperator = "in"
	OpNotIn  ConditionOperator = "not_in"
	OpExists ConditionOperator = "exists"
)

// StepCondition gates whether a pipeline step executes.
type StepCondition struct {
	Variable string            `json:"variable"`
	Operator ConditionOperator `json:"operator"`
	Value    Value             `json:"value"`
}

// PromptRefSpec names a prompt and, optionally, a version lock within a
// pipeline step.
type PromptRefSpec struct {
	PromptID string  `json:"prompt_id"`
	Version  *string `json:"version,omitempty"`
}

// PipelineStep is one entry in a Scene's pipeline.
type PipelineStep struct {
	ID         string           `json:"id"`
	PromptRef  PromptRefSpec    `json:"prompt_ref"`
	Variables  ValueMap         `json:"variables,omitempty"`
	Condition  *StepCondition   `json:"condition,omitempty"`
	OutputKey  string           `json:"output_key,omitempty"`
}

// PipelineConfig is the ordered sequence of steps a Scene executes.
type PipelineConfig struct {
	Steps []PipelineStep `json:"steps"`
}

// Scene is an ordered pipeline composing one or more prompts into a single
// output.
type Scene struct {
	ID            string
	ProjectID     string
	Slug          string
	Name          string
	Description   string
	Pipeline      PipelineConfig
	MergeStrategy MergeStrategy
	Separator     string
	OutputFormat  string
	CreatedBy     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NormalizeNew fills in the scene-level defaults for a freshly created
// Scene.
func (s *Scene) NormalizeNew() {
	if s.Separator == "" {
		s.Separator = "\n\n"
	}
	if s.MergeStrategy == "" {
		s.MergeStrategy = MergeConcat
	}
}

// CallLog is an append-only observability record emitted per
// resolve/render call.
type CallLog struct {
	ID              string
	PromptID        *string
	SceneID         *string
	PromptVersion   *string
	CallerSystem    string
	CallerIP        string
	InputVariables  ValueMap
	RenderedContent string
	TokenCount      int
	ResponseTimeMs  int
	QualityScore    *float64
	CreatedAt       time.Time
}
