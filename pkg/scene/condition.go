package scene

import "github.com/hyxiaoge/prompthub/pkg/domain"

// EvaluateCondition decides whether a pipeline step runs. A missing key
// in vars is treated as the null value, matching evaluate_condition's
// `variables.get(condition.variable)` default-None lookup. An unknown
// operator evaluates to false rather than erroring.
func EvaluateCondition(cond domain.StepCondition, vars domain.ValueMap) bool {
	v, ok := vars[cond.Variable]
	if !ok {
		v = domain.Null
	}

	switch cond.Operator {
	case domain.OpEq:
		return v.Equal(cond.Value)
	case domain.OpNeq:
		return !v.Equal(cond.Value)
	case domain.OpIn:
		if cond.Value.Kind != domain.KindSeq {
			return false
		}
		return seqContains(cond.Value.Seq, v)
	case domain.OpNotIn:
		if cond.Value.Kind != domain.KindSeq {
			return true
		}
		return !seqContains(cond.Value.Seq, v)
	case domain.OpExists:
		return !v.IsNull()
	default:
		return false
	}
}

func seqContains(seq []domain.Value, v domain.Value) bool {
	for _, e := range seq {
		if e.Equal(v) {
			return true
		}
	}
	return false
}
