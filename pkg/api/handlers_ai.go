package api

import (
	"github.com/gin-gonic/gin"

	"github.com/hyxiaoge/prompthub/pkg/apperr"
	"github.com/hyxiaoge/prompthub/pkg/llm"
)

type evaluateCandidate struct {
	StepID  string `json:"step_id"`
	Content string `json:"content"`
}

type evaluateRequest struct {
	Rubric     string              `json:"rubric"`
	Candidates []evaluateCandidate `json:"candidates"`
}

// evaluateBatch is the AI collaborator endpoint: batched LLM scoring of
// select_best candidates. It is deliberately not wired into the Scene
// Resolution Engine's own select_best branch, which stays a reserved
// "first non-skipped step" placeholder. This is a separate surface a
// caller can use to score candidates out-of-band.
func (s *Server) evaluateBatch(c *gin.Context) {
	if s.evaluator == nil {
		fail(c, apperr.LLMUnavailable("no LLM collaborator configured"))
		return
	}
	var req evaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	candidates := make([]llm.Candidate, len(req.Candidates))
	for i, cand := range req.Candidates {
		candidates[i] = llm.Candidate{StepID: cand.StepID, Content: cand.Content}
	}

	scored := s.evaluator.EvaluateBatch(c.Request.Context(), candidates)
	out := make([]gin.H, len(scored))
	for i, sc := range scored {
		errMsg := ""
		if sc.Err != nil {
			errMsg = sc.Err.Error()
		}
		out[i] = gin.H{
			"step_id": sc.StepID,
			"score":   sc.Score,
			"error":   errMsg,
		}
	}
	ok(c, out)
}
