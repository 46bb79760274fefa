package llm

import (
	"context"
	"sync"
)

// Candidate is one select_best contender awaiting a judged quality score.
type Candidate struct {
	StepID  string
	Content string
}

// Scored pairs a Candidate with its judged score, or the error that
// prevented judging it.
type Scored struct {
	Candidate
	Score float64
	Err   error
}

// Evaluator bounds outbound judging calls with a counting semaphore of
// capacity N, built the way tarsy's pkg/queue.WorkerPool bounds concurrent
// session workers — here collapsed to a single semaphore since judging
// calls, unlike sessions, carry no long-lived per-item state to track
// between calls.
type Evaluator struct {
	client *Client
	sem    chan struct{}
	rubric string
}

// DefaultBatchSize is the default counting-semaphore capacity.
const DefaultBatchSize = 3

// NewEvaluator returns an Evaluator bounding concurrent judge calls to
// size (DefaultBatchSize if size <= 0).
func NewEvaluator(client *Client, rubric string, size int) *Evaluator {
	if size <= 0 {
		size = DefaultBatchSize
	}
	return &Evaluator{client: client, sem: make(chan struct{}, size), rubric: rubric}
}

// EvaluateBatch judges every candidate concurrently, bounded by the
// semaphore, and returns one Scored per candidate in the same order.
// Individual judge failures are captured per-item rather than aborting the
// batch, since a caller of select_best can still fall back to an
// unscored candidate.
func (e *Evaluator) EvaluateBatch(ctx context.Context, candidates []Candidate) []Scored {
	results := make([]Scored, len(candidates))
	var wg sync.WaitGroup
	for i, cand := range candidates {
		wg.Add(1)
		go func(i int, cand Candidate) {
			defer wg.Done()
			select {
			case e.sem <- struct{}{}:
			case <-ctx.Done():
				results[i] = Scored{Candidate: cand, Err: ctx.Err()}
				return
			}
			defer func() { <-e.sem }()

			score, err := e.judge(ctx, cand.Content)
			results[i] = Scored{Candidate: cand, Score: score, Err: err}
		}(i, cand)
	}
	wg.Wait()
	return results
}

// judge asks the collaborator to rate content against the configured
// rubric and returns the score parsed leniently from the response prefix,
// normalized to 0-1 by parseLeadingScore.
func (e *Evaluator) judge(ctx context.Context, content string) (float64, error) {
	resp, err := e.client.Complete(ctx, e.rubric, content)
	if err != nil {
		return 0, err
	}
	return parseLeadingScore(resp.Content), nil
}

// parseLeadingScore extracts a leading "0.xx" or integer score from a
// judge response, defaulting to 0 when nothing parses — the collaborator
// is expected to lead its answer with the numeric score per the rubric
// prompt.
func parseLeadingScore(s string) float64 {
	var intPart, fracPart int
	var sawDigit, sawDot bool
	var fracDigits int
	i := 0
	for i < len(s) && (s[i] == ' ' || s[i] == '\n' || s[i] == '\t') {
		i++
	}
	for ; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9' && !sawDot:
			intPart = intPart*10 + int(c-'0')
			sawDigit = true
		case c == '.' && !sawDot:
			sawDot = true
		case c >= '0' && c <= '9' && sawDot:
			fracPart = fracPart*10 + int(c-'0')
			fracDigits++
			sawDigit = true
		default:
			i = len(s)
		}
	}
	if !sawDigit {
		return 0
	}
	value := float64(intPart)
	if fracDigits > 0 {
		div := 1.0
		for k := 0; k < fracDigits; k++ {
			div *= 10
		}
		value += float64(fracPart) / div
	}
	if value > 1 {
		value = value / 10
		if value > 1 {
			value = 1
		}
	}
	return value
}
