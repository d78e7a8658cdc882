// Package classifier assigns a pricing category to a message using an
// ordered list of heuristic rules. Classification is a pure function of its
// input: no I/O, no mutation, same input always yields the same result.
package classifier

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/messagewise/cost-insights/internal/model"
)

// Input is everything the classifier looks at for one message.
type Input struct {
	Direction model.Direction
	Content   string
	Type      string
	// TemplateCategory is the upstream provider's own category tag, when
	// the message was sent from a registered template.
	TemplateCategory string
	// IsReply marks the message as a reply within an existing conversation.
	IsReply bool
	// WindowAge is the age of the conversation window the message belongs
	// to, measured from the window-opening inbound message.
	WindowAge time.Duration
}

// Result is the classifier's verdict for one message.
type Result struct {
	Category   model.Category
	Confidence float64
	Reasoning  string
}

// Classifier evaluates the rule list. It is a stateless value: construct
// once with New and share freely across goroutines.
type Classifier struct {
	rules []rule
}

type rule struct {
	name  string
	apply func(Input) (Result, bool)
}

// New returns a classifier with the standard rule order. First match wins.
func New() *Classifier {
	return &Classifier{rules: []rule{
		{name: "inbound", apply: inboundRule},
		{name: "template-tag", apply: templateTagRule},
		{name: "authentication", apply: authenticationRule},
		{name: "free-window-reply", apply: freeWindowReplyRule},
		{name: "marketing", apply: marketingRule},
		{name: "utility", apply: utilityRule},
		{name: "service", apply: serviceRule},
	}}
}

// Classify runs the rules in order and returns the first match, falling
// through to the SERVICE default. It never fails.
func (c *Classifier) Classify(in Input) Result {
	for _, r := range c.rules {
		if res, ok := r.apply(in); ok {
			return res
		}
	}
	return Result{
		Category:   model.CategoryService,
		Confidence: 0.5,
		Reasoning:  "no strong pattern match",
	}
}

// ClassifyBatch classifies each message independently; there is no
// cross-message state.
func (c *Classifier) ClassifyBatch(inputs []Input) []Result {
	results := make([]Result, len(inputs))
	for i, in := range inputs {
		results[i] = c.Classify(in)
	}
	return results
}

// Rule 1: inbound traffic is always customer-service and always free.
func inboundRule(in Input) (Result, bool) {
	if in.Direction != model.DirectionInbound {
		return Result{}, false
	}
	return Result{
		Category:   model.CategoryService,
		Confidence: 1.0,
		Reasoning:  "inbound message, treated as customer service traffic",
	}, true
}

// Rule 2: an explicit template category from the channel provider is
// authoritative.
func templateTagRule(in Input) (Result, bool) {
	cat, ok := model.ParseCategory(strings.ToUpper(in.TemplateCategory))
	if !ok {
		return Result{}, false
	}
	return Result{
		Category:   cat,
		Confidence: 0.98,
		Reasoning:  fmt.Sprintf("explicit template category tag %s from channel provider", cat),
	}, true
}

// Rule 3: OTP code pattern or two distinct authentication keywords.
func authenticationRule(in Input) (Result, bool) {
	content := strings.ToLower(in.Content)
	hits := countKeywordHits(content, authenticationKeywords)
	if !otpCodePattern.MatchString(in.Content) && hits < 2 {
		return Result{}, false
	}
	return Result{
		Category:   model.CategoryAuthentication,
		Confidence: 0.95,
		Reasoning:  "verification code pattern or authentication keywords detected",
	}, true
}

// Rule 4: replies inside an open 24-hour window are free, but category
// still matters for later analytics, so score by weighted keywords.
func freeWindowReplyRule(in Input) (Result, bool) {
	if !in.IsReply || in.WindowAge < 0 || in.WindowAge >= 24*time.Hour {
		return Result{}, false
	}
	cat, _ := weightedScore(in.Content)
	return Result{
		Category:   cat,
		Confidence: 0.9,
		Reasoning:  fmt.Sprintf("reply within 24h conversation window (free-window eligible), keyword scoring suggests %s", cat),
	}, true
}

// Rule 5: marketing keywords or promotional phrasing.
func marketingRule(in Input) (Result, bool) {
	content := strings.ToLower(in.Content)
	hits := countKeywordHits(content, marketingKeywords)
	if matchesAny(in.Content, promotionalPatterns) {
		hits++
	} else if hits < 2 {
		return Result{}, false
	}
	return Result{
		Category:   model.CategoryMarketing,
		Confidence: heuristicConfidence(hits),
		Reasoning:  fmt.Sprintf("%d marketing signals (promotional keywords/patterns)", hits),
	}, true
}

// Rule 6: utility keywords or transactional phrasing.
func utilityRule(in Input) (Result, bool) {
	content := strings.ToLower(in.Content)
	hits := countKeywordHits(content, utilityKeywords)
	if matchesAny(in.Content, transactionalPatterns) {
		hits++
	} else if hits < 2 {
		return Result{}, false
	}
	return Result{
		Category:   model.CategoryUtility,
		Confidence: heuristicConfidence(hits),
		Reasoning:  fmt.Sprintf("%d utility signals (transactional keywords/patterns)", hits),
	}, true
}

// Rule 7: service keywords.
func serviceRule(in Input) (Result, bool) {
	content := strings.ToLower(in.Content)
	hits := countKeywordHits(content, serviceKeywords)
	if hits < 2 {
		return Result{}, false
	}
	return Result{
		Category:   model.CategoryService,
		Confidence: heuristicConfidence(hits),
		Reasoning:  fmt.Sprintf("%d customer service keywords", hits),
	}, true
}

// heuristicConfidence maps a signal count to confidence:
// 0.7 + 0.05 per signal, capped at 0.95.
func heuristicConfidence(hits int) float64 {
	bonus := math.Min(0.05*float64(hits), 0.25)
	return math.Min(0.7+bonus, 0.95)
}

// categoryWeights bias the weighted fallback toward the categories whose
// keywords are the strongest signals.
var categoryWeights = map[model.Category]float64{
	model.CategoryAuthentication: 3,
	model.CategoryUtility:        1.5,
	model.CategoryMarketing:      1,
	model.CategoryService:        1,
}

// weightedScore scores every category by keyword hits times its weight and
// picks the maximum. Ties favor SERVICE. Confidence is the winning share of
// the total score plus 0.3, capped at 0.9; with no signals at all it is 0.5.
func weightedScore(content string) (model.Category, float64) {
	lowered := strings.ToLower(content)

	scores := make(map[model.Category]float64, len(model.Categories))
	total := 0.0
	for cat, keywords := range keywordsByCategory {
		score := float64(countKeywordHits(lowered, keywords)) * categoryWeights[cat]
		scores[cat] = score
		total += score
	}

	if total == 0 {
		return model.CategoryService, 0.5
	}

	best := model.CategoryService
	bestScore := scores[model.CategoryService]
	for _, cat := range model.Categories {
		if scores[cat] > bestScore {
			best = cat
			bestScore = scores[cat]
		}
	}

	return best, math.Min(bestScore/total+0.3, 0.9)
}
