package classifier

import (
	"regexp"
	"strings"

	"github.com/messagewise/cost-insights/internal/model"
)

// Keyword tables for the heuristic rules. Matching is case-insensitive
// substring containment; each keyword counts at most once per message.
var (
	authenticationKeywords = []string{
		"otp",
		"verification code",
		"verify your",
		"security code",
		"one-time",
		"passcode",
		"authentication",
		"2fa",
		"login code",
		"confirm your identity",
		"do not share",
	}

	marketingKeywords = []string{
		"sale",
		"discount",
		"offer",
		"promo",
		"deal",
		"limited time",
		"exclusive",
		"coupon",
		"new arrival",
		"free shipping",
		"shop now",
		"don't miss",
		"best price",
		"subscribe",
	}

	utilityKeywords = []string{
		"order",
		"invoice",
		"receipt",
		"shipped",
		"tracking",
		"delivery",
		"payment",
		"appointment",
		"reminder",
		"confirmation",
		"booking",
		"account update",
		"due date",
	}

	serviceKeywords = []string{
		"help",
		"support",
		"question",
		"issue",
		"problem",
		"assist",
		"inquiry",
		"feedback",
		"thank you",
		"how can",
		"agent",
	}
)

// Pattern signals. A pattern hit is as strong as a keyword hit for the
// confidence formula but fires the rule on its own.
var (
	// otpCodePattern matches a 4-8 digit code near code/otp/pin wording.
	otpCodePattern = regexp.MustCompile(`(?i)\b(?:code|otp|pin)\b\D{0,24}\d{4,8}\b|\b\d{4,8}\b\D{0,24}\b(?:code|otp|pin)\b`)

	promotionalPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\d+\s*%\s*off`),
		regexp.MustCompile(`(?i)flash\s+sale`),
		regexp.MustCompile(`(?i)buy\s+\d+\s+get\s+\d+`),
		regexp.MustCompile(`(?i)limited\s+time\s+(?:offer|only)`),
		regexp.MustCompile(`(?i)ends\s+(?:today|tonight|soon)`),
	}

	transactionalPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)order\s*#?\s*\w+`),
		regexp.MustCompile(`(?i)invoice\s*#?\s*\w+`),
		regexp.MustCompile(`(?i)has\s+been\s+(?:shipped|delivered|dispatched)`),
		regexp.MustCompile(`(?i)payment\s+(?:received|confirmed|successful)`),
		regexp.MustCompile(`(?i)out\s+for\s+delivery`),
	}
)

var keywordsByCategory = map[model.Category][]string{
	model.CategoryAuthentication: authenticationKeywords,
	model.CategoryMarketing:      marketingKeywords,
	model.CategoryUtility:        utilityKeywords,
	model.CategoryService:        serviceKeywords,
}

// countKeywordHits returns how many distinct keywords appear in content.
// content must already be lowercased.
func countKeywordHits(content string, keywords []string) int {
	hits := 0
	for _, kw := range keywords {
		if strings.Contains(content, kw) {
			hits++
		}
	}
	return hits
}

func matchesAny(content string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(content) {
			return true
		}
	}
	return false
}
