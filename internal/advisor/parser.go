package advisor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/driftlabs/driftbot/internal/domain"
)

// The advisor replies in free text. The documented schema is line-based:
//
//	direction: long|short|flat
//	confidence: <0-1 or 0-100>
//	regime: bull|bear|chop|crash|high_vol   (optional)
//	<free text reasoning>
//
// Reasoning keeps the first three non-keyword lines. Anything that fails to
// yield a direction is a parse failure and the gate degrades per policy
// rather than propagate ambiguous state.
var (
	directionRe  = regexp.MustCompile(`(?i)direction\s*[:=]\s*(long|short|flat)`)
	confidenceRe = regexp.MustCompile(`(?i)confidence\s*[:=]\s*([0-9]+(?:\.[0-9]+)?)\s*%?`)
	regimeRe     = regexp.MustCompile(`(?i)regime\s*[:=]\s*(bull|bear|chop|crash|high[_\s-]?vol)`)
	keywordRe    = regexp.MustCompile(`(?i)^\s*(direction|confidence|regime)\s*[:=]`)
)

const maxReasoningLines = 3

// ParseAdvice extracts the structured advice from a free-text response.
func ParseAdvice(text string) (domain.Advice, error) {
	m := directionRe.FindStringSubmatch(text)
	if m == nil {
		return domain.Advice{}, fmt.Errorf("advisor: no direction in response: %w", domain.ErrAdvisorParse)
	}
	advice := domain.Advice{
		Direction:  domain.Direction(strings.ToLower(m[1])),
		Confidence: 0.5,
	}

	if m := confidenceRe.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			if v > 1 {
				v /= 100 // 0-100 scale
			}
			if v < 0 {
				v = 0
			}
			if v > 1 {
				v = 1
			}
			advice.Confidence = v
		}
	}

	if m := regimeRe.FindStringSubmatch(text); m != nil {
		label := strings.ToLower(m[1])
		label = strings.NewReplacer(" ", "_", "-", "_").Replace(label)
		if label == "high_vol" || label == "highvol" {
			advice.Regime = domain.RegimeHighVol
		} else {
			advice.Regime = domain.Regime(label)
		}
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || keywordRe.MatchString(line) {
			continue
		}
		advice.Reasoning = append(advice.Reasoning, line)
		if len(advice.Reasoning) >= maxReasoningLines {
			break
		}
	}
	return advice, nil
}
