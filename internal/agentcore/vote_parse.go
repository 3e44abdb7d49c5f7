package agentcore

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/dealroom/orchestrator/internal/domain"
	"gopkg.in/yaml.v3"
)

// voteDoc is the tolerant YAML/JSON shape a participant's vote is parsed
// from. Direction accepts free-form words (see normalizeDirection);
// confidence must be a number, on a 0-1 or 0-100 scale (see clampConfidence).
type voteDoc struct {
	Direction  string  `yaml:"direction"`
	Confidence float64 `yaml:"confidence"`
	Rationale  string  `yaml:"rationale"`

	SuggestedLeverage      string  `yaml:"suggested_leverage"`
	SuggestedTakeProfitPct float64 `yaml:"suggested_take_profit_pct"`
	SuggestedStopLossPct   float64 `yaml:"suggested_stop_loss_pct"`
}

// windowsPathInQuotes recovers from the same Windows-path backslash escape
// issue the teacher's YAML decision parser guards against, should a model
// ever echo a path-like string in its rationale.
var windowsPathInQuotes = regexp.MustCompile(`"([A-Za-z]:\\[^"]*)"`)

func fixBackslashes(s string) string {
	return windowsPathInQuotes.ReplaceAllStringFunc(s, func(match string) string {
		inner := match[1 : len(match)-1]
		inner = strings.ReplaceAll(inner, `\`, `/`)
		return `"` + inner + `"`
	})
}

// extractYAML pulls YAML out of a ```yaml fenced block, falling back to a
// bare ``` block, falling back to the whole string.
func extractYAML(content string) string {
	if idx := strings.Index(content, "```yaml"); idx >= 0 {
		rest := content[idx+7:]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
	}
	if idx := strings.Index(content, "```"); idx >= 0 {
		rest := content[idx+3:]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
	}
	return strings.TrimSpace(content)
}

// ParseVote extracts a VoteRecord from an agent's free-form or fenced-YAML
// response, normalizing direction synonyms ("buy"/"bullish" -> long,
// "sell"/"bearish" -> short, close/reverse/add_long/add_short to their own
// directions, anything unrecognized -> hold). When the response holds no
// parseable YAML with a direction, it falls back to reading direction words
// from the whole text and the number after "confidence"/"信心度"; a missing
// direction becomes hold and a missing confidence 0. It never returns an error.
func ParseVote(agent string, raw string) (domain.VoteRecord, error) {
	textVote := func() (domain.VoteRecord, error) {
		vote := domain.VoteRecord{Agent: agent, Direction: normalizeDirection(raw), Rationale: strings.TrimSpace(raw)}
		confidenceInText := regexp.MustCompile(`(?i)(?:confidence|信心度)\D{0,5}(\d+(?:\.\d+)?)`)
		if m := confidenceInText.FindStringSubmatch(raw); m != nil {
			if c, err := strconv.ParseFloat(m[1], 64); err == nil {
				vote.Confidence = clampConfidence(c)
			}
		}
		return vote, nil
	}

	yamlStr := extractYAML(raw)

	var doc voteDoc
	if err := yaml.Unmarshal([]byte(yamlStr), &doc); err != nil {
		fixed := fixBackslashes(yamlStr)
		if err2 := yaml.Unmarshal([]byte(fixed), &doc); err2 != nil {
			return textVote()
		}
	}

	if doc.Direction == "" {
		return textVote()
	}

	leverage, _ := parseLeverage(doc.SuggestedLeverage)

	return domain.VoteRecord{
		Agent:                  agent,
		Direction:              normalizeDirection(doc.Direction),
		Confidence:             clampConfidence(doc.Confidence),
		Rationale:              doc.Rationale,
		SuggestedLeverage:      leverage,
		SuggestedTakeProfitPct: doc.SuggestedTakeProfitPct,
		SuggestedStopLossPct:   doc.SuggestedStopLossPct,
	}, nil
}

func normalizeDirection(raw string) domain.VoteDirection {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case strings.Contains(s, "close"):
		return domain.VoteClose
	case strings.Contains(s, "reverse") || strings.Contains(s, "flip"):
		return domain.VoteReverse
	case strings.Contains(s, "add") && (strings.Contains(s, "long") || strings.Contains(s, "buy")):
		return domain.VoteAddLong
	case strings.Contains(s, "add") && (strings.Contains(s, "short") || strings.Contains(s, "sell")):
		return domain.VoteAddShort
	case strings.Contains(s, "long"), strings.Contains(s, "buy"), strings.Contains(s, "bull"), strings.Contains(s, "做多"):
		return domain.VoteLong
	case strings.Contains(s, "short"), strings.Contains(s, "sell"), strings.Contains(s, "bear"), strings.Contains(s, "做空"):
		return domain.VoteShort
	default:
		return domain.VoteHold
	}
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		// Accept 0-100 scale inputs defensively (LLMs sometimes emit percent).
		if c <= 100 {
			return c / 100
		}
		return 1
	}
	return c
}

// parseLeverage is a small helper used when a vote carries a suggested
// leverage as free text (e.g. "10x").
func parseLeverage(raw string) (int, bool) {
	s := strings.TrimSuffix(strings.TrimSpace(strings.ToLower(raw)), "x")
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}
