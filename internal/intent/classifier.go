// Package intent classifies free-text user messages into tour commands.
//
// Classification is a pure function over a declarative pattern table: every
// pattern of every intent type is tested (no short-circuit), all matches are
// collected, and the candidate with the highest confidence wins. Ties are
// broken by the declaration order of the table, which is: stop, pause,
// resume, next, section tour, full tour.
package intent

import (
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/donna-assistant/donna/internal/models"
)

// Confidence scores assigned per intent type. Explicit control words score
// higher than the broader tour-request phrasings.
const (
	stopConfidence    = 0.95
	pauseConfidence   = 0.95
	resumeConfidence  = 0.95
	nextConfidence    = 0.95
	sectionConfidence = 0.85
	fullConfidence    = 0.9
)

// DefaultSectionID is the section assumed when a tour request names no
// recognizable product area.
const DefaultSectionID = "dashboard"

// rule binds one compiled pattern to the intent it signals. Patterns for
// section tours carry a single capture group holding the raw section text.
type rule struct {
	re         *regexp.Regexp
	intent     models.IntentType
	confidence float64
}

// rules is ordered: earlier entries win confidence ties. The table is data;
// the matching engine below never special-cases individual intents beyond
// the section capture group.
var rules = []rule{
	// tour_stop
	{regexp.MustCompile(`(?i)\b(?:stop|end|quit|exit|cancel)(?:\s+(?:the|this|my))?\s+tour\b`), models.IntentTourStop, stopConfidence},
	{regexp.MustCompile(`(?i)\btour\b.*\b(?:stop|end|quit|exit|cancel)\b`), models.IntentTourStop, stopConfidence},
	{regexp.MustCompile(`(?i)\bno more tour\b`), models.IntentTourStop, stopConfidence},

	// tour_pause
	{regexp.MustCompile(`(?i)\bpause(?:\s+(?:the|this|my))?(?:\s+tour)?\b`), models.IntentTourPause, pauseConfidence},
	{regexp.MustCompile(`(?i)\bhold\s+(?:on|the tour)\b`), models.IntentTourPause, pauseConfidence},

	// tour_resume
	{regexp.MustCompile(`(?i)\bresume(?:\s+(?:the|this|my))?(?:\s+tour)?\b`), models.IntentTourResume, resumeConfidence},
	{regexp.MustCompile(`(?i)\b(?:continue|keep going)\b.*\btour\b`), models.IntentTourResume, resumeConfidence},
	{regexp.MustCompile(`(?i)\bwhere (?:was i|were we)\b`), models.IntentTourResume, resumeConfidence},

	// tour_next
	{regexp.MustCompile(`(?i)\bnext(?:\s+step)?\b`), models.IntentTourNext, nextConfidence},
	{regexp.MustCompile(`(?i)\bwhat(?:'s| is) next\b`), models.IntentTourNext, nextConfidence},
	{regexp.MustCompile(`(?i)\b(?:move|go) on\b`), models.IntentTourNext, nextConfidence},

	// section_tour: first capture group is the raw section text
	{regexp.MustCompile(`(?i)\b(?:explain|show me|tell me about|walk me through)\s+(?:the\s+)?(\w+)(?:\s+(?:tab|section|page|area))?\b`), models.IntentSectionTour, sectionConfidence},
	{regexp.MustCompile(`(?i)\btour\s+of\s+(?:the\s+)?(\w+)\b`), models.IntentSectionTour, sectionConfidence},
	{regexp.MustCompile(`(?i)\bhow\s+(?:do|does)\s+(?:the\s+)?(\w+)\s+(?:work|works)\b`), models.IntentSectionTour, sectionConfidence},

	// full_tour
	{regexp.MustCompile(`(?i)\b(?:give|take)\s+me\s+a\s+tour\b`), models.IntentFullTour, fullConfidence},
	{regexp.MustCompile(`(?i)\b(?:start|begin|take)\s+(?:a|the)\s+tour\b`), models.IntentFullTour, fullConfidence},
	{regexp.MustCompile(`(?i)\bfull\s+tour\b`), models.IntentFullTour, fullConfidence},
	{regexp.MustCompile(`(?i)\bshow\s+me\s+around\b`), models.IntentFullTour, fullConfidence},
}

// sectionSynonyms maps lower-cased user phrasing to canonical section IDs.
var sectionSynonyms = map[string]string{
	"dashboard":   "dashboard",
	"home":        "dashboard",
	"overview":    "dashboard",
	"inbox":       "inbox",
	"mail":        "inbox",
	"messages":    "inbox",
	"marketing":   "marketing",
	"campaigns":   "marketing",
	"calls":       "calls",
	"voice":       "calls",
	"phone":       "calls",
	"email":       "email",
	"settings":    "settings",
	"preferences": "settings",
	"personality": "settings",
}

// sectionModules maps canonical section IDs to the tour module covering them.
var sectionModules = map[string]string{
	"dashboard": "tour_dashboard",
	"inbox":     "tour_inbox",
	"marketing": "tour_marketing",
	"calls":     "tour_calls",
	"email":     "tour_email",
	"settings":  "tour_settings",
}

// Detect classifies a free-text message. It returns nil when the message is
// empty after trimming or matches no pattern.
func Detect(message string) *models.Intent {
	msg := strings.TrimSpace(message)
	if msg == "" {
		return nil
	}

	type candidate struct {
		models.Intent
		order int
	}
	var candidates []candidate
	for i, r := range rules {
		m := r.re.FindStringSubmatch(msg)
		if m == nil {
			continue
		}
		c := candidate{Intent: models.Intent{Intent: r.intent, Confidence: r.confidence}, order: i}
		if r.intent == models.IntentSectionTour && len(m) > 1 {
			c.Section = CanonicalSection(m[1])
			c.ModuleID = ModuleForSection(c.Section)
		}
		candidates = append(candidates, c)
	}
	if len(candidates) == 0 {
		slog.Debug("intent.Detect: no pattern matched", "message", msg)
		return nil
	}

	// Stable sort keeps declaration order within equal confidences.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})
	best := candidates[0].Intent
	slog.Debug("intent.Detect: classified message", "intent", best.Intent, "confidence", best.Confidence, "section", best.Section, "candidates", len(candidates))
	return &best
}

// CanonicalSection lower-cases raw section text and resolves it through the
// synonym table, defaulting to the dashboard section.
func CanonicalSection(raw string) string {
	if section, ok := sectionSynonyms[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return section
	}
	return DefaultSectionID
}

// ModuleForSection resolves a canonical section ID to its tour module,
// defaulting to the dashboard module.
func ModuleForSection(sectionID string) string {
	if moduleID, ok := sectionModules[sectionID]; ok {
		return moduleID
	}
	return sectionModules[DefaultSectionID]
}
