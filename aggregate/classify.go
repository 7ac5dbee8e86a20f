package aggregate

import (
	"github.com/cloudflare/ahocorasick"
)

// DefaultBotMarkers are the substrings that mark a username as automation.
var DefaultBotMarkers = []string{"bot", "automated"}

var defaultClassifier = NewClassifier(DefaultBotMarkers)

// Classifier decides whether a username belongs to a bot. Matching is a
// case-sensitive substring search over the marker list, so "Robot" matches
// "bot" but "BuildBOT" does not.
type Classifier struct {
	markers []string
	matcher *ahocorasick.Matcher
}

// NewClassifier builds a classifier for markers. Empty markers are ignored;
// with no markers left nothing is classified as a bot.
func NewClassifier(markers []string) *Classifier {
	cleaned := make([]string, 0, len(markers))
	for _, m := range markers {
		if m != "" {
			cleaned = append(cleaned, m)
		}
	}
	c := &Classifier{markers: cleaned}
	if len(cleaned) > 0 {
		c.matcher = ahocorasick.NewStringMatcher(cleaned)
	}
	return c
}

// Markers returns a copy of the marker list.
func (c *Classifier) Markers() []string {
	return append([]string(nil), c.markers...)
}

// IsBot reports whether username contains any marker.
func (c *Classifier) IsBot(username string) bool {
	if c == nil || c.matcher == nil || username == "" {
		return false
	}
	return c.matcher.Contains([]byte(username))
}

// Classify reports whether username contains "bot" or "automated".
func Classify(username string) bool {
	return defaultClassifier.IsBot(username)
}
