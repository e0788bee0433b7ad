package recon

import "strings"

// Intent is the advisory classification of a user query. It selects a
// rendering strategy and never affects which facts get reconciled.
type Intent string

const (
	IntentIdentity      Intent = "identity"
	IntentPreference    Intent = "preference"
	IntentExperience    Intent = "experience"
	IntentComparison    Intent = "comparison"
	IntentExplanation   Intent = "explanation"
	IntentInformational Intent = "informational"
	IntentGeneral       Intent = "general"
)

// Classifier maps a query to an intent. It is a pluggable policy so it
// can be swapped or tested independently of the reconciliation logic.
type Classifier func(query string) Intent

// intentPatterns is checked in order; the first pattern family with a
// match wins. Order encodes precedence: identity recall outranks the
// broader informational buckets.
var intentPatterns = []struct {
	intent   Intent
	keywords []string
}{
	{IntentIdentity, []string{"my name", "who am i", "what am i called", "my username", "my email", "my user id"}},
	{IntentPreference, []string{"favorite", "favourite", "prefer", "preference", "my timezone", "my language", "my theme", "notification", "privacy"}},
	{IntentComparison, []string{"compare", " vs ", "versus", "difference between", "better than"}},
	{IntentExplanation, []string{"why ", "explain", "how come", "reason"}},
	{IntentExperience, []string{"remember when", "last time", "experience", "happened", "analyz", "analys"}},
	{IntentInformational, []string{"what is", "what are", "when is", "where is", "how many", "tell me about"}},
}

// ClassifyIntent is the default keyword-based classifier.
func ClassifyIntent(query string) Intent {
	q := " " + strings.ToLower(strings.TrimSpace(query)) + " "
	for _, p := range intentPatterns {
		for _, kw := range p.keywords {
			if strings.Contains(q, kw) {
				return p.intent
			}
		}
	}
	return IntentGeneral
}
