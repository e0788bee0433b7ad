package acceptance

import (
	"context"
	"os"
	"testing"

	"github.com/cucumber/godog"
)

// TestFeatures runs all Gherkin acceptance tests
func TestFeatures(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping acceptance tests in short mode")
	}

	tags := os.Getenv("GODOG_TAGS")
	if tags == "" {
		tags = "~@wip"
	} else {
		tags = tags + "&&~@wip"
	}

	suite := godog.TestSuite{
		ScenarioInitializer: initializeScenario(t),
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
			Tags:     tags,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("acceptance tests failed")
	}
}

// TestSmokeFeatures runs only smoke tests (quick verification)
func TestSmokeFeatures(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping acceptance tests in short mode")
	}

	suite := godog.TestSuite{
		ScenarioInitializer: initializeScenario(t),
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
			Tags:     "@smoke&&~@wip",
		},
	}

	if suite.Run() != 0 {
		t.Fatal("smoke tests failed")
	}
}

// initializeScenario sets up step definitions. Each scenario gets its
// own data directory so stores never bleed between scenarios.
func initializeScenario(t *testing.T) func(*godog.ScenarioContext) {
	return func(ctx *godog.ScenarioContext) {
		tc := &TestContext{
			ctx:    context.Background(),
			tmpDir: func() string { return t.TempDir() },
		}

		ctx.Step(`^a fresh memory store$`, tc.freshStore)
		ctx.Step(`^the canonical fact "([^"]*)" is "([^"]*)"$`, tc.canonicalFact)
		ctx.Step(`^a semantic memory "([^"]*)"$`, tc.semanticMemory)
		ctx.Step(`^a semantic memory "([^"]*)" for key "([^"]*)"$`, tc.semanticMemoryForKey)
		ctx.Step(`^I ask "([^"]*)"$`, tc.ask)

		ctx.Step(`^the answer should contain "([^"]*)"$`, tc.answerContains)
		ctx.Step(`^the answer should not contain "([^"]*)"$`, tc.answerNotContains)
		ctx.Step(`^the answer should cite "([^"]*)"$`, tc.answerCites)
		ctx.Step(`^the answer should mention a semantic match$`, tc.answerMentionsSemanticMatch)
		ctx.Step(`^the answer should indicate nothing was found$`, tc.answerIndicatesNothingFound)

		ctx.Step(`^(\d+) conflicts? should be detected$`, tc.conflictCount)
		ctx.Step(`^(\d+) semantic suggestions? should be overridden$`, tc.overriddenCount)
		ctx.Step(`^a conflict with severity "([^"]*)" should be recorded for "([^"]*)"$`, tc.conflictWithSeverity)

		ctx.Step(`^the confidence should be at most ([0-9.]+)$`, tc.confidenceAtMost)
		ctx.Step(`^the confidence should be at least ([0-9.]+)$`, tc.confidenceAtLeast)
		ctx.Step(`^the confidence should be exactly ([0-9.]+)$`, tc.confidenceExactly)

		ctx.Step(`^the audit trail should contain a "([^"]*)" episode$`, tc.auditTrailContains)
	}
}
