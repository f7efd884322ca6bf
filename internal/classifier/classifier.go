// Package classifier assigns a heuristic root-cause category to a test
// failure from its error message and stack trace.
package classifier

import (
	"fmt"
	"strings"
)

type Category string

const (
	Infrastructure Category = "Infrastructure"
	CodeBug        Category = "Code Bug"
	Configuration  Category = "Configuration"
)

const (
	AnalysisModel       = "rule-based-v1"
	fallbackMessageLen  = 200
	noStackTrace        = "No stack trace available"
	unknownRootCause    = "Unable to determine root cause from available information."
	nullReferenceReason = " The stack trace indicates a null reference error, suggesting missing null checks or uninitialized variables."
)

// Result is a diagnosis of one failure.
type Result struct {
	Category           Category `json:"category"`
	Confidence         int      `json:"confidence"`
	RootCause          string   `json:"root_cause"`
	RecommendedActions []string `json:"recommended_actions"`
	TechnicalDetails   string   `json:"technical_details"`
	SimilarPatterns    []string `json:"similar_patterns"`
	AnalysisModel      string   `json:"analysis_model"`
}

// Rule fires when the lowercased error message contains any trigger.
type Rule struct {
	Name       string
	Triggers   []string
	Category   Category
	Confidence int
	RootCause  string
	Actions    []string
}

func (r Rule) matches(message string) bool {
	for _, t := range r.Triggers {
		if strings.Contains(message, t) {
			return true
		}
	}
	return false
}

// DefaultRules in priority order.
var DefaultRules = []Rule{
	{
		Name:       "network",
		Triggers:   []string{"timeout", "timed out", "connection"},
		Category:   Infrastructure,
		Confidence: 85,
		RootCause:  "Connection timeout indicates an infrastructure issue. The test failed to establish or maintain a connection, likely due to network problems, server unavailability, or resource exhaustion.",
		Actions: []string{
			"Check network connectivity",
			"Verify server status and availability",
			"Review connection pool configuration",
			"Check firewall and security settings",
		},
	},
	{
		Name:       "not-found",
		Triggers:   []string{"404", "not found"},
		Category:   CodeBug,
		Confidence: 90,
		RootCause:  "Resource not found (404) error suggests the endpoint or resource being tested does not exist or has been moved. This could indicate a routing issue, missing API endpoint, or incorrect URL configuration.",
		Actions: []string{
			"Verify the endpoint URL is correct",
			"Check API routing configuration",
			"Ensure the resource exists in the system",
			"Review recent code changes that might have affected routing",
		},
	},
	{
		Name:       "assertion",
		Triggers:   []string{"assertion", "expected"},
		Category:   CodeBug,
		Confidence: 80,
		RootCause:  "Assertion failure indicates the actual result does not match the expected result. This typically points to a logic error in the code being tested, incorrect test data, or a change in expected behavior.",
		Actions: []string{
			"Review the assertion logic",
			"Verify test data is correct",
			"Check if recent code changes affected the expected behavior",
			"Compare with previous successful test runs",
		},
	},
	{
		Name:       "access",
		Triggers:   []string{"permission", "unauthorized"},
		Category:   Configuration,
		Confidence: 85,
		RootCause:  "Permission or authorization error suggests a configuration issue with access controls, authentication, or authorization settings.",
		Actions: []string{
			"Verify user permissions and roles",
			"Check authentication configuration",
			"Review access control policies",
			"Ensure test credentials are valid",
		},
	},
}

// FallbackRule fires when no other rule matches. Its root cause is built
// from the message.
var FallbackRule = Rule{
	Name:       "fallback",
	Category:   CodeBug,
	Confidence: 65,
	Actions: []string{
		"Review the error message and stack trace",
		"Check recent code changes",
		"Verify test environment configuration",
		"Compare with similar test failures",
	},
}

// nullReferenceMarkers are looked up case-sensitively in the stack trace.
var nullReferenceMarkers = []string{
	"NullPointerException",
	"undefined",
	"nil pointer dereference",
	"NoneType",
}

var nullReferenceActions = []string{
	"Add null checks in the code",
	"Verify all variables are properly initialized",
}

// Classifier evaluates an ordered rule table; the first matching rule wins.
type Classifier struct {
	rules    []Rule
	fallback Rule
}

// New returns a classifier over rules, evaluated in the given order.
func New(rules []Rule, fallback Rule) *Classifier {
	return &Classifier{rules: rules, fallback: fallback}
}

var defaultClassifier = New(DefaultRules, FallbackRule)

// Classify diagnoses a failure with the default rules.
func Classify(message, trace string) Result {
	return defaultClassifier.Classify(message, trace)
}

// Classify never fails; an empty message gets the fallback diagnosis.
func (c *Classifier) Classify(message, trace string) Result {
	lower := strings.ToLower(message)

	rule := c.fallback
	rootCause := fallbackRootCause(message)
	for _, r := range c.rules {
		if r.matches(lower) {
			rule = r
			rootCause = r.RootCause
			break
		}
	}

	actions := append([]string(nil), rule.Actions...)
	if hasNullReference(trace) {
		rootCause += nullReferenceReason
		actions = append(actions, nullReferenceActions...)
	}

	return Result{
		Category:           rule.Category,
		Confidence:         rule.Confidence,
		RootCause:          rootCause,
		RecommendedActions: actions,
		TechnicalDetails:   technicalDetails(message, trace),
		SimilarPatterns:    []string{},
		AnalysisModel:      AnalysisModel,
	}
}

func fallbackRootCause(message string) string {
	if strings.TrimSpace(message) == "" {
		return unknownRootCause
	}
	return fmt.Sprintf("The test failure appears to be caused by: %s. Further investigation is needed to determine the exact root cause.", truncate(message, fallbackMessageLen))
}

func hasNullReference(trace string) bool {
	for _, m := range nullReferenceMarkers {
		if strings.Contains(trace, m) {
			return true
		}
	}
	return false
}

func technicalDetails(message, trace string) string {
	if trace == "" {
		trace = noStackTrace
	}
	return fmt.Sprintf("Error Message: %s\n\nStack Trace:\n%s", message, trace)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
