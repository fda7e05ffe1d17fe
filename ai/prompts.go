package ai

import (
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"hypoforge/domain/dataset"
	"hypoforge/domain/hypothesis"
)

// Prompt names; a file PROMPTS_DIR/<name>.txt overrides the built-in default
const (
	PromptAnalysis       = "analysis"
	PromptInterpretation = "interpretation"
)

// DefaultAnalysisPrompt instructs the model to write a rationale and one test function.
const DefaultAnalysisPrompt = `You are an expert data analyst. Test the given hypothesis on the provided Pandas DataFrame (df) as follows:

1. Explain briefly which statistical test fits the hypothesis and why.
2. Write a single ` + "```python" + ` code block that defines a function test_hypothesis(df) -> (float, float).
   It must return a (test statistic, p-value) tuple.
   Use only numpy, pandas and scipy. Convert columns to the right dtype before testing.
   Do not read files, call the network or print anything.`

// DefaultInterpretationPrompt summarises a test outcome.
const DefaultInterpretationPrompt = `You are an expert data analyst.
Given a hypothesis and its outcome, provide a plain English summary of the findings as a crisp H5 heading (#####), followed by 1-2 concise supporting sentences.
Highlight in **bold** the keywords in the supporting statements.
Do not mention the p-value but _interpret_ it to support the conclusion quantitatively.`

var builtinPrompts = map[string]string{
	PromptAnalysis:       DefaultAnalysisPrompt,
	PromptInterpretation: DefaultInterpretationPrompt,
}

// Global map to track initialized prompt directories (to avoid duplicate logs)
var (
	initializedDirs   = make(map[string]bool)
	initializedDirsMu sync.RWMutex
)

// PromptManager - Simple external prompt loader with built-in fallbacks
type PromptManager struct {
	PromptsDir string
}

// NewPromptManager creates a prompt manager
func NewPromptManager(promptsDir string) *PromptManager {
	// Only log initialization once per directory
	initializedDirsMu.Lock()
	if !initializedDirs[promptsDir] {
		initializedDirs[promptsDir] = true
		log.Printf("[PromptManager] Initialized for directory: %s", promptsDir)
	}
	initializedDirsMu.Unlock()

	return &PromptManager{PromptsDir: promptsDir}
}

// LoadPrompt loads a prompt template by name, falling back to the built-in
// text when no file exists.
func (pm *PromptManager) LoadPrompt(name string) (string, error) {
	path := filepath.Join(pm.PromptsDir, name+".txt")

	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if builtin, ok := builtinPrompts[name]; ok {
				return builtin, nil
			}
			return "", fmt.Errorf("prompt template not found: %s", name)
		}
		return "", fmt.Errorf("failed to load prompt %s: %w", name, err)
	}

	return strings.TrimSpace(string(content)), nil
}

// AnalysisUserContent is the user message of the analysis stream.
func AnalysisUserContent(h hypothesis.Hypothesis, summary string) string {
	return fmt.Sprintf("Hypothesis: %s\n\n%s", h.Hypothesis, summary)
}

// InterpretationUserContent is the user message of the interpretation stream.
func InterpretationUserContent(h hypothesis.Hypothesis, summary string, outcome hypothesis.Outcome) string {
	return fmt.Sprintf("Hypothesis: %s\n\n%s\n\nResult: %s. p-value: %s",
		h.Hypothesis, summary, formatStatistic(outcome.Statistic), dataset.FormatCompact(outcome.PValue))
}

// formatStatistic prints the shortest exact decimal, as a script runtime would.
func formatStatistic(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "Infinity"
	case math.IsInf(v, -1):
		return "-Infinity"
	}
	if a := math.Abs(v); a != 0 && (a >= 1e21 || a < 1e-6) {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
