package agent

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/avi3tal/agentrunner/internal/logging"
)

// Intents the classifier may return.
const (
	IntentExecute = "execute"
	IntentPatch   = "patch"
	IntentUnclear = "unclear"
)

// Intent is the classifier's verdict on what kind of work a task wants.
type Intent struct {
	Kind       string  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

const classifierPrompt = `Classify the user task into one of:
- "execute": the task asks to fetch, filter, sort or otherwise work with data
- "patch": the task asks to change the workflow structure (add/remove/rewire nodes)
- "unclear": neither clearly applies

Reply with JSON only: {"intent": "...", "confidence": 0.0-1.0, "reason": "..."}`

// IntentClassifier gives the main decision call a hint about what the
// task wants. It is advisory: classification never fails a job, any
// error degrades to unclear.
type IntentClassifier struct {
	model llms.Model
	log   *logging.Logger
}

func NewIntentClassifier(model llms.Model, log *logging.Logger) *IntentClassifier {
	return &IntentClassifier{model: model, log: log}
}

// Classify returns the intent for a task. On any failure it returns
// unclear with zero confidence.
func (c *IntentClassifier) Classify(ctx context.Context, task string) Intent {
	unclear := Intent{Kind: IntentUnclear}
	if task == "" {
		return unclear
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, classifierPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, task),
	}
	resp, err := c.model.GenerateContent(ctx, messages, llms.WithJSONMode())
	if err != nil {
		c.log.Debug("intent classification failed", "error", err)
		return unclear
	}
	if len(resp.Choices) == 0 {
		return unclear
	}

	var intent Intent
	if err := json.Unmarshal([]byte(resp.Choices[0].Content), &intent); err != nil {
		c.log.Debug("unparseable intent reply", "error", err)
		return unclear
	}
	switch strings.ToLower(intent.Kind) {
	case IntentExecute, IntentPatch:
		intent.Kind = strings.ToLower(intent.Kind)
	default:
		return unclear
	}
	if intent.Confidence < 0 || intent.Confidence > 1 {
		intent.Confidence = 0
	}
	return intent
}
