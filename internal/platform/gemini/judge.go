package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/lightlogic3/popflow/internal/engine"
)

const judgeSystemPrompt = `You are the referee of a persuasion game. The player's objective:

%s

Judge ONLY the latest exchange. Decide how much ground the player gained
or lost this turn and whether the objective is now fully achieved. Report
your verdict exclusively through the score_change tool.`

// scoreChangeTool is the single tool the judge is allowed to call. Its
// schema mirrors the structured score decision the engine consumes.
var scoreChangeTool = &genai.Tool{
	FunctionDeclarations: []*genai.FunctionDeclaration{{
		Name:        "score_change",
		Description: "Report the score verdict for the latest exchange.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"scoreChange": {
					Type:        genai.TypeInteger,
					Description: "Signed score delta for this turn.",
				},
				"reason": {
					Type:        genai.TypeString,
					Description: "Short justification for the delta.",
				},
				"isAchieved": {
					Type:        genai.TypeInteger,
					Description: "1 if the objective is now fully achieved, else 0.",
				},
			},
			Required: []string{"scoreChange", "reason", "isAchieved"},
		},
	}},
}

// Judge scores turns through the declared score_change tool. It
// implements engine.Judge.
type Judge struct {
	client *Client
}

var _ engine.Judge = (*Judge)(nil)

// NewJudge creates the judge collaborator over a shared client.
func NewJudge(client *Client) *Judge {
	return &Judge{client: client}
}

// Score implements engine.Judge. The model is forced into the
// score_change tool so the verdict is always structured.
func (j *Judge) Score(ctx context.Context, objective string, memory []engine.Message, userInput, reply string) (*engine.ScoreDecision, error) {
	var turn strings.Builder
	turn.WriteString("Latest exchange to judge:\n")
	turn.WriteString("player: " + userInput + "\n")
	turn.WriteString("assistant: " + reply + "\n")

	contents := historyContents(memory)
	contents = append(contents, genai.NewContentFromText(turn.String(), genai.RoleUser))

	resp, err := j.client.generate(ctx, contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(fmt.Sprintf(judgeSystemPrompt, objective), genai.RoleUser),
		Tools:             []*genai.Tool{scoreChangeTool},
		ToolConfig: &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{
				Mode:                 genai.FunctionCallingConfigModeAny,
				AllowedFunctionNames: []string{"score_change"},
			},
		},
	})
	if err != nil {
		return nil, err
	}

	call := findFunctionCall(resp, "score_change")
	if call == nil {
		return nil, fmt.Errorf("%w: judge returned no score_change call", ErrInvalidResponse)
	}
	return decodeDecision(call.Args)
}

func findFunctionCall(resp *genai.GenerateContentResponse, name string) *genai.FunctionCall {
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.FunctionCall != nil && part.FunctionCall.Name == name {
			return part.FunctionCall
		}
	}
	return nil
}

// decodeDecision converts the tool call arguments into a score decision.
// isAchieved arrives as 0/1 but models occasionally send booleans; both
// are accepted.
func decodeDecision(args map[string]any) (*engine.ScoreDecision, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("%w: encode tool args: %v", ErrInvalidResponse, err)
	}

	var parsed struct {
		ScoreChange int             `json:"scoreChange"`
		Reason      string          `json:"reason"`
		IsAchieved  json.RawMessage `json:"isAchieved"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decode tool args: %v", ErrInvalidResponse, err)
	}

	achieved := false
	switch strings.TrimSpace(string(parsed.IsAchieved)) {
	case "1", "true":
		achieved = true
	case "0", "false", "", "null":
	default:
		return nil, fmt.Errorf("%w: unexpected isAchieved value %s", ErrInvalidResponse, parsed.IsAchieved)
	}

	return &engine.ScoreDecision{
		ScoreChange: parsed.ScoreChange,
		Reason:      parsed.Reason,
		IsAchieved:  achieved,
	}, nil
}
