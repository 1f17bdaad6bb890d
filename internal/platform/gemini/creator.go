package gemini

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/lightlogic3/popflow/internal/domain"
	"github.com/lightlogic3/popflow/internal/engine"
)

const creatorPrompt = `Invent one fresh scenario for a persuasion game.
Produce a short title, a one-paragraph objective the player must argue
for, a target score between 20 and 100, and a round limit between 3 and
10. The objective must be concrete and winnable through conversation.`

var subtaskSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"title":       {Type: genai.TypeString},
		"objective":   {Type: genai.TypeString},
		"targetScore": {Type: genai.TypeInteger},
		"maxRounds":   {Type: genai.TypeInteger},
	},
	Required: []string{"title", "objective", "targetScore", "maxRounds"},
}

// SubtaskCreator generates fresh subtasks as structured JSON. It
// implements engine.SubtaskCreator.
type SubtaskCreator struct {
	client *Client
}

var _ engine.SubtaskCreator = (*SubtaskCreator)(nil)

// NewSubtaskCreator creates the generation collaborator over a shared
// client.
func NewSubtaskCreator(client *Client) *SubtaskCreator {
	return &SubtaskCreator{client: client}
}

// CreateSubtask implements engine.SubtaskCreator.
func (c *SubtaskCreator) CreateSubtask(ctx context.Context, taskID uuid.UUID) (*domain.Subtask, error) {
	resp, err := c.client.generate(ctx,
		[]*genai.Content{genai.NewContentFromText(creatorPrompt, genai.RoleUser)},
		&genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   subtaskSchema,
		})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Title       string `json:"title"`
		Objective   string `json:"objective"`
		TargetScore int    `json:"targetScore"`
		MaxRounds   int    `json:"maxRounds"`
	}
	if err := json.Unmarshal([]byte(resp.Text()), &parsed); err != nil {
		return nil, fmt.Errorf("%w: decode subtask JSON: %v", ErrInvalidResponse, err)
	}

	subtask, err := domain.NewSubtask(taskID, parsed.Title, parsed.Objective, parsed.TargetScore, parsed.MaxRounds)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return subtask, nil
}
