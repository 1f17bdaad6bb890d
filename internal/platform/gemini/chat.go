package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/lightlogic3/popflow/internal/domain"
	"github.com/lightlogic3/popflow/internal/engine"
)

const chatSystemPrompt = `You are the in-character counterpart in a persuasion game.
The player is trying to achieve the following objective against you:

%s

Stay in character. Respond naturally to the player's latest message,
resisting the objective unless the player genuinely earns ground.`

// ChatModel produces the in-character assistant reply. It implements
// engine.ChatModel.
type ChatModel struct {
	client *Client
}

var _ engine.ChatModel = (*ChatModel)(nil)

// NewChatModel creates the chat collaborator over a shared client.
func NewChatModel(client *Client) *ChatModel {
	return &ChatModel{client: client}
}

// Reply implements engine.ChatModel.
func (m *ChatModel) Reply(ctx context.Context, objective string, memory []engine.Message, userInput string) (*engine.ModelReply, error) {
	contents := historyContents(memory)
	contents = append(contents, genai.NewContentFromText(userInput, genai.RoleUser))

	resp, err := m.client.generate(ctx, contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(fmt.Sprintf(chatSystemPrompt, objective), genai.RoleUser),
	})
	if err != nil {
		return nil, err
	}

	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("%w: empty reply text", ErrInvalidResponse)
	}

	inputTokens, outputTokens := usage(resp)
	return &engine.ModelReply{
		Content:      text,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		ModelID:      m.client.config.ModelName,
	}, nil
}

// historyContents converts replayed conversation memory into model turns.
func historyContents(memory []engine.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(memory)+1)
	for _, msg := range memory {
		role := genai.Role(genai.RoleUser)
		if msg.Role == domain.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}
	return contents
}
