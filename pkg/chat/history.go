package chat

import (
	"github.com/naila/sayra/pkg/provider"
	"github.com/naila/sayra/pkg/session"
)

// ProjectHistory maps a stored message log to provider context turns,
// excluding exactly the last message. The caller passes the full log
// including the just-appended user turn; the provider receives that
// turn separately as the prompt, so projecting it too would duplicate
// it.
func ProjectHistory(messages []session.Message) []provider.Turn {
	if len(messages) == 0 {
		return nil
	}

	prior := messages[:len(messages)-1]
	turns := make([]provider.Turn, 0, len(prior))
	for _, msg := range prior {
		turns = append(turns, provider.Turn{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}
	return turns
}
