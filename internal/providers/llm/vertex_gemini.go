package llm

import (
	"context"
	"errors"

	vertexgenai "cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/iterator"
)

type VertexGemini struct {
	client    *vertexgenai.Client
	modelName string
}

func NewVertexGemini(ctx context.Context, projectID, location, modelName string) (*VertexGemini, error) {
	c, err := vertexgenai.NewClient(ctx, projectID, location)
	if err != nil {
		return nil, err
	}

	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}

	return &VertexGemini{client: c, modelName: modelName}, nil
}

func (v *VertexGemini) Close() error { return v.client.Close() }

func (v *VertexGemini) StreamChat(ctx context.Context, turns []Turn) (<-chan string, <-chan error) {
	out := make(chan string, 32)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)

		if len(turns) == 0 {
			errs <- errors.New("empty turn list")
			return
		}

		// fresh model value per call so SystemInstruction never leaks between
		// concurrent sessions
		model := v.client.GenerativeModel(v.modelName)

		rest := turns
		if rest[0].Role == RoleSystem {
			model.SystemInstruction = &vertexgenai.Content{
				Parts: []vertexgenai.Part{vertexgenai.Text(rest[0].Content)},
			}
			rest = rest[1:]
		}
		if len(rest) == 0 {
			errs <- errors.New("no user turn to respond to")
			return
		}

		last := rest[len(rest)-1]
		history := make([]*vertexgenai.Content, 0, len(rest)-1)
		for _, t := range rest[:len(rest)-1] {
			role := "user"
			if t.Role == RoleAssistant {
				role = "model"
			}
			history = append(history, &vertexgenai.Content{
				Role:  role,
				Parts: []vertexgenai.Part{vertexgenai.Text(t.Content)},
			})
		}

		cs := model.StartChat()
		cs.History = history

		it := cs.SendMessageStream(ctx, vertexgenai.Text(last.Content))
		for {
			resp, err := it.Next()
			if err == iterator.Done {
				return
			}
			if err != nil {
				errs <- err
				return
			}

			for _, cand := range resp.Candidates {
				if cand.Content == nil {
					continue
				}
				for _, part := range cand.Content.Parts {
					if t, ok := part.(vertexgenai.Text); ok && string(t) != "" {
						select {
						case out <- string(t):
						case <-ctx.Done():
							return
						}
					}
				}
			}
		}
	}()

	return out, errs
}
