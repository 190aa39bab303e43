package retrieval

import (
	"context"
	"errors"
	"fmt"

	aiplatform "cloud.google.com/go/aiplatform/apiv1"
	aiplatformpb "cloud.google.com/go/aiplatform/apiv1/aiplatformpb"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/types/known/structpb"
)

// VertexEmbedder embeds query text with a Vertex publisher embedding model
// (text-embedding-004, 768 dimensions, matching the knowledge_chunks column).
type VertexEmbedder struct {
	client   *aiplatform.PredictionClient
	endpoint string
}

func NewVertexEmbedder(ctx context.Context, projectID, location, modelName string) (*VertexEmbedder, error) {
	if modelName == "" {
		modelName = "text-embedding-004"
	}
	c, err := aiplatform.NewPredictionClient(ctx,
		option.WithEndpoint(location+"-aiplatform.googleapis.com:443"))
	if err != nil {
		return nil, err
	}
	return &VertexEmbedder{
		client: c,
		endpoint: fmt.Sprintf("projects/%s/locations/%s/publishers/google/models/%s",
			projectID, location, modelName),
	}, nil
}

func (v *VertexEmbedder) Close() error { return v.client.Close() }

func (v *VertexEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	inst, err := structpb.NewValue(map[string]any{"content": text})
	if err != nil {
		return nil, err
	}

	resp, err := v.client.Predict(ctx, &aiplatformpb.PredictRequest{
		Endpoint:  v.endpoint,
		Instances: []*structpb.Value{inst},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Predictions) == 0 {
		return nil, errors.New("vertex embedder: empty prediction")
	}

	emb := resp.Predictions[0].GetStructValue().GetFields()["embeddings"]
	values := emb.GetStructValue().GetFields()["values"].GetListValue().GetValues()
	if len(values) == 0 {
		return nil, errors.New("vertex embedder: no embedding values in prediction")
	}

	out := make([]float32, len(values))
	for i, val := range values {
		out[i] = float32(val.GetNumberValue())
	}
	return out, nil
}
