package service

import (
	"context"
	"fmt"

	aiplatform "cloud.google.com/go/aiplatform/apiv1"
	"cloud.google.com/go/aiplatform/apiv1/aiplatformpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// vertexMaxInstances is the per-request instance cap for text embedding models.
const vertexMaxInstances = 250

// VertexOptions configures a VertexEmbedder.
type VertexOptions struct {
	ProjectID       string
	Location        string
	Model           string
	Dimensions      int
	CredentialsFile string
}

// VertexEmbedder calls a Vertex AI text embedding model (text-embedding-005
// by default) with task_type RETRIEVAL_DOCUMENT.
type VertexEmbedder struct {
	client     *aiplatform.PredictionClient
	endpoint   string
	dimensions int
}

// NewVertexEmbedder creates a prediction client for the regional endpoint.
// Without a credentials file, Application Default Credentials are used.
func NewVertexEmbedder(ctx context.Context, opts VertexOptions) (*VertexEmbedder, error) {
	if opts.ProjectID == "" {
		return nil, fmt.Errorf("vertex: project id is required")
	}
	if opts.Location == "" {
		opts.Location = "us-central1"
	}
	if opts.Model == "" {
		opts.Model = "text-embedding-005"
	}

	clientOpts := []option.ClientOption{
		option.WithEndpoint(fmt.Sprintf("%s-aiplatform.googleapis.com:443", opts.Location)),
	}
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}

	client, err := aiplatform.NewPredictionClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vertex AI client: %w", err)
	}

	return &VertexEmbedder{
		client:     client,
		endpoint:   fmt.Sprintf("projects/%s/locations/%s/publishers/google/models/%s", opts.ProjectID, opts.Location, opts.Model),
		dimensions: opts.Dimensions,
	}, nil
}

// Embed generates an embedding vector for the input text.
func (v *VertexEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := v.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch sends texts in chunks of at most vertexMaxInstances.
func (v *VertexEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += vertexMaxInstances {
		end := min(start+vertexMaxInstances, len(texts))
		vecs, err := v.predict(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (v *VertexEmbedder) predict(ctx context.Context, texts []string) ([][]float32, error) {
	instances := make([]*structpb.Value, 0, len(texts))
	for _, text := range texts {
		instance, err := structpb.NewStruct(map[string]interface{}{
			"content":   text,
			"task_type": "RETRIEVAL_DOCUMENT",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create instance: %w", err)
		}
		instances = append(instances, structpb.NewStructValue(instance))
	}

	req := &aiplatformpb.PredictRequest{
		Endpoint:  v.endpoint,
		Instances: instances,
	}
	if v.dimensions > 0 {
		params, err := structpb.NewValue(map[string]interface{}{
			"outputDimensionality": v.dimensions,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create parameters: %w", err)
		}
		req.Parameters = params
	}

	resp, err := v.client.Predict(ctx, req)
	if err != nil {
		if backendDown(err) {
			return nil, fmt.Errorf("failed to get prediction: %w: %w", ErrBackendDown, err)
		}
		return nil, fmt.Errorf("failed to get prediction: %w", err)
	}
	if len(resp.Predictions) != len(texts) {
		return nil, fmt.Errorf("got %d predictions for %d instances", len(resp.Predictions), len(texts))
	}

	out := make([][]float32, len(resp.Predictions))
	for i, p := range resp.Predictions {
		out[i] = predictionValues(p)
	}
	return out, nil
}

// backendDown reports whether a Predict error means no text can be served
// until something outside this process changes.
func backendDown(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.Unauthenticated, codes.PermissionDenied, codes.NotFound:
		return true
	}
	return false
}

// predictionValues extracts embeddings.values from one prediction.
func predictionValues(p *structpb.Value) []float32 {
	embeddings := p.GetStructValue().GetFields()["embeddings"].GetStructValue()
	values := embeddings.GetFields()["values"].GetListValue().GetValues()

	result := make([]float32, len(values))
	for i, v := range values {
		result[i] = float32(v.GetNumberValue())
	}
	return result
}

// Close releases the Vertex AI client resources.
func (v *VertexEmbedder) Close() error {
	return v.client.Close()
}
