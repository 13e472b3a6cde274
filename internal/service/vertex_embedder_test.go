package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestBackendDown(t *testing.T) {
	cases := []struct {
		err  error
		down bool
	}{
		{status.Error(codes.Unavailable, "connection refused"), true},
		{status.Error(codes.Unauthenticated, "token expired"), true},
		{status.Error(codes.PermissionDenied, "aiplatform.endpoints.predict denied"), true},
		{status.Error(codes.ResourceExhausted, "quota exceeded"), false},
		{status.Error(codes.InvalidArgument, "text too long"), false},
		{status.Error(codes.DeadlineExceeded, "deadline"), false},
		{errors.New("plain"), false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.down, backendDown(tc.err), "%v", tc.err)
	}
}

func TestPredictionValues(t *testing.T) {
	p, err := structpb.NewValue(map[string]any{
		"embeddings": map[string]any{"values": []any{0.25, -0.5}},
	})
	assert.NoError(t, err)
	assert.Equal(t, []float32{0.25, -0.5}, predictionValues(p))

	empty, _ := structpb.NewValue(map[string]any{})
	assert.Empty(t, predictionValues(empty))
}
