package adapter_test

import (
	"context"
	"os"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/nova/pkg/adapter"
	"github.com/m-mizutani/nova/pkg/model"
)

func newTestGemini(t *testing.T) *adapter.Gemini {
	projectID := os.Getenv("TEST_GEMINI_PROJECT")
	if projectID == "" {
		t.Skip("TEST_GEMINI_PROJECT is not set")
	}

	location := os.Getenv("TEST_GEMINI_LOCATION")
	if location == "" {
		location = "us-central1"
	}

	client, err := adapter.NewGemini(context.Background(), projectID, location, "")
	gt.NoError(t, err)
	return client
}

func TestGeminiGenerate(t *testing.T) {
	client := newTestGemini(t)

	reply, err := client.Generate(context.Background(), []model.Turn{
		{Role: model.RoleUser, Text: "Hello, what is the capital of France?"},
	})
	gt.NoError(t, err)
	gt.S(t, reply).Contains("Paris")
}

func TestGeminiEmbed(t *testing.T) {
	client := newTestGemini(t)

	vector, err := client.Embed(context.Background(), "hello")
	gt.NoError(t, err)
	gt.A(t, vector).Length(model.EmbeddingDimension)
}
