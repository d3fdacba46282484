package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/nova/pkg/controller/ws"
	"github.com/m-mizutani/nova/pkg/model"
	"github.com/m-mizutani/nova/pkg/repository"
)

func TestNewRepositories(t *testing.T) {
	ctx := context.Background()

	t.Run("memory store and index share one repository", func(t *testing.T) {
		cfg := &config{store: backendMemory, index: backendMemory}
		repos, err := cfg.newRepositories(ctx)
		gt.NoError(t, err)
		defer repos.close()

		store, ok := repos.store.(*repository.Memory)
		gt.True(t, ok)
		index, ok := repos.index.(*repository.Memory)
		gt.True(t, ok)
		gt.True(t, index == store)
	})

	t.Run("chromem index", func(t *testing.T) {
		cfg := &config{store: backendMemory, index: backendChromem}
		repos, err := cfg.newRepositories(ctx)
		gt.NoError(t, err)
		defer repos.close()

		_, ok := repos.index.(*repository.Chromem)
		gt.True(t, ok)
	})

	t.Run("firestore requires a project", func(t *testing.T) {
		cfg := &config{store: backendFirestore, index: backendMemory, database: "(default)"}
		_, err := cfg.newRepositories(ctx)
		gt.Error(t, err)
	})

	t.Run("unknown backend", func(t *testing.T) {
		cfg := &config{store: "mongodb", index: backendMemory}
		_, err := cfg.newRepositories(ctx)
		gt.Error(t, err)

		cfg = &config{store: backendMemory, index: "pinecone"}
		_, err = cfg.newRepositories(ctx)
		gt.Error(t, err)
	})
}

func TestLoadGenerationConfigDefault(t *testing.T) {
	cfg := &config{}
	genCfg, err := cfg.loadGenerationConfig()
	gt.NoError(t, err)
	gt.True(t, genCfg.SystemInstruction != "")
}

func TestTokenCommand(t *testing.T) {
	var buf bytes.Buffer
	cmd := tokenCommand()
	cmd.Writer = &buf

	err := cmd.Run(context.Background(), []string{"token", "--user-id", "u1", "--jwt-secret", "secret"})
	gt.NoError(t, err)

	auth, err := ws.NewAuthenticator("secret")
	gt.NoError(t, err)
	userID, err := auth.Verify(strings.TrimSpace(buf.String()))
	gt.NoError(t, err)
	gt.Equal(t, userID, model.UserID("u1"))
}
