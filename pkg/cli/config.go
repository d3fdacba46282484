package cli

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/nova/pkg/adapter"
	"github.com/m-mizutani/nova/pkg/interfaces"
	"github.com/m-mizutani/nova/pkg/policy"
	"github.com/m-mizutani/nova/pkg/repository"
	"github.com/m-mizutani/nova/pkg/usecase/chat"
	"github.com/urfave/cli/v3"
)

const (
	backendMemory    = "memory"
	backendFirestore = "firestore"
	backendChromem   = "chromem"

	generatorGemini = "gemini"
	generatorClaude = "claude"
)

// config holds configuration values
type config struct {
	// Repository
	project     string
	database    string
	store       string
	index       string
	chromemPath string

	// Adapters
	generator          string
	anthropicAPIKey    string
	anthropicModel     string
	geminiProject      string
	geminiLocation     string
	geminiAPIKey       string
	geminiModel        string
	embeddingModel     string
	embeddingCacheSize int64
	generationConfig   string

	// Orchestrator
	policyDir    string
	historyLimit int64
	memoryTopK   int64
	tailTimeout  time.Duration
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Google Cloud project ID",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.project,
		},
		&cli.StringFlag{
			Name:        "database",
			Aliases:     []string{"d"},
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("FIRESTORE_DATABASE_ID"),
			Destination: &cfg.database,
		},
		&cli.StringFlag{
			Name:        "store",
			Usage:       "Message store backend (firestore, memory)",
			Value:       backendFirestore,
			Sources:     cli.EnvVars("NOVA_STORE"),
			Destination: &cfg.store,
		},
		&cli.StringFlag{
			Name:        "index",
			Usage:       "Memory index backend (firestore, chromem, memory)",
			Value:       backendFirestore,
			Sources:     cli.EnvVars("NOVA_INDEX"),
			Destination: &cfg.index,
		},
		&cli.StringFlag{
			Name:        "chromem-path",
			Usage:       "Directory to persist the chromem index (in-memory if empty)",
			Sources:     cli.EnvVars("NOVA_CHROMEM_PATH"),
			Destination: &cfg.chromemPath,
		},
	}
}

// llmFlags returns flags for LLM-related configuration with destination config
func llmFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "generator",
			Usage:       "Reply generator (gemini, claude)",
			Value:       generatorGemini,
			Sources:     cli.EnvVars("NOVA_GENERATOR"),
			Destination: &cfg.generator,
		},
		&cli.StringFlag{
			Name:        "anthropic-api-key",
			Usage:       "Anthropic API key",
			Sources:     cli.EnvVars("ANTHROPIC_API_KEY"),
			Destination: &cfg.anthropicAPIKey,
		},
		&cli.StringFlag{
			Name:        "anthropic-model",
			Usage:       "Claude model for reply generation",
			Sources:     cli.EnvVars("ANTHROPIC_MODEL"),
			Destination: &cfg.anthropicModel,
		},
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "gemini-api-key",
			Usage:       "Gemini API key (uses the Gemini API instead of Vertex AI)",
			Sources:     cli.EnvVars("GEMINI_API_KEY"),
			Destination: &cfg.geminiAPIKey,
		},
		&cli.StringFlag{
			Name:        "gemini-model",
			Usage:       "Gemini model for reply generation",
			Sources:     cli.EnvVars("GEMINI_MODEL"),
			Destination: &cfg.geminiModel,
		},
		&cli.StringFlag{
			Name:        "embedding-model",
			Usage:       "Gemini embedding model",
			Sources:     cli.EnvVars("GEMINI_EMBEDDING_MODEL"),
			Destination: &cfg.embeddingModel,
		},
		&cli.IntFlag{
			Name:        "embedding-cache-size",
			Usage:       "Number of embeddings kept in memory (0 disables the cache)",
			Value:       1000,
			Sources:     cli.EnvVars("NOVA_EMBEDDING_CACHE_SIZE"),
			Destination: &cfg.embeddingCacheSize,
		},
		&cli.StringFlag{
			Name:        "generation-config",
			Usage:       "Path to YAML file with generation parameters",
			Sources:     cli.EnvVars("NOVA_GENERATION_CONFIG"),
			Destination: &cfg.generationConfig,
		},
	}
}

// chatFlags returns flags for the memory orchestrator
func chatFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "policy-dir",
			Usage:       "Directory of Rego policies applied to inbound messages",
			Sources:     cli.EnvVars("NOVA_POLICY_DIR"),
			Destination: &cfg.policyDir,
		},
		&cli.IntFlag{
			Name:        "history-limit",
			Usage:       "Number of recent messages given to the model",
			Value:       chat.DefaultHistoryLimit,
			Sources:     cli.EnvVars("NOVA_HISTORY_LIMIT"),
			Destination: &cfg.historyLimit,
		},
		&cli.IntFlag{
			Name:        "memory-top-k",
			Usage:       "Number of long-term memories recalled per message",
			Value:       chat.DefaultMemoryTopK,
			Sources:     cli.EnvVars("NOVA_MEMORY_TOP_K"),
			Destination: &cfg.memoryTopK,
		},
		&cli.DurationFlag{
			Name:        "tail-timeout",
			Usage:       "Time limit for persisting a reply after it is sent",
			Value:       chat.DefaultTailTimeout,
			Sources:     cli.EnvVars("NOVA_TAIL_TIMEOUT"),
			Destination: &cfg.tailTimeout,
		},
	}
}

// repositories bundles the store and index chosen by flags. close releases
// whatever clients were opened.
type repositories struct {
	store interfaces.MessageStore
	index interfaces.MemoryIndex
	close func()
}

// newRepositories creates the message store and memory index
func (cfg *config) newRepositories(ctx context.Context) (*repositories, error) {
	var (
		fs  *repository.Firestore
		mem *repository.Memory
	)
	result := &repositories{close: func() {}}

	firestoreRepo := func() (*repository.Firestore, error) {
		if fs != nil {
			return fs, nil
		}
		if cfg.project == "" {
			return nil, goerr.New("project is required")
		}
		if cfg.database == "" {
			return nil, goerr.New("database is required")
		}
		repo, err := repository.New(ctx, cfg.project, cfg.database)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create repository")
		}
		fs = repo
		result.close = func() { _ = fs.Close() }
		return fs, nil
	}
	memoryRepo := func() *repository.Memory {
		if mem == nil {
			mem = repository.NewMemory()
		}
		return mem
	}

	switch cfg.store {
	case backendFirestore:
		repo, err := firestoreRepo()
		if err != nil {
			return nil, err
		}
		result.store = repo
	case backendMemory:
		result.store = memoryRepo()
	default:
		return nil, goerr.New("unknown store backend", goerr.V("store", cfg.store))
	}

	switch cfg.index {
	case backendFirestore:
		repo, err := firestoreRepo()
		if err != nil {
			return nil, err
		}
		result.index = repo
	case backendChromem:
		index, err := repository.NewChromem(cfg.chromemPath)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create chromem index")
		}
		result.index = index
	case backendMemory:
		result.index = memoryRepo()
	default:
		result.close()
		return nil, goerr.New("unknown index backend", goerr.V("index", cfg.index))
	}

	return result, nil
}

// loadGenerationConfig reads the optional YAML generation config
func (cfg *config) loadGenerationConfig() (adapter.GenerationConfig, error) {
	if cfg.generationConfig == "" {
		return adapter.DefaultGenerationConfig(), nil
	}
	genCfg, err := adapter.LoadGenerationConfig(cfg.generationConfig)
	if err != nil {
		return adapter.GenerationConfig{}, goerr.Wrap(err, "failed to load generation config")
	}
	return genCfg, nil
}

// newGemini creates a new Gemini adapter instance
func (cfg *config) newGemini(ctx context.Context, genCfg adapter.GenerationConfig) (*adapter.Gemini, error) {
	if cfg.geminiAPIKey == "" {
		if cfg.geminiProject == "" {
			return nil, goerr.New("gemini-project or gemini-api-key is required")
		}
		if cfg.geminiLocation == "" {
			return nil, goerr.New("gemini-location is required")
		}
	}

	opts := []adapter.GeminiOption{adapter.WithGenerationConfig(genCfg)}
	if cfg.geminiModel != "" {
		opts = append(opts, adapter.WithGenerativeModel(cfg.geminiModel))
	}
	if cfg.embeddingModel != "" {
		opts = append(opts, adapter.WithEmbeddingModel(cfg.embeddingModel))
	}

	gemini, err := adapter.NewGemini(ctx, cfg.geminiProject, cfg.geminiLocation, cfg.geminiAPIKey, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create gemini client")
	}
	return gemini, nil
}

// newClaude creates a new Claude adapter instance
func (cfg *config) newClaude(genCfg adapter.GenerationConfig) (*adapter.Claude, error) {
	if cfg.anthropicAPIKey == "" {
		return nil, goerr.New("anthropic-api-key is required")
	}

	opts := []adapter.ClaudeOption{adapter.WithClaudeGenerationConfig(genCfg)}
	if cfg.anthropicModel != "" {
		opts = append(opts, adapter.WithClaudeModel(cfg.anthropicModel))
	}
	return adapter.NewClaude(cfg.anthropicAPIKey, opts...), nil
}

// newChatUseCase wires the memory orchestrator. The returned cleanup waits for
// background persistence and releases clients.
func (cfg *config) newChatUseCase(ctx context.Context) (*chat.UseCase, *repositories, func(), error) {
	repos, err := cfg.newRepositories(ctx)
	if err != nil {
		return nil, nil, nil, err
	}

	genCfg, err := cfg.loadGenerationConfig()
	if err != nil {
		repos.close()
		return nil, nil, nil, err
	}

	// Gemini always provides embeddings, and replies unless Claude is selected
	gemini, err := cfg.newGemini(ctx, genCfg)
	if err != nil {
		repos.close()
		return nil, nil, nil, err
	}

	var generator interfaces.Generator = gemini
	switch cfg.generator {
	case generatorGemini:
	case generatorClaude:
		claude, err := cfg.newClaude(genCfg)
		if err != nil {
			repos.close()
			return nil, nil, nil, err
		}
		generator = claude
	default:
		repos.close()
		return nil, nil, nil, goerr.New("unknown generator", goerr.V("generator", cfg.generator))
	}

	var embedder interfaces.Embedder = gemini
	closeEmbedder := func() {}
	if cfg.embeddingCacheSize > 0 {
		cached, err := adapter.NewCachedEmbedder(gemini, cfg.embeddingCacheSize)
		if err != nil {
			repos.close()
			return nil, nil, nil, goerr.Wrap(err, "failed to create embedding cache")
		}
		embedder = cached
		closeEmbedder = cached.Close
	}

	opts := []chat.Option{
		chat.WithHistoryLimit(int(cfg.historyLimit)),
		chat.WithMemoryTopK(int(cfg.memoryTopK)),
		chat.WithTailTimeout(cfg.tailTimeout),
	}
	if cfg.policyDir != "" {
		p, err := policy.Load(ctx, cfg.policyDir)
		if err != nil {
			repos.close()
			closeEmbedder()
			return nil, nil, nil, goerr.Wrap(err, "failed to load policy")
		}
		if p != nil {
			opts = append(opts, chat.WithPolicy(p))
		}
	}

	uc := chat.New(repos.store, repos.index, embedder, generator, opts...)
	cleanup := func() {
		uc.Wait()
		closeEmbedder()
		repos.close()
	}
	return uc, repos, cleanup, nil
}

// newStorage creates a new Storage adapter instance
func (cfg *config) newStorage(ctx context.Context, bucketName string) (adapter.Storage, error) {
	if bucketName == "" {
		return nil, goerr.New("bucket name is required")
	}

	storage, err := adapter.NewStorage(ctx, bucketName)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage")
	}
	return storage, nil
}
