package config

const (
	defaultStagingDir = "~/.local/share/papercast/staging"
	defaultEpisodeDir = "~/.local/share/papercast/episodes"
	defaultLogDir     = "~/.local/share/papercast/logs"
	defaultAPIBind    = "127.0.0.1:7523"

	defaultQueuePollInterval  = 2
	defaultErrorRetryInterval = 5
	defaultJobTimeBudget      = 1800
	defaultRewriteBudget      = 8
	defaultSegmentWorkers     = 2

	defaultProvider = "mock"

	defaultLLMBaseURL        = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel          = "google/gemini-3-flash-preview"
	defaultLLMTimeoutSeconds = 60

	defaultEmbeddingBaseURL        = "https://openrouter.ai/api/v1/embeddings"
	defaultEmbeddingModel          = "openai/text-embedding-3-small"
	defaultEmbeddingDimensions     = 256
	defaultEmbeddingTimeoutSeconds = 30

	defaultSpeechSampleRate     = 22050
	defaultSpeechTimeoutSeconds = 120

	defaultChunkSize    = 800
	defaultChunkOverlap = 100

	defaultWordsPerMinute    = 150
	defaultMaxSegmentSeconds = 180
	defaultMinSegments       = 3
	defaultMaxSegments       = 8

	defaultRewriteCap          = 2
	defaultMinVerifiedFraction = 1.0
	defaultSupportThreshold    = 0.35
	defaultFactsTopK           = 5
	defaultStyleTopK           = 3

	defaultStyle = "conversational"

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			EpisodeDir: defaultEpisodeDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		Workflow: Workflow{
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			JobTimeBudget:      defaultJobTimeBudget,
			RewriteBudget:      defaultRewriteBudget,
			SegmentWorkers:     defaultSegmentWorkers,
		},
		Capabilities: Capabilities{
			Provider: defaultProvider,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Embedding: Embedding{
			BaseURL:        defaultEmbeddingBaseURL,
			Model:          defaultEmbeddingModel,
			Dimensions:     defaultEmbeddingDimensions,
			TimeoutSeconds: defaultEmbeddingTimeoutSeconds,
		},
		Speech: Speech{
			SampleRate:     defaultSpeechSampleRate,
			TimeoutSeconds: defaultSpeechTimeoutSeconds,
			Voices: map[string]string{
				"host":   "alloy",
				"expert": "onyx",
			},
		},
		Index: Index{
			ChunkSize:    defaultChunkSize,
			ChunkOverlap: defaultChunkOverlap,
		},
		Planner: Planner{
			WordsPerMinute:    defaultWordsPerMinute,
			MaxSegmentSeconds: defaultMaxSegmentSeconds,
			MinSegments:       defaultMinSegments,
			MaxSegments:       defaultMaxSegments,
		},
		Scriptgen: Scriptgen{
			RewriteCap:          defaultRewriteCap,
			MinVerifiedFraction: defaultMinVerifiedFraction,
			SupportThreshold:    defaultSupportThreshold,
			FactsTopK:           defaultFactsTopK,
			StyleTopK:           defaultStyleTopK,
		},
		Episode: Episode{
			Style:    defaultStyle,
			Speakers: []string{"host", "expert"},
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
