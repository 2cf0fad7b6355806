package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/videorag-backend/internal/platform/envutil"
)

// ClientConfig carries the retry and timeout knobs shared by every model
// service client.
type ClientConfig struct {
	TimeoutSeconds float64 `yaml:"timeout_seconds"`
	MaxRetries     int     `yaml:"max_retries"`
	RetryMinWait   float64 `yaml:"retry_min_wait"`
	RetryMaxWait   float64 `yaml:"retry_max_wait"`
}

func (c ClientConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds * float64(time.Second))
}

func (c ClientConfig) MinWait() time.Duration {
	return time.Duration(c.RetryMinWait * float64(time.Second))
}

func (c ClientConfig) MaxWait() time.Duration {
	return time.Duration(c.RetryMaxWait * float64(time.Second))
}

type IngestConfig struct {
	UserBucket string `yaml:"user_bucket"`
}

type AutoshotConfig struct {
	ModelName string `yaml:"model_name"`
	Device    string `yaml:"device"`
}

type ASRConfig struct {
	ModelName string `yaml:"model_name"`
	Device    string `yaml:"device"`
}

type ImageExtractConfig struct {
	FramesPerSegment int `yaml:"frames_per_segment"`
	WebPQuality      int `yaml:"webp_quality"`
}

type CaptionConfig struct {
	ModelName        string  `yaml:"model_name"`
	Device           string  `yaml:"device"`
	ImagesPerSegment int     `yaml:"images_per_segment"`
	PromptQuality    int     `yaml:"prompt_quality"`
	OverlapThreshold float64 `yaml:"overlap_threshold"`
}

type EmbeddingConfig struct {
	ModelName string `yaml:"model_name"`
	Device    string `yaml:"device"`
	BatchSize int    `yaml:"batch_size"`
	Dimension int    `yaml:"dimension"`
}

type VectorIngestConfig struct {
	BatchSize int `yaml:"batch_size"`
}

// PipelineConfig is the whole stage-tunable surface, loaded once at startup
// and passed down explicitly. Nothing reads it through globals.
type PipelineConfig struct {
	Client         ClientConfig       `yaml:"client"`
	Ingest         IngestConfig       `yaml:"ingest"`
	Autoshot       AutoshotConfig     `yaml:"autoshot"`
	ASR            ASRConfig          `yaml:"asr"`
	ImageExtract   ImageExtractConfig `yaml:"image_extract"`
	SegmentCaption CaptionConfig      `yaml:"segment_caption"`
	ImageCaption   CaptionConfig      `yaml:"image_caption"`
	ImageEmbedding EmbeddingConfig    `yaml:"image_embedding"`
	TextEmbedding  EmbeddingConfig    `yaml:"text_embedding"`
	VectorIngest   VectorIngestConfig `yaml:"vector_ingest"`
}

func Default() PipelineConfig {
	return PipelineConfig{
		Client: ClientConfig{
			TimeoutSeconds: 300,
			MaxRetries:     3,
			RetryMinWait:   1,
			RetryMaxWait:   10,
		},
		Ingest: IngestConfig{UserBucket: "user-videos"},
		Autoshot: AutoshotConfig{
			ModelName: "autoshot",
			Device:    "cuda",
		},
		ASR: ASRConfig{
			ModelName: "chunkformer",
			Device:    "cuda",
		},
		ImageExtract: ImageExtractConfig{
			FramesPerSegment: 3,
			WebPQuality:      90,
		},
		SegmentCaption: CaptionConfig{
			ModelName:        "openrouter_api",
			Device:           "cuda",
			ImagesPerSegment: 5,
			PromptQuality:    80,
			OverlapThreshold: 0.8,
		},
		ImageCaption: CaptionConfig{
			ModelName:     "openrouter_api",
			Device:        "cuda",
			PromptQuality: 80,
		},
		ImageEmbedding: EmbeddingConfig{
			ModelName: "open_clip",
			Device:    "cuda",
			BatchSize: 32,
			Dimension: 512,
		},
		TextEmbedding: EmbeddingConfig{
			ModelName: "mmbert",
			Device:    "cuda",
			BatchSize: 16,
			Dimension: 768,
		},
		VectorIngest: VectorIngestConfig{BatchSize: 100},
	}
}

// Load reads the YAML config at path over the defaults, then applies env
// overrides. An empty path skips the file and uses defaults plus env.
func Load(path string) (PipelineConfig, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *PipelineConfig) applyEnv() {
	c.Client.TimeoutSeconds = envutil.Float("CLIENT_TIMEOUT_SECONDS", c.Client.TimeoutSeconds)
	c.Client.MaxRetries = envutil.Int("CLIENT_MAX_RETRIES", c.Client.MaxRetries)
	c.Client.RetryMinWait = envutil.Float("CLIENT_RETRY_MIN_WAIT", c.Client.RetryMinWait)
	c.Client.RetryMaxWait = envutil.Float("CLIENT_RETRY_MAX_WAIT", c.Client.RetryMaxWait)

	c.Ingest.UserBucket = envutil.Str("INGEST_USER_BUCKET", c.Ingest.UserBucket)
	c.Autoshot.ModelName = envutil.Str("AUTOSHOT_MODEL_NAME", c.Autoshot.ModelName)
	c.Autoshot.Device = envutil.Str("AUTOSHOT_DEVICE", c.Autoshot.Device)
	c.ASR.ModelName = envutil.Str("ASR_MODEL_NAME", c.ASR.ModelName)
	c.ASR.Device = envutil.Str("ASR_DEVICE", c.ASR.Device)
	c.ImageExtract.FramesPerSegment = envutil.Int("IMAGE_FRAMES_PER_SEGMENT", c.ImageExtract.FramesPerSegment)
	c.SegmentCaption.ModelName = envutil.Str("LLM_MODEL_NAME", c.SegmentCaption.ModelName)
	c.ImageCaption.ModelName = envutil.Str("LLM_MODEL_NAME", c.ImageCaption.ModelName)
	c.ImageEmbedding.ModelName = envutil.Str("IMAGE_EMBEDDING_MODEL_NAME", c.ImageEmbedding.ModelName)
	c.ImageEmbedding.BatchSize = envutil.Int("IMAGE_EMBEDDING_BATCH_SIZE", c.ImageEmbedding.BatchSize)
	c.TextEmbedding.ModelName = envutil.Str("TEXT_EMBEDDING_MODEL_NAME", c.TextEmbedding.ModelName)
	c.TextEmbedding.BatchSize = envutil.Int("TEXT_EMBEDDING_BATCH_SIZE", c.TextEmbedding.BatchSize)
	c.VectorIngest.BatchSize = envutil.Int("VECTOR_INGEST_BATCH_SIZE", c.VectorIngest.BatchSize)
}

func (c *PipelineConfig) validate() error {
	if c.Client.MaxRetries < 0 {
		return fmt.Errorf("client.max_retries must be >= 0")
	}
	if c.ImageExtract.FramesPerSegment < 1 {
		return fmt.Errorf("image_extract.frames_per_segment must be >= 1")
	}
	if c.ImageEmbedding.BatchSize < 1 || c.TextEmbedding.BatchSize < 1 {
		return fmt.Errorf("embedding batch sizes must be >= 1")
	}
	if c.VectorIngest.BatchSize < 1 {
		return fmt.Errorf("vector_ingest.batch_size must be >= 1")
	}
	if c.SegmentCaption.OverlapThreshold <= 0 || c.SegmentCaption.OverlapThreshold > 1 {
		return fmt.Errorf("segment_caption.overlap_threshold must be in (0, 1]")
	}
	return nil
}
