package flow

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/videorag-backend/internal/artifact"
	"github.com/yungbote/videorag-backend/internal/clients"
	"github.com/yungbote/videorag-backend/internal/config"
	"github.com/yungbote/videorag-backend/internal/pipeline"
	"github.com/yungbote/videorag-backend/internal/pipeline/tasks"
	"github.com/yungbote/videorag-backend/internal/platform/logger"
)

// Clients bundles the model service clients the flow brackets around its
// stages.
type Clients struct {
	Autoshot   *clients.AutoshotClient
	ASR        *clients.ASRClient
	LLM        *clients.LLMClient
	ImageEmbed *clients.ImageEmbedClient
	TextEmbed  *clients.TextEmbedClient
}

// Tasks bundles the stage tasks in DAG order.
type Tasks struct {
	Ingest              *tasks.VideoIngestTask
	Autoshot            *tasks.AutoshotTask
	ASR                 *tasks.ASRTask
	ImageExtract        *tasks.ImageExtractTask
	SegmentCaption      *tasks.SegmentCaptionTask
	ImageCaption        *tasks.ImageCaptionTask
	ImageEmbed          *tasks.ImageEmbedTask
	TextCaptionEmbed    *tasks.TextCaptionEmbedTask
	SegmentCaptionEmbed *tasks.SegmentCaptionEmbedTask
	ImageVectors        *tasks.ImageVectorIngestTask
	TextCaptionVectors  *tasks.TextCaptionVectorIngestTask
	SegmentVectors      *tasks.SegmentCaptionVectorIngestTask
}

// Result summarises one completed pipeline run.
type Result struct {
	VideoIDs            []string `json:"video_ids"`
	Videos              int      `json:"videos"`
	Shots               int      `json:"shots"`
	Images              int      `json:"images"`
	SegmentCaptions     int      `json:"segment_captions"`
	ImageCaptions       int      `json:"image_captions"`
	ImageEmbeddings     int      `json:"image_embeddings"`
	TextEmbeddings      int      `json:"text_embeddings"`
	SegmentEmbeddings   int      `json:"segment_embeddings"`
	VectorRowsPersisted int      `json:"vector_rows_persisted"`
}

// modelClient is the lifecycle surface every service client shares.
type modelClient interface {
	Connect(ctx context.Context) error
	LoadModel(ctx context.Context, modelName, device string) error
	UnloadModel(ctx context.Context, cleanupMemory bool) error
	Close()
}

// Flow runs the full ingestion DAG for one batch of uploads.
type Flow struct {
	log      *logger.Logger
	cfg      config.PipelineConfig
	progress *pipeline.ProgressReporter
	tracer   trace.Tracer
	clients  Clients
	tasks    Tasks
}

func NewFlow(log *logger.Logger, cfg config.PipelineConfig, progress *pipeline.ProgressReporter, cl Clients, st Tasks) *Flow {
	return &Flow{
		log:      log.With("service", "VideoProcessingFlow"),
		cfg:      cfg,
		progress: progress,
		tracer:   otel.Tracer("videorag/flow"),
		clients:  cl,
		tasks:    st,
	}
}

// withModel brackets fn with the service's model lifecycle: connect, load,
// run, unload, close. Unload and close always run, even when fn fails.
func (f *Flow) withModel(ctx context.Context, client modelClient, modelName, device string, fn func(context.Context) error) error {
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Close()
	if err := client.LoadModel(ctx, modelName, device); err != nil {
		return err
	}
	defer func() {
		if err := client.UnloadModel(context.WithoutCancel(ctx), true); err != nil {
			f.log.Warn("Model unload failed", "error", err)
		}
	}()
	return fn(ctx)
}

// stage wraps one pipeline stage in a trace span and progress events for
// every video in the run.
func (f *Flow) stage(ctx context.Context, videoIDs []string, name string, fn func(context.Context) error) error {
	ctx, span := f.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.Int("videos", len(videoIDs)),
	))
	defer span.End()

	for _, id := range videoIDs {
		f.progress.StageStarted(ctx, id, name)
	}
	if err := fn(ctx); err != nil {
		span.RecordError(err)
		for _, id := range videoIDs {
			f.progress.StageFailed(ctx, id, name, err)
		}
		return fmt.Errorf("stage %s: %w", name, err)
	}
	for _, id := range videoIDs {
		f.progress.StageCompleted(ctx, id, name)
	}
	return nil
}

// Run executes the DAG:
//
//	ingest
//	  -> shot detection || transcription
//	  -> segment captioning || frame extraction
//	  -> frame captioning
//	  -> frame embedding || (caption + segment text embedding)
//	  -> vector persistence x3
func (f *Flow) Run(ctx context.Context, in tasks.IngestInput) (*Result, error) {
	ctx, span := f.tracer.Start(ctx, "video_processing_flow")
	defer span.End()

	videos, err := pipeline.Run(ctx, f.log, f.tasks.Ingest, in)
	if err != nil {
		return nil, err
	}
	videoIDs := make([]string, 0, len(videos))
	for _, v := range videos {
		videoIDs = append(videoIDs, v.VideoID)
	}
	span.SetAttributes(attribute.StringSlice("video_ids", videoIDs))
	if err := f.stage(ctx, videoIDs, pipeline.StageVideoIngest, func(context.Context) error { return nil }); err != nil {
		return nil, err
	}

	var shots []artifact.Autoshot
	var asrs []artifact.ASR
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return f.stage(gctx, videoIDs, pipeline.StageAutoshot, func(ctx context.Context) error {
			return f.withModel(ctx, f.clients.Autoshot, f.cfg.Autoshot.ModelName, f.cfg.Autoshot.Device, func(ctx context.Context) error {
				var err error
				shots, err = pipeline.Run(ctx, f.log, f.tasks.Autoshot, videos)
				return err
			})
		})
	})
	g.Go(func() error {
		return f.stage(gctx, videoIDs, pipeline.StageASR, func(ctx context.Context) error {
			return f.withModel(ctx, f.clients.ASR, f.cfg.ASR.ModelName, f.cfg.ASR.Device, func(ctx context.Context) error {
				var err error
				asrs, err = pipeline.Run(ctx, f.log, f.tasks.ASR, videos)
				return err
			})
		})
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Segment captioning holds the LLM service; frame extraction is local
	// ffmpeg work, so the two run side by side.
	var segmentCaptions []artifact.SegmentCaption
	var images []artifact.Image
	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		return f.stage(gctx, videoIDs, pipeline.StageSegmentCaptioning, func(ctx context.Context) error {
			return f.withModel(ctx, f.clients.LLM, f.cfg.SegmentCaption.ModelName, f.cfg.SegmentCaption.Device, func(ctx context.Context) error {
				var err error
				segmentCaptions, err = pipeline.Run(ctx, f.log, f.tasks.SegmentCaption, tasks.ShotASRInput{Autoshots: shots, ASRs: asrs})
				return err
			})
		})
	})
	g.Go(func() error {
		return f.stage(gctx, videoIDs, pipeline.StageImageExtraction, func(ctx context.Context) error {
			var err error
			images, err = pipeline.Run(ctx, f.log, f.tasks.ImageExtract, shots)
			return err
		})
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Frame captioning reuses the LLM service, so it waits for segment
	// captioning to release it.
	var imageCaptions []artifact.ImageCaption
	err = f.stage(ctx, videoIDs, pipeline.StageImageCaptioning, func(ctx context.Context) error {
		return f.withModel(ctx, f.clients.LLM, f.cfg.ImageCaption.ModelName, f.cfg.ImageCaption.Device, func(ctx context.Context) error {
			var err error
			imageCaptions, err = pipeline.Run(ctx, f.log, f.tasks.ImageCaption, images)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	// Both text embedding stages share the text encoder service and run
	// inside one model bracket, concurrently with frame embedding.
	var imageEmbeddings []artifact.ImageEmbedding
	var captionEmbeddings []artifact.TextCaptionEmbedding
	var segmentEmbeddings []artifact.SegmentCaptionEmbedding
	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		return f.stage(gctx, videoIDs, pipeline.StageImageEmbedding, func(ctx context.Context) error {
			return f.withModel(ctx, f.clients.ImageEmbed, f.cfg.ImageEmbedding.ModelName, f.cfg.ImageEmbedding.Device, func(ctx context.Context) error {
				var err error
				imageEmbeddings, err = pipeline.Run(ctx, f.log, f.tasks.ImageEmbed, images)
				return err
			})
		})
	})
	g.Go(func() error {
		return f.stage(gctx, videoIDs, pipeline.StageTextEmbedding, func(ctx context.Context) error {
			return f.withModel(ctx, f.clients.TextEmbed, f.cfg.TextEmbedding.ModelName, f.cfg.TextEmbedding.Device, func(ctx context.Context) error {
				var err error
				captionEmbeddings, err = pipeline.Run(ctx, f.log, f.tasks.TextCaptionEmbed, imageCaptions)
				if err != nil {
					return err
				}
				segmentEmbeddings, err = pipeline.Run(ctx, f.log, f.tasks.SegmentCaptionEmbed, segmentCaptions)
				return err
			})
		})
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := pipeline.Run(gctx, f.log, f.tasks.ImageVectors, imageEmbeddings)
		return err
	})
	g.Go(func() error {
		_, err := pipeline.Run(gctx, f.log, f.tasks.TextCaptionVectors, captionEmbeddings)
		return err
	})
	g.Go(func() error {
		_, err := pipeline.Run(gctx, f.log, f.tasks.SegmentVectors, segmentEmbeddings)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("vector persistence: %w", err)
	}

	result := &Result{
		VideoIDs:            videoIDs,
		Videos:              len(videos),
		Shots:               len(shots),
		Images:              len(images),
		SegmentCaptions:     len(segmentCaptions),
		ImageCaptions:       len(imageCaptions),
		ImageEmbeddings:     len(imageEmbeddings),
		TextEmbeddings:      len(captionEmbeddings),
		SegmentEmbeddings:   len(segmentEmbeddings),
		VectorRowsPersisted: len(imageEmbeddings) + len(captionEmbeddings) + len(segmentEmbeddings),
	}
	f.log.Info("Flow completed",
		"videos", result.Videos,
		"shots", result.Shots,
		"images", result.Images,
		"segment_captions", result.SegmentCaptions,
		"image_captions", result.ImageCaptions)
	return result, nil
}
