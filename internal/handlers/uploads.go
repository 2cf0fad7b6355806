package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/videorag-backend/internal/flow"
	"github.com/yungbote/videorag-backend/internal/pipeline/tasks"
	"github.com/yungbote/videorag-backend/internal/platform/logger"
)

type UploadVideo struct {
	VideoName string `json:"video_name" binding:"required"`
	MinioURL  string `json:"minio_url" binding:"required"`
}

type UploadRequest struct {
	UserID string        `json:"user_id"`
	Videos []UploadVideo `json:"videos" binding:"required,min=1"`
}

// UploadResponse is returned immediately; the pipeline runs in the
// background and is tracked per video through the management endpoints.
type UploadResponse struct {
	RunID        string   `json:"run_id"`
	FlowRunID    string   `json:"flow_run_id"`
	VideoCount   int      `json:"video_count"`
	VideoNames   []string `json:"video_names"`
	VideoIDs     []string `json:"video_ids"`
	Status       string   `json:"status"`
	Message      string   `json:"message"`
	TrackingURLs []string `json:"tracking_urls"`
}

type UploadHandler struct {
	log        *logger.Logger
	flow       *flow.Flow
	userBucket string
}

func NewUploadHandler(log *logger.Logger, f *flow.Flow, userBucket string) *UploadHandler {
	return &UploadHandler{
		log:        log.With("handler", "UploadHandler"),
		flow:       f,
		userBucket: userBucket,
	}
}

// Submit kicks off one pipeline run over a batch of already-uploaded
// videos and returns 202 with per-video tracking urls.
func (h *UploadHandler) Submit(c *gin.Context) {
	var req UploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if req.UserID == "" {
		req.UserID = h.userBucket
	}

	items := make([]tasks.UploadItem, 0, len(req.Videos))
	names := make([]string, 0, len(req.Videos))
	videoIDs := make([]string, 0, len(req.Videos))
	trackingURLs := make([]string, 0, len(req.Videos))
	for _, v := range req.Videos {
		items = append(items, tasks.UploadItem{VideoName: v.VideoName, MinioURL: v.MinioURL})
		names = append(names, v.VideoName)
		id := tasks.VideoID(req.UserID, v.MinioURL)
		videoIDs = append(videoIDs, id)
		trackingURLs = append(trackingURLs, fmt.Sprintf("/api/management/videos/%s/status", id))
	}

	runID := uuid.NewString()
	flowRunID := uuid.NewString()
	in := tasks.IngestInput{UserID: req.UserID, Items: items}

	go func() {
		runLog := h.log.With("run_id", runID)
		result, err := h.flow.Run(context.Background(), in)
		if err != nil {
			runLog.Error("Pipeline run failed", "error", err)
			return
		}
		runLog.Info("Pipeline run finished",
			"videos", result.Videos,
			"vector_rows", result.VectorRowsPersisted)
	}()

	c.JSON(http.StatusAccepted, UploadResponse{
		RunID:        runID,
		FlowRunID:    flowRunID,
		VideoCount:   len(items),
		VideoNames:   names,
		VideoIDs:     videoIDs,
		Status:       "RUNNING",
		Message:      fmt.Sprintf("Processing started for %d video(s)", len(items)),
		TrackingURLs: trackingURLs,
	})
}
