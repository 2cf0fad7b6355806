package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/videorag-backend/internal/artifact"
	"github.com/yungbote/videorag-backend/internal/management"
	"github.com/yungbote/videorag-backend/internal/pipeline"
	errs "github.com/yungbote/videorag-backend/internal/pkg/errors"
	"github.com/yungbote/videorag-backend/internal/platform/logger"
)

var deletableTypes = map[string]artifact.Type{
	"autoshot":                  artifact.TypeAutoshot,
	"asr":                       artifact.TypeASR,
	"image":                     artifact.TypeImage,
	"segment_caption":           artifact.TypeSegmentCaption,
	"image_caption":             artifact.TypeImageCaption,
	"image_embedding":           artifact.TypeImageEmbedding,
	"text_caption_embedding":    artifact.TypeTextCaptionEmbedding,
	"segment_caption_embedding": artifact.TypeSegmentCaptionEmbedding,
}

type BatchDeleteRequest struct {
	VideoIDs []string `json:"video_ids" binding:"required,min=1"`
}

type ManagementHandler struct {
	log      *logger.Logger
	deleter  *management.Deleter
	status   *management.StatusService
	progress *pipeline.ProgressReporter
}

func NewManagementHandler(log *logger.Logger, deleter *management.Deleter, status *management.StatusService, progress *pipeline.ProgressReporter) *ManagementHandler {
	return &ManagementHandler{
		log:      log.With("handler", "ManagementHandler"),
		deleter:  deleter,
		status:   status,
		progress: progress,
	}
}

func (h *ManagementHandler) DeleteVideo(c *gin.Context) {
	videoID := c.Param("video_id")
	result, err := h.deleter.DeleteVideo(c.Request.Context(), videoID)
	if err != nil {
		h.respondDeleteError(c, videoID, err)
		return
	}
	RespondOK(c, result)
}

func (h *ManagementHandler) DeleteStage(c *gin.Context) {
	videoID := c.Param("video_id")
	stage := c.Param("stage")
	typ, ok := deletableTypes[stage]
	if !ok {
		RespondError(c, http.StatusBadRequest, "invalid_stage", fmt.Errorf("unknown stage %q", stage))
		return
	}
	result, err := h.deleter.DeleteStage(c.Request.Context(), videoID, typ)
	if err != nil {
		h.respondDeleteError(c, videoID, err)
		return
	}
	RespondOK(c, result)
}

func (h *ManagementHandler) DeleteVectors(c *gin.Context) {
	videoID := c.Param("video_id")
	result, err := h.deleter.DeleteVectorsOnly(c.Request.Context(), videoID)
	if err != nil {
		h.respondDeleteError(c, videoID, err)
		return
	}
	RespondOK(c, result)
}

func (h *ManagementHandler) BatchDelete(c *gin.Context) {
	var req BatchDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	results := h.deleter.DeleteBatch(c.Request.Context(), req.VideoIDs)
	RespondOK(c, gin.H{"results": results})
}

func (h *ManagementHandler) GetStatus(c *gin.Context) {
	videoID := c.Param("video_id")
	report, err := h.status.GetStatus(c.Request.Context(), videoID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			RespondError(c, http.StatusNotFound, "video_not_found", err)
			return
		}
		h.log.Error("GetStatus failed", "error", err, "video_id", videoID)
		RespondError(c, http.StatusInternalServerError, "status_failed", err)
		return
	}
	RespondOK(c, report)
}

func (h *ManagementHandler) GetProgress(c *gin.Context) {
	videoID := c.Param("video_id")
	snap, found, err := h.progress.Get(c.Request.Context(), videoID)
	if err != nil {
		h.log.Error("GetProgress failed", "error", err, "video_id", videoID)
		RespondError(c, http.StatusInternalServerError, "progress_failed", err)
		return
	}
	if !found {
		RespondError(c, http.StatusNotFound, "progress_not_found", fmt.Errorf("no progress for video %s", videoID))
		return
	}
	RespondOK(c, snap)
}

func (h *ManagementHandler) respondDeleteError(c *gin.Context, videoID string, err error) {
	if errors.Is(err, errs.ErrNotFound) {
		RespondError(c, http.StatusNotFound, "video_not_found", err)
		return
	}
	h.log.Error("Delete failed", "error", err, "video_id", videoID)
	RespondError(c, http.StatusInternalServerError, "delete_failed", err)
}
