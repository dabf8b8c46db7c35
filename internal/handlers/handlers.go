package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/example/blurdetect/internal/analysis"
	"github.com/example/blurdetect/internal/blur"
	"github.com/example/blurdetect/internal/faults"
	"github.com/example/blurdetect/internal/jobs"
	"github.com/example/blurdetect/internal/usecase"
)

const serviceName = "blur-detection-service"
const serviceVersion = "1.0.0"

// Service is the use case surface the HTTP layer exposes.
type Service interface {
	AnalyzeOne(ctx context.Context, photoID, userID string, opts analysis.Options) (*analysis.Result, error)
	SubmitBatch(ctx context.Context, userID string, photoIDs []string, opts analysis.Options) (*usecase.BatchSubmission, error)
	GetResult(ctx context.Context, photoID, userID string) (*usecase.ResultView, error)
	GetJob(ctx context.Context, jobID, userID string) (*jobs.Record, error)
	TagPhoto(ctx context.Context, photoID, userID string) (string, error)
	GetMetricsSummary(ctx context.Context) (*usecase.MetricsSummary, error)
}

type analyzeRequest struct {
	Threshold        *float64 `json:"threshold" binding:"omitempty,gte=0,lte=1"`
	Method           *string  `json:"method"`
	UseFaceDetection *bool    `json:"use_face_detection"`
}

type batchRequest struct {
	UserID           string   `json:"user_id" binding:"required"`
	PhotoIDs         []string `json:"photo_ids" binding:"required,min=1"`
	Threshold        *float64 `json:"threshold" binding:"omitempty,gte=0,lte=1"`
	Method           *string  `json:"method"`
	UseFaceDetection *bool    `json:"use_face_detection"`
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, svc Service) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"service":   serviceName,
			"version":   serviceVersion,
			"timestamp": time.Now().UTC(),
		})
	})

	router.POST("/analyze/:photo_id", func(c *gin.Context) {
		photoID := c.Param("photo_id")
		userID := c.Query("user_id")
		if userID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "user_id is required"})
			return
		}

		var req analyzeRequest
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
				return
			}
		}

		result, err := svc.AnalyzeOne(c.Request.Context(), photoID, userID, mergeOptions(req.Threshold, req.Method, req.UseFaceDetection))
		if err != nil {
			renderError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"photo_id":           result.PhotoID,
			"upstream_image_id":  result.UpstreamImageID,
			"filename":           result.Filename,
			"blur_score":         result.BlurScore,
			"is_blurred":         result.IsBlurred,
			"quality":            result.Quality(),
			"processed_at":       result.ProcessedAt,
			"processing_time_ms": result.ProcessingTimeMS,
		})
	})

	router.POST("/analyze/batch", func(c *gin.Context) {
		var req batchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
			return
		}

		submission, err := svc.SubmitBatch(c.Request.Context(), req.UserID, req.PhotoIDs, mergeOptions(req.Threshold, req.Method, req.UseFaceDetection))
		if err != nil {
			renderError(c, err)
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"status":       "queued",
			"queued_count": submission.QueuedCount,
			"jobs":         submission.Jobs,
		})
	})

	router.GET("/photos/:photo_id/result", func(c *gin.Context) {
		userID := c.Query("user_id")
		if userID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "user_id is required"})
			return
		}

		view, err := svc.GetResult(c.Request.Context(), c.Param("photo_id"), userID)
		if errors.Is(err, usecase.ErrNotAnalyzed) {
			c.JSON(http.StatusOK, nil)
			return
		}
		if err != nil {
			renderError(c, err)
			return
		}
		c.JSON(http.StatusOK, view)
	})

	router.GET("/jobs/:job_id", func(c *gin.Context) {
		userID := c.Query("user_id")
		if userID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "user_id is required"})
			return
		}

		rec, err := svc.GetJob(c.Request.Context(), c.Param("job_id"), userID)
		if err != nil {
			renderError(c, err)
			return
		}
		c.JSON(http.StatusOK, rec)
	})

	router.POST("/photos/:photo_id/tag", func(c *gin.Context) {
		photoID := c.Param("photo_id")
		userID := c.Query("user_id")
		if userID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "user_id is required"})
			return
		}

		tag, err := svc.TagPhoto(c.Request.Context(), photoID, userID)
		if errors.Is(err, usecase.ErrTaggingDisabled) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "tagging_disabled", "message": "tagging service not configured"})
			return
		}
		if err != nil {
			renderError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"photo_id": photoID, "tag": tag})
	})

	router.GET("/metrics/summary", func(c *gin.Context) {
		summary, err := svc.GetMetricsSummary(c.Request.Context())
		if err != nil {
			renderError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	})
}

func mergeOptions(threshold *float64, method *string, useFaceDetection *bool) analysis.Options {
	opts := analysis.DefaultOptions()
	if threshold != nil {
		opts.Threshold = *threshold
	}
	if method != nil {
		opts.Method = blur.ParseMethod(*method)
	}
	if useFaceDetection != nil {
		opts.UseFaceDetection = *useFaceDetection
	}
	return opts
}

func statusForError(err error) int {
	switch faults.KindOf(err) {
	case faults.KindNotFound:
		return http.StatusNotFound
	case faults.KindAccessExpired:
		return http.StatusForbidden
	case faults.KindInvalidContent:
		return http.StatusUnprocessableEntity
	case faults.KindTimeout:
		return http.StatusGatewayTimeout
	case faults.KindNetworkUnavailable:
		return http.StatusServiceUnavailable
	case faults.KindUpstream:
		return http.StatusBadGateway
	case faults.KindScoring:
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

func renderError(c *gin.Context, err error) {
	label := string(faults.KindOf(err))
	if label == "" {
		label = "internal_error"
	}
	c.JSON(statusForError(err), gin.H{"error": label, "message": err.Error()})
}
