package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"market-archive/internal/catalog"
	"market-archive/internal/models"
	"market-archive/internal/services/stream"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type APIHandler struct {
	store   catalog.Store
	streams *stream.Service
	logger  *zap.Logger
}

func SetupRoutes(r gin.IRouter, store catalog.Store, streams *stream.Service, logger *zap.Logger) *APIHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	handler := &APIHandler{
		store:   store,
		streams: streams,
		logger:  logger.With(zap.String("service", "api")),
	}

	api := r.Group("/api")
	{
		api.GET("/isin_exists", handler.IsinExists)
		api.GET("/isin_exists_interval", handler.IsinExistsInterval)
		api.GET("/iid_to_isin", handler.IidToIsin)
	}

	r.GET("/stream", handler.StreamBinaryFile)

	return handler
}

type isinExistsQuery struct {
	Date       time.Time `form:"date" binding:"required" time_format:"2006-01-02"`
	Instrument *string   `form:"instrument"`
	Exchange   *string   `form:"exchange"`
}

type isinExistsIntervalQuery struct {
	DateFrom   time.Time `form:"date_from" binding:"required" time_format:"2006-01-02"`
	DateTo     time.Time `form:"date_to" binding:"required" time_format:"2006-01-02"`
	Instrument string    `form:"instrument" binding:"required"`
	Exchange   string    `form:"exchange" binding:"required"`
}

type iidToIsinQuery struct {
	Date time.Time `form:"date" binding:"required" time_format:"2006-01-02"`
	IID  *int      `form:"iid" binding:"required"`
}

type streamQuery struct {
	Date     time.Time `form:"date" binding:"required" time_format:"2006-01-02"`
	Filename string    `form:"filename" binding:"required"`
	Chunk    *int      `form:"chunk"`
}

func civil(t time.Time) *models.CivilDate {
	d := models.CivilDateOf(t)
	return &d
}

// IsinExists: GET /api/isin_exists?date=2024-01-05&instrument=&exchange=
func (h *APIHandler) IsinExists(c *gin.Context) {
	var q isinExistsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.find(c, catalog.Filter{Date: civil(q.Date), Instrument: q.Instrument, Exchange: q.Exchange})
}

// IsinExistsInterval: GET /api/isin_exists_interval?date_from=&date_to=&instrument=&exchange=
func (h *APIHandler) IsinExistsInterval(c *gin.Context) {
	var q isinExistsIntervalQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.find(c, catalog.Filter{
		DateFrom:   civil(q.DateFrom),
		DateTo:     civil(q.DateTo),
		Instrument: &q.Instrument,
		Exchange:   &q.Exchange,
	})
}

// IidToIsin: GET /api/iid_to_isin?date=2024-01-05&iid=42
func (h *APIHandler) IidToIsin(c *gin.Context) {
	var q iidToIsinQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.find(c, catalog.Filter{Date: civil(q.Date), IID: q.IID})
}

func (h *APIHandler) find(c *gin.Context, f catalog.Filter) {
	records, err := h.store.Find(c.Request.Context(), f)
	if err != nil {
		h.logger.Error("Lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
		return
	}
	c.JSON(http.StatusOK, records)
}

// StreamBinaryFile: GET /stream?date=2024-01-05&filename=BTCETH@Binance.spot.dat&chunk=32768
func (h *APIHandler) StreamBinaryFile(c *gin.Context) {
	var q streamQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	chunkSize := stream.DefaultChunkSize
	if q.Chunk != nil {
		chunkSize = *q.Chunk
		if chunkSize == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": stream.ErrInvalidChunkSize.Error()})
			return
		}
	}

	s, meta, err := h.streams.Open(*civil(q.Date), q.Filename, chunkSize)
	switch {
	case err == nil:
	case errors.Is(err, stream.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
		return
	case errors.Is(err, stream.ErrInvalidChunkSize), errors.Is(err, stream.ErrInvalidFilename):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	default:
		h.logger.Error("Open blob failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "An error occurred while reading the file"})
		return
	}
	defer s.Close()

	ctx := c.Request.Context()
	// Read the first chunk before committing to a 200 so an early fault is still a 500.
	first, err := s.Next(ctx)
	if err != nil && !errors.Is(err, io.EOF) {
		h.logger.Error("Stream failed before first chunk", zap.String("filename", meta.Filename), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "An error occurred while reading the file"})
		return
	}

	c.Header("Content-Type", "application/octet-stream")
	c.Header("Content-Length", meta.ContentLength())
	c.Header("Content-Disposition", meta.ContentDisposition())
	c.Status(http.StatusOK)
	if len(first) == 0 {
		c.Writer.WriteHeaderNow()
		return
	}
	if _, err := c.Writer.Write(first); err != nil {
		return
	}
	c.Writer.Flush()

	for chunk, err := range s.All(ctx) {
		if err != nil {
			// Headers are gone. Returning short of Content-Length makes the server
			// drop the connection, so the client sees an incomplete transfer.
			h.logger.Error("Stream aborted", zap.String("filename", meta.Filename), zap.Error(err))
			c.Abort()
			return
		}
		if _, err := c.Writer.Write(chunk); err != nil {
			h.logger.Debug("Client went away", zap.String("filename", meta.Filename), zap.Error(err))
			return
		}
		c.Writer.Flush()
	}
}
