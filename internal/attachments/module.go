package attachments

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	apphttp "orderflow_backend/internal/http"
	"orderflow_backend/internal/pipeline/domain"
	pipelinesvc "orderflow_backend/internal/pipeline/service"
	"orderflow_backend/platform/httpkit"
	"orderflow_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const downloadLinkExpiry = 15 * time.Minute

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

// Module is the stage-attachments feature module. It is only mounted
// when object storage is configured.
type Module struct {
	repo        *Repository
	storage     *Storage
	pipeline    *pipelinesvc.Service
	log         *logger.Logger
	maxFileSize int64
}

// NewModule assembles the attachments module.
func NewModule(repo *Repository, storage *Storage, pipeline *pipelinesvc.Service, log *logger.Logger, maxFileSize int64) *Module {
	return &Module{repo: repo, storage: storage, pipeline: pipeline, log: log, maxFileSize: maxFileSize}
}

// Name implements apphttp.Module.
func (m *Module) Name() string { return "attachments" }

// RegisterRoutes implements apphttp.Module.
func (m *Module) RegisterRoutes(rc apphttp.RouterContext) {
	rc.API.POST("/dispatches/:id/attachments", m.upload)
	rc.API.GET("/dispatches/:id/attachments", m.list)
	rc.API.GET("/attachments/:attachmentId/url", m.downloadURL)
}

// AttachmentResponse is the client view of an attachment.
type AttachmentResponse struct {
	ID          string    `json:"id"`
	DispatchID  int64     `json:"dispatchId"`
	Stage       string    `json:"stage"`
	FileName    string    `json:"fileName"`
	ContentType string    `json:"contentType"`
	SizeBytes   int64     `json:"sizeBytes"`
	CreatedAt   time.Time `json:"createdAt"`
}

func newAttachmentResponse(a Attachment) AttachmentResponse {
	return AttachmentResponse{
		ID:          a.ID.String(),
		DispatchID:  a.DispatchID,
		Stage:       a.Stage,
		FileName:    a.FileName,
		ContentType: a.ContentType,
		SizeBytes:   a.SizeBytes,
		CreatedAt:   a.CreatedAt,
	}
}

func (m *Module) actor(c *gin.Context) (domain.Actor, bool) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return domain.Actor{}, false
	}
	return domain.Actor{ID: identity.UserID(), Role: identity.Role(), Firms: identity.Firms()}, true
}

// visibleDispatch loads the dispatch through the pipeline service so the
// tenant scope check (and its audit logging) applies to attachments too.
func (m *Module) visibleDispatch(c *gin.Context, actor domain.Actor) (int64, bool) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid id", nil)
		return 0, false
	}
	if _, err := m.pipeline.GetDispatch(c.Request.Context(), actor, id); err != nil {
		httpkit.HandleError(c, err)
		return 0, false
	}
	return id, true
}

func (m *Module) upload(c *gin.Context) {
	actor, ok := m.actor(c)
	if !ok {
		return
	}
	dispatchID, ok := m.visibleDispatch(c, actor)
	if !ok {
		return
	}

	stage := c.PostForm("stage")
	if !domain.IsKnownStage(domain.KindDispatchEvent, stage) {
		httpkit.Error(c, http.StatusBadRequest, "unknown dispatch stage: "+stage, nil)
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "a file is required", nil)
		return
	}
	if file.Size > m.maxFileSize {
		httpkit.Error(c, http.StatusBadRequest, "file exceeds the maximum allowed size", nil)
		return
	}

	src, err := file.Open()
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "failed to read upload", nil)
		return
	}
	defer src.Close()

	contentType := file.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key, err := m.storage.Put(c.Request.Context(), dispatchID, stage, file.Filename, contentType, file.Size, src)
	if httpkit.HandleError(c, err) {
		return
	}

	attachment, err := m.repo.Create(c.Request.Context(), CreateAttachmentParams{
		DispatchID:  dispatchID,
		Stage:       stage,
		FileName:    file.Filename,
		ContentType: contentType,
		SizeBytes:   file.Size,
		ObjectKey:   key,
		UploadedBy:  actor.ID,
	})
	if err != nil {
		// The object is already stored; drop it rather than leave an orphan.
		if rmErr := m.storage.Remove(c.Request.Context(), key); rmErr != nil {
			m.log.WithContext(c.Request.Context()).Warn("failed to clean up orphaned attachment object", "key", key, "error", rmErr)
		}
		httpkit.HandleError(c, err)
		return
	}
	httpkit.Created(c, newAttachmentResponse(attachment))
}

func (m *Module) list(c *gin.Context) {
	actor, ok := m.actor(c)
	if !ok {
		return
	}
	dispatchID, ok := m.visibleDispatch(c, actor)
	if !ok {
		return
	}

	items, err := m.repo.ListByDispatch(c.Request.Context(), dispatchID)
	if httpkit.HandleError(c, err) {
		return
	}

	out := make([]AttachmentResponse, len(items))
	for i, a := range items {
		out[i] = newAttachmentResponse(a)
	}
	httpkit.OK(c, out)
}

func (m *Module) downloadURL(c *gin.Context) {
	actor, ok := m.actor(c)
	if !ok {
		return
	}

	attachmentID, err := uuid.Parse(c.Param("attachmentId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid attachment id", nil)
		return
	}

	attachment, err := m.repo.GetByID(c.Request.Context(), attachmentID)
	if httpkit.HandleError(c, err) {
		return
	}
	if _, err := m.pipeline.GetDispatch(c.Request.Context(), actor, attachment.DispatchID); httpkit.HandleError(c, err) {
		return
	}

	url, err := m.storage.PresignedURL(c.Request.Context(), attachment.ObjectKey, downloadLinkExpiry)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"url": url, "expiresInSeconds": int(downloadLinkExpiry.Seconds())})
}
