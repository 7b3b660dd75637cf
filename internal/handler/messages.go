// Package handler exposes C7's Stream Orchestrator over HTTP, grounded on
// handler/model.go's gin.Context/c.Error conventions for the JSON-before-
// stream-opens validation path, and sse.Writer for everything after.
package handler

import (
	"encoding/json"
	"mime/multipart"
	"strconv"

	"github.com/gin-gonic/gin"

	rerr "github.com/weknora-chat/ragstream/internal/errors"
	"github.com/weknora-chat/ragstream/internal/filestore"
	"github.com/weknora-chat/ragstream/internal/orchestrator"
	"github.com/weknora-chat/ragstream/internal/sse"
	"github.com/weknora-chat/ragstream/internal/types"
)

// MessagesHandler implements spec.md §6.1's POST /messages endpoint.
type MessagesHandler struct {
	orchestrator *orchestrator.Orchestrator
	files        filestore.FileStore
}

func NewMessagesHandler(o *orchestrator.Orchestrator, files filestore.FileStore) *MessagesHandler {
	return &MessagesHandler{orchestrator: o, files: files}
}

// messagesForm mirrors spec.md §6.1's field list; the same struct binds
// both a plain JSON body and a multipart form (file+location sent as
// form fields alongside an attachment).
type messagesForm struct {
	Content             string `form:"content" json:"content"`
	UserID              string `form:"user_id" json:"user_id"`
	SessionID           string `form:"session_id" json:"session_id"`
	ShowThinking        bool   `form:"show_thinking" json:"show_thinking"`
	SkipCache           bool   `form:"skip_cache" json:"skip_cache"`
	RegenerateMessageID string `form:"regenerate_message_id" json:"regenerate_message_id"`
	Location            string `form:"location" json:"location"` // JSON-encoded object, both transports
	AgentID             string `form:"agent_id" json:"agent_id"`
}

// Handle drives POST /messages: bind the request, open the SSE stream, and
// delegate to the orchestrator for the full eleven-step pipeline.
func (h *MessagesHandler) Handle(c *gin.Context) {
	var form messagesForm
	contentType := c.ContentType()

	var fileHeader *multipart.FileHeader
	if contentType == "multipart/form-data" {
		if err := c.ShouldBind(&form); err != nil {
			c.Error(rerr.NewBadRequestError("invalid form: %v", err))
			return
		}
		if fh, err := c.FormFile("file"); err == nil {
			fileHeader = fh
		}
	} else {
		if err := c.ShouldBindJSON(&form); err != nil {
			c.Error(rerr.NewBadRequestError("invalid body: %v", err))
			return
		}
	}

	req := orchestrator.Request{
		Content:             form.Content,
		UserID:              form.UserID,
		TenantID:            tenantIDOf(c),
		SessionID:           form.SessionID,
		ShowThinking:        form.ShowThinking,
		SkipCache:           form.SkipCache,
		RegenerateMessageID: form.RegenerateMessageID,
		PermissionLevel:     permissionLevelOf(c),
		AgentID:             form.AgentID,
	}

	if form.Location != "" {
		var loc map[string]any
		if err := json.Unmarshal([]byte(form.Location), &loc); err == nil {
			req.Location = loc
		}
	}

	if fileHeader != nil {
		fileInfo, err := h.storeAttachment(c, fileHeader)
		if err != nil {
			c.Error(err)
			return
		}
		req.File = fileInfo
	}

	writer := sse.New(c.Writer)
	if err := h.orchestrator.Handle(c.Request.Context(), req, writer); err != nil {
		c.Error(err)
	}
}

// storeAttachment uploads the multipart file to the configured FileStore
// and returns its FileInfo shell; parsing/vision-description extraction is
// the responsibility of an upstream ingestion pipeline (spec.md §1 "out of
// scope: document extraction"), so ParsedText/VisionDescr are left blank
// here for whichever pipeline populates them asynchronously.
func (h *MessagesHandler) storeAttachment(c *gin.Context, fh *multipart.FileHeader) (*types.FileInfo, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, rerr.NewBadRequestError("could not read uploaded file: %v", err)
	}
	defer f.Close()

	key := "attachments/" + fh.Filename
	contentType := fh.Header.Get("Content-Type")
	url, err := h.files.Put(c.Request.Context(), key, f, fh.Size, contentType)
	if err != nil {
		return nil, err
	}
	return &types.FileInfo{URL: url, MimeType: contentType, Size: fh.Size}, nil
}

func tenantIDOf(c *gin.Context) uint64 {
	raw := c.GetHeader("X-Tenant-ID")
	if raw == "" {
		return 0
	}
	id, _ := strconv.ParseUint(raw, 10, 64)
	return id
}

func permissionLevelOf(c *gin.Context) types.PermissionLevel {
	if c.GetHeader("X-Admin") == "true" {
		return types.PermissionLevelAdmin
	}
	return types.PermissionLevelUser
}
