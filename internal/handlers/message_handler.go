package handlers

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/services"
	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/upload"
)

var errUploadsDisabled = errors.New("attachments are not available")

// MessageHandler 消息处理器: channel and direct conversations.
type MessageHandler struct {
	messages *services.MessageService
	uploads  *upload.Coordinator
}

func NewMessageHandler(messages *services.MessageService, uploads *upload.Coordinator) *MessageHandler {
	return &MessageHandler{messages: messages, uploads: uploads}
}

// readSend accepts either a JSON body or a multipart form with "content",
// "parent_message_id" and any number of "files". The returned closer releases
// the opened file parts.
func readSend(c *gin.Context) (*services.SendMessageRequest, []upload.File, func(), error) {
	noop := func() {}
	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		var req services.SendMessageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			return nil, nil, noop, err
		}
		return &req, nil, noop, nil
	}

	form, err := c.MultipartForm()
	if err != nil {
		return nil, nil, noop, err
	}
	req := &services.SendMessageRequest{
		Content:         first(form.Value["content"]),
		ParentMessageID: first(form.Value["parent_message_id"]),
	}

	var opened []multipart.File
	closeAll := func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}
	files := make([]upload.File, 0, len(form.File["files"]))
	for _, fh := range form.File["files"] {
		f, err := fh.Open()
		if err != nil {
			closeAll()
			return nil, nil, noop, err
		}
		opened = append(opened, f)
		files = append(files, upload.File{
			Name: fh.Filename,
			Type: fh.Header.Get("Content-Type"),
			Size: fh.Size,
			Body: f,
		})
	}
	req.HasAttachments = len(files) > 0
	return req, files, closeAll, nil
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// send runs create directly, or through the upload coordinator when files are
// attached, and returns the stored row's id.
func (h *MessageHandler) send(ctx context.Context, kind upload.TargetKind, files []upload.File,
	create func(ctx context.Context) (string, error)) (string, error) {
	if len(files) == 0 {
		return create(ctx)
	}
	if h.uploads == nil {
		return "", errUploadsDisabled
	}
	id, _, err := h.uploads.Send(ctx, kind, files, create)
	return id, err
}

// Channel returns the channel with the caller's write permission.
func (h *MessageHandler) Channel(c *gin.Context) {
	channel, err := h.messages.Channel(c.Request.Context(), currentUserID(c), c.Param("channel_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, channel)
}

func (h *MessageHandler) Members(c *gin.Context) {
	members, err := h.messages.Members(c.Request.Context(), currentUserID(c), c.Param("channel_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

func (h *MessageHandler) ChannelHistory(c *gin.Context) {
	ctx, uid, channelID := c.Request.Context(), currentUserID(c), c.Param("channel_id")
	messages, err := h.messages.ChannelHistory(ctx, uid, channelID)
	if err != nil {
		respondError(c, err)
		return
	}
	replies, err := h.messages.ReplyCounts(ctx, uid, channelID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages, "reply_counts": replies})
}

func (h *MessageHandler) SendChannelMessage(c *gin.Context) {
	req, files, release, err := readSend(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	defer release()

	ctx, uid, channelID := c.Request.Context(), currentUserID(c), c.Param("channel_id")
	id, err := h.send(ctx, upload.MessageTarget, files, func(ctx context.Context) (string, error) {
		m, err := h.messages.SendChannelMessage(ctx, uid, channelID, req)
		if err != nil {
			return "", err
		}
		return m.ID, nil
	})
	if err != nil {
		h.sendFailed(c, err)
		return
	}

	if len(files) > 0 {
		if err := h.messages.PublishChannelMessage(ctx, uid, id); err != nil {
			_ = c.Error(err)
		}
	}

	message, err := h.messages.GetMessage(ctx, uid, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, message)
}

func (h *MessageHandler) sendFailed(c *gin.Context, err error) {
	if errors.Is(err, errUploadsDisabled) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	respondError(c, err)
}

func (h *MessageHandler) UpdateMessage(c *gin.Context) {
	var req services.UpdateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	editedAt, err := h.messages.UpdateMessage(c.Request.Context(), currentUserID(c), c.Param("message_id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("message_id"), "edited_at": editedAt})
}

func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	if err := h.messages.DeleteMessage(c.Request.Context(), currentUserID(c), c.Param("message_id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *MessageHandler) DirectHistory(c *gin.Context) {
	messages, err := h.messages.DirectHistory(c.Request.Context(), currentUserID(c), c.Param("friend_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func (h *MessageHandler) DirectMembers(c *gin.Context) {
	members, err := h.messages.DirectMembers(c.Request.Context(), currentUserID(c), c.Param("friend_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

func (h *MessageHandler) SendDirectMessage(c *gin.Context) {
	req, files, release, err := readSend(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	defer release()

	ctx, uid, friendID := c.Request.Context(), currentUserID(c), c.Param("friend_id")
	id, err := h.send(ctx, upload.DirectMessageTarget, files, func(ctx context.Context) (string, error) {
		m, err := h.messages.SendDirectMessage(ctx, uid, friendID, req)
		if err != nil {
			return "", err
		}
		return m.ID, nil
	})
	if err != nil {
		h.sendFailed(c, err)
		return
	}

	if len(files) > 0 {
		if err := h.messages.PublishDirectMessage(ctx, uid, id); err != nil {
			_ = c.Error(err)
		}
	}

	message, err := h.messages.GetDirectMessage(ctx, uid, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, message)
}

func (h *MessageHandler) UpdateDirectMessage(c *gin.Context) {
	var req services.UpdateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	editedAt, err := h.messages.UpdateDirectMessage(c.Request.Context(), currentUserID(c), c.Param("message_id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("message_id"), "edited_at": editedAt})
}

func (h *MessageHandler) DeleteDirectMessage(c *gin.Context) {
	if err := h.messages.DeleteDirectMessage(c.Request.Context(), currentUserID(c), c.Param("message_id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// MarkDirectRead flags every message from the friend to the caller as read.
func (h *MessageHandler) MarkDirectRead(c *gin.Context) {
	n, err := h.messages.MarkDirectRead(c.Request.Context(), currentUserID(c), c.Param("friend_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}
