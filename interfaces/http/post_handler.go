package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"social-publisher/domain/dto"
	"social-publisher/domain/model"
	"social-publisher/usecase"
)

type IPostHandler interface {
	Create(ctx *gin.Context)
	Get(ctx *gin.Context)
	Schedule(ctx *gin.Context)
	Publish(ctx *gin.Context)
	Attempts(ctx *gin.Context)
}

type PostHandler struct {
	postUsecase usecase.IPostUsecase
}

func NewPostHandler(uc usecase.IPostUsecase) IPostHandler {
	return &PostHandler{postUsecase: uc}
}

func (h *PostHandler) Create(ctx *gin.Context) {
	uid, ok := userID(ctx)
	if !ok {
		return
	}
	var req dto.CreatePostRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	post, err := h.postUsecase.Create(ctx.Request.Context(), uid, req)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, post)
}

func (h *PostHandler) Get(ctx *gin.Context) {
	uid, ok := userID(ctx)
	if !ok {
		return
	}
	id, ok := idParam(ctx)
	if !ok {
		return
	}
	view, err := h.postUsecase.Get(ctx.Request.Context(), uid, id)
	if err != nil {
		writeError(ctx, err)
		return
	}
	if view.Results == nil {
		view.Results = []*model.PublishResult{}
	}
	ctx.JSON(http.StatusOK, view)
}

func (h *PostHandler) Schedule(ctx *gin.Context) {
	uid, ok := userID(ctx)
	if !ok {
		return
	}
	id, ok := idParam(ctx)
	if !ok {
		return
	}
	var req dto.ScheduleRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	post, err := h.postUsecase.Schedule(ctx.Request.Context(), uid, id, req.ScheduledFor)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, post)
}

// Publish queues the post for immediate publishing. Results arrive
// asynchronously on the stream and via GET /api/posts/:id.
func (h *PostHandler) Publish(ctx *gin.Context) {
	uid, ok := userID(ctx)
	if !ok {
		return
	}
	id, ok := idParam(ctx)
	if !ok {
		return
	}
	post, err := h.postUsecase.PublishNow(ctx.Request.Context(), uid, id)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusAccepted, post)
}

func (h *PostHandler) Attempts(ctx *gin.Context) {
	uid, ok := userID(ctx)
	if !ok {
		return
	}
	id, ok := idParam(ctx)
	if !ok {
		return
	}
	list, err := h.postUsecase.Attempts(ctx.Request.Context(), uid, id)
	if err != nil {
		writeError(ctx, err)
		return
	}
	if list == nil {
		list = []model.PublishAttempt{}
	}
	ctx.JSON(http.StatusOK, gin.H{"post_id": id, "attempts": list})
}
