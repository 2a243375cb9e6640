package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"social-publisher/domain/dto"
	"social-publisher/domain/model"
	"social-publisher/usecase"
)

type IConnectionHandler interface {
	Connect(ctx *gin.Context)
	List(ctx *gin.Context)
	Disconnect(ctx *gin.Context)
	Validate(ctx *gin.Context)
}

type ConnectionHandler struct {
	connectionUsecase usecase.IConnectionUsecase
}

func NewConnectionHandler(uc usecase.IConnectionUsecase) IConnectionHandler {
	return &ConnectionHandler{connectionUsecase: uc}
}

func (h *ConnectionHandler) Connect(ctx *gin.Context) {
	uid, ok := userID(ctx)
	if !ok {
		return
	}
	var req dto.ConnectRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	conn, err := h.connectionUsecase.Connect(ctx.Request.Context(), uid, req)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, conn)
}

func (h *ConnectionHandler) List(ctx *gin.Context) {
	uid, ok := userID(ctx)
	if !ok {
		return
	}
	list, err := h.connectionUsecase.List(ctx.Request.Context(), uid)
	if err != nil {
		writeError(ctx, err)
		return
	}
	if list == nil {
		list = []*model.PlatformConnection{}
	}
	ctx.JSON(http.StatusOK, gin.H{"connections": list})
}

func (h *ConnectionHandler) Disconnect(ctx *gin.Context) {
	uid, ok := userID(ctx)
	if !ok {
		return
	}
	id, ok := idParam(ctx)
	if !ok {
		return
	}
	if err := h.connectionUsecase.Disconnect(ctx.Request.Context(), uid, id); err != nil {
		writeError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (h *ConnectionHandler) Validate(ctx *gin.Context) {
	uid, ok := userID(ctx)
	if !ok {
		return
	}
	id, ok := idParam(ctx)
	if !ok {
		return
	}
	valid, err := h.connectionUsecase.Validate(ctx.Request.Context(), uid, id)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"id": id, "valid": valid})
}
