package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/worknet/backend/internal/dto"
	"github.com/worknet/backend/internal/http/middleware"
	"github.com/worknet/backend/internal/logger"
	"github.com/worknet/backend/internal/pkg/apperror"
	"github.com/worknet/backend/internal/service"
)

// ErrNoActor возвращается, когда в контексте нет аутентифицированного пользователя.
var ErrNoActor = errors.New("пользователь не найден в контексте")

// CurrentActor извлекает актора из gin.Context, заполненного AuthMiddleware.
func CurrentActor(c *gin.Context) (service.Actor, error) {
	raw, exists := c.Get(middleware.ContextUserIDKey)
	if !exists {
		return service.Actor{}, ErrNoActor
	}
	userID, ok := raw.(primitive.ObjectID)
	if !ok {
		return service.Actor{}, ErrNoActor
	}

	role, _ := c.Get(middleware.ContextRoleKey)
	roleStr, _ := role.(string)

	return service.Actor{ID: userID, Role: roleStr}, nil
}

// RespondResult отправляет успешный RPC конверт.
func RespondResult(c *gin.Context, result interface{}) {
	c.JSON(http.StatusOK, dto.RPCResponse{Result: result})
}

// RespondAppError отправляет RPC конверт с ошибкой. Код и HTTP статус
// берутся из AppError; всё остальное — INTERNAL_ERROR без деталей.
func RespondAppError(c *gin.Context, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		c.JSON(appErr.HTTPStatus, dto.RPCResponse{Error: &dto.RPCError{
			Code:    string(appErr.Code),
			Message: appErr.Message,
		}})
		return
	}

	logger.Log.WithError(err).Error("handlers: необработанная ошибка")
	c.JSON(http.StatusInternalServerError, dto.RPCResponse{Error: &dto.RPCError{
		Code:    string(apperror.ErrCodeInternal),
		Message: "внутренняя ошибка сервера",
	}})
}
