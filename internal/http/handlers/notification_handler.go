package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-tenancy-backend/internal/domain"
)

// ListNotificationsResponse wraps a page of inbox entries.
type ListNotificationsResponse struct {
	Notifications []domain.Notification `json:"notifications"`
	Pagination    Pagination            `json:"pagination"`
}

// ListNotifications godoc
// @ID          listNotifications
// @Summary     List my notifications (paginated)
// @Description Returns the caller's inbox, newest first. Supports weak ETag via If-None-Match.
// @Tags        Notifications
// @Produce     json
//
// @Param       X-User-ID      header  string  true  "Caller identity"  example(user123)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListNotificationsResponse
// @Success     304  {string}  string "Not Modified"
// @Failure     401  {object}  handlers.ErrorResponse "Missing identity"
// @Router      /notifications [get]
func (h *Handlers) ListNotifications(c *gin.Context) {
	uid, authed := requireUser(c)
	if !authed {
		return
	}
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)

	if count, newest, err := h.inbox.Stats(ctx, uid); err == nil {
		var ts int64
		if newest != nil {
			ts = newest.UnixNano()
		}
		if notModified(c, fmt.Sprintf(`W/"notifications:%s:%d:%d:%d:%d"`, uid, count, ts, page, pageSize)) {
			return
		}
	}

	items, total, err := h.inbox.ListPage(ctx, uid, page, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, ListNotificationsResponse{
		Notifications: items,
		Pagination:    newPagination(page, pageSize, total),
	})
}
