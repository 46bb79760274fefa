package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/hyxiaoge/prompthub/pkg/apperr"
)

// Envelope is the response wrapper every endpoint returns:
// { code, message, data, meta }. A zero code means success; any other
// value is one of the apperr.Kind numeric codes.
type Envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Meta    any    `json:"meta,omitempty"`
}

// PageMeta is the pagination metadata attached to list responses.
type PageMeta struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

func newPageMeta(page, pageSize, total int) PageMeta {
	totalPages := 0
	if pageSize > 0 {
		totalPages = (total + pageSize - 1) / pageSize
	}
	return PageMeta{Page: page, PageSize: pageSize, Total: total, TotalPages: totalPages}
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Envelope{Code: 0, Message: "success", Data: data})
}

func created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, Envelope{Code: 0, Message: "success", Data: data})
}

func okPaged(c *gin.Context, data any, meta PageMeta) {
	c.JSON(http.StatusOK, Envelope{Code: 0, Message: "success", Data: data, Meta: meta})
}

func noContent(c *gin.Context) {
	c.JSON(http.StatusOK, Envelope{Code: 0, Message: "success"})
}

// fail maps err to the envelope, using apperr's (kind, code, status)
// triple when err is a typed *apperr.Error and falling back to a generic
// 500 otherwise. The core is not responsible for catch-all handling.
func fail(c *gin.Context, err error) {
	if ae, isApp := apperr.As(err); isApp {
		c.JSON(ae.Status(), Envelope{
			Code:    ae.Code(),
			Message: ae.Message,
			Data: gin.H{
				"kind":   string(ae.Kind),
				"reason": ae.Reason,
				"detail": ae.Detail,
				"ids":    ae.IDs,
			},
		})
		return
	}
	c.JSON(http.StatusInternalServerError, Envelope{Code: 50000, Message: err.Error()})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Envelope{Code: 40000, Message: message})
}

// pagination reads page/page_size query params, defaulting page_size to
// defaultPageSize, and returns the 1-indexed page, the page size, and the
// equivalent (limit, offset) pair the Persistence Port expects.
func pagination(c *gin.Context, defaultPageSize int) (page, pageSize, limit, offset int) {
	page = 1
	if v := c.Query("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			page = n
		}
	}
	pageSize = defaultPageSize
	if v := c.Query("page_size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			pageSize = n
		}
	}
	return page, pageSize, pageSize, (page - 1) * pageSize
}
