// Package handler exposes the content edit and query operations over HTTP.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/contentd/contentd/internal/authz"
	"github.com/contentd/contentd/internal/content"
	"github.com/contentd/contentd/internal/content/payload"
	"github.com/contentd/contentd/internal/content/reconcile"
	"github.com/contentd/contentd/internal/content/service"
	"github.com/contentd/contentd/internal/lock"
	"github.com/contentd/contentd/internal/query"
	"github.com/contentd/contentd/internal/schema"
	"github.com/contentd/contentd/pkg/logger"
	"github.com/contentd/contentd/pkg/middleware"
)

// ContentService is the edit surface served by RegisterContentRoutes.
type ContentService interface {
	New(ctx context.Context, contentType string, principal authz.Principal, p *payload.Payload) (*reconcile.Result, error)
	Get(ctx context.Context, id int64, principal authz.Principal) (*content.Content, error)
	Save(ctx context.Context, id int64, principal authz.Principal, p *payload.Payload) (*reconcile.Result, error)
	Preview(ctx context.Context, id int64, principal authz.Principal, p *payload.Payload) (*reconcile.Result, error)
	SetStatus(ctx context.Context, id int64, principal authz.Principal, status string) (*content.Content, error)
	Duplicate(ctx context.Context, id int64, principal authz.Principal) (*content.Content, error)
	DuplicateSave(ctx context.Context, id int64, principal authz.Principal, p *payload.Payload) (*reconcile.Result, error)
	Delete(ctx context.Context, id int64, principal authz.Principal) error
}

// Querier runs selector queries such as "pages/5".
type Querier interface {
	Query(ctx context.Context, selector string, d *query.Directives, principal authz.Principal, requestPage int) (*query.Result, error)
}

type Dashboarder interface {
	Dashboard(ctx context.Context, principal authz.Principal, requestPage int) (*query.Result, error)
}

type changeView struct {
	Op     reconcile.Op     `json:"op"`
	Key    content.FieldKey `json:"name"`
	Locale string           `json:"locale,omitempty"`
}

type droppedView struct {
	Relation string `json:"relation"`
	TargetID int64  `json:"targetId"`
}

func resultView(res *reconcile.Result) gin.H {
	changes := make([]changeView, 0, len(res.Changes))
	for _, ch := range res.Changes {
		changes = append(changes, changeView{Op: ch.Op, Key: ch.Key, Locale: ch.Locale})
	}
	dropped := make([]droppedView, 0, len(res.Dropped))
	for _, d := range res.Dropped {
		dropped = append(dropped, droppedView{Relation: d.Relation, TargetID: d.TargetID})
	}
	return gin.H{"content": res.Content, "changes": changes, "dropped": dropped}
}

func RegisterContentRoutes(r gin.IRouter, svc ContentService) {
	r.POST("/api/content/new/:contentType", func(c *gin.Context) {
		p, ok := bindPayload(c)
		if !ok {
			return
		}
		res, err := svc.New(c.Request.Context(), c.Param("contentType"), middleware.PrincipalFrom(c), p)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, resultView(res))
	})

	r.GET("/api/content/:id", func(c *gin.Context) {
		id, ok := paramID(c)
		if !ok {
			return
		}
		item, err := svc.Get(c.Request.Context(), id, middleware.PrincipalFrom(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, item)
	})

	r.POST("/api/content/:id", func(c *gin.Context) {
		id, ok := paramID(c)
		if !ok {
			return
		}
		p, ok := bindPayload(c)
		if !ok {
			return
		}
		res, err := svc.Save(c.Request.Context(), id, middleware.PrincipalFrom(c), p)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, resultView(res))
	})

	r.POST("/api/content/:id/preview", func(c *gin.Context) {
		id, ok := paramID(c)
		if !ok {
			return
		}
		p, ok := bindPayload(c)
		if !ok {
			return
		}
		res, err := svc.Preview(c.Request.Context(), id, middleware.PrincipalFrom(c), p)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, resultView(res))
	})

	r.POST("/api/content/:id/status", func(c *gin.Context) {
		id, ok := paramID(c)
		if !ok {
			return
		}
		var status string
		if isForm(c) {
			status = c.PostForm("status")
		} else {
			var req struct {
				Status string `json:"status"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			status = req.Status
		}
		item, err := svc.SetStatus(c.Request.Context(), id, middleware.PrincipalFrom(c), status)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, item)
	})

	r.GET("/api/content/:id/duplicate", func(c *gin.Context) {
		id, ok := paramID(c)
		if !ok {
			return
		}
		item, err := svc.Duplicate(c.Request.Context(), id, middleware.PrincipalFrom(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, item)
	})

	r.POST("/api/content/:id/duplicate", func(c *gin.Context) {
		id, ok := paramID(c)
		if !ok {
			return
		}
		p, ok := bindPayload(c)
		if !ok {
			return
		}
		res, err := svc.DuplicateSave(c.Request.Context(), id, middleware.PrincipalFrom(c), p)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, resultView(res))
	})

	r.DELETE("/api/content/:id", func(c *gin.Context) {
		id, ok := paramID(c)
		if !ok {
			return
		}
		if err := svc.Delete(c.Request.Context(), id, middleware.PrincipalFrom(c)); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
}

// RegisterQueryRoutes serves GET /api/query/<selector>?<directives>. The
// "page" parameter selects the requested page and is not a directive.
func RegisterQueryRoutes(r gin.IRouter, q Querier) {
	r.GET("/api/query/*selector", func(c *gin.Context) {
		parsed, err := query.ParseRawQuery(c.Request.URL.RawQuery)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		page := 1
		d := query.NewDirectives()
		for _, dir := range parsed.All() {
			if strings.EqualFold(dir.Name, "page") {
				n, err := strconv.Atoi(dir.Value)
				if err != nil || n < 1 {
					c.JSON(http.StatusBadRequest, gin.H{"error": "page must be a positive integer"})
					return
				}
				page = n
				continue
			}
			d.Set(dir.Name, dir.Value)
		}

		res, err := q.Query(c.Request.Context(), c.Param("selector"), d, middleware.PrincipalFrom(c), page)
		if err != nil {
			writeError(c, err)
			return
		}
		if res.Page == nil {
			if res.Single == nil {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"record": res.Single})
			return
		}
		c.JSON(http.StatusOK, res.Page)
	})
}

// RegisterDashboardRoutes serves GET /api/dashboard?page=N, the recently
// modified items visible to the caller.
func RegisterDashboardRoutes(r gin.IRouter, d Dashboarder) {
	r.GET("/api/dashboard", func(c *gin.Context) {
		page := 1
		if v := c.Query("page"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "page must be a positive integer"})
				return
			}
			page = n
		}
		res, err := d.Dashboard(c.Request.Context(), middleware.PrincipalFrom(c), page)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, res.Page)
	})
}

func paramID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid content id"})
		return 0, false
	}
	return id, true
}

func isForm(c *gin.Context) bool {
	switch c.ContentType() {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		return true
	}
	return false
}

// bindPayload decodes a JSON body or a bracketed form post. An empty body
// is an empty payload.
func bindPayload(c *gin.Context) (*payload.Payload, bool) {
	if isForm(c) {
		if err := c.Request.ParseForm(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return nil, false
		}
		p, err := payload.ParseForm(c.Request.PostForm)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return nil, false
		}
		return p, true
	}
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return &payload.Payload{}, true
	}
	var doc map[string]any
	if err := c.ShouldBindJSON(&doc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	p, err := payload.Decode(doc)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	return p, true
}

func writeError(c *gin.Context, err error) {
	var qerr *query.Error
	switch {
	case content.IsFatal(err):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, content.ErrNotFound), errors.Is(err, schema.ErrUnknownContentType):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &qerr):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, lock.ErrLocked):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	default:
		logger.Errorf("content request %s %s failed: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
