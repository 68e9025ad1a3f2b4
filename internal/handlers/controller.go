package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/thereayou/bizdesk/internal/middleware"
	"github.com/thereayou/bizdesk/internal/models"
	"github.com/thereayou/bizdesk/internal/query"
	"github.com/thereayou/bizdesk/internal/services"
	"github.com/thereayou/bizdesk/pkg/auth"
	"github.com/thereayou/bizdesk/pkg/logger"
)

// Router is implemented by every controller mounted under /api.
type Router interface {
	Register(rg *gin.RouterGroup, pc *auth.PermissionChecker)
}

// Controller exposes the generic CRUD surface of one module.
type Controller[T any] struct {
	svc     *services.BaseService[T]
	filters FilterSchema
	log     *logger.Logger
}

func NewController[T any](svc *services.BaseService[T], log *logger.Logger) *Controller[T] {
	name := svc.Module().Name
	return &Controller[T]{svc: svc, filters: FiltersFor(name), log: log.Named(name)}
}

func (ctl *Controller[T]) Register(rg *gin.RouterGroup, pc *auth.PermissionChecker) {
	name := ctl.svc.Module().Name
	g := rg.Group("/"+name, middleware.Permission(pc, name))

	g.GET("", ctl.GetAll)
	g.POST("", ctl.Create)
	g.GET("/aggregate", ctl.Aggregate)
	g.POST("/bulk", middleware.Permission(pc, name, auth.Admin), ctl.Bulk)
	g.GET("/:id", ctl.GetByID)
	g.PATCH("/:id", ctl.Update)
	g.PUT("/:id", ctl.Put)
	g.DELETE("/:id", ctl.Delete)
	if ctl.svc.HasStatus() {
		g.PATCH("/:id/status", ctl.UpdateStatus)
	}
	g.POST("/:id/reminder", ctl.CreateReminder)
	g.POST("/:id/link", ctl.Link)
	g.DELETE("/:id/unlink", ctl.Unlink)
}

// listQuery turns the query string into a tenant-agnostic query; the
// service adds the workspace scope.
func (ctl *Controller[T]) listQuery(c *gin.Context) (query.Query, error) {
	p, err := ParseQueryParams(c, ctl.filters)
	if err != nil {
		return query.Query{}, err
	}
	module := ctl.svc.Module()

	b := query.NewBuilder().
		Search(module.Searchable, p.Search).
		DateRange("createdAt", p.StartDate, p.EndDate).
		SetInclude(p.Include).
		SetPagination(p.Page, p.Limit)
	for key, sub := range p.Filters {
		b.WhereTree(key, sub.(query.Tree))
	}
	if p.OrderBy != "" {
		b.SetOrderBy(p.OrderBy, p.OrderDirection)
	}
	if p.OrderBy != "id" {
		b.SetOrderBy("id", query.Desc)
	}

	if ac := middleware.GetAuth(c); p.Own && ac != nil && ac.Role == models.RoleUser && module.OwnerField != "" {
		b.Where(module.OwnerField, ac.WorkspaceUserID())
	}
	return b.Build(), nil
}

func (ctl *Controller[T]) GetAll(c *gin.Context) {
	q, err := ctl.listQuery(c)
	if err != nil {
		handleError(c, ctl.log, err)
		return
	}
	if q.Include == nil {
		q.Include = ctl.svc.Module().Include
	}
	page, err := ctl.svc.GetAll(c.Request.Context(), middleware.GetAuth(c), q)
	if err != nil {
		handleError(c, ctl.log, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (ctl *Controller[T]) GetByID(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		handleError(c, ctl.log, err)
		return
	}
	p, err := ParseQueryParams(c, FilterSchema{})
	if err != nil {
		handleError(c, ctl.log, err)
		return
	}
	entity, err := ctl.svc.GetByID(c.Request.Context(), middleware.GetAuth(c), id, p.Include)
	if err != nil {
		handleError(c, ctl.log, err)
		return
	}
	c.JSON(http.StatusOK, entity)
}

func (ctl *Controller[T]) Aggregate(c *gin.Context) {
	q, err := ctl.listQuery(c)
	if err != nil {
		handleError(c, ctl.log, err)
		return
	}
	var fields []string
	for _, f := range strings.Split(c.Query("fields"), ",") {
		if f = strings.TrimSpace(f); f != "" {
			fields = append(fields, f)
		}
	}
	agg, err := ctl.svc.Aggregate(c.Request.Context(), middleware.GetAuth(c), q.Where, fields)
	if err != nil {
		handleError(c, ctl.log, err)
		return
	}
	c.JSON(http.StatusOK, agg)
}

func (ctl *Controller[T]) Create(c *gin.Context) {
	body, err := readBody(c)
	if err != nil {
		handleError(c, ctl.log, err)
		return
	}
	entity, err := ctl.svc.Create(c.Request.Context(), middleware.GetAuth(c), body)
	if err != nil {
		handleError(c, ctl.log, err)
		return
	}
	created(c, fmt.Sprintf("%s created", ctl.svc.Module().Entity), entity)
}

func (ctl *Controller[T]) Update(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		handleError(c, ctl.log, err)
		return
	}
	body, err := readBody(c)
	if err != nil {
		handleError(c, ctl.log, err)
		return
	}
	entity, err := ctl.svc.Update(c.Request.Context(), middleware.GetAuth(c), id, body)
	if err != nil {
		handleError(c, ctl.log, err)
		return
	}
	c.JSON(http.StatusOK, entity)
}

func (ctl *Controller[T]) Put(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		handleError(c, ctl.log, err)
		return
	}
	body, err := readBody(c)
	if err != nil {
		handleError(c, ctl.log, err)
		return
	}
	entity, err := ctl.svc.Put(c.Request.Context(), middleware.GetAuth(c), id, body)
	if err != nil {
		handleError(c, ctl.log, err)
		return
	}
	c.JSON(http.StatusOK, entity)
}

func (ctl *Controller[T]) Delete(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		handleError(c, ctl.log, err)
		return
	}
	if err := ctl.svc.Delete(c.Request.Context(), middleware.GetAuth(c), id); err != nil {
		handleError(c, ctl.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (ctl *Controller[T]) UpdateStatus(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		handleError(c, ctl.log, err)
		return
	}
	var in services.StatusInput
	if err := bindJSON(c, &in); err != nil {
		handleError(c, ctl.log, err)
		return
	}
	entity, err := ctl.svc.UpdateStatus(c.Request.Context(), middleware.GetAuth(c), id, in)
	if err != nil {
		handleError(c, ctl.log, err)
		return
	}
	c.JSON(http.StatusOK, entity)
}

func (ctl *Controller[T]) CreateReminder(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		handleError(c, ctl.log, err)
		return
	}
	var in services.ReminderInput
	if err := bindJSON(c, &in); err != nil {
		handleError(c, ctl.log, err)
		return
	}
	reminder, err := ctl.svc.CreateReminder(c.Request.Context(), middleware.GetAuth(c), id, in)
	if err != nil {
		handleError(c, ctl.log, err)
		return
	}
	created(c, "reminder created", reminder)
}

func (ctl *Controller[T]) Bulk(c *gin.Context) {
	var req services.BulkRequest
	if err := bindJSON(c, &req); err != nil {
		handleError(c, ctl.log, err)
		return
	}
	res, err := ctl.svc.Bulk(c.Request.Context(), middleware.GetAuth(c), req)
	if err != nil {
		handleError(c, ctl.log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (ctl *Controller[T]) Link(c *gin.Context) {
	ctl.associate(c, true)
}

func (ctl *Controller[T]) Unlink(c *gin.Context) {
	ctl.associate(c, false)
}

func (ctl *Controller[T]) associate(c *gin.Context, link bool) {
	id, err := parseID(c, "id")
	if err != nil {
		handleError(c, ctl.log, err)
		return
	}
	var req services.LinkRequest
	if err := bindJSON(c, &req); err != nil {
		handleError(c, ctl.log, err)
		return
	}
	var entity *T
	if link {
		entity, err = ctl.svc.Link(c.Request.Context(), middleware.GetAuth(c), id, req)
	} else {
		entity, err = ctl.svc.Unlink(c.Request.Context(), middleware.GetAuth(c), id, req)
	}
	if err != nil {
		handleError(c, ctl.log, err)
		return
	}
	c.JSON(http.StatusOK, entity)
}
