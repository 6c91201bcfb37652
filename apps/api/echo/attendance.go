package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/mahudhurio/core/attendance"
	"github.com/trezcool/mahudhurio/core/school"
	"github.com/trezcool/mahudhurio/core/user"
)

type attendanceApi struct {
	recorder   attendance.RecorderInterface
	aggregator attendance.AggregatorInterface
	userSvc    user.ServiceInterface
	schoolSvc  school.ServiceInterface
	validate   *validator.Validate
}

func registerAttendanceAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := attendanceApi{
		recorder:   deps.Recorder,
		aggregator: deps.Aggregator,
		userSvc:    deps.UserSvc,
		schoolSvc:  deps.SchoolSvc,
		validate:   deps.Validate,
	}

	ag := g.Group("/attendance", jwt, staffMiddleware())
	ag.POST("/mark-class", api.markClass)
	ag.PUT("/:id", api.update)
	ag.GET("/stats", api.stats)
	ag.GET("/students/:id", api.studentRecords)
	ag.GET("/students/:id/by-class", api.studentStatsByClass)
}

// Handlers

func (api *attendanceApi) markClass(ctx echo.Context) error {
	var data attendance.MarkSession
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to MarkSession")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	principal, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	written, err := api.recorder.MarkSession(ctx.Request().Context(), principal, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, MarkSessionResponse{RecordsWritten: written})
}

func (api *attendanceApi) update(ctx echo.Context) error {
	var data attendance.UpdateRecord
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateRecord")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	principal, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	rec, err := api.recorder.Update(ctx.Request().Context(), principal, ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, rec)
}

// stats reports the status breakdown and weighted attendance rate for the
// records matching the filter. Teachers are automatically scoped to the
// classes they own; admins are unrestricted.
func (api *attendanceApi) stats(ctx echo.Context) error {
	var filter attendance.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}
	filter.Clean()

	principal, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if !principal.IsAdmin() {
		if filter.ClassID != "" {
			cls, err := api.schoolSvc.GetClass(ctx.Request().Context(), filter.ClassID)
			if err != nil {
				return err
			}
			if !cls.OwnedBy(principal.ID) {
				return errHttpForbidden
			}
		} else {
			classes, err := api.schoolSvc.QueryClasses(ctx.Request().Context(), principal.ID)
			if err != nil {
				return errors.Wrap(err, "querying owned classes")
			}
			if len(classes) == 0 {
				return ctx.JSON(http.StatusOK, attendance.Stats{})
			}
			ids := make([]string, len(classes))
			for i, cls := range classes {
				ids[i] = cls.ID
			}
			filter.ClassIDs = ids
		}
	}

	stats, err := api.aggregator.ComputeRate(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "computing attendance rate")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *attendanceApi) studentRecords(ctx echo.Context) error {
	var filter attendance.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}
	filter.Clean()
	filter.StudentID = ctx.Param("id")

	// 404 on unknown students rather than an empty log
	if _, err := api.schoolSvc.GetStudent(ctx.Request().Context(), filter.StudentID); err != nil {
		return err
	}

	ordering := new(Ordering)
	ordering.Bind(ctx)

	recs, err := api.aggregator.Records(ctx.Request().Context(), filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying attendance records")
	}
	summary, err := api.aggregator.ComputeRate(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "computing attendance rate")
	}
	return ctx.JSON(http.StatusOK, StudentRecordsResponse{Records: recs, Summary: summary})
}

func (api *attendanceApi) studentStatsByClass(ctx echo.Context) error {
	studentID := ctx.Param("id")

	if _, err := api.schoolSvc.GetStudent(ctx.Request().Context(), studentID); err != nil {
		return err
	}

	stats, err := api.aggregator.ComputeRateByClass(ctx.Request().Context(), studentID)
	if err != nil {
		return errors.Wrap(err, "computing attendance rate per class")
	}
	return ctx.JSON(http.StatusOK, stats)
}

type (
	MarkSessionResponse struct {
		RecordsWritten int `json:"records_written"`
	}

	StudentRecordsResponse struct {
		Records []attendance.Record `json:"records"`
		Summary attendance.Stats    `json:"summary"`
	}
)
