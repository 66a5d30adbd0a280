package main

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/payroll_bridge/matching"
	"github.com/mmdatafocus/payroll_bridge/models"
	"github.com/mmdatafocus/payroll_bridge/models/reports"
	"github.com/mmdatafocus/payroll_bridge/utils"
)

// runReconciliationRequest takes the date as YYYY-MM-DD.
type runReconciliationRequest struct {
	ReconciliationDate string                 `json:"reconciliation_date"`
	SourceSystem       string                 `json:"source_system"`
	DestinationSystem  string                 `json:"destination_system"`
	ReconciliationType string                 `json:"reconciliation_type"`
	Tolerance          *models.ToleranceInput `json:"tolerance"`
}

func registerRoutes(api *gin.RouterGroup) {
	duplicates := api.Group("/duplicates")
	duplicates.GET("", listDuplicateFindingsHandler)
	duplicates.POST("/scan", scanDuplicatesHandler)
	duplicates.POST("/check", checkDuplicateHandler)
	duplicates.POST("/merge", mergeDuplicatesHandler)
	duplicates.GET("/:id", getDuplicateFindingHandler)
	duplicates.POST("/:id/resolve", resolveDuplicateFindingHandler)

	reconciliations := api.Group("/reconciliations")
	reconciliations.POST("", runReconciliationHandler)
	reconciliations.GET("", listReconciliationReportsHandler)
	reconciliations.GET("/:id", getReconciliationReportHandler)
	reconciliations.GET("/:id/items", listReconciliationItemsHandler)
	reconciliations.GET("/:id/export", exportReconciliationHandler)

	api.POST("/reconciliation-items/:id/resolve", resolveReconciliationItemHandler)
	api.GET("/reconciliation-dashboard", reconciliationDashboardHandler)
}

// respondError maps an AppError code onto the HTTP status. Unexpected errors are attached to the
// gin context so the error logger sees them.
func respondError(c *gin.Context, err error) {
	status := utils.HTTPStatus(err)
	body := gin.H{"error": err.Error()}
	if code := utils.ErrorCodeOf(err); code != "" {
		body["code"] = code
	}
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, body)
}

func bindJSON(c *gin.Context, dest any) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		respondError(c, utils.ValidationError("invalid request body: %v", err))
		return false
	}
	return true
}

func pathId(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		respondError(c, utils.ValidationError("invalid id %q", c.Param("id")))
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, key string) (int, error) {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, utils.ValidationError("invalid %s %q", key, v)
	}
	return n, nil
}

func queryString(c *gin.Context, key string) *string {
	return utils.NilIfEmpty(strings.TrimSpace(c.Query(key)))
}

func queryDate(c *gin.Context, key string) (*time.Time, error) {
	v := queryString(c, key)
	if v == nil {
		return nil, nil
	}
	t, err := utils.ParseDate(*v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func listDuplicateFindingsHandler(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		respondError(c, err)
		return
	}
	filter := models.FindingFilter{Limit: limit, After: queryString(c, "after")}
	if v := queryString(c, "status"); v != nil {
		status := models.FindingStatus(*v)
		filter.Status = &status
	}
	if v := queryString(c, "record_type"); v != nil {
		recordType := matching.RecordType(*v)
		filter.RecordType = &recordType
	}
	if v := queryString(c, "min_score"); v != nil {
		score, err := strconv.ParseFloat(*v, 64)
		if err != nil {
			respondError(c, utils.ValidationError("invalid min_score %q", *v))
			return
		}
		filter.MinScore = &score
	}
	conn, err := models.ListDuplicateFindings(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conn)
}

func getDuplicateFindingHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	finding, err := models.GetDuplicateFinding(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, finding)
}

func resolveDuplicateFindingHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var input models.ResolveFindingInput
	if !bindJSON(c, &input) {
		return
	}
	finding, err := models.ResolveDuplicateFinding(c.Request.Context(), id, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, finding)
}

func scanDuplicatesHandler(c *gin.Context) {
	var opts models.ScanOptions
	if !bindJSON(c, &opts) {
		return
	}
	result, err := models.ScanDuplicates(c.Request.Context(), opts)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func checkDuplicateHandler(c *gin.Context) {
	var input models.CheckDuplicateInput
	if !bindJSON(c, &input) {
		return
	}
	result, err := models.CheckDuplicate(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// mergeDuplicatesHandler always returns the merge result; a failed merge carries its errors.
func mergeDuplicatesHandler(c *gin.Context) {
	var input models.MergeInput
	if !bindJSON(c, &input) {
		return
	}
	result, err := models.MergeDuplicateRecords(c.Request.Context(), input)
	if err != nil {
		status := utils.HTTPStatus(err)
		if status >= http.StatusInternalServerError {
			_ = c.Error(err)
		}
		c.JSON(status, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

func runReconciliationHandler(c *gin.Context) {
	var req runReconciliationRequest
	if !bindJSON(c, &req) {
		return
	}
	date, err := utils.ParseDate(strings.TrimSpace(req.ReconciliationDate))
	if err != nil {
		respondError(c, err)
		return
	}
	report, err := models.RunReconciliation(c.Request.Context(), models.RunReconciliationInput{
		ReconciliationDate: date,
		SourceSystem:       req.SourceSystem,
		DestinationSystem:  req.DestinationSystem,
		ReconciliationType: req.ReconciliationType,
		Tolerance:          req.Tolerance,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, report)
}

func listReconciliationReportsHandler(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		respondError(c, err)
		return
	}
	filter := models.ReportFilter{
		SourceSystem:      queryString(c, "source_system"),
		DestinationSystem: queryString(c, "destination_system"),
		Limit:             limit,
		After:             queryString(c, "after"),
	}
	if v := queryString(c, "status"); v != nil {
		status := models.ReportStatus(*v)
		filter.Status = &status
	}
	if filter.FromDate, err = queryDate(c, "from_date"); err != nil {
		respondError(c, err)
		return
	}
	if filter.ToDate, err = queryDate(c, "to_date"); err != nil {
		respondError(c, err)
		return
	}
	conn, err := models.ListReconciliationReports(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conn)
}

func getReconciliationReportHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	report, err := models.GetReconciliationReport(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": report, "match_rate": report.MatchRate()})
}

func listReconciliationItemsHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		respondError(c, err)
		return
	}
	filter := models.ItemFilter{
		OnlyOpen: strings.EqualFold(c.Query("only_open"), "true"),
		Limit:    limit,
		After:    queryString(c, "after"),
	}
	if v := queryString(c, "match_status"); v != nil {
		status := models.MatchStatus(*v)
		filter.MatchStatus = &status
	}
	conn, err := models.ListReconciliationItems(c.Request.Context(), id, filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conn)
}

func resolveReconciliationItemHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var input models.ResolveItemInput
	if !bindJSON(c, &input) {
		return
	}
	item, err := models.ResolveReconciliationItem(c.Request.Context(), id, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// exportReconciliationHandler streams the workbook. When it was also uploaded, the object
// location is returned in X-Export-Location.
func exportReconciliationHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	result, err := reports.ExportReconciliationReport(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	headers := map[string]string{
		"Content-Disposition": fmt.Sprintf(`attachment; filename="%s"`, result.Filename),
	}
	if result.Location != "" {
		headers["X-Export-Location"] = result.Location
	}
	c.DataFromReader(http.StatusOK, int64(len(result.Content)), reports.XlsxMimeType, bytes.NewReader(result.Content), headers)
}

func reconciliationDashboardHandler(c *gin.Context) {
	days, err := queryInt(c, "days")
	if err != nil {
		respondError(c, err)
		return
	}
	dashboard, err := models.GetReconciliationDashboard(c.Request.Context(), days)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dashboard)
}
