package mailsync

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/deliverytrack_backend/config"
	"bitbucket.org/mmdatafocus/deliverytrack_backend/models"
	"bitbucket.org/mmdatafocus/deliverytrack_backend/models/reports"
	"bitbucket.org/mmdatafocus/deliverytrack_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type triggerSyncRequest struct {
	FromDate string `json:"from_date" binding:"required"`
	ToDate   string `json:"to_date" binding:"required"`
	Async    bool   `json:"async"`
}

// TriggerSyncHandler starts a sync over an inclusive date window. With
// async=true the run is queued on Pub/Sub and the handler returns 202;
// otherwise the session runs inline and the summary comes back with 200.
func TriggerSyncHandler(source MessageSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req triggerSyncRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		from, err := utils.ParseDateArg(req.FromDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		to, err := utils.ParseDateArg(req.ToDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if to.Before(from) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "to_date is before from_date"})
			return
		}

		if req.Async {
			run, err := models.CreateSyncRun(c.Request.Context(), from, to, models.SyncTriggeredByAPI)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			if err := PublishSyncRun(c.Request.Context(), run.ID, run.CorrelationId); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusAccepted, gin.H{"id": run.ID, "correlation_id": run.CorrelationId})
			return
		}

		run, summary, err := RunSyncWindow(c.Request.Context(), source, from, to, models.SyncTriggeredByAPI)
		if err != nil {
			switch {
			case errors.Is(err, utils.ErrorSyncInProgress):
				c.JSON(http.StatusConflict, gin.H{"error": "a sync session is already running"})
			case errors.Is(err, utils.ErrorSourceUnavailable):
				c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			}
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": run.ID, "summary": summary})
	}
}

func SyncHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 20
		if v := strings.TrimSpace(c.Query("limit")); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
				limit = n
			}
		}

		runs, err := models.GetRecentSyncRuns(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": runs})
	}
}

func SyncRunDetailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
			return
		}

		// Terminal runs are cached on finish; polling clients hit Redis first.
		var cached syncRunCacheEntry
		if found, err := config.GetRedisObject(syncRunCacheKey(uint(id)), &cached); err == nil && found && cached.Run != nil {
			c.JSON(http.StatusOK, gin.H{
				"run":      cached.Run,
				"failures": cached.Failures,
			})
			return
		}

		run, err := models.GetSyncRunById(c.Request.Context(), uint(id))
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"run":      run,
			"failures": models.DecodeSyncFailures(run.FailuresJSON),
		})
	}
}

// ListReportsHandler returns stored records, optionally bounded by
// ?from=YYYY-MM-DD&to=YYYY-MM-DD.
func ListReportsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var from, to *time.Time
		if v := strings.TrimSpace(c.Query("from")); v != "" {
			t, err := utils.ParseDateArg(v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			from = &t
		}
		if v := strings.TrimSpace(c.Query("to")); v != "" {
			t, err := utils.ParseDateArg(v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			to = &t
		}

		records, err := models.GetDeliveryReports(c.Request.Context(), from, to)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": records})
	}
}

func GetReportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		date, err := utils.ParseDateArg(c.Param("date"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		record, err := models.GetDeliveryReportByDate(c.Request.Context(), date)
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, record)
	}
}

type updateReportRequest struct {
	ShortKg           int    `json:"short_kg"`
	ExcessKg          int    `json:"excess_kg"`
	PerBagShortExcess string `json:"per_bag_short_excess" binding:"required"`
}

// UpdateReportHandler is the manual correction path. The derived bag weight
// is recomputed server side; clients cannot set it directly.
func UpdateReportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		date, err := utils.ParseDateArg(c.Param("date"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		var req updateReportRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		perBag, err := decimal.NewFromString(strings.TrimSpace(req.PerBagShortExcess))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid per_bag_short_excess"})
			return
		}

		record, err := models.UpdateDeliveryReport(c.Request.Context(), date, req.ShortKg, req.ExcessKg, perBag)
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, record)
	}
}

func DeleteReportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		date, err := utils.ParseDateArg(c.Param("date"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if err := models.DeleteDeliveryReport(c.Request.Context(), date); err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// ExportReportsHandler streams the full record set as an xlsx workbook.
func ExportReportsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		workbook, err := reports.BuildDeliveryReportWorkbook(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		fileName := "delivery_reports_" + time.Now().Format("20060102_150405") + ".xlsx"
		c.Header("Content-Disposition", `attachment; filename="`+fileName+`"`)
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		if err := workbook.Write(c.Writer); err != nil {
			config.LogError(config.GetLogger(), "mailsync", "ExportReportsHandler", "stream workbook", fileName, err)
		}
	}
}
