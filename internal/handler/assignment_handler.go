package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/classroom-api/internal/models"
	"github.com/noah-isme/classroom-api/internal/service"
	appErrors "github.com/noah-isme/classroom-api/pkg/errors"
	"github.com/noah-isme/classroom-api/pkg/response"
)

// AssignmentHandler exposes assignment CRUD and attachment endpoints.
type AssignmentHandler struct {
	service *service.AssignmentService
	metrics *service.MetricsService
}

// NewAssignmentHandler constructs an assignment handler.
func NewAssignmentHandler(svc *service.AssignmentService, metrics *service.MetricsService) *AssignmentHandler {
	return &AssignmentHandler{service: svc, metrics: metrics}
}

// List godoc
// @Summary List assignments
// @Description Scoped to the actor: own classrooms for lecturers, enrolled for students
// @Tags Assignments
// @Produce json
// @Param classroom_id query string false "Filter by classroom"
// @Param search query string false "Search keyword"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /assignments [get]
func (h *AssignmentHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var filter models.AssignmentFilter
	filter.ClassroomID = c.Query("classroom_id")
	filter.Search = strings.TrimSpace(c.Query("search"))
	filter.Page, filter.PageSize = paginationParams(c)

	assignments, total, err := h.service.List(c.Request.Context(), actor, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignments, pageMeta(filter.Page, filter.PageSize, total))
}

// Get godoc
// @Summary Get assignment detail with attachments
// @Tags Assignments
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Router /assignments/{id} [get]
func (h *AssignmentHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	detail, err := h.service.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Create godoc
// @Summary Publish assignment
// @Description Multipart form: metadata fields plus optional attachment files
// @Tags Assignments
// @Accept mpfd
// @Produce json
// @Param title formData string true "Title"
// @Param description formData string true "Description"
// @Param due_date formData string true "Due date (RFC3339)"
// @Param classroom_id formData string true "Classroom ID"
// @Param allowed_formats formData string false "Comma-separated extensions"
// @Param max_file_size formData int false "Per-file ceiling in bytes"
// @Param attachments formData file false "Attachment files"
// @Success 201 {object} response.Envelope
// @Router /assignments [post]
func (h *AssignmentHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	req, err := assignmentRequestFromForm(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	uploads, cleanup, err := formUploads(c, "attachments")
	if err != nil {
		response.Error(c, err)
		return
	}
	defer cleanup()

	assignment, err := h.service.Create(c.Request.Context(), actor, req, uploads)
	if err != nil {
		response.Error(c, err)
		return
	}

	for _, u := range uploads {
		h.metrics.RecordUpload(u.Size)
	}
	response.Created(c, assignment)
}

// Update godoc
// @Summary Update assignment
// @Description Moving the due date does not re-flag existing submissions
// @Tags Assignments
// @Accept json
// @Produce json
// @Param id path string true "Assignment ID"
// @Param payload body models.UpdateAssignmentRequest true "Assignment payload"
// @Success 200 {object} response.Envelope
// @Router /assignments/{id} [put]
func (h *AssignmentHandler) Update(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.UpdateAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	assignment, err := h.service.Update(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignment, nil)
}

// Delete godoc
// @Summary Delete assignment
// @Description Removes the assignment, its submissions and stored files. Blob release failures come back as warnings.
// @Tags Assignments
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Router /assignments/{id} [delete]
func (h *AssignmentHandler) Delete(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	warnings, err := h.service.Delete(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OKWithWarnings(c, gin.H{"deleted": true}, warnings)
}

// DownloadAttachment godoc
// @Summary Download assignment attachment
// @Tags Assignments
// @Produce octet-stream
// @Param handle path string true "Attachment handle"
// @Success 200 {file} binary
// @Router /attachments/{handle}/download [get]
func (h *AssignmentHandler) DownloadAttachment(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	dl, err := h.service.DownloadAttachment(c.Request.Context(), actor, c.Param("handle"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer dl.Content.Close() //nolint:errcheck

	c.DataFromReader(http.StatusOK, dl.Size, dl.MIMEType, dl.Content, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", dl.Filename),
	})
}

func assignmentRequestFromForm(c *gin.Context) (models.CreateAssignmentRequest, error) {
	var req models.CreateAssignmentRequest
	req.Title = strings.TrimSpace(c.PostForm("title"))
	req.Description = c.PostForm("description")
	req.ClassroomID = c.PostForm("classroom_id")

	rawDue := c.PostForm("due_date")
	due, err := time.Parse(time.RFC3339, rawDue)
	if err != nil {
		return req, appErrors.Clone(appErrors.ErrValidation, "due_date must be RFC3339")
	}
	req.DueDate = due

	if raw := c.PostForm("allowed_formats"); raw != "" {
		for _, f := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(f); trimmed != "" {
				req.AllowedFormats = append(req.AllowedFormats, trimmed)
			}
		}
	}
	if raw := c.PostForm("max_file_size"); raw != "" {
		size, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || size <= 0 {
			return req, appErrors.Clone(appErrors.ErrValidation, "max_file_size must be a positive integer")
		}
		req.MaxFileSize = size
	}
	return req, nil
}
