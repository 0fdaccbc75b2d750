package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/classroom-api/internal/models"
	"github.com/noah-isme/classroom-api/internal/service"
	appErrors "github.com/noah-isme/classroom-api/pkg/errors"
	"github.com/noah-isme/classroom-api/pkg/response"
)

// SubmissionHandler exposes the submission lifecycle over HTTP.
type SubmissionHandler struct {
	service *service.SubmissionService
	metrics *service.MetricsService
}

// NewSubmissionHandler constructs a submission handler.
func NewSubmissionHandler(svc *service.SubmissionService, metrics *service.MetricsService) *SubmissionHandler {
	return &SubmissionHandler{service: svc, metrics: metrics}
}

// Create godoc
// @Summary Submit work for an assignment
// @Description Multipart form: comments field plus files. One submission per student per assignment.
// @Tags Submissions
// @Accept mpfd
// @Produce json
// @Param id path string true "Assignment ID"
// @Param comments formData string false "Comments"
// @Param files formData file false "Submission files"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /assignments/{id}/submissions [post]
func (h *SubmissionHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	uploads, cleanup, err := formUploads(c, "files")
	if err != nil {
		response.Error(c, err)
		return
	}
	defer cleanup()

	submission, err := h.service.Create(c.Request.Context(), actor, c.Param("id"), c.PostForm("comments"), uploads)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.metrics.RecordSubmission(submission.IsLate)
	for _, u := range uploads {
		h.metrics.RecordUpload(u.Size)
	}
	response.Created(c, submission)
}

// List godoc
// @Summary List submissions
// @Description Lecturers see submissions in their classrooms, students their own
// @Tags Submissions
// @Produce json
// @Param assignment_id query string false "Filter by assignment"
// @Param graded query bool false "Filter by graded state"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /submissions [get]
func (h *SubmissionHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var filter models.SubmissionFilter
	filter.AssignmentID = c.Query("assignment_id")
	switch c.Query("graded") {
	case "true":
		graded := true
		filter.Graded = &graded
	case "false":
		graded := false
		filter.Graded = &graded
	}
	filter.Page, filter.PageSize = paginationParams(c)

	submissions, total, err := h.service.List(c.Request.Context(), actor, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submissions, pageMeta(filter.Page, filter.PageSize, total))
}

// Get godoc
// @Summary Get submission detail
// @Tags Submissions
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id} [get]
func (h *SubmissionHandler) Get(c *gin.Context) {
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

// Update godoc
// @Summary Rework an ungraded submission
// @Description New files replace the old set. Fails with SUBMISSION_LOCKED once graded.
// @Tags Submissions
// @Accept mpfd
// @Produce json
// @Param id path string true "Submission ID"
// @Param comments formData string false "Comments"
// @Param files formData file false "Replacement files"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /submissions/{id} [put]
func (h *SubmissionHandler) Update(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	uploads, cleanup, err := formUploads(c, "files")
	if err != nil {
		response.Error(c, err)
		return
	}
	defer cleanup()

	submission, warnings, err := h.service.Update(c.Request.Context(), actor, c.Param("id"), c.PostForm("comments"), uploads)
	if err != nil {
		response.Error(c, err)
		return
	}

	for _, u := range uploads {
		h.metrics.RecordUpload(u.Size)
	}
	response.OKWithWarnings(c, submission, warnings)
}

// Delete godoc
// @Summary Withdraw a submission
// @Description Students can withdraw while ungraded; admins unconditionally
// @Tags Submissions
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /submissions/{id} [delete]
func (h *SubmissionHandler) Delete(c *gin.Context) {
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

// Grade godoc
// @Summary Grade a submission
// @Description Grading locks the submission against further student edits
// @Tags Submissions
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body models.GradeSubmissionRequest true "Grade payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /submissions/{id}/grade [post]
func (h *SubmissionHandler) Grade(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.GradeSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	submission, err := h.service.Grade(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.metrics.RecordGrade()
	response.JSON(c, http.StatusOK, submission, nil)
}

// DownloadFile godoc
// @Summary Download a submission file
// @Description Ownership is resolved from the handle before authorization
// @Tags Submissions
// @Produce octet-stream
// @Param handle path string true "File handle"
// @Success 200 {file} binary
// @Router /files/{handle}/download [get]
func (h *SubmissionHandler) DownloadFile(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	dl, err := h.service.DownloadFile(c.Request.Context(), actor, c.Param("handle"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer dl.Content.Close() //nolint:errcheck

	c.DataFromReader(http.StatusOK, dl.Size, dl.MIMEType, dl.Content, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", dl.Filename),
	})
}

// CreateDownloadLink godoc
// @Summary Issue a time-limited download link
// @Description The returned token can be redeemed without a session
// @Tags Submissions
// @Produce json
// @Param handle path string true "File handle"
// @Success 200 {object} response.Envelope
// @Router /files/{handle}/link [post]
func (h *SubmissionHandler) CreateDownloadLink(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	link, err := h.service.CreateDownloadLink(c.Request.Context(), actor, c.Param("handle"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link, nil)
}

// RedeemDownloadLink godoc
// @Summary Redeem a signed download link
// @Description Public endpoint; the token carries the authorization
// @Tags Submissions
// @Produce octet-stream
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Router /downloads [get]
func (h *SubmissionHandler) RedeemDownloadLink(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "missing download token"))
		return
	}

	dl, err := h.service.RedeemDownloadLink(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer dl.Content.Close() //nolint:errcheck

	c.DataFromReader(http.StatusOK, dl.Size, dl.MIMEType, dl.Content, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", dl.Filename),
	})
}
