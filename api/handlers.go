package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"voicenote-api/domain"
	"voicenote-api/extract"
	"voicenote-api/notify"
)

const (
	// maxAudioSize matches the upstream speech-to-text upload limit.
	maxAudioSize = 25 << 20
	maxJSONSize  = 1 << 20
)

// Dependencies carries the collaborators the handlers dispatch to. Store is
// required; nil channel clients surface as unavailable at request time.
type Dependencies struct {
	Store       Storage
	Transcriber Transcriber
	Extractor   Extractor
	Mailer      Mailer
	Processor   Processor
	Links       *ActionLinks
	Logger      *log.Logger
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, deps Dependencies) {
	e.POST("/api/transcribe", postTranscribe(deps.Transcriber))
	e.POST("/api/extract", postExtract(deps.Extractor))
	e.POST("/api/send-email", postSendEmail(deps.Mailer))
	e.POST("/api/reminders", postReminders(deps.Store))
	e.GET("/api/reminders", getReminders(deps.Store))
	e.POST("/api/reminders/:id/complete", postComplete(deps.Store))
	e.POST("/api/reminders/:id/reschedule", postReschedule(deps.Store))
	e.POST("/api/process-due", postProcessDue(deps.Processor))
	e.GET("/api/actions/complete", getActionComplete(deps.Store, deps.Links))
	e.GET("/api/actions/reschedule", getActionReschedule(deps.Store, deps.Links))
	e.GET("/healthz", healthz())
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

type transcribeResponse struct {
	Transcript string `json:"transcript"`
	Mock       bool   `json:"mock"`
}

func postTranscribe(transcriber Transcriber) echo.HandlerFunc {
	return func(c echo.Context) error {
		fh, err := c.FormFile("audio")
		if err != nil {
			return c.String(http.StatusBadRequest, "missing audio file")
		}
		if fh.Size > maxAudioSize {
			return c.String(http.StatusRequestEntityTooLarge, "audio file too large")
		}
		f, err := fh.Open()
		if err != nil {
			return c.String(http.StatusBadRequest, "unreadable audio file")
		}
		defer f.Close()
		audio, err := io.ReadAll(io.LimitReader(f, maxAudioSize))
		if err != nil {
			return c.String(http.StatusBadRequest, "unreadable audio file")
		}

		result, err := transcriber.Transcribe(c.Request().Context(), audio, fh.Filename)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusBadGateway, "transcription failed")
		}
		return c.JSON(http.StatusOK, transcribeResponse{Transcript: result.Text, Mock: result.Mock})
	}
}

type extractRequest struct {
	Transcript string `json:"transcript"`
}

type extractResponse struct {
	Tasks             []domain.Task `json:"tasks"`
	EmailDraft        string        `json:"emailDraft"`
	SuggestedSendTime time.Time     `json:"suggestedSendTime"`
}

func postExtract(extractor Extractor) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req extractRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if req.Transcript == "" {
			return c.String(http.StatusBadRequest, "transcript is required")
		}

		extraction, err := extractor.Extract(c.Request().Context(), req.Transcript)
		if err != nil {
			if errors.Is(err, extract.ErrNotConfigured) {
				return c.String(http.StatusServiceUnavailable, err.Error())
			}
			var malformed *extract.MalformedReplyError
			if errors.As(err, &malformed) {
				c.Logger().Error(err)
				return c.String(http.StatusBadGateway, "task extraction returned an unusable reply")
			}
			c.Logger().Error(err)
			return c.String(http.StatusBadGateway, "task extraction failed")
		}
		return c.JSON(http.StatusOK, extractResponse{
			Tasks:             extraction.Tasks,
			EmailDraft:        extraction.EmailDraft,
			SuggestedSendTime: extraction.SuggestedSendTime,
		})
	}
}

type sendEmailRequest struct {
	To         string        `json:"to"`
	Subject    string        `json:"subject"`
	EmailDraft string        `json:"emailDraft"`
	Tasks      []domain.Task `json:"tasks"`
}

type sendEmailResponse struct {
	ID string `json:"id"`
}

func postSendEmail(mailer Mailer) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req sendEmailRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if req.To == "" || req.EmailDraft == "" {
			return c.String(http.StatusBadRequest, "to and emailDraft are required")
		}
		if req.Subject == "" {
			req.Subject = "Your tasks"
		}

		if mailer == nil {
			return c.String(http.StatusServiceUnavailable, "email channel is not configured")
		}
		id, err := mailer.Send(c.Request().Context(), req.To, req.Subject, notify.RenderSingleEmail(req.EmailDraft, req.Tasks))
		if err != nil {
			var unavailable *notify.ChannelUnavailableError
			if errors.As(err, &unavailable) {
				return c.String(http.StatusServiceUnavailable, err.Error())
			}
			c.Logger().Error(err)
			return c.String(http.StatusBadGateway, "email delivery failed")
		}
		return c.JSON(http.StatusOK, sendEmailResponse{ID: id})
	}
}

type createReminderRequest struct {
	Email               string        `json:"email"`
	PhoneNumber         string        `json:"phoneNumber"`
	Transcript          string        `json:"transcript"`
	Tasks               []domain.Task `json:"tasks"`
	EmailDraft          string        `json:"emailDraft"`
	ScheduledFor        time.Time     `json:"scheduledFor"`
	NotificationMethods []string      `json:"notificationMethods"`
}

type reminderView struct {
	ID                  string        `json:"id"`
	Email               string        `json:"email"`
	PhoneNumber         string        `json:"phoneNumber,omitempty"`
	Transcript          string        `json:"transcript,omitempty"`
	Tasks               []domain.Task `json:"tasks"`
	EmailDraft          string        `json:"emailDraft,omitempty"`
	ScheduledFor        time.Time     `json:"scheduledFor"`
	NotificationMethods []string      `json:"notificationMethods"`
	Sent                bool          `json:"sent"`
	Completed           bool          `json:"completed"`
	LastFollowupSent    *time.Time    `json:"lastFollowupSent,omitempty"`
	FollowupCount       int           `json:"followupCount"`
	State               string        `json:"state"`
}

func viewOf(r domain.Reminder) reminderView {
	return reminderView{
		ID:                  r.ID,
		Email:               r.Email,
		PhoneNumber:         r.PhoneNumber,
		Transcript:          r.Transcript,
		Tasks:               r.Tasks,
		EmailDraft:          r.EmailDraft,
		ScheduledFor:        r.ScheduledFor,
		NotificationMethods: r.NotificationMethods,
		Sent:                r.Sent,
		Completed:           r.Completed,
		LastFollowupSent:    r.LastFollowupSent,
		FollowupCount:       r.FollowupCount,
		State:               string(r.State()),
	}
}

func postReminders(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req createReminderRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if msg := validateCreateRequest(req); msg != "" {
			return c.String(http.StatusBadRequest, msg)
		}

		r := domain.Reminder{
			ID:                  uuid.NewString(),
			Email:               req.Email,
			PhoneNumber:         req.PhoneNumber,
			Transcript:          req.Transcript,
			Tasks:               req.Tasks,
			EmailDraft:          req.EmailDraft,
			ScheduledFor:        req.ScheduledFor.UTC(),
			NotificationMethods: req.NotificationMethods,
		}
		r.NormalizeMethods()
		if r.PhoneNumber != "" {
			r.PhoneNumber = notify.NormalizePhone(r.PhoneNumber)
		}

		if err := store.CreateReminder(c.Request().Context(), r); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to create reminder")
		}
		return c.JSON(http.StatusCreated, viewOf(r))
	}
}

func validateCreateRequest(req createReminderRequest) string {
	if req.Email == "" {
		return "email is required"
	}
	if req.ScheduledFor.IsZero() {
		return "scheduledFor is required"
	}
	if len(req.Tasks) == 0 {
		return "at least one task is required"
	}
	for _, task := range req.Tasks {
		if err := task.Validate(); err != nil {
			return err.Error()
		}
	}
	wantsSMS := false
	for _, m := range req.NotificationMethods {
		switch m {
		case domain.MethodEmail:
		case domain.MethodSMS:
			wantsSMS = true
		default:
			return "unknown notification method: " + m
		}
	}
	if wantsSMS && req.PhoneNumber == "" {
		return "phoneNumber is required for sms notifications"
	}
	return ""
}

type remindersResponse struct {
	Reminders []reminderView `json:"reminders"`
}

func getReminders(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		email := c.QueryParam("email")
		if email == "" {
			return c.String(http.StatusBadRequest, "email query parameter is required")
		}
		reminders, err := store.ListReminders(c.Request().Context(), email)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to list reminders")
		}
		views := make([]reminderView, 0, len(reminders))
		for _, r := range reminders {
			views = append(views, viewOf(r))
		}
		return c.JSON(http.StatusOK, remindersResponse{Reminders: views})
	}
}

func postComplete(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		r, done := loadReminder(c, store, c.Param("id"))
		if done {
			return nil
		}
		r.Complete()
		if err := store.UpdateReminder(c.Request().Context(), r); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to update reminder")
		}
		return c.JSON(http.StatusOK, viewOf(r))
	}
}

type rescheduleRequest struct {
	ScheduledFor time.Time `json:"scheduledFor"`
}

func postReschedule(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req rescheduleRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if req.ScheduledFor.IsZero() {
			return c.String(http.StatusBadRequest, "scheduledFor is required")
		}
		r, done := loadReminder(c, store, c.Param("id"))
		if done {
			return nil
		}
		r.Reschedule(req.ScheduledFor.UTC())
		if err := store.UpdateReminder(c.Request().Context(), r); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to update reminder")
		}
		return c.JSON(http.StatusOK, viewOf(r))
	}
}

func postProcessDue(proc Processor) echo.HandlerFunc {
	return func(c echo.Context) error {
		report, err := proc.ProcessDue(c.Request().Context(), time.Now().UTC())
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "processing run failed")
		}
		return c.JSON(http.StatusOK, report)
	}
}

func getActionComplete(store Storage, links *ActionLinks) echo.HandlerFunc {
	return func(c echo.Context) error {
		r, done := loadActionReminder(c, store, links, ActionComplete)
		if done {
			return nil
		}
		r.Complete()
		if err := store.UpdateReminder(c.Request().Context(), r); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to update reminder")
		}
		return c.String(http.StatusOK, "Reminder marked complete. You can close this page.")
	}
}

func getActionReschedule(store Storage, links *ActionLinks) echo.HandlerFunc {
	return func(c echo.Context) error {
		days := 1
		if v := c.QueryParam("days"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				return c.String(http.StatusBadRequest, "invalid days")
			}
			days = n
		}
		r, done := loadActionReminder(c, store, links, ActionReschedule)
		if done {
			return nil
		}
		r.Reschedule(time.Now().UTC().Add(time.Duration(days) * 24 * time.Hour))
		if err := store.UpdateReminder(c.Request().Context(), r); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to update reminder")
		}
		return c.String(http.StatusOK, "Reminder rescheduled. You can close this page.")
	}
}

// loadReminder fetches the reminder named in the route; a true second return
// value means the response has already been written.
func loadReminder(c echo.Context, store Storage, id string) (domain.Reminder, bool) {
	if id == "" {
		_ = c.String(http.StatusBadRequest, "reminder id is required")
		return domain.Reminder{}, true
	}
	r, err := store.GetReminder(c.Request().Context(), id)
	if err != nil {
		var notFound NotFoundError
		if errors.As(err, &notFound) {
			_ = c.String(http.StatusNotFound, "reminder not found")
			return domain.Reminder{}, true
		}
		c.Logger().Error(err)
		_ = c.String(http.StatusInternalServerError, "failed to load reminder")
		return domain.Reminder{}, true
	}
	return r, false
}

func loadActionReminder(c echo.Context, store Storage, links *ActionLinks, action string) (domain.Reminder, bool) {
	if links == nil {
		_ = c.String(http.StatusNotFound, "action links are not configured")
		return domain.Reminder{}, true
	}
	id, err := links.Verify(c.QueryParam("token"), action)
	if err != nil {
		_ = c.String(http.StatusBadRequest, "this link is invalid or has expired")
		return domain.Reminder{}, true
	}
	return loadReminder(c, store, id)
}

func decodeBody(c echo.Context, out any) error {
	lr := io.LimitReader(c.Request().Body, maxJSONSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}
