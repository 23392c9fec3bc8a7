// Package api exposes the desk over HTTP with gin. Handlers only decode,
// authorize by identity and encode; every rule lives in the desk.
package api

import (
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/thesisdesk/thesisdesk"
	"github.com/thesisdesk/thesisdesk/chapter"
	"github.com/thesisdesk/thesisdesk/earnings"
	"github.com/thesisdesk/thesisdesk/id"
	"github.com/thesisdesk/thesisdesk/payment"
	"github.com/thesisdesk/thesisdesk/pricing"
	"github.com/thesisdesk/thesisdesk/ratelimit"
)

const identityKey = "thesisdesk.identity"

// Handler serves the desk API.
type Handler struct {
	desk     *thesisdesk.Desk
	identity IdentityResolver
	limiter  *ratelimit.Limiter
	logger   *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

// WithLimiter throttles authenticated callers by user ID and anonymous
// callers by client IP.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(h *Handler) { h.limiter = l }
}

// New creates a Handler.
func New(desk *thesisdesk.Desk, identity IdentityResolver, opts ...Option) *Handler {
	h := &Handler{
		desk:     desk,
		identity: identity,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Router returns a gin engine with the API mounted under basePath.
func (h *Handler) Router(basePath string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), h.accessLog)
	h.Register(r.Group(basePath))
	return r
}

// Register mounts the routes on rg.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.GET("/healthz", h.health)
	rg.POST("/quote", h.rateLimit, h.quote)

	auth := rg.Group("", h.authenticate, h.rateLimit)

	auth.GET("/chapters", h.listChapters)
	auth.POST("/chapters", h.createChapter)
	auth.GET("/chapters/:id", h.getChapter)
	auth.PATCH("/chapters/:id", h.updateChapter)
	auth.DELETE("/chapters/:id", h.deleteChapter)
	auth.POST("/chapters/:id/feedback", h.addFeedback)
	auth.POST("/chapters/:id/files", h.attachFile)
	auth.GET("/chapters/:id/files/:fileID", h.downloadFile)
	auth.PUT("/chapters/:id/writer", h.assignWriter)

	auth.GET("/payments", h.listPayments)
	auth.POST("/payments", h.createPayment)
	auth.GET("/payments/:id", h.getPayment)
	auth.POST("/payments/:id/transition", h.transitionPayment)
	auth.DELETE("/payments/:id", h.deletePayment)

	auth.GET("/earnings/:writerID", h.earningsSummary)
	auth.POST("/earnings/:writerID/payout-check", h.checkPayout)
}

// ──────────────────────────────────────────────────
// Middleware
// ──────────────────────────────────────────────────

func (h *Handler) authenticate(c *gin.Context) {
	who, err := h.identity.Resolve(c.Request)
	if err != nil {
		h.fail(c, ErrUnauthenticated)
		return
	}
	c.Set(identityKey, who)
	c.Next()
}

func (h *Handler) rateLimit(c *gin.Context) {
	if h.limiter == nil {
		c.Next()
		return
	}

	key := c.ClientIP()
	if who, ok := identityFrom(c); ok {
		key = "user:" + who.UserID
	}
	if !h.limiter.Allow(key) {
		h.logger.Warn("rate limit exceeded", "key", key, "path", c.FullPath())
		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorBody{Error: ErrorDetail{
			Code:    CodeRateLimited,
			Message: "too many requests",
		}})
		return
	}
	c.Next()
}

func (h *Handler) accessLog(c *gin.Context) {
	start := time.Now()
	c.Next()
	h.logger.Debug("http request",
		"method", c.Request.Method,
		"path", c.FullPath(),
		"status", c.Writer.Status(),
		"elapsed", time.Since(start),
	)
}

func identityFrom(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return Identity{}, false
	}
	who, ok := v.(Identity)
	return who, ok
}

func caller(c *gin.Context) Identity {
	who, _ := identityFrom(c)
	return who
}

// ──────────────────────────────────────────────────
// Pricing
// ──────────────────────────────────────────────────

func (h *Handler) health(c *gin.Context) {
	if err := h.desk.Store().Ping(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) quote(c *gin.Context) {
	var req pricing.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "body", err.Error())
		return
	}
	snap, err := h.desk.Quote(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// ──────────────────────────────────────────────────
// Chapters
// ──────────────────────────────────────────────────

type createChapterRequest struct {
	Title           string           `json:"title"`
	Content         string           `json:"content"`
	ChapterNumber   int              `json:"chapter_number"`
	TargetWordCount int              `json:"target_word_count"`
	Level           pricing.Level    `json:"level"`
	WorkType        pricing.WorkType `json:"work_type"`
	Urgency         pricing.Urgency  `json:"urgency"`
}

func (h *Handler) createChapter(c *gin.Context) {
	var req createChapterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "body", err.Error())
		return
	}

	ch := &chapter.Chapter{
		OwnerID:         caller(c).UserID,
		Title:           req.Title,
		Content:         req.Content,
		ChapterNumber:   req.ChapterNumber,
		TargetWordCount: req.TargetWordCount,
		Level:           req.Level,
		WorkType:        req.WorkType,
		Urgency:         req.Urgency,
	}
	if err := h.desk.CreateChapter(c.Request.Context(), ch); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, ch)
}

func (h *Handler) listChapters(c *gin.Context) {
	limit, offset, ok := paging(c)
	if !ok {
		return
	}
	opts := chapter.ListOpts{
		Status:   chapter.Status(c.Query("status")),
		WriterID: c.Query("writer_id"),
		Limit:    limit,
		Offset:   offset,
	}
	list, err := h.desk.ListChapters(c.Request.Context(), caller(c).UserID, opts)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chapters": list})
}

func (h *Handler) getChapter(c *gin.Context) {
	chapterID, ok := pathID(c, "id", id.PrefixChapter)
	if !ok {
		return
	}
	ch, err := h.desk.GetChapter(c.Request.Context(), caller(c).UserID, chapterID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ch)
}

func (h *Handler) updateChapter(c *gin.Context) {
	chapterID, ok := pathID(c, "id", id.PrefixChapter)
	if !ok {
		return
	}
	var u chapter.Update
	if err := c.ShouldBindJSON(&u); err != nil {
		badRequest(c, "body", err.Error())
		return
	}
	ch, err := h.desk.UpdateChapter(c.Request.Context(), caller(c).UserID, chapterID, u)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ch)
}

func (h *Handler) deleteChapter(c *gin.Context) {
	chapterID, ok := pathID(c, "id", id.PrefixChapter)
	if !ok {
		return
	}
	if err := h.desk.DeleteChapter(c.Request.Context(), caller(c).UserID, chapterID); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) addFeedback(c *gin.Context) {
	chapterID, ok := pathID(c, "id", id.PrefixChapter)
	if !ok {
		return
	}
	var req struct {
		Message string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "body", err.Error())
		return
	}
	fb, err := h.desk.AddFeedback(c.Request.Context(), caller(c).UserID, chapterID, req.Message)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, fb)
}

func (h *Handler) attachFile(c *gin.Context) {
	chapterID, ok := pathID(c, "id", id.PrefixChapter)
	if !ok {
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "file", "multipart field \"file\" is required")
		return
	}
	f, err := fh.Open()
	if err != nil {
		h.fail(c, err)
		return
	}
	defer f.Close()

	att, err := h.desk.AttachFile(c.Request.Context(), caller(c).UserID, chapterID,
		fh.Filename, fh.Header.Get("Content-Type"), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, att)
}

func (h *Handler) downloadFile(c *gin.Context) {
	chapterID, ok := pathID(c, "id", id.PrefixChapter)
	if !ok {
		return
	}
	fileID, ok := pathID(c, "fileID", id.PrefixAttachment)
	if !ok {
		return
	}
	att, rc, err := h.desk.OpenAttachment(c.Request.Context(), caller(c).UserID, chapterID, fileID)
	if err != nil {
		h.fail(c, err)
		return
	}
	defer rc.Close()

	contentType := att.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": att.Name})
	if disposition == "" {
		disposition = "attachment"
	}
	c.DataFromReader(http.StatusOK, att.Size, contentType, rc, map[string]string{
		"Content-Disposition": disposition,
	})
}

func (h *Handler) assignWriter(c *gin.Context) {
	if !caller(c).IsAdmin() {
		c.AbortWithStatusJSON(http.StatusForbidden, ErrorBody{Error: ErrorDetail{
			Code:    CodeForbidden,
			Message: "only administrators assign writers",
		}})
		return
	}
	chapterID, ok := pathID(c, "id", id.PrefixChapter)
	if !ok {
		return
	}
	var req struct {
		WriterID string `json:"writer_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "body", err.Error())
		return
	}
	ch, err := h.desk.AssignWriter(c.Request.Context(), chapterID, req.WriterID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ch)
}

// ──────────────────────────────────────────────────
// Payments
// ──────────────────────────────────────────────────

func (h *Handler) createPayment(c *gin.Context) {
	var req struct {
		ChapterID     string         `json:"chapter_id"`
		PaymentMethod payment.Method `json:"payment_method"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "body", err.Error())
		return
	}
	chapterID, err := id.ParseChapterID(req.ChapterID)
	if err != nil {
		badRequest(c, "chapter_id", err.Error())
		return
	}
	p, err := h.desk.InitiatePayment(c.Request.Context(), caller(c).UserID, chapterID, req.PaymentMethod)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *Handler) listPayments(c *gin.Context) {
	limit, offset, ok := paging(c)
	if !ok {
		return
	}
	chapterID, err := id.ParseOptional(c.Query("chapter_id"), id.PrefixChapter)
	if err != nil {
		badRequest(c, "chapter_id", err.Error())
		return
	}
	opts := payment.ListOpts{
		ChapterID: chapterID,
		Status:    payment.Status(c.Query("status")),
		Limit:     limit,
		Offset:    offset,
	}
	list, err := h.desk.ListPayments(c.Request.Context(), caller(c).UserID, opts)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": list})
}

func (h *Handler) getPayment(c *gin.Context) {
	paymentID, ok := pathID(c, "id", id.PrefixPayment)
	if !ok {
		return
	}
	p, err := h.desk.GetPayment(c.Request.Context(), caller(c).UserID, paymentID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) transitionPayment(c *gin.Context) {
	paymentID, ok := pathID(c, "id", id.PrefixPayment)
	if !ok {
		return
	}
	var req struct {
		Status        payment.Status `json:"status"`
		TransactionID string         `json:"transaction_id"`
		Reason        string         `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "body", err.Error())
		return
	}
	res, err := h.desk.TransitionPayment(c.Request.Context(), thesisdesk.TransitionRequest{
		PaymentID:     paymentID,
		OwnerID:       caller(c).UserID,
		Status:        req.Status,
		TransactionID: req.TransactionID,
		Reason:        req.Reason,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) deletePayment(c *gin.Context) {
	paymentID, ok := pathID(c, "id", id.PrefixPayment)
	if !ok {
		return
	}
	if err := h.desk.DeletePayment(c.Request.Context(), caller(c).UserID, paymentID); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ──────────────────────────────────────────────────
// Earnings
// ──────────────────────────────────────────────────

// writerScope lets writers read their own earnings and administrators read
// anyone's. Other callers see a 404 like any record they do not own.
func (h *Handler) writerScope(c *gin.Context) (string, bool) {
	writerID := c.Param("writerID")
	who := caller(c)
	if who.UserID != writerID && !who.IsAdmin() {
		c.AbortWithStatusJSON(http.StatusNotFound, ErrorBody{Error: ErrorDetail{
			Code:    CodeNotFound,
			Message: "writer not found",
		}})
		return "", false
	}
	return writerID, true
}

func (h *Handler) earningsSummary(c *gin.Context) {
	writerID, ok := h.writerScope(c)
	if !ok {
		return
	}
	r, err := parseRange(c.Query("from"), c.Query("to"))
	if err != nil {
		badRequest(c, "range", err.Error())
		return
	}
	s, err := h.desk.EarningsSummary(c.Request.Context(), writerID, r)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) checkPayout(c *gin.Context) {
	writerID, ok := h.writerScope(c)
	if !ok {
		return
	}
	var req struct {
		// Amount is in minor units of the desk currency.
		Amount int64 `json:"amount"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "body", err.Error())
		return
	}

	amount := thesisdesk.Money{Amount: req.Amount, Currency: h.desk.Currency()}
	s, err := h.desk.CheckPayout(c.Request.Context(), writerID, amount)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"approved":       true,
		"amount":         amount,
		"pending_payout": s.PendingPayout,
	})
}

// ──────────────────────────────────────────────────
// Decoding helpers
// ──────────────────────────────────────────────────

func pathID(c *gin.Context, param string, prefix id.Prefix) (id.ID, bool) {
	v, err := id.ParseWithPrefix(c.Param(param), prefix)
	if err != nil {
		// Malformed IDs name nothing that exists.
		notFound(c, param)
		return id.Nil, false
	}
	return v, true
}

func notFound(c *gin.Context, what string) {
	c.AbortWithStatusJSON(http.StatusNotFound, ErrorBody{Error: ErrorDetail{
		Code:    CodeNotFound,
		Message: what + " not found",
	}})
}

func paging(c *gin.Context) (limit, offset int, ok bool) {
	var err error
	if v := c.Query("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			badRequest(c, "limit", "limit must be a non-negative integer")
			return 0, 0, false
		}
	}
	if v := c.Query("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil || offset < 0 {
			badRequest(c, "offset", "offset must be a non-negative integer")
			return 0, 0, false
		}
	}
	return limit, offset, true
}

// parseRange accepts RFC 3339 timestamps or plain dates.
func parseRange(from, to string) (earnings.Range, error) {
	var r earnings.Range
	var err error
	if r.From, err = parseBound(from); err != nil {
		return r, err
	}
	if r.To, err = parseBound(to); err != nil {
		return r, err
	}
	return r, nil
}

func parseBound(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, errors.New("dates must be RFC 3339 or YYYY-MM-DD")
	}
	return t, nil
}
