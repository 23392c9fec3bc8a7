package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesisdesk/thesisdesk"
	"github.com/thesisdesk/thesisdesk/api"
	"github.com/thesisdesk/thesisdesk/ratelimit"
	"github.com/thesisdesk/thesisdesk/store/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type harness struct {
	t      *testing.T
	router http.Handler
}

func newHarness(t *testing.T, opts ...api.Option) *harness {
	t.Helper()
	desk := thesisdesk.New(memory.New(), thesisdesk.WithPricePerPage(thesisdesk.KES(400)))
	require.NoError(t, desk.Start(context.Background()))
	t.Cleanup(func() { _ = desk.Stop() })

	h := api.New(desk, api.HeaderIdentity(), opts...)
	return &harness{t: t, router: h.Router("/v1")}
}

func (h *harness) do(method, path, user string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-User-ID", user)
		if user == "admin" {
			req.Header.Set("X-User-Role", string(api.RoleAdmin))
		}
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type chapterJSON struct {
	ID        string `json:"id"`
	IsPaid    bool   `json:"is_paid"`
	Status    string `json:"status"`
	WordCount int    `json:"word_count"`
	Pricing   struct {
		TotalPrice struct {
			Amount int64 `json:"amount"`
		} `json:"total_price"`
	} `json:"pricing"`
}

type paymentJSON struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id"`
}

func (h *harness) createChapter(user string, number int) chapterJSON {
	h.t.Helper()
	rec := h.do(http.MethodPost, "/v1/chapters", user, map[string]any{
		"title":             "Methodology",
		"content":           "We sampled forty schools",
		"chapter_number":    number,
		"target_word_count": 2000,
		"level":             "phd",
		"work_type":         "statistics",
		"urgency":           "urgent",
	})
	require.Equal(h.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[chapterJSON](h.t, rec)
}

func TestQuoteIsPublic(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/v1/quote", "", map[string]any{
		"target_word_count": 2000,
		"level":             "phd",
		"work_type":         "statistics",
		"urgency":           "urgent",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	type quoteJSON struct {
		Pages      int64 `json:"pages"`
		TotalPrice struct {
			Amount int64 `json:"amount"`
		} `json:"total_price"`
	}
	snap := decode[quoteJSON](t, rec)
	assert.Equal(t, int64(8), snap.Pages)
	assert.Equal(t, int64(8736), snap.TotalPrice.Amount)

	rec = h.do(http.MethodPost, "/v1/quote", "", map[string]any{"target_word_count": -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[api.ErrorBody](t, rec)
	assert.Equal(t, api.CodeBadRequest, body.Error.Code)
	assert.Equal(t, "quote", body.Error.Field)
}

func TestAuthRequired(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/v1/chapters", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChapterLifecycle(t *testing.T) {
	h := newHarness(t)
	ch := h.createChapter("alice", 1)
	assert.Equal(t, int64(8736), ch.Pricing.TotalPrice.Amount)
	assert.Equal(t, 4, ch.WordCount)

	rec := h.do(http.MethodGet, "/v1/chapters/"+ch.ID, "bob", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(http.MethodGet, "/v1/chapters/not-an-id", "alice", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(http.MethodPost, "/v1/chapters", "alice", map[string]any{
		"title": "Dup", "chapter_number": 1, "target_word_count": 250,
		"level": "masters", "work_type": "coursework", "urgency": "normal",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = h.do(http.MethodPatch, "/v1/chapters/"+ch.ID, "alice", map[string]any{"urgency": "normal"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int64(5824), decode[chapterJSON](t, rec).Pricing.TotalPrice.Amount)

	rec = h.do(http.MethodPost, "/v1/chapters/"+ch.ID+"/feedback", "alice", map[string]any{"message": "Add a table"})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = h.do(http.MethodGet, "/v1/chapters", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Chapters []chapterJSON `json:"chapters"`
	}](t, rec)
	assert.Len(t, list.Chapters, 1)

	rec = h.do(http.MethodDelete, "/v1/chapters/"+ch.ID, "alice", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestPaymentFlow(t *testing.T) {
	h := newHarness(t)
	ch := h.createChapter("alice", 1)

	rec := h.do(http.MethodPost, "/v1/payments", "alice", map[string]any{
		"chapter_id":     ch.ID,
		"payment_method": "mpesa",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	p := decode[paymentJSON](t, rec)
	assert.Equal(t, "pending", p.Status)

	rec = h.do(http.MethodPost, "/v1/payments/"+p.ID+"/transition", "alice", map[string]any{"status": "completed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[struct {
		Payment paymentJSON `json:"payment"`
		Chapter chapterJSON `json:"chapter"`
	}](t, rec)
	assert.Equal(t, "completed", res.Payment.Status)
	assert.NotEmpty(t, res.Payment.TransactionID)
	assert.True(t, res.Chapter.IsPaid)
	assert.Equal(t, "in_progress", res.Chapter.Status)

	rec = h.do(http.MethodDelete, "/v1/payments/"+p.ID, "alice", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = h.do(http.MethodPost, "/v1/payments/"+p.ID+"/transition", "alice", map[string]any{"status": "pending"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = h.do(http.MethodPost, "/v1/payments", "alice", map[string]any{
		"chapter_id":     ch.ID,
		"payment_method": "card",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = h.do(http.MethodDelete, "/v1/chapters/"+ch.ID, "alice", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = h.do(http.MethodGet, "/v1/payments/"+p.ID, "bob", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(http.MethodGet, "/v1/payments?chapter_id="+ch.ID, "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Payments []paymentJSON `json:"payments"`
	}](t, rec)
	assert.Len(t, list.Payments, 1)
}

func TestAttachmentRoundTrip(t *testing.T) {
	h := newHarness(t)
	ch := h.createChapter("alice", 1)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "survey.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte("q1,q2\n1,2\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/chapters/"+ch.ID+"/files", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-User-ID", "alice")
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	att := decode[struct {
		ID   string `json:"id"`
		Size int64  `json:"size"`
	}](t, rec)
	assert.Equal(t, int64(10), att.Size)

	rec = h.do(http.MethodGet, "/v1/chapters/"+ch.ID+"/files/"+att.ID, "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "q1,q2\n1,2\n", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "survey.csv")
}

func TestAttachmentDispositionQuotesName(t *testing.T) {
	h := newHarness(t)
	ch := h.createChapter("alice", 1)
	name := `notes "final"; size=0.csv`

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/chapters/"+ch.ID+"/files", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-User-ID", "alice")
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	att := decode[struct {
		ID string `json:"id"`
	}](t, rec)

	rec = h.do(http.MethodGet, "/v1/chapters/"+ch.ID+"/files/"+att.ID, "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	disposition, params, err := mime.ParseMediaType(rec.Header().Get("Content-Disposition"))
	require.NoError(t, err)
	assert.Equal(t, "attachment", disposition)
	assert.Equal(t, map[string]string{"filename": name}, params)
}

func TestEarningsScope(t *testing.T) {
	h := newHarness(t)
	ch := h.createChapter("alice", 1)

	rec := h.do(http.MethodPut, "/v1/chapters/"+ch.ID+"/writer", "alice", map[string]any{"writer_id": "wendy"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(http.MethodPut, "/v1/chapters/"+ch.ID+"/writer", "admin", map[string]any{"writer_id": "wendy"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(http.MethodPatch, "/v1/chapters/"+ch.ID, "wendy", map[string]any{"status": "completed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(http.MethodGet, "/v1/earnings/wendy", "wendy", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	s := decode[struct {
		ChapterCount  int `json:"chapter_count"`
		TotalEarnings struct {
			Amount int64 `json:"amount"`
		} `json:"total_earnings"`
	}](t, rec)
	assert.Equal(t, 1, s.ChapterCount)
	// 70% of 8736, rounded half up
	assert.Equal(t, int64(6115), s.TotalEarnings.Amount)

	rec = h.do(http.MethodGet, "/v1/earnings/wendy", "alice", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(http.MethodGet, "/v1/earnings/wendy?from=2020-01-01&to="+time.Now().AddDate(1, 0, 0).Format(time.DateOnly), "admin", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(http.MethodGet, "/v1/earnings/wendy?from=yesterday", "wendy", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodPost, "/v1/earnings/wendy/payout-check", "wendy", map[string]any{"amount": 6000})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(http.MethodPost, "/v1/earnings/wendy/payout-check", "wendy", map[string]any{"amount": 7000})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestRateLimit(t *testing.T) {
	l, err := ratelimit.New(ratelimit.Config{RequestsPerSecond: 0.001, Burst: 2})
	require.NoError(t, err)
	h := newHarness(t, api.WithLimiter(l))

	for i := 0; i < 2; i++ {
		rec := h.do(http.MethodGet, "/v1/chapters", "alice", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := h.do(http.MethodGet, "/v1/chapters", "alice", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, api.CodeRateLimited, decode[api.ErrorBody](t, rec).Error.Code)

	rec = h.do(http.MethodGet, "/v1/chapters", "bob", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
