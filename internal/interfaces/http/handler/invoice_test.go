package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lexdesk/backend/internal/application/billing"
	"github.com/lexdesk/backend/internal/domain/shared"
	"github.com/lexdesk/backend/internal/infrastructure/logger"
	"github.com/lexdesk/backend/internal/interfaces/http/dto"
	"github.com/lexdesk/backend/internal/interfaces/http/middleware"
	"github.com/lexdesk/backend/internal/interfaces/http/router"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testUploadLimit = 1 << 10

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

func setupInvoiceRouter(svc InvoiceService) *gin.Engine {
	engine := gin.New()
	engine.Use(logger.GinMiddleware(zap.NewNop()))

	r := router.NewRouter(engine)
	r.Register(InvoiceRoutes(NewInvoiceHandler(svc), middleware.BodyLimit(testUploadLimit)))
	r.Register(ExchangeRateRoutes(NewExchangeRateHandler(svc)))
	r.Setup()
	return engine
}

func doJSON(engine *gin.Engine, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func sampleInvoice(id uuid.UUID) *billing.InvoiceResponse {
	return &billing.InvoiceResponse{
		ID:            id,
		InvoiceNumber: "M001AA",
		Currency:      "INR",
		FinalAmount:   decimal.RequireFromString("1000.00"),
		Status:        "draft",
		PaymentStatus: "new",
	}
}

func TestInvoiceHandler_Create(t *testing.T) {
	svc := new(mockInvoiceService)
	engine := setupInvoiceRouter(svc)
	clientID, matterID := uuid.New(), uuid.New()
	id := uuid.New()

	svc.On("CreateInvoice", mock.Anything, mock.MatchedBy(func(req billing.CreateInvoiceRequest) bool {
		return req.ClientID == clientID && len(req.MatterIDs) == 1 && req.MatterIDs[0] == matterID &&
			req.CreatedBy == "asha" && req.IncludeUnbilled
	})).Return(sampleInvoice(id), nil)

	body := `{"client_id":"` + clientID.String() + `","matter_ids":["` + matterID.String() + `"],"include_unbilled":true,"created_by":"spoofed"}`
	w := doJSON(engine, http.MethodPost, "/api/v1/invoices", body, logger.ActorHeader, "asha")

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := decode(t, w)
	assert.True(t, resp.Success)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "M001AA", data["invoice_number"])
	assert.Equal(t, "1000", data["final_amount"])
	svc.AssertExpectations(t)
}

func TestInvoiceHandler_Create_KeepsBodyActorWithoutHeader(t *testing.T) {
	svc := new(mockInvoiceService)
	engine := setupInvoiceRouter(svc)

	svc.On("CreateInvoice", mock.Anything, mock.MatchedBy(func(req billing.CreateInvoiceRequest) bool {
		return req.CreatedBy == "clerk"
	})).Return(sampleInvoice(uuid.New()), nil)

	body := `{"client_id":"` + uuid.NewString() + `","matter_ids":["` + uuid.NewString() + `"],"created_by":"clerk"}`
	w := doJSON(engine, http.MethodPost, "/api/v1/invoices", body)
	assert.Equal(t, http.StatusCreated, w.Code)
	svc.AssertExpectations(t)
}

func TestInvoiceHandler_Create_ValidationErrors(t *testing.T) {
	svc := new(mockInvoiceService)
	engine := setupInvoiceRouter(svc)

	w := doJSON(engine, http.MethodPost, "/api/v1/invoices", `{"matter_ids":[],"currency":"RUPEES"}`)

	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decode(t, w)
	assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)

	fields := map[string]bool{}
	for _, f := range resp.Error.Fields {
		fields[f.Field] = true
	}
	assert.True(t, fields["client_id"])
	assert.True(t, fields["matter_ids"])
	assert.True(t, fields["currency"])
	svc.AssertNotCalled(t, "CreateInvoice", mock.Anything, mock.Anything)
}

func TestInvoiceHandler_Create_AlreadyInvoiced(t *testing.T) {
	svc := new(mockInvoiceService)
	engine := setupInvoiceRouter(svc)

	svc.On("CreateInvoice", mock.Anything, mock.Anything).
		Return(nil, shared.NewDomainError(shared.CodeAlreadyInvoiced, "Timesheet is already invoiced").WithDetail("invoice_number", "D027AA"))

	body := `{"client_id":"` + uuid.NewString() + `","matter_ids":["` + uuid.NewString() + `"]}`
	w := doJSON(engine, http.MethodPost, "/api/v1/invoices", body, logger.RequestIDHeader, "req-1")

	require.Equal(t, http.StatusConflict, w.Code)
	resp := decode(t, w)
	assert.Equal(t, shared.CodeAlreadyInvoiced, resp.Error.Code)
	assert.Equal(t, "D027AA", resp.Error.Details["invoice_number"])
	assert.Equal(t, "req-1", resp.Error.RequestID)
}

func TestInvoiceHandler_Get(t *testing.T) {
	svc := new(mockInvoiceService)
	engine := setupInvoiceRouter(svc)
	id := uuid.New()

	svc.On("GetInvoice", mock.Anything, id).Return(sampleInvoice(id), nil)

	w := doJSON(engine, http.MethodGet, "/api/v1/invoices/"+id.String(), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id.String(), decode(t, w).Data.(map[string]any)["id"])
}

func TestInvoiceHandler_Get_Errors(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"malformed id", "/api/v1/invoices/not-a-uuid", nil, http.StatusBadRequest, dto.ErrCodeValidation},
		{"not found", "", shared.NewNotFoundError("invoice", "x"), http.StatusNotFound, shared.CodeNotFound},
		{"wrapped domain error", "", errors.Join(errors.New("load"), shared.ErrConcurrencyConflict), http.StatusConflict, shared.CodeConcurrencyConflict},
		{"unexpected error", "", errors.New("connection reset"), http.StatusInternalServerError, dto.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(mockInvoiceService)
			engine := setupInvoiceRouter(svc)
			path := tt.path
			if path == "" {
				path = "/api/v1/invoices/" + uuid.NewString()
				svc.On("GetInvoice", mock.Anything, mock.Anything).Return(nil, tt.err)
			}

			w := doJSON(engine, http.MethodGet, path, "")
			require.Equal(t, tt.wantStatus, w.Code)
			resp := decode(t, w)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.NotContains(t, resp.Error.Message, "connection reset")
		})
	}
}

func TestInvoiceHandler_List(t *testing.T) {
	svc := new(mockInvoiceService)
	engine := setupInvoiceRouter(svc)
	clientID := uuid.New()

	page := &shared.Paginated[billing.InvoiceListItemResponse]{
		Items:    []billing.InvoiceListItemResponse{{ID: uuid.New(), InvoiceNumber: "M001AA"}},
		Total:    41,
		Page:     2,
		PageSize: 20,
	}
	svc.On("ListInvoices", mock.Anything, mock.MatchedBy(func(f billing.InvoiceListFilter) bool {
		return f.ClientID != nil && *f.ClientID == clientID && f.MatterID == nil &&
			f.Status == "finalized" && f.TopLevelOnly && f.Page == 2
	})).Return(page, nil)

	w := doJSON(engine, http.MethodGet,
		"/api/v1/invoices?client_id="+clientID.String()+"&status=finalized&top_level_only=true&page=2", "")

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode(t, w)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, int64(41), resp.Meta.Total)
	assert.Equal(t, 3, resp.Meta.TotalPages)
	assert.Len(t, resp.Data.([]any), 1)
	svc.AssertExpectations(t)
}

func TestInvoiceHandler_List_RejectsBadFilters(t *testing.T) {
	svc := new(mockInvoiceService)
	engine := setupInvoiceRouter(svc)

	assert.Equal(t, http.StatusBadRequest, doJSON(engine, http.MethodGet, "/api/v1/invoices?matter_id=42", "").Code)
	assert.Equal(t, http.StatusBadRequest, doJSON(engine, http.MethodGet, "/api/v1/invoices?status=void", "").Code)
	assert.Equal(t, http.StatusBadRequest, doJSON(engine, http.MethodGet, "/api/v1/invoices?page_size=500", "").Code)
	svc.AssertNotCalled(t, "ListInvoices", mock.Anything, mock.Anything)
}

func TestInvoiceHandler_Update(t *testing.T) {
	svc := new(mockInvoiceService)
	engine := setupInvoiceRouter(svc)
	id := uuid.New()

	svc.On("UpdateDraftInvoice", mock.Anything, id, mock.MatchedBy(func(req billing.UpdateInvoiceRequest) bool {
		return req.Notes != nil && *req.Notes == "revised" && req.Currency == nil
	})).Return(sampleInvoice(id), nil)

	w := doJSON(engine, http.MethodPut, "/api/v1/invoices/"+id.String(), `{"notes":"revised"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestInvoiceHandler_Update_NotDraft(t *testing.T) {
	svc := new(mockInvoiceService)
	engine := setupInvoiceRouter(svc)

	svc.On("UpdateDraftInvoice", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, shared.NewInvalidStateError("Only draft invoices can be edited"))

	w := doJSON(engine, http.MethodPut, "/api/v1/invoices/"+uuid.NewString(), `{"notes":"x"}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, shared.CodeInvalidState, decode(t, w).Error.Code)
}

func TestInvoiceHandler_Delete(t *testing.T) {
	svc := new(mockInvoiceService)
	engine := setupInvoiceRouter(svc)
	id := uuid.New()

	svc.On("DeleteInvoice", mock.Anything, id).Return(nil)

	w := doJSON(engine, http.MethodDelete, "/api/v1/invoices/"+id.String(), "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestInvoiceHandler_Finalize(t *testing.T) {
	svc := new(mockInvoiceService)
	engine := setupInvoiceRouter(svc)
	id, partner := uuid.New(), uuid.New()

	finalized := sampleInvoice(id)
	finalized.Status = "finalized"
	svc.On("FinalizeInvoice", mock.Anything, id, mock.MatchedBy(func(req billing.FinalizeInvoiceRequest) bool {
		return len(req.PartnerShares) == 1 && req.PartnerShares[0].PartnerID == partner &&
			req.PartnerShares[0].Percentage.Equal(decimal.NewFromInt(100)) && len(req.Splits) == 2
	})).Return(finalized, nil)

	body := `{"partner_shares":[{"partner_id":"` + partner.String() + `","percentage":"100"}],` +
		`"splits":[{"client_id":"` + uuid.NewString() + `","percentage":60},{"client_id":"` + uuid.NewString() + `","percentage":40}]}`
	w := doJSON(engine, http.MethodPost, "/api/v1/invoices/"+id.String()+"/finalize", body)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "finalized", decode(t, w).Data.(map[string]any)["status"])
	svc.AssertExpectations(t)
}

func TestInvoiceHandler_Finalize_Errors(t *testing.T) {
	t.Run("partner shares are required", func(t *testing.T) {
		svc := new(mockInvoiceService)
		engine := setupInvoiceRouter(svc)

		w := doJSON(engine, http.MethodPost, "/api/v1/invoices/"+uuid.NewString()+"/finalize", `{"partner_shares":[]}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		svc.AssertNotCalled(t, "FinalizeInvoice", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("share mismatch", func(t *testing.T) {
		svc := new(mockInvoiceService)
		engine := setupInvoiceRouter(svc)
		svc.On("FinalizeInvoice", mock.Anything, mock.Anything, mock.Anything).Return(nil, shared.ErrShareMismatch)

		body := `{"partner_shares":[{"partner_id":"` + uuid.NewString() + `","percentage":"90"}]}`
		w := doJSON(engine, http.MethodPost, "/api/v1/invoices/"+uuid.NewString()+"/finalize", body)
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, shared.CodeShareMismatch, decode(t, w).Error.Code)
	})

	t.Run("missing exchange rate", func(t *testing.T) {
		svc := new(mockInvoiceService)
		engine := setupInvoiceRouter(svc)
		svc.On("FinalizeInvoice", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, shared.ErrMissingExchangeRate.WithDetail("currency", "USD"))

		body := `{"partner_shares":[{"partner_id":"` + uuid.NewString() + `","percentage":"100"}]}`
		w := doJSON(engine, http.MethodPost, "/api/v1/invoices/"+uuid.NewString()+"/finalize", body)
		require.Equal(t, http.StatusBadRequest, w.Code)
		resp := decode(t, w)
		assert.Equal(t, shared.CodeMissingExchangeRate, resp.Error.Code)
		assert.Equal(t, "USD", resp.Error.Details["currency"])
	})
}

func TestInvoiceHandler_Document(t *testing.T) {
	svc := new(mockInvoiceService)
	engine := setupInvoiceRouter(svc)
	id := uuid.New()

	svc.On("RenderInvoiceDocument", mock.Anything, id).Return(&billing.RenderedDocument{
		Content:     []byte("%PDF-1.7 invoice"),
		ContentType: "application/pdf",
		FileName:    "M001AA.pdf",
	}, nil)

	w := doJSON(engine, http.MethodGet, "/api/v1/invoices/"+id.String()+"/document", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, `inline; filename="M001AA.pdf"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "%PDF-1.7 invoice", w.Body.String())

	w = doJSON(engine, http.MethodGet, "/api/v1/invoices/"+id.String()+"/document?download=true", "")
	assert.Equal(t, `attachment; filename="M001AA.pdf"`, w.Header().Get("Content-Disposition"))
}

func multipartUpload(t *testing.T, contentType string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="signed.pdf"`)
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestInvoiceHandler_Upload(t *testing.T) {
	t.Run("stores the uploaded file", func(t *testing.T) {
		svc := new(mockInvoiceService)
		engine := setupInvoiceRouter(svc)
		id := uuid.New()

		uploaded := sampleInvoice(id)
		uploaded.Status = "invoice_uploaded"
		svc.On("UploadSignedInvoice", mock.Anything, id, billing.UploadSignedInvoiceRequest{
			FileName:    "signed.pdf",
			ContentType: "application/pdf",
			Content:     []byte("%PDF-1.4 signed"),
		}).Return(uploaded, nil)

		body, ct := multipartUpload(t, "application/pdf", []byte("%PDF-1.4 signed"))
		req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices/"+id.String()+"/upload", body)
		req.Header.Set("Content-Type", ct)
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "invoice_uploaded", decode(t, w).Data.(map[string]any)["status"])
		svc.AssertExpectations(t)
	})

	t.Run("sniffs a missing content type", func(t *testing.T) {
		svc := new(mockInvoiceService)
		engine := setupInvoiceRouter(svc)

		svc.On("UploadSignedInvoice", mock.Anything, mock.Anything, mock.MatchedBy(func(req billing.UploadSignedInvoiceRequest) bool {
			return req.ContentType == "application/pdf"
		})).Return(sampleInvoice(uuid.New()), nil)

		body, ct := multipartUpload(t, "", []byte("%PDF-1.4 signed"))
		req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices/"+uuid.NewString()+"/upload", body)
		req.Header.Set("Content-Type", ct)
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("without a file stores the generated document", func(t *testing.T) {
		svc := new(mockInvoiceService)
		engine := setupInvoiceRouter(svc)
		id := uuid.New()

		svc.On("UploadSignedInvoice", mock.Anything, id, billing.UploadSignedInvoiceRequest{}).Return(sampleInvoice(id), nil)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices/"+id.String()+"/upload", nil)
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("rejects oversized uploads", func(t *testing.T) {
		svc := new(mockInvoiceService)
		engine := setupInvoiceRouter(svc)

		body, ct := multipartUpload(t, "application/pdf", bytes.Repeat([]byte("x"), 2*testUploadLimit))
		req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices/"+uuid.NewString()+"/upload", body)
		req.Header.Set("Content-Type", ct)
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)

		require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Equal(t, dto.ErrCodeRequestTooLarge, decode(t, w).Error.Code)
		svc.AssertNotCalled(t, "UploadSignedInvoice", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("already uploaded", func(t *testing.T) {
		svc := new(mockInvoiceService)
		engine := setupInvoiceRouter(svc)
		svc.On("UploadSignedInvoice", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, shared.NewInvalidStateError("Invoice is already uploaded"))

		req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices/"+uuid.NewString()+"/upload", nil)
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})
}

func TestInvoiceHandler_RecordPayment(t *testing.T) {
	svc := new(mockInvoiceService)
	engine := setupInvoiceRouter(svc)
	id := uuid.New()

	svc.On("RecordPayment", mock.Anything, id, mock.MatchedBy(func(req billing.RecordPaymentRequest) bool {
		return req.Amount.Equal(decimal.RequireFromString("400.50")) && req.Method == "upi" && req.RecordedBy == "asha"
	})).Return(&billing.RecordPaymentResponse{
		Payment: billing.PaymentResponse{ID: uuid.New(), InvoiceID: id, Amount: decimal.RequireFromString("400.50")},
		Invoice: *sampleInvoice(id),
	}, nil)

	w := doJSON(engine, http.MethodPost, "/api/v1/invoices/"+id.String()+"/payments",
		`{"amount":"400.50","method":"upi","payment_date":"2026-03-01"}`, logger.ActorHeader, "asha")

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	data := decode(t, w).Data.(map[string]any)
	assert.Equal(t, "400.5", data["payment"].(map[string]any)["amount"])
	svc.AssertExpectations(t)
}

func TestInvoiceHandler_RecordPayment_Errors(t *testing.T) {
	t.Run("unknown method", func(t *testing.T) {
		svc := new(mockInvoiceService)
		engine := setupInvoiceRouter(svc)

		w := doJSON(engine, http.MethodPost, "/api/v1/invoices/"+uuid.NewString()+"/payments", `{"amount":"1","method":"barter"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("exceeds outstanding", func(t *testing.T) {
		svc := new(mockInvoiceService)
		engine := setupInvoiceRouter(svc)
		svc.On("RecordPayment", mock.Anything, mock.Anything, mock.Anything).Return(nil, shared.ErrExceedsOutstanding)

		w := doJSON(engine, http.MethodPost, "/api/v1/invoices/"+uuid.NewString()+"/payments", `{"amount":"5000"}`)
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, shared.CodeExceedsOutstanding, decode(t, w).Error.Code)
	})
}

func TestInvoiceHandler_ListPayments(t *testing.T) {
	svc := new(mockInvoiceService)
	engine := setupInvoiceRouter(svc)
	id := uuid.New()

	svc.On("ListPayments", mock.Anything, id).Return(nil, nil)

	w := doJSON(engine, http.MethodGet, "/api/v1/invoices/"+id.String()+"/payments", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"data":[]}`, w.Body.String())
}

func TestInvoiceHandler_DetectCurrencies(t *testing.T) {
	svc := new(mockInvoiceService)
	engine := setupInvoiceRouter(svc)
	matter := uuid.New()

	svc.On("DetectCurrencies", mock.Anything, mock.MatchedBy(func(req billing.DetectCurrenciesRequest) bool {
		return len(req.MatterIDs) == 1 && req.MatterIDs[0] == matter && req.Currency == "INR"
	})).Return(&billing.DetectCurrenciesResponse{
		Currency:      "INR",
		Currencies:    []string{"INR", "USD"},
		RequiresRates: []string{"USD"},
	}, nil)

	w := doJSON(engine, http.MethodPost, "/api/v1/invoices/detect-currencies",
		`{"matter_ids":["`+matter.String()+`"],"currency":"INR"}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := decode(t, w).Data.(map[string]any)
	assert.Equal(t, []any{"USD"}, data["requires_rates"])
	svc.AssertExpectations(t)
}
