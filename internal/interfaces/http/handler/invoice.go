package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lexdesk/backend/internal/application/billing"
	"github.com/lexdesk/backend/internal/domain/shared"
	"github.com/lexdesk/backend/internal/interfaces/http/dto"
)

// signedFileField is the multipart field carrying the signed invoice
const signedFileField = "file"

// InvoiceService is the slice of the billing service the HTTP layer drives
type InvoiceService interface {
	CreateInvoice(ctx context.Context, req billing.CreateInvoiceRequest) (*billing.InvoiceResponse, error)
	UpdateDraftInvoice(ctx context.Context, id uuid.UUID, req billing.UpdateInvoiceRequest) (*billing.InvoiceResponse, error)
	FinalizeInvoice(ctx context.Context, id uuid.UUID, req billing.FinalizeInvoiceRequest) (*billing.InvoiceResponse, error)
	RenderInvoiceDocument(ctx context.Context, id uuid.UUID) (*billing.RenderedDocument, error)
	UploadSignedInvoice(ctx context.Context, id uuid.UUID, req billing.UploadSignedInvoiceRequest) (*billing.InvoiceResponse, error)
	RecordPayment(ctx context.Context, id uuid.UUID, req billing.RecordPaymentRequest) (*billing.RecordPaymentResponse, error)
	ListPayments(ctx context.Context, id uuid.UUID) ([]billing.PaymentResponse, error)
	GetInvoice(ctx context.Context, id uuid.UUID) (*billing.InvoiceResponse, error)
	ListInvoices(ctx context.Context, filter billing.InvoiceListFilter) (*shared.Paginated[billing.InvoiceListItemResponse], error)
	DetectCurrencies(ctx context.Context, req billing.DetectCurrenciesRequest) (*billing.DetectCurrenciesResponse, error)
	SuggestExchangeRates(ctx context.Context, target string, sources []string) (*billing.SuggestRatesResponse, error)
	DeleteInvoice(ctx context.Context, id uuid.UUID) error
}

// InvoiceHandler handles the invoice lifecycle endpoints
type InvoiceHandler struct {
	BaseHandler
	service InvoiceService
}

// NewInvoiceHandler creates a new InvoiceHandler
func NewInvoiceHandler(service InvoiceService) *InvoiceHandler {
	return &InvoiceHandler{service: service}
}

// Create godoc
// @Summary      Create a draft invoice
// @Description  Creates a draft from the client's unbilled timesheets and expenses. X-Actor overrides created_by.
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Param        request body billing.CreateInvoiceRequest true "Draft invoice"
// @Success      201 {object} dto.Response{data=billing.InvoiceResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /invoices [post]
func (h *InvoiceHandler) Create(c *gin.Context) {
	var req billing.CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	if by := actor(c); by != "" {
		req.CreatedBy = by
	}

	invoice, err := h.service.CreateInvoice(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, invoice)
}

// List godoc
// @Summary      List invoices
// @Description  Paginated invoice list with derived payment status
// @Tags         invoices
// @Produce      json
// @Param        search query string false "Matches invoice number or client name"
// @Param        client_id query string false "Client ID" format(uuid)
// @Param        matter_id query string false "Matter ID" format(uuid)
// @Param        status query string false "Lifecycle status" Enums(draft, finalized, invoice_uploaded)
// @Param        top_level_only query bool false "Hide split children"
// @Param        date_from query string false "Issued on or after (YYYY-MM-DD)"
// @Param        date_to query string false "Issued on or before (YYYY-MM-DD)"
// @Param        page query int false "Page number" minimum(1)
// @Param        page_size query int false "Page size" minimum(1) maximum(100)
// @Param        order_by query string false "Sort field"
// @Param        order_dir query string false "Sort direction" Enums(asc, desc)
// @Success      200 {object} dto.Response{data=[]billing.InvoiceListItemResponse,meta=dto.Meta}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /invoices [get]
func (h *InvoiceHandler) List(c *gin.Context) {
	var filter billing.InvoiceListFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.BindError(c, err)
		return
	}
	for param, dst := range map[string]**uuid.UUID{"client_id": &filter.ClientID, "matter_id": &filter.MatterID} {
		raw := c.Query(param)
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			h.Error(c, http.StatusBadRequest, dto.ErrCodeValidation, "Invalid "+param+": must be a UUID")
			return
		}
		*dst = &id
	}

	page, err := h.service.ListInvoices(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, page.Items, page.Total, page.Page, page.PageSize)
}

// Get godoc
// @Summary      Get an invoice
// @Tags         invoices
// @Produce      json
// @Param        id path string true "Invoice ID" format(uuid)
// @Success      200 {object} dto.Response{data=billing.InvoiceResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /invoices/{id} [get]
func (h *InvoiceHandler) Get(c *gin.Context) {
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	invoice, err := h.service.GetInvoice(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, invoice)
}

// Update godoc
// @Summary      Update a draft invoice
// @Description  Only drafts are editable
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Param        id path string true "Invoice ID" format(uuid)
// @Param        request body billing.UpdateInvoiceRequest true "Changes"
// @Success      200 {object} dto.Response{data=billing.InvoiceResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /invoices/{id} [put]
func (h *InvoiceHandler) Update(c *gin.Context) {
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	var req billing.UpdateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	invoice, err := h.service.UpdateDraftInvoice(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, invoice)
}

// Delete godoc
// @Summary      Delete an invoice
// @Description  Releases its timesheets, expenses and payments. Uploaded invoices cannot be deleted.
// @Tags         invoices
// @Produce      json
// @Param        id path string true "Invoice ID" format(uuid)
// @Success      204
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /invoices/{id} [delete]
func (h *InvoiceHandler) Delete(c *gin.Context) {
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteInvoice(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// Finalize godoc
// @Summary      Finalize an invoice
// @Description  Allocates the invoice number, fixes exchange rates and optionally splits the invoice between partners
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Param        id path string true "Invoice ID" format(uuid)
// @Param        request body billing.FinalizeInvoiceRequest true "Exchange rates and optional split"
// @Success      200 {object} dto.Response{data=billing.InvoiceResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /invoices/{id}/finalize [post]
func (h *InvoiceHandler) Finalize(c *gin.Context) {
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	var req billing.FinalizeInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	invoice, err := h.service.FinalizeInvoice(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, invoice)
}

// Document godoc
// @Summary      Render the invoice document
// @Description  PDF when the headless renderer is configured, HTML otherwise
// @Tags         invoices
// @Produce      application/pdf,text/html
// @Param        id path string true "Invoice ID" format(uuid)
// @Param        download query bool false "Send as attachment"
// @Success      200 {file} binary
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /invoices/{id}/document [get]
func (h *InvoiceHandler) Document(c *gin.Context) {
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	doc, err := h.service.RenderInvoiceDocument(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	disposition := "inline"
	if c.Query("download") == "true" {
		disposition = "attachment"
	}
	c.Header("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, doc.FileName))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, doc.ContentType, doc.Content)
}

// Upload godoc
// @Summary      Upload the signed invoice
// @Description  Stores a signed PDF, PNG or JPEG. Without a file the generated document is stored.
// @Tags         invoices
// @Accept       multipart/form-data
// @Produce      json
// @Param        id path string true "Invoice ID" format(uuid)
// @Param        file formData file false "Signed document"
// @Success      200 {object} dto.Response{data=billing.InvoiceResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      413 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /invoices/{id}/upload [post]
func (h *InvoiceHandler) Upload(c *gin.Context) {
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}

	var req billing.UploadSignedInvoiceRequest
	file, header, err := c.Request.FormFile(signedFileField)
	switch {
	case err == nil:
		defer file.Close()
		req, err = readSignedFile(file, header)
		if err != nil {
			h.uploadError(c, err)
			return
		}
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		// no file: fall back to the generated document
	default:
		h.uploadError(c, err)
		return
	}

	invoice, err := h.service.UploadSignedInvoice(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, invoice)
}

func readSignedFile(file multipart.File, header *multipart.FileHeader) (billing.UploadSignedInvoiceRequest, error) {
	content, err := io.ReadAll(file)
	if err != nil {
		return billing.UploadSignedInvoiceRequest{}, err
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(content)
	}
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	return billing.UploadSignedInvoiceRequest{
		FileName:    header.Filename,
		ContentType: contentType,
		Content:     content,
	}, nil
}

func (h *InvoiceHandler) uploadError(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodeRequestTooLarge,
			fmt.Sprintf("Signed document exceeds %d bytes", tooLarge.Limit))
		return
	}
	h.BadRequest(c, "Invalid multipart upload: "+err.Error())
}

// RecordPayment godoc
// @Summary      Record a payment
// @Description  Amount may not exceed the outstanding balance. X-Actor overrides recorded_by.
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Param        id path string true "Invoice ID" format(uuid)
// @Param        request body billing.RecordPaymentRequest true "Payment"
// @Success      201 {object} dto.Response{data=billing.RecordPaymentResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /invoices/{id}/payments [post]
func (h *InvoiceHandler) RecordPayment(c *gin.Context) {
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	var req billing.RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	if by := actor(c); by != "" {
		req.RecordedBy = by
	}

	result, err := h.service.RecordPayment(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}

// ListPayments godoc
// @Summary      List payments
// @Tags         invoices
// @Produce      json
// @Param        id path string true "Invoice ID" format(uuid)
// @Success      200 {object} dto.Response{data=[]billing.PaymentResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /invoices/{id}/payments [get]
func (h *InvoiceHandler) ListPayments(c *gin.Context) {
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	payments, err := h.service.ListPayments(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if payments == nil {
		payments = []billing.PaymentResponse{}
	}
	h.Success(c, payments)
}

// DetectCurrencies godoc
// @Summary      Detect invoice currencies
// @Description  Currencies used by the selected timesheets and expenses that need an exchange rate
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Param        request body billing.DetectCurrenciesRequest true "Selection"
// @Success      200 {object} dto.Response{data=billing.DetectCurrenciesResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /invoices/detect-currencies [post]
func (h *InvoiceHandler) DetectCurrencies(c *gin.Context) {
	var req billing.DetectCurrenciesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	result, err := h.service.DetectCurrencies(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}
