package printing

import (
	"context"
	"errors"
	"strings"

	appbilling "github.com/lexdesk/backend/internal/application/billing"
	"go.uber.org/zap"
)

// Content types produced by the generator
const (
	ContentTypePDF  = "application/pdf"
	ContentTypeHTML = "text/html; charset=utf-8"
)

// GeneratorConfig configures the invoice document generator
type GeneratorConfig struct {
	Engine *TemplateEngine
	// Renderer turns HTML into PDF; nil returns the HTML itself
	Renderer    PDFRenderer
	FirmName    string
	FirmAddress string
	PaperSize   PaperSize
	Margins     *Margins
	Logger      *zap.Logger
}

// InvoiceDocumentGenerator renders invoices through the HTML template and,
// when a PDF renderer is configured, prints them to PDF.
type InvoiceDocumentGenerator struct {
	engine      *TemplateEngine
	renderer    PDFRenderer
	firmName    string
	firmAddress string
	paperSize   PaperSize
	margins     Margins
	logger      *zap.Logger
}

// Ensure InvoiceDocumentGenerator implements DocumentGenerator
var _ appbilling.DocumentGenerator = (*InvoiceDocumentGenerator)(nil)

// NewInvoiceDocumentGenerator creates a generator
func NewInvoiceDocumentGenerator(cfg GeneratorConfig) (*InvoiceDocumentGenerator, error) {
	if cfg.Engine == nil {
		return nil, errors.New("printing: template engine is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	paper := cfg.PaperSize
	if !paper.IsValid() {
		paper = PaperSizeA4
	}
	margins := DefaultMargins()
	if cfg.Margins != nil {
		margins = *cfg.Margins
	}
	return &InvoiceDocumentGenerator{
		engine:      cfg.Engine,
		renderer:    cfg.Renderer,
		firmName:    cfg.FirmName,
		firmAddress: cfg.FirmAddress,
		paperSize:   paper,
		margins:     margins,
		logger:      logger,
	}, nil
}

// Generate renders one invoice document
func (g *InvoiceDocumentGenerator) Generate(ctx context.Context, doc *appbilling.InvoiceDocument) (*appbilling.RenderedDocument, error) {
	view, err := NewInvoiceView(doc, g.firmName, g.firmAddress)
	if err != nil {
		return nil, err
	}
	html, err := g.engine.Render(ctx, InvoiceTemplateName, view)
	if err != nil {
		return nil, err
	}

	baseName := "invoice-" + sanitizeFileName(view.Number)
	if g.renderer == nil {
		return &appbilling.RenderedDocument{
			Content:     []byte(html),
			ContentType: ContentTypeHTML,
			FileName:    baseName + ".html",
		}, nil
	}

	result, err := g.renderer.Render(ctx, &RenderRequest{
		HTML:       html,
		PaperSize:  g.paperSize,
		Margins:    g.margins,
		Title:      "Invoice " + view.Number,
		FooterHTML: footerTemplate(view.Number),
	})
	if err != nil {
		g.logger.Error("Failed to render invoice PDF",
			zap.String("invoice_number", view.Number),
			zap.Error(err))
		return nil, err
	}

	return &appbilling.RenderedDocument{
		Content:     result.PDFData,
		ContentType: ContentTypePDF,
		FileName:    baseName + ".pdf",
	}, nil
}

// Close releases the PDF renderer
func (g *InvoiceDocumentGenerator) Close() error {
	if g.renderer == nil {
		return nil
	}
	return g.renderer.Close()
}

// footerTemplate uses Chrome's pageNumber/totalPages placeholders
func footerTemplate(number string) string {
	return `<div style="font-size:8px;width:100%;text-align:center;color:#666;">` +
		sanitizeFileName(number) +
		` &middot; Page <span class="pageNumber"></span> of <span class="totalPages"></span></div>`
}

func sanitizeFileName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}
