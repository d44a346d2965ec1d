// Package printing produces printable invoice documents.
//
// The embedded HTML layout is filled by TemplateEngine from an InvoiceView
// and, when a PDFRenderer is configured, printed to PDF through headless
// Chrome (ChromedpRenderer). Without a renderer the generator returns the
// HTML itself, which is what development setups without Chrome use.
//
// Example usage:
//
//	engine, err := NewTemplateEngine()
//	if err != nil {
//	    return err
//	}
//	gen, err := NewInvoiceDocumentGenerator(GeneratorConfig{
//	    Engine:   engine,
//	    Renderer: NewChromedpRenderer(ChromedpConfig{NoSandbox: true}),
//	    FirmName: "Rao & Mehta Advocates",
//	})
//	if err != nil {
//	    return err
//	}
//	doc, err := gen.Generate(ctx, invoiceDocument)
package printing
