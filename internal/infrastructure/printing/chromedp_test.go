package printing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChromedpRenderer_Defaults(t *testing.T) {
	r := NewChromedpRenderer(ChromedpConfig{})
	defer r.Close()

	assert.Equal(t, defaultChromeTimeout, r.config.DefaultTimeout)
	assert.Equal(t, defaultScale, r.config.Scale)
	assert.NotNil(t, r.logger)
	assert.NotNil(t, r.allocCtx)
}

func TestChromedpRenderer_RejectsInvalidRequests(t *testing.T) {
	r := NewChromedpRenderer(ChromedpConfig{DefaultTimeout: time.Second})
	defer r.Close()
	ctx := context.Background()

	tests := []struct {
		name string
		req  *RenderRequest
		code string
	}{
		{"nil request", nil, ErrCodeInvalidHTML},
		{"empty HTML", &RenderRequest{PaperSize: PaperSizeA4}, ErrCodeInvalidHTML},
		{"whitespace HTML", &RenderRequest{HTML: " \n\t ", PaperSize: PaperSizeA4}, ErrCodeInvalidHTML},
		{"invalid paper", &RenderRequest{HTML: "<p>x</p>", PaperSize: "B5"}, ErrCodeInvalidPaperSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Render(ctx, tt.req)
			var renderErr *RenderError
			require.ErrorAs(t, err, &renderErr)
			assert.Equal(t, tt.code, renderErr.Code)
		})
	}
}

func TestBuildPrintParams(t *testing.T) {
	r := &ChromedpRenderer{config: ChromedpConfig{Scale: 1.0}}

	t.Run("A4 portrait", func(t *testing.T) {
		params := r.buildPrintParams(&RenderRequest{
			HTML:      "<html>test</html>",
			PaperSize: PaperSizeA4,
			Margins:   DefaultMargins(),
		})
		assert.InDelta(t, mmToInches(210), params.paperWidth, 0.01)
		assert.InDelta(t, mmToInches(297), params.paperHeight, 0.01)
		assert.InDelta(t, mmToInches(12), params.marginLeft, 0.01)
		assert.False(t, params.landscape)
		assert.False(t, params.displayFooter)
	})

	t.Run("letter landscape", func(t *testing.T) {
		params := r.buildPrintParams(&RenderRequest{
			HTML:      "<html>test</html>",
			PaperSize: PaperSizeLetter,
			Landscape: true,
		})
		assert.InDelta(t, 8.5, params.paperWidth, 0.01)
		assert.InDelta(t, 11.0, params.paperHeight, 0.01)
		assert.True(t, params.landscape)
	})

	t.Run("footer reserves bottom margin", func(t *testing.T) {
		params := r.buildPrintParams(&RenderRequest{
			HTML:       "<html>test</html>",
			PaperSize:  PaperSizeA4,
			Margins:    Margins{Bottom: 2},
			FooterHTML: "<div>page</div>",
		})
		assert.True(t, params.displayFooter)
		assert.Equal(t, "<div>page</div>", params.footerTemplate)
		assert.InDelta(t, mmToInches(10), params.marginBottom, 0.001)
	})
}

func TestBuildCompleteHTML(t *testing.T) {
	r := &ChromedpRenderer{}

	full := "<!DOCTYPE html><html><body>x</body></html>"
	assert.Equal(t, full, r.buildCompleteHTML(&RenderRequest{HTML: full}))

	wrapped := r.buildCompleteHTML(&RenderRequest{HTML: "<p>x</p>", Title: "Invoice <1>"})
	assert.Contains(t, wrapped, "<!DOCTYPE html>")
	assert.Contains(t, wrapped, "<title>Invoice &lt;1&gt;</title>")
	assert.Contains(t, wrapped, "<body><p>x</p></body>")
}

func TestEstimatePageCount(t *testing.T) {
	assert.Equal(t, 1, estimatePageCount([]byte("%PDF-1.7")))
	pdf := []byte("<< /Type /Pages /Count 2 >> << /Type /Page >> << /Type /Page >>")
	assert.Equal(t, 2, estimatePageCount(pdf))
}

func TestParsePaperSize(t *testing.T) {
	assert.Equal(t, PaperSizeA4, ParsePaperSize(""))
	assert.Equal(t, PaperSizeLetter, ParsePaperSize(" letter "))
	assert.Equal(t, PaperSizeLegal, ParsePaperSize("Legal"))
	assert.Equal(t, PaperSizeA4, ParsePaperSize("tabloid"))
	assert.False(t, PaperSize("B5").IsValid())
}
