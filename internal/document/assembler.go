// Package document lays the completed pages of a collection out as a PDF,
// one page per image.
package document

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-pdf/fpdf"

	"pintatina/internal/batch"
	"pintatina/internal/imgutil"
)

// ErrEmptyDocument means there is no completed page to export.
var ErrEmptyDocument = errors.New("no completed pages to export")

const (
	DefaultCaption  = "Generado con Pintatina.com"
	captionFontSize = 8
	captionGray     = 180
	captionOffset   = 5
)

type Options struct {
	Page    Page
	Caption string
	// JPEGQuality re-encodes every page as JPEG before embedding when
	// greater than zero; otherwise images are embedded as produced.
	JPEGQuality int
	Logger      *slog.Logger
}

type Assembler struct {
	page        Page
	caption     string
	jpegQuality int
	logger      *slog.Logger
}

// Document is a rendered PDF. Indices lists the collection index behind
// each page, in page order.
type Document struct {
	Data    []byte
	Pages   int
	Indices []int
}

func NewAssembler(opts Options) *Assembler {
	page := opts.Page
	if page.Width <= 0 || page.Height <= 0 {
		page = A4
	}
	caption := opts.Caption
	if caption == "" {
		caption = DefaultCaption
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Assembler{page: page, caption: caption, jpegQuality: opts.JPEGQuality, logger: logger}
}

// Build renders one page per completed item, in ascending index order.
// Items in any other status contribute nothing. With no completed item it
// returns ErrEmptyDocument.
func (a *Assembler) Build(items []batch.Item) (Document, error) {
	completed := batch.Snapshot{Items: items}.CompletedItems()
	if len(completed) == 0 {
		return Document{}, ErrEmptyDocument
	}

	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "mm",
		Size:           fpdf.SizeType{Wd: a.page.Width, Ht: a.page.Height},
	})
	pdf.SetCompression(true)
	pdf.SetMargins(a.page.Margin, a.page.Margin, a.page.Margin)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetFont("Helvetica", "", captionFontSize)

	box := Fit(a.page)
	doc := Document{Indices: make([]int, 0, len(completed))}

	for _, it := range completed {
		data, imageType, err := a.prepare(it.Result.Data)
		if err != nil {
			return Document{}, fmt.Errorf("page %d: %w", it.Index, err)
		}

		name := "page-" + strconv.Itoa(it.Index)
		opts := fpdf.ImageOptions{ImageType: imageType}
		pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(data))

		pdf.AddPage()
		pdf.ImageOptions(name, box.X, box.Y, box.W, box.H, false, opts, 0, "")
		a.stampCaption(pdf)

		if err := pdf.Error(); err != nil {
			return Document{}, fmt.Errorf("page %d: %w", it.Index, err)
		}
		doc.Indices = append(doc.Indices, it.Index)
	}

	buf := new(bytes.Buffer)
	if err := pdf.Output(buf); err != nil {
		return Document{}, fmt.Errorf("write pdf: %w", err)
	}
	doc.Data = buf.Bytes()
	doc.Pages = pdf.PageCount()

	a.logger.Debug("document built", "pages", doc.Pages, "bytes", len(doc.Data))
	return doc, nil
}

func (a *Assembler) stampCaption(pdf *fpdf.Fpdf) {
	pdf.SetTextColor(captionGray, captionGray, captionGray)
	w := pdf.GetStringWidth(a.caption)
	pdf.Text((a.page.Width-w)/2, a.page.Height-captionOffset, a.caption)
}

func (a *Assembler) prepare(data []byte) ([]byte, string, error) {
	if a.jpegQuality > 0 {
		out, err := imgutil.CompressToJPEG(data, a.jpegQuality)
		if err != nil {
			return nil, "", err
		}
		return out, "JPG", nil
	}

	format, err := imgutil.Format(data)
	if err != nil {
		return nil, "", err
	}
	switch format {
	case "png":
		return data, "PNG", nil
	case "jpeg":
		return data, "JPG", nil
	case "gif":
		return data, "GIF", nil
	}
	return nil, "", fmt.Errorf("unsupported image format %q", format)
}

// Filename names an exported collection after the time it was built.
func Filename(t time.Time) string {
	return fmt.Sprintf("Pintatina_Coleccion_%d.pdf", t.UnixMilli())
}
