package document

// Page is a page size and a uniform margin, in millimetres.
type Page struct {
	Width  float64
	Height float64
	Margin float64
}

// A4 is portrait A4 with a 10 mm margin.
var A4 = Page{Width: 210, Height: 297, Margin: 10}

// Box is a placed rectangle; X and Y are its top-left corner.
type Box struct {
	X, Y, W, H float64
}

// Fit returns the largest 3:4 (width:height) box that fits inside the
// printable area of p, centred in that area.
func Fit(p Page) Box {
	areaW := p.Width - 2*p.Margin
	areaH := p.Height - 2*p.Margin
	if areaW <= 0 || areaH <= 0 {
		return Box{X: p.Width / 2, Y: p.Height / 2}
	}

	var w, h float64
	if areaW/areaH < 3.0/4.0 {
		w = areaW
		h = areaW * 4 / 3
	} else {
		h = areaH
		w = areaH * 3 / 4
	}

	return Box{
		X: p.Margin + (areaW-w)/2,
		Y: p.Margin + (areaH-h)/2,
		W: w,
		H: h,
	}
}
