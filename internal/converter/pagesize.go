package converter

import "math"

// pageMargin is kept clear on every side of an embedded image, in points.
const pageMargin = 50.0

// Box is a page size in PDF points.
type Box struct {
	Width  float64
	Height float64
}

var pageBoxes = map[PageSize]Box{
	PageSizeA4:     {Width: 595, Height: 842},
	PageSizeLetter: {Width: 612, Height: 792},
	PageSizeLegal:  {Width: 612, Height: 1008},
}

// PageBox resolves a page size and orientation to a box. Unknown sizes and
// "original" fall back to A4.
func PageBox(size PageSize, orientation Orientation) Box {
	box, ok := pageBoxes[size]
	if !ok {
		box = pageBoxes[PageSizeA4]
	}
	if orientation == Landscape {
		box.Width, box.Height = box.Height, box.Width
	}
	return box
}

// Placement is where an image is drawn on a page, in points.
type Placement struct {
	X, Y          float64
	Width, Height float64
}

// FitImage scales an image uniformly to fit the page minus margins and
// centers it.
func FitImage(page Box, imgWidth, imgHeight float64) Placement {
	maxWidth := page.Width - 2*pageMargin
	maxHeight := page.Height - 2*pageMargin

	scale := math.Min(maxWidth/imgWidth, maxHeight/imgHeight)
	w := imgWidth * scale
	h := imgHeight * scale

	return Placement{
		X:      (page.Width - w) / 2,
		Y:      (page.Height - h) / 2,
		Width:  w,
		Height: h,
	}
}
