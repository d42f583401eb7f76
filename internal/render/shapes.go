package render

import (
	"image"
	"image/color"
	imagedraw "image/draw"
)

// drawRoundedPanel fills rect with rounded corners; radius is clamped to half the short side.
func drawRoundedPanel(img *image.RGBA, rect image.Rectangle, radius int, clr color.Color) {
	if img == nil || rect.Empty() {
		return
	}
	radius = max(0, min(radius, rect.Dx()/2, rect.Dy()/2))
	fill := image.NewUniform(clr)
	if radius == 0 {
		imagedraw.Draw(img, rect, fill, image.Point{}, imagedraw.Over)
		return
	}

	// A cross of two rectangles plus four quarter discs; the pieces must not overlap or the
	// translucent fills double up.
	imagedraw.Draw(img, image.Rect(rect.Min.X+radius, rect.Min.Y, rect.Max.X-radius, rect.Max.Y), fill, image.Point{}, imagedraw.Over)
	imagedraw.Draw(img, image.Rect(rect.Min.X, rect.Min.Y+radius, rect.Min.X+radius, rect.Max.Y-radius), fill, image.Point{}, imagedraw.Over)
	imagedraw.Draw(img, image.Rect(rect.Max.X-radius, rect.Min.Y+radius, rect.Max.X, rect.Max.Y-radius), fill, image.Point{}, imagedraw.Over)

	quarter(img, image.Pt(rect.Min.X+radius, rect.Min.Y+radius), radius, -1, -1, clr)
	quarter(img, image.Pt(rect.Max.X-radius, rect.Min.Y+radius), radius, 0, -1, clr)
	quarter(img, image.Pt(rect.Min.X+radius, rect.Max.Y-radius), radius, -1, 0, clr)
	quarter(img, image.Pt(rect.Max.X-radius, rect.Max.Y-radius), radius, 0, 0, clr)
}

// quarter blends the corner quadrant of a disc; sx/sy pick the quadrant (-1 left/up, 0 right/down).
func quarter(img *image.RGBA, center image.Point, radius, sx, sy int, clr color.Color) {
	r2 := radius * radius
	for dy := 0; dy < radius; dy++ {
		for dx := 0; dx < radius; dx++ {
			if (dx)*(dx)+(dy)*(dy) > r2 {
				continue
			}
			x := center.X + dx
			if sx < 0 {
				x = center.X - dx - 1
			}
			y := center.Y + dy
			if sy < 0 {
				y = center.Y - dy - 1
			}
			blendPixel(img, x, y, clr)
		}
	}
}

func blendPixel(img *image.RGBA, x, y int, clr color.Color) {
	if !(image.Point{X: x, Y: y}).In(img.Bounds()) {
		return
	}
	sr, sg, sb, sa := clr.RGBA()
	if sa == 0 {
		return
	}
	dst := img.RGBAAt(x, y)
	inv := 0xffff - sa
	// color.RGBA is premultiplied, so Porter-Duff "over" is a straight weighted sum.
	img.SetRGBA(x, y, color.RGBA{
		R: uint8((sr + uint32(dst.R)*0x101*inv/0xffff) >> 8),
		G: uint8((sg + uint32(dst.G)*0x101*inv/0xffff) >> 8),
		B: uint8((sb + uint32(dst.B)*0x101*inv/0xffff) >> 8),
		A: uint8((sa + uint32(dst.A)*0x101*inv/0xffff) >> 8),
	})
}
