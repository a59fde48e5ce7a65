// Package render draws boards as PNG images for sharing and previews.
package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"
	"strconv"
	"strings"

	"github.com/park285/dame-server/internal/draughts"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

type Options struct {
	// LastMove is highlighted on both its squares.
	LastMove *draughts.Move
	Title    string
	Status   string
	// SquareSize defaults to 56 pixels.
	SquareSize int
}

const (
	defaultSquareSize = 56
	sideMargin        = 28
	hudHeight         = 64
	bottomMargin      = 28
)

var (
	lightSquare     = color.RGBA{233, 207, 163, 255}
	darkSquare      = color.RGBA{150, 102, 68, 255}
	moveHighlight   = color.NRGBA{R: 255, G: 228, B: 120, A: 130}
	captureMark     = color.NRGBA{R: 220, G: 60, B: 60, A: 120}
	backgroundColor = color.RGBA{28, 31, 46, 255}
	hudTextPrimary  = color.NRGBA{R: 236, G: 239, B: 255, A: 255}
	hudTextMuted    = color.NRGBA{R: 170, G: 176, B: 204, A: 255}
	coordinateColor = color.NRGBA{R: 8, G: 214, B: 120, A: 255}
)

// PNG renders b with row 0 at the bottom, so light plays upward.
func PNG(ctx context.Context, b *draughts.Board, opts Options) ([]byte, error) {
	if b == nil {
		return nil, fmt.Errorf("board is nil")
	}
	sq := opts.SquareSize
	if sq <= 0 {
		sq = defaultSquareSize
	}
	n := b.Size()
	boardPx := sq * n
	origin := image.Point{X: sideMargin, Y: hudHeight}
	img := image.NewRGBA(image.Rect(0, 0, boardPx+sideMargin*2, boardPx+hudHeight+bottomMargin))
	imagedraw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, imagedraw.Src)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	drawHUD(img, opts, boardPx)
	drawSquares(img, n, sq, origin)
	if m := opts.LastMove; m != nil {
		overlay(img, squareRect(m.From, n, sq, origin), moveHighlight)
		overlay(img, squareRect(m.To, n, sq, origin), moveHighlight)
		for _, c := range m.Captures {
			overlay(img, squareRect(c, n, sq, origin), captureMark)
		}
	}
	for row := 0; row < n; row++ {
		for col := 0; col < n; col++ {
			p := draughts.Position{Row: row, Col: col}
			pc := b.At(p)
			if pc.Empty() {
				continue
			}
			pimg, err := renderPieceImage(pc, sq)
			if err != nil {
				return nil, err
			}
			r := squareRect(p, n, sq, origin)
			imagedraw.Draw(img, r, pimg, image.Point{}, imagedraw.Over)
		}
	}
	drawCoordinates(img, n, sq, origin)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func squareRect(p draughts.Position, n, sq int, origin image.Point) image.Rectangle {
	x := origin.X + p.Col*sq
	y := origin.Y + (n-1-p.Row)*sq
	return image.Rect(x, y, x+sq, y+sq)
}

func drawSquares(dst imagedraw.Image, n, sq int, origin image.Point) {
	for row := 0; row < n; row++ {
		for col := 0; col < n; col++ {
			p := draughts.Position{Row: row, Col: col}
			clr := lightSquare
			if draughts.IsDarkSquare(p) {
				clr = darkSquare
			}
			imagedraw.Draw(dst, squareRect(p, n, sq, origin), image.NewUniform(clr), image.Point{}, imagedraw.Src)
		}
	}
}

func overlay(img *image.RGBA, r image.Rectangle, clr color.Color) {
	imagedraw.Draw(img, r, image.NewUniform(clr), image.Point{}, imagedraw.Over)
}

func drawHUD(img *image.RGBA, opts Options, boardPx int) {
	d := &font.Drawer{Dst: img, Face: basicfont.Face7x13}
	title := strings.TrimSpace(opts.Title)
	if title == "" {
		title = "Draughts"
	}
	d.Src = image.NewUniform(hudTextPrimary)
	drawCentered(d, title, sideMargin, boardPx, 26)
	if s := strings.TrimSpace(opts.Status); s != "" {
		d.Src = image.NewUniform(hudTextMuted)
		drawCentered(d, s, sideMargin, boardPx, 46)
	}
}

func drawCentered(d *font.Drawer, s string, left, width, baseline int) {
	w := d.MeasureString(s).Round()
	if w > width {
		w = width
	}
	d.Dot = fixed.P(left+(width-w)/2, baseline)
	d.DrawString(s)
}

func drawCoordinates(img *image.RGBA, n, sq int, origin image.Point) {
	d := &font.Drawer{Dst: img, Face: basicfont.Face7x13, Src: image.NewUniform(coordinateColor)}
	for i := 0; i < n; i++ {
		label := strconv.Itoa(i)
		y := origin.Y + (n-1-i)*sq + sq/2 + 5
		d.Dot = fixed.P(origin.X-sideMargin/2-d.MeasureString(label).Round()/2, y)
		d.DrawString(label)
		x := origin.X + i*sq + sq/2 - d.MeasureString(label).Round()/2
		d.Dot = fixed.P(x, origin.Y+n*sq+bottomMargin/2+5)
		d.DrawString(label)
	}
}
