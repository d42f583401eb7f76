// Package render draws a PNG snapshot of a room: the 3x3 board plus a HUD with score and turn.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"
	"strings"

	"github.com/park285/ttt-rooms/internal/domain"
	"github.com/park285/ttt-rooms/internal/game"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	cellSize     = 120
	boardSize    = cellSize * 3
	sideMargin   = 36
	topMargin    = 112
	bottomMargin = 36
	gridWidth    = 6
	markInset    = 14
	panelRadius  = 12
	panelHeight  = 32
	panelGap     = 12
	gapToBoard   = 20
	shadowOffset = 6
)

var (
	backgroundColor = color.RGBA{R: 22, G: 24, B: 36, A: 255}
	cellColor       = color.RGBA{R: 244, G: 238, B: 226, A: 255}
	gridColor       = color.RGBA{R: 58, G: 62, B: 84, A: 255}
	winFillColor    = color.NRGBA{R: 255, G: 214, B: 90, A: 150}
	boardShadow     = color.NRGBA{0, 0, 0, 60}
	hudPanelColor   = color.NRGBA{R: 28, G: 31, B: 46, A: 250}
	hudTurnColor    = color.NRGBA{R: 32, G: 35, B: 52, A: 245}
	hudShadowColor  = color.NRGBA{0, 0, 0, 50}
	hudTextPrimary  = color.NRGBA{R: 236, G: 239, B: 255, A: 255}
	hudTextMuted    = color.NRGBA{R: 204, G: 210, B: 236, A: 255}
)

// Renderer implements transport.BoardRenderer.
type Renderer struct {
	face font.Face
}

func NewRenderer() *Renderer {
	return &Renderer{face: basicfont.Face7x13}
}

func (r *Renderer) RenderPNG(ctx context.Context, room *domain.Room) ([]byte, error) {
	if room == nil {
		return nil, errors.New("room is nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img := image.NewRGBA(image.Rect(0, 0, boardSize+sideMargin*2, boardSize+topMargin+bottomMargin))
	imagedraw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, imagedraw.Src)

	origin := image.Point{X: sideMargin, Y: topMargin}
	boardRect := image.Rect(origin.X, origin.Y, origin.X+boardSize, origin.Y+boardSize)

	r.drawHUD(img, room, boardRect)
	drawBoardShadow(img, boardRect)
	drawCells(img, origin)
	if line, ok := completedLine(room.Board); ok {
		for _, pos := range line {
			imagedraw.Draw(img, cellRect(pos, origin).Inset(gridWidth/2), image.NewUniform(winFillColor), image.Point{}, imagedraw.Over)
		}
	}
	if err := drawMarks(img, room.Board, origin); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// completedLine finds a line held by one symbol. A finished game keeps its board until the next
// start, so this is how the last result is shown.
func completedLine(board map[int]domain.Symbol) (game.Line, bool) {
	for _, line := range game.WinningLines {
		s := board[line[0]]
		if s.Valid() && board[line[1]] == s && board[line[2]] == s {
			return line, true
		}
	}
	return game.Line{}, false
}

// cellRect maps board position 1..9 (row major) to its square.
func cellRect(pos int, origin image.Point) image.Rectangle {
	row := (pos - 1) / 3
	col := (pos - 1) % 3
	x := origin.X + col*cellSize
	y := origin.Y + row*cellSize
	return image.Rect(x, y, x+cellSize, y+cellSize)
}

func drawCells(img *image.RGBA, origin image.Point) {
	board := image.Rect(origin.X, origin.Y, origin.X+boardSize, origin.Y+boardSize)
	imagedraw.Draw(img, board, image.NewUniform(gridColor), image.Point{}, imagedraw.Src)
	for pos := 1; pos <= domain.BoardCells; pos++ {
		imagedraw.Draw(img, cellRect(pos, origin).Inset(gridWidth/2), image.NewUniform(cellColor), image.Point{}, imagedraw.Src)
	}
}

func drawMarks(img *image.RGBA, board map[int]domain.Symbol, origin image.Point) error {
	size := cellSize - markInset*2
	for _, pos := range game.Positions(board) {
		mark, err := markImage(board[pos], size)
		if err != nil {
			return err
		}
		cell := cellRect(pos, origin)
		dst := image.Rect(cell.Min.X+markInset, cell.Min.Y+markInset, cell.Max.X-markInset, cell.Max.Y-markInset)
		imagedraw.Draw(img, dst, mark, image.Point{}, imagedraw.Over)
	}
	return nil
}

func drawBoardShadow(img *image.RGBA, boardRect image.Rectangle) {
	shadow := image.Rect(boardRect.Min.X+4, boardRect.Min.Y+8, boardRect.Max.X+10, boardRect.Max.Y+14)
	drawRoundedPanel(img, shadow, 10, boardShadow)
}

func (r *Renderer) drawHUD(img *image.RGBA, room *domain.Room, boardRect image.Rectangle) {
	drawer := &font.Drawer{Dst: img, Face: r.face}

	turnBottom := boardRect.Min.Y - gapToBoard
	turnTop := turnBottom - panelHeight
	titleBottom := turnTop - panelGap
	titleTop := titleBottom - panelHeight

	title := fmt.Sprintf("Room %s", room.ID)
	if room.IsPublic {
		title += " (public)"
	}
	score := fmt.Sprintf("X %d : %d O  matches %d", room.Stats.Wins.X, room.Stats.Wins.O, room.Stats.Matches)

	titleRect := centeredPanel(drawer, title, boardRect, titleTop, titleBottom, 24, 240)
	scoreRect := image.Rect(boardRect.Min.X, turnTop, boardRect.Min.X+panelWidth(drawer, score, 16, 120), turnBottom)
	turn := turnText(room)
	turnRect := image.Rect(boardRect.Max.X-panelWidth(drawer, turn, 16, 120), turnTop, boardRect.Max.X, turnBottom)

	for _, p := range []struct {
		rect image.Rectangle
		fill color.Color
		text string
		ink  color.Color
	}{
		{titleRect, hudPanelColor, title, hudTextPrimary},
		{scoreRect, hudTurnColor, score, hudTextMuted},
		{turnRect, hudTurnColor, turn, hudTextMuted},
	} {
		drawRoundedPanel(img, p.rect.Add(image.Pt(0, shadowOffset/2)), panelRadius, hudShadowColor)
		drawRoundedPanel(img, p.rect, panelRadius, p.fill)
		drawCenteredString(drawer, p.rect, p.text, p.ink)
	}
}

func turnText(room *domain.Room) string {
	switch {
	case room.Started && room.Turn.Valid():
		return "Turn: " + strings.ToUpper(string(room.Turn))
	case room.Started:
		return "Any player may start"
	case room.Full():
		return "Game over"
	default:
		return "Waiting for players"
	}
}

func panelWidth(drawer *font.Drawer, text string, padding, minWidth int) int {
	return max(drawer.MeasureString(text).Round()+padding*2, minWidth)
}

func centeredPanel(drawer *font.Drawer, text string, boardRect image.Rectangle, top, bottom, padding, minWidth int) image.Rectangle {
	w := min(panelWidth(drawer, text, padding, minWidth), boardRect.Dx())
	x := boardRect.Min.X + (boardRect.Dx()-w)/2
	return image.Rect(x, top, x+w, bottom)
}

func drawCenteredString(drawer *font.Drawer, rect image.Rectangle, text string, clr color.Color) {
	text = strings.TrimSpace(text)
	if drawer == nil || text == "" {
		return
	}
	metrics := drawer.Face.Metrics()
	width := drawer.MeasureString(text).Round()
	x := rect.Min.X + (rect.Dx()-width)/2
	if x < rect.Min.X {
		x = rect.Min.X
	}
	baseline := rect.Min.Y + (rect.Dy()+metrics.Ascent.Ceil()-metrics.Descent.Ceil())/2
	drawer.Src = image.NewUniform(clr)
	drawer.Dot = fixed.P(x, baseline)
	drawer.DrawString(text)
}
