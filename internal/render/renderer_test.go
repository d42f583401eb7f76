package render

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"testing"
	"time"

	"github.com/park285/ttt-rooms/internal/domain"
)

func decode(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	return img
}

func TestRenderPNG_MarksAndWinningLine(t *testing.T) {
	r := NewRenderer()
	room := domain.NewRoom("Ab12cd", true, time.Now())
	room.Players[domain.X] = "c1"
	room.Players[domain.O] = "c2"

	emptyPNG, err := r.RenderPNG(context.Background(), room)
	if err != nil {
		t.Fatalf("RenderPNG empty: %v", err)
	}
	empty := decode(t, emptyPNG)
	if empty.Bounds().Dx() != boardSize+sideMargin*2 {
		t.Fatalf("width %d", empty.Bounds().Dx())
	}

	room.Board = map[int]domain.Symbol{1: domain.X, 2: domain.X, 3: domain.X, 5: domain.O, 9: domain.O}
	room.Stats.Wins.X = 1
	room.Stats.Matches = 1
	filledPNG, err := r.RenderPNG(context.Background(), room)
	if err != nil {
		t.Fatalf("RenderPNG filled: %v", err)
	}
	filled := decode(t, filledPNG)

	origin := image.Pt(sideMargin, topMargin)
	center := func(pos int) image.Point {
		c := cellRect(pos, origin)
		return image.Pt((c.Min.X+c.Max.X)/2, (c.Min.Y+c.Max.Y)/2)
	}
	same := func(p image.Point) bool {
		r1, g1, b1, a1 := empty.At(p.X, p.Y).RGBA()
		r2, g2, b2, a2 := filled.At(p.X, p.Y).RGBA()
		return r1 == r2 && g1 == g2 && b1 == b2 && a1 == a2
	}

	// Cell centers of the winning row are highlighted even where the mark leaves the middle empty.
	for _, pos := range []int{1, 2, 3} {
		if same(center(pos)) {
			t.Fatalf("winning cell %d not highlighted", pos)
		}
	}
	// The o ring is hollow: its center keeps the plain cell color, while its rim is drawn.
	if !same(center(5)) {
		t.Fatalf("o center should stay plain")
	}
	rim := center(5).Add(image.Pt(0, -(cellSize-markInset*2)*29/100))
	if same(rim) {
		t.Fatalf("o rim not drawn at %v", rim)
	}
	if !same(center(7)) {
		t.Fatalf("empty cell changed")
	}
}

func TestRenderPNG_Errors(t *testing.T) {
	r := NewRenderer()
	if _, err := r.RenderPNG(context.Background(), nil); err == nil {
		t.Fatalf("nil room should fail")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.RenderPNG(ctx, domain.NewRoom("Ab12cd", false, time.Now())); err == nil {
		t.Fatalf("canceled context should fail")
	}
}

func TestCompletedLine(t *testing.T) {
	line, ok := completedLine(map[int]domain.Symbol{3: domain.O, 5: domain.O, 7: domain.O, 1: domain.X})
	if !ok || line[0] != 3 || line[2] != 7 {
		t.Fatalf("line=%v ok=%v", line, ok)
	}
	if _, ok := completedLine(map[int]domain.Symbol{1: domain.X, 2: domain.O, 3: domain.X}); ok {
		t.Fatalf("mixed row reported as a line")
	}
}

func TestMarkImageCached(t *testing.T) {
	a, err := markImage(domain.X, 40)
	if err != nil {
		t.Fatalf("markImage: %v", err)
	}
	b, _ := markImage(domain.X, 40)
	if a != b {
		t.Fatalf("mark not cached")
	}
	if _, err := markImage(domain.NoSymbol, 40); err == nil {
		t.Fatalf("empty symbol should fail")
	}
}

func TestSanitizeSVG(t *testing.T) {
	got := string(sanitizeSVG([]byte(`style="fill: #fff; stroke: #000"`)))
	if got != `style="fill:#fff; stroke:#000"` {
		t.Fatalf("sanitized %q", got)
	}
}
