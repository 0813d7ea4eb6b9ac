package main

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"

	"orefield/internal/events"
	"orefield/internal/level"
	"orefield/internal/placement"
	"orefield/internal/world"
)

var oreColors = []tcell.Color{
	tcell.NewRGBColor(184, 115, 51),
	tcell.NewRGBColor(200, 200, 210),
	tcell.NewRGBColor(140, 140, 150),
	tcell.NewRGBColor(230, 230, 240),
	tcell.NewRGBColor(255, 200, 40),
	tcell.NewRGBColor(60, 100, 230),
	tcell.NewRGBColor(120, 230, 220),
	tcell.NewRGBColor(180, 60, 200),
}

var (
	groundStyle = tcell.StyleDefault.Foreground(tcell.NewRGBColor(70, 110, 70))
	hazardStyle = tcell.StyleDefault.Foreground(tcell.ColorRed).Bold(true)
	statusStyle = tcell.StyleDefault.Foreground(tcell.ColorWhite).Reverse(true)
	helpStyle   = tcell.StyleDefault.Foreground(tcell.ColorGray)
)

// projection maps the horizontal plane of extent onto a grid of terminal
// cells. Row 0 is the lowest Z.
type projection struct {
	extent     world.Bounds
	cols, rows int
	cellX      float64
	cellZ      float64
}

func newProjection(extent world.Bounds, cols, rows int) projection {
	return projection{
		extent: extent,
		cols:   cols,
		rows:   rows,
		cellX:  extent.Width / float64(cols),
		cellZ:  extent.Depth / float64(rows),
	}
}

func (p projection) cell(pos world.Vec3) (col, row int, ok bool) {
	if !p.extent.Contains(pos.X, pos.Z) {
		return 0, 0, false
	}
	col = int((pos.X - p.extent.Origin.X) / p.cellX)
	row = int((pos.Z - p.extent.Origin.Z) / p.cellZ)
	if col >= p.cols {
		col = p.cols - 1
	}
	if row >= p.rows {
		row = p.rows - 1
	}
	return col, row, true
}

func (p projection) center(col, row int) (x, z float64) {
	x = p.extent.Origin.X + (float64(col)+0.5)*p.cellX
	z = p.extent.Origin.Z + (float64(row)+0.5)*p.cellZ
	return x, z
}

type viewer struct {
	screen tcell.Screen
	coord  *level.Coordinator
	queue  *events.Queue
	rate   int
	paused bool
	status string

	onCompleted func()
}

func newViewer(screen tcell.Screen, coord *level.Coordinator, queue *events.Queue, rate int) *viewer {
	if rate <= 0 {
		rate = 1
	}
	return &viewer{screen: screen, coord: coord, queue: queue, rate: rate}
}

func (v *viewer) run() {
	ticker := time.NewTicker(16 * time.Millisecond)
	defer ticker.Stop()

	eventChan := make(chan tcell.Event, 100)
	go func() {
		for {
			ev := v.screen.PollEvent()
			if ev == nil {
				return
			}
			eventChan <- ev
		}
	}()

	for {
		select {
		case ev := <-eventChan:
			if !v.handleInput(ev) {
				return
			}
		case <-ticker.C:
			v.step()
			v.draw()
		}
	}
}

func (v *viewer) handleInput(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC {
			return false
		}
		if ev.Key() != tcell.KeyRune {
			return true
		}
		switch ev.Rune() {
		case 'q':
			return false
		case 'n':
			v.status = fmt.Sprintf("advanced to level %d", v.coord.AdvanceLevel())
		case 'r':
			v.coord.ResetLevel()
			v.status = "reset to level 1"
		case ' ':
			v.paused = !v.paused
		}
	case *tcell.EventResize:
		v.screen.Sync()
	}
	return true
}

// step starts a level when none is active and performs up to rate placement
// attempts.
func (v *viewer) step() {
	if v.paused {
		return
	}
	if v.coord.Session() == nil || v.coord.Transitioning() {
		if err := v.coord.StartLevel(); err != nil {
			v.status = err.Error()
		}
	}
	for i := 0; i < v.rate; i++ {
		if _, err := v.coord.Tick(); err != nil {
			v.status = err.Error()
			break
		}
	}
	for _, ev := range v.queue.Drain(0) {
		if ev.Type == events.TypeLevelCompleted {
			v.status = fmt.Sprintf("level %d complete: %s", ev.Level, ev.Message)
			if v.onCompleted != nil {
				v.onCompleted()
			}
		}
	}
}

func (v *viewer) draw() {
	v.screen.Clear()
	width, height := v.screen.Size()
	mapRows := height - 2

	surfaces := v.coord.AllSurfaces()
	s := v.coord.Session()
	if s != nil && len(s.Surfaces()) > 0 {
		surfaces = s.Surfaces()
	}

	if len(surfaces) > 0 && mapRows > 0 && width > 0 {
		extent := surfaces[0].Bounds()
		for _, surface := range surfaces[1:] {
			extent = extent.Union(surface.Bounds())
		}
		proj := newProjection(extent, width, mapRows)

		for row := 0; row < mapRows; row++ {
			for col := 0; col < width; col++ {
				x, z := proj.center(col, row)
				for _, surface := range surfaces {
					if surface.Bounds().Contains(x, z) {
						v.screen.SetContent(col, mapRows-1-row, '.', nil, groundStyle)
						break
					}
				}
			}
		}

		if s != nil {
			for _, p := range s.Points() {
				col, row, ok := proj.cell(p.Position)
				if !ok {
					continue
				}
				ch, style := markerGlyph(p.Category)
				v.screen.SetContent(col, mapRows-1-row, ch, nil, style)
			}
		}
	}

	st := v.coord.Status()
	line := fmt.Sprintf(" level %d  stage %d  %s", st.Level, st.Stage, st.State)
	if st.Phase != "" {
		line += fmt.Sprintf("/%s", st.Phase)
	}
	line += fmt.Sprintf("  %d/%d  placed %d  skipped %d", st.Attempted, st.Total, st.Stats.Placed, st.Stats.Skipped)
	if v.paused {
		line += "  [paused]"
	}
	drawText(v.screen, 0, height-2, width, line, statusStyle)

	help := " n next  r reset  space pause  q quit"
	if v.status != "" {
		help += "  | " + v.status
	}
	drawText(v.screen, 0, height-1, width, help, helpStyle)
	v.screen.Show()
}

func markerGlyph(c placement.Category) (rune, tcell.Style) {
	if c.Kind == placement.KindHazard {
		return '^', hazardStyle
	}
	idx := c.Index
	if idx < 0 {
		idx = 0
	}
	return rune('0' + idx%10), tcell.StyleDefault.Foreground(oreColors[idx%len(oreColors)]).Bold(true)
}

func drawText(screen tcell.Screen, x, y, width int, text string, style tcell.Style) {
	if y < 0 {
		return
	}
	col := x
	for _, r := range text {
		if col >= width {
			return
		}
		screen.SetContent(col, y, r, nil, style)
		col++
	}
	for ; col < width; col++ {
		screen.SetContent(col, y, ' ', nil, style)
	}
}
