package arena

import "math"

// steerBot picks the next target for a bot player.
//
// Hungry bots chase the nearest pellet. Shy bots do the same unless a player
// that could eat them is within ShyRadius, in which case they run directly
// away from it.
func (w *World) steerBot(idx int) {
	p := &w.State.Players[idx]
	if p.Dead() {
		return
	}
	center := p.Center()

	if p.Kind == KindShyBot {
		if threat, ok := w.nearestThreat(idx); ok {
			away := center.Sub(threat).Unit()
			if away == (Point{}) {
				away = Point{X: 1}
			}
			p.Target = w.State.clamp(center.Add(away.Scale(ShyRadius)))
			return
		}
	}

	if target, ok := nearest(center, w.State.Pellets); ok {
		p.Target = target
		return
	}
	p.Target = center
}

// nearestThreat is the closest cell of another player heavy enough to eat
// this player's largest cell.
func (w *World) nearestThreat(idx int) (Point, bool) {
	p := &w.State.Players[idx]
	mine := p.Cells[p.largest()]
	center := p.Center()

	best := math.Inf(1)
	var at Point
	for i := range w.State.Players {
		if i == idx {
			continue
		}
		for _, c := range w.State.Players[i].Cells {
			if c.Mass <= mine.Mass*EatMargin {
				continue
			}
			d := c.Pos.Dist(center) - c.Radius()
			if d < ShyRadius && d < best {
				best = d
				at = c.Pos
			}
		}
	}
	return at, !math.IsInf(best, 1)
}

func nearest(from Point, pts []Point) (Point, bool) {
	best := math.Inf(1)
	var at Point
	for _, q := range pts {
		if d := q.Dist(from); d < best {
			best = d
			at = q
		}
	}
	return at, len(pts) > 0
}
