package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const (
	DefaultStrokeColor         = "#000000"
	DefaultStrokeWidth float64 = 3
)

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Stroke is the only canvas representation stored in a session.
type Stroke struct {
	Points []Point `json:"points"`
	Color  string  `json:"color"`
	Width  float64 `json:"width"`
}

func (s Stroke) Clone() Stroke {
	pts := make([]Point, len(s.Points))
	copy(pts, s.Points)
	s.Points = pts
	return s
}

// NormalizeStroke accepts a bare point list or an object with points, color
// and width. Points may be {"x":..,"y":..} objects or [x, y] pairs.
func NormalizeStroke(raw json.RawMessage) (Stroke, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Stroke{}, ErrInvalidStroke
	}

	switch raw[0] {
	case '[':
		pts, err := normalizePoints(raw)
		if err != nil {
			return Stroke{}, err
		}
		return Stroke{Points: pts, Color: DefaultStrokeColor, Width: DefaultStrokeWidth}, nil
	case '{':
		var obj struct {
			Points json.RawMessage `json:"points"`
			Color  string          `json:"color"`
			Width  float64         `json:"width"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return Stroke{}, fmt.Errorf("%w: %v", ErrInvalidStroke, err)
		}
		pts, err := normalizePoints(bytes.TrimSpace(obj.Points))
		if err != nil {
			return Stroke{}, err
		}
		s := Stroke{Points: pts, Color: obj.Color, Width: obj.Width}
		if s.Color == "" {
			s.Color = DefaultStrokeColor
		}
		if s.Width <= 0 {
			s.Width = DefaultStrokeWidth
		}
		return s, nil
	default:
		return Stroke{}, ErrInvalidStroke
	}
}

// NormalizeCanvas normalizes every element of a canvas list. A single bad
// element rejects the whole list.
func NormalizeCanvas(raw json.RawMessage) ([]Stroke, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []Stroke{}, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: canvas must be a list: %v", ErrInvalidStroke, err)
	}
	out := make([]Stroke, 0, len(items))
	for i, it := range items {
		s, err := NormalizeStroke(it)
		if err != nil {
			return nil, fmt.Errorf("canvas[%d]: %w", i, err)
		}
		out = append(out, s)
	}
	return out, nil
}

func normalizePoints(raw json.RawMessage) ([]Point, error) {
	if len(raw) == 0 || raw[0] != '[' {
		return nil, fmt.Errorf("%w: points must be a list", ErrInvalidStroke)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStroke, err)
	}
	pts := make([]Point, 0, len(items))
	for _, it := range items {
		it = bytes.TrimSpace(it)
		if len(it) == 0 {
			return nil, ErrInvalidStroke
		}
		var p Point
		switch it[0] {
		case '{':
			if err := json.Unmarshal(it, &p); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidStroke, err)
			}
		case '[':
			var pair []float64
			if err := json.Unmarshal(it, &pair); err != nil || len(pair) < 2 {
				return nil, fmt.Errorf("%w: point pair needs x and y", ErrInvalidStroke)
			}
			p = Point{X: pair[0], Y: pair[1]}
		default:
			return nil, ErrInvalidStroke
		}
		pts = append(pts, p)
	}
	return pts, nil
}
