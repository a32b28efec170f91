package protocol

import (
	"fmt"

	"scout-api/internal/score"
)

// Validate：同步入参校验，任何失败都在计算开始前拒绝
// 约束：退化折线（0 点）、未知类别/相位、越界评级与坐标一律拒绝，绝不产出部分结果
func (r Request) Validate() error {
	switch r.Type {
	case TypeInit:
		return nil
	case TypeScoutCategory:
		if _, err := score.ParseCategory(r.Category); err != nil {
			return err
		}
	case TypeScoutOverall:
	case TypeScoutBatch:
		if len(r.Categories) == 0 {
			return fmt.Errorf("batch request needs at least one category")
		}
		for _, c := range r.Categories {
			if _, err := score.ParseCategory(c); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unknown request type: %q", r.Type)
	}

	if len(r.Lines) == 0 {
		return fmt.Errorf("lines must not be empty")
	}
	if r.PopulationFloor < 0 {
		return fmt.Errorf("populationFloor must not be negative: %d", r.PopulationFloor)
	}
	for i, l := range r.Lines {
		if err := validateLine(l); err != nil {
			return fmt.Errorf("lines[%d]: %w", i, err)
		}
	}
	return nil
}

func validateLine(l Line) error {
	if l.Planet == "" || l.Angle == "" {
		return fmt.Errorf("planet and angle are required")
	}
	if l.Rating < 1 || l.Rating > 5 {
		return fmt.Errorf("rating out of range 1..5: %d", l.Rating)
	}
	if !score.KnownAspect(score.Aspect(l.Aspect)) {
		return fmt.Errorf("unknown aspect: %q", l.Aspect)
	}
	if len(l.Points) == 0 {
		return fmt.Errorf("degenerate polyline: no points")
	}
	for j, p := range l.Points {
		if p[0] < -90 || p[0] > 90 {
			return fmt.Errorf("points[%d]: latitude out of range: %v", j, p[0])
		}
		if p[1] < -180 || p[1] > 180 {
			return fmt.Errorf("points[%d]: longitude out of range: %v", j, p[1])
		}
	}
	return nil
}
