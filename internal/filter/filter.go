// Package filter narrows a raw detected element set to a small, ranked
// candidate list before it reaches the planner. Raw detection can return
// hundreds of elements; forwarding them all degrades decision quality and
// blows latency budgets. Filtering is deterministic: identical inputs always
// produce the identical candidate list.
package filter

import (
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/TomBraudo/windows-assistant/api/schemas"
)

// Constraint names one hard constraint of a filter spec.
type Constraint string

const (
	ConstraintKeyword  Constraint = "keyword"
	ConstraintPosition Constraint = "position"
	ConstraintSize     Constraint = "size"
)

// relaxationOrder is the fixed order in which hard constraints are dropped
// when they eliminate every element: keyword first, then position, then
// size. Kind allow-lists and exclude keywords are never relaxed.
var relaxationOrder = []Constraint{ConstraintKeyword, ConstraintPosition, ConstraintSize}

// PositionBounds restrict the element center, expressed as screen fractions
// in [0,1]. Nil pointers leave an edge unbounded.
type PositionBounds struct {
	XMin *float64
	XMax *float64
	YMin *float64
	YMax *float64
}

// SizeBounds restrict element extent in physical pixels and shape by aspect
// ratio (width/height). Zero values leave an edge unbounded.
type SizeBounds struct {
	MinWidth  float64
	MaxWidth  float64
	MinHeight float64
	MaxHeight float64
	MinAspect float64
	MaxAspect float64
}

// Spec is one filter specification.
type Spec struct {
	Position *PositionBounds
	Size     *SizeBounds
	// Kinds is a type allow-list; empty admits every kind.
	Kinds []schemas.ElementKind
	// Keywords keep elements whose description contains at least one entry.
	Keywords []string
	// ExcludeKeywords drop elements whose description contains any entry.
	// Excluded elements are never relaxed back in.
	ExcludeKeywords []string
	// Strict disables relaxation: an empty result is a valid outcome and is
	// reported as such, not treated as an error.
	Strict bool
}

// Result is the ordered candidate list plus which constraints, in order,
// had to be relaxed to produce it.
type Result struct {
	Candidates []schemas.Element
	Relaxed    []Constraint
}

// Filter ranks and narrows detected elements. Construct one per display;
// width and height are the physical extent the fraction bounds refer to.
type Filter struct {
	width  float64
	height float64
	logger *zap.Logger
}

// New creates a filter for a display of the given physical extent.
func New(width, height float64, logger *zap.Logger) *Filter {
	return &Filter{width: width, height: height, logger: logger.Named("filter")}
}

// Apply narrows elements under spec to at most budget candidates, ranked by
// composite score. When the hard constraints eliminate everything and the
// spec is not strict, constraints are dropped one at a time in
// relaxationOrder until something survives or nothing is left to relax.
func (f *Filter) Apply(elements []schemas.Element, spec Spec, budget int) Result {
	if budget <= 0 {
		return Result{Candidates: []schemas.Element{}}
	}

	// Exclusions apply before anything else and are permanent.
	pool := f.exclude(elements, spec.ExcludeKeywords)
	pool = f.byKind(pool, spec.Kinds)

	active := map[Constraint]bool{
		ConstraintKeyword:  len(spec.Keywords) > 0,
		ConstraintPosition: spec.Position != nil,
		ConstraintSize:     spec.Size != nil,
	}

	var relaxed []Constraint
	survivors := f.applyHard(pool, spec, active)
	if !spec.Strict {
		for _, c := range relaxationOrder {
			if len(survivors) > 0 || !active[c] {
				continue
			}
			active[c] = false
			relaxed = append(relaxed, c)
			survivors = f.applyHard(pool, spec, active)
		}
	}

	f.logger.Debug("Filtered elements",
		zap.Int("raw", len(elements)),
		zap.Int("survivors", len(survivors)),
		zap.Int("relaxed", len(relaxed)))

	ranked := f.rank(survivors, spec)
	if len(ranked) > budget {
		ranked = ranked[:budget]
	}
	return Result{Candidates: ranked, Relaxed: relaxed}
}

func (f *Filter) applyHard(pool []schemas.Element, spec Spec, active map[Constraint]bool) []schemas.Element {
	out := make([]schemas.Element, 0, len(pool))
	for _, el := range pool {
		if active[ConstraintKeyword] && !matchesAny(el.Description, spec.Keywords) {
			continue
		}
		if active[ConstraintPosition] && !f.inPosition(el, spec.Position) {
			continue
		}
		if active[ConstraintSize] && !inSize(el, spec.Size) {
			continue
		}
		out = append(out, el)
	}
	return out
}

func (f *Filter) exclude(pool []schemas.Element, keywords []string) []schemas.Element {
	if len(keywords) == 0 {
		return pool
	}
	out := make([]schemas.Element, 0, len(pool))
	for _, el := range pool {
		if !matchesAny(el.Description, keywords) {
			out = append(out, el)
		}
	}
	return out
}

func (f *Filter) byKind(pool []schemas.Element, kinds []schemas.ElementKind) []schemas.Element {
	if len(kinds) == 0 {
		return pool
	}
	allowed := make(map[schemas.ElementKind]bool, len(kinds))
	for _, k := range kinds {
		allowed[k] = true
	}
	out := make([]schemas.Element, 0, len(pool))
	for _, el := range pool {
		if allowed[el.Kind] {
			out = append(out, el)
		}
	}
	return out
}

func (f *Filter) inPosition(el schemas.Element, b *PositionBounds) bool {
	c := el.BBox.Center()
	fx, fy := c.X/f.width, c.Y/f.height
	if b.XMin != nil && fx < *b.XMin {
		return false
	}
	if b.XMax != nil && fx > *b.XMax {
		return false
	}
	if b.YMin != nil && fy < *b.YMin {
		return false
	}
	if b.YMax != nil && fy > *b.YMax {
		return false
	}
	return true
}

func inSize(el schemas.Element, b *SizeBounds) bool {
	w, h := el.BBox.Width(), el.BBox.Height()
	if b.MinWidth > 0 && w < b.MinWidth {
		return false
	}
	if b.MaxWidth > 0 && w > b.MaxWidth {
		return false
	}
	if b.MinHeight > 0 && h < b.MinHeight {
		return false
	}
	if b.MaxHeight > 0 && h > b.MaxHeight {
		return false
	}
	if b.MinAspect > 0 || b.MaxAspect > 0 {
		if h <= 0 {
			return false
		}
		aspect := w / h
		if b.MinAspect > 0 && aspect < b.MinAspect {
			return false
		}
		if b.MaxAspect > 0 && aspect > b.MaxAspect {
			return false
		}
	}
	return true
}

// rank orders survivors by composite score: keyword-match strength, detector
// confidence and proximity to the requested region, equally weighted over
// whichever components the spec provides. Ties break by smaller bounding-box
// area, then lower id, keeping the ordering reproducible.
func (f *Filter) rank(pool []schemas.Element, spec Spec) []schemas.Element {
	out := make([]schemas.Element, len(pool))
	copy(out, pool)

	scores := make(map[int]float64, len(out))
	for _, el := range out {
		scores[el.ID] = f.score(el, spec)
	}

	sort.SliceStable(out, func(i, j int) bool {
		si, sj := scores[out[i].ID], scores[out[j].ID]
		if si != sj {
			return si > sj
		}
		ai, aj := out[i].BBox.Area(), out[j].BBox.Area()
		if ai != aj {
			return ai < aj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (f *Filter) score(el schemas.Element, spec Spec) float64 {
	var total, parts float64

	if len(spec.Keywords) > 0 {
		matched := 0
		for _, kw := range spec.Keywords {
			if strings.Contains(strings.ToLower(el.Description), strings.ToLower(kw)) {
				matched++
			}
		}
		total += float64(matched) / float64(len(spec.Keywords))
		parts++
	}

	total += el.Confidence
	parts++

	if spec.Position != nil {
		total += f.proximity(el, spec.Position)
		parts++
	}

	return total / parts
}

// proximity scores distance from the element center to the center of the
// requested region, normalized by the screen diagonal. Unbounded edges fall
// back to the screen edge.
func (f *Filter) proximity(el schemas.Element, b *PositionBounds) float64 {
	x0, x1, y0, y1 := 0.0, 1.0, 0.0, 1.0
	if b.XMin != nil {
		x0 = *b.XMin
	}
	if b.XMax != nil {
		x1 = *b.XMax
	}
	if b.YMin != nil {
		y0 = *b.YMin
	}
	if b.YMax != nil {
		y1 = *b.YMax
	}
	target := schemas.Point{X: (x0 + x1) / 2 * f.width, Y: (y0 + y1) / 2 * f.height}
	c := el.BBox.Center()
	dist := math.Hypot(c.X-target.X, c.Y-target.Y)
	diag := math.Hypot(f.width, f.height)
	if diag <= 0 {
		return 0
	}
	return 1 - dist/diag
}

func matchesAny(description string, keywords []string) bool {
	desc := strings.ToLower(description)
	for _, kw := range keywords {
		if strings.Contains(desc, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
