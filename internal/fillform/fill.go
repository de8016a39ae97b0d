// Package fillform finds the input on a page most likely to take a one-time
// code and fills it, either whole or one digit per segmented box.
package fillform

import (
	"sort"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// selectorStrategies are tried in order; later strategies are broader.
var selectorStrategies = []string{
	`input[autocomplete="one-time-code"]`,
	`input[inputmode="numeric"]`,
	`input[type="text"], input[type="number"], input[type="tel"], input:not([type])`,
}

// Candidate is a scored input.
type Candidate struct {
	Sel   *goquery.Selection
	Attrs Attributes
	Score int
}

// Candidates returns the non-excluded inputs found by the selector
// strategies, deduplicated and sorted by score, highest first.
func Candidates(p *Page) []Candidate {
	var out []Candidate
	seen := make(map[*html.Node]int)
	for _, strategy := range selectorStrategies {
		p.Doc.Find(strategy).Each(func(_ int, s *goquery.Selection) {
			attrs := attributesOf(s)
			if attrs.Excluded() {
				return
			}
			score := Score(attrs)
			node := s.Get(0)
			if i, ok := seen[node]; ok {
				if score > out[i].Score {
					out[i].Score = score
				}
				return
			}
			seen[node] = len(out)
			out = append(out, Candidate{Sel: s, Attrs: attrs, Score: score})
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// FillOTP fills code into the best matching input and reports whether any
// fill succeeded.
func FillOTP(p *Page, code string) bool {
	if code == "" {
		return false
	}
	for _, c := range Candidates(p) {
		var ok bool
		if c.Attrs.MaxLength == singleCharMaxLength {
			ok = fillSegmented(p, c, code)
		} else {
			ok = fillWhole(p, c, code)
		}
		if ok {
			return true
		}
	}
	return false
}

func fillWhole(p *Page, c Candidate, code string) bool {
	if !editable(c.Sel) {
		return false
	}
	if c.Attrs.MaxLength > 0 && c.Attrs.MaxLength < len(code) {
		return false
	}
	p.setValue(c.Sel, code)
	return true
}

func fillSegmented(p *Page, c Candidate, code string) bool {
	boxes := segmentBoxes(c)
	if len(boxes) == 0 || len(boxes) > len(code) {
		return false
	}
	for _, b := range boxes {
		if !editable(b) {
			return false
		}
	}
	for i, b := range boxes {
		p.setValue(b, code[i:i+1])
	}
	p.focus(boxes[len(boxes)-1].Get(0))
	return true
}

// segmentBoxes collects the single-character inputs of the same kind as c in
// its nearest enclosing container, in visual order.
func segmentBoxes(c Candidate) []*goquery.Selection {
	kind := c.Attrs.Type
	container := c.Sel.Closest("form")
	if container.Length() == 0 {
		container = c.Sel.Parent()
		for up := container; up.Length() > 0 && !up.Is("html"); up = up.Parent() {
			if len(sameKindBoxes(up, kind)) > 1 {
				container = up
				break
			}
		}
	}
	boxes := sameKindBoxes(container, kind)
	if len(boxes) == 0 {
		boxes = []*goquery.Selection{c.Sel}
	}
	return visualOrder(boxes)
}

func sameKindBoxes(container *goquery.Selection, kind string) []*goquery.Selection {
	var out []*goquery.Selection
	container.Find("input").Each(func(_ int, s *goquery.Selection) {
		a := attributesOf(s)
		if a.MaxLength == singleCharMaxLength && a.Type == kind && !a.Excluded() {
			out = append(out, s)
		}
	})
	return out
}

// visualOrder sorts by top then left when every box has a position, and keeps
// document order otherwise.
func visualOrder(boxes []*goquery.Selection) []*goquery.Selection {
	type placed struct {
		sel       *goquery.Selection
		top, left float64
	}
	ps := make([]placed, 0, len(boxes))
	for _, b := range boxes {
		top, left, ok := position(b)
		if !ok {
			return boxes
		}
		ps = append(ps, placed{sel: b, top: top, left: left})
	}
	sort.SliceStable(ps, func(i, j int) bool {
		if ps[i].top != ps[j].top {
			return ps[i].top < ps[j].top
		}
		return ps[i].left < ps[j].left
	})
	out := make([]*goquery.Selection, len(ps))
	for i, pl := range ps {
		out[i] = pl.sel
	}
	return out
}

func editable(s *goquery.Selection) bool {
	_, disabled := s.Attr("disabled")
	_, readonly := s.Attr("readonly")
	return !disabled && !readonly
}
