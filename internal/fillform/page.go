package fillform

import (
	"fmt"
	"io"
	"regexp"
	"strconv"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Event types recorded when an input is mutated.
const (
	EventFocus       = "focus"
	EventNativeValue = "native-value-set" // value written through the prototype setter
	EventInput       = "input"
	EventChange      = "change"
)

// Event is one synthetic DOM event dispatched on an element.
type Event struct {
	Type   string
	Target string
}

// Page is the page-context view of a document: the DOM, the element that has
// focus and the events dispatched so far. A Page is owned by one goroutine.
type Page struct {
	Doc     *goquery.Document
	events  []Event
	focused *html.Node
}

// NewPage parses an HTML document.
func NewPage(r io.Reader) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return &Page{Doc: doc}, nil
}

// NewPageFromNode wraps an already parsed document.
func NewPageFromNode(root *html.Node) *Page {
	return &Page{Doc: goquery.NewDocumentFromNode(root)}
}

// Events returns the events dispatched so far, oldest first.
func (p *Page) Events() []Event {
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

// Focused returns the focused element, or an empty selection.
func (p *Page) Focused() *goquery.Selection {
	if p.focused == nil {
		return p.Doc.Find("__none__")
	}
	return p.Doc.FindNodes(p.focused)
}

func (p *Page) dispatch(n *html.Node, typ string) {
	p.events = append(p.events, Event{Type: typ, Target: describe(n)})
}

func (p *Page) focus(n *html.Node) {
	p.focused = n
	p.dispatch(n, EventFocus)
}

// setValue writes the value the way a framework-aware content script does:
// focus, native setter, then input and change.
func (p *Page) setValue(s *goquery.Selection, value string) {
	n := s.Get(0)
	p.focus(n)
	s.SetAttr("value", value)
	p.dispatch(n, EventNativeValue)
	p.dispatch(n, EventInput)
	p.dispatch(n, EventChange)
}

func describe(n *html.Node) string {
	s := goquery.NewDocumentFromNode(n).Selection
	if id, ok := s.Attr("id"); ok && id != "" {
		return "#" + id
	}
	if name, ok := s.Attr("name"); ok && name != "" {
		return fmt.Sprintf("%s[name=%q]", n.Data, name)
	}
	return n.Data
}

var (
	styleTop  = regexp.MustCompile(`(?i)(?:^|;)\s*top\s*:\s*(-?\d+(?:\.\d+)?)px`)
	styleLeft = regexp.MustCompile(`(?i)(?:^|;)\s*left\s*:\s*(-?\d+(?:\.\d+)?)px`)
)

// position returns the element's top/left offset from data-top/data-left or
// an inline style. ok is false when neither is present.
func position(s *goquery.Selection) (top, left float64, ok bool) {
	if t, l, found := dataPosition(s); found {
		return t, l, true
	}
	style := s.AttrOr("style", "")
	tm := styleTop.FindStringSubmatch(style)
	lm := styleLeft.FindStringSubmatch(style)
	if tm == nil && lm == nil {
		return 0, 0, false
	}
	if tm != nil {
		top, _ = strconv.ParseFloat(tm[1], 64)
	}
	if lm != nil {
		left, _ = strconv.ParseFloat(lm[1], 64)
	}
	return top, left, true
}

func dataPosition(s *goquery.Selection) (top, left float64, ok bool) {
	ts, hasTop := s.Attr("data-top")
	ls, hasLeft := s.Attr("data-left")
	if !hasTop && !hasLeft {
		return 0, 0, false
	}
	top, _ = strconv.ParseFloat(ts, 64)
	left, _ = strconv.ParseFloat(ls, 64)
	return top, left, true
}
