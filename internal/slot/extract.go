package slot

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// ExtractOptions tunes how a document is read.
type ExtractOptions struct {
	// TableSelector is a CSS selector for the schedule table. Default: #listtable.
	TableSelector string
	// ClosedMarker is the glyph that marks a closed slot. Default: ×.
	ClosedMarker string
}

func (o *ExtractOptions) defaults() {
	o.TableSelector = strings.TrimSpace(o.TableSelector)
	if o.TableSelector == "" {
		o.TableSelector = DefaultTableSelector
	}
	if o.ClosedMarker == "" {
		o.ClosedMarker = DefaultClosedMarker
	}
}

// Result is the outcome of one extraction.
type Result struct {
	Set Set
	// Rows is the number of table rows inspected (header excluded).
	Rows int
	// Warning is non-empty when the document could not be read as a schedule
	// page. Set is empty in that case.
	Warning string
}

// Extractor parses schedule pages into slot sets.
type Extractor struct {
	opts ExtractOptions
}

func NewExtractor(opts ExtractOptions) *Extractor {
	opts.defaults()
	return &Extractor{opts: opts}
}

// ClosedMarker returns the marker this extractor classifies as closed.
func (x *Extractor) ClosedMarker() string { return x.opts.ClosedMarker }

// Extract reads doc and returns its slot set.
//
// A document without the schedule table yields an empty set and a warning;
// it never fails, so a layout change upstream degrades to "no changes".
func (x *Extractor) Extract(doc []byte) Result {
	res := Result{Set: Set{}}

	d, err := goquery.NewDocumentFromReader(bytes.NewReader(doc))
	if err != nil {
		res.Warning = fmt.Sprintf("document parse failed: %v", err)
		return res
	}

	table := d.Find(x.opts.TableSelector).First()
	if table.Length() == 0 {
		res.Warning = fmt.Sprintf("table %s not found; the page layout may have changed", x.opts.TableSelector)
		return res
	}

	rows := table.Find("tr")
	rows.Each(func(i int, tr *goquery.Selection) {
		if i == 0 {
			return // header
		}
		res.Rows++

		cells := tr.Find("td, th")
		if cells.Length() == 0 || tr.Find("td").Length() == 0 {
			return
		}

		key := Normalize(cellText(cells.First()))
		if key == "" || isSeparator(key) {
			return
		}

		last := Normalize(cellText(cells.Last()))
		status := Status(last)
		if strings.Contains(last, x.opts.ClosedMarker) {
			status = Status(x.opts.ClosedMarker)
		}
		res.Set[key] = status
	})

	return res
}

// cellText joins the cell's text nodes with a single space so that
// "13日<br>14:00" reads as "13日 14:00" rather than "13日14:00".
func cellText(sel *goquery.Selection) string {
	var parts []string
	for _, n := range sel.Nodes {
		collectText(n, &parts)
	}
	return strings.Join(parts, " ")
}

func collectText(n *html.Node, out *[]string) {
	if n == nil {
		return
	}
	if n.Type == html.TextNode {
		if s := strings.TrimSpace(n.Data); s != "" {
			*out = append(*out, s)
		}
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, out)
	}
}
