package ingest

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"golang.org/x/net/html"

	"github.com/cardsage/cardsage/internal/catalog"
	"github.com/cardsage/cardsage/internal/log"
)

// ErrFetch wraps price page download failures.
var ErrFetch = errors.New("fetch failed")

// Fetcher scrapes card prices from a listing page.
//
// The page is expected to carry one table row per card:
//
//	<tr data-card-id="base1-4">
//	  <td class="name">Charizard</td>
//	  <td class="set">Base Set</td>
//	  <td class="number">4/102</td>
//	  <td class="condition">Near Mint</td>
//	  <td class="price">$420.00</td>
//	</tr>
type Fetcher struct {
	collector *colly.Collector
	logger    log.Logger
}

// NewFetcher creates a Fetcher. allowedDomain restricts the collector
// to the price source's host.
func NewFetcher(allowedDomain string, logger log.Logger) *Fetcher {
	c := colly.NewCollector(
		colly.AllowedDomains(allowedDomain),
		colly.MaxDepth(1),
	)
	if logger == nil {
		logger = log.NewNop()
	}
	return &Fetcher{collector: c, logger: logger}
}

// Fetch downloads the listing page and converts each card row into a
// catalog document. Rows without an id or price are skipped with a
// warning rather than failing the whole run.
func (f *Fetcher) Fetch(url string) ([]catalog.Document, error) {
	var docs []catalog.Document
	var fetchErr error

	f.collector.OnHTML("tr[data-card-id]", func(e *colly.HTMLElement) {
		doc, err := rowToDocument(e)
		if err != nil {
			f.logger.Warn("skipping card row", "error", err, "url", e.Request.URL)
			return
		}
		docs = append(docs, doc)
	})

	f.collector.OnError(func(r *colly.Response, err error) {
		fetchErr = fmt.Errorf("%w: %s: %s", ErrFetch, r.Request.URL, err)
	})

	if err := f.collector.Visit(url); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrFetch, err)
	}
	f.collector.Wait()

	if fetchErr != nil {
		return nil, fetchErr
	}

	f.logger.Info("fetched price page", "url", url, "cards", len(docs))
	return docs, nil
}

func rowToDocument(e *colly.HTMLElement) (catalog.Document, error) {
	id := e.Attr("data-card-id")
	if id == "" {
		return catalog.Document{}, fmt.Errorf("%w: missing card id", ErrBadRecord)
	}

	cell := func(class string) string {
		return strings.TrimSpace(cellText(e.DOM.Find("td." + class)))
	}
	name := cell("name")
	price := cell("price")
	if name == "" || price == "" {
		return catalog.Document{}, fmt.Errorf("%w: card %s missing name or price", ErrBadRecord, id)
	}

	set := cell("set")
	number := cell("number")
	condition := cell("condition")

	return catalog.Document{
		ID:      id,
		Content: describeCard(name, set, number, condition, price),
		Metadata: map[string]string{
			"name":      name,
			"set":       set,
			"number":    number,
			"condition": condition,
			"price":     price,
		},
	}, nil
}

// cellText extracts the text of a selection by walking its nodes
// directly, so nested markup inside price cells (sale badges, spans)
// doesn't change the result ordering.
func cellText(sel *goquery.Selection) string {
	if sel.Length() == 0 {
		return ""
	}
	var b strings.Builder
	collectText(sel.Get(0), &b)
	return b.String()
}

func collectText(n *html.Node, b *strings.Builder) {
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
}
