// Package manifest ingests the archive's daily manifest.xml documents into the catalog.
package manifest

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"market-archive/internal/catalog"
	"market-archive/internal/models"
)

const (
	dateLayout = "2006-1-2" // also accepts zero padded 2024-01-05
	timeLayout = "15:4"     // also accepts 03:07
)

// field maps one manifest attribute onto a column of T.
type field[T any] struct {
	attr   string
	column string
	set    func(row *T, raw string) error
}

var exchangeFields = []field[models.Exchange]{
	{"Name", "name", func(r *models.Exchange, v string) error { r.Name = v; return nil }},
	{"Location", "location", func(r *models.Exchange, v string) error { r.Location = v; return nil }},
}

var instrumentFields = []field[models.Instrument]{
	{"Name", "name", func(r *models.Instrument, v string) error { r.Name = v; return nil }},
	{"StorageType", "storage_type", func(r *models.Instrument, v string) error { r.StorageType = v; return nil }},
	{"Levels", "levels", func(r *models.Instrument, v string) error { r.Levels = v; return nil }},
	{"Iid", "iid", func(r *models.Instrument, v string) (err error) { r.IID, err = strconv.Atoi(strings.TrimSpace(v)); return }},
	{"AvailableIntervalBegin", "available_interval_begin", func(r *models.Instrument, v string) (err error) {
		r.AvailableIntervalBegin, err = models.ParseTimeOfDay(timeLayout, v)
		return
	}},
	{"AvailableIntervalEnd", "available_interval_end", func(r *models.Instrument, v string) (err error) {
		r.AvailableIntervalEnd, err = models.ParseTimeOfDay(timeLayout, v)
		return
	}},
}

// Parser loads one manifest into the catalog.
type Parser struct {
	store catalog.Store
}

func NewParser(store catalog.Store) *Parser {
	return &Parser{store: store}
}

type exchangeEntry struct {
	exchange    models.Exchange
	instruments []models.Instrument
}

type document struct {
	date      models.CivilDate
	exchanges []exchangeEntry
}

// ParseManifest decodes the manifest at path and stores its date, exchanges and
// instruments in document order, each parent's identity attached to its children.
// The whole document is decoded before the first store call, so a malformed or
// badly typed manifest writes nothing. Store calls commit one by one; a storage
// failure part way leaves the earlier rows in place.
func (p *Parser) ParseManifest(ctx context.Context, path string) error {
	root, err := readTree(path)
	if err != nil {
		return err
	}
	doc, err := decodeDocument(path, root)
	if err != nil {
		return err
	}

	dateID, err := p.store.GetOrCreate(ctx, &models.Date{Date: doc.date})
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	for _, entry := range doc.exchanges {
		exchange := entry.exchange
		exchange.DateID = dateID
		exchangeID, err := p.store.GetOrCreate(ctx, &exchange)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		for _, instrument := range entry.instruments {
			instrument.ExchangeID = exchangeID
			if _, err := p.store.GetOrCreate(ctx, &instrument); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
		}
	}
	return nil
}

func decodeDocument(path string, root *element) (*document, error) {
	dateEl := root.child("Date")
	if dateEl == nil {
		return nil, &MalformedManifestError{Path: path, Err: errors.New("missing <Date> element")}
	}
	raw := strings.TrimSpace(dateEl.Text)
	date, err := models.ParseCivilDate(dateLayout, raw)
	if err != nil {
		return nil, &CoercionError{Path: path, Field: "date", Value: raw, Err: err}
	}

	doc := &document{date: date}
	for _, exEl := range root.descendants("Exchange") {
		var entry exchangeEntry
		if err := decodeAttrs(path, exEl, exchangeFields, &entry.exchange); err != nil {
			return nil, err
		}
		for _, inEl := range exEl.descendants("Instrument") {
			var instrument models.Instrument
			if err := decodeAttrs(path, inEl, instrumentFields, &instrument); err != nil {
				return nil, err
			}
			entry.instruments = append(entry.instruments, instrument)
		}
		doc.exchanges = append(doc.exchanges, entry)
	}
	return doc, nil
}

func decodeAttrs[T any](path string, el *element, fields []field[T], row *T) error {
	for _, f := range fields {
		raw, ok := el.attr(f.attr)
		if !ok {
			return &MalformedManifestError{
				Path: path,
				Err:  fmt.Errorf("<%s> is missing attribute %s", el.XMLName.Local, f.attr),
			}
		}
		if err := f.set(row, raw); err != nil {
			return &CoercionError{Path: path, Field: f.column, Value: raw, Err: err}
		}
	}
	return nil
}

// element is a generic XML node.
type element struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Text     string     `xml:",chardata"`
	Children []element  `xml:",any"`
}

func readTree(path string) (*element, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()

	dec := xml.NewDecoder(f)
	var root element
	if err := dec.Decode(&root); err != nil {
		return nil, &MalformedManifestError{Path: path, Err: err}
	}
	// only comments, processing instructions and whitespace may follow the root
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &MalformedManifestError{Path: path, Err: err}
		}
		switch t := tok.(type) {
		case xml.StartElement:
			return nil, &MalformedManifestError{Path: path, Err: fmt.Errorf("unexpected element <%s> after root", t.Name.Local)}
		case xml.CharData:
			if len(strings.TrimSpace(string(t))) > 0 {
				return nil, &MalformedManifestError{Path: path, Err: errors.New("unexpected text after root")}
			}
		}
	}
	return &root, nil
}

func (e *element) child(name string) *element {
	for i := range e.Children {
		if e.Children[i].XMLName.Local == name {
			return &e.Children[i]
		}
	}
	return nil
}

// descendants returns every element below e with the given local name, in document order.
func (e *element) descendants(name string) []*element {
	var out []*element
	var walk func(*element)
	walk = func(n *element) {
		for i := range n.Children {
			c := &n.Children[i]
			if c.XMLName.Local == name {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(e)
	return out
}

func (e *element) attr(name string) (string, bool) {
	for _, a := range e.Attrs {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}
