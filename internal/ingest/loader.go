// Package ingest loads card pricing records into the catalog.
//
// Records come from two sources: local CSV exports and live price
// pages. Both are normalized into catalog documents whose content is a
// single human-readable sentence, which is what gets embedded and what
// the model sees at answer time.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cardsage/cardsage/internal/catalog"
)

// ErrBadRecord is returned when a CSV row cannot be converted into a
// catalog document.
var ErrBadRecord = errors.New("bad record")

// csv column layout: id, name, set, number, rarity, condition, price
const (
	colID = iota
	colName
	colSet
	colNumber
	colRarity
	colCondition
	colPrice
	columnCount
)

// LoadCSV reads card records from a CSV file. The first row is treated
// as a header and skipped. Malformed rows abort the load with the row
// number in the error.
func LoadCSV(path string) ([]catalog.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	docs, err := parseCSV(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return docs, nil
}

func parseCSV(r io.Reader) ([]catalog.Document, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = columnCount

	var docs []catalog.Document
	row := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row+1, err)
		}
		row++
		if row == 1 {
			continue // header
		}

		doc, err := recordToDocument(record)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func recordToDocument(record []string) (catalog.Document, error) {
	for i, field := range record {
		record[i] = strings.TrimSpace(field)
	}
	if record[colID] == "" || record[colName] == "" || record[colPrice] == "" {
		return catalog.Document{}, fmt.Errorf("%w: id, name, and price are required", ErrBadRecord)
	}

	return catalog.Document{
		ID:      record[colID],
		Content: describeCard(record[colName], record[colSet], record[colNumber], record[colCondition], record[colPrice]),
		Metadata: map[string]string{
			"name":      record[colName],
			"set":       record[colSet],
			"number":    record[colNumber],
			"rarity":    record[colRarity],
			"condition": record[colCondition],
			"price":     record[colPrice],
		},
	}, nil
}

// describeCard renders the sentence that gets embedded. Keeping the
// shape stable matters: retrieval quality depends on the content
// looking the same across ingest sources.
func describeCard(name, set, number, condition, price string) string {
	var b strings.Builder
	b.WriteString(name)
	if set != "" {
		b.WriteString(", ")
		b.WriteString(set)
	}
	if number != "" {
		b.WriteString(" ")
		b.WriteString(number)
	}
	b.WriteString(".")
	if condition != "" {
		b.WriteString(" ")
		b.WriteString(condition)
		b.WriteString(":")
	} else {
		b.WriteString(" Price:")
	}
	b.WriteString(" ")
	b.WriteString(price)
	return b.String()
}
