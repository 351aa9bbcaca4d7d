// Package ledger loads the raw transaction ledger the pipeline starts from.
package ledger

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dvloznov/finance-report-agent/internal/domain"
	"github.com/shopspring/decimal"
)

// File is a ledger on local disk. It is read on every call so a resumed run
// sees edits made between stages.
type File struct {
	Path string
}

// Transactions loads the ledger.
func (f File) Transactions(ctx context.Context) ([]domain.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Load(f.Path)
}

// Load reads a ledger file, dispatching on its extension (.csv or .json).
func Load(path string) ([]domain.Transaction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ledger.Load: open %q: %w", path, err)
	}
	defer f.Close()

	var txs []domain.Transaction
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		txs, err = ReadJSON(f)
	case ".csv", "":
		txs, err = ReadCSV(f)
	default:
		return nil, fmt.Errorf("ledger.Load: unsupported ledger format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("ledger.Load: %s: %w", path, err)
	}
	return txs, nil
}

// ReadCSV parses a ledger with a header row containing at least date,
// merchant and amount. Description is optional; column order is free and
// header names are matched case-insensitively. Blank rows are skipped.
func ReadCSV(r io.Reader) ([]domain.Transaction, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("ReadCSV: missing header row")
	}
	if err != nil {
		return nil, fmt.Errorf("ReadCSV: reading header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"date", "merchant", "amount"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("ReadCSV: missing required column %q", required)
		}
	}
	descCol, hasDesc := cols["description"]

	var txs []domain.Transaction
	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ReadCSV: row %d: %w", line, err)
		}
		if isBlank(record) {
			continue
		}

		field := func(i int) string {
			if i < len(record) {
				return strings.TrimSpace(record[i])
			}
			return ""
		}

		amountStr := field(cols["amount"])
		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return nil, fmt.Errorf("ReadCSV: row %d: invalid amount %q: %w", line, amountStr, err)
		}

		tx := domain.Transaction{
			Date:     field(cols["date"]),
			Merchant: field(cols["merchant"]),
			Amount:   amount,
		}
		if tx.Date == "" {
			return nil, fmt.Errorf("ReadCSV: row %d: required field %q is empty", line, "date")
		}
		if tx.Merchant == "" {
			return nil, fmt.Errorf("ReadCSV: row %d: required field %q is empty", line, "merchant")
		}
		if hasDesc {
			tx.Description = field(descCol)
		}

		txs = append(txs, tx)
	}

	return txs, nil
}

// ReadJSON parses a ledger stored as a JSON array of transactions.
func ReadJSON(r io.Reader) ([]domain.Transaction, error) {
	var txs []domain.Transaction
	if err := json.NewDecoder(r).Decode(&txs); err != nil {
		return nil, fmt.Errorf("ReadJSON: decode: %w", err)
	}
	for i, tx := range txs {
		if strings.TrimSpace(tx.Date) == "" || strings.TrimSpace(tx.Merchant) == "" {
			return nil, fmt.Errorf("ReadJSON: transaction %d: date and merchant are required", i)
		}
	}
	return txs, nil
}

func isBlank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
