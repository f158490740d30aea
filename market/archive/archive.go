// Package archive loads historical kline data from the zipped CSV archives
// exchanges publish for bulk download.
package archive

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xyproto/unzip"

	"github.com/finbeat/macdbot/market"
)

// Extract unpacks a downloaded kline zip archive into dstDir and returns the
// paths of the CSV files it contained.
func Extract(zipPath, dstDir string) ([]string, error) {
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return nil, fmt.Errorf("archive: create %s: %w", dstDir, err)
	}
	if err := unzip.Extract(zipPath, dstDir); err != nil {
		return nil, fmt.Errorf("archive: extract %s: %w", zipPath, err)
	}

	var csvs []string
	err := filepath.WalkDir(dstDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".csv") {
			csvs = append(csvs, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("archive: walk %s: %w", dstDir, err)
	}
	sort.Strings(csvs)
	return csvs, nil
}

// LoadCSV reads one kline CSV file. Rows use the same 12-column positional
// layout as the REST kline endpoint.
func LoadCSV(path string) ([]market.Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", path, err)
	}
	defer f.Close()

	candles, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("archive: %s: %w", path, err)
	}
	return candles, nil
}

// ReadCSV parses kline rows from r. A header row is tolerated and skipped.
func ReadCSV(r io.Reader) ([]market.Candle, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	var candles []market.Candle
	line := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line+1, err)
		}
		line++

		if line == 1 && looksLikeHeader(rec) {
			continue
		}

		raw := make([]any, len(rec))
		for i, field := range rec {
			raw[i] = field
		}
		c, err := market.ParseKline(raw)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		candles = append(candles, c)
	}
	return candles, nil
}

// LoadAll reads and concatenates every CSV under dir in name order, which
// matches chronological order for the exchange's archive naming scheme.
func LoadAll(dir string) ([]market.Candle, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("archive: read dir %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var all []market.Candle
	for _, name := range names {
		candles, err := LoadCSV(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		all = append(all, candles...)
	}
	if len(all) == 0 {
		return nil, market.ErrEmptyCandles
	}
	return all, nil
}

func looksLikeHeader(rec []string) bool {
	if len(rec) == 0 {
		return false
	}
	for _, r := range rec[0] {
		if r >= '0' && r <= '9' {
			return false
		}
	}
	return true
}
