package data

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/contactkeval/option-analytics/internal/logger"
)

// csvColumns is the required header of a bar file, in any order.
var csvColumns = []string{"date", "open", "high", "low", "close", "volume"}

// localFileDataProvider reads daily bars from <dir>/<TICKER>.csv.
type localFileDataProvider struct {
	dir       string
	secondary Provider
}

// NewLocalFileDataProvider returns a CSV provider rooted at dir that falls
// back to secondary (which may be nil) for tickers it has no file for.
func NewLocalFileDataProvider(dir string, secondary Provider) Provider {
	return &localFileDataProvider{dir: dir, secondary: secondary}
}

func (localFileDataProv *localFileDataProvider) Secondary() Provider {
	return localFileDataProv.secondary
}

// GetBars returns the file's bars within [fromDate, toDate], sorted by date.
// A missing file or an empty range defers to the secondary provider; a
// malformed file is an error.
func (localFileDataProv *localFileDataProvider) GetBars(ctx context.Context, underlying string, fromDate, toDate time.Time) ([]Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := filepath.Join(localFileDataProv.dir, strings.ToUpper(underlying)+".csv")

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Debugf("csv: no file %s", path)
		return fromSecondary(ctx, localFileDataProv, "csv", underlying, fromDate, toDate)
	}
	if err != nil {
		return nil, fmt.Errorf("open bars file: %w", err)
	}
	defer f.Close()

	all, err := ReadBarsCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	out := make([]Bar, 0, len(all))
	for _, b := range all {
		if inRange(b.Date, fromDate, toDate) {
			out = append(out, b)
		}
	}
	logger.Tracef("csv: %s has %d of %d bars in range", path, len(out), len(all))
	if len(out) == 0 {
		return fromSecondary(ctx, localFileDataProv, "csv", underlying, fromDate, toDate)
	}
	return out, nil
}

// ReadBarsCSV parses a header row naming date,open,high,low,close,volume
// followed by one bar per row. Dates are YYYY-MM-DD.
func ReadBarsCSV(r io.Reader) ([]Bar, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range csvColumns {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("csv header missing column %q", name)
		}
	}

	var out []Bar
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}

		date, err := time.Parse(dateLayout, strings.TrimSpace(row[col["date"]]))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		b := Bar{Date: date}
		for _, f := range []struct {
			name string
			dst  *float64
		}{
			{"open", &b.Open}, {"high", &b.High}, {"low", &b.Low}, {"close", &b.Close}, {"volume", &b.Vol},
		} {
			v, err := strconv.ParseFloat(strings.TrimSpace(row[col[f.name]]), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %s: %w", line, f.name, err)
			}
			*f.dst = v
		}
		out = append(out, b)
	}
	SortBars(out)
	return out, nil
}

// WriteBarsCSV writes bars in the layout ReadBarsCSV reads.
func WriteBarsCSV(w io.Writer, bars []Bar) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvColumns); err != nil {
		return err
	}
	for _, b := range bars {
		row := []string{
			b.Date.Format(dateLayout),
			strconv.FormatFloat(b.Open, 'f', -1, 64),
			strconv.FormatFloat(b.High, 'f', -1, 64),
			strconv.FormatFloat(b.Low, 'f', -1, 64),
			strconv.FormatFloat(b.Close, 'f', -1, 64),
			strconv.FormatFloat(b.Vol, 'f', -1, 64),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
