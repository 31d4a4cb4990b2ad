package foresight

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// LoadShocksCSV reads shocks from a CSV file:
//
//   - The first row is the header variable,period,value
//   - Every other row is one shock
//
// Rows are returned in file order, so later rows override earlier ones when
// applied to a path.
func LoadShocksCSV(path string) ([]Shock, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	shocks, err := ReadShocksCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return shocks, nil
}

// ReadShocksCSV parses the shock format described at LoadShocksCSV.
func ReadShocksCSV(r io.Reader) ([]Shock, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := map[string]int{}
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, want := range []string{"variable", "period", "value"} {
		if _, ok := col[want]; !ok {
			return nil, fmt.Errorf("header %v: missing column %q", header, want)
		}
	}

	var shocks []Shock
	for row := 2; ; row++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", row, err)
		}
		// Skip completely empty lines
		if len(record) == 1 && record[0] == "" {
			continue
		}

		period, err := strconv.Atoi(strings.TrimSpace(record[col["period"]]))
		if err != nil {
			return nil, fmt.Errorf("row %d: parse period %q: %w", row, record[col["period"]], err)
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(record[col["value"]]), 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: parse value %q: %w", row, record[col["value"]], err)
		}
		shocks = append(shocks, Shock{
			Variable: strings.TrimSpace(record[col["variable"]]),
			Period:   period,
			Value:    value,
		})
	}
	return shocks, nil
}

// WritePathCSV writes the path as a table: a period column followed by one
// column per variable in model order.
func WritePathCSV(w io.Writer, p *Path) error {
	cw := csv.NewWriter(w)
	names := p.model.VarNames()

	if err := cw.Write(append([]string{"period"}, names...)); err != nil {
		return err
	}
	rec := make([]string, len(names)+1)
	for t := 0; t < p.Horizon(); t++ {
		rec[0] = strconv.Itoa(t)
		for k := range names {
			rec[k+1] = strconv.FormatFloat(p.data.At(t, k), 'g', -1, 64)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// OutputPathToCSV writes the path to a file.
func OutputPathToCSV(filename string, p *Path) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("create %s: %w", filename, err)
	}
	if err := WritePathCSV(f, p); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", filename, err)
	}
	return f.Close()
}

// PrintDeviations prints the first rows of the impulse-response table.
func PrintDeviations(w io.Writer, p *Path, rows int) {
	dev := p.Deviations()
	T, K := dev.Dims()
	if rows <= 0 || rows > T {
		rows = T
	}
	fmt.Fprintf(w, "\n=== Deviations from terminal state (periods 0-%d) ===\n", rows-1)
	fmt.Fprintf(w, "%v\n", p.model.VarNames())
	fmt.Fprintf(w, "%v\n", mat.Formatted(dev.Slice(0, rows, 0, K), mat.Prefix(" "), mat.Squeeze()))
}
