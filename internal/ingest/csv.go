package ingest

import (
	"bufio"
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pricelist-cli/internal/model"
)

// CSVOptions configures the streaming price-list parser.
type CSVOptions struct {
	Delimiter rune // 0 sniffs ',', ';', '\t' or '|' from the header line
	Comment   rune // comment character (0 = none)
	Defaults  Defaults
}

// StreamPriceListCSV reads a CSV price list with a header row and sends one
// entry per data row. Line indexes are 1-based data-row positions. Both
// channels are closed when processing completes.
func StreamPriceListCSV(ctx context.Context, r io.Reader, opts CSVOptions) (<-chan model.PriceListEntry, <-chan error) {
	outCh := make(chan model.PriceListEntry, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(outCh)
		defer close(errCh)

		br := bufio.NewReader(r)
		delim := opts.Delimiter
		if delim == 0 {
			delim = sniffDelimiter(br)
		}

		reader := csv.NewReader(br)
		reader.Comma = delim
		if opts.Comment != 0 {
			reader.Comment = opts.Comment
		}
		reader.LazyQuotes = true
		reader.FieldsPerRecord = -1
		reader.TrimLeadingSpace = true

		header, err := reader.Read()
		if err == io.EOF {
			return
		}
		if err != nil {
			errCh <- eris.Wrap(err, "csv: read header")
			return
		}
		cols, err := NewColumns(header)
		if err != nil {
			errCh <- err
			return
		}

		line := 0
		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}

			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "csv: read row")
				return
			}
			if blank(record) {
				continue
			}
			line++

			select {
			case outCh <- cols.Entry(line, record, opts.Defaults):
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
		}
	}()

	return outCh, errCh
}

// sniffDelimiter picks the candidate that occurs most often in the first line.
func sniffDelimiter(br *bufio.Reader) rune {
	peek, _ := br.Peek(4096)
	first := string(peek)
	if i := strings.IndexByte(first, '\n'); i >= 0 {
		first = first[:i]
	}
	best, bestN := ',', 0
	for _, c := range []rune{',', ';', '\t', '|'} {
		if n := strings.Count(first, string(c)); n > bestN {
			best, bestN = c, n
		}
	}
	return best
}

func blank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
