package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pricelist-cli/internal/model"
)

// Options configures ReadPriceList.
type Options struct {
	Defaults  Defaults
	Delimiter rune
	SheetName string
	HeaderRow int
}

// ReadPriceList reads a price-list file, choosing the parser by extension:
// .csv/.tsv/.txt, .xlsx or .json.
func ReadPriceList(ctx context.Context, path string, opts Options) ([]model.PriceListEntry, error) {
	ext := strings.ToLower(filepath.Ext(path))
	var (
		entries []model.PriceListEntry
		err     error
	)
	switch ext {
	case ".xlsx":
		entries, err = ReadPriceListXLSX(path, XLSXOptions{
			SheetName: opts.SheetName,
			HeaderRow: opts.HeaderRow,
			Defaults:  opts.Defaults,
		})
	case ".csv", ".tsv", ".txt", ".json":
		var f *os.File
		f, err = os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: open %s", path)
		}
		defer f.Close() //nolint:errcheck

		if ext == ".json" {
			entries, err = ReadPriceListJSON(ctx, f, opts.Defaults)
		} else {
			entries, err = Collect(StreamPriceListCSV(ctx, f, CSVOptions{
				Delimiter: opts.Delimiter,
				Defaults:  opts.Defaults,
			}))
		}
	default:
		return nil, eris.Errorf("ingest: unsupported price list format %q", ext)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read %s", path)
	}

	zap.L().Info("ingest: price list loaded",
		zap.String("path", path),
		zap.String("format", strings.TrimPrefix(ext, ".")),
		zap.Int("entries", len(entries)),
	)
	return entries, nil
}

// ReadCatalog reads a JSON catalog file.
func ReadCatalog(ctx context.Context, path string) ([]model.BaseModelSpecification, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	models, err := ReadCatalogJSON(ctx, f)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read catalog %s", path)
	}
	zap.L().Info("ingest: catalog loaded", zap.String("path", path), zap.Int("base_models", len(models)))
	return models, nil
}
