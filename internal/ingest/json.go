package ingest

import (
	"context"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pricelist-cli/internal/model"
)

// DecodeJSONArray decodes a JSON array streaming, sending each element to a channel.
// Expects input in the form [{...},{...}].
// Both channels are closed when processing completes.
func DecodeJSONArray[T any](ctx context.Context, r io.Reader) (<-chan T, <-chan error) {
	outCh := make(chan T, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(outCh)
		defer close(errCh)

		decoder := json.NewDecoder(r)

		tok, err := decoder.Token()
		if err != nil {
			if err == io.EOF {
				return
			}
			errCh <- eris.Wrap(err, "json: read opening token")
			return
		}

		delim, ok := tok.(json.Delim)
		if !ok || delim != '[' {
			errCh <- eris.Errorf("json: expected '[', got %v", tok)
			return
		}

		for decoder.More() {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "json: context cancelled")
				return
			}

			var item T
			if err := decoder.Decode(&item); err != nil {
				errCh <- eris.Wrap(err, "json: decode element")
				return
			}

			select {
			case outCh <- item:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "json: context cancelled")
				return
			}
		}

		if _, err := decoder.Token(); err != nil && err != io.EOF {
			errCh <- eris.Wrap(err, "json: read closing token")
		}
	}()

	return outCh, errCh
}

// ReadPriceListJSON decodes an array of price-list entries. Entries without a
// line index get their 1-based array position.
func ReadPriceListJSON(ctx context.Context, r io.Reader, d Defaults) ([]model.PriceListEntry, error) {
	entries, err := Collect(DecodeJSONArray[model.PriceListEntry](ctx, r))
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].LineIndex == 0 {
			entries[i].LineIndex = i + 1
		}
		applyDefaults(&entries[i], d)
	}
	return entries, nil
}

// ReadCatalogJSON decodes an array of base-model specifications. Every model
// needs an id, brand and model year.
func ReadCatalogJSON(ctx context.Context, r io.Reader) ([]model.BaseModelSpecification, error) {
	models, err := Collect(DecodeJSONArray[model.BaseModelSpecification](ctx, r))
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(models))
	for i, m := range models {
		switch {
		case m.ID == "":
			return nil, eris.Errorf("ingest: catalog entry %d has no base_model_id", i)
		case m.Brand == "" || m.ModelYear == 0:
			return nil, eris.Errorf("ingest: catalog entry %s needs brand and model_year", m.ID)
		case seen[m.ID]:
			return nil, eris.Errorf("ingest: duplicate base_model_id %s", m.ID)
		}
		seen[m.ID] = true
		if m.Specifications == nil {
			models[i].Specifications = model.SpecMap{}
		}
		if m.Source == "" {
			models[i].Source = model.SourceCatalog
		}
	}
	return models, nil
}

// Collect drains a stream, returning everything received and the first error.
func Collect[T any](outCh <-chan T, errCh <-chan error) ([]T, error) {
	var out []T
	for v := range outCh {
		out = append(out, v)
	}
	for err := range errCh {
		if err != nil {
			return out, err
		}
	}
	return out, nil
}
