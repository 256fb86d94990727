// Package metadata derives column descriptors from a dataset before a run:
// dtype inference and sample values locally, descriptions from the delegate.
package metadata

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/jonathan/insight-pipeline/internal/types"
)

// Data types, named the way dataframe libraries report them
const (
	DTypeInt64   = "int64"
	DTypeFloat64 = "float64"
	DTypeBool    = "bool"
	DTypeObject  = "object"
)

// MaxSamples is the number of distinct non-null sample values kept per column
const MaxSamples = 5

// profileConcurrency bounds the number of columns profiled at once
const profileConcurrency = 8

// ErrEmptyTable is returned when there is nothing to profile
var ErrEmptyTable = errors.New("metadata: table has no columns or rows")

// Profile infers a dtype and collects sample values for every column.
// Descriptions are left empty.
func Profile(ctx context.Context, table *types.Table) (types.Metadata, error) {
	if table.Empty() {
		return nil, ErrEmptyTable
	}

	md := make(types.Metadata, len(table.Columns))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(profileConcurrency)

	for i, name := range table.Columns {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			values := table.Column(name)
			md[i] = types.ColumnDescriptor{
				Name:         name,
				DataType:     InferDType(values),
				SampleValues: Samples(values, MaxSamples),
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to profile columns: %w", err)
	}
	return md, nil
}

// InferDType reports the column dtype. Integers with missing values widen to
// float64 and booleans with missing values become object. A column with no
// values at all is float64.
func InferDType(values []any) string {
	var ints, floats, bools, others, nulls int
	for _, v := range values {
		switch v.(type) {
		case nil:
			nulls++
		case int64, int, int32:
			ints++
		case float64, float32:
			floats++
		case bool:
			bools++
		default:
			others++
		}
	}

	nonNull := ints + floats + bools + others
	switch {
	case nonNull == 0:
		return DTypeFloat64
	case others > 0:
		return DTypeObject
	case bools > 0 && (ints > 0 || floats > 0):
		return DTypeObject
	case bools > 0:
		if nulls > 0 {
			return DTypeObject
		}
		return DTypeBool
	case floats > 0:
		return DTypeFloat64
	case nulls > 0:
		return DTypeFloat64
	default:
		return DTypeInt64
	}
}

// Samples returns up to n distinct non-null values in first-seen order
func Samples(values []any, n int) []any {
	samples := []any{}
	seen := make(map[any]struct{})
	for _, v := range values {
		if v == nil {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		samples = append(samples, v)
		if len(samples) == n {
			break
		}
	}
	return samples
}
