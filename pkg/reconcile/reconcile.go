// Package reconcile joins VIN records against the decoder table on the
// composite (prefix, check) key and splits the input into merged and
// unmerged sets.
package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/Gobusters/ectologger"

	"github.com/WilliamDuke02/databaseProject/pkg/frame"
	"github.com/WilliamDuke02/databaseProject/pkg/keys"
	"github.com/WilliamDuke02/databaseProject/pkg/tracing"
)

const (
	Key1Column = "key1"
	Key2Column = "key2"

	leftSuffix  = "_x"
	rightSuffix = "_y"
)

type Stats struct {
	Records        int `json:"records"`
	DecoderEntries int `json:"decoder_entries"`
	DecoderSkipped int `json:"decoder_skipped"`
	UnkeyedRecords int `json:"unkeyed_records"`
	MatchedRecords int `json:"matched_records"`
	MergedRows     int `json:"merged_rows"`
	Expansions     int `json:"expansions"`
	UnmergedRows   int `json:"unmerged_rows"`
	Duplicates     int `json:"duplicates_dropped"`
}

type Result struct {
	// Merged holds one row per (record, matching decoder entry) pair.
	Merged *frame.Frame
	// Unmerged holds source rows whose identifier never appears in Merged,
	// with the derived key columns appended.
	Unmerged *frame.Frame
	Stats    Stats
}

type Reconciler struct {
	deriver keys.Deriver
	logger  ectologger.Logger
}

func New(deriver keys.Deriver, logger ectologger.Logger) *Reconciler {
	return &Reconciler{
		deriver: deriver,
		logger:  logger,
	}
}

// Reconcile performs the inner join and the anti-join. Column 0 of records is
// the identifier; decoder columns 0 and 1 feed key1 and key2. Merged rows
// keep record order, and within one record, decoder order. Identifiers are
// trimmed in both outputs so later stages compare the same value.
func (r *Reconciler) Reconcile(ctx context.Context, records, decoder *frame.Frame) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "reconcile.Reconciler.Reconcile")
	defer span.End()

	if records == nil || records.Width() == 0 {
		return nil, fmt.Errorf("records have no identifier column")
	}
	if decoder == nil {
		decoder = frame.New()
	}
	if decoder.Len() > 0 && decoder.Width() < 2 {
		return nil, fmt.Errorf("decoder needs at least 2 columns, got %d", decoder.Width())
	}

	stats := Stats{
		Records:        records.Len(),
		DecoderEntries: decoder.Len(),
	}

	index := make(map[keys.Key][]int, decoder.Len())
	for i := range decoder.Rows {
		k, ok := r.deriver.ForDecoder(decoder.Value(i, 0), decoder.Value(i, 1))
		if !ok {
			stats.DecoderSkipped++
			r.logger.WithContext(ctx).WithFields(map[string]any{
				"row":    i + 1,
				"prefix": decoder.Value(i, 0),
				"check":  decoder.Value(i, 1),
			}).Warn("decoder entry has no usable key, skipping")
			continue
		}
		index[k] = append(index[k], i)
	}

	merged := frame.New(joinHeader(records.Header, decoder.Header)...)
	recordKeys := make([]keys.Key, records.Len())
	recordKeyed := make([]bool, records.Len())
	mergedIDs := make(map[string]struct{})

	ids := make([]string, records.Len())
	for i, row := range records.Rows {
		id := strings.TrimSpace(records.Value(i, 0))
		ids[i] = id
		k, ok := r.deriver.ForRecord(id)
		recordKeys[i], recordKeyed[i] = k, ok
		if !ok {
			stats.UnkeyedRecords++
			continue
		}

		matches := index[k]
		if len(matches) == 0 {
			continue
		}
		stats.MatchedRecords++
		stats.Expansions += len(matches) - 1
		mergedIDs[id] = struct{}{}

		for _, d := range matches {
			out := make([]string, 0, merged.Width())
			out = append(out, row...)
			out[0] = id
			out = append(out, decoder.Rows[d]...)
			merged.Append(out)
		}
	}

	unmerged := frame.New(append(append([]string{}, records.Header...), Key1Column, Key2Column)...)
	for i, row := range records.Rows {
		if _, ok := mergedIDs[ids[i]]; ok {
			continue
		}
		out := make([]string, 0, unmerged.Width())
		out = append(out, row...)
		out[0] = ids[i]
		if recordKeyed[i] {
			out = append(out, recordKeys[i].Prefix, recordKeys[i].Check)
		} else {
			out = append(out, "", "")
		}
		unmerged.Append(out)
	}

	stats.MergedRows = merged.Len()
	stats.UnmergedRows = unmerged.Len()

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"records":         stats.Records,
		"decoder_entries": stats.DecoderEntries,
		"decoder_skipped": stats.DecoderSkipped,
		"matched_records": stats.MatchedRecords,
		"merged_rows":     stats.MergedRows,
		"expansions":      stats.Expansions,
		"unmerged_rows":   stats.UnmergedRows,
	}).Info("reconciled records against decoder")

	return &Result{
		Merged:   merged,
		Unmerged: unmerged,
		Stats:    stats,
	}, nil
}

// joinHeader concatenates both headers, suffixing names present on both
// sides with _x (records) and _y (decoder).
func joinHeader(left, right []string) []string {
	inLeft := make(map[string]bool, len(left))
	for _, h := range left {
		inLeft[h] = true
	}
	inRight := make(map[string]bool, len(right))
	for _, h := range right {
		inRight[h] = true
	}

	out := make([]string, 0, len(left)+len(right))
	for _, h := range left {
		if inRight[h] {
			h += leftSuffix
		}
		out = append(out, h)
	}
	for _, h := range right {
		if inLeft[h] {
			h += rightSuffix
		}
		out = append(out, h)
	}
	return out
}
