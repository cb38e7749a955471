// Package ingest reads CSV exports into frames.
package ingest

import (
	"bufio"
	"context"
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"
	"golang.org/x/text/encoding/charmap"

	"github.com/WilliamDuke02/databaseProject/pkg/frame"
	"github.com/WilliamDuke02/databaseProject/pkg/tracing"
)

var (
	ErrFileNotFound = errors.New("input file not found")
	ErrEmptyFile    = errors.New("input file has no header row")
)

type Encoding string

const (
	EncodingUTF8   Encoding = "utf-8"
	EncodingLatin1 Encoding = "latin-1"
)

// ParseEncoding accepts the usual spellings of the two supported charsets.
func ParseEncoding(name string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf8", "utf-8":
		return EncodingUTF8, nil
	case "latin1", "latin-1", "iso-8859-1", "iso8859-1":
		return EncodingLatin1, nil
	}
	return "", errors.Errorf("unsupported encoding %q", name)
}

type Reader struct {
	logger ectologger.Logger
}

func NewReader(logger ectologger.Logger) *Reader {
	return &Reader{logger: logger}
}

// ReadFile loads a CSV file with a header row. A missing file yields
// ErrFileNotFound so callers can skip it.
func (r *Reader) ReadFile(ctx context.Context, path string, enc Encoding) (*frame.Frame, error) {
	ctx, span := tracing.StartSpan(ctx, "ingest.Reader.ReadFile")
	defer span.End()

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			r.logger.WithContext(ctx).WithField("path", path).Warn("input file not found, skipping")
			return nil, errors.Wrap(ErrFileNotFound, path)
		}
		r.logger.WithContext(ctx).WithError(err).WithField("path", path).Error("failed to open input file")
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	defer file.Close()

	f, err := r.Read(ctx, file, path, enc)
	if err != nil {
		return nil, err
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"path":     path,
		"encoding": string(enc),
		"columns":  f.Width(),
		"rows":     f.Len(),
	}).Info("ingested input file")

	return f, nil
}

// Read parses CSV from src. name is only used in log and error messages.
func (r *Reader) Read(ctx context.Context, src io.Reader, name string, enc Encoding) (*frame.Frame, error) {
	var in io.Reader = src
	switch enc {
	case EncodingLatin1:
		in = charmap.ISO8859_1.NewDecoder().Reader(src)
	case EncodingUTF8, "":
		in = stripBOM(src)
	default:
		return nil, errors.Errorf("unsupported encoding %q", enc)
	}

	cr := csv.NewReader(in)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		r.logger.WithContext(ctx).WithField("path", name).Warn("input file is empty, skipping")
		return nil, errors.Wrap(ErrEmptyFile, name)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read header of %s", name)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	f := frame.New(header...)
	line := 1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read %s", name)
		}
		if isBlank(record) {
			continue
		}
		if len(record) != len(header) {
			r.logger.WithContext(ctx).WithFields(map[string]any{
				"path":     name,
				"line":     line,
				"expected": len(header),
				"actual":   len(record),
			}).Warn("row width does not match header, fitting to header")
		}
		f.Append(record)
	}

	return f, nil
}

// IsSkippable reports whether err means the input should be skipped rather
// than failing the run.
func IsSkippable(err error) bool {
	return errors.Is(err, ErrFileNotFound) || errors.Is(err, ErrEmptyFile)
}

func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func stripBOM(src io.Reader) io.Reader {
	br := bufio.NewReader(src)
	if b, err := br.Peek(3); err == nil && string(b) == "\xef\xbb\xbf" {
		_, _ = br.Discard(3)
	}
	return br
}
