// Package parquet stores tables as local Parquet files, one file per key.
package parquet

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/common"
	pq "github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"

	"activeoi/internal/models"
	"activeoi/internal/storage"
	"activeoi/logger"
)

// Store keeps every table in <dir>/<key>. The file layout is a Datetime
// string column (RFC3339 in the display zone), a Timestamp column with Unix
// milliseconds, then one nullable DOUBLE column per table column.
type Store struct {
	dir         string
	compression string
	loc         *time.Location
	log         *logger.Log
}

// NewStore creates a store rooted at dir. loc is the zone rows are read back
// in and the zone of the Datetime column.
func NewStore(dir, compression string, loc *time.Location) *Store {
	if loc == nil {
		loc = time.UTC
	}
	return &Store{
		dir:         dir,
		compression: strings.ToLower(compression),
		loc:         loc,
		log:         logger.GetLogger(),
	}
}

// Path returns the local file for key.
func (s *Store) Path(key string) string {
	return filepath.Join(s.dir, key)
}

// Read loads the table for key. A missing file is an empty table.
func (s *Store) Read(_ context.Context, key string) (*models.Table, error) {
	path := s.Path(key)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &models.Table{}, nil
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetColumnReader(fr, 1)
	if err != nil {
		return nil, fmt.Errorf("read parquet footer %s: %w", path, err)
	}
	defer pr.ReadStop()

	root := pr.SchemaHandler.GetRootExName()
	var columns []string
	hasTimestamp, hasDatetime := false, false
	for _, info := range pr.SchemaHandler.Infos[1:] {
		switch info.ExName {
		case storage.TimestampColumn:
			hasTimestamp = true
		case storage.DatetimeColumn:
			hasDatetime = true
		default:
			columns = append(columns, info.ExName)
		}
	}
	if !hasTimestamp && !hasDatetime {
		return nil, fmt.Errorf("%w: %s has no timestamp column", storage.ErrInvalidTable, path)
	}

	tbl := &models.Table{Columns: columns}
	num := pr.GetNumRows()
	if num == 0 {
		return tbl, nil
	}

	readColumn := func(name string) ([]interface{}, error) {
		values, _, _, err := pr.ReadColumnByPath(common.ReformPathStr(root+"."+name), num)
		if err != nil {
			return nil, fmt.Errorf("read column %s: %w", name, err)
		}
		if int64(len(values)) != num {
			return nil, fmt.Errorf("%w: column %s has %d values, want %d", storage.ErrInvalidTable, name, len(values), num)
		}
		return values, nil
	}

	stamps, err := s.readTimestamps(readColumn, hasTimestamp)
	if err != nil {
		return nil, err
	}

	tbl.Rows = make([]models.TableRow, num)
	for i := range tbl.Rows {
		tbl.Rows[i] = models.TableRow{Timestamp: stamps[i], Values: make(map[string]float64, len(columns))}
	}
	for _, col := range columns {
		values, err := readColumn(col)
		if err != nil {
			return nil, err
		}
		for i, v := range values {
			switch x := v.(type) {
			case nil:
			case float64:
				tbl.Rows[i].Values[col] = x
			case float32:
				tbl.Rows[i].Values[col] = float64(x)
			default:
				return nil, fmt.Errorf("%w: column %s holds %T", storage.ErrInvalidTable, col, v)
			}
		}
	}

	s.log.WithComponent("parquet_store").WithFields(logger.Fields{
		"key":     key,
		"rows":    len(tbl.Rows),
		"columns": len(columns),
	}).Debug("table loaded")
	return tbl, nil
}

func (s *Store) readTimestamps(readColumn func(string) ([]interface{}, error), hasTimestamp bool) ([]time.Time, error) {
	if hasTimestamp {
		values, err := readColumn(storage.TimestampColumn)
		if err != nil {
			return nil, err
		}
		out := make([]time.Time, len(values))
		for i, v := range values {
			ms, ok := v.(int64)
			if !ok {
				return nil, fmt.Errorf("%w: row %d has no timestamp", storage.ErrInvalidTable, i)
			}
			out[i] = time.UnixMilli(ms).In(s.loc)
		}
		return out, nil
	}

	values, err := readColumn(storage.DatetimeColumn)
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, len(values))
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: row %d has no datetime", storage.ErrInvalidTable, i)
		}
		ts, err := time.Parse(time.RFC3339, str)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d datetime %q: %v", storage.ErrInvalidTable, i, str, err)
		}
		out[i] = ts.In(s.loc)
	}
	return out, nil
}

// Write replaces the file for key. The table is written to a temporary file in
// the same directory and renamed over the old one.
func (s *Store) Write(_ context.Context, key string, t *models.Table) error {
	if err := storage.ValidateTable(t); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}

	path := s.Path(key)
	tmp := filepath.Join(s.dir, "."+key+".tmp-"+uuid.NewString())
	if err := s.writeFile(tmp, t); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace %s: %w", path, err)
	}

	s.log.WithComponent("parquet_store").WithFields(logger.Fields{
		"key":     key,
		"rows":    len(t.Rows),
		"columns": len(t.Columns),
	}).Info("table written")
	return nil
}

func (s *Store) writeFile(path string, t *models.Table) error {
	md := make([]string, 0, len(t.Columns)+2)
	md = append(md,
		"name="+storage.DatetimeColumn+", type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL",
		"name="+storage.TimestampColumn+", type=INT64, repetitiontype=OPTIONAL",
	)
	for _, col := range t.Columns {
		md = append(md, "name="+col+", type=DOUBLE, repetitiontype=OPTIONAL")
	}

	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	pw, err := writer.NewCSVWriter(md, fw, 1)
	if err != nil {
		fw.Close()
		return fmt.Errorf("new parquet writer: %w", err)
	}

	switch s.compression {
	case "snappy", "":
		pw.CompressionType = pq.CompressionCodec_SNAPPY
	case "gzip":
		pw.CompressionType = pq.CompressionCodec_GZIP
	default:
		pw.CompressionType = pq.CompressionCodec_UNCOMPRESSED
	}

	for _, r := range t.Rows {
		rec := make([]interface{}, 0, len(md))
		rec = append(rec, r.Timestamp.In(s.loc).Format(time.RFC3339), r.Timestamp.UnixMilli())
		for _, col := range t.Columns {
			if v, ok := r.Values[col]; ok {
				rec = append(rec, v)
			} else {
				rec = append(rec, nil)
			}
		}
		if err := pw.Write(rec); err != nil {
			pw.WriteStop()
			fw.Close()
			return fmt.Errorf("write parquet record: %w", err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		fw.Close()
		return fmt.Errorf("finalize parquet: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
