package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

type exportedEvent struct {
	ID         string            `json:"id"`
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  int64             `json:"createdAt"`
}

type eventRow struct {
	ID         string `parquet:"name=id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Sequence   int64  `parquet:"name=sequence, type=INT64"`
	Type       string `parquet:"name=type, type=BYTE_ARRAY, convertedtype=UTF8"`
	OrderID    string `parquet:"name=order_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Contract   string `parquet:"name=contract, type=BYTE_ARRAY, convertedtype=UTF8"`
	TokenID    string `parquet:"name=token_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Attributes string `parquet:"name=attributes, type=BYTE_ARRAY, convertedtype=UTF8"`
	CreatedAt  string `parquet:"name=created_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// writeEventsParquet stores events as a snappy compressed parquet file for
// offline analysis.
func writeEventsParquet(path string, events []exportedEvent) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(eventRow), 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, evt := range events {
		attrs, err := json.Marshal(evt.Attributes)
		if err != nil {
			pw.WriteStop()
			file.Close()
			return err
		}
		row := &eventRow{
			ID:         evt.ID,
			Sequence:   int64(evt.Sequence),
			Type:       evt.Type,
			OrderID:    evt.Attributes["id"],
			Contract:   evt.Attributes["contract"],
			TokenID:    evt.Attributes["tokenId"],
			Attributes: string(attrs),
			CreatedAt:  time.Unix(evt.CreatedAt, 0).UTC().Format(time.RFC3339),
		}
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			file.Close()
			return fmt.Errorf("parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close parquet file: %w", err)
	}
	return nil
}
