package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"candlepull/internal/market"
)

// CSVHeader 是输出文件的表头，时间列为 UTC。
var CSVHeader = []string{"timestamp", "Open", "High", "Low", "Close"}

// WriteCSV 按给定顺序写出表头与每根 K 线。
func WriteCSV(w io.Writer, cs market.Candles) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, c := range cs {
		if err := cw.Write(c.Row()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile 先写临时文件再 rename，避免中途失败留下半个文件。
func WriteCSVFile(path string, cs market.Candles) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if err := WriteCSV(tmp, cs); err != nil {
		tmp.Close()
		return fmt.Errorf("write csv: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
