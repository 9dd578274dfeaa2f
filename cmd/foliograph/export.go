package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	goarchive "github.com/moby/go-archive"

	"github.com/skarlatos/foliograph/internal/config"
)

// runExport archives the data directory (SQLite store plus NATS stream
// state) into one zstd-compressed tar. Run it while the engine is stopped so
// the database file is quiescent.
func runExport(args []string) error {
	var outputPath, dataDir string

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-f":
			if i+1 >= len(args) {
				return fmt.Errorf("missing value for -f")
			}
			i++
			outputPath = args[i]
		case "-data":
			if i+1 >= len(args) {
				return fmt.Errorf("missing value for -data")
			}
			i++
			dataDir = args[i]
		}
	}

	if outputPath == "" {
		fmt.Fprintf(os.Stderr, "Usage: foliograph export -f <output.tar.zst> [-data <dir>]\n")
		return fmt.Errorf("missing -f flag")
	}
	if dataDir == "" {
		var err error
		if dataDir, err = defaultDataDir(); err != nil {
			return err
		}
	}
	if _, err := os.Stat(dataDir); err != nil {
		return fmt.Errorf("data directory: %w", err)
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	defer zw.Close()

	tarStream, err := goarchive.TarWithOptions(dataDir, &goarchive.TarOptions{})
	if err != nil {
		return fmt.Errorf("archive data dir: %w", err)
	}
	defer tarStream.Close()

	if _, err := io.Copy(zw, tarStream); err != nil {
		return fmt.Errorf("write archive: %w", err)
	}

	// Close everything explicitly to catch write errors
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close zstd: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}

	info, _ := os.Stat(outputPath)
	size := int64(0)
	if info != nil {
		size = info.Size()
	}

	fmt.Printf("Export complete: %s (%s)\n", outputPath, formatSize(size))
	return nil
}

// runImport restores a data directory from an export archive.
func runImport(args []string) error {
	var inputPath, dataDir string
	overwrite := false

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-f":
			if i+1 >= len(args) {
				return fmt.Errorf("missing value for -f")
			}
			i++
			inputPath = args[i]
		case "-data":
			if i+1 >= len(args) {
				return fmt.Errorf("missing value for -data")
			}
			i++
			dataDir = args[i]
		case "-overwrite":
			overwrite = true
		}
	}

	if inputPath == "" {
		fmt.Fprintf(os.Stderr, "Usage: foliograph import -f <backup.tar.zst> [-data <dir>] [-overwrite]\n")
		return fmt.Errorf("missing -f flag")
	}
	if dataDir == "" {
		var err error
		if dataDir, err = defaultDataDir(); err != nil {
			return err
		}
	}

	if !overwrite {
		entries, err := os.ReadDir(dataDir)
		if err == nil && len(entries) > 0 {
			return fmt.Errorf("data directory %s is not empty, add -overwrite to replace files", dataDir)
		}
	}

	f, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return fmt.Errorf("create zstd reader: %w", err)
	}
	defer zr.Close()

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if err := goarchive.Untar(zr, dataDir, &goarchive.TarOptions{NoLchown: true}); err != nil {
		return fmt.Errorf("extract archive: %w", err)
	}

	fmt.Printf("Import complete: %s\n", dataDir)
	return nil
}

func defaultDataDir() (string, error) {
	cfg, err := config.Load()
	if err != nil {
		return "", fmt.Errorf("load config: %w", err)
	}
	return filepath.Dir(cfg.Store.Path), nil
}

func formatSize(bytes int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(gb))
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}
