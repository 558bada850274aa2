package main

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/spf13/pflag"

	"github.com/mtzanidakis/ghostgate/internal/config"
	"github.com/mtzanidakis/ghostgate/internal/store"
	"github.com/mtzanidakis/ghostgate/internal/vault"
)

const (
	archiveVault   = "vault.json"
	archiveExports = "exports"

	// maxArchiveMember bounds what restore reads into memory per file.
	maxArchiveMember = 64 << 20
)

func runBackup(args []string) error {
	fs := pflag.NewFlagSet("backup", pflag.ContinueOnError)
	outputPath := fs.StringP("file", "f", "", "output archive (.tar.zst)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *outputPath == "" {
		fmt.Fprintf(os.Stderr, "Usage: ghostgate backup -f <output.tar.zst>\n")
		return fmt.Errorf("missing -f flag")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := store.New(cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	n, err := writeBackup(*outputPath, db, exportDir(cfg))
	if err != nil {
		return err
	}

	info, _ := os.Stat(*outputPath)
	size := int64(0)
	if info != nil {
		size = info.Size()
	}
	fmt.Printf("Backup complete: %d files, %s\n", n, formatSize(size))
	return nil
}

// writeBackup archives the raw vault value and every export file. It
// returns the number of files written.
func writeBackup(outputPath string, kv store.KV, exports string) (int, error) {
	raw, ok, err := kv.Get(vault.StorageKey)
	if err != nil {
		return 0, fmt.Errorf("read vault: %w", err)
	}

	exportFiles, err := os.ReadDir(exports)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("read export dir: %w", err)
	}

	f, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return 0, fmt.Errorf("create zstd writer: %w", err)
	}
	defer zw.Close()

	tw := tar.NewWriter(zw)
	defer tw.Close()

	now := time.Now()
	count := 0
	if ok {
		if err := writeMember(tw, archiveVault, []byte(raw), now); err != nil {
			return 0, err
		}
		count++
	} else {
		slog.Warn("vault is empty, archive will only hold exports")
	}

	for _, e := range exportFiles {
		if e.IsDir() || filepath.Ext(e.Name()) != ".txt" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(exports, e.Name()))
		if err != nil {
			return 0, fmt.Errorf("read export %s: %w", e.Name(), err)
		}
		if err := writeMember(tw, path.Join(archiveExports, e.Name()), data, now); err != nil {
			return 0, err
		}
		count++
	}

	// Close everything explicitly to catch write errors
	if err := tw.Close(); err != nil {
		return 0, fmt.Errorf("close tar: %w", err)
	}
	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("close zstd: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("close file: %w", err)
	}
	return count, nil
}

func writeMember(tw *tar.Writer, name string, data []byte, modTime time.Time) error {
	hdr := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Mode:     0o600,
		Size:     int64(len(data)),
		ModTime:  modTime,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write tar header: %w", err)
	}
	if _, err := tw.Write(data); err != nil {
		return fmt.Errorf("write tar data: %w", err)
	}
	return nil
}

func runRestore(args []string) error {
	fs := pflag.NewFlagSet("restore", pflag.ContinueOnError)
	inputPath := fs.StringP("file", "f", "", "backup archive (.tar.zst)")
	overwrite := fs.Bool("overwrite", false, "replace an existing vault and export files")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *inputPath == "" {
		fmt.Fprintf(os.Stderr, "Usage: ghostgate restore -f <backup.tar.zst> [--overwrite]\n")
		return fmt.Errorf("missing -f flag")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := store.New(cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	n, err := restoreBackup(*inputPath, db, exportDir(cfg), *overwrite)
	if err != nil {
		return err
	}
	fmt.Printf("Restore complete: %d files\n", n)
	return nil
}

// restoreBackup checks the archive against what is already present, then
// writes the vault value and export files back.
func restoreBackup(inputPath string, kv store.KV, exports string, overwrite bool) (int, error) {
	members, err := scanArchive(inputPath)
	if err != nil {
		return 0, fmt.Errorf("scan archive: %w", err)
	}
	if len(members) == 0 {
		fmt.Println("Archive contains no vault data.")
		return 0, nil
	}

	if !overwrite {
		for _, m := range members {
			switch m.kind {
			case archiveVault:
				if len(vault.NewStore(kv, 0).Load()) > 0 {
					return 0, fmt.Errorf("vault is not empty, add --overwrite to replace it")
				}
			case archiveExports:
				if _, err := os.Stat(filepath.Join(exports, m.rel)); err == nil {
					return 0, fmt.Errorf("export %s already exists, add --overwrite to replace files", m.rel)
				}
			}
		}
	}

	f, err := os.Open(inputPath)
	if err != nil {
		return 0, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return 0, fmt.Errorf("create zstd reader: %w", err)
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	restored := 0
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return restored, fmt.Errorf("read tar entry: %w", err)
		}
		kind, rel := splitArchivePath(hdr.Name)
		if kind == "" || hdr.Typeflag != tar.TypeReg {
			continue
		}

		data, err := io.ReadAll(io.LimitReader(tr, maxArchiveMember))
		if err != nil {
			return restored, fmt.Errorf("read %s: %w", hdr.Name, err)
		}

		switch kind {
		case archiveVault:
			if _, _, err := vault.Unmarshal(data); err != nil {
				return restored, fmt.Errorf("archive vault data unreadable: %w", err)
			}
			if err := kv.Set(vault.StorageKey, string(data)); err != nil {
				return restored, fmt.Errorf("write vault: %w", err)
			}
			slog.Info("restored vault", "bytes", len(data))
		case archiveExports:
			if err := os.MkdirAll(exports, 0o700); err != nil {
				return restored, fmt.Errorf("create export dir: %w", err)
			}
			if err := os.WriteFile(filepath.Join(exports, rel), data, 0o600); err != nil {
				return restored, fmt.Errorf("write export %s: %w", rel, err)
			}
		}
		restored++
	}
	return restored, nil
}

type archiveMember struct {
	kind string
	rel  string
}

// scanArchive reads tar headers to list the members restore would
// write, without extracting file data.
func scanArchive(path string) ([]archiveMember, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	tr := tar.NewReader(zr)

	var members []archiveMember
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if kind, rel := splitArchivePath(hdr.Name); kind != "" {
			members = append(members, archiveMember{kind: kind, rel: rel})
		}
	}
	return members, nil
}

// splitArchivePath classifies a member name: ("vault.json", "vault.json")
// for the vault value, ("exports", "file.txt") for a top-level export.
// Anything else, including nested or escaping paths, returns empty
// strings.
func splitArchivePath(name string) (kind, rel string) {
	name = strings.TrimLeft(name, "./")
	if name == archiveVault {
		return archiveVault, archiveVault
	}

	dir, file, ok := strings.Cut(name, "/")
	if !ok || dir != archiveExports {
		return "", ""
	}
	if file == "" || strings.Contains(file, "/") || file == ".." || path.Ext(file) != ".txt" {
		return "", ""
	}
	return archiveExports, file
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
