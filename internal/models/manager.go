package models

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ValidExtensions are the recognized model file extensions.
var ValidExtensions = []string{".bin", ".task", ".tflite", ".litertlm"}

// ImportState is the import/validation state machine. Consumers switch
// exhaustively over the concrete types.
type ImportState interface{ importState() }

type Idle struct{}

// Copying reports transfer progress. Percent is -1 when the total size is
// unknown.
type Copying struct {
	Percent  int
	CopiedMB float64
	TotalMB  float64
}

// Processing means the file is in place and the engine is loading it.
type Processing struct{}

type Finished struct{}

// Error is a terminal failure with a human-readable reason. Recovery is a
// user action (re-select the file, restart).
type Error struct{ Reason string }

func (Idle) importState()       {}
func (Copying) importState()    {}
func (Processing) importState() {}
func (Finished) importState()   {}
func (Error) importState()      {}

// ErrNoModel is returned by Check when no model file is installed.
var ErrNoModel = errors.New("no model file installed")

const progressInterval = 500 * time.Millisecond

// Manager owns the private model directory: locating the installed model,
// validating it, and importing new model files.
type Manager struct {
	dir      string
	cacheDir string
	minSize  int64
}

// NewManager creates a manager over the given model directory. Files
// smaller than minSizeMB are treated as corrupt.
func NewManager(dir, cacheDir string, minSizeMB int64) *Manager {
	return &Manager{
		dir:      dir,
		cacheDir: cacheDir,
		minSize:  minSizeMB * 1024 * 1024,
	}
}

// CacheDir returns the inference cache directory cleared before model
// initialization.
func (m *Manager) CacheDir() string { return m.cacheDir }

// FindModel returns the path of the installed model file, or "" when none
// exists.
func (m *Manager) FindModel() (string, error) {
	entries, err := os.ReadDir(m.dir)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read model dir: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() && hasValidExtension(entry.Name()) {
			return filepath.Join(m.dir, entry.Name()), nil
		}
	}
	return "", nil
}

// Check validates the installed model. An implausibly small file is a
// truncated or corrupt download; it is deleted so the engine does not
// retry initialization against a known-bad file.
func (m *Manager) Check() (string, error) {
	path, err := m.FindModel()
	if err != nil {
		return "", err
	}
	if path == "" {
		return "", ErrNoModel
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to stat model file: %w", err)
	}
	if info.Size() < m.minSize {
		os.Remove(path)
		return "", fmt.Errorf("model file %s is too small (%d MB), deleted as corrupt",
			filepath.Base(path), info.Size()/(1024*1024))
	}
	return path, nil
}

// Import installs a model from a user-selected file: either a raw model
// file or a .tar.gz archive whose first entry with a recognized extension
// is extracted. Any previously installed model is replaced. Progress is
// reported through report (nil is allowed) at most every 500ms, ending in
// Finished or Error.
func (m *Manager) Import(srcPath string, report func(ImportState)) error {
	emit := func(s ImportState) {
		if report != nil {
			report(s)
		}
	}

	fail := func(reason string, err error) error {
		emit(Error{Reason: reason})
		if err != nil {
			return fmt.Errorf("%s: %w", reason, err)
		}
		return errors.New(reason)
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return fail("Datei konnte nicht gelesen werden", err)
	}
	defer src.Close()

	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return fail("Modellverzeichnis konnte nicht angelegt werden", err)
	}
	if err := m.removeModelFiles(); err != nil {
		return fail("Altes Modell konnte nicht entfernt werden", err)
	}

	emit(Copying{Percent: 0})

	if strings.HasSuffix(strings.ToLower(srcPath), ".tar.gz") {
		if err := m.importArchive(src, emit); err != nil {
			return err
		}
	} else {
		info, err := src.Stat()
		if err != nil {
			return fail("Dateigröße konnte nicht ermittelt werden", err)
		}
		name := filepath.Base(srcPath)
		if !hasValidExtension(name) {
			name = "gemma-model.bin"
		}
		if err := m.copyModel(src, name, info.Size(), emit); err != nil {
			return err
		}
	}

	emit(Finished{})
	return nil
}

// importArchive extracts the first valid model entry from a gzipped tar.
func (m *Manager) importArchive(src io.Reader, emit func(ImportState)) error {
	gz, err := gzip.NewReader(src)
	if err != nil {
		emit(Error{Reason: "Archiv konnte nicht entpackt werden"})
		return fmt.Errorf("failed to open gzip stream: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			emit(Error{Reason: "Archiv konnte nicht gelesen werden"})
			return fmt.Errorf("failed to read tar entry: %w", err)
		}
		if hdr.Typeflag == tar.TypeDir || !hasValidExtension(hdr.Name) {
			continue
		}
		return m.copyModel(tr, filepath.Base(hdr.Name), hdr.Size, emit)
	}

	reason := "Keine valide Modelldatei (.bin, .task, .tflite, .litertlm) im Archiv gefunden"
	emit(Error{Reason: reason})
	return errors.New(reason)
}

// copyModel streams the model into the model directory, reporting progress
// at most every 500ms.
func (m *Manager) copyModel(src io.Reader, name string, total int64, emit func(ImportState)) error {
	destPath := filepath.Join(m.dir, name)
	dest, err := os.Create(destPath)
	if err != nil {
		emit(Error{Reason: "Zieldatei konnte nicht erstellt werden"})
		return fmt.Errorf("failed to create %s: %w", destPath, err)
	}

	buf := make([]byte, 16*1024)
	var copied int64
	lastUpdate := time.Now()

	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dest.Write(buf[:n]); err != nil {
				dest.Close()
				os.Remove(destPath)
				emit(Error{Reason: "Kopieren fehlgeschlagen: " + err.Error()})
				return fmt.Errorf("failed to write model file: %w", err)
			}
			copied += int64(n)

			if now := time.Now(); now.Sub(lastUpdate) >= progressInterval {
				emit(progress(copied, total))
				lastUpdate = now
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			dest.Close()
			os.Remove(destPath)
			emit(Error{Reason: "Kopieren fehlgeschlagen: " + readErr.Error()})
			return fmt.Errorf("failed to read model data: %w", readErr)
		}
	}

	if err := dest.Close(); err != nil {
		os.Remove(destPath)
		emit(Error{Reason: "Kopieren fehlgeschlagen: " + err.Error()})
		return fmt.Errorf("failed to close model file: %w", err)
	}
	return nil
}

func progress(copied, total int64) Copying {
	percent := -1
	totalMB := 0.0
	if total > 0 {
		percent = int(copied * 100 / total)
		totalMB = float64(total) / (1024 * 1024)
	}
	return Copying{
		Percent:  percent,
		CopiedMB: float64(copied) / (1024 * 1024),
		TotalMB:  totalMB,
	}
}

// ModelSize returns a human-readable size of the installed model.
func (m *Manager) ModelSize() string {
	path, err := m.FindModel()
	if err != nil || path == "" {
		return "Not downloaded"
	}
	info, err := os.Stat(path)
	if err != nil {
		return "Not downloaded"
	}
	return fmt.Sprintf("%.2f MB", float64(info.Size())/(1024*1024))
}

// DeleteModel removes all installed model files.
func (m *Manager) DeleteModel() error {
	return m.removeModelFiles()
}

func (m *Manager) removeModelFiles() error {
	entries, err := os.ReadDir(m.dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if !entry.IsDir() && hasValidExtension(entry.Name()) {
			if err := os.Remove(filepath.Join(m.dir, entry.Name())); err != nil {
				return err
			}
		}
	}
	return nil
}

func hasValidExtension(name string) bool {
	for _, ext := range ValidExtensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}
