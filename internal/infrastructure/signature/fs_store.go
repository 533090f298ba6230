package signature

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/jhoicas/Concesionario-api/internal/domain"
	"github.com/jhoicas/Concesionario-api/internal/domain/entity"
	"github.com/jhoicas/Concesionario-api/internal/domain/repository"
)

var reHash = regexp.MustCompile(`^[0-9A-F]{64}$`)

// FSArtifactStore almacén append-only en disco: <dir>/<hash>/<unix-nano>.json.
// Los ficheros se crean con O_EXCL y en solo lectura; nunca se reescriben.
type FSArtifactStore struct {
	dir string
}

var _ repository.SignatureArtifactRepository = (*FSArtifactStore)(nil)

// NewFSArtifactStore crea el directorio raíz si no existe.
func NewFSArtifactStore(dir string) (*FSArtifactStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("crear almacén de firmas: %w", err)
	}
	return &FSArtifactStore{dir: dir}, nil
}

// Append escribe el artefacto. Una clave existente devuelve domain.ErrDuplicate.
func (s *FSArtifactStore) Append(ctx context.Context, a *entity.SignatureArtifact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	hash := strings.ToUpper(a.DocumentHash)
	if !reHash.MatchString(hash) {
		return fmt.Errorf("%w: huella %q", domain.ErrInvalidInput, a.DocumentHash)
	}
	dir := filepath.Join(s.dir, hash)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("crear directorio de la huella: %w", err)
	}
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return err
	}
	name := filepath.Join(dir, strconv.FormatInt(a.SignedAt.UnixNano(), 10)+".json")
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o440)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("crear artefacto: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("escribir artefacto: %w", err)
	}
	return f.Close()
}

// ListByHash artefactos de una huella en orden cronológico.
func (s *FSArtifactStore) ListByHash(ctx context.Context, documentHash string) ([]*entity.SignatureArtifact, error) {
	hash := strings.ToUpper(documentHash)
	if !reHash.MatchString(hash) {
		return nil, nil
	}
	return s.readDir(ctx, filepath.Join(s.dir, hash))
}

// List todos los artefactos del almacén.
func (s *FSArtifactStore) List(ctx context.Context) ([]*entity.SignatureArtifact, error) {
	dirs, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("leer almacén de firmas: %w", err)
	}
	var out []*entity.SignatureArtifact
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		list, err := s.readDir(ctx, filepath.Join(s.dir, d.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, list...)
	}
	return out, nil
}

func (s *FSArtifactStore) readDir(ctx context.Context, dir string) ([]*entity.SignatureArtifact, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("leer artefactos: %w", err)
	}
	out := make([]*entity.SignatureArtifact, 0, len(files))
	for _, f := range files {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if f.IsDir() || filepath.Ext(f.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, f.Name()))
		if err != nil {
			return nil, fmt.Errorf("leer artefacto: %w", err)
		}
		var a entity.SignatureArtifact
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, fmt.Errorf("artefacto %s corrupto: %w", f.Name(), err)
		}
		out = append(out, &a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SignedAt.Before(out[j].SignedAt) })
	return out, nil
}
