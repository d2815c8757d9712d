// Package certstore resuelve referencias de certificado a archivos PKCS#12 en disco.
package certstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/jhoicas/nfse-emissor/internal/domain"
	"github.com/jhoicas/nfse-emissor/internal/domain/repository"
)

var _ repository.CertificateRepository = (*FileStore)(nil)

// FileStore lee los .p12/.pfx desde un directorio base. La referencia es el nombre
// relativo del archivo; no puede salir del directorio.
type FileStore struct {
	dir string
}

// NewFileStore crea el store sobre dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Fetch devuelve los bytes del archivo referenciado.
func (s *FileStore) Fetch(_ context.Context, ref string) ([]byte, error) {
	path, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("certificado %q: %w", ref, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("leer certificado %q: %w", ref, err)
	}
	return data, nil
}

// Save escribe el PKCS#12 bajo la referencia con permisos 0600.
func (s *FileStore) Save(_ context.Context, ref string, p12 []byte) error {
	path, err := s.resolve(ref)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("crear directorio de certificados: %w", err)
	}
	return os.WriteFile(path, p12, 0o600)
}

func (s *FileStore) resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" || filepath.IsAbs(ref) || !filepath.IsLocal(ref) {
		return "", fmt.Errorf("referencia de certificado inválida %q: %w", ref, domain.ErrInvalidInput)
	}
	return filepath.Join(s.dir, ref), nil
}
