package respimport

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"go.uber.org/zap"
)

// CertificateStore writes certificate sheets under the uploads root, filed
// by venue and optionally copied under the client.
type CertificateStore struct {
	root string
	log  *zap.Logger
}

func NewCertificateStore(root string, log *zap.Logger) *CertificateStore {
	return &CertificateStore{root: root, log: log}
}

// Save stores the certificate as
// `<root>/venues/<venue-slug>/filings/<DD-MM-YYYY> <sanitized venue name>.pdf`
// and returns the stored path. When clientName is non-empty a second copy
// goes under the client's directory; a failure on the copy is logged but
// does not fail the save.
func (s *CertificateStore) Save(venueName, clientName string, eventDate time.Time, content []byte) (string, error) {
	filename := fmt.Sprintf("%s %s.pdf", eventDate.Format("02-01-2006"), sanitizeName(venueName))

	venuePath := filepath.Join(s.root, "venues", slugOrDefault(venueName, "unknown-venue"), "filings", filename)
	if err := writeFile(venuePath, content); err != nil {
		return "", err
	}

	if clientName != "" {
		clientPath := filepath.Join(s.root, "clients", slug.Make(clientName), "filings", filename)
		if err := writeFile(clientPath, content); err != nil {
			s.log.Warn("certificate client copy failed",
				zap.String("path", clientPath),
				zap.Error(err),
			)
		}
	}

	return venuePath, nil
}

func writeFile(path string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, content, 0o644)
}

func slugOrDefault(name, fallback string) string {
	made := slug.Make(name)
	if made == "" {
		return fallback
	}
	return made
}

// sanitizeName strips path separators and characters the portal's operators'
// filesystems reject from a name destined for a filename.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "certificate"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '-'
		}
		return r
	}, name)
}
