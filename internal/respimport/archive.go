package respimport

import (
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"path"
	"strings"
)

var (
	ErrNoOutcomeDocument = errors.New("archive_missing_outcome_document")
	ErrNoCertificate     = errors.New("archive_missing_certificate")
)

// archiveContents holds the two entries a response archive is expected to
// carry: the machine-readable result document and the certificate sheet.
type archiveContents struct {
	OutcomeXML      []byte
	Certificate     []byte
	CertificateName string
}

// readArchive pulls the relevant entries out of a downloaded archive.
// Entries are recognized by name: the result document mentions "outcome" and
// ends in .xml, the certificate mentions "summary" and ends in .pdf. Other
// entries are ignored.
func readArchive(raw []byte) (*archiveContents, error) {
	reader, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, err
	}

	contents := &archiveContents{}
	for _, file := range reader.File {
		base := strings.ToLower(path.Base(file.Name))
		switch {
		case contents.OutcomeXML == nil && strings.Contains(base, "outcome") && strings.HasSuffix(base, ".xml"):
			data, err := readEntry(file)
			if err != nil {
				return nil, err
			}
			contents.OutcomeXML = data
		case contents.Certificate == nil && strings.Contains(base, "summary") && strings.HasSuffix(base, ".pdf"):
			data, err := readEntry(file)
			if err != nil {
				return nil, err
			}
			contents.Certificate = data
			contents.CertificateName = path.Base(file.Name)
		}
	}

	if contents.OutcomeXML == nil {
		return nil, ErrNoOutcomeDocument
	}
	if contents.Certificate == nil {
		return nil, ErrNoCertificate
	}
	return contents, nil
}

func readEntry(file *zip.File) ([]byte, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
