package domain

import (
	"errors"
	"fmt"
)

// ErrReferenceCorpusUnavailable signals degraded mode: a CPE or CVE corpus
// could not be opened. The engine proceeds with empty candidate sets.
var ErrReferenceCorpusUnavailable = errors.New("reference corpus unavailable")

// FetchError is a terminal retrieval failure for one URL. Transient causes
// are retried before one of these is produced; callers must keep processing
// the rest of the batch.
type FetchError struct {
	URL   string
	Cause error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Cause)
}

func (e *FetchError) Unwrap() error { return e.Cause }

// ParseError is a document-level extraction failure. The document is
// skipped; the batch continues. CertID is set when the owning certificate
// could still be identified, empty for orphan documents.
type ParseError struct {
	URL    string
	CertID string
	Reason string
}

func (e *ParseError) Error() string {
	if e.CertID != "" {
		return fmt.Sprintf("parse %s (cert %s): %s", e.URL, e.CertID, e.Reason)
	}
	return fmt.Sprintf("parse %s: %s", e.URL, e.Reason)
}

// SchemaMismatchError is fatal at snapshot load time. The dataset must not
// be partially loaded when this is returned.
type SchemaMismatchError struct {
	Got  string
	Want string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("snapshot schema %q is not supported (want %q)", e.Got, e.Want)
}
