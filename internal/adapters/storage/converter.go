package storage

import (
	"encoding/json"
	"fmt"

	"github.com/seccerts/certpipe/internal/core/domain"
)

// toModel converts a domain certificate into its persistence shape.
func toModel(cert *domain.Certificate) (*CertificateModel, error) {
	docs, err := json.Marshal(cert.SourceDocuments)
	if err != nil {
		return nil, fmt.Errorf("encode source documents: %w", err)
	}
	fields, err := json.Marshal(cert.RawFields)
	if err != nil {
		return nil, fmt.Errorf("encode raw fields: %w", err)
	}
	conflicts, err := json.Marshal(cert.Conflicts)
	if err != nil {
		return nil, fmt.Errorf("encode conflicts: %w", err)
	}
	heur, err := json.Marshal(cert.Heuristics)
	if err != nil {
		return nil, fmt.Errorf("encode heuristics: %w", err)
	}

	return &CertificateModel{
		CertID:          cert.CertID,
		Framework:       string(cert.Framework),
		Status:          string(cert.Status),
		Name:            cert.Name,
		Vendor:          cert.Vendor,
		Category:        cert.Category,
		SourceDocuments: string(docs),
		RawFields:       string(fields),
		Conflicts:       string(conflicts),
		Heuristics:      string(heur),
	}, nil
}

// fromModel restores a domain certificate from its persistence shape.
func fromModel(m *CertificateModel) (*domain.Certificate, error) {
	cert := &domain.Certificate{
		CertID:    m.CertID,
		Framework: domain.Framework(m.Framework),
		Status:    domain.Status(m.Status),
		Name:      m.Name,
		Vendor:    m.Vendor,
		Category:  m.Category,
	}

	if m.SourceDocuments != "" {
		if err := json.Unmarshal([]byte(m.SourceDocuments), &cert.SourceDocuments); err != nil {
			return nil, fmt.Errorf("decode source documents for %s: %w", m.CertID, err)
		}
	}
	if m.RawFields != "" {
		if err := json.Unmarshal([]byte(m.RawFields), &cert.RawFields); err != nil {
			return nil, fmt.Errorf("decode raw fields for %s: %w", m.CertID, err)
		}
	}
	if m.Conflicts != "" {
		if err := json.Unmarshal([]byte(m.Conflicts), &cert.Conflicts); err != nil {
			return nil, fmt.Errorf("decode conflicts for %s: %w", m.CertID, err)
		}
	}
	if m.Heuristics != "" {
		if err := json.Unmarshal([]byte(m.Heuristics), &cert.Heuristics); err != nil {
			return nil, fmt.Errorf("decode heuristics for %s: %w", m.CertID, err)
		}
	}
	return cert, nil
}
