package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	"stockcore/internal/core/entity"
	"stockcore/internal/core/id"
	"stockcore/internal/core/tenant"
	"stockcore/internal/domain/stockeffect"
)

// CompressionAlgo tags how the audit payload is stored.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// auditRow is the persisted shape of one stock effect audit entry.
type auditRow struct {
	ID              id.ID           `db:"id"`
	DocumentType    string          `db:"document_type"`
	DocumentID      id.ID           `db:"document_id"`
	Action          string          `db:"action"`
	UserID          string          `db:"user_id"`
	Payload         json.RawMessage `db:"payload"`
	PayloadZstd     []byte          `db:"payload_zstd"`
	CompressionAlgo CompressionAlgo `db:"compression_algo"`
	CreatedAt       time.Time       `db:"created_at"`
}

// AuditService persists stock effect audit entries, compressing large line
// payloads with zstd.
type AuditService struct {
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int
}

var _ stockeffect.EffectAuditor = (*AuditService)(nil)

// NewAuditService creates an audit service.
func NewAuditService() (*AuditService, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &AuditService{
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: 10 * 1024,
	}, nil
}

// Record implements stockeffect.EffectAuditor.
func (s *AuditService) Record(ctx context.Context, entry stockeffect.AuditEntry) error {
	payload, err := json.Marshal(entry.Lines)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	row := auditRow{
		ID:              id.New(),
		DocumentType:    entry.Document.EntityType,
		DocumentID:      entry.Document.EntityID,
		Action:          entry.Action,
		UserID:          tenant.ScopeOrZero(ctx).UserID,
		Payload:         payload,
		CompressionAlgo: CompressionNone,
		CreatedAt:       entry.At,
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}

	if len(payload) > s.compressThreshold {
		row.PayloadZstd = s.encoder.EncodeAll(payload, nil)
		row.Payload = nil
		row.CompressionAlgo = CompressionZstd
	}

	sql := `
		INSERT INTO sys_stock_audit (
			id, document_type, document_id, action, user_id,
			payload, payload_zstd, compression_algo, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	querier := MustGetTxManager(ctx).GetQuerier(ctx)
	_, err = querier.Exec(ctx, sql,
		row.ID, row.DocumentType, row.DocumentID, row.Action, row.UserID,
		row.Payload, row.PayloadZstd, row.CompressionAlgo, row.CreatedAt,
	)
	return err
}

// History returns the audit trail for a document, newest first, with
// compressed payloads expanded.
func (s *AuditService) History(ctx context.Context, documentType string, documentID id.ID, limit int) ([]stockeffect.AuditEntry, error) {
	sql := `
		SELECT id, document_type, document_id, action, user_id,
		       payload, payload_zstd, compression_algo, created_at
		FROM sys_stock_audit
		WHERE document_type = $1 AND document_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`

	rows, err := MustGetTxManager(ctx).GetQuerier(ctx).Query(ctx, sql, documentType, documentID, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit history: %w", err)
	}
	defer rows.Close()

	var entries []stockeffect.AuditEntry
	for rows.Next() {
		var row auditRow
		err := rows.Scan(
			&row.ID, &row.DocumentType, &row.DocumentID, &row.Action, &row.UserID,
			&row.Payload, &row.PayloadZstd, &row.CompressionAlgo, &row.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}

		payload := row.Payload
		if row.CompressionAlgo == CompressionZstd && len(row.PayloadZstd) > 0 {
			payload, err = s.decoder.DecodeAll(row.PayloadZstd, nil)
			if err != nil {
				return nil, fmt.Errorf("decompress audit payload: %w", err)
			}
		}

		entry := stockeffect.AuditEntry{
			Document: entity.NewDocumentRef(row.DocumentType, row.DocumentID),
			Action:   row.Action,
			At:       row.CreatedAt,
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &entry.Lines); err != nil {
				return nil, fmt.Errorf("unmarshal audit payload: %w", err)
			}
		}

		entries = append(entries, entry)
	}

	return entries, rows.Err()
}
