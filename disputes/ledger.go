// Package disputes records merchant disputes against escrow payments.
package disputes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/yourusername/escrow-demo/models"
)

var (
	ErrNotFound = errors.New("dispute not found")
	ErrInvalid  = errors.New("invalid dispute")
)

// Actor is recorded as the author of every history entry.
const Actor = "merchant"

const (
	ActionCreated     = "created"
	ActionAddEvidence = "addEvidence"
	ActionSetStatus   = "setStatus"
)

// Ledger is the dispute store consulted by the dashboard.
type Ledger interface {
	List(ctx context.Context) ([]*models.Dispute, error)
	Get(ctx context.Context, id string) (*models.Dispute, error)
	Create(ctx context.Context, req CreateRequest) (*models.Dispute, error)
	AddEvidence(ctx context.Context, id string, evidence models.Attachment) (*models.Dispute, error)
	SetStatus(ctx context.Context, id string, status models.DisputeStatus) (*models.Dispute, error)
}

type CreateRequest struct {
	PaymentInfoHash string
	Reason          string
	Notes           string
	Attachments     []models.Attachment
}

func (r CreateRequest) validate() error {
	hash := strings.TrimSpace(r.PaymentInfoHash)
	if hash == "" || strings.TrimSpace(r.Reason) == "" {
		return fmt.Errorf("%w: paymentInfoHash and reason are required", ErrInvalid)
	}
	if len(hash) != 66 || !strings.HasPrefix(hash, "0x") {
		return fmt.Errorf("%w: paymentInfoHash must be a 32-byte hex string", ErrInvalid)
	}
	for _, a := range r.Attachments {
		if err := validateAttachment(a); err != nil {
			return err
		}
	}
	return nil
}

func validateAttachment(a models.Attachment) error {
	if strings.TrimSpace(a.Name) == "" || strings.TrimSpace(a.URL) == "" {
		return fmt.Errorf("%w: evidence name and url are required", ErrInvalid)
	}
	return nil
}

// newDispute builds the record for a validated request.
func newDispute(req CreateRequest, now time.Time) (*models.Dispute, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate dispute id: %w", err)
	}
	d := &models.Dispute{
		ID:              id.String(),
		CreatedAt:       now,
		UpdatedAt:       now,
		PaymentInfoHash: common.HexToHash(strings.TrimSpace(req.PaymentInfoHash)).Hex(),
		Reason:          strings.TrimSpace(req.Reason),
		Notes:           req.Notes,
		Attachments:     append([]models.Attachment{}, req.Attachments...),
		Status:          models.DisputeOpen,
	}
	d.History = append(d.History, models.DisputeHistoryEntry{
		At:     now,
		Action: ActionCreated,
		By:     Actor,
		Data:   map[string]string{"reason": d.Reason},
	})
	return d, nil
}

func addEvidence(d *models.Dispute, evidence models.Attachment, now time.Time) {
	d.Attachments = append(d.Attachments, evidence)
	d.UpdatedAt = now
	d.History = append(d.History, models.DisputeHistoryEntry{
		At:     now,
		Action: ActionAddEvidence,
		By:     Actor,
		Data:   map[string]string{"name": evidence.Name, "url": evidence.URL},
	})
}

func setStatus(d *models.Dispute, status models.DisputeStatus, now time.Time) {
	d.Status = status
	d.UpdatedAt = now
	d.History = append(d.History, models.DisputeHistoryEntry{
		At:     now,
		Action: ActionSetStatus,
		By:     Actor,
		Data:   map[string]string{"status": string(status)},
	})
}

func checkStatus(status models.DisputeStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: status must be open, pending or resolved", ErrInvalid)
	}
	return nil
}
