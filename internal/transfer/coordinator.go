package transfer

import (
	"context"
	"errors"
	"slices"

	"github.com/google/uuid"
	interfaces "github.com/sheikh-saqib/brokerage-ledger/internal/interfaces"
	"github.com/sheikh-saqib/brokerage-ledger/internal/ledger"
	"github.com/sheikh-saqib/brokerage-ledger/internal/models"
	"github.com/sirupsen/logrus"
)

var transferKinds = []models.EntryKind{models.KindTransferOut, models.KindTransferIn}

// Coordinator moves money between two accounts as one ledger write.
type Coordinator struct {
	ledger    *ledger.Ledger
	directory interfaces.AccountDirectory
	log       logrus.FieldLogger
}

func NewCoordinator(l *ledger.Ledger, directory interfaces.AccountDirectory, log logrus.FieldLogger) *Coordinator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Coordinator{ledger: l, directory: directory, log: log}
}

// Transfer appends TRANSFER_OUT on the source and TRANSFER_IN on the
// destination under one correlation id. Both legs commit or neither does.
func (c *Coordinator) Transfer(ctx context.Context, req models.TransferRequest) (models.TransferReceipt, error) {
	log := c.log.WithFields(logrus.Fields{
		"from_account": req.FromAccount,
		"to_account":   req.ToAccount,
		"amount":       req.Amount.String(),
	})

	receipt, err := c.transfer(ctx, req)
	if err != nil {
		log.WithError(err).Warn("transfer rejected")
		return models.TransferReceipt{}, err
	}
	log.WithField("correlation_id", receipt.CorrelationID).Info("transfer committed")
	return receipt, nil
}

func (c *Coordinator) transfer(ctx context.Context, req models.TransferRequest) (models.TransferReceipt, error) {
	if req.FromAccount == req.ToAccount {
		return models.TransferReceipt{}, models.Errorf(models.ErrSameAccount, "cannot transfer to the source account").
			With("account_id", req.FromAccount)
	}
	if !req.Amount.IsPositive() {
		return models.TransferReceipt{}, models.Errorf(models.ErrInvalidAmount, "transfer amount must be positive").
			With("amount", req.Amount)
	}
	for _, id := range []string{req.FromAccount, req.ToAccount} {
		if _, err := c.directory.Account(ctx, id); err != nil {
			return models.TransferReceipt{}, err
		}
	}

	receipt := models.TransferReceipt{CorrelationID: uuid.NewString()}
	err := c.ledger.Write(ctx, []string{req.FromAccount, req.ToAccount}, func(ctx context.Context, w *ledger.Writer) error {
		var err error
		receipt.Out, err = w.Append(ctx, models.LedgerEntry{
			AccountID:     req.FromAccount,
			Kind:          models.KindTransferOut,
			Amount:        req.Amount,
			Description:   req.Description,
			CorrelationID: receipt.CorrelationID,
		})
		if err != nil {
			return err
		}
		receipt.In, err = w.Append(ctx, models.LedgerEntry{
			AccountID:     req.ToAccount,
			Kind:          models.KindTransferIn,
			Amount:        req.Amount,
			Description:   req.Description,
			CorrelationID: receipt.CorrelationID,
		})
		return err
	})
	if err != nil {
		return models.TransferReceipt{}, err
	}
	return receipt, nil
}

// TransfersOf rebuilds the logical transfers of an account, newest first.
// The counterparty is found through the shared correlation id and named via
// the account directory.
func (c *Coordinator) TransfersOf(ctx context.Context, accountID string) ([]models.Transfer, error) {
	if _, err := c.directory.Account(ctx, accountID); err != nil {
		return nil, err
	}

	store := c.ledger.Store()
	var (
		own          []models.LedgerEntry
		correlations []string
	)
	for e, err := range store.Entries(ctx, models.EntryFilter{
		AccountIDs: []string{accountID},
		Kinds:      transferKinds,
		Descending: true,
	}) {
		if err != nil {
			return nil, err
		}
		own = append(own, e)
		correlations = append(correlations, e.CorrelationID)
	}
	if len(own) == 0 {
		return []models.Transfer{}, nil
	}

	counterparts := make(map[string]string, len(own))
	for e, err := range store.Entries(ctx, models.EntryFilter{
		Kinds:          transferKinds,
		CorrelationIDs: slices.Compact(slices.Sorted(slices.Values(correlations))),
	}) {
		if err != nil {
			return nil, err
		}
		if e.AccountID != accountID {
			counterparts[e.CorrelationID] = e.AccountID
		}
	}

	names := make(map[string]string)
	transfers := make([]models.Transfer, 0, len(own))
	for _, e := range own {
		other, ok := counterparts[e.CorrelationID]
		if !ok {
			return nil, models.Errorf(models.ErrReconciliationMismatch, "transfer leg without counterpart").
				With("entry_id", e.ID).
				With("correlation_id", e.CorrelationID)
		}
		name, err := c.counterpartyName(ctx, names, other)
		if err != nil {
			return nil, err
		}

		direction := models.DirectionIncoming
		if e.Kind == models.KindTransferOut {
			direction = models.DirectionOutgoing
		}
		transfers = append(transfers, models.Transfer{
			CorrelationID:    e.CorrelationID,
			AccountID:        accountID,
			CounterpartyID:   other,
			CounterpartyName: name,
			Direction:        direction,
			Amount:           e.Amount,
			Description:      e.Description,
			CreatedAt:        e.CreatedAt,
		})
	}
	return transfers, nil
}

// counterpartyName resolves and memoizes a display name. Accounts that no
// longer exist in the directory get an empty name.
func (c *Coordinator) counterpartyName(ctx context.Context, cache map[string]string, accountID string) (string, error) {
	if name, ok := cache[accountID]; ok {
		return name, nil
	}
	account, err := c.directory.Account(ctx, accountID)
	switch {
	case errors.Is(err, models.ErrUnknownAccount):
		cache[accountID] = ""
	case err != nil:
		return "", err
	default:
		cache[accountID] = account.Name
	}
	return cache[accountID], nil
}
