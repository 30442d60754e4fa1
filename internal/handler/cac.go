package handler

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sourceops/open-bank-mark/internal/avro"
	"github.com/sourceops/open-bank-mark/internal/producer"
)

// AccountCreationHandler processes confirm_account_creation commands.
// Payload: [id fixed16, a_type enum].
type AccountCreationHandler struct {
	ledger Ledger
	out    Emitter
	logger *zap.Logger
}

func NewAccountCreationHandler(ledger Ledger, out Emitter, logger *zap.Logger) *AccountCreationHandler {
	return &AccountCreationHandler{ledger: ledger, out: out, logger: logger}
}

func (h *AccountCreationHandler) Process(ctx context.Context, rec avro.Record) error {
	id, err := rec.Fixed16At(0)
	if err != nil {
		return err
	}
	aType, err := rec.EnumAt(1)
	if err != nil {
		return err
	}
	cmdID := uuid.UUID(id)

	cac, err := h.ledger.GetOrCreateAccountCreation(ctx, cmdID, aType.Symbol)
	if err != nil {
		return err
	}

	key := cmdID.String()
	if cac.Reason != nil {
		return h.out.Send(ctx, failData(TopicAccountCreationFailed, key, id, *cac.Reason))
	}

	if cac.IBAN == nil || cac.Token == nil {
		return fmt.Errorf("account creation %s confirmed without iban or token", cmdID)
	}
	return h.out.Send(ctx, producer.Data{
		Topic: TopicAccountCreationConfirmed,
		Key:   key,
		Values: avro.Record{
			{Name: "id", Value: id},
			{Name: "iban", Value: avro.String(*cac.IBAN)},
			{Name: "token", Value: avro.String(*cac.Token)},
			{Name: "a_type", Value: aType},
		},
	})
}
