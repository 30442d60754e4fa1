package handler

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sourceops/open-bank-mark/internal/avro"
	"github.com/sourceops/open-bank-mark/internal/ledger"
	"github.com/sourceops/open-bank-mark/internal/producer"
)

// MoneyTransferHandler processes confirm_money_transfer commands.
// Payload: [id fixed16, token string, amount long, from string, to string,
// description string].
type MoneyTransferHandler struct {
	ledger Ledger
	out    Emitter
	logger *zap.Logger
}

func NewMoneyTransferHandler(ledger Ledger, out Emitter, logger *zap.Logger) *MoneyTransferHandler {
	return &MoneyTransferHandler{ledger: ledger, out: out, logger: logger}
}

func (h *MoneyTransferHandler) Process(ctx context.Context, rec avro.Record) error {
	id, err := rec.Fixed16At(0)
	if err != nil {
		return err
	}
	token, err := rec.StringAt(1)
	if err != nil {
		return err
	}
	amount, err := rec.LongAt(2)
	if err != nil {
		return err
	}
	from, err := rec.StringAt(3)
	if err != nil {
		return err
	}
	to, err := rec.StringAt(4)
	if err != nil {
		return err
	}
	description, err := rec.StringAt(5)
	if err != nil {
		return err
	}
	cmdID := uuid.UUID(id)

	cmt, bFrom, bTo, err := h.ledger.GetOrCreateMoneyTransfer(ctx, cmdID, ledger.Transfer{
		Token:       token,
		Amount:      amount,
		From:        from,
		To:          to,
		Description: description,
	})
	if err != nil {
		return err
	}

	// The outcome event goes out first; balance_changed events follow in
	// from, to order. Downstream consumers rely on this.
	key := cmdID.String()
	var outcome producer.Data
	if cmt.Reason == nil {
		outcome = producer.Data{
			Topic:  TopicMoneyTransferConfirmed,
			Key:    key,
			Values: avro.Record{{Name: "id", Value: id}},
		}
	} else {
		outcome = failData(TopicMoneyTransferFailed, key, id, *cmt.Reason)
	}
	if err := h.out.Send(ctx, outcome); err != nil {
		return err
	}

	if bFrom != nil {
		if err := h.out.Send(ctx, balanceChangedData(bFrom, -amount, to, description)); err != nil {
			return err
		}
	} else {
		h.logger.Debug("No from-side balance, no balance_changed sent", zap.String("id", key))
	}
	if bTo != nil {
		if err := h.out.Send(ctx, balanceChangedData(bTo, amount, from, description)); err != nil {
			return err
		}
	} else {
		h.logger.Debug("No to-side balance, no balance_changed sent", zap.String("id", key))
	}
	return nil
}

func balanceChangedData(b *ledger.Balance, changedBy int64, counterparty, description string) producer.Data {
	return producer.Data{
		Topic: TopicBalanceChanged,
		Key:   b.IBAN,
		Values: avro.Record{
			{Name: "iban", Value: avro.String(b.IBAN)},
			{Name: "new_balance", Value: avro.Long(b.Amount)},
			{Name: "changed_by", Value: avro.Long(changedBy)},
			{Name: "from_to", Value: avro.String(counterparty)},
			{Name: "description", Value: avro.String(description)},
		},
	}
}
