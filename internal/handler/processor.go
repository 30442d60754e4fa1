// Package handler turns decoded command payloads into ledger calls and
// outbound event descriptors.
package handler

import (
	"context"

	"github.com/google/uuid"

	"github.com/sourceops/open-bank-mark/internal/avro"
	"github.com/sourceops/open-bank-mark/internal/ledger"
	"github.com/sourceops/open-bank-mark/internal/producer"
)

// Topics consumed and produced by the command handler.
const (
	TopicConfirmAccountCreation = "confirm_account_creation"
	TopicConfirmMoneyTransfer   = "confirm_money_transfer"

	TopicAccountCreationConfirmed = "account_creation_confirmed"
	TopicAccountCreationFailed    = "account_creation_failed"
	TopicMoneyTransferConfirmed   = "money_transfer_confirmed"
	TopicMoneyTransferFailed      = "money_transfer_failed"
	TopicBalanceChanged           = "balance_changed"
)

// CommandProcessor handles one decoded command record. An error means the
// record could not be processed for a non-business reason and the worker
// must stop; business failures are recorded in the ledger and emitted as
// failed events, not returned.
type CommandProcessor interface {
	Process(ctx context.Context, rec avro.Record) error
}

// Ledger is the slice of the command ledger the handlers drive.
type Ledger interface {
	GetOrCreateAccountCreation(ctx context.Context, id uuid.UUID, accountType string) (ledger.AccountCreation, error)
	GetOrCreateMoneyTransfer(ctx context.Context, id uuid.UUID, tr ledger.Transfer) (ledger.MoneyTransfer, *ledger.Balance, *ledger.Balance, error)
}

// Emitter hands outbound event descriptors to the producer task.
type Emitter interface {
	Send(ctx context.Context, d producer.Data) error
}

func failData(topic, key string, id avro.Fixed16, reason string) producer.Data {
	return producer.Data{
		Topic: topic,
		Key:   key,
		Values: avro.Record{
			{Name: "id", Value: id},
			{Name: "reason", Value: avro.String(reason)},
		},
	}
}
