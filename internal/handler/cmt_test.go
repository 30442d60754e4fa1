package handler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/sourceops/open-bank-mark/internal/avro"
	"github.com/sourceops/open-bank-mark/internal/ledger"
)

const (
	testIbanA   = "NL96OPEB0001234567"
	testIbanB   = "NL15OPEB0007654321"
	testForeign = "GB82WEST12345698765432"
)

func cmtRecord(from, to string, amount int64) avro.Record {
	return avro.Record{
		{Name: "id", Value: cmdFixed},
		{Name: "token", Value: avro.String("token-of-a")},
		{Name: "amount", Value: avro.Long(amount)},
		{Name: "from", Value: avro.String(from)},
		{Name: "to", Value: avro.String(to)},
		{Name: "description", Value: avro.String("rent")},
	}
}

func TestMoneyTransferSuccessBothSides(t *testing.T) {
	fl := &fakeLedger{
		cmt:   ledger.MoneyTransfer{UUID: cmdUUID},
		bFrom: &ledger.Balance{IBAN: testIbanA, Amount: 700},
		bTo:   &ledger.Balance{IBAN: testIbanB, Amount: 800},
	}
	out := &captureEmitter{}
	h := NewMoneyTransferHandler(fl, out, zaptest.NewLogger(t))

	err := h.Process(context.Background(), cmtRecord(testIbanA, testIbanB, 300))
	require.NoError(t, err)

	assert.Equal(t, cmdUUID, fl.gotCMTID)
	assert.Equal(t, ledger.Transfer{
		Token: "token-of-a", Amount: 300, From: testIbanA, To: testIbanB, Description: "rent",
	}, fl.gotTr)

	require.Len(t, out.sent, 3)

	outcome := out.sent[0]
	assert.Equal(t, TopicMoneyTransferConfirmed, outcome.Topic)
	assert.Equal(t, cmdUUID.String(), outcome.Key)
	require.Len(t, outcome.Values, 1)
	assert.Equal(t, avro.Field{Name: "id", Value: cmdFixed}, outcome.Values[0])

	fromEvent := out.sent[1]
	assert.Equal(t, TopicBalanceChanged, fromEvent.Topic)
	assert.Equal(t, testIbanA, fromEvent.Key)
	assert.Equal(t, avro.Record{
		{Name: "iban", Value: avro.String(testIbanA)},
		{Name: "new_balance", Value: avro.Long(700)},
		{Name: "changed_by", Value: avro.Long(-300)},
		{Name: "from_to", Value: avro.String(testIbanB)},
		{Name: "description", Value: avro.String("rent")},
	}, fromEvent.Values)

	toEvent := out.sent[2]
	assert.Equal(t, TopicBalanceChanged, toEvent.Topic)
	assert.Equal(t, testIbanB, toEvent.Key)
	assert.Equal(t, avro.Record{
		{Name: "iban", Value: avro.String(testIbanB)},
		{Name: "new_balance", Value: avro.Long(800)},
		{Name: "changed_by", Value: avro.Long(300)},
		{Name: "from_to", Value: avro.String(testIbanA)},
		{Name: "description", Value: avro.String("rent")},
	}, toEvent.Values)
}

func TestMoneyTransferFailure(t *testing.T) {
	fl := &fakeLedger{
		cmt: ledger.MoneyTransfer{UUID: cmdUUID, Reason: strPtr(ledger.ReasonInsufficientFunds)},
	}
	out := &captureEmitter{}
	h := NewMoneyTransferHandler(fl, out, zaptest.NewLogger(t))

	err := h.Process(context.Background(), cmtRecord(testIbanA, testIbanB, 1_100_000))
	require.NoError(t, err)

	require.Len(t, out.sent, 1)
	d := out.sent[0]
	assert.Equal(t, TopicMoneyTransferFailed, d.Topic)
	assert.Equal(t, cmdUUID.String(), d.Key)
	require.Len(t, d.Values, 2)
	assert.Equal(t, avro.Field{Name: "id", Value: cmdFixed}, d.Values[0])
	assert.Equal(t, avro.Field{Name: "reason", Value: avro.String(ledger.ReasonInsufficientFunds)}, d.Values[1])
}

func TestMoneyTransferExternalFromCreditsOnly(t *testing.T) {
	fl := &fakeLedger{
		cmt: ledger.MoneyTransfer{UUID: cmdUUID},
		bTo: &ledger.Balance{IBAN: testIbanB, Amount: 700},
	}
	out := &captureEmitter{}
	h := NewMoneyTransferHandler(fl, out, zaptest.NewLogger(t))

	err := h.Process(context.Background(), cmtRecord(testForeign, testIbanB, 200))
	require.NoError(t, err)

	require.Len(t, out.sent, 2)
	assert.Equal(t, TopicMoneyTransferConfirmed, out.sent[0].Topic)

	toEvent := out.sent[1]
	assert.Equal(t, TopicBalanceChanged, toEvent.Topic)
	assert.Equal(t, testIbanB, toEvent.Key)
	assert.Equal(t, avro.Record{
		{Name: "iban", Value: avro.String(testIbanB)},
		{Name: "new_balance", Value: avro.Long(700)},
		{Name: "changed_by", Value: avro.Long(200)},
		{Name: "from_to", Value: avro.String(testForeign)},
		{Name: "description", Value: avro.String("rent")},
	}, toEvent.Values)
}

func TestMoneyTransferReplayEmitsOutcomeOnly(t *testing.T) {
	// On replay the ledger returns the existing row with nil balances, so
	// exactly one outcome event and no balance_changed go out.
	fl := &fakeLedger{cmt: ledger.MoneyTransfer{UUID: cmdUUID}}
	out := &captureEmitter{}
	h := NewMoneyTransferHandler(fl, out, zaptest.NewLogger(t))

	err := h.Process(context.Background(), cmtRecord(testIbanA, testIbanB, 300))
	require.NoError(t, err)

	require.Len(t, out.sent, 1)
	assert.Equal(t, TopicMoneyTransferConfirmed, out.sent[0].Topic)
}

func TestMoneyTransferTypeMismatchIsFatal(t *testing.T) {
	fl := &fakeLedger{}
	out := &captureEmitter{}
	h := NewMoneyTransferHandler(fl, out, zaptest.NewLogger(t))

	rec := cmtRecord(testIbanA, testIbanB, 300)
	rec[2].Value = avro.String("300")

	err := h.Process(context.Background(), rec)
	require.Error(t, err)
	var typeErr *avro.TypeError
	assert.ErrorAs(t, err, &typeErr)
	assert.Zero(t, fl.calls)
	assert.Empty(t, out.sent)
}

func TestMoneyTransferShortRecordIsFatal(t *testing.T) {
	fl := &fakeLedger{}
	out := &captureEmitter{}
	h := NewMoneyTransferHandler(fl, out, zaptest.NewLogger(t))

	err := h.Process(context.Background(), cmtRecord(testIbanA, testIbanB, 300)[:4])
	require.Error(t, err)
	assert.Zero(t, fl.calls)
	assert.Empty(t, out.sent)
}
