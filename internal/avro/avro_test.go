package avro

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRegistry struct {
	byID        map[int]*Schema
	byTopic     map[string]*Schema
	schemaCalls int
	latestCalls map[string]int
}

func (f *fakeRegistry) Schema(id int) (*Schema, error) {
	f.schemaCalls++
	s, ok := f.byID[id]
	if !ok {
		return nil, fmt.Errorf("unknown schema %d", id)
	}
	return s, nil
}

func (f *fakeRegistry) LatestSchema(topic string) (*Schema, error) {
	if f.latestCalls == nil {
		f.latestCalls = make(map[string]int)
	}
	f.latestCalls[topic]++
	s, ok := f.byTopic[topic]
	if !ok {
		return nil, fmt.Errorf("unknown subject %s-value", topic)
	}
	return s, nil
}

func loadSchema(t *testing.T, id int, topic string) *Schema {
	t.Helper()
	raw, err := schemaFS.ReadFile("schemas/" + topic + ".avsc")
	require.NoError(t, err)
	s, err := ParseSchema(id, string(raw))
	require.NoError(t, err)
	return s
}

func frame(id int, body []byte) []byte {
	payload := []byte{0, 0, 0, 0, byte(id)}
	return append(payload, body...)
}

var idBytes = [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}

func TestDecodeMoneyTransferCommand(t *testing.T) {
	schema := loadSchema(t, 7, "confirm_money_transfer")
	body, err := schema.Codec.BinaryFromNative(nil, map[string]interface{}{
		"id":          idBytes[:],
		"token":       "secret",
		"amount":      int64(300),
		"from":        "NL96OPEB0001234567",
		"to":          "NL15OPEB0007654321",
		"description": "rent",
	})
	require.NoError(t, err)

	reg := &fakeRegistry{byID: map[int]*Schema{7: schema}}
	dec := NewDecoder(reg)

	rec, err := dec.Decode(frame(7, body))
	require.NoError(t, err)
	assert.Equal(t, Record{
		{Name: "id", Value: Fixed16(idBytes)},
		{Name: "token", Value: String("secret")},
		{Name: "amount", Value: Long(300)},
		{Name: "from", Value: String("NL96OPEB0001234567")},
		{Name: "to", Value: String("NL15OPEB0007654321")},
		{Name: "description", Value: String("rent")},
	}, rec)

	// Second decode of the same schema id hits the cache.
	_, err = dec.Decode(frame(7, body))
	require.NoError(t, err)
	assert.Equal(t, 1, reg.schemaCalls)
}

func TestDecodeEnumCarriesIndexAndSymbol(t *testing.T) {
	schema := loadSchema(t, 3, "confirm_account_creation")
	body, err := schema.Codec.BinaryFromNative(nil, map[string]interface{}{
		"id":     idBytes[:],
		"a_type": "CHECKING",
	})
	require.NoError(t, err)

	dec := NewDecoder(&fakeRegistry{byID: map[int]*Schema{3: schema}})
	rec, err := dec.Decode(frame(3, body))
	require.NoError(t, err)

	aType, err := rec.EnumAt(1)
	require.NoError(t, err)
	assert.Equal(t, Enum{Index: 1, Symbol: "CHECKING"}, aType)
}

func TestDecodeRejectsBadFraming(t *testing.T) {
	dec := NewDecoder(&fakeRegistry{})

	_, err := dec.Decode(nil)
	assert.Error(t, err)

	_, err = dec.Decode([]byte{0, 0, 0})
	assert.Error(t, err)

	_, err = dec.Decode([]byte{1, 0, 0, 0, 7, 0})
	assert.Error(t, err)
}

func TestEncodeBalanceChanged(t *testing.T) {
	schema := loadSchema(t, 9, "balance_changed")
	reg := &fakeRegistry{byTopic: map[string]*Schema{"balance_changed": schema}}
	enc := NewEncoder(reg)

	rec := Record{
		{Name: "iban", Value: String("NL96OPEB0001234567")},
		{Name: "new_balance", Value: Long(700)},
		{Name: "changed_by", Value: Long(-300)},
		{Name: "from_to", Value: String("NL15OPEB0007654321")},
		{Name: "description", Value: String("rent")},
	}
	payload, err := enc.Encode("balance_changed", rec)
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(payload), 5)
	assert.Equal(t, []byte{0, 0, 0, 0, 9}, payload[:5])

	native, _, err := schema.Codec.NativeFromBinary(payload[5:])
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"iban":        "NL96OPEB0001234567",
		"new_balance": int64(700),
		"changed_by":  int64(-300),
		"from_to":     "NL15OPEB0007654321",
		"description": "rent",
	}, native)

	// The strategy cache is populated once per topic.
	_, err = enc.Encode("balance_changed", rec)
	require.NoError(t, err)
	assert.Equal(t, 1, reg.latestCalls["balance_changed"])
}

func TestEncodeConfirmedRoundTripsThroughDecoder(t *testing.T) {
	schema := loadSchema(t, 4, "account_creation_confirmed")
	enc := NewEncoder(&fakeRegistry{byTopic: map[string]*Schema{"account_creation_confirmed": schema}})

	payload, err := enc.Encode("account_creation_confirmed", Record{
		{Name: "id", Value: Fixed16(idBytes)},
		{Name: "iban", Value: String("NL96OPEB0001234567")},
		{Name: "token", Value: String("secret")},
		{Name: "a_type", Value: Enum{Index: 0, Symbol: "SAVINGS"}},
	})
	require.NoError(t, err)

	dec := NewDecoder(&fakeRegistry{byID: map[int]*Schema{4: schema}})
	rec, err := dec.Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, Record{
		{Name: "id", Value: Fixed16(idBytes)},
		{Name: "iban", Value: String("NL96OPEB0001234567")},
		{Name: "token", Value: String("secret")},
		{Name: "a_type", Value: Enum{Index: 0, Symbol: "SAVINGS"}},
	}, rec)
}

func TestRecordAccessorsReportTypeMismatch(t *testing.T) {
	rec := Record{
		{Name: "id", Value: Fixed16(idBytes)},
		{Name: "token", Value: String("secret")},
	}

	_, err := rec.Fixed16At(1)
	var typeErr *TypeError
	require.ErrorAs(t, err, &typeErr)
	assert.Equal(t, 1, typeErr.Pos)

	_, err = rec.LongAt(0)
	assert.ErrorAs(t, err, &typeErr)

	_, err = rec.StringAt(5)
	assert.ErrorAs(t, err, &typeErr)
}
