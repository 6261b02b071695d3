package models

import (
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindFromID(t *testing.T) {
	cases := []struct {
		id   string
		want Kind
		ok   bool
	}{
		{"ORD-01J9Z6", KindOrder, true},
		{"TICK-01J9Z6", KindTicket, true},
		{"JUST-01J9Z6", KindJustification, true},
		{"CERT-01J9Z6", KindCertificate, true},
		{"RES-01J9Z6", KindReservation, true},
		{"NOPE-01J9Z6", "", false},
		{"01J9Z6", "", false},
	}
	for _, c := range cases {
		got, ok := KindFromID(c.id)
		assert.Equal(t, c.ok, ok, c.id)
		assert.Equal(t, c.want, got, c.id)
	}
}

func TestNamespaceRoundTrip(t *testing.T) {
	for _, k := range Kinds {
		got, ok := KindFromNamespace(k.Namespace())
		require.True(t, ok, k)
		assert.Equal(t, k, got)
	}
	_, ok := KindFromNamespace("claims")
	assert.False(t, ok)
}

func TestTransitionsPerKind(t *testing.T) {
	assert.True(t, KindJustification.Allows(Approve))
	assert.True(t, KindJustification.Allows(Reject))
	assert.False(t, KindJustification.Allows(Resolve))
	assert.True(t, KindTicket.Allows(Resolve))
	assert.False(t, KindOrder.Allows(Approve))
	assert.False(t, KindReservation.Allows(Reject))

	for _, tr := range []Transition{Approve, Reject, Resolve} {
		assert.True(t, tr.To.Terminal(), tr.Name)
		for _, from := range tr.From {
			assert.False(t, from.Terminal(), tr.Name)
		}
	}
}

func TestStamp(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	var o Order
	o.Stamp("ORD-X", KindOrder, now)
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, now.UnixMilli(), o.CreatedAt)
	assert.Equal(t, o.CreatedAt, o.UpdatedAt)
	assert.Equal(t, "2026-03-02T10:00:00Z", o.CreatedAtISO)

	var tk Ticket
	tk.Stamp("TICK-X", KindTicket, now)
	assert.Equal(t, StatusOpen, tk.Status)
}

func TestHeaderFlattenedInItem(t *testing.T) {
	j := Justification{UserName: "Ana", Reason: "cita médica"}
	j.Stamp("JUST-1", KindJustification, time.UnixMilli(1700000000000))

	item, err := attributevalue.MarshalMap(&j)
	require.NoError(t, err)
	assert.Equal(t, &types.AttributeValueMemberS{Value: "JUST-1"}, item["id"])
	assert.Equal(t, &types.AttributeValueMemberN{Value: "1700000000000"}, item["createdAt"])
	_, isNull := item["attachment"].(*types.AttributeValueMemberNULL)
	assert.True(t, isNull, "missing attachment is stored as null")

	var back Justification
	require.NoError(t, attributevalue.UnmarshalMap(item, &back))
	assert.Equal(t, j, back)
}
