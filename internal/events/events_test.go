package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndDecode(t *testing.T) {
	e := New(PaymentSettled, 42, "0xC3", map[string]string{"path": "alternate"})
	require.NotEmpty(t, e.ID)
	assert.False(t, e.OccurredAt.IsZero())

	b, err := json.Marshal(e)
	require.NoError(t, err)
	got, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, uint64(42), got.RideID)
	assert.Equal(t, "alternate", got.Attributes["path"])

	_, err = Decode([]byte("{"))
	assert.Error(t, err)
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), New(RideCreated, 1, "", nil)))
	assert.NoError(t, p.Close())
}
