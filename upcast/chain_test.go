package upcast

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ln80/eventstorage/event"
)

func envelope(name, revision string, data string) event.SerializedDomainData {
	return event.SerializedDomainData{
		EventID:       "evt-1",
		AggregateType: "Account",
		AggregateID:   "acc-1",
		Sequence:      3,
		At:            time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC),
		Metadata:      map[string]string{"user": "alice"},
		Payload: event.SerializedObject{
			Type: event.SerializedType{Name: name, Revision: revision},
			Data: []byte(data),
		},
	}
}

func TestChain_PassThrough(t *testing.T) {
	in := envelope("account.Opened", "1", `{}`)

	for _, c := range []*Chain{nil, Empty(), NewChain(Drop("account.Closed", "1"))} {
		out, err := c.Upcast(in)
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, in, out[0])
	}
	assert.Equal(t, 0, (*Chain)(nil).Len())
	assert.Equal(t, 1, NewChain(nil, Drop("x", "1")).Len())
}

func TestChain_StagesInOrder(t *testing.T) {
	c := NewChain(
		Revise("account.Opened", "1", "2", func(data []byte) ([]byte, error) {
			return append(data, '2'), nil
		}),
		Revise("account.Opened", "2", "3", func(data []byte) ([]byte, error) {
			return append(data, '3'), nil
		}),
	)

	t.Run("upcast from the oldest revision", func(t *testing.T) {
		out, err := c.Upcast(envelope("account.Opened", "1", "v1"))
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, event.SerializedType{Name: "account.Opened", Revision: "3"}, out[0].Payload.Type)
		assert.Equal(t, "v123", string(out[0].Payload.Data))
	})

	t.Run("upcast from an intermediate revision", func(t *testing.T) {
		out, err := c.Upcast(envelope("account.Opened", "2", "v2"))
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, "v23", string(out[0].Payload.Data))
	})

	t.Run("keep the input untouched", func(t *testing.T) {
		in := envelope("account.Opened", "1", "v1")
		_, err := c.Upcast(in)
		require.NoError(t, err)
		assert.Equal(t, "v1", string(in.Payload.Data))
	})
}

func TestChain_Drop(t *testing.T) {
	c := NewChain(
		Drop("account.Audited", "1"),
		Func("account.Audited", "1", func(d event.SerializedDomainData) ([]event.SerializedDomainData, error) {
			t.Fatal("expect dropped envelopes to not reach later stages")
			return nil, nil
		}),
	)
	out, err := c.Upcast(envelope("account.Audited", "1", `{}`))
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestChain_Split(t *testing.T) {
	c := NewChain(
		Split("account.Registered", "1", func(data []byte) ([]event.SerializedObject, error) {
			return []event.SerializedObject{
				{Type: event.SerializedType{Name: "account.Opened", Revision: "2"}, Data: []byte(`{"a":1}`)},
				{Type: event.SerializedType{Name: "account.Named", Revision: "2"}, Data: []byte(`{"b":2}`)},
			}, nil
		}),
		Revise("account.Named", "2", "3", nil),
	)

	out, err := c.Upcast(envelope("account.Registered", "1", `{"a":1,"b":2}`))
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "account.Opened@2", out[0].Payload.Type.String())
	assert.Equal(t, "account.Named@3", out[1].Payload.Type.String())
	for _, o := range out {
		assert.Equal(t, "evt-1", o.EventID)
		assert.Equal(t, uint64(3), o.Sequence)
		assert.Equal(t, "acc-1", o.AggregateID)
	}
}

func TestChain_Rename(t *testing.T) {
	c := NewChain(Rename(
		event.SerializedType{Name: "bank.AccountOpened", Revision: "1"},
		event.SerializedType{Name: "account.Opened", Revision: "1"},
	))
	out, err := c.Upcast(envelope("bank.AccountOpened", "1", `{}`))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "account.Opened@1", out[0].Payload.Type.String())
}

func TestChain_ContractViolations(t *testing.T) {
	stageErr := errors.New("stage test error")

	tcs := []struct {
		name  string
		stage Upcaster
	}{
		{
			name: "stage error",
			stage: Revise("account.Opened", "1", "2", func(data []byte) ([]byte, error) {
				return nil, stageErr
			}),
		},
		{
			name: "stage panic",
			stage: Func("account.Opened", "1", func(d event.SerializedDomainData) ([]event.SerializedDomainData, error) {
				panic("boom")
			}),
		},
		{
			name:  "revision downgrade",
			stage: Rename(event.SerializedType{Name: "account.Opened", Revision: "1"}, event.SerializedType{Name: "account.Opened"}),
		},
		{
			name:  "semver revision downgrade",
			stage: Revise("account.Opened", "1", "0.9", nil),
		},
		{
			name: "sequence change",
			stage: Func("account.Opened", "1", func(d event.SerializedDomainData) ([]event.SerializedDomainData, error) {
				d.Sequence++
				return []event.SerializedDomainData{d}, nil
			}),
		},
		{
			name: "aggregate id change",
			stage: Func("account.Opened", "1", func(d event.SerializedDomainData) ([]event.SerializedDomainData, error) {
				d.AggregateID = "acc-2"
				return []event.SerializedDomainData{d}, nil
			}),
		},
		{
			name: "event id change",
			stage: Func("account.Opened", "1", func(d event.SerializedDomainData) ([]event.SerializedDomainData, error) {
				d.EventID = "evt-2"
				return []event.SerializedDomainData{d}, nil
			}),
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewChain(tc.stage).Upcast(envelope("account.Opened", "1", `{}`))
			require.Error(t, err)
			assert.ErrorIs(t, err, event.ErrUpcasting)
		})
	}

	_, err := NewChain(tcs[0].stage).Upcast(envelope("account.Opened", "1", `{}`))
	assert.ErrorIs(t, err, stageErr)
}

func TestChain_DeterminismCheck(t *testing.T) {
	calls := 0
	flaky := Revise("account.Opened", "1", "2", func(data []byte) ([]byte, error) {
		calls++
		return []byte{byte(calls)}, nil
	})

	_, err := NewChain(flaky).Upcast(envelope("account.Opened", "1", `{}`))
	require.NoError(t, err)

	c := NewChain(flaky).WithDeterminismCheck()
	_, err = c.Upcast(envelope("account.Opened", "1", `{}`))
	assert.ErrorIs(t, err, event.ErrUpcasting)

	c = NewChain(Revise("account.Opened", "1", "2", nil)).WithDeterminismCheck()
	out, err := c.Upcast(envelope("account.Opened", "1", `{}`))
	require.NoError(t, err)
	assert.Len(t, out, 1)
	assert.Equal(t, 1, c.Len())
}
