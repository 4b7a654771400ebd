package journal_test

import (
	"context"
	"testing"
	"time"

	"github.com/alovak/csob-gateway/gateway/models"
	"github.com/alovak/csob-gateway/internal/orderno"
	"github.com/alovak/csob-gateway/journal"
	"github.com/stretchr/testify/require"
)

func TestJournal_Payments(t *testing.T) {
	ctx := context.Background()
	j := journal.New()

	p := &journal.Payment{PayID: "P1", OrderNo: "5547", Amount: 10000, Currency: "czk", Status: models.StatusCreated}
	require.NoError(t, j.CreatePayment(ctx, p))

	got, err := j.GetPayment(ctx, "P1")
	require.NoError(t, err)
	require.Equal(t, "CZK", got.Currency)
	require.Equal(t, models.StatusCreated, got.Status)
	require.False(t, got.CreatedAt.IsZero())

	err = j.CreatePayment(ctx, &journal.Payment{PayID: "P2", OrderNo: "5547"})
	require.ErrorIs(t, err, journal.ErrConflict)
	err = j.CreatePayment(ctx, &journal.Payment{PayID: "P1", OrderNo: "5548"})
	require.ErrorIs(t, err, journal.ErrConflict)

	require.NoError(t, j.UpdateStatus(ctx, "P1", models.StatusConfirmed))
	got, err = j.GetPayment(ctx, "P1")
	require.NoError(t, err)
	require.Equal(t, models.StatusConfirmed, got.Status)

	_, err = j.GetPayment(ctx, "missing")
	require.ErrorIs(t, err, journal.ErrNotFound)
	require.ErrorIs(t, j.UpdateStatus(ctx, "missing", models.StatusCanceled), journal.ErrNotFound)
}

func TestJournal_Entries(t *testing.T) {
	ctx := context.Background()
	j := journal.New()

	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, j.Record(ctx, &journal.Entry{PayID: "P1", Operation: "payment/status", CreatedAt: base.Add(time.Minute), Status: models.StatusConfirmed}))
	require.NoError(t, j.Record(ctx, &journal.Entry{PayID: "P1", Operation: "payment/init", CreatedAt: base, Status: models.StatusCreated}))
	require.NoError(t, j.Record(ctx, &journal.Entry{PayID: "P2", Operation: "payment/init", ResultCode: models.ResultInvalidParameter}))

	entries, err := j.Entries(ctx, "P1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "payment/init", entries[0].Operation)
	require.Equal(t, "payment/status", entries[1].Operation)
	require.NotEmpty(t, entries[0].ID)
	require.NotEqual(t, entries[0].ID, entries[1].ID)
}

func TestJournal_OrderNumbers(t *testing.T) {
	ctx := context.Background()
	j := journal.New()
	require.NoError(t, j.CreatePayment(ctx, &journal.Payment{PayID: "P1", OrderNo: "5547"}))

	used, err := j.ExistsOrderNo(ctx, "5547")
	require.NoError(t, err)
	require.True(t, used)

	n, err := orderno.GenerateUnique(6, 5, func(s string) (bool, error) { return j.ExistsOrderNo(ctx, s) })
	require.NoError(t, err)
	require.Len(t, n, 6)
	require.NoError(t, j.Ping(ctx))
}
