package browser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-rod/rod"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRodPageClose_RunsCleanupsInReverse(t *testing.T) {
	var order []string
	released := 0
	rp := &RodPage{
		obs:     &listeners{},
		release: func(*rod.Page) { released++ },
	}
	rp.cleanups = append(rp.cleanups,
		func() error { order = append(order, "stealth"); return nil },
		func() error { order = append(order, "storage"); return context.DeadlineExceeded },
		func() error { order = append(order, "last"); return nil },
	)
	rp.obs.add(func(string) {})

	require.NoError(t, rp.Close())
	require.NoError(t, rp.Close())

	assert.Equal(t, []string{"last", "storage", "stealth"}, order, "a failing removal does not stop the rest")
	assert.Equal(t, 1, released)
	assert.Equal(t, 0, rp.obs.count())
	assert.Empty(t, rp.cleanups)
}

func TestGetPage_WaitsUntilContextDone(t *testing.T) {
	pool := rod.NewPagePool(1)
	<-pool // the only slot is checked out

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	created := false
	start := time.Now()
	page, err := getPage(ctx, pool, func() (*rod.Page, error) {
		created = true
		return &rod.Page{}, nil
	})

	assert.Nil(t, page)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, created)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestGetPage_CanceledBeforeWaiting(t *testing.T) {
	pool := rod.NewPagePool(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := getPage(ctx, pool, func() (*rod.Page, error) { return &rod.Page{}, nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, pool, 1, "the slot stays in the pool")
}

func TestGetPage_ReusesPooledPage(t *testing.T) {
	pool := rod.NewPagePool(1)
	<-pool
	pooled := &rod.Page{}
	pool.Put(pooled)

	page, err := getPage(context.Background(), pool, func() (*rod.Page, error) {
		t.Fatal("create must not run for a pooled page")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Same(t, pooled, page)
}

func TestGetPage_FailedCreateReturnsSlot(t *testing.T) {
	pool := rod.NewPagePool(1)
	boom := errors.New("target crashed")

	_, err := getPage(context.Background(), pool, func() (*rod.Page, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	assert.Len(t, pool, 1)

	page, err := getPage(context.Background(), pool, func() (*rod.Page, error) { return &rod.Page{}, nil })
	require.NoError(t, err)
	assert.NotNil(t, page)
}
