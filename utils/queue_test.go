package utils

import (
	"context"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type records [][]byte

func TestBatchQueue_Order(t *testing.T) {
	const N = 1 << 10
	const K = 1 << 4

	queue := NewBatchQueue[records](256, 64)
	ctx := context.Background()

	var wg sync.WaitGroup
	for k := 0; k < K; k++ {
		wg.Add(1)
		go func(k int) {
			defer wg.Done()
			i := uint64(k) << 32
			for n := uint64(0); n < N; n++ {
				var b [8]byte
				binary.LittleEndian.PutUint64(b[:], i|n)
				assert.NoError(t, queue.Push(ctx, b[:]))
			}
		}(k)
	}

	check := [K]int{}
	for i := 0; i < N*K; {
		nums, err := queue.Pop(ctx)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(nums)*8, 64)
		for _, num := range nums {
			j := binary.LittleEndian.Uint64(num)
			k := int(j >> 32)
			n := int(j & 0xffffffff)
			assert.Equal(t, check[k], n)
			check[k] = n + 1
			i++
		}
	}
	wg.Wait()
	assert.Zero(t, queue.Size())
}

func TestBatchQueue_Close(t *testing.T) {
	queue := NewBatchQueue[records](16, 16)
	ctx := context.Background()
	require.NoError(t, queue.Push(ctx, []byte("ab"), []byte("cd")))
	assert.Equal(t, ErrOverflow, queue.Push(ctx, make([]byte, 17)))

	require.NoError(t, queue.Close())
	assert.Equal(t, ErrClosed, queue.Push(ctx, []byte("x")))

	recs, err := queue.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, records{[]byte("ab"), []byte("cd")}, recs)
	_, err = queue.Pop(ctx)
	assert.Equal(t, ErrClosed, err)
}

func TestBatchQueue_Waits(t *testing.T) {
	queue := NewBatchQueue[records](4, 4)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := queue.Pop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, queue.Push(context.Background(), []byte("full")))
	err = queue.Push(ctx, []byte("more"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	done := make(chan error)
	go func() { done <- queue.Push(context.Background(), []byte("next")) }()
	recs, err := queue.Pop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, records{[]byte("full")}, recs)
	require.NoError(t, <-done)
	assert.Equal(t, 4, queue.Size())
}
