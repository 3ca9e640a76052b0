package converter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harliandi/go-avif/internal/codec"
	"github.com/harliandi/go-avif/pkg/avif"
)

// gateCodec blocks every encode until release is closed.
type gateCodec struct {
	fakeCodec
	started chan struct{}
	release chan struct{}
}

func (g *gateCodec) Encode(ctx context.Context, px codec.Pixels, p codec.Params) ([]byte, error) {
	g.started <- struct{}{}
	<-g.release
	return g.fakeCodec.Encode(ctx, px, p)
}

func TestWorkerPool_Submit(t *testing.T) {
	fc := &fakeCodec{}
	p := NewWorkerPool(newTestConverter(fc), 2)
	defer p.Stop()

	res, err := p.Submit(context.Background(), ImageInput{Image: testImage(8, 8, 0xff)}, avif.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 1, fc.callCount())
}

func TestWorkerPool_ErrorsPropagate(t *testing.T) {
	p := NewWorkerPool(newTestConverter(&fakeCodec{}), 1)
	defer p.Stop()

	_, err := p.Submit(context.Background(), BytesInput([]byte("not an image at all")), avif.DefaultOptions())
	assert.ErrorIs(t, err, ErrInvalidImage)
}

func TestWorkerPool_Busy(t *testing.T) {
	g := &gateCodec{started: make(chan struct{}, 4), release: make(chan struct{})}
	p := NewWorkerPool(New(codec.NewRegistry(g)), 1) // queue capacity 2
	in := ImageInput{Image: testImage(4, 4, 0xff)}

	var wg sync.WaitGroup
	submit := func() {
		defer wg.Done()
		_, err := p.Submit(context.Background(), in, avif.DefaultOptions())
		assert.NoError(t, err)
	}

	wg.Add(1)
	go submit()
	<-g.started // the single worker is now busy

	wg.Add(2)
	go submit()
	go submit()
	require.Eventually(t, func() bool {
		_, queued := p.Stats()
		return queued == 2
	}, time.Second, 5*time.Millisecond)

	_, err := p.Submit(context.Background(), in, avif.DefaultOptions())
	assert.ErrorIs(t, err, ErrPoolBusy)

	active, _ := p.Stats()
	assert.Equal(t, 1, active)

	close(g.release)
	wg.Wait()
	p.Stop()
}

func TestWorkerPool_SubmitWithRetryGivesUp(t *testing.T) {
	g := &gateCodec{started: make(chan struct{}, 4), release: make(chan struct{})}
	p := NewWorkerPool(New(codec.NewRegistry(g)), 1)
	in := ImageInput{Image: testImage(4, 4, 0xff)}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	submit := func() {
		_, _ = p.Submit(ctx, in, avif.DefaultOptions())
		done <- struct{}{}
	}
	go submit()
	<-g.started
	go submit()
	go submit()
	require.Eventually(t, func() bool {
		_, queued := p.Stats()
		return queued == 2
	}, time.Second, 5*time.Millisecond)

	_, err := p.SubmitWithRetry(context.Background(), in, avif.DefaultOptions(), 2)
	assert.ErrorIs(t, err, ErrPoolBusy)

	cancel()
	close(g.release)
	for i := 0; i < 3; i++ {
		<-done
	}
	p.Stop()
}

func TestWorkerPool_Cancelled(t *testing.T) {
	p := NewWorkerPool(newTestConverter(&fakeCodec{}), 1)
	defer p.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Submit(ctx, ImageInput{Image: testImage(4, 4, 0xff)}, avif.DefaultOptions())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWorkerPool_Stopped(t *testing.T) {
	p := NewWorkerPool(newTestConverter(&fakeCodec{}), 1)
	p.Start()
	p.Stop()
	p.Stop() // idempotent

	_, err := p.Submit(context.Background(), ImageInput{Image: testImage(4, 4, 0xff)}, avif.DefaultOptions())
	assert.ErrorIs(t, err, ErrPoolStopped)
}
