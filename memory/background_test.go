package memory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-memory/memory"
)

// blockingCompleter parks every call until release is closed.
type blockingCompleter struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingCompleter() *blockingCompleter {
	return &blockingCompleter{
		started: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
}

func (c *blockingCompleter) Complete(ctx context.Context, _ string, _ int) (string, error) {
	c.started <- struct{}{}
	select {
	case <-c.release:
		return "{}", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *blockingCompleter) unblock() {
	c.once.Do(func() { close(c.release) })
}

func TestDispatcher_StoresInBackground(t *testing.T) {
	m, _ := newTestManager(t, newKeywordEmbedder(), nil)
	d := memory.NewDispatcher(memory.NewPipeline(m, &scriptedCompleter{
		profile: map[string]string{"I'm a nurse": `{"occupation": "nurse"}`},
	}))

	require.True(t, d.Submit(context.Background(), turn("I'm a nurse", "That sounds demanding!")))
	require.NoError(t, d.Close(context.Background()))

	profile, err := m.Profile(context.Background(), testUser, testCharacter)
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, "nurse", *profile.Occupation)
}

func TestDispatcher_DropsWhenSaturated(t *testing.T) {
	m, _ := newTestManager(t, newKeywordEmbedder(), &memory.Config{Enabled: true, MaxConcurrentExtractions: 1})
	completer := newBlockingCompleter()
	d := memory.NewDispatcher(memory.NewPipeline(m, completer))
	t.Cleanup(completer.unblock)

	require.True(t, d.Submit(context.Background(), turn("first", "ok")))
	<-completer.started
	assert.False(t, d.Submit(context.Background(), turn("second", "ok")))

	completer.unblock()
	require.NoError(t, d.Close(context.Background()))
}

func TestDispatcher_SubmitAfterClose(t *testing.T) {
	m, _ := newTestManager(t, newKeywordEmbedder(), nil)
	completer := &scriptedCompleter{}
	d := memory.NewDispatcher(memory.NewPipeline(m, completer))

	require.NoError(t, d.Close(context.Background()))
	assert.False(t, d.Submit(context.Background(), turn("hello", "hi")))
	assert.Equal(t, 0, completer.callCount())
}

func TestDispatcher_DetachedFromRequestContext(t *testing.T) {
	m, _ := newTestManager(t, newKeywordEmbedder(), nil)

	var mu sync.Mutex
	var errs []error
	completer := memory.CompleterFunc(func(ctx context.Context, _ string, _ int) (string, error) {
		mu.Lock()
		errs = append(errs, ctx.Err())
		mu.Unlock()
		return "{}", nil
	})
	d := memory.NewDispatcher(memory.NewPipeline(m, completer))

	reqCtx, cancel := context.WithCancel(context.Background())
	require.True(t, d.Submit(reqCtx, turn("hello", "hi")))
	cancel()
	require.NoError(t, d.Close(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, errs, 2)
	for _, err := range errs {
		assert.NoError(t, err)
	}
}

func TestDispatcher_CloseHonorsContext(t *testing.T) {
	m, _ := newTestManager(t, newKeywordEmbedder(), nil)
	completer := newBlockingCompleter()
	d := memory.NewDispatcher(memory.NewPipeline(m, completer))
	t.Cleanup(completer.unblock)

	require.True(t, d.Submit(context.Background(), turn("hello", "hi")))
	<-completer.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Close(ctx), context.DeadlineExceeded)

	completer.unblock()
	require.NoError(t, d.Close(context.Background()))
}

func TestDispatcher_JobTimeout(t *testing.T) {
	m, _ := newTestManager(t, newKeywordEmbedder(), &memory.Config{Enabled: true, ExtractionTimeout: 20 * time.Millisecond})
	completer := newBlockingCompleter()
	d := memory.NewDispatcher(memory.NewPipeline(m, completer))

	require.True(t, d.Submit(context.Background(), turn("hello", "hi")))
	// Never released: the job ends when its own deadline passes.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))
}
