package messages

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/operator-console/internal/model"
	"github.com/capitalize-ai/operator-console/pkg/logger"
)

type fakeBackend struct {
	mu      sync.Mutex
	history map[string][]model.Message
	fetches int
	sends   int
	nextID  int
	sendErr error
	// gate, when set, blocks SendMessage until a value is received.
	gate chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{history: map[string][]model.Message{}, nextID: 41}
}

// FetchMessages pages from the newest end of the stored history.
func (f *fakeBackend) FetchMessages(_ context.Context, conversationID string, page, pageSize int) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	all := f.history[conversationID]
	end := len(all) - (page-1)*pageSize
	if end <= 0 {
		return nil, nil
	}
	start := max(end-pageSize, 0)
	return append([]model.Message(nil), all[start:end]...), nil
}

func (f *fakeBackend) SendMessage(_ context.Context, _ string, _ model.MessageType, _ string) (model.Receipt, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends++
	if f.sendErr != nil {
		return model.Receipt{}, f.sendErr
	}
	f.nextID++
	return model.Receipt{ID: model.MessageID(fmt.Sprint(f.nextID)), CreatedAt: time.Unix(1700000000, 0)}, nil
}

func (f *fakeBackend) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sends
}

type fakeUploader struct {
	url string
	err error
}

func (u fakeUploader) UploadImage(_ context.Context, _ string, r io.Reader) (string, error) {
	_, _ = io.ReadAll(r)
	return u.url, u.err
}

func seed(f *fakeBackend, conversationID string, n int) {
	for i := 1; i <= n; i++ {
		f.history[conversationID] = append(f.history[conversationID], model.Message{
			ID:             model.MessageID(fmt.Sprint(i)),
			ConversationID: conversationID,
			Content:        fmt.Sprintf("m%d", i),
			GuestID:        "g1",
		})
	}
}

func newTestCache(b *fakeBackend, u Uploader) *Cache {
	var seq atomic.Int64
	return NewCache(b, u, Options{
		OperatorID: "op-1",
		NewToken:   func() string { return fmt.Sprintf("tok%d", seq.Add(1)) },
	}, logger.NewNop())
}

func contents(list []model.Message) []string {
	out := make([]string, len(list))
	for i, m := range list {
		out[i] = m.Content
	}
	return out
}

func TestHistoryPaginatesOldestFirst(t *testing.T) {
	b := newFakeBackend()
	seed(b, "c1", 25)
	c := newTestCache(b, nil)
	ctx := context.Background()

	require.NoError(t, c.Ensure(ctx, "c1"))
	state := c.State("c1")
	require.Len(t, state.Items, 15)
	assert.Equal(t, "m11", state.Items[0].Content)
	assert.Equal(t, "m25", state.Items[14].Content)
	assert.True(t, state.HasMore)

	require.NoError(t, c.LoadMore(ctx, "c1"))
	msgs := c.Messages("c1")
	require.Len(t, msgs, 25)
	for i, m := range msgs {
		assert.Equal(t, fmt.Sprintf("m%d", i+1), m.Content)
	}
	assert.False(t, c.HasMore("c1"))

	require.NoError(t, c.LoadMore(ctx, "c1"))
	require.NoError(t, c.Ensure(ctx, "c1"))
	assert.Equal(t, 2, b.fetches, "exhausted history is not fetched again")
}

func TestUnmaterializedConversation(t *testing.T) {
	c := newTestCache(newFakeBackend(), nil)
	assert.False(t, c.Has("c1"))
	assert.Nil(t, c.Messages("c1"))
	assert.True(t, c.HasMore("c1"))
	assert.ErrorIs(t, c.Ensure(context.Background(), ""), ErrNoConversation)
}

func TestSendReplacesProvisionalInPlace(t *testing.T) {
	b := newFakeBackend()
	seed(b, "c1", 2)
	b.gate = make(chan struct{})
	c := newTestCache(b, nil)
	ctx := context.Background()
	require.NoError(t, c.Ensure(ctx, "c1"))

	done := make(chan model.Message)
	go func() {
		msg, err := c.Send(ctx, "c1", model.MessageTypeText, "hello")
		assert.NoError(t, err)
		done <- msg
	}()

	require.Eventually(t, func() bool { return len(c.Messages("c1")) == 3 }, time.Second, 5*time.Millisecond)
	pending := c.Messages("c1")[2]
	assert.True(t, pending.ID.Provisional())
	assert.Equal(t, model.DeliverySending, pending.DeliveryState)
	assert.Equal(t, model.AuthorOperator, pending.AuthorKind)
	assert.Equal(t, "op-1", pending.UserID)

	close(b.gate)
	sent := <-done
	assert.Equal(t, model.MessageID("42"), sent.ID)
	assert.Equal(t, model.DeliverySent, sent.DeliveryState)
	assert.Equal(t, pending.ClientToken, sent.ClientToken)

	msgs := c.Messages("c1")
	require.Len(t, msgs, 3, "the provisional entry is replaced, not duplicated")
	assert.Equal(t, model.MessageID("42"), msgs[2].ID)
	assert.Equal(t, []string{"m1", "m2", "hello"}, contents(msgs))
}

func TestSendFailureThenResend(t *testing.T) {
	b := newFakeBackend()
	b.sendErr = errors.New("timeout")
	c := newTestCache(b, nil)
	ctx := context.Background()

	failed, err := c.Send(ctx, "c1", model.MessageTypeText, "hello")
	require.ErrorIs(t, err, ErrSendFailed)
	assert.Equal(t, model.DeliveryFailed, failed.DeliveryState)
	assert.True(t, failed.ID.Provisional())

	b.mu.Lock()
	b.sendErr = nil
	b.mu.Unlock()

	sent, err := c.Resend(ctx, "c1", failed.ClientToken)
	require.NoError(t, err)
	assert.Equal(t, model.DeliverySent, sent.DeliveryState)
	assert.Len(t, c.Messages("c1"), 1)

	_, err = c.Resend(ctx, "c1", failed.ClientToken)
	assert.ErrorIs(t, err, ErrNotResendable, "only failed messages can be resent")
	_, err = c.Resend(ctx, "c1", "unknown")
	assert.ErrorIs(t, err, ErrUnknownMessage)
	assert.Equal(t, 2, b.sendCount())
}

func TestSendRejectsEmptyContent(t *testing.T) {
	b := newFakeBackend()
	c := newTestCache(b, nil)

	_, err := c.Send(context.Background(), "c1", model.MessageTypeText, "   ")
	assert.ErrorIs(t, err, ErrEmptyContent)
	_, err = c.Send(context.Background(), "", model.MessageTypeText, "hi")
	assert.ErrorIs(t, err, ErrNoConversation)
	assert.Empty(t, c.Messages("c1"))
	assert.Zero(t, b.sendCount())
}

func TestSendImage(t *testing.T) {
	b := newFakeBackend()
	c := newTestCache(b, fakeUploader{url: "https://cdn/cat.png"})

	msg, err := c.SendImage(context.Background(), "c1", "cat.png", strings.NewReader("PNG"))
	require.NoError(t, err)
	assert.Equal(t, model.MessageTypeImage, msg.Type)
	assert.Equal(t, "https://cdn/cat.png", msg.Content)
}

func TestSendImageUploadFailureAborts(t *testing.T) {
	for name, u := range map[string]fakeUploader{
		"error":     {err: errors.New("too large")},
		"empty url": {},
	} {
		t.Run(name, func(t *testing.T) {
			b := newFakeBackend()
			c := newTestCache(b, u)

			_, err := c.SendImage(context.Background(), "c1", "cat.png", strings.NewReader("PNG"))
			require.ErrorIs(t, err, ErrUploadFailed)
			assert.Empty(t, c.Messages("c1"), "no message is created")
			assert.Zero(t, b.sendCount())
		})
	}
}

func TestAppendMessageDedupes(t *testing.T) {
	c := newTestCache(newFakeBackend(), nil)
	msg := model.Message{ID: "9", Content: "hey", GuestID: "g1"}

	assert.True(t, c.AppendMessage("c1", msg))
	assert.False(t, c.AppendMessage("c1", msg))
	assert.False(t, c.AppendMessage("", msg))

	msgs := c.Messages("c1")
	require.Len(t, msgs, 1)
	assert.Equal(t, "c1", msgs[0].ConversationID)
	assert.Equal(t, model.AuthorGuest, msgs[0].AuthorKind)
	assert.Equal(t, model.DeliverySent, msgs[0].DeliveryState)
}

func TestEchoedSendKeepsOneCopy(t *testing.T) {
	b := newFakeBackend()
	b.gate = make(chan struct{})
	c := newTestCache(b, nil)
	ctx := context.Background()

	pending, err := c.Enqueue("c1", model.MessageTypeText, "hello")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := c.Deliver(ctx, "c1", pending.ClientToken)
		assert.NoError(t, err)
	}()

	// The live feed echoes the operator's message before the send returns.
	c.AppendMessage("c1", model.Message{ID: "42", Content: "hello", UserID: "op-1"})
	close(b.gate)
	<-done

	msgs := c.Messages("c1")
	require.Len(t, msgs, 1)
	assert.Equal(t, model.MessageID("42"), msgs[0].ID)
	assert.Equal(t, pending.ClientToken, msgs[0].ClientToken)
}

func TestEnsureAfterLiveMessageLoadsHistory(t *testing.T) {
	b := newFakeBackend()
	seed(b, "c1", 3)
	c := newTestCache(b, nil)

	c.AppendMessage("c1", model.Message{ID: "3", Content: "m3", GuestID: "g1"})
	require.NoError(t, c.Ensure(context.Background(), "c1"))

	assert.Equal(t, []string{"m1", "m2", "m3"}, contents(c.Messages("c1")))
}

func TestConcurrentSends(t *testing.T) {
	b := newFakeBackend()
	c := newTestCache(b, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Send(ctx, "c1", model.MessageTypeText, fmt.Sprintf("msg %d", i))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	msgs := c.Messages("c1")
	require.Len(t, msgs, 10)
	seen := map[model.MessageID]bool{}
	for _, m := range msgs {
		assert.Equal(t, model.DeliverySent, m.DeliveryState)
		assert.False(t, m.ID.Provisional())
		assert.False(t, seen[m.ID])
		seen[m.ID] = true
	}
}

func TestOnChangeNotified(t *testing.T) {
	var mu sync.Mutex
	var changed []string
	c := NewCache(newFakeBackend(), nil, Options{OnChange: func(id string) {
		mu.Lock()
		defer mu.Unlock()
		changed = append(changed, id)
	}}, logger.NewNop())

	_, err := c.Send(context.Background(), "c1", model.MessageTypeText, "hi")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"c1", "c1"}, changed, "enqueue and delivery each notify")
}

func TestLoadMoreExhaustedDoesNotNotify(t *testing.T) {
	b := newFakeBackend()
	seed(b, "c1", 3)
	var changes atomic.Int32
	c := NewCache(b, nil, Options{PageSize: 20, OnChange: func(string) { changes.Add(1) }}, logger.NewNop())
	ctx := context.Background()

	require.NoError(t, c.Ensure(ctx, "c1"))
	require.False(t, c.State("c1").HasMore)
	notified := changes.Load()
	fetched := b.fetches

	for i := 0; i < 5; i++ {
		require.NoError(t, c.LoadMore(ctx, "c1"))
	}
	assert.Equal(t, notified, changes.Load(), "a load with nothing left to fetch publishes nothing")
	assert.Equal(t, fetched, b.fetches)
}
