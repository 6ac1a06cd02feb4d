package streams

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	jsoniter "github.com/json-iterator/go"
	"github.com/renbou/tlxdispatch/internal/api"
	"github.com/renbou/tlxdispatch/internal/retry"
	"github.com/renbou/tlxdispatch/tlxlog"
	"github.com/renbou/tlxdispatch/update"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/telebot.v3"
)

func encodeTestAPIResponse(data any) ([]byte, error) {
	b, err := jsoniter.Marshal(api.Response{Ok: true, Result: data})
	if err != nil {
		return nil, fmt.Errorf("marshaling api response: %w", err)
	}
	return b, nil
}

func response(code int, b []byte) *http.Response {
	return &http.Response{
		StatusCode:    code,
		Status:        http.StatusText(code),
		ContentLength: int64(len(b)),
		Body:          io.NopCloser(bytes.NewReader(b)),
	}
}

// scriptedRoundTripper replies to getUpdates requests with the scripted responses in order,
// and with empty update lists once the script runs out.
type scriptedRoundTripper struct {
	mu      sync.Mutex
	script  []func(req api.GetUpdatesRequest) (*http.Response, error)
	offsets []int
	empty   []byte
}

func (rt *scriptedRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	var body api.GetUpdatesRequest
	if err := jsoniter.NewDecoder(req.Body).Decode(&body); err != nil {
		return nil, err
	}

	rt.mu.Lock()
	rt.offsets = append(rt.offsets, body.Offset)
	var next func(api.GetUpdatesRequest) (*http.Response, error)
	if len(rt.script) > 0 {
		next, rt.script = rt.script[0], rt.script[1:]
	}
	rt.mu.Unlock()

	if next != nil {
		return next(body)
	}

	select {
	case <-req.Context().Done():
		return nil, req.Context().Err()
	case <-time.After(responseSleep):
	}
	return response(http.StatusOK, rt.empty), nil
}

func (rt *scriptedRoundTripper) seenOffsets() []int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return append([]int(nil), rt.offsets...)
}

const responseSleep = time.Millisecond * 20

func newScriptedPoller(t *testing.T, script ...func(api.GetUpdatesRequest) (*http.Response, error)) (UpdateListener, *scriptedRoundTripper) {
	t.Helper()
	empty, err := encodeTestAPIResponse([]any{})
	require.NoError(t, err)

	rt := &scriptedRoundTripper{script: script, empty: empty}
	bot := &tgbotapi.BotAPI{Token: "faketoken", Client: &http.Client{Transport: rt}}
	poller, err := NewLongPoller(bot, &LongPollOptions{Timeout: time.Second, Logger: tlxlog.Discard()})
	require.NoError(t, err)
	return poller, rt
}

func rawResponse(body string) func(api.GetUpdatesRequest) (*http.Response, error) {
	return func(api.GetUpdatesRequest) (*http.Response, error) {
		return response(http.StatusOK, []byte(body)), nil
	}
}

func withFastBackoff(t *testing.T) {
	t.Helper()
	minDelay := retry.DefaultBackoffMinDelay
	retry.DefaultBackoffMinDelay = time.Millisecond
	t.Cleanup(func() {
		retry.DefaultBackoffMinDelay = minDelay
	})
}

func TestLongPoller_Updates(t *testing.T) {
	poller, rt := newScriptedPoller(t,
		func(req api.GetUpdatesRequest) (*http.Response, error) {
			assert.Equal(t, update.Names(), req.AllowedUpdates)
			assert.Equal(t, DefaultLongPollLimit, req.Limit)
			assert.Equal(t, 1, req.Timeout)
			return response(http.StatusOK, []byte(
				`{"ok":true,"result":[{"update_id":10,"message":{"message_id":1,"text":"hi"}},`+
					`{"update_id":11,"my_chat_member":{"chat":{"id":1}}},`+
					`{"update_id":12,"poll":{"id":"poll"}}]}`,
			)), nil
		},
		rawResponse(`{"ok":true,"result":[{"update_id":13,"message":{"text":1}},{"update_id":14,"poll_answer":{"poll_id":"poll"}}]}`),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream := poller.Stream(ctx)

	r := <-stream
	require.NoError(t, r.Err)
	assert.Equal(t, 10, r.Value.ID)
	text, _ := r.Value.Text()
	assert.Equal(t, "hi", text)

	r = <-stream
	require.NoError(t, r.Err)
	assert.Equal(t, update.KindPoll, r.Value.Kind)

	r = <-stream
	assert.Error(t, r.Err, "undecodable update should be reported")

	r = <-stream
	require.NoError(t, r.Err)
	assert.Equal(t, update.KindPollAnswer, r.Value.Kind)

	require.Eventually(t, func() bool {
		return len(rt.seenOffsets()) >= 3
	}, time.Second*5, time.Millisecond*10)
	assert.Equal(t, []int{0, 13, 15}, rt.seenOffsets()[:3])

	cancel()
	for range stream {
	}
}

func TestLongPoller_RecoversFromErrors(t *testing.T) {
	withFastBackoff(t)
	poller, _ := newScriptedPoller(t,
		func(api.GetUpdatesRequest) (*http.Response, error) {
			return nil, fmt.Errorf("network is down")
		},
		rawResponse(`{"ok":false,"error_code":502,"description":"Bad Gateway"}`),
		rawResponse(`{"ok":true,"result":[{"update_id":1,"callback_query":{"id":"cb"}}]}`),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream := poller.Stream(ctx)

	r := <-stream
	assert.ErrorContains(t, r.Err, "network is down")
	r = <-stream
	var apiErr *api.Error
	require.ErrorAs(t, r.Err, &apiErr)
	assert.Equal(t, 502, apiErr.Code)

	r = <-stream
	require.NoError(t, r.Err)
	query, ok := r.Value.CallbackQuery()
	require.True(t, ok)
	assert.Equal(t, "cb", query.ID)

	cancel()
	for range stream {
	}
}

func TestLongPoller_StopsOnUnauthorized(t *testing.T) {
	poller, rt := newScriptedPoller(t,
		rawResponse(`{"ok":false,"error_code":401,"description":"Unauthorized"}`),
	)

	var results []Result[update.Update]
	for r := range poller.Stream(context.Background()) {
		results = append(results, r)
	}

	require.Len(t, results, 1)
	assert.ErrorContains(t, results[0].Err, "critical error while long polling")
	assert.Equal(t, []int{0}, rt.seenOffsets())
}

func TestNewLongPoller(t *testing.T) {
	_, err := NewLongPoller(nil, nil)
	assert.Error(t, err)

	_, err = NewLongPoller(&tgbotapi.BotAPI{}, nil)
	assert.Error(t, err, "empty token must be rejected")

	listener, err := NewLongPoller(&tgbotapi.BotAPI{Token: "token"}, nil)
	require.NoError(t, err)
	poller := listener.(*longPoller)
	assert.Equal(t, telebot.DefaultApiURL, poller.Endpoint)
	assert.Equal(t, DefaultLongPollTimeout, poller.Timeout)
	assert.Equal(t, DefaultLongPollLimit, poller.Limit)
}

type benchmarkRoundTripper struct {
	data  []*bytes.Reader
	empty []byte
	i     int64
}

func (rt *benchmarkRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	select {
	case <-req.Context().Done():
		return nil, req.Context().Err()
	default:
	}

	if strings.HasSuffix(req.URL.Path, "getMe") {
		b, err := encodeTestAPIResponse(tgbotapi.User{ID: 1})
		if err != nil {
			return nil, err
		}
		return response(http.StatusOK, b), nil
	}

	cur := atomic.AddInt64(&rt.i, 1)
	if cur >= int64(len(rt.data)) {
		time.Sleep(responseSleep) // sleep so that we aren't blatantly wasting cpu cycles
		return response(http.StatusOK, rt.empty), nil
	}
	return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(rt.data[cur])}, nil
}

// bNumReqs returns the number of batches of requests and number of requests in each batch
func bNumReqs(b *testing.B) (int, int) {
	b.Helper()
	return b.N, DefaultLongPollLimit
}

func newBenchmarkClient(b *testing.B) *http.Client {
	b.Helper()
	n, by := bNumReqs(b)
	data := make([]*bytes.Reader, n)
	for i := range data {
		updates := make([]telebot.Update, by)
		for j := range updates {
			updates[j] = telebot.Update{
				ID:      i*by + j,
				Message: &telebot.Message{Text: "long polling text"},
			}
		}

		raw, err := encodeTestAPIResponse(updates)
		require.NoError(b, err)
		data[i] = bytes.NewReader(raw)
	}

	empty, err := encodeTestAPIResponse([]tgbotapi.Update{})
	require.NoError(b, err)
	return &http.Client{Transport: &benchmarkRoundTripper{data: data, empty: empty, i: -1}}
}

func benchmarkValidate[T any](b *testing.B, stop func(), s Stream[T]) {
	b.Helper()
	n, by := bNumReqs(b)
	cnt, end := 0, n*by
	for range s {
		cnt++
		if cnt > end {
			b.Error("cnt > end")
			b.FailNow()
		} else if cnt == end {
			stop()
		}
	}
}

// Benchmark of simple long polling using a single goroutine receiving messages and decoding them
func BenchmarkNaiveLongPoll(b *testing.B) {
	n, by := bNumReqs(b)
	b.Logf("Decoding %d requests by %d messages", n, by)
	bot, err := tgbotapi.NewBotAPIWithClient("faketoken", tgbotapi.APIEndpoint, newBenchmarkClient(b))
	require.NoError(b, err)

	b.ResetTimer()
	stream := bot.GetUpdatesChan(tgbotapi.UpdateConfig{})
	benchmarkValidate(b, bot.StopReceivingUpdates, Stream[tgbotapi.Update](stream))
}

func BenchmarkLongPoller(b *testing.B) {
	n, by := bNumReqs(b)
	b.Logf("Decoding %d requests by %d messages", n, by)
	bot := &tgbotapi.BotAPI{Token: "faketoken", Client: newBenchmarkClient(b)}
	poller, err := NewLongPoller(bot, &LongPollOptions{Logger: tlxlog.Discard()})
	require.NoError(b, err)
	ctx, cancel := context.WithCancel(context.Background())

	b.ResetTimer()
	benchmarkValidate(b, cancel, poller.Stream(ctx))
}
