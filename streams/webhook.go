package streams

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/renbou/tlxdispatch/internal/api"
	"github.com/renbou/tlxdispatch/tlxlog"
	"github.com/renbou/tlxdispatch/update"
	"github.com/tidwall/gjson"
)

// SecretTokenHeader is the header in which Telegram sends the webhook secret token.
const SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// DefaultWebhookMaxBodySize limits the size of a single received update.
const DefaultWebhookMaxBodySize = 1 << 20

// WebhookOptions configure the webhook listener.
type WebhookOptions struct {
	// SecretToken, if set, must match the secret token header of every request.
	SecretToken string
	MaxBodySize int64
	// Buffer is the number of updates accepted before the handler starts to block.
	Buffer int
	Logger tlxlog.Logger
}

// Webhook is an update listener which receives updates pushed by Telegram.
// It must be mounted on an HTTP server, and its stream must have a single consumer.
type Webhook struct {
	*WebhookOptions
	decode  updateDecoder
	updates chan Result[update.Update]
}

var _ http.Handler = (*Webhook)(nil)

// NewWebhook creates a new webhook listener.
func NewWebhook(opts *WebhookOptions) *Webhook {
	o := WebhookOptions{}
	if opts != nil {
		o = *opts
	}
	if o.MaxBodySize <= 0 {
		o.MaxBodySize = DefaultWebhookMaxBodySize
	}
	if o.Buffer <= 0 {
		o.Buffer = DefaultLongPollLimit
	}
	o.Logger = tlxlog.With(o.Logger, "component", "webhook")
	return &Webhook{
		WebhookOptions: &o,
		decode:         decodeUpdate,
		updates:        make(chan Result[update.Update], o.Buffer),
	}
}

var (
	errWebhookNotObject = errors.New("webhook update is not a json object")
	errWebhookNoID      = errors.New("webhook update has no update_id")
)

// parse extracts the update info and its raw content, keeping the full decoding
// for later, when it is known that the update is of a supported kind.
func (w *Webhook) parse(body []byte) (api.UpdateInfo, []byte, error) {
	if !gjson.ValidBytes(body) {
		return api.UpdateInfo{}, nil, errWebhookNotObject
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return api.UpdateInfo{}, nil, errWebhookNotObject
	}

	id := root.Get("update_id")
	if id.Type != gjson.Number {
		return api.UpdateInfo{}, nil, errWebhookNoID
	}

	info := api.UpdateInfo{ID: int(id.Int()), Kind: api.KindUnknown}
	var raw []byte
	root.ForEach(func(key, value gjson.Result) bool {
		if key.Str == "update_id" {
			return true
		}
		info.Name, raw = key.Str, []byte(value.Raw)
		if kind, ok := update.LookupKind(key.Str); ok {
			info.Kind = kind
			return false
		}
		return true
	})
	return info, raw, nil
}

func (w *Webhook) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		rw.Header().Set("Allow", http.MethodPost)
		http.Error(rw, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if w.SecretToken != "" {
		got := req.Header.Get(SecretTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(w.SecretToken)) != 1 {
			w.Logger.Info("rejected webhook request with invalid secret token", "remote", req.RemoteAddr)
			http.Error(rw, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	body, err := io.ReadAll(http.MaxBytesReader(rw, req.Body, w.MaxBodySize))
	if err != nil {
		w.Logger.Error(err, "failed to read webhook request", "remote", req.RemoteAddr)
		http.Error(rw, "bad request", http.StatusBadRequest)
		return
	}

	info, raw, err := w.parse(body)
	if err != nil {
		w.push(req.Context(), Fail[update.Update](fmt.Errorf("webhook: %w", err)))
		http.Error(rw, "bad request", http.StatusBadRequest)
		return
	}
	if info.Kind == api.KindUnknown {
		// Acknowledge updates the dispatcher doesn't handle, so that they aren't redelivered
		rw.WriteHeader(http.StatusOK)
		return
	}

	u, err := w.decode(info, raw)
	r := Ok(u)
	if err != nil {
		r = Fail[update.Update](fmt.Errorf("webhook: %w", err))
	}
	if !w.push(req.Context(), r) {
		http.Error(rw, "update not accepted", http.StatusServiceUnavailable)
		return
	}
	rw.WriteHeader(http.StatusOK)
}

func (w *Webhook) push(ctx context.Context, r Result[update.Update]) bool {
	select {
	case w.updates <- r:
		return true
	case <-ctx.Done():
		return false
	}
}

// Stream returns the stream of received updates, which is closed once the context is done.
func (w *Webhook) Stream(ctx context.Context) Stream[Result[update.Update]] {
	stream := make(chan Result[update.Update])
	go func() {
		defer close(stream)
		for {
			select {
			case r := <-w.updates:
				select {
				case stream <- r:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return stream
}
