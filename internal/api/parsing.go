package api

import (
	"fmt"
	"io"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/renbou/tlxdispatch/update"
)

// Default size of jsoniter decoding buffer - 256 Kb
const DefaultDecodeBufferSize = 256 << 10

// Custom iterator pool which preallocates a single buffer to be used by all later operations
var iteratorPool = sync.Pool{
	New: func() any {
		// Maybe switch to ConfigDefault if issues ever arise
		return jsoniter.Parse(jsoniter.ConfigFastest, nil, DefaultDecodeBufferSize)
	},
}

func borrowIterator(r io.Reader) *jsoniter.Iterator {
	it := iteratorPool.Get().(*jsoniter.Iterator)
	it.Reset(r)
	return it
}

func returnIterator(it *jsoniter.Iterator) {
	// Avoid keeping any references
	it.Error = nil
	it.Attachment = nil
	it.Reset(nil)
	iteratorPool.Put(it)
}

type responseConsumer func(*jsoniter.Iterator) error

// readResponse reads a single API response from the reader and calls the consumer
// once the response metadata has been read and validated ("ok", "description", etc).
// The approach of passing a consumer via args was chosen in order to leverage the JSON
// stream decoding API without leaving the possibility of an unclosed reader.
func readResponse(method string, r io.ReadCloser, consumer responseConsumer) error {
	defer r.Close()
	it := borrowIterator(r)
	defer returnIterator(it)

	var resp Response
	for key := it.ReadObject(); key != "" && it.Error == nil; key = it.ReadObject() {
		// Ignore invalid and possibly unknown fields
		if len(key) < len("ok") {
			it.Skip()
			continue
		}

		// Check if we received a result, cause if we did, then "ok" *should* be true
		// and we can go right ahead with reading the result
		if key[0] == 'r' {
			resp.Ok = true
			break
		}

		// Parse known fields while relying on their correctness and skip unknown ones
		switch key[0] {
		case 'o': // ok
			resp.Ok = it.ReadBool()
		case 'd': // description
			resp.Description = it.ReadString()
		case 'e': // error_code
			resp.ErrorCode = it.ReadInt()
		case 'p': // parameters
			resp.Parameters = readParameters(it)
		default:
			it.Skip()
		}
	}

	if it.Error != nil {
		return fmt.Errorf("parsing telegram api response: %w", it.Error)
	} else if !resp.Ok {
		apiErr := &Error{Method: method, Code: resp.ErrorCode, Description: resp.Description}
		if resp.Parameters != nil {
			apiErr.RetryAfter = time.Duration(resp.Parameters.RetryAfter) * time.Second
		}
		return apiErr
	}
	return consumer(it)
}

func readParameters(it *jsoniter.Iterator) *ResponseParameters {
	params := new(ResponseParameters)
	for key := it.ReadObject(); key != "" && it.Error == nil; key = it.ReadObject() {
		switch key {
		case "retry_after":
			params.RetryAfter = it.ReadInt()
		case "migrate_to_chat_id":
			params.MigrateToChatID = it.ReadInt64()
		default:
			it.Skip()
		}
	}
	return params
}

// getUpdatesResponseConsumer returns a consumer for reading a getUpdates response
// using the given update consumer. It calls the consumer once for each update encountered
// in the getUpdates response, including the ones of unknown kinds, so that the caller
// is able to advance its offset past them.
func getUpdatesResponseConsumer(consumer func(UpdateInfo, []byte) error) responseConsumer {
	return func(it *jsoniter.Iterator) error {
		for it.ReadArray() && it.Error == nil {
			// TODO: allow keys in any order, local Bot API servers don't promise update_id comes first
			if key := it.ReadObject(); key != "update_id" {
				if it.Error == nil {
					return fmt.Errorf("expected update_id as the first field, but got: %q", key)
				}
				break
			}
			info := UpdateInfo{
				ID: it.ReadInt(),
			}

			info.Name = it.ReadObject()
			if info.Name == "" {
				if it.Error == nil {
					return fmt.Errorf("update %d has no contents", info.ID)
				}
				break
			}

			var ok bool
			if info.Kind, ok = update.ParseKind(info.Name); !ok {
				info.Kind = KindUnknown
			}

			// The content is captured separately so that a single malformed
			// update doesn't break decoding of the whole response
			it.WhatIsNext() // skip whitespace before the value
			raw := it.SkipAndReturnBytes()
			if it.Error != nil {
				break
			}
			if err := consumer(info, raw); err != nil {
				return err
			}

			if key := it.ReadObject(); key != "" {
				if it.Error == nil {
					return fmt.Errorf("getUpdates contains excess field: %q", key)
				}
				break
			}
		}

		if it.Error != nil {
			return fmt.Errorf("parsing getUpdates response: %w", it.Error)
		}
		return nil
	}
}
