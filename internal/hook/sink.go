package hook

import (
	"encoding/json"
	"io"
	"sync"
)

// JSONLSink returns a handler that writes each event to w as one JSON line.
// Audio payloads are not written; Bytes records their size.
func JSONLSink(w io.Writer) Handler {
	var mu sync.Mutex
	encoder := json.NewEncoder(w)
	return func(event Event) error {
		mu.Lock()
		defer mu.Unlock()
		return encoder.Encode(event)
	}
}
