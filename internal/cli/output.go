package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// printer writes either a JSON document or a text line per result. It is safe
// for concurrent use.
type printer struct {
	mu     sync.Mutex
	format string
	w      io.Writer
}

func newPrinter(format string, w io.Writer) *printer {
	return &printer{format: format, w: w}
}

func (p *printer) print(v any, text string, args ...any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.format == "json" {
		return json.NewEncoder(p.w).Encode(v)
	}
	_, err := fmt.Fprintf(p.w, text+"\n", args...)
	return err
}
