// Package debugdump implements the DEBUG_LAST_REQUEST hook surface
// named in §6: prepare_new_request, log_request_body,
// log_kiro_request_body, log_raw_chunk, log_modified_chunk. It is a
// diagnostic aid, not production logging: a single mutex serializes each
// individual write or append. The mutex is not held across a request's
// calls, so appends from concurrent requests can interleave in the same
// file.
package debugdump

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
)

// Dumper writes the debug files for one gateway process. A nil *Dumper
// (what New returns for an empty dir) makes every method a no-op, so call sites
// don't need to branch on whether debug mode is on.
type Dumper struct {
	dir string
	mu  sync.Mutex
	log *logrus.Entry
}

// New builds a Dumper writing under dir. Returns nil (a valid, inert
// receiver) if dir is empty.
func New(dir string, log *logrus.Entry) *Dumper {
	if dir == "" {
		return nil
	}
	return &Dumper{dir: dir, log: log}
}

// PrepareNewRequest truncates the per-request dump files, so each
// request's debug output starts clean (the raw/modified chunk files are
// append-only within one request, per §6).
func (d *Dumper) PrepareNewRequest() {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	os.MkdirAll(d.dir, 0o755)
	for _, name := range []string{"response_stream_raw.txt", "response_stream_modified.txt"} {
		os.Remove(filepath.Join(d.dir, name))
	}
}

// LogRequestBody writes the inbound OpenAI request body verbatim.
func (d *Dumper) LogRequestBody(body []byte) {
	d.writeFile("request_body.json", body)
}

// LogKiroRequestBody writes the transformed upstream payload.
func (d *Dumper) LogKiroRequestBody(body []byte) {
	d.writeFile("kiro_request_body.json", body)
}

// LogRawChunk appends one raw upstream stream chunk.
func (d *Dumper) LogRawChunk(chunk []byte) {
	d.appendFile("response_stream_raw.txt", chunk)
}

// LogModifiedChunk appends one rendered SSE chunk sent to the client.
func (d *Dumper) LogModifiedChunk(chunk []byte) {
	d.appendFile("response_stream_modified.txt", chunk)
}

func (d *Dumper) writeFile(name string, body []byte) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := os.WriteFile(filepath.Join(d.dir, name), body, 0o644); err != nil && d.log != nil {
		d.log.WithError(err).WithField("file", name).Warn("debug dump write failed")
	}
}

func (d *Dumper) appendFile(name string, chunk []byte) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	f, err := os.OpenFile(filepath.Join(d.dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		if d.log != nil {
			d.log.WithError(err).WithField("file", name).Warn("debug dump append failed")
		}
		return
	}
	defer f.Close()
	f.Write(chunk)
	f.Write([]byte("\n"))
}
