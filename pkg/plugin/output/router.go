package output

import (
	"bytes"
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"
)

// Router is the default Sink. Each stream is either buffered until rendered or written
// straight to a console writer.
type Router struct {
	mu      sync.Mutex
	buffers map[Stream]*bytes.Buffer
	console map[Stream]io.Writer
}

// RouterOption configures a Router.
type RouterOption func(r *Router)

// RouterConsole routes a stream to w as soon as it is sent. A nil writer buffers the stream.
func RouterConsole(stream Stream, w io.Writer) RouterOption {
	return func(r *Router) {
		if w == nil {
			delete(r.console, stream)

			return
		}
		r.console[stream] = w
	}
}

// NewRouter creates a router buffering stdout and writing stderr to the console.
func NewRouter(opts ...RouterOption) *Router {
	r := &Router{
		buffers: map[Stream]*bytes.Buffer{
			Stdout: {},
			Stderr: {},
		},
		console: map[Stream]io.Writer{
			Stderr: os.Stderr,
		},
	}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Send records text followed by a newline.
func (r *Router) Send(stream Stream, text string) {
	r.write(stream, []byte(text+"\n"))
}

// Writer returns a raw writer for the stream.
func (r *Router) Writer(stream Stream) io.Writer {
	return streamWriter{router: r, stream: stream}
}

func (r *Router) write(stream Stream, p []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if w, ok := r.console[stream]; ok {
		_, _ = w.Write(p)

		return
	}
	buf, ok := r.buffers[stream]
	if !ok {
		buf = &bytes.Buffer{}
		r.buffers[stream] = buf
	}
	buf.Write(p)
}

// Pending returns the buffered text of a stream without draining it.
func (r *Router) Pending(stream Stream) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if buf, ok := r.buffers[stream]; ok {
		return buf.String()
	}

	return ""
}

// Render drains the buffered text of a stream into dst.
func (r *Router) Render(stream Stream, dst Destination) error {
	r.mu.Lock()
	var content []byte
	if buf, ok := r.buffers[stream]; ok {
		content = append(content, buf.Bytes()...)
		buf.Reset()
	}
	r.mu.Unlock()

	err := dst.Deliver(content)
	if err != nil {
		return errors.Wrapf(err, "unable to render %s", stream)
	}

	return nil
}

type streamWriter struct {
	router *Router
	stream Stream
}

func (w streamWriter) Write(p []byte) (int, error) {
	w.router.write(w.stream, append([]byte(nil), p...))

	return len(p), nil
}

var _ Sink = (*Router)(nil)
