package runner

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	stderrSeparator = "\n--- STDERR ---\n"
	stderrPrefix    = "[STDERR] "

	// tailPollRate bounds how often an idle tail re-checks its file for
	// growth, keeping the follower responsive without busy-spinning.
	tailPollRate = 100 * time.Millisecond
)

// readNodeLogs reads both capture files fully and returns stdout followed
// by a stderr section when stderr is non-empty. Read failures are reported
// as log text so one unreadable file does not abort a multi-node fetch.
func readNodeLogs(p *NodeProcess) string {
	stdout, err := readCaptureFile(p.StdoutPath)
	if err != nil {
		return "Error reading logs: " + err.Error()
	}
	stderr, err := readCaptureFile(p.StderrPath)
	if err != nil {
		return "Error reading logs: " + err.Error()
	}

	combined := stdout
	if stderr != "" {
		combined += stderrSeparator + stderr
	}
	return combined
}

func readCaptureFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// logFollower accumulates lines from both streams of one node in arrival
// order and forwards each line to an optional sink.
type logFollower struct {
	mu   sync.Mutex
	buf  strings.Builder
	sink func(line string)
}

func (f *logFollower) emit(line string) {
	f.mu.Lock()
	f.buf.WriteString(line)
	f.buf.WriteByte('\n')
	f.mu.Unlock()

	if f.sink != nil {
		f.sink(line)
	}
}

func (f *logFollower) text() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buf.String()
}

// followNodeLogs tails both capture files of p concurrently, one worker per
// stream, so an empty stream never blocks consumption of the other. It
// blocks until both workers observe the process has exited with no lines
// pending, and returns everything emitted. Stderr lines carry a marker
// prefix so the two streams stay distinguishable when interleaved.
func followNodeLogs(ctx context.Context, p *NodeProcess, sink func(string)) (string, error) {
	f := &logFollower{sink: sink}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		tailCaptureFile(ctx, p, p.StdoutPath, "", f)
	}()
	go func() {
		defer wg.Done()
		tailCaptureFile(ctx, p, p.StderrPath, stderrPrefix, f)
	}()
	wg.Wait()

	return f.text(), ctx.Err()
}

// tailCaptureFile emits complete lines from path as they appear, polling
// for growth, and returns once the owning process has exited and the file
// holds no unread bytes. A trailing unterminated line is flushed as-is.
func tailCaptureFile(ctx context.Context, p *NodeProcess, path, prefix string, f *logFollower) {
	file, err := os.Open(path)
	if err != nil {
		return
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	limiter := rate.NewLimiter(rate.Every(tailPollRate), 1)
	var partial strings.Builder

	for {
		chunk, err := reader.ReadString('\n')
		partial.WriteString(chunk)

		if err == nil {
			f.emit(prefix + strings.TrimSuffix(partial.String(), "\n"))
			partial.Reset()
			continue
		}
		if err != io.EOF {
			return
		}

		// At EOF. Once the process is gone no more bytes can arrive:
		// everything it wrote was flushed to the file before exit.
		select {
		case <-p.done:
			if partial.Len() > 0 {
				f.emit(prefix + partial.String())
			}
			return
		default:
		}

		if limiter.Wait(ctx) != nil {
			if partial.Len() > 0 {
				f.emit(prefix + partial.String())
			}
			return
		}
	}
}
