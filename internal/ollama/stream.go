package ollama

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// ndjsonStream adapts a streamed /api/chat body to stream.FragmentStream.
// One JSON object per line; done:true ends the sequence.
type ndjsonStream struct {
	body      io.ReadCloser
	r         *bufio.Reader
	log       zerolog.Logger
	done      bool
	err       error
	closeOnce sync.Once
}

func newNDJSONStream(body io.ReadCloser, log zerolog.Logger) *ndjsonStream {
	return &ndjsonStream{body: body, r: bufio.NewReader(body), log: log}
}

// Next returns the next non-empty content delta, io.EOF after done:true, or a
// StreamInterrupted error. Once an error is returned it is returned again.
func (s *ndjsonStream) Next(ctx context.Context) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if s.done {
		return "", io.EOF
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	// Unblock a pending read when ctx ends.
	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	for {
		line, rerr := s.r.ReadString('\n')
		if line = strings.TrimSpace(line); line != "" {
			var chunk chatChunk
			if err := json.Unmarshal([]byte(line), &chunk); err != nil {
				return s.fail(streamInterruptedError{msg: "malformed stream line", cause: err})
			}
			if chunk.Error != "" {
				return s.fail(streamInterruptedError{msg: chunk.Error})
			}
			if chunk.Done {
				s.done = true
			}
			if chunk.Message.Content != "" {
				return chunk.Message.Content, nil
			}
			if s.done {
				return "", io.EOF
			}
		}
		if rerr != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			if errors.Is(rerr, io.EOF) {
				// Body ended cleanly without a done line.
				s.log.Debug().Msg("stream ended without done marker")
				s.done = true
				return "", io.EOF
			}
			return s.fail(streamInterruptedError{msg: "read", cause: rerr})
		}
	}
}

func (s *ndjsonStream) fail(err error) (string, error) {
	s.err = err
	s.log.Warn().Err(err).Msg("stream interrupted")
	return "", err
}

func (s *ndjsonStream) Close() error {
	var err error
	s.closeOnce.Do(func() { err = s.body.Close() })
	return err
}
