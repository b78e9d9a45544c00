package channel

import (
	"bufio"
	"context"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/fieldmind/core/internal/message"
)

// LocalIngest reads line-oriented UTF-8 text from r, trims CR/LF,
// drops empty lines, and enqueues the rest onto input with origin
// Local until ctx is done or r is exhausted.
func LocalIngest(ctx context.Context, r io.Reader, input *Queue, logger *zap.Logger) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if line == "" {
			continue
		}
		if len(line) > message.MaxBytes {
			line = line[:message.MaxBytes]
		}
		input.TrySend(ctx, message.New(line, message.OriginLocal))
	}
	if err := scanner.Err(); err != nil {
		logger.Warn("local ingest scan error", zap.Error(err))
	}
}

// LocalEgress dequeues from output and writes each message's text as a
// line to w until ctx is done.
func LocalEgress(ctx context.Context, w io.Writer, output *Queue, logger *zap.Logger) {
	bw := bufio.NewWriter(w)
	defer bw.Flush()
	for {
		m, ok := output.Receive(ctx)
		if !ok {
			return
		}
		if _, err := bw.WriteString(m.Text + "\n"); err != nil {
			logger.Warn("local egress write error", zap.Error(err))
			continue
		}
		bw.Flush()
	}
}
