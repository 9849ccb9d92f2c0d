package llm

import "context"

// SynthesizeStream adapts a non-streaming provider to the streaming
// contract: it performs one blocking SendMessage and replays the result
// as a chunk sequence (text, tool calls, then done). Providers whose
// wire format cannot deliver usable increments fall back to this.
func SynthesizeStream(ctx context.Context, p Provider, messages []Message, tools []ToolDefinition) <-chan StreamChunk {
	out := make(chan StreamChunk, 4)
	go func() {
		defer close(out)

		resp, err := p.SendMessage(ctx, messages, tools)
		if err != nil {
			emit(ctx, out, StreamChunk{Type: ChunkError, Err: err})
			return
		}

		if resp.Content != "" {
			if !emit(ctx, out, StreamChunk{Type: ChunkText, Text: resp.Content}) {
				return
			}
		}
		for i := range resp.ToolCalls {
			if !emit(ctx, out, StreamChunk{Type: ChunkToolUse, ToolCall: &resp.ToolCalls[i]}) {
				return
			}
		}
		emit(ctx, out, StreamChunk{Type: ChunkDone, Response: resp})
	}()
	return out
}

// emit sends a chunk unless the context is canceled first. Returns false
// when the consumer is gone and the producer should stop.
func emit(ctx context.Context, out chan<- StreamChunk, chunk StreamChunk) bool {
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}
