package chunker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const splitterPrompt = `Split the following article into coherent chunks for a news retrieval
index. Each chunk must be a contiguous, self-contained passage. Respond with
JSON only: an array of chunk strings.

Article:
%s`

// llmSplit asks the model for semantic boundaries and parses whatever JSON
// shape it returns.
func (c *Chunker) llmSplit(ctx context.Context, text string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.SplitterTimeout)
	defer cancel()

	raw, err := c.complete(ctx, fmt.Sprintf(splitterPrompt, text))
	if err != nil {
		return nil, err
	}
	pieces, err := ParseSplitterResponse(raw)
	if err != nil {
		return nil, err
	}
	if len(pieces) == 0 {
		return nil, fmt.Errorf("splitter returned no chunks")
	}
	return pieces, nil
}

// ParseSplitterResponse accepts the response shapes models actually emit:
//
//	["chunk", ...]
//	[{"text": "chunk"}, ...]
//	{"chunks": [...]} with either element form
//	{"text": "chunk"} for a single-chunk article
//
// with or without a markdown code fence around the JSON.
func ParseSplitterResponse(raw string) ([]string, error) {
	raw = stripCodeFence(raw)

	var arr []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &arr); err == nil {
		return chunkElements(arr)
	}

	var wrapped struct {
		Chunks []json.RawMessage `json:"chunks"`
		Text   string            `json:"text"`
	}
	if err := json.Unmarshal([]byte(raw), &wrapped); err != nil {
		return nil, fmt.Errorf("unrecognized splitter response")
	}
	if wrapped.Chunks != nil {
		return chunkElements(wrapped.Chunks)
	}
	if strings.TrimSpace(wrapped.Text) != "" {
		return []string{strings.TrimSpace(wrapped.Text)}, nil
	}
	return nil, fmt.Errorf("unrecognized splitter response")
}

// chunkElements decodes array elements that are either bare strings or
// {"text": ...} objects.
func chunkElements(items []json.RawMessage) ([]string, error) {
	out := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			out = append(out, s)
			continue
		}
		var obj struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(item, &obj); err == nil && obj.Text != "" {
			out = append(out, obj.Text)
			continue
		}
		return nil, fmt.Errorf("unrecognized chunk element")
	}
	return clean(out), nil
}

func clean(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func stripCodeFence(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "```") {
		return raw
	}
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "```")
	return strings.TrimSpace(raw)
}
