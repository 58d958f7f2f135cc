package flow

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/openai/openai-go"
)

// oracleReply is one scripted oracle outcome.
type oracleReply struct {
	text string
	err  error
}

func reply(text string) oracleReply  { return oracleReply{text: text} }
func replyErr(err error) oracleReply { return oracleReply{err: err} }

// scriptedOracle implements genai.ClientInterface by returning queued
// replies in order. It records the system prompt of every call so tests
// can assert which oracle operation ran.
type scriptedOracle struct {
	mu      sync.Mutex
	replies []oracleReply
	prompts []string
}

func newScriptedOracle(replies ...oracleReply) *scriptedOracle {
	return &scriptedOracle{replies: replies}
}

func (o *scriptedOracle) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.prompts = append(o.prompts, systemPromptOf(messages))
	if len(o.replies) == 0 {
		return "", fmt.Errorf("scripted oracle exhausted after %d calls", len(o.prompts))
	}
	r := o.replies[0]
	o.replies = o.replies[1:]
	return r.text, r.err
}

func (o *scriptedOracle) callCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.prompts)
}

// countPrompts returns how many recorded calls had a system prompt
// containing the given substring.
func (o *scriptedOracle) countPrompts(substr string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, p := range o.prompts {
		if strings.Contains(p, substr) {
			n++
		}
	}
	return n
}

// funcOracle delegates to a function, for tests needing call-dependent
// behavior such as controlled interleaving.
type funcOracle struct {
	fn func(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error)
}

func (o *funcOracle) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	return o.fn(ctx, messages)
}

// systemPromptOf extracts the first system message content from an oracle
// call, if any.
func systemPromptOf(messages []openai.ChatCompletionMessageParamUnion) string {
	for _, m := range messages {
		if m.OfSystem != nil {
			return m.OfSystem.Content.OfString.Value
		}
	}
	return ""
}
