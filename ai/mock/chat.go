package mock

import (
	"context"
	"strings"

	"github.com/poiesic/docquery/ai"
)

// defaultAnswer is returned by the mock chat model when no behavior is injected.
const defaultAnswer = "This is a mock answer."

// MockChatModel is a test double for ai.ChatModel.
// It allows custom behavior injection via function fields.
type MockChatModel struct {
	// CompleteFunc is called by Complete if set.
	// If nil, returns a canned answer.
	CompleteFunc func(ctx context.Context, messages []ai.Message) (string, error)

	// StreamFunc is called by Stream if set.
	// If nil, streams the canned answer word by word.
	StreamFunc func(ctx context.Context, messages []ai.Message, fn ai.StreamFunc) error

	callCount    int
	lastMessages []ai.Message
}

// NewMockChatModel creates a mock chat model with default canned behavior.
// Note: Returns concrete type to allow test assertions via GetMockChatModel().
func NewMockChatModel() *MockChatModel {
	return &MockChatModel{}
}

// Complete returns the canned answer or delegates to CompleteFunc.
func (m *MockChatModel) Complete(ctx context.Context, messages []ai.Message) (string, error) {
	m.callCount++
	m.lastMessages = messages

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, messages)
	}
	return defaultAnswer, nil
}

// Stream streams the canned answer word by word or delegates to StreamFunc.
func (m *MockChatModel) Stream(ctx context.Context, messages []ai.Message, fn ai.StreamFunc) error {
	m.callCount++
	m.lastMessages = messages

	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, messages, fn)
	}

	words := strings.SplitAfter(defaultAnswer, " ")
	for _, word := range words {
		if err := fn(ctx, []byte(word)); err != nil {
			return err
		}
	}
	return nil
}

// CallCount returns the number of times any method was called.
func (m *MockChatModel) CallCount() int {
	return m.callCount
}

// LastMessages returns the messages from the most recent call.
func (m *MockChatModel) LastMessages() []ai.Message {
	return m.lastMessages
}

// Reset clears the call count and any injected behavior.
func (m *MockChatModel) Reset() {
	m.callCount = 0
	m.lastMessages = nil
	m.CompleteFunc = nil
	m.StreamFunc = nil
}
