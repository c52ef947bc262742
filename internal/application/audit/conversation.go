package audit

import (
	"context"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/bryanwahyu/adguardian/internal/application"
	domain "github.com/bryanwahyu/adguardian/internal/domain/audit"
)

// ChatFailureText is appended as the model's turn when a revision call fails.
const ChatFailureText = "对话连接中断，请稍后再试。"

// Reviser produces the model's turn of a correction dialogue.
type Reviser interface {
	Revise(ctx context.Context, anchor *domain.AnalysisResult, transcript []domain.ChatMessage) (string, error)
}

// Conversation is a correction dialogue anchored to one analysis result.
// Sends are serialized; the transcript always alternates user, model, user, model.
type Conversation struct {
	reviser Reviser
	clock   application.Clock
	log     logrus.FieldLogger

	sendMu sync.Mutex

	mu         sync.Mutex
	generation uint64
	anchor     *domain.AnalysisResult
	messages   []domain.ChatMessage
}

func NewConversation(reviser Reviser, clock application.Clock, log logrus.FieldLogger) *Conversation {
	if clock == nil {
		clock = application.SystemClock{}
	}
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = l
	}
	return &Conversation{reviser: reviser, clock: clock, log: log}
}

// Reset clears the transcript and re-anchors it. A reply still in flight for the old
// anchor is dropped when it arrives.
func (c *Conversation) Reset(anchor *domain.AnalysisResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.anchor = anchor.Clone()
	c.messages = nil
}

// Anchor returns a copy of the current anchor.
func (c *Conversation) Anchor() *domain.AnalysisResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.anchor.Clone()
}

// Transcript returns a copy of the messages so far.
func (c *Conversation) Transcript() []domain.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.ChatMessage{}, c.messages...)
}

// Send appends the user's message, asks for a revision and appends the reply.
// Model failures never surface as errors: the fixed failure text becomes the reply.
func (c *Conversation) Send(ctx context.Context, text string) (domain.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.ChatMessage{}, domain.ErrEmptyMessage
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	c.mu.Lock()
	gen := c.generation
	anchor := c.anchor.Clone()
	c.messages = append(c.messages, domain.ChatMessage{
		Role:      domain.ChatUser,
		Text:      text,
		Timestamp: application.Millis(c.clock),
	})
	snapshot := append([]domain.ChatMessage{}, c.messages...)
	c.mu.Unlock()

	reply, err := c.reviser.Revise(ctx, anchor, snapshot)
	if err != nil {
		c.log.WithError(err).Warn("revision call failed")
		reply = ChatFailureText
	}
	msg := domain.ChatMessage{
		Role:      domain.ChatModel,
		Text:      reply,
		Timestamp: application.Millis(c.clock),
	}

	c.mu.Lock()
	if c.generation == gen {
		c.messages = append(c.messages, msg)
	}
	c.mu.Unlock()
	return msg, nil
}
