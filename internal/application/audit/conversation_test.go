package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/adguardian/internal/application"
	"github.com/bryanwahyu/adguardian/internal/domain/ai"
	domain "github.com/bryanwahyu/adguardian/internal/domain/audit"
)

func newTestConversation(stub *stubClient) *Conversation {
	a := newTestAuditor(stub, &sleeper{}, nil)
	c := NewConversation(a, application.FixedClock{T: testNow}, nil)
	c.Reset(&domain.AnalysisResult{IsAd: true, ProductName: "某某降糖茶", Summary: "原报告"})
	return c
}

func assertAlternates(t *testing.T, msgs []domain.ChatMessage) {
	t.Helper()
	for i, m := range msgs {
		want := domain.ChatUser
		if i%2 == 1 {
			want = domain.ChatModel
		}
		assert.Equal(t, want, m.Role, "message %d", i)
	}
}

func TestConversationTurnOrdering(t *testing.T) {
	stub := newStub(reply{text: "修订版"})
	c := newTestConversation(stub)

	for _, q := range []string{"一", "二", "三"} {
		msg, err := c.Send(context.Background(), q)
		require.NoError(t, err)
		assert.Equal(t, domain.ChatModel, msg.Role)
	}
	msgs := c.Transcript()
	require.Len(t, msgs, 6)
	assertAlternates(t, msgs)
	assert.Equal(t, "三", msgs[4].Text)

	// the third call carries the full history ending with the newest question
	req := stub.Request(2)
	require.Len(t, req.Messages, 5)
	assert.Equal(t, "三", req.Messages[4].Parts[0].Text)
}

func TestConversationConcurrentSendsStayOrdered(t *testing.T) {
	stub := newStub(reply{text: "修订版"})
	c := newTestConversation(stub)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Send(context.Background(), "问题")
		}()
	}
	wg.Wait()

	msgs := c.Transcript()
	require.Len(t, msgs, 16)
	assertAlternates(t, msgs)
}

func TestConversationFailureBecomesReply(t *testing.T) {
	stub := newStub(reply{err: ai.NewError(ai.KindNetwork, 0, "reset by peer", nil)})
	c := newTestConversation(stub)

	msg, err := c.Send(context.Background(), "请修改")
	require.NoError(t, err)
	assert.Equal(t, ChatFailureText, msg.Text)

	msgs := c.Transcript()
	require.Len(t, msgs, 2)
	assert.Equal(t, ChatFailureText, msgs[1].Text)
}

func TestConversationRejectsBlankMessage(t *testing.T) {
	stub := newStub(reply{text: "x"})
	c := newTestConversation(stub)

	_, err := c.Send(context.Background(), "   ")
	assert.ErrorIs(t, err, domain.ErrEmptyMessage)
	assert.Equal(t, 0, stub.Calls())
	assert.Empty(t, c.Transcript())
}

func TestConversationResetDropsLateReply(t *testing.T) {
	stub := newStub(reply{text: "迟到的回复"})
	stub.gate = make(chan struct{})
	c := newTestConversation(stub)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.Send(context.Background(), "请修改")
	}()
	require.Eventually(t, func() bool { return len(c.Transcript()) == 1 }, time.Second, 5*time.Millisecond)

	next := &domain.AnalysisResult{ProductName: "另一个商品"}
	c.Reset(next)
	assert.Empty(t, c.Transcript())

	close(stub.gate)
	<-done
	assert.Empty(t, c.Transcript())
	assert.Equal(t, "另一个商品", c.Anchor().ProductName)
}
