package comms

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/paperflow/testutil/mocks"
	"github.com/BaSui01/paperflow/types"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	bus := NewBus(nil, zap.NewNop())
	require.True(t, bus.Register("research_agent", "research", ""))
	require.True(t, bus.Register("writing_agent", "writing", ""))
	return bus
}

func TestBus_Register(t *testing.T) {
	t.Parallel()

	bus := NewBus(nil, zap.NewNop())

	assert.True(t, bus.Register("research_agent", "research", "Finds papers"))
	assert.False(t, bus.Register("research_agent", "research", "Duplicate"), "duplicate registration must be rejected")

	agents := bus.Agents()
	require.Len(t, agents, 1)
	assert.Equal(t, "Finds papers", agents[0].Description, "duplicate registration must not overwrite")
	assert.Equal(t, types.AgentIdle, agents[0].Status)
}

func TestBus_RegisterDefaultDescription(t *testing.T) {
	t.Parallel()

	bus := NewBus(nil, zap.NewNop())
	require.True(t, bus.Register("review_agent", "review", ""))

	agents := bus.Agents()
	require.Len(t, agents, 1)
	assert.Equal(t, "Review Agent", agents[0].Description)
}

func TestBus_SendUnknownAgent(t *testing.T) {
	t.Parallel()

	bus := newTestBus(t)

	_, err := bus.Send("ghost_agent", "writing_agent", "hello", "")
	require.Error(t, err)
	assert.Equal(t, types.ErrUnknownAgent, types.GetErrorCode(err))

	_, err = bus.Send("writing_agent", "ghost_agent", "hello", "")
	require.Error(t, err)
	assert.Equal(t, types.ErrUnknownAgent, types.GetErrorCode(err))
}

func TestBus_SendReusesReverseConversation(t *testing.T) {
	t.Parallel()

	bus := newTestBus(t)

	first, err := bus.Send("research_agent", "writing_agent", "papers ready", TypeTaskCompletion)
	require.NoError(t, err)
	assert.Equal(t, "research_agent_writing_agent", first.ConversationID)
	assert.Equal(t, 1, first.MessageID)

	// reverse direction lands in the same conversation
	second, err := bus.Send("writing_agent", "research_agent", "thanks", "")
	require.NoError(t, err)
	assert.Equal(t, first.ConversationID, second.ConversationID)
	assert.Equal(t, 2, second.MessageID)

	conv, err := bus.Conversation(first.ConversationID)
	require.NoError(t, err)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "papers ready", conv.Messages[0].Content)
	assert.Equal(t, TypeTaskCompletion, conv.Messages[0].Type)
	assert.Equal(t, TypeInformation, conv.Messages[1].Type, "empty type defaults to information")
}

func TestBus_SendUpdatesAgentStatus(t *testing.T) {
	t.Parallel()

	bus := newTestBus(t)

	_, err := bus.Send("research_agent", "writing_agent", "hello", "")
	require.NoError(t, err)

	agents := bus.Agents()
	byID := make(map[string]AgentInfo, len(agents))
	for _, a := range agents {
		byID[a.ID] = a
	}
	assert.Equal(t, types.AgentSent, byID["research_agent"].Status)
	assert.Equal(t, types.AgentReceived, byID["writing_agent"].Status)
}

func TestBus_ConversationReturnsCopy(t *testing.T) {
	t.Parallel()

	bus := newTestBus(t)

	receipt, err := bus.Send("research_agent", "writing_agent", "original", "")
	require.NoError(t, err)

	conv, err := bus.Conversation(receipt.ConversationID)
	require.NoError(t, err)
	conv.Messages[0].Content = "tampered"

	again, err := bus.Conversation(receipt.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, "original", again.Messages[0].Content)
}

func TestBus_AgentConversations(t *testing.T) {
	t.Parallel()

	bus := newTestBus(t)
	require.True(t, bus.Register("review_agent", "review", ""))

	_, err := bus.Send("research_agent", "writing_agent", "a", "")
	require.NoError(t, err)
	_, err = bus.Send("writing_agent", "research_agent", "b", "")
	require.NoError(t, err)
	_, err = bus.Send("review_agent", "writing_agent", "c", "")
	require.NoError(t, err)

	summaries, err := bus.AgentConversations("writing_agent")
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	// sorted by conversation ID
	assert.Equal(t, "research_agent_writing_agent", summaries[0].ConversationID)
	assert.Equal(t, "review_agent_writing_agent", summaries[1].ConversationID)

	assert.Equal(t, 2, summaries[0].MessageCount)
	assert.Equal(t, 1, summaries[0].MessagesSent)
	assert.Equal(t, 1, summaries[0].MessagesReceived)
	assert.Equal(t, "research", summaries[0].WithAgentType)
	require.NotNil(t, summaries[0].Latest)
	assert.Equal(t, "b", summaries[0].Latest.Content)

	_, err = bus.AgentConversations("ghost_agent")
	require.Error(t, err)
	assert.Equal(t, types.ErrUnknownAgent, types.GetErrorCode(err))
}

func TestBus_SummarizeCommunicationsWithoutProvider(t *testing.T) {
	t.Parallel()

	bus := newTestBus(t)
	_, err := bus.Send("research_agent", "writing_agent", "a", "")
	require.NoError(t, err)

	summary, err := bus.SummarizeCommunications(context.Background(), "research_agent", "quantum computing")
	require.NoError(t, err)
	assert.Contains(t, summary, "research_agent")
	assert.Contains(t, summary, "Messages sent: 1")
	assert.Contains(t, summary, "quantum computing")
}

func TestBus_SummarizeCommunicationsWithProvider(t *testing.T) {
	t.Parallel()

	provider := mocks.NewMockProvider().WithResponse("Agents collaborated smoothly.")
	bus := NewBus(provider, zap.NewNop())
	require.True(t, bus.Register("research_agent", "research", ""))

	summary, err := bus.SummarizeCommunications(context.Background(), "", "")
	require.NoError(t, err)
	assert.Equal(t, "Agents collaborated smoothly.", summary)
	assert.Equal(t, 1, provider.CallCount())
}

func TestBus_SummarizeCommunicationsProviderFailure(t *testing.T) {
	t.Parallel()

	provider := mocks.NewMockProvider().
		WithError(types.NewError(types.ErrUpstreamError, "backend down"))
	bus := NewBus(provider, zap.NewNop())

	// model failure degrades to the statistics text, no error surfaced
	summary, err := bus.SummarizeCommunications(context.Background(), "", "")
	require.NoError(t, err)
	assert.Contains(t, summary, "Agents: 0")
}
