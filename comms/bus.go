package comms

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/paperflow/llm"
	"github.com/BaSui01/paperflow/types"
)

// Bus 是进程内通信总线。所有读写都持有同一把互斥锁，
// 并发的注册、发送与查询之间互不踩踏。
type Bus struct {
	mu            sync.Mutex
	agents        map[string]*AgentInfo
	conversations map[string]*Conversation

	provider llm.Provider // 可为 nil，摘要能力退化为统计文本
	logger   *zap.Logger
	now      func() time.Time
}

// NewBus 创建通信总线。provider 仅用于 SummarizeCommunications，可为 nil。
func NewBus(provider llm.Provider, logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		agents:        make(map[string]*AgentInfo),
		conversations: make(map[string]*Conversation),
		provider:      provider,
		logger:        logger,
		now:           time.Now,
	}
}

// Register 注册智能体。重复注册返回 false 且不改动已有记录。
func (b *Bus) Register(id, agentType, description string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.agents[id]; exists {
		b.logger.Warn("agent already registered", zap.String("agent_id", id))
		return false
	}
	if description == "" {
		description = capitalize(agentType) + " Agent"
	}
	b.agents[id] = &AgentInfo{
		ID:          id,
		Type:        agentType,
		Description: description,
		Status:      types.AgentIdle,
		LastActive:  b.now(),
	}
	b.logger.Info("registered agent", zap.String("agent_id", id), zap.String("type", agentType))
	return true
}

// Send 投递一条消息。发送方和接收方都必须已注册。
// 会话 ID 规范为 sender_recipient；反方向会话已存在时复用之，
// 保证一对智能体始终只有一个会话。
func (b *Bus) Send(sender, recipient, content, messageType string) (*SendReceipt, error) {
	if messageType == "" {
		messageType = TypeInformation
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	senderInfo, ok := b.agents[sender]
	if !ok {
		return nil, types.NewError(types.ErrUnknownAgent, fmt.Sprintf("unknown sender: %s", sender))
	}
	recipientInfo, ok := b.agents[recipient]
	if !ok {
		return nil, types.NewError(types.ErrUnknownAgent, fmt.Sprintf("unknown recipient: %s", recipient))
	}

	convID := sender + "_" + recipient
	if _, exists := b.conversations[convID]; !exists {
		if _, reverse := b.conversations[recipient+"_"+sender]; reverse {
			convID = recipient + "_" + sender
		}
	}

	now := b.now()
	conv, exists := b.conversations[convID]
	if !exists {
		conv = &Conversation{
			ID:           convID,
			Participants: [2]string{sender, recipient},
			Started:      now,
		}
		b.conversations[convID] = conv
	}

	msg := Message{
		ID:        len(conv.Messages) + 1,
		Sender:    sender,
		Recipient: recipient,
		Content:   content,
		Type:      messageType,
		Timestamp: now,
	}
	conv.Messages = append(conv.Messages, msg)
	conv.Updated = now

	senderInfo.Status = types.AgentSent
	senderInfo.LastActive = now
	recipientInfo.Status = types.AgentReceived

	b.logger.Info("message sent",
		zap.String("sender", sender),
		zap.String("recipient", recipient),
		zap.String("type", messageType),
		zap.String("conversation_id", convID))

	return &SendReceipt{ConversationID: convID, MessageID: msg.ID}, nil
}

// Conversation 按 ID 查询会话，返回深拷贝。
func (b *Bus) Conversation(id string) (*Conversation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	conv, ok := b.conversations[id]
	if !ok {
		return nil, types.NewError(types.ErrInvalidRequest, fmt.Sprintf("conversation %s not found", id))
	}
	return copyConversation(conv), nil
}

// AgentConversations 返回智能体参与的全部会话概要。
func (b *Bus) AgentConversations(agentID string) ([]ConversationSummary, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.agents[agentID]; !ok {
		return nil, types.NewError(types.ErrUnknownAgent, fmt.Sprintf("unknown agent: %s", agentID))
	}

	var summaries []ConversationSummary
	for _, conv := range b.conversations {
		if conv.Participants[0] != agentID && conv.Participants[1] != agentID {
			continue
		}
		other := conv.Participants[0]
		if other == agentID {
			other = conv.Participants[1]
		}

		summary := ConversationSummary{
			ConversationID: conv.ID,
			WithAgent:      other,
			MessageCount:   len(conv.Messages),
			Started:        conv.Started,
			Updated:        conv.Updated,
		}
		if info, ok := b.agents[other]; ok {
			summary.WithAgentType = info.Type
		}
		for _, msg := range conv.Messages {
			if msg.Sender == agentID {
				summary.MessagesSent++
			}
			if msg.Recipient == agentID {
				summary.MessagesReceived++
			}
		}
		if n := len(conv.Messages); n > 0 {
			latest := conv.Messages[n-1]
			summary.Latest = &latest
		}
		summaries = append(summaries, summary)
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].ConversationID < summaries[j].ConversationID
	})
	return summaries, nil
}

// Agents 返回全部已注册智能体的快照，按 ID 排序。
func (b *Bus) Agents() []AgentInfo {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]AgentInfo, 0, len(b.agents))
	for _, info := range b.agents {
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SummarizeCommunications 用模型总结通信模式。
// agentID 为空时总结全局；模型不可用时退化为统计文本，不报错。
func (b *Bus) SummarizeCommunications(ctx context.Context, agentID, topic string) (string, error) {
	var prompt string
	if agentID != "" {
		summaries, err := b.AgentConversations(agentID)
		if err != nil {
			return "", err
		}
		var sent, received int
		var partners []string
		for _, s := range summaries {
			sent += s.MessagesSent
			received += s.MessagesReceived
			partners = append(partners, s.WithAgentType+" agent")
		}
		prompt = fmt.Sprintf(
			"Summarize the communication patterns for agent '%s'.\n"+
				"Conversations: %d\nMessages sent: %d\nMessages received: %d\n"+
				"Communicated with: %s\n",
			agentID, len(summaries), sent, received, strings.Join(partners, ", "))
	} else {
		b.mu.Lock()
		agentCount := len(b.agents)
		convCount := len(b.conversations)
		b.mu.Unlock()
		prompt = fmt.Sprintf(
			"Summarize the overall communication patterns between all agents.\n"+
				"Agents: %d\nConversations: %d\n", agentCount, convCount)
	}
	if topic != "" {
		prompt += fmt.Sprintf("These communications are related to the topic: %s\n", topic)
	}
	prompt += "Please provide a brief summary of the communication patterns and effectiveness."

	if b.provider == nil {
		return prompt, nil
	}

	messages := []types.Message{
		types.NewSystemMessage("You are a communication specialist summarizing interactions between AI agents."),
		types.NewUserMessage(prompt),
	}
	summary, err := llm.Complete(ctx, b.provider, messages)
	if err != nil {
		b.logger.Warn("communication summary via model failed, returning statistics", zap.Error(err))
		return prompt, nil
	}
	return summary, nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func copyConversation(conv *Conversation) *Conversation {
	out := *conv
	out.Messages = make([]Message, len(conv.Messages))
	copy(out.Messages, conv.Messages)
	return &out
}
