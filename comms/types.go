// Package comms 实现智能体之间的站内通信总线：
// 注册表、会话历史与消息路由，全部在内存中由互斥锁保护。
package comms

import (
	"time"

	"github.com/BaSui01/paperflow/types"
)

// 消息类别。工作流编排使用后五种在阶段交接处留痕。
const (
	TypeInformation       = "information"
	TypeQuestion          = "question"
	TypeResponse          = "response"
	TypeTaskAssignment    = "task_assignment"
	TypeTaskCompletion    = "task_completion"
	TypeReviewFeedback    = "review_feedback"
	TypeRevisionRequest   = "revision_request"
	TypeProjectCompletion = "project_completion"
)

// AgentInfo 描述注册到总线的智能体。
type AgentInfo struct {
	ID          string            `json:"id"`
	Type        string            `json:"type"`
	Description string            `json:"description"`
	Status      types.AgentStatus `json:"status"`
	LastActive  time.Time         `json:"last_active"`
}

// Message 是会话内的一条消息。ID 在会话内从 1 递增。
type Message struct {
	ID        int       `json:"id"`
	Sender    string    `json:"sender"`
	Recipient string    `json:"recipient"`
	Content   string    `json:"content"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation 是一对智能体之间的全部消息。
// 会话不分方向：A→B 与 B→A 落在同一个会话里。
type Conversation struct {
	ID           string    `json:"conversation_id"`
	Participants [2]string `json:"participants"`
	Started      time.Time `json:"started"`
	Updated      time.Time `json:"updated"`
	Messages     []Message `json:"messages"`
}

// SendReceipt 是 Send 成功后的回执。
type SendReceipt struct {
	ConversationID string `json:"conversation_id"`
	MessageID      int    `json:"message_id"`
}

// ConversationSummary 是某个智能体视角下的单个会话概要。
type ConversationSummary struct {
	ConversationID   string    `json:"conversation_id"`
	WithAgent        string    `json:"with_agent"`
	WithAgentType    string    `json:"with_agent_type"`
	MessageCount     int       `json:"messages_count"`
	MessagesSent     int       `json:"messages_sent"`
	MessagesReceived int       `json:"messages_received"`
	Started          time.Time `json:"started"`
	Updated          time.Time `json:"updated"`
	Latest           *Message  `json:"latest_message,omitempty"`
}
