// Package store 持久化论文项目、产物版本与智能体消息归档。
// 底层是 GORM，支持 SQLite 与 PostgreSQL。
package store

import (
	"strings"
	"time"

	"github.com/BaSui01/paperflow/types"
)

// Project 是一次论文生成任务。
type Project struct {
	ID             string              `gorm:"primaryKey;size:36" json:"id"`
	Topic          string              `gorm:"size:200;not null" json:"topic"`
	Status         types.ProjectStatus `gorm:"size:50;default:created" json:"status"`
	ModelType string `gorm:"size:50" json:"model_type"`
	// ResearchSource 是逗号分隔的数据源顺序，空表示使用服务默认顺序。
	ResearchSource string `gorm:"size:50" json:"research_source"`

	// 各阶段完成标记
	ResearchCompleted bool `gorm:"default:false" json:"research_completed"`
	WritingCompleted  bool `gorm:"default:false" json:"writing_completed"`
	ReviewCompleted   bool `gorm:"default:false" json:"review_completed"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Versions      []Version      `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE" json:"versions,omitempty"`
	AgentMessages []AgentMessage `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE" json:"agent_messages,omitempty"`
}

// ResearchSources 把 ResearchSource 解析为有序数据源名单。
// 空字符串返回 nil，表示调用方应使用默认顺序。
func (p *Project) ResearchSources() []string {
	var names []string
	for _, name := range strings.Split(p.ResearchSource, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// Version 是项目内某类产物的一个版本。
// 版本号在 (ProjectID, ContentType) 内从 1 连续递增。
type Version struct {
	ID            uint              `gorm:"primaryKey" json:"id"`
	ProjectID     string            `gorm:"size:36;not null;index:idx_project_content" json:"project_id"`
	ContentType   types.ContentType `gorm:"size:50;not null;index:idx_project_content;default:research" json:"content_type"`
	VersionNumber int               `gorm:"not null" json:"version_number"`
	Content       string            `gorm:"type:text;not null" json:"content"`
	CreatedBy     string            `gorm:"size:50" json:"created_by"` // 产出该版本的智能体
	CreatedAt     time.Time         `json:"created_at"`
}

// AgentMessage 是持久化的智能体消息归档，供前端时间线查询。
type AgentMessage struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ProjectID   string    `gorm:"size:36;not null;index" json:"project_id"`
	Sender      string    `gorm:"size:50;not null" json:"sender"`
	Receiver    string    `gorm:"size:50" json:"receiver"`
	Content     string    `gorm:"type:text;not null" json:"content"`
	MessageType string    `gorm:"size:50;default:text" json:"message_type"`
	CreatedAt   time.Time `json:"created_at"`
}
