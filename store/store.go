package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/paperflow/internal/database"
	"github.com/BaSui01/paperflow/types"
)

// 版本号分配事务在瞬态冲突下的最大重试次数。
const versionTxRetries = 3

// Store 是项目与产物版本的持久化入口。
// 版本号分配在 (project_id, content_type) 维度上串行化：
// 进程内用分键互斥锁，跨进程靠事务内 max+1 与 WithTransactionRetry。
type Store struct {
	pool   *database.PoolManager
	logger *zap.Logger

	mu           sync.Mutex
	versionLocks map[string]*sync.Mutex
}

// New 创建 Store。调用方负责事先完成 AutoMigrate。
func New(pool *database.PoolManager, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		pool:         pool,
		logger:       logger,
		versionLocks: make(map[string]*sync.Mutex),
	}
}

// AutoMigrate 建表并维护索引。
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Project{}, &Version{}, &AgentMessage{}); err != nil {
		return fmt.Errorf("failed to auto migrate: %w", err)
	}
	return nil
}

// =============================================================================
// 项目
// =============================================================================

// CreateProject 创建新项目，ID 为 UUID。
func (s *Store) CreateProject(ctx context.Context, topic, modelType, researchSource string) (*Project, error) {
	if topic == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "topic is required")
	}
	project := &Project{
		ID:             uuid.NewString(),
		Topic:          topic,
		Status:         types.StatusCreated,
		ModelType:      modelType,
		ResearchSource: researchSource,
	}
	if err := s.pool.DB().WithContext(ctx).Create(project).Error; err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	s.logger.Info("project created",
		zap.String("project_id", project.ID),
		zap.String("topic", topic))
	return project, nil
}

// GetProject 按 ID 取项目。
func (s *Store) GetProject(ctx context.Context, id string) (*Project, error) {
	var project Project
	err := s.pool.DB().WithContext(ctx).First(&project, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewError(types.ErrProjectNotFound, fmt.Sprintf("project %s not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &project, nil
}

// ListProjects 返回全部项目，新的在前。
func (s *Store) ListProjects(ctx context.Context) ([]Project, error) {
	var projects []Project
	if err := s.pool.DB().WithContext(ctx).Order("created_at DESC").Find(&projects).Error; err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return projects, nil
}

// UpdateProjectStatus 更新项目状态。
func (s *Store) UpdateProjectStatus(ctx context.Context, id string, status types.ProjectStatus) error {
	result := s.pool.DB().WithContext(ctx).Model(&Project{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return fmt.Errorf("failed to update project status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return types.NewError(types.ErrProjectNotFound, fmt.Sprintf("project %s not found", id))
	}
	return nil
}

// MarkPhaseCompleted 打阶段完成标记。
func (s *Store) MarkPhaseCompleted(ctx context.Context, id string, phase types.Action) error {
	var column string
	switch phase {
	case types.ActionResearch:
		column = "research_completed"
	case types.ActionWrite:
		column = "writing_completed"
	case types.ActionReview:
		column = "review_completed"
	default:
		return types.NewError(types.ErrInvalidRequest, fmt.Sprintf("phase %s has no completion flag", phase))
	}
	result := s.pool.DB().WithContext(ctx).Model(&Project{}).
		Where("id = ?", id).
		Update(column, true)
	if result.Error != nil {
		return fmt.Errorf("failed to mark phase completed: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return types.NewError(types.ErrProjectNotFound, fmt.Sprintf("project %s not found", id))
	}
	return nil
}

// DeleteProject 删除项目及其级联的版本与消息。
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	return s.pool.WithTransaction(ctx, func(tx *gorm.DB) error {
		// SQLite 下外键约束默认不开，显式级联删除
		if err := tx.Where("project_id = ?", id).Delete(&Version{}).Error; err != nil {
			return fmt.Errorf("failed to delete versions: %w", err)
		}
		if err := tx.Where("project_id = ?", id).Delete(&AgentMessage{}).Error; err != nil {
			return fmt.Errorf("failed to delete agent messages: %w", err)
		}
		result := tx.Delete(&Project{}, "id = ?", id)
		if result.Error != nil {
			return fmt.Errorf("failed to delete project: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return types.NewError(types.ErrProjectNotFound, fmt.Sprintf("project %s not found", id))
		}
		return nil
	})
}

// =============================================================================
// 版本
// =============================================================================

// SaveVersion 保存产物新版本并分配版本号。
// 版本号 = 同 (project_id, content_type) 下现有最大值 + 1，从 1 起连续无空洞。
func (s *Store) SaveVersion(ctx context.Context, projectID string, contentType types.ContentType, content, createdBy string) (*Version, error) {
	if _, err := s.GetProject(ctx, projectID); err != nil {
		return nil, err
	}

	lock := s.versionLock(projectID, contentType)
	lock.Lock()
	defer lock.Unlock()

	version := &Version{
		ProjectID:   projectID,
		ContentType: contentType,
		Content:     content,
		CreatedBy:   createdBy,
	}
	err := s.pool.WithTransactionRetry(ctx, versionTxRetries, func(tx *gorm.DB) error {
		var maxVersion int
		row := tx.Model(&Version{}).
			Where("project_id = ? AND content_type = ?", projectID, contentType).
			Select("COALESCE(MAX(version_number), 0)").
			Row()
		if err := row.Scan(&maxVersion); err != nil {
			return fmt.Errorf("failed to query max version: %w", err)
		}
		version.ID = 0
		version.VersionNumber = maxVersion + 1
		return tx.Create(version).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save version: %w", err)
	}

	s.logger.Info("version saved",
		zap.String("project_id", projectID),
		zap.String("content_type", string(contentType)),
		zap.Int("version_number", version.VersionNumber),
		zap.String("created_by", createdBy))
	return version, nil
}

// LatestVersion 返回某类产物的最新版本。
func (s *Store) LatestVersion(ctx context.Context, projectID string, contentType types.ContentType) (*Version, error) {
	var version Version
	err := s.pool.DB().WithContext(ctx).
		Where("project_id = ? AND content_type = ?", projectID, contentType).
		Order("version_number DESC").
		First(&version).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewError(types.ErrVersionNotFound,
			fmt.Sprintf("no %s version for project %s", contentType, projectID))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest version: %w", err)
	}
	return &version, nil
}

// ListVersions 按版本号升序返回某类产物的全部版本。
func (s *Store) ListVersions(ctx context.Context, projectID string, contentType types.ContentType) ([]Version, error) {
	var versions []Version
	err := s.pool.DB().WithContext(ctx).
		Where("project_id = ? AND content_type = ?", projectID, contentType).
		Order("version_number ASC").
		Find(&versions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	return versions, nil
}

// GetVersion 取指定版本号的产物。
func (s *Store) GetVersion(ctx context.Context, projectID string, contentType types.ContentType, number int) (*Version, error) {
	var version Version
	err := s.pool.DB().WithContext(ctx).
		Where("project_id = ? AND content_type = ? AND version_number = ?", projectID, contentType, number).
		First(&version).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewError(types.ErrVersionNotFound,
			fmt.Sprintf("%s version %d not found for project %s", contentType, number, projectID))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get version: %w", err)
	}
	return &version, nil
}

// versionLock 返回 (projectID, contentType) 维度的进程内互斥锁。
func (s *Store) versionLock(projectID string, contentType types.ContentType) *sync.Mutex {
	key := projectID + "/" + string(contentType)
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.versionLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.versionLocks[key] = lock
	}
	return lock
}

// =============================================================================
// 消息归档
// =============================================================================

// SaveAgentMessage 持久化一条智能体消息。
func (s *Store) SaveAgentMessage(ctx context.Context, projectID, sender, receiver, content, messageType string) (*AgentMessage, error) {
	msg := &AgentMessage{
		ProjectID:   projectID,
		Sender:      sender,
		Receiver:    receiver,
		Content:     content,
		MessageType: messageType,
	}
	if err := s.pool.DB().WithContext(ctx).Create(msg).Error; err != nil {
		return nil, fmt.Errorf("failed to save agent message: %w", err)
	}
	return msg, nil
}

// ListAgentMessages 返回项目的消息归档，since 非零时只取其后的消息。
func (s *Store) ListAgentMessages(ctx context.Context, projectID string, since time.Time) ([]AgentMessage, error) {
	query := s.pool.DB().WithContext(ctx).Where("project_id = ?", projectID)
	if !since.IsZero() {
		query = query.Where("created_at > ?", since)
	}
	var messages []AgentMessage
	if err := query.Order("created_at ASC, id ASC").Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("failed to list agent messages: %w", err)
	}
	return messages, nil
}
