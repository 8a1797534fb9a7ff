package dataprovider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Andrew821667/ai-seo-architects/agent/protocol/mcp"
	"github.com/Andrew821667/ai-seo-architects/types"
)

// LocalSource 本地兜底数据源
type LocalSource interface {
	Name() string
	// Confidence 该源结果的固定置信度
	Confidence() float64
	// Fetch 没有数据时返回 DATA_UNAVAILABLE
	Fetch(ctx context.Context, rt mcp.ResourceType, resourceID string, params map[string]any) (any, error)
}

// Recorder 可写入的兜底源；协议成功结果可回写，供离线时使用
type Recorder interface {
	Save(ctx context.Context, rt mcp.ResourceType, resourceID string, data any) error
}

func unavailable(rt mcp.ResourceType, resourceID string) error {
	return types.NewError(types.ErrDataUnavailable,
		fmt.Sprintf("no local data for %s/%s", rt, resourceID))
}

// =============================================================================
// StaticSource
// =============================================================================

// Template 按资源生成静态数据
type Template func(resourceID string, params map[string]any) map[string]any

// StaticSource 内置的确定性兜底数据：每种资源类型一个空骨架
type StaticSource struct {
	mu        sync.RWMutex
	templates map[mcp.ResourceType]Template
}

// NewStaticSource 创建带默认骨架的静态源
func NewStaticSource() *StaticSource {
	s := &StaticSource{templates: make(map[mcp.ResourceType]Template)}
	for rt, fields := range defaultSkeletons {
		s.templates[rt] = skeleton(rt, fields)
	}
	return s
}

var defaultSkeletons = map[mcp.ResourceType]map[string]any{
	mcp.ResourceSEOData:         {"keywords": []any{}, "pages_indexed": 0, "issues": []any{}},
	mcp.ResourceClientData:      {"company": "", "industry": "", "contacts": []any{}},
	mcp.ResourceCompetitiveData: {"competitors": []any{}},
	mcp.ResourceAnalyticsData:   {"sessions": 0, "conversions": 0, "period": ""},
	mcp.ResourceContentData:     {"pages": []any{}, "topics": []any{}},
	mcp.ResourceTechnicalData:   {"checks": []any{}, "errors": 0},
	mcp.ResourceKeywordData:     {"keywords": []any{}},
	mcp.ResourceBacklinkData:    {"backlinks": []any{}, "referring_domains": 0},
}

func skeleton(rt mcp.ResourceType, fields map[string]any) Template {
	return func(resourceID string, _ map[string]any) map[string]any {
		out := maps.Clone(fields)
		out["resource_type"] = string(rt)
		out["resource_id"] = resourceID
		out["static"] = true
		return out
	}
}

// Register 覆盖某资源类型的模板
func (s *StaticSource) Register(rt mcp.ResourceType, t Template) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[rt] = t
}

// Name implements LocalSource.
func (s *StaticSource) Name() string { return "static" }

// Confidence implements LocalSource.
func (s *StaticSource) Confidence() float64 { return ConfidenceStatic }

// Fetch implements LocalSource.
func (s *StaticSource) Fetch(_ context.Context, rt mcp.ResourceType, resourceID string, params map[string]any) (any, error) {
	s.mu.RLock()
	t, ok := s.templates[rt]
	s.mu.RUnlock()
	if !ok {
		return nil, unavailable(rt, resourceID)
	}
	return t(resourceID, params), nil
}

// =============================================================================
// SnapshotSource
// =============================================================================

// WildcardResourceID 资源类型级别的默认快照
const WildcardResourceID = "*"

// Snapshot 离线快照表
type Snapshot struct {
	ID           uint      `gorm:"primaryKey"`
	ResourceType string    `gorm:"size:64;not null;uniqueIndex:idx_snapshot_resource"`
	ResourceID   string    `gorm:"size:255;not null;uniqueIndex:idx_snapshot_resource"`
	Payload      string    `gorm:"type:text;not null"`
	CapturedAt   time.Time `gorm:"not null"`
}

// TableName implements gorm's tabler.
func (Snapshot) TableName() string { return "data_snapshots" }

// SnapshotSource 从数据库读取离线快照；先查精确资源，再查类型级默认
type SnapshotSource struct {
	db     *gorm.DB
	now    Clock
	logger *zap.Logger
}

// NewSnapshotSource 自动迁移快照表
func NewSnapshotSource(db *gorm.DB, logger *zap.Logger) (*SnapshotSource, error) {
	if db == nil {
		return nil, errors.New("snapshot source requires a database")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&Snapshot{}); err != nil {
		return nil, fmt.Errorf("migrate snapshot table: %w", err)
	}
	return &SnapshotSource{db: db, now: time.Now, logger: logger.With(zap.String("component", "snapshot_source"))}, nil
}

// Name implements LocalSource.
func (s *SnapshotSource) Name() string { return "snapshot" }

// Confidence implements LocalSource.
func (s *SnapshotSource) Confidence() float64 { return ConfidenceSnapshot }

// Fetch implements LocalSource.
func (s *SnapshotSource) Fetch(ctx context.Context, rt mcp.ResourceType, resourceID string, _ map[string]any) (any, error) {
	var rows []Snapshot
	err := s.db.WithContext(ctx).
		Where("resource_type = ? AND resource_id IN ?", string(rt), []string{resourceID, WildcardResourceID}).
		Find(&rows).Error
	if err != nil {
		return nil, types.NewError(types.ErrDataUnavailable, "snapshot query failed").WithCause(err)
	}

	var pick *Snapshot
	for i := range rows {
		if rows[i].ResourceID == resourceID {
			pick = &rows[i]
			break
		}
		pick = &rows[i]
	}
	if pick == nil {
		return nil, unavailable(rt, resourceID)
	}

	var data any
	if err := json.Unmarshal([]byte(pick.Payload), &data); err != nil {
		return nil, types.NewError(types.ErrDecode, "corrupt snapshot payload").WithCause(err)
	}
	return data, nil
}

// Save 写入或更新快照
func (s *SnapshotSource) Save(ctx context.Context, rt mcp.ResourceType, resourceID string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	row := Snapshot{
		ResourceType: string(rt),
		ResourceID:   resourceID,
		Payload:      string(payload),
		CapturedAt:   s.now().UTC(),
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "resource_type"}, {Name: "resource_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "captured_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	s.logger.Debug("snapshot saved", zap.String("resource_type", string(rt)), zap.String("resource_id", resourceID))
	return nil
}

// Count 快照条数
func (s *SnapshotSource) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&Snapshot{}).Count(&n).Error
	return n, err
}
