package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// 错误定义
var (
	ErrNotFound = errors.New("record not found")
)

// Repositories 仓库集合
type Repositories struct {
	db        *gorm.DB
	Log       *LogRepository
	Structure *StructureRepository
	Visit     *VisitRepository
	Equipment *EquipmentRepository
	Report    *ReportRepository
}

// NewRepositories 创建仓库集合
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		db:        db,
		Log:       NewLogRepository(db),
		Structure: NewStructureRepository(db),
		Visit:     NewVisitRepository(db),
		Equipment: NewEquipmentRepository(db),
		Report:    NewReportRepository(db),
	}
}

// Transaction 在单个数据库事务内执行fn，fn经事务绑定的仓库集合读写，
// 返回错误时整体回滚
func (r *Repositories) Transaction(ctx context.Context, fn func(tx *Repositories) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepositories(tx))
	})
}
