package repository

import (
	"context"

	repo "passgate/internal/repository"

	"gorm.io/gorm"
)

type txReposGorm struct {
	passes    repo.PassRepository
	users     repo.UserRepository
	auditLogs repo.AuditLogRepository
}

func (r *txReposGorm) Passes() repo.PassRepository       { return r.passes }
func (r *txReposGorm) Users() repo.UserRepository         { return r.users }
func (r *txReposGorm) AuditLogs() repo.AuditLogRepository { return r.auditLogs }

type TxManagerGorm struct {
	db *gorm.DB
}

func NewTxManagerGorm(db *gorm.DB) *TxManagerGorm {
	return &TxManagerGorm{db: db}
}

func (tm *TxManagerGorm) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	return tm.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		//repoはtxを持ったDBで作り直す
		return fn(&txReposGorm{
			passes:    NewPassGormRepository(tx),
			users:     NewUserGormRepository(tx),
			auditLogs: NewAuditLogGormRepository(tx),
		})
	})
}
