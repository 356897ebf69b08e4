package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/dev-nexcore/KGF-HM-backend-sub000/hostel-data/internal/domain"
	"github.com/dev-nexcore/KGF-HM-backend-sub000/hostel-data/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ResidentDirectory 住户目录
// assigned_asset_id 不在这里修改，只能由 AssignmentCoordinator 改
type ResidentDirectory struct {
	residents repository.ResidentsRepository
	logger    *zap.Logger
}

// NewResidentDirectory 创建 ResidentDirectory
func NewResidentDirectory(residents repository.ResidentsRepository, logger *zap.Logger) *ResidentDirectory {
	return &ResidentDirectory{residents: residents, logger: logger}
}

// CreateResidentRequest 登记住户请求
type CreateResidentRequest struct {
	TenantID     string
	ResidentCode string // 对外展示编号，租户内唯一
	Nickname     string
}

// CreateResident 登记住户（入住时不带资产）
func (d *ResidentDirectory) CreateResident(ctx context.Context, req CreateResidentRequest) (*domain.Resident, error) {
	req.ResidentCode = strings.TrimSpace(req.ResidentCode)
	if req.TenantID == "" || req.ResidentCode == "" {
		return nil, fmt.Errorf("%w: tenant_id and resident_code are required", domain.ErrInvalidArgument)
	}
	resident := &domain.Resident{
		ResidentID:   uuid.NewString(),
		TenantID:     req.TenantID,
		ResidentCode: req.ResidentCode,
		Nickname:     strings.TrimSpace(req.Nickname),
		Status:       domain.ResidentStatusActive,
	}
	if err := d.residents.CreateResident(ctx, resident); err != nil {
		return nil, err
	}
	d.logger.Info("Resident enrolled",
		zap.String("tenant_id", resident.TenantID),
		zap.String("resident_id", resident.ResidentID),
		zap.String("resident_code", resident.ResidentCode),
	)
	return resident, nil
}

func (d *ResidentDirectory) GetResident(ctx context.Context, tenantID, residentID string) (*domain.Resident, error) {
	if tenantID == "" || residentID == "" {
		return nil, fmt.Errorf("%w: tenant_id and resident_id are required", domain.ErrInvalidArgument)
	}
	return d.residents.GetResident(ctx, tenantID, residentID)
}

func (d *ResidentDirectory) GetResidentByCode(ctx context.Context, tenantID, residentCode string) (*domain.Resident, error) {
	if tenantID == "" || residentCode == "" {
		return nil, fmt.Errorf("%w: tenant_id and resident_code are required", domain.ErrInvalidArgument)
	}
	return d.residents.GetResidentByCode(ctx, tenantID, residentCode)
}
