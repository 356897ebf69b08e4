package domain

import "time"

// ChangeReason 分配变更原因
type ChangeReason string

const (
	ReasonAssign   ChangeReason = "assign"
	ReasonMove     ChangeReason = "move"
	ReasonRelease  ChangeReason = "release"
	ReasonSwap     ChangeReason = "swap"
	ReasonCheckout ChangeReason = "checkout"
)

// AllocationChange 已提交的分配变更事实，交给副作用分发器
// NewAssetID 为空表示释放
type AllocationChange struct {
	ChangeID           string       `json:"change_id"`
	TenantID           string       `json:"tenant_id"`
	Timestamp          time.Time    `json:"timestamp"`
	ResidentID         string       `json:"resident_id"`
	PreviousAssetID    string       `json:"previous_asset_id,omitempty"`
	NewAssetID         string       `json:"new_asset_id,omitempty"`
	ActorID            string       `json:"actor_id"`
	Reason             ChangeReason `json:"reason"`
	PreviousAssetLabel string       `json:"previous_asset_label,omitempty"`
	NewAssetLabel      string       `json:"new_asset_label,omitempty"`
}

// IsRelease 是否为释放
func (c AllocationChange) IsRelease() bool {
	return c.NewAssetID == ""
}

// AuditEntry 审计记录（对应 allocation_audit 表），只追加，写入后不可修改
type AuditEntry struct {
	EntryID         string       `db:"entry_id" json:"entry_id"`
	ChangeID        string       `db:"change_id" json:"change_id"` // UNIQUE，重试写入时去重
	TenantID        string       `db:"tenant_id" json:"tenant_id"`
	ResidentID      string       `db:"resident_id" json:"resident_id"`
	PreviousAssetID string       `db:"previous_asset_id" json:"previous_asset_id,omitempty"`
	NewAssetID      string       `db:"new_asset_id" json:"new_asset_id,omitempty"`
	ActorID         string       `db:"actor_id" json:"actor_id"`
	Reason          ChangeReason `db:"reason" json:"reason"`
	OccurredAt      time.Time    `db:"occurred_at" json:"occurred_at"`
	RecordedAt      time.Time    `db:"recorded_at" json:"recorded_at"`
}

// NewAuditEntry 由变更生成审计记录
func NewAuditEntry(entryID string, change AllocationChange, recordedAt time.Time) *AuditEntry {
	return &AuditEntry{
		EntryID:         entryID,
		ChangeID:        change.ChangeID,
		TenantID:        change.TenantID,
		ResidentID:      change.ResidentID,
		PreviousAssetID: change.PreviousAssetID,
		NewAssetID:      change.NewAssetID,
		ActorID:         change.ActorID,
		Reason:          change.Reason,
		OccurredAt:      change.Timestamp,
		RecordedAt:      recordedAt,
	}
}

const (
	NotificationCategoryAllocation = "allocation"

	NotificationChannelPush  = "push"
	NotificationChannelEmail = "email"
)

// Notification 通知（尽力投递，丢失不影响分配正确性）
type Notification struct {
	NotificationID string    `json:"notification_id"`
	TenantID       string    `json:"tenant_id"`
	RecipientID    string    `json:"recipient_id"`
	Message        string    `json:"message"`
	Category       string    `json:"category"`
	Channel        string    `json:"channel"`
	ChangeID       string    `json:"change_id,omitempty"`
	Delivered      bool      `json:"delivered"`
	Attempt        int       `json:"attempt"`
	CreatedAt      time.Time `json:"created_at"`
}
