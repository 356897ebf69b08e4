package domain

import "errors"

var (
	// ErrNotFound 住户或资产不存在
	ErrNotFound = errors.New("not found")
	// ErrAssetUnavailable 目标资产在占用时不是 available
	ErrAssetUnavailable = errors.New("asset unavailable")
	// ErrAssetOccupied 对被占用资产执行维护状态变更
	ErrAssetOccupied = errors.New("asset occupied")
	// ErrConflict 并发条件更新失败（记录已被其他操作修改）
	ErrConflict = errors.New("concurrent update conflict")
	// ErrStorage 存储层故障，本次调用失败，可整体重试
	ErrStorage = errors.New("storage error")
	// ErrInvalidArgument 参数错误
	ErrInvalidArgument = errors.New("invalid argument")
)
