package model

import "errors"

var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("记录不存在")
	// ErrStaleAlert 提醒已被其他处理流程推进，不再处于期望状态
	ErrStaleAlert = errors.New("提醒状态已变更")
	// ErrUnknownAlertType 未知提醒档位
	ErrUnknownAlertType = errors.New("未知提醒档位")
	// ErrNoExpiry 证件没有到期日
	ErrNoExpiry = errors.New("证件没有到期日")
)
