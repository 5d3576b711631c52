package model

import "errors"

var (
	// ErrMalformedConfig 客户端传入的配置无效（映射为 400）
	ErrMalformedConfig = errors.New("malformed config")
	// ErrEmptySource 源表没有任何行
	ErrEmptySource = errors.New("source table was empty")
)
