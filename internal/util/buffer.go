package util

// FlushFunc 消费缓冲区中的全部条目
type FlushFunc[T any] func(items []T) error

// Buffer FIFO 缓冲队列：长度超过 maxSize 或强制刷新时，整体交给 flush 消费
// 非并发安全，仅供单一持有者使用
type Buffer[T any] struct {
	queue   []T
	maxSize int
	flush   FlushFunc[T]
}

// NewBuffer 创建缓冲区
func NewBuffer[T any](initial []T, maxSize int, flush FlushFunc[T]) *Buffer[T] {
	return &Buffer[T]{queue: initial, maxSize: maxSize, flush: flush}
}

// Len 当前队列长度
func (b *Buffer[T]) Len() int {
	return len(b.queue)
}

// Push 入队并尝试刷新
func (b *Buffer[T]) Push(item T) (bool, error) {
	b.queue = append(b.queue, item)
	return b.Flush(false)
}

// Flush 在 force 或长度严格大于 maxSize 时刷新
// 返回 true 表示已刷新；消费失败时保留队列并返回错误
func (b *Buffer[T]) Flush(force bool) (bool, error) {
	if !force && len(b.queue) <= b.maxSize {
		return false, nil
	}
	items := b.queue
	if err := b.flush(items); err != nil {
		return false, err
	}
	b.queue = make([]T, 0, cap(items))
	return true, nil
}
