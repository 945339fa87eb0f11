package diagnostics

import (
	"bytes"
	"sync"
)

// DefaultLogLines 日志环形缓冲默认保留的行数。
const DefaultLogLines = 500

// LogBuffer 保留最近 N 行日志，可作为 zerolog 的附加 writer。
type LogBuffer struct {
	mu    sync.Mutex
	lines []string
	next  int
	full  bool
}

// NewLogBuffer 创建容量为 size 行的缓冲。
func NewLogBuffer(size int) *LogBuffer {
	if size <= 0 {
		size = DefaultLogLines
	}
	return &LogBuffer{lines: make([]string, size)}
}

// Write 实现 io.Writer；每次写入按换行拆分。
func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, line := range bytes.Split(bytes.TrimRight(p, "\n"), []byte{'\n'}) {
		b.lines[b.next] = string(line)
		b.next = (b.next + 1) % len(b.lines)
		if b.next == 0 {
			b.full = true
		}
	}
	return len(p), nil
}

// Lines 按写入顺序返回缓冲内容的副本。
func (b *LogBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.full {
		return append([]string(nil), b.lines[:b.next]...)
	}
	out := make([]string, 0, len(b.lines))
	out = append(out, b.lines[b.next:]...)
	return append(out, b.lines[:b.next]...)
}
