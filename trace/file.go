package trace

import (
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// FileTracer 将事件以 CBOR 追加写入文件。
type FileTracer struct {
	mu      sync.Mutex
	file    *os.File
	encoder *cbor.Encoder
	closed  bool
}

// NewFileTracer 打开（必要时创建）path 用于追加。
func NewFileTracer(path string) (*FileTracer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &FileTracer{file: f, encoder: newEncoder(f)}, nil
}

// Trace 写入事件。编码错误被忽略，跟踪不应影响仪器通信。
func (t *FileTracer) Trace(e Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	_ = t.encoder.Encode(e)
}

// Close 关闭文件，可重复调用。
func (t *FileTracer) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	return t.file.Close()
}
