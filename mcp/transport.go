package mcp

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

// Transport 一条消息通道的抽象，便于测试替换
type Transport interface {
	// Send 发送一条完整消息
	Send(msg *Message) error
	// Receive 阻塞读取下一条完整消息
	Receive() (*Message, error)
	// Close 关闭通道，解除 Receive 阻塞
	Close() error
}

// StdioTransport 在一对字节流上收发 Content-Length 帧。
// 写侧由 writeMu 串行化；读侧只允许单 goroutine 调用 Receive。
type StdioTransport struct {
	writer  io.Writer
	reader  *bufio.Reader
	closer  io.Closer
	writeMu sync.Mutex
}

// NewStdioTransport 创建 stdio 传输。closer 可为 nil；
// 非 nil 时 Close 会关闭它（通常是子进程的 stdin）。
func NewStdioTransport(w io.Writer, r io.Reader, closer io.Closer) *StdioTransport {
	return &StdioTransport{
		writer: w,
		reader: bufio.NewReader(r),
		closer: closer,
	}
}

// Send 写入一条 Content-Length 帧
func (t *StdioTransport) Send(msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if _, err := fmt.Fprintf(t.writer, "Content-Length: %d\r\n\r\n", len(data)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := t.writer.Write(data); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	return nil
}

// Receive 读取一条 Content-Length 帧
func (t *StdioTransport) Receive() (*Message, error) {
	contentLength := -1
	for {
		line, err := t.reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		if v, ok := strings.CutPrefix(line, "Content-Length:"); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return nil, fmt.Errorf("invalid Content-Length %q: %w", v, err)
			}
			contentLength = n
		}
	}
	if contentLength < 0 {
		return nil, fmt.Errorf("missing Content-Length header")
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(t.reader, body); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal message: %w", err)
	}
	return &msg, nil
}

// Close 关闭底层通道
func (t *StdioTransport) Close() error {
	if t.closer != nil {
		return t.closer.Close()
	}
	return nil
}
