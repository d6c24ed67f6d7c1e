package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimatorCountsASCII(t *testing.T) {
	e := NewEstimatorTokenizer("llama2", 0)
	n, err := e.CountTokens("hello world, this is a test sentence")
	require.NoError(t, err)
	// ~4 chars per token
	assert.InDelta(t, 9, n, 3)
}

func TestEstimatorCountsCJKDenser(t *testing.T) {
	e := NewEstimatorTokenizer("llama2", 0)
	ascii, err := e.CountTokens("abcdefgh")
	require.NoError(t, err)
	cjk, err := e.CountTokens("你好世界测试文本")
	require.NoError(t, err)
	assert.Greater(t, cjk, ascii)
}

func TestEstimatorEmptyText(t *testing.T) {
	e := NewEstimatorTokenizer("llama2", 0)
	n, err := e.CountTokens("")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEstimatorCountMessagesAddsOverhead(t *testing.T) {
	e := NewEstimatorTokenizer("llama2", 0)
	single, err := e.CountTokens("hello there friend")
	require.NoError(t, err)

	total, err := e.CountMessages([]Message{{Role: "user", Content: "hello there friend"}})
	require.NoError(t, err)
	assert.Equal(t, single+4+3, total)
}

func TestEstimatorDefaultsMaxTokens(t *testing.T) {
	assert.Equal(t, 4096, NewEstimatorTokenizer("x", 0).MaxTokens())
	assert.Equal(t, 8000, NewEstimatorTokenizer("x", 8000).MaxTokens())
}

func TestForModelFallsBackToEstimator(t *testing.T) {
	tok := ForModel("some-unknown-model")
	assert.Contains(t, tok.Name(), "estimator")
}

func TestRegistryLookup(t *testing.T) {
	est := NewEstimatorTokenizer("custom", 1234)
	RegisterTokenizer("custom", est)

	tok, err := MustForModel("custom")
	require.NoError(t, err)
	assert.Equal(t, 1234, tok.MaxTokens())

	_, err = MustForModel("never-registered")
	assert.Error(t, err)
}

func TestTiktokenEncodingSelection(t *testing.T) {
	tok, err := NewTiktokenTokenizer("gpt-4o-mini")
	require.NoError(t, err)
	assert.Equal(t, "tiktoken[o200k_base]", tok.Name())
	assert.Equal(t, 128000, tok.MaxTokens())

	// 前缀匹配
	tok, err = NewTiktokenTokenizer("gpt-4o-2024-11-20")
	require.NoError(t, err)
	assert.Equal(t, "tiktoken[o200k_base]", tok.Name())

	// 未知模型默认 cl100k_base
	tok, err = NewTiktokenTokenizer("totally-unknown")
	require.NoError(t, err)
	assert.Equal(t, "tiktoken[cl100k_base]", tok.Name())
}
