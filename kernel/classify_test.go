package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyExplicitPrefix(t *testing.T) {
	c := NewClassifier(nil)
	assert.Equal(t, TaskKindPresentation, c.Classify("生成本季度增长复盘框架"))
}

func TestClassifyKeywordFallback(t *testing.T) {
	c := NewClassifier(nil)
	assert.Equal(t, TaskKindResearch, c.Classify("抓取 https://example.com 并摘要"))
}

func TestClassifyUnknownFallsBackToOther(t *testing.T) {
	c := NewClassifier(nil)
	assert.Equal(t, TaskKindOther, c.Classify("今天天气怎么样"))
}

func TestClassifyDataQuery(t *testing.T) {
	c := NewClassifier(nil)
	assert.Equal(t, TaskKindDataQuery, c.Classify("查询上个月的销售数据"))
}
