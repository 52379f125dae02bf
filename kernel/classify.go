package kernel

import "strings"

// ClassificationRule is one entry of the classifier's rule-set: explicit verbs
// or entities that, when found in the task text, pin the task_kind directly.
type ClassificationRule struct {
	TaskKind TaskKind
	Prefixes []string
	Keywords []string
}

// Classifier applies the three-step rule-set from spec.md §4.1: explicit-prefix
// detection, keyword+context match, fallback to `other`. An unknown task_kind
// is never an error — §4.1 Failure modes.
type Classifier struct {
	rules []ClassificationRule
}

// DefaultClassificationRules returns the rule-set wired by default; capability
// packs may extend this list when they register new leaf services.
func DefaultClassificationRules() []ClassificationRule {
	return []ClassificationRule{
		{
			TaskKind: TaskKindPresentation,
			Prefixes: []string{"生成", "制作", "做一份"},
			Keywords: []string{"ppt", "slide", "deck", "presentation", "复盘", "汇报"},
		},
		{
			TaskKind: TaskKindResearch,
			Prefixes: []string{"研究", "调研"},
			Keywords: []string{"research", "brief", "摘要", "summary", "抓取", "fetch"},
		},
		{
			TaskKind: TaskKindDataQuery,
			Prefixes: []string{"查询", "统计"},
			Keywords: []string{"sql", "query", "数据", "table", "数据库"},
		},
		{
			TaskKind: TaskKindImage,
			Prefixes: []string{"识别", "描述"},
			Keywords: []string{"image", "photo", "图片", "picture"},
		},
		{
			TaskKind: TaskKindAutomation,
			Prefixes: []string{"发布", "触发"},
			Keywords: []string{"webhook", "automation", "publish", "自动化"},
		},
	}
}

// NewClassifier builds a Classifier over the given rule-set; an empty slice
// falls back to DefaultClassificationRules.
func NewClassifier(rules []ClassificationRule) *Classifier {
	if len(rules) == 0 {
		rules = DefaultClassificationRules()
	}
	return &Classifier{rules: rules}
}

// Classify applies the rule-set to raw task text and returns the matched
// TaskKind, defaulting to TaskKindOther when nothing matches.
func (c *Classifier) Classify(text string) TaskKind {
	lower := strings.ToLower(text)

	for _, rule := range c.rules {
		for _, prefix := range rule.Prefixes {
			if strings.HasPrefix(text, prefix) || strings.HasPrefix(lower, strings.ToLower(prefix)) {
				return rule.TaskKind
			}
		}
	}

	for _, rule := range c.rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(lower, strings.ToLower(kw)) || strings.Contains(text, kw) {
				return rule.TaskKind
			}
		}
	}

	return TaskKindOther
}
