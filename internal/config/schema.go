package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"bhds/internal/market"
	"bhds/internal/pipeline"
)

// rulesSchema 约束 resample.rules 的结构：interval 必填，offset 与
// base_offset 互斥由 validateRules 追加检查。
const rulesSchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["interval"],
    "properties": {
      "interval": {"type": "string", "pattern": "^[0-9]+[mMtThHdD]$"},
      "offset": {"type": "string", "pattern": "^[0-9]+[mMtThHdD]$"},
      "base_offset": {"type": "string", "pattern": "^[0-9]+[mMtThHdD]$"}
    },
    "additionalProperties": false
  }
}`

var compiledRulesSchema = mustCompile(rulesSchema)

func mustCompile(raw string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("rules.json", strings.NewReader(raw)); err != nil {
		panic(err)
	}
	return compiler.MustCompile("rules.json")
}

func validateRules(c *Config) error {
	raw, err := json.Marshal(c.Resample.Rules)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	if err := compiledRulesSchema.Validate(doc); err != nil {
		return fmt.Errorf("resample.rules 校验失败: %w", err)
	}
	native, err := market.ParseInterval(c.Source.Interval)
	if err != nil {
		return err
	}
	for i, rule := range c.Resample.Rules {
		target, err := market.ParseInterval(rule.Interval)
		if err != nil {
			return fmt.Errorf("resample.rules[%d].interval: %w", i, err)
		}
		if target%native != 0 {
			return fmt.Errorf("resample.rules[%d]: %s 不是 %s 的整数倍", i, rule.Interval, c.Source.Interval)
		}
		if rule.Offset != "" && rule.BaseOffset != "" {
			return fmt.Errorf("resample.rules[%d]: offset 与 base_offset 互斥", i)
		}
		if rule.Offset != "" {
			offset, err := market.ParseInterval(rule.Offset)
			if err != nil {
				return fmt.Errorf("resample.rules[%d].offset: %w", i, err)
			}
			if offset >= target {
				return fmt.Errorf("resample.rules[%d]: offset %s 必须小于 interval %s", i, rule.Offset, rule.Interval)
			}
			if offset%native != 0 {
				return fmt.Errorf("resample.rules[%d]: offset %s 必须对齐原生周期 %s", i, rule.Offset, c.Source.Interval)
			}
		}
		if rule.BaseOffset != "" {
			base, err := market.ParseInterval(rule.BaseOffset)
			if err != nil {
				return fmt.Errorf("resample.rules[%d].base_offset: %w", i, err)
			}
			if base <= 0 || target%base != 0 {
				return fmt.Errorf("resample.rules[%d]: base_offset %s 必须整除 interval %s", i, rule.BaseOffset, rule.Interval)
			}
			if base%native != 0 {
				return fmt.Errorf("resample.rules[%d]: base_offset %s 必须对齐原生周期 %s", i, rule.BaseOffset, c.Source.Interval)
			}
		}
	}
	return nil
}

// defaultRules 为未配置时的兜底规则：常用回测周期，1h 额外展开 5m 锚点族。
func defaultRules() []pipeline.RuleSpec {
	return []pipeline.RuleSpec{
		{Interval: "5m"},
		{Interval: "15m"},
		{Interval: "1h", BaseOffset: "5m"},
		{Interval: "4h"},
		{Interval: "1d"},
	}
}
