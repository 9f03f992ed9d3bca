// Package spread builds the spread series of a price pair.
package spread

import (
	"fmt"
	"strings"
)

// SpreadType 定义 spread 计算类型
type SpreadType string

const (
	// SpreadTypeDifference 差价 spread: price1 - hedgeRatio * price2
	SpreadTypeDifference SpreadType = "difference"

	// SpreadTypeRatio 比率 spread: price1 / price2
	SpreadTypeRatio SpreadType = "ratio"

	// SpreadTypeLog 对数 spread: log(price1) - hedgeRatio * log(price2)
	// 常用于协整分析
	SpreadTypeLog SpreadType = "log"

	// SpreadTypeStandard 标准化 spread: z(price1) - z(price2)
	// each leg is standardised over the whole sample before differencing
	SpreadTypeStandard SpreadType = "standard"
)

// ParseSpreadType accepts a spread type name in any case. Empty means difference.
func ParseSpreadType(s string) (SpreadType, error) {
	switch t := SpreadType(strings.ToLower(strings.TrimSpace(s))); t {
	case "":
		return SpreadTypeDifference, nil
	case SpreadTypeDifference, SpreadTypeRatio, SpreadTypeLog, SpreadTypeStandard:
		return t, nil
	default:
		return "", fmt.Errorf("unknown spread type %q", s)
	}
}

// Options 控制 spread 计算
type Options struct {
	Type SpreadType `yaml:"type" json:"type" mapstructure:"type"`
	// HedgeRatio is used by difference and log spreads; 0 means 1:1.
	HedgeRatio float64 `yaml:"hedge_ratio" json:"hedge_ratio" mapstructure:"hedge_ratio"`
	// EstimateHedgeRatio replaces HedgeRatio with the OLS slope of the legs.
	EstimateHedgeRatio bool `yaml:"estimate_hedge_ratio" json:"estimate_hedge_ratio" mapstructure:"estimate_hedge_ratio"`
}

// SpreadStats spread 统计信息
type SpreadStats struct {
	CurrentSpread float64 `yaml:"current_spread" json:"current_spread"` // 最新 spread 值
	Mean          float64 `yaml:"mean" json:"mean"`                     // Spread 均值
	Std           float64 `yaml:"std" json:"std"`                       // Spread 标准差
	ZScore        float64 `yaml:"zscore" json:"zscore"`                 // 最新值的全样本 Z-Score
	Correlation   float64 `yaml:"correlation" json:"correlation"`       // 价格相关系数
	HedgeRatio    float64 `yaml:"hedge_ratio" json:"hedge_ratio"`       // 对冲比率
}

// Result spread 计算结果
type Result struct {
	Type   SpreadType
	Spread []float64
	Stats  SpreadStats
}
