// 包 config：评分模型的类型化配置与预设档位
// 背景：内核形态、带宽、影响半径、递减权重等均为产品调校常量，改动会直接改变用户可见排名；
// 统一放入配置结构并保留默认值，避免散落的魔法数字。
// 约束：默认值与线上档位保持一致，不要“优化”它们。
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// KernelType：距离衰减内核形态
type KernelType string

const (
	KernelGaussian    KernelType = "gaussian"
	KernelExponential KernelType = "exponential"
	KernelLinear      KernelType = "linear"
)

// Scoring：一次评分计算的全部可调参数
type Scoring struct {
	// Kernel：衰减内核形态，默认 gaussian
	Kernel KernelType `yaml:"kernel"`
	// KernelParamKm：σ/λ/最大距离（随内核语义变化），单位千米
	KernelParamKm float64 `yaml:"kernel_param_km"`
	// MaxInfluenceKm：硬截断半径，超出后任何内核权重归零
	MaxInfluenceKm float64 `yaml:"max_influence_km"`
	// NeutralRating：评级中性点，评级减去该值得到带符号强度
	NeutralRating float64 `yaml:"neutral_rating"`
	// DiminishingWeights：第 1..n 强影响的递减乘数；超出末位沿用末位值
	DiminishingWeights []float64 `yaml:"diminishing_weights"`
	// HarmoniousAspectMod / InharmoniousAspectMod：相位对基础评级的修正
	HarmoniousAspectMod   float64 `yaml:"harmonious_aspect_mod"`
	InharmoniousAspectMod float64 `yaml:"inharmonious_aspect_mod"`
	// NatureThreshold：|benefitScore| 低于该值判定为 mixed
	NatureThreshold float64 `yaml:"nature_threshold"`
	// TopKFloor / TopKFraction：动态 Top-K 的下限与比例
	TopKFloor    int     `yaml:"topk_floor"`
	TopKFraction float64 `yaml:"topk_fraction"`
	// SimplifyToleranceDeg：折线 Douglas-Peucker 简化容差（度）；0 表示关闭，
	// 关闭时三个执行层数值完全一致
	SimplifyToleranceDeg float64 `yaml:"simplify_tolerance_deg"`
}

// Default：balanced 档位，线上默认
func Default() Scoring {
	return Scoring{
		Kernel:                KernelGaussian,
		KernelParamKm:         180.0,
		MaxInfluenceKm:        500.0,
		NeutralRating:         3.0,
		DiminishingWeights:    []float64{1.0, 0.8, 0.6, 0.4},
		HarmoniousAspectMod:   0.8,
		InharmoniousAspectMod: 0.6,
		NatureThreshold:       5.0,
		TopKFloor:             200,
		TopKFraction:          0.05,
		SimplifyToleranceDeg:  0,
	}
}

// Profile：按名称返回预设档位
// balanced：精度与耗时折中；high_precision：更快的近场衰减；relaxed：线性宽松边界
func Profile(name string) (Scoring, error) {
	switch name {
	case "", "balanced":
		return Default(), nil
	case "high_precision":
		s := Default()
		s.KernelParamKm = 120.0
		s.MaxInfluenceKm = 600.0
		return s, nil
	case "relaxed":
		s := Default()
		s.Kernel = KernelLinear
		s.KernelParamKm = 500.0
		return s, nil
	default:
		return Scoring{}, fmt.Errorf("unknown scoring profile: %s", name)
	}
}

// LoadFile：从 YAML 文件加载评分配置，缺省字段回退默认值
func LoadFile(path string) (Scoring, error) {
	s := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	if err := yaml.Unmarshal(b, &s); err != nil {
		return s, err
	}
	if err := s.Validate(); err != nil {
		return Default(), err
	}
	return s, nil
}

// FromEnv：按环境变量组装配置
// 背景：与主入口其余基础设施保持一致的 env 配置方式；优先 SCOUT_CONFIG 指向的 YAML，
// 其次 SCOUT_PROFILE 档位，零散变量做最终覆盖。
func FromEnv() Scoring {
	var s Scoring
	if p := os.Getenv("SCOUT_CONFIG"); p != "" {
		if v, err := LoadFile(p); err == nil {
			s = v
		} else {
			s = Default()
		}
	} else if v, err := Profile(os.Getenv("SCOUT_PROFILE")); err == nil {
		s = v
	} else {
		s = Default()
	}
	if v := os.Getenv("SCOUT_KERNEL"); v != "" {
		s.Kernel = KernelType(v)
	}
	if f := envFloat("SCOUT_KERNEL_PARAM_KM"); f > 0 {
		s.KernelParamKm = f
	}
	if f := envFloat("SCOUT_MAX_INFLUENCE_KM"); f > 0 {
		s.MaxInfluenceKm = f
	}
	if err := s.Validate(); err != nil {
		return Default()
	}
	return s
}

func envFloat(key string) float64 {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f
}

// Validate：拒绝会让内核退化或排序失义的参数组合
func (s Scoring) Validate() error {
	switch s.Kernel {
	case KernelGaussian, KernelExponential, KernelLinear:
	default:
		return fmt.Errorf("unknown kernel type: %s", s.Kernel)
	}
	if s.KernelParamKm <= 0 {
		return fmt.Errorf("kernel_param_km must be positive, got %v", s.KernelParamKm)
	}
	if s.MaxInfluenceKm <= 0 {
		return fmt.Errorf("max_influence_km must be positive, got %v", s.MaxInfluenceKm)
	}
	if len(s.DiminishingWeights) == 0 {
		return fmt.Errorf("diminishing_weights must not be empty")
	}
	for i, w := range s.DiminishingWeights {
		if w <= 0 || w > 1 {
			return fmt.Errorf("diminishing_weights[%d] out of (0,1]: %v", i, w)
		}
	}
	if s.TopKFloor <= 0 || s.TopKFraction <= 0 || s.TopKFraction > 1 {
		return fmt.Errorf("invalid topk parameters: floor=%d fraction=%v", s.TopKFloor, s.TopKFraction)
	}
	return nil
}

// Diminishing：第 i（从 0 计）强影响的递减乘数
func (s Scoring) Diminishing(i int) float64 {
	if i < len(s.DiminishingWeights) {
		return s.DiminishingWeights[i]
	}
	return s.DiminishingWeights[len(s.DiminishingWeights)-1]
}
