// Package psychro 干球温度/相对湿度到绝对湿度(GPP)的心理测量学换算。
// 公式采用ASHRAE Hyland-Wexler液态水饱和蒸气压关联式（英制），
// 标准大气压14.696 psia，数值已对标准焓湿表校验（见单元测试）。
package psychro

import (
	"math"

	"github.com/restoros/drylog/internal/drying/dryerr"
)

const (
	// StandardPressurePSIA 标准大气压
	StandardPressurePSIA = 14.696
	// GrainsPerPound 1磅 = 7000格令
	GrainsPerPound = 7000.0

	// Hyland-Wexler系数（T为兰氏度，pws为psia，32–392°F有效）
	c8  = -1.0440397e4
	c9  = -1.129465e1
	c10 = -2.7022355e-2
	c11 = 1.289036e-5
	c12 = -2.4780681e-9
	c13 = 6.5459673

	// 物理有效输入范围。室内作业区间为30–100°F，边界再放宽供户外读数使用。
	minTempF = -40.0
	maxTempF = 180.0
)

// SaturationPressurePSIA 干球温度(°F)下的饱和蒸气压(psia)
func SaturationPressurePSIA(tempF float64) float64 {
	t := tempF + 459.67 // °R
	lnP := c8/t + c9 + c10*t + c11*t*t + c12*t*t*t + c13*math.Log(t)
	return math.Exp(lnP)
}

// GPP 干球温度(°F)+相对湿度(%)换算为每磅干空气格令数。
// 在室内作业区间对两个参数均单调递增。
func GPP(tempF, rhPercent float64) (float64, error) {
	if tempF < minTempF || tempF > maxTempF || math.IsNaN(tempF) {
		return 0, &dryerr.CalculationDomainError{Field: "temp_f", Value: tempF}
	}
	if rhPercent < 0 || rhPercent > 100 || math.IsNaN(rhPercent) {
		return 0, &dryerr.CalculationDomainError{Field: "rh_percent", Value: rhPercent}
	}

	pw := SaturationPressurePSIA(tempF) * rhPercent / 100.0
	w := 0.621945 * pw / (StandardPressurePSIA - pw)
	return w * GrainsPerPound, nil
}

// GrainDepression 格令降差 = 环境(unaffected area)GPP − 读数GPP，为正表示仍在抽湿
func GrainDepression(ambientGPP, readingGPP float64) float64 {
	return ambientGPP - readingGPP
}

// Delta 当前GPP减上一次巡检同键位GPP。无上一次读数时返回nil，而不是0。
func Delta(currentGPP float64, priorGPP *float64) *float64 {
	if priorGPP == nil {
		return nil
	}
	d := currentGPP - *priorGPP
	return &d
}
