package compiler

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind identifies one of the supported technical indicators.
type Kind string

const (
	KindRSI   Kind = "RSI"
	KindMACD  Kind = "MACD"
	KindEMA   Kind = "EMA"
	KindSMA   Kind = "SMA"
	KindBB    Kind = "BB"
	KindSTOCH Kind = "STOCH"
	KindADX   Kind = "ADX"
	KindATR   Kind = "ATR"
)

// Params is the closed set of per-kind parameter structs. The unexported
// method keeps the set sealed so the compiler's type switch stays total.
type Params interface {
	indicatorKind() Kind
}

// RSIParams 相对强弱指标参数
type RSIParams struct {
	Period int `json:"period,omitempty"` // default 14
}

// MACDParams 指数平滑异同移动平均线参数
type MACDParams struct {
	Fast   int `json:"fast,omitempty"`   // default 12
	Slow   int `json:"slow,omitempty"`   // default 26
	Signal int `json:"signal,omitempty"` // default 9
}

// EMAParams 指数移动平均参数
type EMAParams struct {
	Period int `json:"period,omitempty"` // default 20
}

// SMAParams 简单移动平均参数
type SMAParams struct {
	Period int `json:"period,omitempty"` // default 50
}

// BBParams 布林带参数
type BBParams struct {
	Period int     `json:"period,omitempty"` // default 20
	StdDev float64 `json:"std,omitempty"`    // default 2
}

// StochParams 随机振荡指标参数
type StochParams struct {
	KPeriod int `json:"k_period,omitempty"` // default 14
	DPeriod int `json:"d_period,omitempty"` // default 3
}

// ADXParams 平均趋向指标参数
type ADXParams struct {
	Period int `json:"period,omitempty"` // default 14
}

// ATRParams 平均真实波幅参数
type ATRParams struct {
	Period int `json:"period,omitempty"` // default 14
}

func (RSIParams) indicatorKind() Kind   { return KindRSI }
func (MACDParams) indicatorKind() Kind  { return KindMACD }
func (EMAParams) indicatorKind() Kind   { return KindEMA }
func (SMAParams) indicatorKind() Kind   { return KindSMA }
func (BBParams) indicatorKind() Kind    { return KindBB }
func (StochParams) indicatorKind() Kind { return KindSTOCH }
func (ADXParams) indicatorKind() Kind   { return KindADX }
func (ATRParams) indicatorKind() Kind   { return KindATR }

// Indicator is one entry in a strategy's ordered indicator sequence.
// Its position in the sequence determines the generated variable name.
type Indicator struct {
	Kind   Kind
	Params Params
}

type indicatorEnvelope struct {
	Kind   string          `json:"kind"`
	Params json.RawMessage `json:"params,omitempty"`
}

func (i Indicator) MarshalJSON() ([]byte, error) {
	var params json.RawMessage
	if i.Params != nil {
		data, err := json.Marshal(i.Params)
		if err != nil {
			return nil, err
		}
		params = data
	}
	return json.Marshal(indicatorEnvelope{Kind: string(i.Kind), Params: params})
}

// UnmarshalJSON decodes {"kind": "...", "params": {...}} into the matching
// variant. Unknown kinds are rejected outright instead of being dropped later.
func (i *Indicator) UnmarshalJSON(data []byte) error {
	var env indicatorEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}

	kind := Kind(strings.ToUpper(strings.TrimSpace(env.Kind)))

	var params Params
	switch kind {
	case KindRSI:
		params = &RSIParams{}
	case KindMACD:
		params = &MACDParams{}
	case KindEMA:
		params = &EMAParams{}
	case KindSMA:
		params = &SMAParams{}
	case KindBB:
		params = &BBParams{}
	case KindSTOCH:
		params = &StochParams{}
	case KindADX:
		params = &ADXParams{}
	case KindATR:
		params = &ATRParams{}
	default:
		return fmt.Errorf("unknown indicator kind %q", env.Kind)
	}

	if len(env.Params) > 0 && string(env.Params) != "null" {
		if err := json.Unmarshal(env.Params, params); err != nil {
			return fmt.Errorf("invalid params for %s: %w", kind, err)
		}
	}

	i.Kind = kind
	i.Params = deref(params)
	return nil
}

// deref converts the pointer used for decoding back to the value form.
func deref(p Params) Params {
	switch v := p.(type) {
	case *RSIParams:
		return *v
	case *MACDParams:
		return *v
	case *EMAParams:
		return *v
	case *SMAParams:
		return *v
	case *BBParams:
		return *v
	case *StochParams:
		return *v
	case *ADXParams:
		return *v
	case *ATRParams:
		return *v
	}
	return p
}

// orDefault returns v when positive, otherwise def.
func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func orDefaultFloat(v, def float64) float64 {
	if v > 0 {
		return v
	}
	return def
}
