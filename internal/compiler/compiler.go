// Package compiler turns a declarative indicator/rule definition into the
// source text of an executable strategy understood by the external backtest
// engine. Compilation is a pure function: identical input yields byte-identical
// output, so regenerating a strategy never invalidates stored artifacts.
package compiler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Definition is the complete input to Compile.
type Definition struct {
	Indicators []Indicator `json:"indicators"`
	Rules      RuleSet     `json:"rules"`
	Timeframe  string      `json:"timeframe"`
}

const codeHeader = `from backtesting import Strategy
import pandas as pd
from ta.momentum import RSIIndicator, StochasticOscillator
from ta.trend import MACD, EMAIndicator, SMAIndicator, ADXIndicator
from ta.volatility import BollingerBands, AverageTrueRange

class CustomStrategy(Strategy):
    def init(self):
        # Price series shared by all indicators
        close = pd.Series(self.data.Close, index=self.data.index)
        high = pd.Series(self.data.High, index=self.data.index)
        low = pd.Series(self.data.Low, index=self.data.index)

`

// Compile generates strategy source text from def.
func Compile(def Definition) (string, error) {
	if err := Validate(def); err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Timeframe: %s\n", def.Timeframe)
	b.WriteString(codeHeader)

	for idx, ind := range def.Indicators {
		writeIndicatorInit(&b, idx, ind)
	}

	b.WriteString("    def next(self):\n")

	b.WriteString("        # Entry conditions\n")
	fmt.Fprintf(&b, "        if %s:\n", conditionBlock(def.Rules.Entry, def.Rules.EntryLogic, def.Indicators))
	b.WriteString("            if not self.position:\n")
	b.WriteString("                self.buy()\n")

	if len(def.Rules.Exit) > 0 {
		b.WriteString("\n        # Exit conditions\n")
		fmt.Fprintf(&b, "        if %s:\n", conditionBlock(def.Rules.Exit, def.Rules.ExitLogic, def.Indicators))
		b.WriteString("            if self.position:\n")
		b.WriteString("                self.position.close()\n")
	}

	return b.String(), nil
}

// Validate checks the structural invariants of def without generating code.
func Validate(def Definition) error {
	if len(def.Indicators) == 0 {
		return errors.New("at least one indicator is required")
	}
	if len(def.Rules.Entry) == 0 {
		return errors.New("at least one entry rule is required")
	}
	for i, ind := range def.Indicators {
		if defaultParams(ind.Kind) == nil {
			return fmt.Errorf("indicator %d: unknown kind %q", i, ind.Kind)
		}
		if ind.Params != nil && ind.Params.indicatorKind() != ind.Kind {
			return fmt.Errorf("indicator %d: params do not match kind %s", i, ind.Kind)
		}
	}
	for i, r := range def.Rules.Entry {
		if err := validateRule(r); err != nil {
			return fmt.Errorf("entry rule %d: %w", i, err)
		}
	}
	for i, r := range def.Rules.Exit {
		if err := validateRule(r); err != nil {
			return fmt.Errorf("exit rule %d: %w", i, err)
		}
	}
	return nil
}

func validateRule(r Rule) error {
	if r.Subject == "" {
		return errors.New("missing subject")
	}
	if r.Operator == "" {
		return errors.New("missing operator")
	}
	if r.Value != nil && r.Compare != "" {
		return errors.New("value and compare reference are mutually exclusive")
	}
	if r.Value == nil && r.Compare == "" {
		return errors.New("either a value or a compare reference is required")
	}
	return nil
}

// variableName derives the identifier for the indicator at the given position.
// The positional index is part of the name so identifiers stay stable across
// recompiles as long as the sequence order is unchanged.
func variableName(kind Kind, idx int) string {
	return fmt.Sprintf("%s_%d", strings.ToLower(string(kind)), idx)
}

func defaultParams(k Kind) Params {
	switch k {
	case KindRSI:
		return RSIParams{}
	case KindMACD:
		return MACDParams{}
	case KindEMA:
		return EMAParams{}
	case KindSMA:
		return SMAParams{}
	case KindBB:
		return BBParams{}
	case KindSTOCH:
		return StochParams{}
	case KindADX:
		return ADXParams{}
	case KindATR:
		return ATRParams{}
	}
	return nil
}

// writeIndicatorInit emits the init lines for one indicator. The switch is
// exhaustive over the closed Params set.
func writeIndicatorInit(b *strings.Builder, idx int, ind Indicator) {
	if ind.Params == nil {
		ind.Params = defaultParams(ind.Kind)
	}
	name := variableName(ind.Kind, idx)

	switch p := ind.Params.(type) {
	case RSIParams:
		b.WriteString("        # RSI Indicator\n")
		fmt.Fprintf(b, "        rsi_ind_%d = RSIIndicator(close=close, window=%d)\n", idx, orDefault(p.Period, 14))
		fmt.Fprintf(b, "        self.%s = self.I(lambda: rsi_ind_%d.rsi().values)\n\n", name, idx)
	case MACDParams:
		b.WriteString("        # MACD Indicator\n")
		fmt.Fprintf(b, "        macd_ind_%d = MACD(close=close, window_slow=%d, window_fast=%d, window_sign=%d)\n",
			idx, orDefault(p.Slow, 26), orDefault(p.Fast, 12), orDefault(p.Signal, 9))
		fmt.Fprintf(b, "        self.%s = self.I(lambda: macd_ind_%d.macd().values)\n", name, idx)
		fmt.Fprintf(b, "        self.%s_signal = self.I(lambda: macd_ind_%d.macd_signal().values)\n", name, idx)
		fmt.Fprintf(b, "        self.%s_diff = self.I(lambda: macd_ind_%d.macd_diff().values)\n\n", name, idx)
	case EMAParams:
		b.WriteString("        # EMA Indicator\n")
		fmt.Fprintf(b, "        ema_ind_%d = EMAIndicator(close=close, window=%d)\n", idx, orDefault(p.Period, 20))
		fmt.Fprintf(b, "        self.%s = self.I(lambda: ema_ind_%d.ema_indicator().values)\n\n", name, idx)
	case SMAParams:
		b.WriteString("        # SMA Indicator\n")
		fmt.Fprintf(b, "        sma_ind_%d = SMAIndicator(close=close, window=%d)\n", idx, orDefault(p.Period, 50))
		fmt.Fprintf(b, "        self.%s = self.I(lambda: sma_ind_%d.sma_indicator().values)\n\n", name, idx)
	case BBParams:
		b.WriteString("        # Bollinger Bands\n")
		fmt.Fprintf(b, "        bb_ind_%d = BollingerBands(close=close, window=%d, window_dev=%s)\n",
			idx, orDefault(p.Period, 20), formatNumber(orDefaultFloat(p.StdDev, 2)))
		fmt.Fprintf(b, "        self.%s_upper = self.I(lambda: bb_ind_%d.bollinger_hband().values)\n", name, idx)
		fmt.Fprintf(b, "        self.%s_middle = self.I(lambda: bb_ind_%d.bollinger_mavg().values)\n", name, idx)
		fmt.Fprintf(b, "        self.%s_lower = self.I(lambda: bb_ind_%d.bollinger_lband().values)\n\n", name, idx)
	case StochParams:
		b.WriteString("        # Stochastic Oscillator\n")
		fmt.Fprintf(b, "        stoch_ind_%d = StochasticOscillator(high=high, low=low, close=close, window=%d, smooth_window=%d)\n",
			idx, orDefault(p.KPeriod, 14), orDefault(p.DPeriod, 3))
		fmt.Fprintf(b, "        self.%s_k = self.I(lambda: stoch_ind_%d.stoch().values)\n", name, idx)
		fmt.Fprintf(b, "        self.%s_d = self.I(lambda: stoch_ind_%d.stoch_signal().values)\n\n", name, idx)
	case ADXParams:
		b.WriteString("        # ADX Indicator\n")
		fmt.Fprintf(b, "        adx_ind_%d = ADXIndicator(high=high, low=low, close=close, window=%d)\n", idx, orDefault(p.Period, 14))
		fmt.Fprintf(b, "        self.%s = self.I(lambda: adx_ind_%d.adx().values)\n\n", name, idx)
	case ATRParams:
		b.WriteString("        # ATR Indicator\n")
		fmt.Fprintf(b, "        atr_ind_%d = AverageTrueRange(high=high, low=low, close=close, window=%d)\n", idx, orDefault(p.Period, 14))
		fmt.Fprintf(b, "        self.%s = self.I(lambda: atr_ind_%d.average_true_range().values)\n\n", name, idx)
	}
}

// seriesSuffixes maps the user-facing series names of multi-series kinds to
// the attribute suffix used in generated code. The empty key is the series a
// bare reference resolves to.
var seriesSuffixes = map[Kind]map[string]string{
	KindMACD:  {"": "", "line": "", "signal": "_signal", "diff": "_diff", "hist": "_diff", "histogram": "_diff"},
	KindBB:    {"": "_middle", "upper": "_upper", "middle": "_middle", "lower": "_lower"},
	KindSTOCH: {"": "_k", "k": "_k", "d": "_d"},
}

// resolveRef maps a subject/compare reference to an accessor expression at
// the given bar offset (1 = most recent bar). References that match neither a
// raw price field nor an indicator in the sequence pass through unchanged.
func resolveRef(ref string, ago int, inds []Indicator) string {
	switch strings.ToLower(ref) {
	case "open":
		return barAccessor("Open", ago)
	case "high":
		return barAccessor("High", ago)
	case "low":
		return barAccessor("Low", ago)
	case "close":
		return barAccessor("Close", ago)
	}

	kind, idx, suffix, ok := parseIndicatorRef(ref, inds)
	if !ok {
		return ref
	}
	return fmt.Sprintf("self.%s%s[-%d]", variableName(kind, idx), suffix, ago)
}

func barAccessor(field string, ago int) string {
	return fmt.Sprintf("self.data.%s[-%d]", field, ago)
}

// parseIndicatorRef understands KIND, kind_N, kind_series and kind_N_series
// forms, case-insensitively. A bare kind resolves to the first indicator of
// that kind in the sequence; an explicit index must name a matching position.
func parseIndicatorRef(ref string, inds []Indicator) (Kind, int, string, bool) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(ref)), "_")
	kind := Kind(strings.ToUpper(parts[0]))
	if defaultParams(kind) == nil {
		return "", 0, "", false
	}

	rest := parts[1:]
	idx := -1
	if len(rest) > 0 {
		if n, err := strconv.Atoi(rest[0]); err == nil {
			idx = n
			rest = rest[1:]
		}
	}

	var suffix string
	if series, multi := seriesSuffixes[kind]; multi {
		s, ok := series[strings.Join(rest, "_")]
		if !ok {
			return "", 0, "", false
		}
		suffix = s
	} else if len(rest) > 0 {
		return "", 0, "", false
	}

	if idx >= 0 {
		if idx >= len(inds) || inds[idx].Kind != kind {
			return "", 0, "", false
		}
		return kind, idx, suffix, true
	}
	for i, ind := range inds {
		if ind.Kind == kind {
			return kind, i, suffix, true
		}
	}
	return "", 0, "", false
}

// term is one side of a condition: a numeric literal or a reference.
type term struct {
	lit *float64
	ref string
}

func (t term) render(ago int, inds []Indicator) string {
	if t.lit != nil {
		return formatNumber(*t.lit)
	}
	return resolveRef(t.ref, ago, inds)
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func ruleExpression(r Rule, inds []Indicator) string {
	subject := term{ref: r.Subject}
	operand := term{lit: r.Value, ref: r.Compare}

	switch op := normalizeOperator(r.Operator); op {
	case OpCrossesAbove:
		return crossoverExpression(subject, operand, inds)
	case OpCrossesBelow:
		// crosses_below(A, B) is crosses_above(B, A)
		return crossoverExpression(operand, subject, inds)
	default:
		sym, ok := relationalSymbols[op]
		if !ok {
			sym = string(op)
		}
		return fmt.Sprintf("%s %s %s", subject.render(1, inds), sym, operand.render(1, inds))
	}
}

// crossoverExpression is true on the bar where a transitions from at-or-below
// b to above b, evaluated over the two most recent bars.
func crossoverExpression(a, b term, inds []Indicator) string {
	return fmt.Sprintf("(%s <= %s and %s > %s)",
		a.render(2, inds), b.render(2, inds), a.render(1, inds), b.render(1, inds))
}

func conditionBlock(rules []Rule, logic Logic, inds []Indicator) string {
	exprs := make([]string, 0, len(rules))
	for _, r := range rules {
		exprs = append(exprs, ruleExpression(r, inds))
	}
	joiner := fmt.Sprintf(" %s \\\n           ", logic.pythonOperator())
	return strings.Join(exprs, joiner)
}
