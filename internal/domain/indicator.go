package domain

import (
	"fmt"
	"strings"
)

// IndicatorKind enumerates supported indicator algorithms.
type IndicatorKind string

const (
	IndicatorSMA IndicatorKind = "sma"
	IndicatorEMA IndicatorKind = "ema"
	IndicatorATR IndicatorKind = "atr"
	IndicatorRSI IndicatorKind = "rsi"
	IndicatorADX IndicatorKind = "adx"
)

// IsValid checks if the kind is one of the supported algorithms.
func (k IndicatorKind) IsValid() bool {
	switch k {
	case IndicatorSMA, IndicatorEMA, IndicatorATR, IndicatorRSI, IndicatorADX:
		return true
	}
	return false
}

// Point is one emitted indicator value.
type Point struct {
	Time  int64   `json:"time"`
	Value float64 `json:"value"`
}

// IndicatorDefinition is immutable indicator configuration created at startup.
type IndicatorDefinition struct {
	ID      string        `json:"id" yaml:"id"`
	Kind    IndicatorKind `json:"type" yaml:"type"`
	Period  int           `json:"period" yaml:"period"`
	Source  SourceField   `json:"source,omitempty" yaml:"source,omitempty"`
	Color   string        `json:"color,omitempty" yaml:"color,omitempty"`
	Visible bool          `json:"visible" yaml:"visible"`
}

// Validate normalises the source field and checks the definition.
func (d *IndicatorDefinition) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("indicator id is required")
	}
	if !d.Kind.IsValid() {
		return fmt.Errorf("indicator %s: unsupported type %q", d.ID, d.Kind)
	}
	if d.Period <= 0 {
		return fmt.Errorf("indicator %s: period must be positive, got %d", d.ID, d.Period)
	}
	if d.Source == "" {
		d.Source = SourceClose
	}
	if !d.Source.IsValid() {
		return fmt.Errorf("indicator %s: unsupported source %q", d.ID, d.Source)
	}
	return nil
}

// Label returns a display name like "RSI(14)".
func (d IndicatorDefinition) Label() string {
	return fmt.Sprintf("%s(%d)", strings.ToUpper(string(d.Kind)), d.Period)
}
