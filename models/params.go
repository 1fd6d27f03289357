package models

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// ParamKind discriminates the filter/preset parameter variants.
type ParamKind string

const (
	ParamRange  ParamKind = "range"
	ParamBool   ParamKind = "boolean"
	ParamSelect ParamKind = "select"
	ParamColor  ParamKind = "color"
)

// Param is a typed filter or preset parameter. Each variant carries its own
// payload; there is no open map of arbitrary values.
type Param interface {
	Kind() ParamKind
	ParamName() string
	Validate() error
}

type RangeParam struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Step  float64 `json:"step,omitempty"`
}

type BoolParam struct {
	Name  string `json:"name"`
	Value bool   `json:"value"`
}

type SelectParam struct {
	Name    string   `json:"name"`
	Value   string   `json:"value"`
	Options []string `json:"options"`
}

type ColorParam struct {
	Name  string `json:"name"`
	Value string `json:"value"` // #rrggbb
}

func (p RangeParam) Kind() ParamKind  { return ParamRange }
func (p BoolParam) Kind() ParamKind   { return ParamBool }
func (p SelectParam) Kind() ParamKind { return ParamSelect }
func (p ColorParam) Kind() ParamKind  { return ParamColor }

func (p RangeParam) ParamName() string  { return p.Name }
func (p BoolParam) ParamName() string   { return p.Name }
func (p SelectParam) ParamName() string { return p.Name }
func (p ColorParam) ParamName() string  { return p.Name }

func (p RangeParam) Validate() error {
	if p.Min > p.Max {
		return fmt.Errorf("param %s: min %v above max %v", p.Name, p.Min, p.Max)
	}
	if p.Value < p.Min || p.Value > p.Max {
		return fmt.Errorf("param %s: value %v outside [%v,%v]", p.Name, p.Value, p.Min, p.Max)
	}
	return nil
}

func (p BoolParam) Validate() error { return nil }

func (p SelectParam) Validate() error {
	for _, opt := range p.Options {
		if opt == p.Value {
			return nil
		}
	}
	return fmt.Errorf("param %s: %q is not one of %v", p.Name, p.Value, p.Options)
}

var hexColor = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

func (p ColorParam) Validate() error {
	if !hexColor.MatchString(p.Value) {
		return fmt.Errorf("param %s: %q is not a #rrggbb color", p.Name, p.Value)
	}
	return nil
}

// Params is a list of typed parameters that round-trips through JSON with a
// "type" discriminator on every element.
type Params []Param

func (ps Params) MarshalJSON() ([]byte, error) {
	out := make([]json.RawMessage, 0, len(ps))
	for _, p := range ps {
		body, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		// splice {"type":...} in front of the variant's own fields
		tagged := append([]byte(fmt.Sprintf(`{"type":%q,`, p.Kind())), body[1:]...)
		if len(body) == 2 {
			tagged = []byte(fmt.Sprintf(`{"type":%q}`, p.Kind()))
		}
		out = append(out, tagged)
	}
	return json.Marshal(out)
}

func (ps *Params) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}
	result := make(Params, 0, len(raws))
	for i, raw := range raws {
		var head struct {
			Type ParamKind `json:"type"`
		}
		if err := json.Unmarshal(raw, &head); err != nil {
			return fmt.Errorf("param %d: %w", i, err)
		}
		var (
			p   Param
			err error
		)
		switch head.Type {
		case ParamRange:
			var v RangeParam
			err = json.Unmarshal(raw, &v)
			p = v
		case ParamBool:
			var v BoolParam
			err = json.Unmarshal(raw, &v)
			p = v
		case ParamSelect:
			var v SelectParam
			err = json.Unmarshal(raw, &v)
			p = v
		case ParamColor:
			var v ColorParam
			err = json.Unmarshal(raw, &v)
			p = v
		default:
			return fmt.Errorf("param %d: unknown type %q", i, head.Type)
		}
		if err != nil {
			return fmt.Errorf("param %d: %w", i, err)
		}
		result = append(result, p)
	}
	*ps = result
	return nil
}

// Preset is a named bundle of settings plus typed parameters.
type Preset struct {
	Name     string             `json:"name"`
	Settings ConversionSettings `json:"settings"`
	Params   Params             `json:"params,omitempty"`
}

// Apply resolves the preset into conversion settings. Recognized parameters
// override the preset's base settings: "quality" (range), "width"/"height"
// (range), "progressive"/"lossless"/"preserveExif" (boolean), "format"
// (select). Unknown parameters are validated but otherwise ignored.
func (p Preset) Apply() (ConversionSettings, error) {
	s := p.Settings
	for _, param := range p.Params {
		if err := param.Validate(); err != nil {
			return s, err
		}
		switch v := param.(type) {
		case RangeParam:
			switch v.Name {
			case "quality":
				s.Quality = IntPtr(int(v.Value))
			case "width":
				s.Width = IntPtr(int(v.Value))
			case "height":
				s.Height = IntPtr(int(v.Value))
			}
		case BoolParam:
			switch v.Name {
			case "progressive":
				s.Progressive = v.Value
			case "lossless":
				s.Lossless = v.Value
			case "preserveExif":
				s.PreserveExif = v.Value
			}
		case SelectParam:
			if v.Name == "format" {
				s.Format = NormalizeFormat(v.Value)
			}
		}
	}
	return s, nil
}
