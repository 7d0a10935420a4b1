/*
raw.go - Calculator output before presentation

SHAPES:
  Two historical payload shapes exist and both stay readable forever, since
  fast-cache and durable-store entries are never migrated:

  DailySeries (preferred), discriminated by the presence of a "daily" list:
    {"daily": [{"date": "2025-03-01", "count": 4}, ...], "total": 42,
     "categories": [{"id": "12", "name": {"en-US": "Paid Time Off"}}]}

  LegacyFlat, ad-hoc scalar fields only:
    {"rate": 72.5}
    {"total": 12, "modules": [{"id": "12", "name": {...}, "count": 3}]}

  Daily points may carry "count" or "value"; both decode into Value. A point
  may carry a per-category "breakdown" object (category id -> value).

ENCODING:
  EncodeRaw/DecodeRaw are used by every cache tier that persists results.
*/
package metric

import (
	"encoding/json"
	"errors"
	"sort"

	"github.com/tidwall/gjson"
)

type Shape int

const (
	ShapeLegacyFlat Shape = iota
	ShapeDaily
)

func (s Shape) String() string {
	if s == ShapeDaily {
		return "daily"
	}
	return "legacy_flat"
}

// RawMetricResult is implemented by DailySeries and LegacyFlat only.
type RawMetricResult interface {
	Shape() Shape
	// Scalar returns a named aggregate field.
	Scalar(name string) (float64, bool)
	// CategoryList returns the dynamic categories (e.g. modules), if any.
	CategoryList() []Category
	sealed()
}

// DailyPoint is one bucket of a daily series.
type DailyPoint struct {
	Date      string             `json:"date"`
	Value     float64            `json:"value"`
	Breakdown map[string]float64 `json:"breakdown,omitempty"`
}

// Category is a dynamically named series member such as a module.
type Category struct {
	ID    string            `json:"id"`
	Name  map[string]string `json:"name,omitempty"`
	Count float64           `json:"count,omitempty"`
}

// =============================================================================
// DAILY SERIES
// =============================================================================

type DailySeries struct {
	Daily      []DailyPoint       `json:"daily"`
	Total      float64            `json:"total"`
	Aggregates map[string]float64 `json:"aggregates,omitempty"`
	Categories []Category         `json:"categories,omitempty"`
}

func (d *DailySeries) Shape() Shape { return ShapeDaily }

func (d *DailySeries) Scalar(name string) (float64, bool) {
	if name == "total" {
		return d.Total, true
	}
	v, ok := d.Aggregates[name]
	return v, ok
}

func (d *DailySeries) CategoryList() []Category { return d.Categories }

func (d *DailySeries) sealed() {}

// Values returns the daily values in date order.
func (d *DailySeries) Values() []float64 {
	out := make([]float64, len(d.Daily))
	for i, p := range d.Daily {
		out[i] = p.Value
	}
	return out
}

// =============================================================================
// LEGACY FLAT
// =============================================================================

type LegacyFlat struct {
	Fields     map[string]float64
	Categories []Category
}

func (l *LegacyFlat) Shape() Shape { return ShapeLegacyFlat }

func (l *LegacyFlat) Scalar(name string) (float64, bool) {
	v, ok := l.Fields[name]
	return v, ok
}

func (l *LegacyFlat) CategoryList() []Category { return l.Categories }

func (l *LegacyFlat) sealed() {}

// MarshalJSON writes the flat object the legacy producers wrote.
func (l *LegacyFlat) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any, len(l.Fields)+1)
	for k, v := range l.Fields {
		obj[k] = v
	}
	if len(l.Categories) > 0 {
		obj["modules"] = l.Categories
	}
	return json.Marshal(obj)
}

// =============================================================================
// ENCODING
// =============================================================================

var ErrMalformedRaw = errors.New("malformed raw metric payload")

// IsNilRaw reports whether raw is nil or a nil pointer of either shape.
func IsNilRaw(raw RawMetricResult) bool {
	switch v := raw.(type) {
	case nil:
		return true
	case *DailySeries:
		return v == nil
	case *LegacyFlat:
		return v == nil
	}
	return false
}

// EncodeRaw serializes a result for cache storage.
func EncodeRaw(raw RawMetricResult) ([]byte, error) {
	if IsNilRaw(raw) {
		return nil, ErrMalformedRaw
	}
	// a null "daily" would decode back as the legacy shape
	if ds, ok := raw.(*DailySeries); ok && ds.Daily == nil {
		cp := *ds
		cp.Daily = []DailyPoint{}
		raw = &cp
	}
	return json.Marshal(raw)
}

// DecodeRaw detects the payload shape and decodes it. Unknown or non-numeric
// fields are ignored rather than rejected.
func DecodeRaw(data []byte) (RawMetricResult, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrMalformedRaw
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, ErrMalformedRaw
	}

	if daily := root.Get("daily"); daily.IsArray() {
		return decodeDaily(root, daily), nil
	}
	return decodeLegacy(root), nil
}

func decodeDaily(root, daily gjson.Result) *DailySeries {
	ds := &DailySeries{Total: root.Get("total").Float()}

	daily.ForEach(func(_, point gjson.Result) bool {
		p := DailyPoint{Date: point.Get("date").String()}
		if v := point.Get("value"); v.Exists() {
			p.Value = v.Float()
		} else {
			p.Value = point.Get("count").Float()
		}
		if b := point.Get("breakdown"); b.IsObject() {
			p.Breakdown = numericFields(b, nil)
		}
		ds.Daily = append(ds.Daily, p)
		return true
	})
	sort.SliceStable(ds.Daily, func(i, j int) bool { return ds.Daily[i].Date < ds.Daily[j].Date })

	if agg := root.Get("aggregates"); agg.IsObject() {
		ds.Aggregates = numericFields(agg, nil)
	} else {
		ds.Aggregates = numericFields(root, map[string]bool{"daily": true, "total": true})
	}
	if len(ds.Aggregates) == 0 {
		ds.Aggregates = nil
	}

	cats := root.Get("categories")
	if !cats.IsArray() {
		cats = root.Get("modules")
	}
	ds.Categories = decodeCategories(cats)
	return ds
}

func decodeLegacy(root gjson.Result) *LegacyFlat {
	return &LegacyFlat{
		Fields:     numericFields(root, nil),
		Categories: decodeCategories(root.Get("modules")),
	}
}

func numericFields(obj gjson.Result, skip map[string]bool) map[string]float64 {
	out := make(map[string]float64)
	obj.ForEach(func(k, v gjson.Result) bool {
		if skip[k.String()] {
			return true
		}
		if v.Type == gjson.Number {
			out[k.String()] = v.Float()
		}
		return true
	})
	return out
}

func decodeCategories(arr gjson.Result) []Category {
	if !arr.IsArray() {
		return nil
	}
	var cats []Category
	arr.ForEach(func(_, c gjson.Result) bool {
		cat := Category{ID: c.Get("id").String(), Count: c.Get("count").Float()}
		name := c.Get("name")
		switch {
		case name.IsObject():
			cat.Name = make(map[string]string)
			name.ForEach(func(locale, v gjson.Result) bool {
				cat.Name[locale.String()] = v.String()
				return true
			})
		case name.Type == gjson.String:
			cat.Name = map[string]string{"en": name.String()}
		}
		cats = append(cats, cat)
		return true
	})
	return cats
}
