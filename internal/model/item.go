// Package model はドメインモデルを定義する。
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// 入力値の上限（文字数はコードポイント単位）
const (
	MaxHorseNameLength  = 80
	MaxFieldLabelLength = 40
)

// ItemType はアイテムの種別を表す。
type ItemType string

const (
	// ItemTypeFolder は他のアイテムを格納できるフォルダ。
	ItemTypeFolder ItemType = "FOLDER"
	// ItemTypeMemo は馬の一覧を持つ予想メモ。
	ItemTypeMemo ItemType = "MEMO"
)

// PredictionMark は馬に付ける予想印を表す。
type PredictionMark string

const (
	MarkHonmei    PredictionMark = "HONMEI"
	MarkTaikou    PredictionMark = "TAIKOU"
	MarkTannana   PredictionMark = "TANNANA"
	MarkRenshita  PredictionMark = "RENSHITA"
	MarkHoshi     PredictionMark = "HOSHI"
	MarkChuui     PredictionMark = "CHUUI"
	MarkKeshi     PredictionMark = "KESHI"
	MarkMuzirushi PredictionMark = "MUZIRUSHI"
)

// AllowedMarks は定義済みの予想印の一覧。
var AllowedMarks = []PredictionMark{
	MarkHonmei, MarkTaikou, MarkTannana, MarkRenshita,
	MarkHoshi, MarkChuui, MarkKeshi, MarkMuzirushi,
}

// Valid は定義済みの予想印かどうかを返す。
func (m PredictionMark) Valid() bool {
	for _, allowed := range AllowedMarks {
		if m == allowed {
			return true
		}
	}
	return false
}

// FieldType は馬ごとのカスタム項目の型を表す。
type FieldType string

const (
	FieldTypeNumber  FieldType = "NUMBER"
	FieldTypeSelect  FieldType = "SELECT"
	FieldTypeComment FieldType = "COMMENT"
)

// Valid は定義済みの項目型かどうかを返す。
func (t FieldType) Valid() bool {
	switch t {
	case FieldTypeNumber, FieldTypeSelect, FieldTypeComment:
		return true
	}
	return false
}

// Item はユーザーごとのツリーに属するフォルダまたはメモを表す。
// Ancestorsはルートから直近の親までのIDを順に保持し、Depthはその長さと一致する。
type Item struct {
	ID        string
	OwnerID   string
	Type      ItemType
	Name      string
	Path      string
	ParentID  *string
	Ancestors []string
	Depth     int
	Horses    []Horse
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsFolder はフォルダかどうかを返す。
func (i *Item) IsFolder() bool { return i.Type == ItemTypeFolder }

// IsMemo はメモかどうかを返す。
func (i *Item) IsMemo() bool { return i.Type == ItemTypeMemo }

// Clone は馬・項目を含めて複製を返す。
func (i *Item) Clone() *Item {
	c := *i
	if i.ParentID != nil {
		p := *i.ParentID
		c.ParentID = &p
	}
	c.Ancestors = append([]string(nil), i.Ancestors...)
	c.Horses = CloneHorses(i.Horses)
	return &c
}

// Horse はメモ内の1頭分の行を表す。
type Horse struct {
	Name           string         `json:"name"`
	PredictionMark PredictionMark `json:"predictionMark"`
	Fields         []Field        `json:"fields"`
}

// Field は馬に紐づくカスタム項目を表す。
type Field struct {
	Label string     `json:"label"`
	Type  FieldType  `json:"type"`
	Value FieldValue `json:"value"`
}

// CloneHorses は馬の一覧を深く複製する。
func CloneHorses(horses []Horse) []Horse {
	if horses == nil {
		return []Horse{}
	}
	out := make([]Horse, len(horses))
	for i, h := range horses {
		out[i] = h
		out[i].Fields = append([]Field{}, h.Fields...)
	}
	return out
}

// FieldValueKind は項目値の種類を表す。
type FieldValueKind int

const (
	FieldValueNull FieldValueKind = iota
	FieldValueNumber
	FieldValueText
)

// FieldValue は null・数値・文字列のいずれかを保持する項目値。
type FieldValue struct {
	Kind   FieldValueKind
	Number float64
	Text   string
}

// NullValue は null の項目値を返す。
func NullValue() FieldValue { return FieldValue{Kind: FieldValueNull} }

// NumberValue は数値の項目値を返す。
func NumberValue(n float64) FieldValue { return FieldValue{Kind: FieldValueNumber, Number: n} }

// TextValue は文字列の項目値を返す。
func TextValue(s string) FieldValue { return FieldValue{Kind: FieldValueText, Text: s} }

// IsNull は null かどうかを返す。
func (v FieldValue) IsNull() bool { return v.Kind == FieldValueNull }

// Interface はJSONへ出力できる素の値を返す。
func (v FieldValue) Interface() interface{} {
	switch v.Kind {
	case FieldValueNumber:
		return v.Number
	case FieldValueText:
		return v.Text
	}
	return nil
}

// MarshalJSON はjson.Marshalerを実装する。
func (v FieldValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// UnmarshalJSON はjson.Unmarshalerを実装する。
func (v *FieldValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*v = NullValue()
		return nil
	}
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, ok := FieldValueFrom(raw)
	if !ok {
		return fmt.Errorf("unsupported field value: %s", string(data))
	}
	*v = parsed
	return nil
}

// FieldValueFrom はデコード済みの任意の値を項目値に変換する。
// 数値・文字列・null 以外はfalseを返す。
func FieldValueFrom(raw interface{}) (FieldValue, bool) {
	switch x := raw.(type) {
	case nil:
		return NullValue(), true
	case string:
		return TextValue(x), true
	case float64:
		return NumberValue(x), true
	case float32:
		return NumberValue(float64(x)), true
	case int:
		return NumberValue(float64(x)), true
	case int32:
		return NumberValue(float64(x)), true
	case int64:
		return NumberValue(float64(x)), true
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return FieldValue{}, false
		}
		return NumberValue(n), true
	case FieldValue:
		return x, true
	}
	return FieldValue{}, false
}

// String は数値を含めて文字列表現を返す。null は空文字。
func (v FieldValue) String() string {
	switch v.Kind {
	case FieldValueNumber:
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	case FieldValueText:
		return v.Text
	}
	return ""
}
