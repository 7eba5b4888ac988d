package item

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/souhyou/server/internal/model"
	"github.com/souhyou/server/internal/security"
)

// HorseInput はメモ作成・更新時の馬1頭分の入力。
type HorseInput struct {
	Name           *string
	PredictionMark *string
	Fields         []FieldInput
}

// FieldInput は馬に付ける項目の入力。Valueはデコード済みの任意の値。
type FieldInput struct {
	Label *string
	Type  *string
	Value interface{}
}

// NormalizeName は馬名を正規化する。
// nilは空文字として扱い、前後の空白除去後に80文字を超える場合はエラーを返す。
func NormalizeName(name *string) (string, error) {
	if name == nil {
		return "", nil
	}
	n := strings.TrimSpace(*name)
	if utf8.RuneCountInString(n) > model.MaxHorseNameLength {
		return "", model.NewHorseNameTooLongError()
	}
	return n, nil
}

// NormalizeMark は予想印を大文字化して検証する。未指定はMUZIRUSHI。
func NormalizeMark(mark *string) (model.PredictionMark, error) {
	if mark == nil {
		return model.MarkMuzirushi, nil
	}
	m := model.PredictionMark(strings.ToUpper(*mark))
	if !m.Valid() {
		return "", model.NewInvalidPredictionMarkError(*mark)
	}
	return m, nil
}

// NormalizeFieldType は項目型を大文字化して検証する。
func NormalizeFieldType(fieldType string) (model.FieldType, error) {
	t := model.FieldType(strings.ToUpper(strings.TrimSpace(fieldType)))
	if !t.Valid() {
		return "", model.NewInvalidFieldTypeError(fieldType)
	}
	return t, nil
}

// normalizeValue は項目型に応じて値を検証・変換する。
// NUMBERは数値かnull（数値として読める文字列は数値に変換）、
// SELECT/COMMENTは文字列・数値・nullを受け付け、数値はそのまま保持する。
func normalizeValue(label string, fieldType model.FieldType, raw interface{}, sanitizer security.TextSanitizer) (model.FieldValue, error) {
	v, ok := model.FieldValueFrom(raw)
	if !ok {
		return model.FieldValue{}, model.NewInvalidFieldValueError(label, fieldType)
	}

	switch fieldType {
	case model.FieldTypeNumber:
		switch v.Kind {
		case model.FieldValueNull:
			return v, nil
		case model.FieldValueNumber:
			if math.IsNaN(v.Number) || math.IsInf(v.Number, 0) {
				return model.FieldValue{}, model.NewInvalidFieldValueError(label, fieldType)
			}
			return v, nil
		case model.FieldValueText:
			s := strings.TrimSpace(v.Text)
			if s == "" {
				return model.NullValue(), nil
			}
			n, err := strconv.ParseFloat(s, 64)
			if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
				return model.FieldValue{}, model.NewInvalidFieldValueError(label, fieldType)
			}
			return model.NumberValue(n), nil
		}
	default:
		switch v.Kind {
		case model.FieldValueNull:
			return v, nil
		case model.FieldValueNumber:
			return v, nil
		case model.FieldValueText:
			return model.TextValue(sanitizer.Sanitize(v.Text)), nil
		}
	}
	return model.FieldValue{}, model.NewInvalidFieldValueError(label, fieldType)
}

// normalizeHorses はメモの馬一覧入力を正規化する。
// 項目には名前と型の両方が必要で、同じ馬の中で項目名は重複できない。
func normalizeHorses(inputs []HorseInput, sanitizer security.TextSanitizer) ([]model.Horse, error) {
	horses := make([]model.Horse, 0, len(inputs))
	for _, in := range inputs {
		name, err := NormalizeName(in.Name)
		if err != nil {
			return nil, err
		}
		mark, err := NormalizeMark(in.PredictionMark)
		if err != nil {
			return nil, err
		}

		fields := make([]model.Field, 0, len(in.Fields))
		seen := make(map[string]bool, len(in.Fields))
		for _, f := range in.Fields {
			if f.Label == nil || f.Type == nil || strings.TrimSpace(*f.Label) == "" || *f.Type == "" {
				return nil, model.NewFieldLabelAndTypeRequiredError()
			}
			label := strings.TrimSpace(*f.Label)
			fieldType, err := NormalizeFieldType(*f.Type)
			if err != nil {
				return nil, err
			}
			if seen[label] {
				return nil, model.NewFieldLabelExistsError(label)
			}
			seen[label] = true

			value, err := normalizeValue(label, fieldType, f.Value, sanitizer)
			if err != nil {
				return nil, err
			}
			fields = append(fields, model.Field{Label: label, Type: fieldType, Value: value})
		}

		horses = append(horses, model.Horse{Name: name, PredictionMark: mark, Fields: fields})
	}
	return horses, nil
}
