// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// GraphQLエラーのメッセージにはCodeがそのまま使われ、残りは拡張情報として返る。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, item, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthenticated           = "UNAUTHENTICATED"
	ErrCodeUserNotFound              = "USER_NOT_FOUND"
	ErrCodeParentNotFound            = "PARENT_NOT_FOUND"
	ErrCodeParentMustBeFolder        = "PARENT_MUST_BE_FOLDER"
	ErrCodePathExists                = "PATH_EXISTS"
	ErrCodeMemoNotFound              = "MEMO_NOT_FOUND"
	ErrCodeIndexOutOfRange           = "INDEX_OUT_OF_RANGE"
	ErrCodeHorseNameTooLong          = "HORSE_NAME_TOO_LONG"
	ErrCodeInvalidPredictionMark     = "INVALID_PREDICTION_MARK"
	ErrCodeFieldLabelRequired        = "FIELD_LABEL_REQUIRED"
	ErrCodeFieldLabelTooLong         = "FIELD_LABEL_TOO_LONG"
	ErrCodeFieldLabelExists          = "FIELD_LABEL_EXISTS"
	ErrCodeFieldTypeMismatch         = "FIELD_TYPE_MISMATCH"
	ErrCodeInvalidFieldType          = "INVALID_FIELD_TYPE"
	ErrCodeFieldLabelAndTypeRequired = "FIELD_LABEL_AND_TYPE_REQUIRED"
	ErrCodeInvalidFieldValue         = "INVALID_FIELD_VALUE"
	ErrCodeInvalidMove               = "INVALID_MOVE"
	ErrCodeVersionConflict           = "VERSION_CONFLICT"
	ErrCodeInternal                  = "INTERNAL_SERVER_ERROR"
)

// NewUnauthenticatedError は未認証エラーを生成する。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてから再度お試しください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewParentNotFoundError は親フォルダ未検出エラーを生成する。
func NewParentNotFoundError(parentID string) *APIError {
	return &APIError{
		Code:     ErrCodeParentNotFound,
		Message:  fmt.Sprintf("親フォルダが見つかりません: %s", parentID),
		Category: "item",
		Action:   "親フォルダを選び直してください。",
	}
}

// NewParentMustBeFolderError は親がフォルダでない場合のエラーを生成する。
func NewParentMustBeFolderError() *APIError {
	return &APIError{
		Code:     ErrCodeParentMustBeFolder,
		Message:  "親にはフォルダのみ指定できます。",
		Category: "validation",
		Action:   "メモではなくフォルダを親に指定してください。",
	}
}

// NewPathExistsError は同一パスのアイテムが既に存在する場合のエラーを生成する。
func NewPathExistsError(path string) *APIError {
	return &APIError{
		Code:     ErrCodePathExists,
		Message:  fmt.Sprintf("同じパスのアイテムが既に存在します: %s", path),
		Category: "item",
		Action:   "別の名前を付けるか、別のフォルダを選んでください。",
	}
}

// NewMemoNotFoundError はメモ未検出エラーを生成する。
func NewMemoNotFoundError(memoID string) *APIError {
	return &APIError{
		Code:     ErrCodeMemoNotFound,
		Message:  fmt.Sprintf("メモが見つかりません: %s", memoID),
		Category: "item",
		Action:   "メモ一覧を再読み込みしてください。",
	}
}

// NewIndexOutOfRangeError は馬インデックスが範囲外の場合のエラーを生成する。
func NewIndexOutOfRangeError(index int) *APIError {
	return &APIError{
		Code:     ErrCodeIndexOutOfRange,
		Message:  fmt.Sprintf("馬のインデックスが範囲外です: %d", index),
		Category: "validation",
		Action:   "メモを再読み込みしてから操作してください。",
	}
}

// NewHorseNameTooLongError は馬名が長すぎる場合のエラーを生成する。
func NewHorseNameTooLongError() *APIError {
	return &APIError{
		Code:     ErrCodeHorseNameTooLong,
		Message:  fmt.Sprintf("馬名は%d文字以内で入力してください。", MaxHorseNameLength),
		Category: "validation",
		Action:   "馬名を短くしてください。",
	}
}

// NewInvalidPredictionMarkError は無効な予想印の場合のエラーを生成する。
func NewInvalidPredictionMarkError(mark string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPredictionMark,
		Message:  fmt.Sprintf("無効な予想印です: %s", mark),
		Category: "validation",
		Action:   "定義済みの予想印から選択してください。",
	}
}

// NewFieldLabelRequiredError は項目名が空の場合のエラーを生成する。
func NewFieldLabelRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeFieldLabelRequired,
		Message:  "項目名を入力してください。",
		Category: "validation",
		Action:   "項目名を入力してください。",
	}
}

// NewFieldLabelTooLongError は項目名が長すぎる場合のエラーを生成する。
func NewFieldLabelTooLongError() *APIError {
	return &APIError{
		Code:     ErrCodeFieldLabelTooLong,
		Message:  fmt.Sprintf("項目名は%d文字以内で入力してください。", MaxFieldLabelLength),
		Category: "validation",
		Action:   "項目名を短くしてください。",
	}
}

// NewFieldLabelExistsError は項目名が重複している場合のエラーを生成する。
func NewFieldLabelExistsError(label string) *APIError {
	return &APIError{
		Code:     ErrCodeFieldLabelExists,
		Message:  fmt.Sprintf("同じ名前の項目が既に存在します: %s", label),
		Category: "validation",
		Action:   "別の項目名を入力してください。",
	}
}

// NewFieldTypeMismatchError は既存項目と型が異なる場合のエラーを生成する。
func NewFieldTypeMismatchError(label string) *APIError {
	return &APIError{
		Code:     ErrCodeFieldTypeMismatch,
		Message:  fmt.Sprintf("項目の型が既存の定義と一致しません: %s", label),
		Category: "validation",
		Action:   "項目の型を変更することはできません。",
	}
}

// NewInvalidFieldTypeError は無効な項目型の場合のエラーを生成する。
func NewInvalidFieldTypeError(fieldType string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidFieldType,
		Message:  fmt.Sprintf("無効な項目型です: %s", fieldType),
		Category: "validation",
		Action:   "NUMBER、SELECT、COMMENT のいずれかを指定してください。",
	}
}

// NewFieldLabelAndTypeRequiredError は項目名または型が欠けている場合のエラーを生成する。
func NewFieldLabelAndTypeRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeFieldLabelAndTypeRequired,
		Message:  "項目には名前と型の両方が必要です。",
		Category: "validation",
		Action:   "項目名と型を指定してください。",
	}
}

// NewInvalidFieldValueError は項目型に合わない値の場合のエラーを生成する。
func NewInvalidFieldValueError(label string, fieldType FieldType) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidFieldValue,
		Message:  fmt.Sprintf("項目 %s に %s 型として不正な値が指定されました。", label, fieldType),
		Category: "validation",
		Action:   "NUMBER 型には数値、それ以外には文字列を指定してください。",
	}
}

// NewInvalidMoveError は自身または子孫への移動を試みた場合のエラーを生成する。
func NewInvalidMoveError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidMove,
		Message:  "フォルダを自身またはその配下に移動することはできません。",
		Category: "validation",
		Action:   "別の移動先を選んでください。",
	}
}

// NewVersionConflictError は同時更新が解消できなかった場合のエラーを生成する。
func NewVersionConflictError() *APIError {
	return &APIError{
		Code:     ErrCodeVersionConflict,
		Message:  "他の更新と競合しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを隠蔽して返す際のエラーを生成する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "サーバー内部でエラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
