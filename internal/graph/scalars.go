package graph

import (
	"encoding/json"
	"fmt"
	"strconv"

	graphql "github.com/graph-gophers/graphql-go"
)

// JSON は数値・文字列・nullなどを任意に受け渡すスカラー。
// 項目値の入出力に使用し、型の検証はサービス層で行う。
type JSON struct {
	Value interface{}
}

// ImplementsGraphQLType はスカラー名の対応を示す。
func (JSON) ImplementsGraphQLType(name string) bool {
	return name == "JSON"
}

// UnmarshalGraphQL は入力値をそのまま保持する。
func (j *JSON) UnmarshalGraphQL(input interface{}) error {
	j.Value = input
	return nil
}

// MarshalJSON はjson.Marshalerを実装する。
func (j JSON) MarshalJSON() ([]byte, error) {
	return json.Marshal(j.Value)
}

// nullID は省略・null・値ありを区別するID入力。
// Setは入力にフィールドが含まれていたか、Valueはnull以外の値を表す。
type nullID struct {
	Value *graphql.ID
	Set   bool
}

func (nullID) ImplementsGraphQLType(name string) bool {
	return name == "ID"
}

func (n *nullID) UnmarshalGraphQL(input interface{}) error {
	n.Set = true
	if input == nil {
		return nil
	}
	switch v := input.(type) {
	case string:
		id := graphql.ID(v)
		n.Value = &id
	case int32:
		id := graphql.ID(strconv.Itoa(int(v)))
		n.Value = &id
	default:
		return fmt.Errorf("wrong type for ID: %T", input)
	}
	return nil
}

// Nullable はgraphql-goにnull入力を受け付ける型であることを示す。
func (n *nullID) Nullable() {}
