package model

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

type AnswerKind int

const (
	AnswerNone AnswerKind = iota
	AnswerIndex
	AnswerIndexSet
	AnswerText
)

func (k AnswerKind) String() string {
	switch k {
	case AnswerIndex:
		return "index"
	case AnswerIndexSet:
		return "index_set"
	case AnswerText:
		return "text"
	}
	return "none"
}

// CorrectAnswer is the expected answer of a question. It is stored as a JSON
// column holding a number (1-based option index), an array of indexes, a
// string, or null.
type CorrectAnswer struct {
	Kind    AnswerKind
	Index   int
	Indices []int
	Text    string
}

func IndexAnswer(i int) CorrectAnswer {
	return CorrectAnswer{Kind: AnswerIndex, Index: i}
}

func IndexSetAnswer(indices ...int) CorrectAnswer {
	return CorrectAnswer{Kind: AnswerIndexSet, Indices: indices}
}

func TextAnswer(s string) CorrectAnswer {
	return CorrectAnswer{Kind: AnswerText, Text: s}
}

// IsBlank reports whether no usable expected answer was provided.
func (c CorrectAnswer) IsBlank() bool {
	switch c.Kind {
	case AnswerNone:
		return true
	case AnswerText:
		return strings.TrimSpace(c.Text) == ""
	case AnswerIndexSet:
		return len(c.Indices) == 0
	}
	return false
}

// String renders the answer the way the admin screens display it.
func (c CorrectAnswer) String() string {
	switch c.Kind {
	case AnswerIndex:
		return strconv.Itoa(c.Index)
	case AnswerIndexSet:
		parts := make([]string, len(c.Indices))
		for i, idx := range c.Indices {
			parts[i] = strconv.Itoa(idx)
		}
		return strings.Join(parts, ", ")
	case AnswerText:
		return c.Text
	}
	return ""
}

func (c CorrectAnswer) MarshalJSON() ([]byte, error) {
	switch c.Kind {
	case AnswerIndex:
		return json.Marshal(c.Index)
	case AnswerIndexSet:
		if c.Indices == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(c.Indices)
	case AnswerText:
		return json.Marshal(c.Text)
	}
	return []byte("null"), nil
}

func (c *CorrectAnswer) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*c = CorrectAnswer{}
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = TextAnswer(s)
		return nil
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		indices := make([]int, 0, len(raw))
		for _, r := range raw {
			idx, err := decodeIndex(r)
			if err != nil {
				return fmt.Errorf("correct answer set: %w", err)
			}
			indices = append(indices, idx)
		}
		*c = IndexSetAnswer(indices...)
		return nil
	}

	idx, err := decodeIndex(data)
	if err != nil {
		return fmt.Errorf("correct answer: %w", err)
	}
	*c = IndexAnswer(idx)
	return nil
}

// decodeIndex accepts 2, 2.0 and "2". Fractions and non-numeric text fail.
func decodeIndex(data json.RawMessage) (int, error) {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return 0, err
	}
	switch t := v.(type) {
	case float64:
		if t != math.Trunc(t) {
			return 0, fmt.Errorf("index %v is not an integer", t)
		}
		return int(t), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, fmt.Errorf("index %q is not an integer", t)
		}
		return n, nil
	}
	return 0, fmt.Errorf("unsupported index value %s", string(data))
}

func (c CorrectAnswer) Value() (driver.Value, error) {
	if c.Kind == AnswerNone {
		return nil, nil
	}
	b, err := c.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (c *CorrectAnswer) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*c = CorrectAnswer{}
		return nil
	case []byte:
		return c.UnmarshalJSON(v)
	case string:
		return c.UnmarshalJSON([]byte(v))
	}
	return errors.New("correct answer: unsupported scan type")
}

func (CorrectAnswer) GormDataType() string {
	return "json"
}

func (CorrectAnswer) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	switch db.Dialector.Name() {
	case "mysql":
		return "JSON"
	case "postgres":
		return "JSONB"
	}
	return ""
}
