package registry

import (
	"encoding/json"

	"github.com/mj1618/voxnav/internal/model"
)

func encodeElement(el model.Element) []byte {
	b, _ := json.Marshal(el)
	return b
}

func decodeElement(raw []byte) (model.Element, error) {
	var el model.Element
	err := json.Unmarshal(raw, &el)
	return el, err
}

func encode(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}

func decode[T any](raw []byte) (T, error) {
	var v T
	err := json.Unmarshal(raw, &v)
	return v, err
}
