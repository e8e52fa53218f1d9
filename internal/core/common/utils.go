package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrNoJSON = errors.New("no JSON object in model output")

// ParseJSON decodes the outermost JSON object of a model response into T.
// Code fences and prose around the object are ignored.
func ParseJSON[T any](response string) (T, error) {
	var out T
	start := strings.IndexByte(response, '{')
	end := strings.LastIndexByte(response, '}')
	if start < 0 || end < start {
		return out, ErrNoJSON
	}
	raw := response[start : end+1]
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return out, fmt.Errorf("decode model output: %w", err)
	}
	return out, nil
}
