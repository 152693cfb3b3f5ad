package bank

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrCorruptPayload marks a serialized column that failed to decode. The
// stores treat this as data corruption, never as an empty default.
var ErrCorruptPayload = errors.New("corrupt serialized payload")

// Structured question fields cross the SQL boundary as canonical JSON text.

func EncodeOptions(opts []Option) (string, error) {
	b, err := json.Marshal(opts)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func DecodeOptions(s string) ([]Option, error) {
	var opts []Option
	if err := json.Unmarshal([]byte(s), &opts); err != nil {
		return nil, fmt.Errorf("%w: options: %v", ErrCorruptPayload, err)
	}
	return opts, nil
}

func EncodeStringList(ids []string) (string, error) {
	if ids == nil {
		ids = []string{}
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func DecodeStringList(s string) ([]string, error) {
	var ids []string
	if err := json.Unmarshal([]byte(s), &ids); err != nil {
		return nil, fmt.Errorf("%w: string list: %v", ErrCorruptPayload, err)
	}
	return ids, nil
}

// EncodeBlocks returns "" for an absent block list so the column stays NULL.
func EncodeBlocks(blocks []ExplanationBlock) (string, error) {
	if len(blocks) == 0 {
		return "", nil
	}
	b, err := json.Marshal(blocks)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func DecodeBlocks(s string) ([]ExplanationBlock, error) {
	if s == "" {
		return nil, nil
	}
	var blocks []ExplanationBlock
	if err := json.Unmarshal([]byte(s), &blocks); err != nil {
		return nil, fmt.Errorf("%w: explanation blocks: %v", ErrCorruptPayload, err)
	}
	return blocks, nil
}
