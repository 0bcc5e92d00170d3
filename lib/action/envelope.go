// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

package action

import (
	"encoding/json"
	"fmt"
)

// envelope is the tagged wire form of a SensitiveAction: the variant
// label plus the variant's own fields.
type envelope struct {
	Type   string          `json:"type"`
	Fields json.RawMessage `json:"fields"`
}

// Encode serializes an action as a tagged JSON envelope. The envelope
// is {"type": <label>, "fields": {...variant fields...}} so decoders
// can dispatch on the label without sniffing field names.
func Encode(a SensitiveAction) ([]byte, error) {
	fields, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encoding %s fields: %w", a.ActionType(), err)
	}
	return json.Marshal(envelope{Type: a.ActionType(), Fields: fields})
}

// Decode parses a tagged JSON envelope back into the concrete action
// variant. Unknown type labels are an error: an authorization system
// must never coerce an unrecognized action into a known one.
func Decode(data []byte) (SensitiveAction, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decoding action envelope: %w", err)
	}

	var (
		target SensitiveAction
		err    error
	)
	switch env.Type {
	case TypeToolCall:
		target, err = decodeFields[ToolCall](env.Fields)
	case TypeFileRead:
		target, err = decodeFields[FileRead](env.Fields)
	case TypeFileDelete:
		target, err = decodeFields[FileDelete](env.Fields)
	case TypeFileWriteOutside:
		target, err = decodeFields[FileWriteOutside](env.Fields)
	case TypeCommandExec:
		target, err = decodeFields[CommandExec](env.Fields)
	case TypeNetworkRequest:
		target, err = decodeFields[NetworkRequest](env.Fields)
	case TypeDataTransmit:
		target, err = decodeFields[DataTransmit](env.Fields)
	case TypeFinancialTransaction:
		target, err = decodeFields[FinancialTransaction](env.Fields)
	case TypeAccessControlChange:
		target, err = decodeFields[AccessControlChange](env.Fields)
	case TypeCapabilityGrant:
		target, err = decodeFields[CapabilityGrant](env.Fields)
	case TypePluginExecution:
		target, err = decodeFields[PluginExecution](env.Fields)
	case TypePluginHTTPRequest:
		target, err = decodeFields[PluginHTTPRequest](env.Fields)
	case TypePluginFileAccess:
		target, err = decodeFields[PluginFileAccess](env.Fields)
	default:
		return nil, fmt.Errorf("unknown action type %q", env.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s fields: %w", env.Type, err)
	}
	return target, nil
}

func decodeFields[T SensitiveAction](fields json.RawMessage) (SensitiveAction, error) {
	var v T
	if err := json.Unmarshal(fields, &v); err != nil {
		return nil, err
	}
	return v, nil
}
