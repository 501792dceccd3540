// Package fetch provides the backends a Directory fetches candidates from:
// a gRPC client (and the matching server), PostgreSQL, a local file and a
// Redis read-through cache that wraps any of them.
package fetch

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/otherjamesbrown/mentionkit/pkg/mentions"
	"github.com/otherjamesbrown/mentionkit/pkg/mentions/directory"
)

// The RPC carries google.protobuf.Struct messages:
//
//	request:  {"scope": "owner-123"}
//	response: {"success": true, "data": [{"id": "...", "handle": "...",
//	           "display_name": "...", "avatar_ref": "..."}]}
//	          {"success": false, "error": "..."}

func encodeRequest(scope string) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{"scope": scope})
}

func decodeRequest(req *structpb.Struct) (string, error) {
	v, ok := req.GetFields()["scope"]
	if !ok {
		return "", fmt.Errorf("malformed request: missing scope")
	}
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", fmt.Errorf("malformed request: scope is not a string")
	}
	return s.StringValue, nil
}

func encodeResult(res *directory.FetchResult) (*structpb.Struct, error) {
	data := make([]interface{}, 0, len(res.Data))
	for _, c := range res.Data {
		entry := map[string]interface{}{
			"id":           c.ID,
			"handle":       c.Handle,
			"display_name": c.DisplayName,
		}
		if c.AvatarRef != nil {
			entry["avatar_ref"] = *c.AvatarRef
		}
		data = append(data, entry)
	}

	m := map[string]interface{}{"success": res.Success}
	if res.Success {
		m["data"] = data
	} else {
		m["error"] = res.Error
	}
	return structpb.NewStruct(m)
}

func decodeResult(resp *structpb.Struct) (*directory.FetchResult, error) {
	m := resp.AsMap()

	success, ok := m["success"].(bool)
	if !ok {
		return nil, fmt.Errorf("malformed response: missing success flag")
	}
	if !success {
		msg, _ := m["error"].(string)
		return &directory.FetchResult{Success: false, Error: msg}, nil
	}

	raw, _ := m["data"].([]interface{})
	out := make([]mentions.Candidate, 0, len(raw))
	for i, item := range raw {
		entry, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("malformed response: candidate %d is not an object", i)
		}
		id, _ := entry["id"].(string)
		if id == "" {
			return nil, fmt.Errorf("malformed response: candidate %d has no id", i)
		}
		c := mentions.Candidate{ID: id}
		c.Handle, _ = entry["handle"].(string)
		c.DisplayName, _ = entry["display_name"].(string)
		if avatar, ok := entry["avatar_ref"].(string); ok {
			c.AvatarRef = &avatar
		}
		out = append(out, c)
	}
	return &directory.FetchResult{Success: true, Data: out}, nil
}
