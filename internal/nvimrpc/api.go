package nvimrpc

import (
	"errors"
	"fmt"
)

// methodLevels lists the api_level each method first appeared in.
var methodLevels = map[string]int{
	"nvim_get_api_info":    1,
	"nvim_call_function":   1,
	"nvim_eval":            1,
	"nvim_command":         1,
	"nvim_get_current_buf": 1,
	"nvim_list_bufs":       1,
	"nvim_buf_get_name":    1,
	"nvim_buf_get_lines":   1,
	"nvim_buf_line_count":  1,
	"nvim_win_get_cursor":  1,
	"nvim_get_mode":        2,
	"nvim_exec_lua":        7,
}

// APIInfo is what the handshake learned about the editor.
type APIInfo struct {
	Level   int
	Version string
	// Functions maps advertised method names to the level they appeared
	// in. Empty when the editor did not advertise them.
	Functions map[string]int
}

// MinLevel returns the api_level method needs, or 0 when unknown.
func (a APIInfo) MinLevel(method string) int {
	if lvl, ok := methodLevels[method]; ok {
		return lvl
	}
	return a.Functions[method]
}

// Supports reports whether method can be sent to this editor.
func (a APIInfo) Supports(method string) bool {
	if lvl, ok := methodLevels[method]; ok && lvl > a.Level {
		return false
	}
	if len(a.Functions) > 0 {
		_, ok := a.Functions[method]
		return ok
	}
	return true
}

// ParseAPIInfo decodes the reply to nvim_get_api_info:
// [channel_id, {version: {...}, functions: [...]}].
func ParseAPIInfo(raw []any) (APIInfo, error) {
	if len(raw) != 2 {
		return APIInfo{}, fmt.Errorf("api info: expected 2 elements, got %d", len(raw))
	}
	meta, ok := asMap(raw[1])
	if !ok {
		return APIInfo{}, errors.New("api info: metadata is not a map")
	}

	var info APIInfo
	version, ok := asMap(meta["version"])
	if !ok {
		return APIInfo{}, errors.New("api info: missing version")
	}
	level, ok := asInt(version["api_level"])
	if !ok {
		return APIInfo{}, errors.New("api info: missing api_level")
	}
	info.Level = level
	major, _ := asInt(version["major"])
	minor, _ := asInt(version["minor"])
	patch, _ := asInt(version["patch"])
	info.Version = fmt.Sprintf("%d.%d.%d", major, minor, patch)

	if fns, ok := meta["functions"].([]any); ok {
		info.Functions = make(map[string]int, len(fns))
		for _, f := range fns {
			fm, ok := asMap(f)
			if !ok {
				continue
			}
			name, _ := fm["name"].(string)
			if name == "" {
				continue
			}
			since, _ := asInt(fm["since"])
			info.Functions[name] = since
		}
	}
	return info, nil
}

// asMap accepts both map shapes the msgpack decoder may produce.
func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			ks, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[ks] = val
		}
		return out, true
	}
	return nil, false
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
