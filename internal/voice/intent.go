// Package voice turns transcribed caller speech into project operations. It
// owns the per-turn conversation flow: remembered context, the language
// model round trip, intent parsing and dispatch.
package voice

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
)

// Action is the closed set of operations a caller can ask for.
type Action int

const (
	ActionUnknown Action = iota
	ActionCreateProject
	ActionGetProject
	ActionAddTask
	ActionUpdateMaterial
	ActionGetStatus
	ActionListProjects
)

var actionNames = map[Action]string{
	ActionUnknown:        "unknown",
	ActionCreateProject:  "create_project",
	ActionGetProject:     "get_project",
	ActionAddTask:        "add_task",
	ActionUpdateMaterial: "update_material",
	ActionGetStatus:      "get_status",
	ActionListProjects:   "list_projects",
}

func (a Action) String() string {
	if s, ok := actionNames[a]; ok {
		return s
	}
	return "unknown"
}

// ParseAction maps a model-supplied tag to an Action. Anything unrecognised
// is ActionUnknown.
func ParseAction(tag string) Action {
	tag = strings.ToLower(strings.TrimSpace(tag))
	for a, name := range actionNames {
		if name == tag {
			return a
		}
	}
	return ActionUnknown
}

// Intent is one turn's structured reading of the caller's speech.
type Intent struct {
	Action        Action
	Parameters    map[string]string
	Reply         string
	ContextUpdate map[string]string
}

// ErrNotJSON marks model output that is not a JSON object at all.
var ErrNotJSON = errors.New("model reply is not a JSON object")

// ErrMalformedJSON marks model output that looks like JSON but does not parse.
var ErrMalformedJSON = errors.New("model reply is malformed JSON")

// ParseIntent decodes the model's reply. The expected shape is
// {"action", "parameters", "response", "updateContext"}; a ```json fence
// around it is tolerated.
func ParseIntent(text string) (Intent, error) {
	body := stripFence(strings.TrimSpace(text))
	if !strings.HasPrefix(body, "{") {
		return Intent{}, ErrNotJSON
	}

	var raw struct {
		Action        any            `json:"action"`
		Parameters    map[string]any `json:"parameters"`
		Response      any            `json:"response"`
		UpdateContext map[string]any `json:"updateContext"`
	}
	if err := sonic.UnmarshalString(body, &raw); err != nil {
		return Intent{}, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}

	tag, _ := raw.Action.(string)
	reply, _ := raw.Response.(string)
	return Intent{
		Action:        ParseAction(tag),
		Parameters:    flatten(raw.Parameters),
		Reply:         strings.TrimSpace(reply),
		ContextUpdate: flatten(raw.UpdateContext),
	}, nil
}

func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// flatten keeps scalar values as strings. Nulls, blanks and nested values are
// dropped so an empty model field never overwrites remembered context.
func flatten(in map[string]any) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		var s string
		switch val := v.(type) {
		case string:
			s = strings.TrimSpace(val)
		case float64:
			s = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			s = strconv.FormatBool(val)
		case int64:
			s = strconv.FormatInt(val, 10)
		default:
			continue
		}
		if s != "" {
			out[k] = s
		}
	}
	return out
}
