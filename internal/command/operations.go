package command

import "fmt"

const maxBanDurationSeconds = 2592000 // 30 days, per spec §4.8

func requireNumber(args map[string]any, key string) (float64, error) {
	v, ok := args[key]
	if !ok {
		return 0, &ValidationError{Message: fmt.Sprintf("missing required field %q", key)}
	}
	f, ok := v.(float64)
	if !ok {
		return 0, &ValidationError{Message: fmt.Sprintf("field %q must be a number", key)}
	}
	return f, nil
}

func optionalBool(args map[string]any, key string, def bool) bool {
	v, ok := args[key]
	if !ok {
		return def
	}
	b, _ := v.(bool)
	return b
}

func registerOperationCommands() {
	register("set_group_ban", true, func(args map[string]any, groupID *int64) (string, map[string]any, error) {
		qqID, err := requireNumber(args, "qq_id")
		if err != nil {
			return "", nil, err
		}
		duration, err := requireNumber(args, "duration")
		if err != nil {
			return "", nil, err
		}
		if duration > maxBanDurationSeconds || duration < 0 {
			return "", nil, &ValidationError{Message: fmt.Sprintf("duration must be within [0, %d]", maxBanDurationSeconds)}
		}
		return "set_group_ban", map[string]any{
			"group_id": *groupID, "user_id": qqID, "duration": duration,
		}, nil
	})

	register("set_group_whole_ban", true, func(args map[string]any, groupID *int64) (string, map[string]any, error) {
		enable, ok := args["enable"].(bool)
		if !ok {
			return "", nil, &ValidationError{Message: "enable must be a bool"}
		}
		return "set_group_whole_ban", map[string]any{"group_id": *groupID, "enable": enable}, nil
	})

	register("set_group_kick", true, func(args map[string]any, groupID *int64) (string, map[string]any, error) {
		userID, err := requireNumber(args, "user_id")
		if err != nil {
			return "", nil, err
		}
		reject := optionalBool(args, "reject_add_request", false)
		return "set_group_kick", map[string]any{
			"group_id": *groupID, "user_id": userID, "reject_add_request": reject,
		}, nil
	})

	register("set_group_kick_members", true, func(args map[string]any, groupID *int64) (string, map[string]any, error) {
		raw, ok := args["user_id"].([]any)
		if !ok || len(raw) == 0 {
			return "", nil, &ValidationError{Message: "user_id must be a non-empty array of integers"}
		}
		ids := make([]float64, 0, len(raw))
		for _, v := range raw {
			f, ok := v.(float64)
			if !ok {
				return "", nil, &ValidationError{Message: "user_id array elements must be integers"}
			}
			ids = append(ids, f)
		}
		return "set_group_kick_members", map[string]any{"group_id": *groupID, "user_id": ids}, nil
	})

	register("send_poke", false, func(args map[string]any, groupID *int64) (string, map[string]any, error) {
		qqID, err := requireNumber(args, "qq_id")
		if err != nil {
			return "", nil, err
		}
		params := map[string]any{"user_id": qqID}
		if v, ok := args["group_id"]; ok {
			params["group_id"] = v
		}
		return "send_poke", params, nil
	})

	register("set_group_name", true, func(args map[string]any, groupID *int64) (string, map[string]any, error) {
		name, ok := args["group_name"].(string)
		if !ok || name == "" {
			return "", nil, &ValidationError{Message: "group_name must be a non-empty string"}
		}
		return "set_group_name", map[string]any{"group_id": *groupID, "group_name": name}, nil
	})

	register("delete_msg", false, func(args map[string]any, groupID *int64) (string, map[string]any, error) {
		msgID, err := requireNumber(args, "message_id")
		if err != nil {
			return "", nil, err
		}
		if msgID <= 0 {
			return "", nil, &ValidationError{Message: "message_id must be > 0"}
		}
		return "delete_msg", map[string]any{"message_id": msgID}, nil
	})

	register("send_group_ai_record", true, func(args map[string]any, groupID *int64) (string, map[string]any, error) {
		character, ok := args["character"].(string)
		if !ok || character == "" {
			return "", nil, &ValidationError{Message: "character must be a non-empty string"}
		}
		text, ok := args["text"].(string)
		if !ok || text == "" {
			return "", nil, &ValidationError{Message: "text must be a non-empty string"}
		}
		return "send_group_ai_record", map[string]any{
			"group_id": *groupID, "character": character, "text": text,
		}, nil
	})

	register("message_like", false, func(args map[string]any, groupID *int64) (string, map[string]any, error) {
		msgID, err := requireNumber(args, "message_id")
		if err != nil {
			return "", nil, err
		}
		emojiID, err := requireNumber(args, "emoji_id")
		if err != nil {
			return "", nil, err
		}
		return "message_like", map[string]any{"message_id": msgID, "emoji_id": emojiID}, nil
	})

	register("set_qq_profile", false, func(args map[string]any, groupID *int64) (string, map[string]any, error) {
		nickname, ok := args["nickname"].(string)
		if !ok || nickname == "" {
			return "", nil, &ValidationError{Message: "nickname must be a non-empty string"}
		}
		params := map[string]any{"nickname": nickname}
		if note, ok := args["personal_note"].(string); ok {
			params["personal_note"] = note
		}
		if sex, ok := args["sex"].(string); ok {
			if sex != "male" && sex != "female" && sex != "unknown" {
				return "", nil, &ValidationError{Message: "sex must be one of male/female/unknown"}
			}
			params["sex"] = sex
		}
		return "set_qq_profile", params, nil
	})
}
