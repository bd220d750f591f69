package command

// queryCommands are passthrough: every field of args is forwarded
// verbatim as the gateway action's params, and the response is correlated
// by echo through the Response Pool at the session layer. These eleven
// commands are not present in the distilled source's handler (only the
// operation-style commands were), so they are authored fresh here
// following the same registry shape.
var queryCommands = []string{
	"get_login_info",
	"get_stranger_info",
	"get_friend_list",
	"get_group_info",
	"get_group_detail_info",
	"get_group_list",
	"get_group_at_all_remain",
	"get_group_member_info",
	"get_group_member_list",
	"get_msg",
	"get_forward_msg",
}

func registerQueryCommands() {
	for _, name := range queryCommands {
		action := name
		register(name, false, func(args map[string]any, groupID *int64) (string, map[string]any, error) {
			return action, args, nil
		})
	}
}
