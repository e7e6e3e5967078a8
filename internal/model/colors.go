package model

// Palette lists the color names the viewer accepts for the cname property,
// filtered to remove entries too similar to the background. Taken from
// catapult's color_scheme.html.
var Palette = []string{
	"thread_state_uninterruptible",
	"thread_state_iowait",
	"thread_state_running",
	"thread_state_runnable",
	"thread_state_unknown",
	"background_memory_dump",
	"detailed_memory_dump",
	"vsync_highlight_color",
	"generic_work",
	"good",
	"bad",
	"grey",
	"yellow",
	"olive",
	"rail_response",
	"rail_animation",
	"rail_idle",
	"rail_load",
	"startup",
	"heap_dump_stack_frame",
	"heap_dump_object_type",
	"heap_dump_child_node_arrow",
	"cq_build_running",
	"cq_build_passed",
	"cq_build_failed",
	"cq_build_abandoned",
	"cq_build_attempt_runnig",
	"cq_build_attempt_passed",
	"cq_build_attempt_failed",
}

// AgentColor returns the palette entry for an agent id. Events attributed to
// the same agent always render in the same color.
func AgentColor(agentID int) string {
	return Palette[agentID%len(Palette)]
}
