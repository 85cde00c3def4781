package bookline

import (
	"encoding/json"
	"fmt"

	"github.com/bookline/bookline/pkg/bookline/infer"
	"github.com/bookline/bookline/pkg/bookline/observability"
	"github.com/bookline/bookline/pkg/bookline/repo"
)

// findSlotsTool is the single tool offered to the model by the matching node.
const findSlotsTool = "find_slots"

var findSlotsSpec = infer.ToolSpec{
	Name: findSlotsTool,
	Description: "Search available appointment slots on a date whose time range overlaps " +
		"the requested start and end times, optionally filtered by service name.",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"date": map[string]any{
				"type":        "string",
				"description": "Date to search, YYYY-MM-DD",
			},
			"start_time": map[string]any{
				"type":        "string",
				"description": "Requested start time, HH:MM (24h)",
			},
			"end_time": map[string]any{
				"type":        "string",
				"description": "Requested end time, HH:MM (24h). Defaults to one hour after start_time.",
			},
			"service_name": map[string]any{
				"type":        "string",
				"description": "Optional service name filter",
			},
		},
		"required": []string{"date", "start_time"},
	},
}

// findSlotsArgs is the argument payload of a find_slots tool call.
type findSlotsArgs struct {
	Date        string `json:"date"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time,omitempty"`
	ServiceName string `json:"service_name,omitempty"`
}

// matchNode asks the model whether to search for slots and executes the
// tool call if requested. Whatever the model decides, the node never leaves
// the session stalled: if the stage is still ProceedToFetchSlots afterwards,
// the result is folded to an empty slot list and NoSlotAvailable.
func matchNode(ctx Context, s State) (State, error) {
	s = decideAndSearch(ctx, s)

	// Result folding: the model may decline to call the tool or return
	// nothing actionable. Force a resolution either way.
	if s.Stage == StageProceedToFetchSlots {
		s.AvailableSlots = nil
		s.Stage = StageNoSlotAvailable
	}
	return s, nil
}

func decideAndSearch(ctx Context, s State) State {
	client := ctx.Infer()
	if client == nil {
		return s
	}

	dec, err := client.DecideTool(ctx, infer.ToolRequest{
		Prompt: matchPrompt(s),
		Tools:  []infer.ToolSpec{findSlotsSpec},
	})
	if err != nil {
		// A failed decision is the same as a declined one.
		observability.LogInferenceDegraded(ctx.Logger(), ctx.SessionID(), "decide_tool", err)
		return s
	}

	if !dec.IsToolCall() {
		if dec.Reply != "" {
			s = s.WithToolMessage(dec.Reply)
		}
		return s
	}

	observability.LogToolCall(ctx.Logger(), ctx.SessionID(), dec.Call.Name)
	if dec.Call.Name != findSlotsTool {
		ctx.Logger().Warn("model requested unknown tool", "tool", dec.Call.Name)
		return s
	}

	var args findSlotsArgs
	if err := json.Unmarshal(dec.Call.Arguments, &args); err != nil {
		ctx.Logger().Warn("malformed tool arguments", "error", err.Error())
		return s
	}

	return executeFindSlots(ctx, s, args)
}

// executeFindSlots runs the slot search against the repository and folds the
// result into state. An empty result and a failed query are treated the
// same: NoSlotAvailable, never a fatal error.
func executeFindSlots(ctx Context, s State, args findSlotsArgs) State {
	r := ctx.Repo()
	if r == nil {
		return s
	}

	// The model occasionally drops arguments it was given; backfill from
	// the gathered preferences.
	if args.Date == "" {
		args.Date = s.TimePrefs.PreferredDate
	}
	if args.StartTime == "" {
		args.StartTime = s.TimePrefs.PreferredTime
	}

	q, err := repo.SlotQuery{
		Date:        args.Date,
		StartTime:   args.StartTime,
		EndTime:     args.EndTime,
		ServiceName: args.ServiceName,
	}.Normalize()
	if err != nil {
		ctx.Logger().Warn("slot query rejected", "error", err.Error())
		s.AvailableSlots = nil
		s.Stage = StageNoSlotAvailable
		return s
	}

	slots, err := r.FindSlots(ctx, q)
	if err != nil {
		ctx.Logger().Warn("slot search failed", "error", err.Error())
		slots = nil
	}

	s = s.WithToolMessage(toolResultMessage(slots))

	if len(slots) == 0 {
		s.AvailableSlots = nil
		s.Stage = StageNoSlotAvailable
		return s
	}

	s.AvailableSlots = slots
	s.Stage = StageSlotsFetched
	return s
}

func toolResultMessage(slots []repo.Slot) string {
	if len(slots) == 0 {
		return fmt.Sprintf("%s: no matching slots", findSlotsTool)
	}
	data, err := json.Marshal(slots)
	if err != nil {
		return fmt.Sprintf("%s: %d matching slots", findSlotsTool, len(slots))
	}
	return fmt.Sprintf("%s: %s", findSlotsTool, data)
}

func matchPrompt(s State) string {
	return fmt.Sprintf(
		"You are an appointment booking assistant. The user wants %q on %s at %s. "+
			"Use the %s tool to search for matching availability.",
		s.Service.ServiceType, s.TimePrefs.PreferredDate, s.TimePrefs.PreferredTime, findSlotsTool)
}
