package trace

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"nputrace/internal/model"
)

// ErrUnknownCategory is returned for a timeline event whose category is
// outside the recognized set. There is no fallback row: an unknown category
// means the inputs come from a newer or incompatible firmware.
var ErrUnknownCategory = errors.New("unknown event category")

// Timeline event categories emitted by the driver library and the firmware.
const (
	catFirmwareInference      = "FirmwareInference"
	catFirmwareUpdateProgress = "FirmwareUpdateProgress"
	catFirmwareWfe            = "FirmwareWfe"
	catFirmwareDmaReadSetup   = "FirmwareDmaReadSetup"
	catFirmwareDmaRead        = "FirmwareDmaRead"
	catFirmwareDmaWriteSetup  = "FirmwareDmaWriteSetup"
	catFirmwareDmaWrite       = "FirmwareDmaWrite"
	catFirmwareMceStripeSetup = "FirmwareMceStripeSetup"
	catFirmwareMceStripe      = "FirmwareMceStripe"
	catFirmwarePleStripeSetup = "FirmwarePleStripeSetup"
	catFirmwarePleStripe      = "FirmwarePleStripe"
	catFirmwareUdma           = "FirmwareUdma"
	catFirmwareLabel          = "FirmwareLabel"
	catInferenceLifetime      = "InferenceLifetime"
	catBufferLifetime         = "BufferLifetime"
)

// placement describes where and how one timeline event is displayed. The
// single-letter prefixes on process and thread labels are load-bearing: the
// viewer sorts sections and rows lexicographically, so the prefixes are the
// only control over display order.
type placement struct {
	process string
	thread  string
	name    string
	args    map[string]any
	color   string

	// agentID is the command stream agent the event was attributed to, or
	// -1 for categories not backed by a firmware command.
	agentID int
}

// classify maps one start or instant event onto its display placement,
// advancing catalogue cursors for the command-backed categories.
func (s *Synthesizer) classify(e model.Entry) (placement, error) {
	args := map[string]any{"entry": e.Raw}

	switch e.Category {
	case catFirmwareInference:
		return placement{process: "b) Command Stream", thread: "a) Inference", name: "Inference", args: args, agentID: -1}, nil

	case catFirmwareUpdateProgress:
		return placement{process: "c) NCU MCU", thread: "a) Events", name: "UpdateProgress", args: args, agentID: -1}, nil

	case catFirmwareWfe:
		return placement{process: "c) NCU MCU", thread: "a) Events", name: "WFE", args: args, agentID: -1}, nil

	case catFirmwareDmaReadSetup:
		agentID, _, err := s.resolveCommand(&s.cs.DmaRd, e, "DMA_COMMAND", args)
		if err != nil {
			return placement{}, err
		}
		// The agent says what is being loaded: weights, ple code, ifm etc.
		agentType := s.cs.Agents[agentID].Element.Name
		args["agent_type"] = agentType
		return placement{
			process: "c) NCU MCU",
			thread:  "d) DMA stripe setup",
			name:    agentType,
			args:    args,
			color:   model.AgentColor(agentID),
			agentID: agentID,
		}, nil

	case catFirmwareDmaRead:
		agentID, cmd, err := s.resolveCommand(&s.cs.DmaRd, e, "DMA_COMMAND", args)
		if err != nil {
			return placement{}, err
		}
		agentType := s.cs.Agents[agentID].Element.Name
		args["agent_type"] = agentType
		hw, err := hardwareID(cmd)
		if err != nil {
			return placement{}, err
		}
		args["hardware_id"] = hw
		return placement{
			process: "d) DMA",
			thread:  fmt.Sprintf("a) DMA Load %d", hw),
			name:    agentType,
			args:    args,
			color:   model.AgentColor(agentID),
			agentID: agentID,
		}, nil

	case catFirmwareDmaWriteSetup:
		agentID, _, err := s.resolveCommand(&s.cs.DmaWr, e, "DMA_COMMAND", args)
		if err != nil {
			return placement{}, err
		}
		return placement{
			process: "c) NCU MCU",
			thread:  "d) DMA stripe setup",
			name:    "OFM_STREAMER",
			args:    args,
			color:   model.AgentColor(agentID),
			agentID: agentID,
		}, nil

	case catFirmwareDmaWrite:
		agentID, cmd, err := s.resolveCommand(&s.cs.DmaWr, e, "DMA_COMMAND", args)
		if err != nil {
			return placement{}, err
		}
		hw, err := hardwareID(cmd)
		if err != nil {
			return placement{}, err
		}
		args["hardware_id"] = hw
		return placement{
			process: "d) DMA",
			thread:  fmt.Sprintf("a) DMA Save %d", hw),
			name:    "OFM_STREAMER",
			args:    args,
			color:   model.AgentColor(agentID),
			agentID: agentID,
		}, nil

	case catFirmwareMceStripeSetup:
		agentID, _, err := s.resolveCommand(&s.cs.Mce, e, "PROGRAM_MCE_STRIPE_COMMAND", args)
		if err != nil {
			return placement{}, err
		}
		return placement{
			process: "c) NCU MCU",
			thread:  "c) MCE stripe setup",
			name:    "MCE stripe setup",
			args:    args,
			color:   model.AgentColor(agentID),
			agentID: agentID,
		}, nil

	case catFirmwareMceStripe:
		agentID, _, err := s.resolveCommand(&s.cs.Mce, e, "START_MCE_STRIPE_COMMAND", args)
		if err != nil {
			return placement{}, err
		}
		// Successive stripes alternate between the two MCE banks; keeping
		// them on separate rows stops interleaved stripes overlapping.
		s.mceBank = (s.mceBank + 1) % 2
		operation := s.cs.Agents[agentID].Element.Fields["MCE_OP_MODE"]
		return placement{
			process: "f) MCE",
			thread:  fmt.Sprintf("a) MCE bank %d", s.mceBank),
			name:    operation,
			args:    args,
			color:   model.AgentColor(agentID),
			agentID: agentID,
		}, nil

	case catFirmwarePleStripeSetup:
		agentID, _, err := s.resolveCommand(&s.cs.Ple, e, "START_PLE_STRIPE_COMMAND", args)
		if err != nil {
			return placement{}, err
		}
		return placement{
			process: "c) NCU MCU",
			thread:  "c) PLE stripe setup",
			name:    "PLE stripe setup",
			args:    args,
			color:   model.AgentColor(agentID),
			agentID: agentID,
		}, nil

	case catFirmwarePleStripe:
		agentID, _, err := s.resolveCommand(&s.cs.Ple, e, "START_PLE_STRIPE_COMMAND", args)
		if err != nil {
			return placement{}, err
		}
		kernel := s.cs.Agents[agentID].Element.Fields["PLE_KERNEL_ID"]
		return placement{
			process: "g) PLE",
			thread:  "a) PLE",
			name:    kernel,
			args:    args,
			color:   model.AgentColor(agentID),
			agentID: agentID,
		}, nil

	case catFirmwareUdma:
		agentID, _, err := s.resolveCommand(&s.cs.Ple, e, "LOAD_PLE_CODE_INTO_PLE_SRAM_COMMAND", args)
		if err != nil {
			return placement{}, err
		}
		return placement{
			process: "e) UDMA",
			thread:  "a) UDMA",
			name:    "UDMA",
			args:    args,
			color:   model.AgentColor(agentID),
			agentID: agentID,
		}, nil

	case catFirmwareLabel:
		label, _ := e.Metadata["label"].(string)
		args["label"] = label
		return placement{
			process: "c) NCU MCU",
			thread:  "g) LABELS",
			name:    label,
			args:    args,
			color:   model.Palette[0],
			agentID: -1,
		}, nil

	case catInferenceLifetime:
		return placement{process: "a) Driver Library", thread: "a) Inference", name: "Inference", args: args, agentID: -1}, nil

	case catBufferLifetime:
		return placement{
			process: "a) Driver Library",
			thread:  fmt.Sprintf("b) Buffer %d", e.ID),
			name:    fmt.Sprintf("Buffer %d", e.ID),
			args:    args,
			agentID: -1,
		}, nil

	default:
		return placement{}, fmt.Errorf("%w: %q", ErrUnknownCategory, e.Category)
	}
}

// resolveCommand advances list past the next command named name for this
// event's category, resolves the issuing agent, and records both snippets in
// args for inspection in the viewer.
func (s *Synthesizer) resolveCommand(list *model.CommandList, e model.Entry, name string, args map[string]any) (int, model.Element, error) {
	idx, err := list.Advance(e.Category, name)
	if err != nil {
		return 0, model.Element{}, err
	}
	cmd := list.Commands[idx]

	ref, ok := cmd.Fields["AGENT_ID"]
	if !ok {
		return 0, model.Element{}, fmt.Errorf("command %s %d has no AGENT_ID field", name, idx)
	}
	agentID, err := strconv.Atoi(ref)
	if err != nil || agentID < 0 || agentID >= len(s.cs.Agents) {
		return 0, model.Element{}, fmt.Errorf("command %s %d references unknown agent %q", name, idx, ref)
	}

	args["command_idx"] = idx
	args["command_xml"] = cmd.Raw
	args["agent_id"] = agentID
	args["agent_xml"] = s.cs.Agents[agentID].Element.Raw

	return agentID, cmd, nil
}

// hardwareID recovers the DMA engine number from the low bits of the
// command's DMA_CMD register value.
func hardwareID(cmd model.Element) (uint64, error) {
	v, ok := cmd.Fields["DMA_CMD"]
	if !ok {
		return 0, errors.New("command has no DMA_CMD field")
	}
	n, err := strconv.ParseUint(strings.TrimPrefix(v, "0x"), 16, 32)
	if err != nil {
		return 0, fmt.Errorf("bad DMA_CMD value %q: %v", v, err)
	}
	return n & 0b111, nil
}
