package trace

import (
	"github.com/rs/zerolog"

	"nputrace/internal/model"
)

func nopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func agent(name string, fields map[string]string) model.Agent {
	if fields == nil {
		fields = map[string]string{}
	}
	return model.Agent{Element: model.Element{
		Name:   name,
		Fields: fields,
		Raw:    "<" + name + "/>\n",
	}}
}

func command(name string, fields map[string]string) model.Element {
	return model.Element{
		Name:   name,
		Fields: fields,
		Raw:    "<" + name + "/>\n",
	}
}

// testStream builds a small command stream: four agents and one or two
// commands per queue, enough to exercise every command-backed category.
func testStream() *model.CommandStream {
	return &model.CommandStream{
		Agents: []model.Agent{
			agent("IFM_STREAMER", nil),
			agent("PLE_LOADER", map[string]string{"PLE_KERNEL_ID": "SIGMOID_16X8_1"}),
			agent("WEIGHTS", nil),
			agent("MCE_SCHEDULER", map[string]string{"MCE_OP_MODE": "CONVOLUTION"}),
		},
		DmaRd: model.CommandList{Commands: []model.Element{
			command("DMA_COMMAND", map[string]string{"AGENT_ID": "2", "DMA_CMD": "0x2c"}),
			command("DMA_COMMAND", map[string]string{"AGENT_ID": "0", "DMA_CMD": "0x11"}),
		}},
		DmaWr: model.CommandList{Commands: []model.Element{
			command("DMA_COMMAND", map[string]string{"AGENT_ID": "0", "DMA_CMD": "0x18"}),
		}},
		Mce: model.CommandList{Commands: []model.Element{
			command("PROGRAM_MCE_STRIPE_COMMAND", map[string]string{"AGENT_ID": "3"}),
			command("START_MCE_STRIPE_COMMAND", map[string]string{"AGENT_ID": "3"}),
			command("START_MCE_STRIPE_COMMAND", map[string]string{"AGENT_ID": "3"}),
		}},
		Ple: model.CommandList{Commands: []model.Element{
			command("START_PLE_STRIPE_COMMAND", map[string]string{"AGENT_ID": "1"}),
			command("LOAD_PLE_CODE_INTO_PLE_SRAM_COMMAND", map[string]string{"AGENT_ID": "1"}),
		}},
	}
}

func start(id, ts uint64, category string) model.Entry {
	return model.Entry{Type: model.EntryTimelineStart, Timestamp: ts, ID: id, Category: category}
}

func instant(id, ts uint64, category string) model.Entry {
	return model.Entry{Type: model.EntryTimelineInstant, Timestamp: ts, ID: id, Category: category}
}

func end(id, ts uint64) model.Entry {
	return model.Entry{Type: model.EntryTimelineEnd, Timestamp: ts, ID: id}
}
