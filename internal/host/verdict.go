package host

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/osi4iot/hookmux/internal/hooks"
)

// Verdict is the JSON-mode response: one line per event, always exit 0.
type Verdict struct {
	Action  string         `json:"action"` // "continue" or "block"
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

func makeVerdict(event hooks.HookEvent, result hooks.Result) Verdict {
	action := "continue"
	if result.Blocking(event) {
		action = "block"
	}
	return Verdict{Action: action, Message: result.Message, Data: result.Data}
}

func writeJSONVerdict(w io.Writer, event hooks.HookEvent, result hooks.Result) {
	enc := json.NewEncoder(w)
	if err := enc.Encode(makeVerdict(event, result)); err != nil {
		// The encoder already wrote what it could; a trailing hard block
		// line keeps the host from treating garbage as approval.
		fmt.Fprintln(w, `{"action":"block","message":"verdict encoding failed"}`)
	}
}

func writeStats(w io.Writer, rows []hooks.ExecutionStats) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tTOTAL\tOK\tFAILED\tBLOCKED\tAVG\tLAST")
	for _, s := range rows {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
			s.Key, s.TotalExecutions, s.SuccessfulExecutions,
			s.FailedExecutions, s.BlockedExecutions,
			s.AverageDuration.Round(1e6),
			s.LastExecution.Format("15:04:05"))
	}
	tw.Flush()
}
