package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/lu-zhengda/tcpmon/internal/monitor"
)

type jsonRecord struct {
	PID        int32   `json:"pid,omitempty"`
	Process    string  `json:"process"`
	Local      string  `json:"local"`
	Remote     *string `json:"remote"` // null when the socket has no peer
	Status     string  `json:"status"`
	Suspicious bool    `json:"suspicious"`
}

func toJSONRecords(records []monitor.Record) []jsonRecord {
	out := make([]jsonRecord, len(records))
	for i, r := range records {
		out[i] = jsonRecord{
			PID:        r.PID,
			Process:    r.ProcessName,
			Local:      r.Local.String(),
			Status:     r.Status,
			Suspicious: r.Suspicious,
		}
		if r.Remote != nil {
			remote := r.Remote.String()
			out[i].Remote = &remote
		}
	}
	return out
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printRecordsTable(w io.Writer, records []monitor.Record) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PID\tPROCESS\tLOCAL\tREMOTE\tSTATUS\tSUSPICIOUS")
	for _, r := range records {
		pid := "-"
		if r.HasPID() {
			pid = fmt.Sprintf("%d", r.PID)
		}
		flag := ""
		if r.Suspicious {
			flag = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			pid, r.ProcessName, r.Local.String(), r.RemoteString(), r.Status, flag)
	}
	return tw.Flush()
}

func onlySuspicious(records []monitor.Record) []monitor.Record {
	var out []monitor.Record
	for _, r := range records {
		if r.Suspicious {
			out = append(out, r)
		}
	}
	return out
}
