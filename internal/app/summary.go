package app

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/specialistvlad/taskgrid/internal/job"
)

// writeSummary prints one row per job, then the final value of every data
// node.
func writeSummary(w io.Writer, sub *job.Submission, nodes dataNodes) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "TASK\tSTATUS\tJOB\tERROR")
	for _, j := range sub.Jobs {
		errMsg := "-"
		if err := j.Err(); err != nil {
			errMsg = err.Error()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", j.Task().ID, j.Status(), j.ID(), errMsg)
	}

	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "DATA NODE\tVALUE\tLAST EDIT")
	for _, n := range nodes.All() {
		if !n.IsReadyForReading() {
			fmt.Fprintf(tw, "%s\t(unset)\t-\n", n.ID())
			continue
		}
		edited := "-"
		if ts, ok := n.LastEdit(); ok {
			edited = ts.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%v\t%s\n", n.ID(), n.Read(), edited)
	}
	return tw.Flush()
}
