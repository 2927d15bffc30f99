package httpapi

import (
	"fmt"
	"io"
	"sort"

	"github.com/gin-gonic/gin"

	"paddlers.io/internal/gamemaster"
)

func (s *Server) metrics(c *gin.Context) {
	c.Header("Content-Type", "text/plain; version=0.0.4")
	writeMetrics(c.Writer, s.backend.Stats())
}

func writeMetrics(w io.Writer, st gamemaster.Stats) {
	fmt.Fprintf(w, "# HELP paddlers_queue_depth Pending events in the queue.\n")
	fmt.Fprintf(w, "# TYPE paddlers_queue_depth gauge\n")
	fmt.Fprintf(w, "paddlers_queue_depth %d\n", st.Queued)
	kinds := make([]string, 0, len(st.ByKind))
	for k := range st.ByKind {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Fprintf(w, "paddlers_queue_depth_by_kind{kind=%q} %d\n", k, st.ByKind[k])
	}

	fmt.Fprintf(w, "# HELP paddlers_events_total Events handled per worker and outcome.\n")
	fmt.Fprintf(w, "# TYPE paddlers_events_total counter\n")
	for _, ws := range st.Workers {
		fmt.Fprintf(w, "paddlers_events_total{worker=%q,outcome=%q} %d\n", ws.Name, "done", ws.Done)
		fmt.Fprintf(w, "paddlers_events_total{worker=%q,outcome=%q} %d\n", ws.Name, "skipped", ws.Skipped)
		fmt.Fprintf(w, "paddlers_events_total{worker=%q,outcome=%q} %d\n", ws.Name, "retry", ws.Retried)
		fmt.Fprintf(w, "paddlers_events_total{worker=%q,outcome=%q} %d\n", ws.Name, "dead", ws.Dead)
	}

	g := st.Gateway
	fmt.Fprintf(w, "# HELP paddlers_gateway_executors Store gateway executor count.\n")
	fmt.Fprintf(w, "# TYPE paddlers_gateway_executors gauge\n")
	fmt.Fprintf(w, "paddlers_gateway_executors %d\n", g.Size)
	fmt.Fprintf(w, "# HELP paddlers_gateway_ops_total Store operations by result.\n")
	fmt.Fprintf(w, "# TYPE paddlers_gateway_ops_total counter\n")
	fmt.Fprintf(w, "paddlers_gateway_ops_total{result=%q} %d\n", "submitted", g.Submitted)
	fmt.Fprintf(w, "paddlers_gateway_ops_total{result=%q} %d\n", "completed", g.Completed)
	fmt.Fprintf(w, "paddlers_gateway_ops_total{result=%q} %d\n", "failed", g.Failed)
	fmt.Fprintf(w, "# HELP paddlers_gateway_pending Store operations waiting or running.\n")
	fmt.Fprintf(w, "# TYPE paddlers_gateway_pending gauge\n")
	fmt.Fprintf(w, "paddlers_gateway_pending{state=%q} %d\n", "queued", g.Queued)
	fmt.Fprintf(w, "paddlers_gateway_pending{state=%q} %d\n", "in_flight", g.InFlight)
}
