package cmd

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/aws-samples/sample-authzen-interface-verified-permissions/pkg/authzen"
)

var (
	allowFmt = color.New(color.FgGreen, color.Bold).SprintFunc()
	denyFmt  = color.New(color.FgRed, color.Bold).SprintFunc()
	dimFmt   = color.New(color.Faint).SprintFunc()
)

func decisionLabel(allow bool) string {
	if allow {
		return allowFmt("ALLOW")
	}
	return denyFmt("DENY")
}

// reasonList returns reason_admin values in index order.
func reasonList(resp authzen.EvaluationResponse) []string {
	if resp.Context == nil || len(resp.Context.ReasonAdmin) == 0 {
		return nil
	}
	keys := make([]string, 0, len(resp.Context.ReasonAdmin))
	for k := range resp.Context.ReasonAdmin {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, _ := strconv.Atoi(keys[i])
		b, _ := strconv.Atoi(keys[j])
		return a < b
	})
	reasons := make([]string, len(keys))
	for i, k := range keys {
		reasons[i] = resp.Context.ReasonAdmin[k]
	}
	return reasons
}

func printDecision(w io.Writer, resp authzen.EvaluationResponse) {
	fmt.Fprintln(w, decisionLabel(resp.Decision))
	for _, r := range reasonList(resp) {
		fmt.Fprintf(w, "  %s %s\n", dimFmt("policy:"), r)
	}
}

func printEntities(w io.Writer, results []authzen.Entity, page *authzen.Page) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tID")
	for _, e := range results {
		fmt.Fprintf(tw, "%s\t%s\n", e.Type, e.ID)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	printPage(w, page)
	return nil
}

func printActions(w io.Writer, results []authzen.ActionResult, page *authzen.Page) {
	fmt.Fprintln(w, "ACTION")
	for _, a := range results {
		fmt.Fprintln(w, a.Name)
	}
	printPage(w, page)
}

func printPage(w io.Writer, page *authzen.Page) {
	if page != nil {
		fmt.Fprintf(w, "\n%s %s\n", dimFmt("next page token:"), page.NextToken)
	}
}
