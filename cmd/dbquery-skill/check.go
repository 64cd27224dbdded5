// cmd/dbquery-skill/check.go
package main

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/askdba/dbquery-skill/internal/policy"
	"github.com/askdba/dbquery-skill/internal/skillerr"
	"github.com/askdba/dbquery-skill/internal/util"
)

type checkOptions struct {
	action      string
	database    string
	allowed     []string
	strict      bool
	checkParams bool
	confirm     bool
	params      []string
}

// checkReport is the admission verdict for one statement, computed without
// touching a database.
type checkReport struct {
	Action         policy.Action
	Allowed        bool
	Verdict        string
	LeadingKeyword string
	Code           skillerr.Code
	Message        string
	Findings       []util.InjectionFinding
	Limits         policy.EffectiveLimits
}

func evaluateCheck(sqlText string, opts checkOptions) (checkReport, error) {
	action, ok := policy.ParseAction(opts.action)
	if !ok || !action.NeedsSQL() {
		return checkReport{}, fmt.Errorf("--action must be one of query, execute, explain (got %q)", opts.action)
	}

	params := make([]interface{}, len(opts.params))
	for i, p := range opts.params {
		params[i] = p
	}
	req := policy.StatementRequest{
		SQL:      sqlText,
		Database: opts.database,
		Params:   params,
		Confirm:  opts.confirm,
	}
	decision := policy.Evaluate(action, req, policy.Config{
		AllowedDatabases: opts.allowed,
		StrictParser:     opts.strict,
		CheckParams:      opts.checkParams,
	})

	class := util.ClassifySQL(sqlText)
	if decision.Classification != nil {
		class = *decision.Classification
	}
	verdict := class.Verdict.String()
	if !action.ReadOnly() && !class.ReadOnly() {
		verdict = util.VerdictWrite.String()
	}
	report := checkReport{
		Action:         action,
		Allowed:        decision.Allowed,
		Verdict:        verdict,
		LeadingKeyword: class.LeadingKeyword,
		Findings:       decision.Findings,
		Limits:         decision.Limits,
	}
	if decision.Err != nil {
		report.Code = decision.Err.Code
		report.Message = decision.Err.Message
	}
	return report, nil
}

func renderCheck(r checkReport) {
	label := pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint
	pterm.Println(label("Action:  ") + string(r.Action))
	pterm.Println(label("Keyword: ") + r.LeadingKeyword)
	pterm.Println(label("Verdict: ") + r.Verdict)

	if len(r.Findings) > 0 {
		items := make([]pterm.BulletListItem, len(r.Findings))
		for i, f := range r.Findings {
			items[i] = pterm.BulletListItem{Level: 0, Text: f.PatternID + ": " + f.Message}
		}
		pterm.Println(label("Findings:"))
		_ = pterm.DefaultBulletList.WithItems(items).Render()
	}

	if r.Allowed {
		pterm.Success.Printfln("admitted (timeout %dms, maxRows %d, maxCostUsd %.2f)",
			r.Limits.TimeoutMs, r.Limits.MaxRows, r.Limits.MaxCostUSD)
		return
	}
	pterm.Error.Printfln("[%s] %s", r.Code, r.Message)
}

func newCheckCmd() *cobra.Command {
	opts := checkOptions{}
	cmd := &cobra.Command{
		Use:   "check <sql>",
		Short: "Run a statement through admission control without executing it",
		Example: `  dbquery-skill check "SELECT * FROM users WHERE id = 1"
  dbquery-skill check --action execute --confirm "DELETE FROM sessions"
  dbquery-skill check --check-params --param "' OR 1=1 --" "SELECT * FROM t WHERE a = ?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := evaluateCheck(strings.Join(args, " "), opts)
			if err != nil {
				return err
			}
			renderCheck(report)
			if !report.Allowed {
				return fmt.Errorf("statement rejected: %s", report.Code)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.action, "action", "a", string(policy.ActionQuery), "action to check: query, execute or explain")
	cmd.Flags().StringVarP(&opts.database, "database", "d", "default", "target database name")
	cmd.Flags().StringSliceVar(&opts.allowed, "allow", nil, "database allow-list (empty skips the check)")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "also require read-only statements to pass the SQL parser")
	cmd.Flags().BoolVar(&opts.checkParams, "check-params", false, "scan string parameters with libinjection")
	cmd.Flags().BoolVar(&opts.confirm, "confirm", false, "confirm a write (execute only)")
	cmd.Flags().StringArrayVarP(&opts.params, "param", "p", nil, "bound parameter (repeatable)")
	return cmd
}

func init() {
	rootCmd.AddCommand(newCheckCmd())
}
